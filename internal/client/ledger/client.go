package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	cledger "github.com/radieske/live-odds-betting/pkg/contracts/ledger"
)

// APIError resposta não-2xx do ledger; Detail é exibido ao usuário sem alteração
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("ledger http %d", e.StatusCode)
	}
	return e.Detail
}

// DetailOf extrai a mensagem do ledger de err, se houver
func DetailOf(err error) (string, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail, true
	}
	return "", false
}

// Client fala com o ledger remoto via HTTP/JSON
type Client struct {
	BaseURL string
	HTTP    *http.Client
	limiter *rate.Limiter
}

// New cria o cliente. timeout cobre requisições penduradas;
// ratePerSec <= 0 desliga o limitador.
func New(base string, timeout time.Duration, ratePerSec float64) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	lim := rate.NewLimiter(rate.Inf, 0)
	if ratePerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(ratePerSec), int(ratePerSec)+1)
	}
	return &Client{
		BaseURL: base,
		HTTP:    &http.Client{Timeout: timeout},
		limiter: lim,
	}
}

func (c *Client) GetBankroll(ctx context.Context) (cledger.Bankroll, error) {
	var out cledger.Bankroll
	err := c.do(ctx, http.MethodGet, "/api/bankroll", nil, &out)
	return out, err
}

func (c *Client) PlaceBet(ctx context.Context, req cledger.PlaceBetRequest) (cledger.PlaceBetResponse, error) {
	var out cledger.PlaceBetResponse
	err := c.do(ctx, http.MethodPost, "/api/bets", req, &out)
	return out, err
}

func (c *Client) ListBets(ctx context.Context, f cledger.BetFilter) (cledger.BetsResponse, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	path := "/api/bets"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out cledger.BetsResponse
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) GetBet(ctx context.Context, id int64) (cledger.Bet, error) {
	var out cledger.BetResponse
	err := c.do(ctx, http.MethodGet, "/api/bets/"+strconv.FormatInt(id, 10), nil, &out)
	return out.Bet, err
}

func (c *Client) SettleGame(ctx context.Context, gameID string) (cledger.SettleGameResponse, error) {
	var out cledger.SettleGameResponse
	err := c.do(ctx, http.MethodPost, "/api/games/"+url.PathEscape(gameID)+"/settle", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("ledger rate limiter: %w", err)
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("ledger %s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: res.StatusCode}
		var er cledger.ErrorResponse
		if b, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10)); len(b) > 0 && json.Unmarshal(b, &er) == nil {
			apiErr.Detail = er.Detail
		}
		return apiErr
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode ledger response: %w", err)
	}
	return nil
}
