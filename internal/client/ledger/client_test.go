package ledger_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/live-odds-betting/internal/client/ledger"
	cledger "github.com/radieske/live-odds-betting/pkg/contracts/ledger"
)

func newServer(t *testing.T, h http.HandlerFunc) *ledger.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return ledger.New(srv.URL, time.Second, 0)
}

func TestGetBankroll(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/bankroll", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		_, _ = w.Write([]byte(`{"balance":9876.5,"version":12,"updated_at":"2025-01-05T18:00:00Z"}`))
	})

	br, err := c.GetBankroll(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 9876.5, br.Balance, 0.001)
	assert.Equal(t, int64(12), br.Version)
	assert.Equal(t, 2025, br.UpdatedAt.Year())
}

func TestPlaceBet_SendsContractBody(t *testing.T) {
	line := -3.5
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/bets", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "G1", body["game_id"])
		assert.Equal(t, "spread_home", body["bet_type"])
		assert.InDelta(t, 25.0, body["stake"], 0.001)
		assert.InDelta(t, -110.0, body["odds"], 0.001)
		assert.InDelta(t, -3.5, body["line_value"], 0.001)
		assert.Equal(t, "KC -3.5", body["selection"])

		_ = json.NewEncoder(w).Encode(cledger.PlaceBetResponse{
			Bet:      cledger.Bet{ID: 7, GameID: "G1", Status: cledger.StatusPending},
			Bankroll: cledger.Bankroll{Balance: 975},
		})
	})

	resp, err := c.PlaceBet(context.Background(), cledger.PlaceBetRequest{
		GameID: "G1", BetType: cledger.SpreadHome, Stake: 25, Odds: -110, LineValue: &line,
		Selection: "KC -3.5", HomeTeamAbbr: "KC", AwayTeamAbbr: "BUF",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), resp.Bet.ID)
	assert.InDelta(t, 975.0, resp.Bankroll.Balance, 0.001)
}

func TestPlaceBet_RejectionCarriesDetail(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"Game has already started"}`))
	})

	_, err := c.PlaceBet(context.Background(), cledger.PlaceBetRequest{GameID: "G1"})
	require.Error(t, err)

	var apiErr *ledger.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Game has already started", err.Error())

	detail, ok := ledger.DetailOf(err)
	assert.True(t, ok)
	assert.Equal(t, "Game has already started", detail)
}

func TestPlaceBet_RejectionWithoutBody(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.PlaceBet(context.Background(), cledger.PlaceBetRequest{})
	require.Error(t, err)
	_, ok := ledger.DetailOf(err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "502")
}

func TestListBets_QueryParams(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/bets", r.URL.Path)
		assert.Equal(t, "pending", r.URL.Query().Get("status"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		assert.Equal(t, "", r.URL.Query().Get("offset"))
		_, _ = w.Write([]byte(`{"bets":[{"id":1,"game_id":"G1","status":"pending"}],"total_count":1,"limit":100,"offset":0}`))
	})

	resp, err := c.ListBets(context.Background(), cledger.BetFilter{Status: cledger.StatusPending, Limit: 100})
	require.NoError(t, err)
	require.Len(t, resp.Bets, 1)
	assert.Equal(t, 1, resp.TotalCount)
	assert.Equal(t, cledger.StatusPending, resp.Bets[0].Status)
}

func TestGetBetAndSettle(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/bets/42":
			_, _ = w.Write([]byte(`{"bet":{"id":42,"status":"won","result_amount":190.91}}`))
		case "/api/games/G%2F1/settle", "/api/games/G/1/settle":
			assert.Equal(t, http.MethodPost, r.Method)
			_, _ = w.Write([]byte(`{"game_id":"G/1","final_score":{"home":24,"away":17},"settled_bets":[],"bankroll":{"balance":1000}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	bet, err := c.GetBet(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, cledger.StatusWon, bet.Status)
	require.NotNil(t, bet.ResultAmount)
	assert.InDelta(t, 190.91, *bet.ResultAmount, 0.001)

	res, err := c.SettleGame(context.Background(), "G/1")
	require.NoError(t, err)
	assert.Equal(t, cledger.FinalScore{Home: 24, Away: 17}, res.FinalScore)
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := ledger.New(url, time.Second, 5)
	_, err := c.GetBankroll(context.Background())
	require.Error(t, err)
	_, ok := ledger.DetailOf(err)
	assert.False(t, ok)
}

func TestTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(block) })

	c := ledger.New(srv.URL, 50*time.Millisecond, 0)
	_, err := c.GetBankroll(context.Background())
	assert.Error(t, err, "a hung ledger request must not block forever")
}
