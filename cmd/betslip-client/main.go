package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/live-odds-betting/internal/client/feed"
	"github.com/radieske/live-odds-betting/internal/client/session"
	"github.com/radieske/live-odds-betting/internal/shared/config"
	"github.com/radieske/live-odds-betting/internal/shared/logger"
	"github.com/radieske/live-odds-betting/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "betslip-client"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Métricas Prometheus do cliente
	feedConnected := prometheus.NewGauge(prometheus.GaugeOpts{Name: "betslip_feed_connected", Help: "1 quando o feed está Open"})
	feedTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "betslip_feed_transitions_total", Help: "transições do conector por estado"}, []string{"state"})
	frames := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "betslip_feed_frames_total", Help: "frames recebidos por tipo"}, []string{"type"})
	malformed := prometheus.NewCounter(prometheus.CounterOpts{Name: "betslip_feed_malformed_total", Help: "frames descartados por parse"})
	reconnectDelay := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "betslip_feed_reconnect_delay_seconds",
		Help:    "atraso agendado antes de reconectar",
		Buckets: []float64{1, 2, 4, 8, 16, 30},
	})
	refreshErrors := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "betslip_refresh_errors_total", Help: "falhas de refresh por operação"}, []string{"op"})
	staleBankroll := prometheus.NewCounter(prometheus.CounterOpts{Name: "betslip_stale_bankroll_total", Help: "bankrolls descartados por updated_at antigo"})
	placed := prometheus.NewCounter(prometheus.CounterOpts{Name: "betslip_bets_placed_total", Help: "apostas aceitas pelo ledger"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "betslip_bets_rejected_total", Help: "apostas recusadas por motivo"}, []string{"reason"})
	settled := prometheus.NewCounter(prometheus.CounterOpts{Name: "betslip_settled_bets_total", Help: "apostas liquidadas via settle"})
	settleFailed := prometheus.NewCounter(prometheus.CounterOpts{Name: "betslip_settle_failures_total", Help: "settles que falharam"})
	prometheus.MustRegister(feedConnected, feedTransitions, frames, malformed, reconnectDelay,
		refreshErrors, staleBankroll, placed, rejected, settled, settleFailed)

	sess, err := session.New(session.Config{
		FeedURL:          cfg.FeedURL,
		LedgerURL:        cfg.LedgerURL,
		LedgerTimeout:    cfg.LedgerTimeout,
		LedgerRatePerSec: cfg.LedgerRatePerSec,
		Feed: feed.Options{
			PingInterval: cfg.FeedPingInterval,
			BackoffBase:  cfg.FeedBackoffBase,
			BackoffMax:   cfg.FeedBackoffMax,
		},
		ReconcileSchedule: cfg.ReconcileSchedule,
	}, session.Hooks{
		OnFeedState: func(s feed.State) {
			feedTransitions.WithLabelValues(s.String()).Inc()
			if s == feed.StateOpen {
				feedConnected.Set(1)
			} else {
				feedConnected.Set(0)
			}
		},
		OnFrame:              func(t string) { frames.WithLabelValues(t).Inc() },
		OnMalformed:          func() { malformed.Inc() },
		OnReconnectScheduled: func(d time.Duration) { reconnectDelay.Observe(d.Seconds()) },
		OnRefreshError:       func(op string) { refreshErrors.WithLabelValues(op).Inc() },
		OnStaleBankroll:      func() { staleBankroll.Inc() },
		OnBetPlaced:          func() { placed.Inc() },
		OnBetRejected:        func(reason string) { rejected.WithLabelValues(reason).Inc() },
		OnSettled:            func(n int) { settled.Add(float64(n)) },
		OnSettleFailed:       func() { settleFailed.Inc() },
	}, log)
	if err != nil {
		log.Fatal("session init", zap.Error(err))
	}

	// healthz falha enquanto o feed não estiver Open
	msrv := metrics.StartMetricsServer(cfg.MetricsPort, log, func(ctx context.Context) error {
		if !sess.Connected() {
			if e := sess.LastError(); e != "" {
				return errors.New(e)
			}
			return errors.New("feed disconnected")
		}
		return nil
	})

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("betslip-client started",
		zap.String("feed_url", cfg.FeedURL),
		zap.String("ledger_url", cfg.LedgerURL))
	if err := sess.Run(ctx); err != nil {
		log.Error("session stopped with error", zap.Error(err))
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	_ = msrv.Shutdown(shutdownCtx)
	log.Info("betslip-client stopped")
}
