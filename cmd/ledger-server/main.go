package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/live-odds-betting/internal/ledger-service/feed"
	httpapi "github.com/radieske/live-odds-betting/internal/ledger-service/http"
	"github.com/radieske/live-odds-betting/internal/ledger-service/producer"
	"github.com/radieske/live-odds-betting/internal/ledger-service/repo"
	"github.com/radieske/live-odds-betting/internal/shared/cache"
	"github.com/radieske/live-odds-betting/internal/shared/config"
	"github.com/radieske/live-odds-betting/internal/shared/db"
	"github.com/radieske/live-odds-betting/internal/shared/kafka"
	"github.com/radieske/live-odds-betting/internal/shared/logger"
	"github.com/radieske/live-odds-betting/internal/shared/metrics"
)

func main() {
	// carrega config
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "ledger-server"
	}

	// inicia logger
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	log.Info("starting service", zap.String("service", cfg.ServiceName), zap.String("env", cfg.Env))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// conecta com db Postgres e aplica o schema
	pg, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()
	if err := db.Migrate(ctx, pg, cfg.StartingBankroll); err != nil {
		log.Fatal("failed to migrate postgres", zap.Error(err))
	}
	log.Info("postgres connected", zap.Float64("starting_bankroll", cfg.StartingBankroll))

	// conecta com cache Redis
	redisClient, err := cache.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("redis connected")

	// writers Kafka por tópico
	betPlacedW := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetPlaced)
	defer betPlacedW.Close()
	gameSettledW := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicGameSettled)
	defer gameSettledW.Close()
	log.Info("kafka writers ready",
		zap.String("bet_placed", cfg.TopicBetPlaced),
		zap.String("game_settled", cfg.TopicGameSettled))

	// Métricas Prometheus do servidor
	wsClients := prometheus.NewGauge(prometheus.GaugeOpts{Name: "ledger_ws_clients", Help: "Clientes WebSocket conectados"})
	wsSent := prometheus.NewCounter(prometheus.CounterOpts{Name: "ledger_ws_messages_sent_total", Help: "Total de mensagens WS enviadas"})
	snapshots := prometheus.NewCounter(prometheus.CounterOpts{Name: "ledger_snapshots_published_total", Help: "snapshots publicados no Redis"})
	snapshotErrors := prometheus.NewCounter(prometheus.CounterOpts{Name: "ledger_snapshot_errors_total", Help: "falhas ao publicar snapshot"})
	betsPlaced := prometheus.NewCounter(prometheus.CounterOpts{Name: "ledger_bets_placed_total", Help: "apostas gravadas"})
	betsRejected := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ledger_bets_rejected_total", Help: "apostas recusadas por motivo"}, []string{"reason"})
	betsSettled := prometheus.NewCounter(prometheus.CounterOpts{Name: "ledger_bets_settled_total", Help: "apostas liquidadas"})
	historyRows := prometheus.NewCounter(prometheus.CounterOpts{Name: "ledger_lines_history_rows_total", Help: "linhas gravadas no histórico"})
	historyErrors := prometheus.NewCounter(prometheus.CounterOpts{Name: "ledger_lines_history_errors_total", Help: "falhas ao gravar histórico de linhas"})
	prometheus.MustRegister(wsClients, wsSent, snapshots, snapshotErrors, betsPlaced, betsRejected, betsSettled, historyRows, historyErrors)

	// feed: catálogo → publisher → Redis → subscriber → hub
	catalog := feed.NewCatalog(feed.DefaultMatchups, nil, nil)
	store := feed.NewRedisStore(redisClient, cfg.RedisPubSubChannel)

	var pub *feed.Publisher
	hub := feed.NewHub(func() (feed.Snapshot, bool) {
		rctx, rcancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer rcancel()
		return pub.Current(rctx)
	}, log)
	hub.OnClients = func(n int) { wsClients.Set(float64(n)) }
	hub.OnSent = wsSent.Inc

	pub = feed.NewPublisher(catalog, store, hub, cfg.FeedTick, log)
	pub.OnPublished = snapshots.Inc
	pub.OnError = snapshotErrors.Inc
	history := repo.NewHistory(pg)
	pub.History = history
	pub.OnHistorySaved = func(n int) { historyRows.Add(float64(n)) }
	pub.OnHistoryError = historyErrors.Inc

	feed.StartRedisSubscriber(ctx, redisClient, cfg.RedisPubSubChannel, hub, log)
	go pub.Run(ctx)

	api := &httpapi.API{
		Ledger:     repo.NewPostgres(pg),
		Games:      catalog,
		Events:     producer.NewKafkaPublisher(betPlacedW, gameSettledW),
		Feed:       pub,
		History:    history,
		WS:         hub.HandleWS,
		Clients:    hub.Count,
		Log:        log,
		OnPlaced:   betsPlaced.Inc,
		OnRejected: func(reason string) { betsRejected.WithLabelValues(reason).Inc() },
		OnSettled:  func(n int) { betsSettled.Add(float64(n)) },
	}

	// healthz: valida dependências críticas
	msrv := metrics.StartMetricsServer(cfg.MetricsPort, log, func(hctx context.Context) error {
		if err := pg.PingContext(hctx); err != nil {
			return fmt.Errorf("postgres not healthy: %w", err)
		}
		if err := redisClient.Ping(hctx).Err(); err != nil {
			return fmt.Errorf("redis not healthy: %w", err)
		}
		return nil
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("ledger-server listening", zap.String("addr", srv.Addr), zap.String("paths", "/api,/ws"))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	_ = srv.Shutdown(shutdownCtx)
	_ = msrv.Shutdown(shutdownCtx)
	log.Info("ledger-server stopped")
}
