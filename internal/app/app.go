package app

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"festival-stall/internal/common/config"
	"festival-stall/internal/common/httpx"
	"festival-stall/internal/common/idempotency"
	"festival-stall/internal/common/logger"
	"festival-stall/internal/common/tracing"
	"festival-stall/internal/connections/cache"
	"festival-stall/internal/connections/database"
	"festival-stall/internal/connections/rabbitmq"
	"festival-stall/internal/domain"
	orderhandlers "festival-stall/internal/microservices/order/handlers"
	orderservice "festival-stall/internal/microservices/order/service"
	"festival-stall/internal/microservices/realtime/broadcast"
	"festival-stall/internal/microservices/realtime/bus"
	"festival-stall/internal/microservices/realtime/registry"
	"festival-stall/internal/microservices/realtime/socket"
	stockhandlers "festival-stall/internal/microservices/stock/handlers"
	stockservice "festival-stall/internal/microservices/stock/service"
	"festival-stall/internal/repository"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// Run starts the stall server and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg config.App, lg *logger.Logger) error {
	tracing.UsePropagation()

	pool, err := database.Connect(ctx, cfg.Database, lg.Named("database"))
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	store := repository.NewPostgres(pool, cfg.Database.AcquireTimeout)

	reg := registry.NewMemoryRegistry()
	bc := broadcast.New(reg, broadcast.DefaultCatalog(), lg.Named("broadcast"))

	var pub domain.Publisher = bc
	checks := []healthCheck{{name: "postgres", ping: pool.Ping}}

	if cfg.Rabbit.Enabled() {
		rmq, err := rabbitmq.Dial(cfg.Rabbit)
		if err != nil {
			return fmt.Errorf("connect rabbitmq: %w", err)
		}
		defer rmq.Close()
		relay := bus.NewRelay(bc, rmq, cfg.Rabbit.Exchange, instanceID(cfg.Realtime), lg.Named("relay"))
		pub = relay
		checks = append(checks, healthCheck{name: "rabbitmq", ping: func(context.Context) error { return rmq.Ping() }})
		go func() {
			if err := relay.Run(ctx); err != nil {
				lg.Error("relay_stopped", err, nil)
			}
		}()
	} else {
		lg.Info("relay_disabled", map[string]any{"reason": "rabbitmq host not configured"})
	}

	var claims orderhandlers.KeyClaimer
	if cfg.Redis.Enabled() {
		rdb, err := cache.Connect(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer func() { _ = rdb.Close() }()
		claims = idempotency.NewStore(rdb, cfg.Redis.IdempotencyTTL)
		checks = append(checks, healthCheck{name: "redis", ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }})
	}

	ledger := stockservice.NewStockService(store, store, pub, lg.Named("stock"))
	orders := orderservice.NewOrderService(orderservice.Deps{
		Store:  store,
		Tx:     store,
		Stock:  ledger,
		Pub:    pub,
		Logger: lg.Named("orders"),
	})
	gateway := socket.NewGateway(socket.Deps{
		Registry:    reg,
		Broadcaster: bc,
		Publisher:   pub,
		Orders:      orders,
		Stock:       ledger,
		Logger:      lg.Named("socket"),
		Options: socket.Options{
			SendBuffer:   cfg.Realtime.SendBuffer,
			PingInterval: cfg.Realtime.PingInterval,
		},
	})
	defer gateway.Shutdown()

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Get("/healthz", health(checks))
	r.Handle("/ws", gateway)
	orderhandlers.New(orders, claims, lg.Named("orders")).Routes(r)
	stockhandlers.NewStockHandler(ledger, lg.Named("stock")).Routes(r)

	srv := httpx.New(cfg.HTTP.Addr, r, httpx.Options{
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	})
	lg.Info("service_started", map[string]any{
		"addr": cfg.HTTP.Addr, "relay": cfg.Rabbit.Enabled(), "idempotency": cfg.Redis.Enabled(),
	})
	return srv.Run(ctx)
}

type healthCheck struct {
	name string
	ping func(context.Context) error
}

func health(checks []healthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{}
		code := http.StatusOK
		for _, c := range checks {
			if err := c.ping(r.Context()); err != nil {
				status[c.name] = err.Error()
				code = http.StatusServiceUnavailable
				continue
			}
			status[c.name] = "ok"
		}
		httpx.WriteJSON(w, code, status)
	}
}

func instanceID(cfg config.Realtime) string {
	if cfg.InstanceID != "" {
		return cfg.InstanceID
	}
	if h, err := os.Hostname(); err == nil && h != "" {
		return h + "-" + uuid.NewString()[:8]
	}
	return uuid.NewString()
}
