package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/dealwatch/config"
	"github.com/mohammad-safakhou/dealwatch/internal/ingest"
	"github.com/mohammad-safakhou/dealwatch/internal/registry"
	"github.com/mohammad-safakhou/dealwatch/internal/transfer"
)

// Run wires every component and serves until the listener fails: the
// transfer endpoint on /ws, the session janitor, the ingest loop, the
// optional retention sweeper and the read-only product API.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Debug = cfg.General.Debug
	e.Use(middleware.Recover())
	if cfg.General.Verbose() {
		e.Use(middleware.Logger())
	}

	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	st := registry.New(cfg.Registry.Path, cfg.Registry.HistoryCap)

	var dedup transfer.DedupSet
	if cfg.Storage.Redis.Enabled {
		dedup = transfer.NewRedisDedup(cfg.Storage.Redis.Addr(), cfg.Storage.Redis.Password, cfg.Storage.Redis.DB)
	}
	xfer := transfer.NewServer(transfer.Config{
		InboxDir:     cfg.Storage.InboxDir,
		ProductDir:   cfg.Storage.ProductDir,
		AckEvery:     cfg.Transfer.AckEvery,
		SessionTTL:   cfg.Transfer.SessionTTL,
		HandleParsed: cfg.Transfer.HandleParsed,
	}, dedup)
	e.GET("/ws", xfer.HandleWS)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go xfer.Sessions().Janitor(ctx, cfg.Transfer.JanitorInterval)

	loop := ingest.New(ingest.Config{
		WatchDir:      cfg.Ingest.WatchDir,
		QuarantineDir: cfg.Ingest.QuarantineDir,
		SummaryPath:   cfg.Ingest.SummaryPath,
		Interval:      cfg.Ingest.Interval,
	}, ingest.JSONRowsParser{}, st)
	go func() { _ = loop.Run(ctx) }()

	if cfg.Registry.Retention.Enabled {
		var rdb *redis.Client
		if cfg.Storage.Redis.Enabled {
			rdb = redis.NewClient(&redis.Options{
				Addr:     cfg.Storage.Redis.Addr(),
				Password: cfg.Storage.Redis.Password,
				DB:       cfg.Storage.Redis.DB,
			})
		}
		sweeper := &Sweeper{
			Store:    st,
			MaxAge:   cfg.Registry.Retention.MaxAge,
			Schedule: cfg.Registry.Retention.Schedule,
			Rdb:      rdb,
		}
		go sweeper.Run(ctx)
	}

	ph := &ProductsHandler{Store: st}
	ph.Register(e.Group("/api/products"))

	log.Printf("listening on %s", cfg.Server.Address)
	return e.Start(cfg.Server.Address)
}
