package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/BrandonDHaskell/oretrack/internal/config"
	"github.com/BrandonDHaskell/oretrack/internal/db"
	"github.com/BrandonDHaskell/oretrack/internal/healthsrv"
	"github.com/BrandonDHaskell/oretrack/internal/httpapi"
	"github.com/BrandonDHaskell/oretrack/internal/ingest"
	"github.com/BrandonDHaskell/oretrack/internal/logging"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/service"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/store"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/store/memory"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/store/rediscache"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/store/sqlstore"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/types"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Env, cfg.LogLevel)
	logger.WithFields(logrus.Fields{"env": cfg.Env, "db": cfg.DBDriver}).Info("oretrack-server starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores
	fallback := memory.New()
	var primary store.RecordStore = fallback

	conn, dialect, err := db.Open(ctx, db.Config{
		Driver:   cfg.DBDriver,
		Path:     cfg.DBPath,
		URL:      cfg.DBURL,
		Env:      cfg.Env,
		MaxConns: cfg.DBMaxConns,
	})
	var svcFallback store.RecordStore
	if err != nil {
		logger.WithError(err).Warn("relational store unavailable, serving from memory")
		if cfg.SeedDev {
			_, _ = fallback.UpsertRecords(ctx, ingest.DevFixture())
		}
	} else {
		defer conn.Close()
		writer := db.NewWorker(conn)
		defer writer.Close()

		if cfg.SeedDev {
			n, err := db.SeedDev(ctx, conn, dialect, ingest.DevFixture())
			if err != nil {
				logger.WithError(err).Warn("dev seed failed")
			} else if n > 0 {
				logger.WithField("records", n).Info("seeded dev records")
			}
		}
		primary = sqlstore.New(conn, writer, dialect)
		svcFallback = fallback
		warmFallback(ctx, primary, fallback, logger)
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = rediscache.Dial(ctx, cfg.RedisAddr)
		if err != nil {
			logger.WithError(err).Warn("redis unavailable, distinct lists uncached")
		} else {
			defer rdb.Close()
			ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
			primary = rediscache.New(primary, rediscache.Redis{Client: rdb}, ttl, logger)
		}
	}

	var svcOpts []service.Option
	if cfg.Env == "dev" {
		svcOpts = append(svcOpts, service.WithFaultDetail())
	}
	svc := service.NewRecordService(primary, svcFallback, logger, svcOpts...)

	// HTTP
	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:      logger,
		Addr:        cfg.HTTPAddr,
		Env:         cfg.Env,
		Records:     svc,
		RateLimit:   cfg.RateLimit,
		RateBurst:   cfg.RateBurst,
		CORSOrigins: cfg.CORSOrigins,
	})

	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("http listening")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("http server error")
			stop()
		}
	}()

	// gRPC health
	var (
		health  *healthsrv.Server
		monitor *healthsrv.Monitor
	)
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			logger.WithError(err).Error("grpc listen failed")
			stop()
		} else {
			health = healthsrv.NewServer()
			monitor = healthsrv.NewMonitor(svc, health, healthsrv.MonitorConfig{
				Interval: time.Duration(cfg.HealthIntervalSeconds) * time.Second,
			}, logger)
			monitor.Start(ctx)

			go func() {
				logger.WithField("addr", cfg.GRPCAddr).Info("grpc health listening")
				if err := health.Serve(lis); err != nil {
					logger.WithError(err).Error("grpc server error")
				}
			}()
		}
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if monitor != nil {
		monitor.Stop()
	}
	if health != nil {
		health.Stop()
	}
}

// warmFallback copies the relational store into memory so a later outage
// still serves the last known records.
func warmFallback(ctx context.Context, from store.RecordStore, to *memory.Store, logger logrus.FieldLogger) {
	page := types.Page{Limit: types.MaxPageLimit}
	total := 0
	for {
		res, err := from.List(ctx, page)
		if err != nil {
			logger.WithError(err).Warn("fallback warm-up stopped")
			return
		}
		if _, err := to.UpsertRecords(ctx, res.Records); err != nil {
			return
		}
		total += len(res.Records)
		if !res.Pagination.HasMore || len(res.Records) == 0 {
			break
		}
		page.Offset += len(res.Records)
	}
	logger.WithField("records", total).Debug("fallback store warmed")
}
