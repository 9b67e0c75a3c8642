package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"roomledger.org/internal/auth"
	"roomledger.org/internal/booking"
	"roomledger.org/internal/config"
	"roomledger.org/internal/httpapi"
	"roomledger.org/internal/ledger"
	"roomledger.org/internal/notify"
	"roomledger.org/internal/obs"
	"roomledger.org/internal/store/pg"
	"roomledger.org/internal/stream"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := run(); err != nil {
		obs.Logger().WithError(err).Fatal("roomledger-api stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logFile, err := obs.ConfigureOutput(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logFile.Close()
	log := obs.Logger()

	obs.Init()
	obs.InitBuildInfo(version, commit)
	auth.Configure(cfg.AuthSecret)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Funds and users live in Postgres when a DSN is configured.
	var (
		funds ledger.Service = ledger.NewInMemory()
		users auth.UserStore = auth.NewMemoryUsers()
		db    *sql.DB
	)
	if cfg.PGDSN != "" {
		store, err := pg.Open(cfg.PGDSN)
		if err != nil {
			return err
		}
		defer store.Close()
		db = store.DB()
		funds = store
		users = auth.NewPGUsers(db)
		log.Info("using postgres ledger")
	}

	rail, err := booking.NewLedgerFunds(funds, cfg.Currency)
	if err != nil {
		return err
	}

	hub := stream.New(64)
	notifiers := notify.Multi{hub, obs.Notifier{}}
	if cfg.AMQPURL != "" {
		amqpPub := notify.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		defer amqpPub.Close()
		async := notify.NewAsync(amqpPub, 0)
		defer async.Close()
		notifiers = append(notifiers, async)
		log.WithField("exchange", cfg.AMQPExchange).Info("publishing events to amqp")
	}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
		})
		defer client.Close()
		async := notify.NewAsync(notify.NewRedisPublisher(client, cfg.RedisChannel), 0)
		defer async.Close()
		notifiers = append(notifiers, async)
		log.WithField("channel", cfg.RedisChannel).Info("publishing events to redis")
	}

	registry, err := booking.NewRegistry(rail, booking.WithNotifier(notifiers))
	if err != nil {
		return err
	}

	directory := auth.NewDirectory(users, cfg.TokenTTL)
	if cfg.AdminUser != "" {
		_, err := directory.Register(ctx, cfg.AdminUser, cfg.AdminPassword, []string{auth.RoleAdmin})
		switch {
		case err == nil:
			log.WithField("user", cfg.AdminUser).Info("admin user created")
		case errors.Is(err, auth.ErrAlreadyExists):
		default:
			return err
		}
	}

	probe := httpapi.ReadyProbe{DB: db}
	api := httpapi.New(httpapi.Options{
		Bookings:   registry,
		Ledger:     funds,
		Currency:   rail.Currency(),
		Directory:  directory,
		Stream:     hub,
		Ready:      probe,
		Version:    version,
		RateBurst:  cfg.RateBurst,
		RatePerSec: cfg.RatePerSec,
		MaxBody:    cfg.MaxBody,
		Origins:    cfg.Origins,
	})

	// No WriteTimeout: /v1/events holds the response open until shutdown
	// closes the hub.
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	srv.RegisterOnShutdown(hub.Close)

	errCh := make(chan error, 2)
	go func() {
		log.WithFields(logrus.Fields{"addr": srv.Addr, "version": version}).Info("starting roomledger-api")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		health := httpapi.NewHealthServer(probe)
		grpcSrv = grpc.NewServer()
		healthpb.RegisterHealthServer(grpcSrv, health)
		go health.Run(ctx, 5*time.Second)
		go func() {
			log.WithField("addr", cfg.GRPCAddr).Info("starting grpc health")
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	stop()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if grpcSrv != nil {
		// Health watchers never finish on their own.
		grpcSrv.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	log.Info("stopped")
	return runErr
}
