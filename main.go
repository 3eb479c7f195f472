package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"jimgabang/auth"
	"jimgabang/config"
	"jimgabang/db"
	"jimgabang/logging"
	"jimgabang/middleware"
	"jimgabang/models"
	"jimgabang/ratelim"
	"jimgabang/reservations"
	"jimgabang/routes"
	"jimgabang/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
	log.Info("server stopped cleanly")
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx := context.Background()

	var (
		stores  db.Stores
		closeDB = func(context.Context) error { return nil }
	)
	if cfg.InMemory() {
		log.Warn("using in-memory document store; data is lost on exit")
		stores = db.MemoryStores()
	} else {
		conn, err := db.Connect(ctx, cfg.DatabaseURL, cfg.Database())
		if err != nil {
			return err
		}
		if err := conn.EnsureIndexes(ctx); err != nil {
			conn.Close(ctx)
			return err
		}
		log.Info("connected to mongodb", zap.String("database", cfg.Database()))
		stores, closeDB = conn.Stores(), conn.Close
	}

	revoker, closeRevoker, err := newRevoker(ctx, cfg, log)
	if err != nil {
		closeDB(ctx)
		return err
	}

	ttl := auth.WithTTL(cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	hostVerifier := auth.NewVerifier[models.Host](auth.NewTokenCodec(cfg.SecretKey, auth.KindHost, ttl), revoker, stores.Hosts)
	clientVerifier := auth.NewVerifier[models.Client](auth.NewTokenCodec(cfg.SecretKey, auth.KindClient, ttl), revoker, stores.Clients)

	hub := reservations.NewHub(cfg.AllowedOrigins, log.Named("live"))
	router := routes.New(routes.Deps{
		Hosts:      users.New[models.Host, models.HostUpdate](stores.Hosts, hostVerifier, log),
		Clients:    users.New[models.Client, models.ClientUpdate](stores.Clients, clientVerifier, log),
		HostAuth:   middleware.NewAuthenticator(hostVerifier, log).Require,
		ClientAuth: middleware.NewAuthenticator(clientVerifier, log).Require,
		Reservations: reservations.New(stores.Services, stores.Bookings, hub,
			reservations.NewReceiptSigner(cfg.ReceiptSecret), log.Named("reservations")),
		RateLimiter: ratelim.NewRateLimiter(cfg.RateLimitPerMinute, 5, log),
		AdminToken:  cfg.AdminToken,
		Log:         log,
	})
	if cfg.AdminToken != "" {
		log.Info("operator routes enabled")
	}

	// CORS → security headers → recover → request log → router
	handler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", middleware.RefreshHeader, middleware.AdminHeader, middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.AccessHeader, middleware.RequestIDHeader},
		AllowCredentials: true,
	}).Handler(middleware.SecurityHeaders(middleware.Recover(log)(middleware.RequestLogger(log)(router))))

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadTimeout:       7 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}
	server.RegisterOnShutdown(hub.Close)

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	if err := closeRevoker(); err != nil {
		log.Warn("closing redis", zap.Error(err))
	}
	return closeDB(shutdownCtx)
}

// newRevoker returns a Redis revoker when REDIS_ADDR is set and an
// in-process one otherwise.
func newRevoker(ctx context.Context, cfg config.Config, log *zap.Logger) (auth.Revoker, func() error, error) {
	if cfg.RedisAddr == "" {
		log.Info("refresh token revocation kept in process")
		return auth.NewMemoryRevoker(), func() error { return nil }, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	log.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	return auth.NewRedisRevoker(rdb), rdb.Close, nil
}
