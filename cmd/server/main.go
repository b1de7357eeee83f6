package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/Relay/internal/adapters/auth"
	router "github.com/dkeye/Relay/internal/adapters/http"
	"github.com/dkeye/Relay/internal/adapters/mongo"
	ws "github.com/dkeye/Relay/internal/adapters/signal"
	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/app/feed"
	"github.com/dkeye/Relay/internal/app/orch"
	"github.com/dkeye/Relay/internal/config"
)

func main() {
	if err := run(); err != nil {
		log.Error().Err(err).Msg("relay stopped")
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	client, err := mongo.Connect(ctx, cfg.Mongo.URI, cfg.StoreTimeout)
	if err != nil {
		return err
	}
	defer func() {
		dctx, dcancel := context.WithTimeout(context.Background(), cfg.StoreTimeout)
		defer dcancel()
		if err := client.Disconnect(dctx); err != nil {
			log.Error().Err(err).Msg("mongo disconnect")
		}
	}()
	db := client.Database(cfg.Mongo.Database)

	rooms := app.NewRoomIndex()
	reg := app.NewRegistry(rooms)
	out := app.NewBroadcaster(reg, app.PolicyFor(cfg.SlowConsumer))
	users := mongo.NewUsers(db, cfg.Mongo.UsersCollection)
	presence := app.NewPresenceTracker(users, out, cfg.StoreTimeout)
	o := orch.New(reg, presence, out, users, mongo.NewMessages(db, cfg.Mongo.MessagesCollection), cfg.StoreTimeout)

	bridge := feed.New(mongo.NewFeed(db), out, feed.DefaultRules(cfg.Mongo.RoomsCollection, cfg.Mongo.UsersCollection))

	ctrl := ws.NewSignalWSController(o, ws.Options{
		ReadLimit:    cfg.ReadLimit,
		PingPeriod:   cfg.PingPeriod,
		PongWait:     cfg.PongWait,
		WriteWait:    cfg.WriteWait,
		SendBuffer:   cfg.SendBuffer,
		RateLimit:    cfg.RateLimit.Messages,
		RateInterval: cfg.RateLimit.Interval,
	})

	var verifier router.TokenVerifier
	if cfg.Auth.Secret != "" {
		verifier = auth.NewVerifier(cfg.Auth.Secret, cfg.Auth.Issuer)
	} else {
		log.Warn().Msg("auth.secret is empty, tokens are not verified")
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router.SetupRouter(ctx, cfg, ctrl, reg, verifier),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Relay server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return bridge.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		sctx, scancel := context.WithTimeout(context.Background(), cfg.ShutdownWait)
		defer scancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		log.Info().Int("connections", reg.CloseAll()).Msg("closed live connections")
		if err := o.Wait(sctx); err != nil {
			log.Warn().Err(err).Msg("pending writes abandoned")
		}
		return nil
	})

	err = g.Wait()
	log.Info().Msg("Server exited")
	return err
}
