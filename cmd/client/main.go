package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/skirmish-client/internal/config"
	"github.com/DoyleJ11/skirmish-client/internal/httpapi"
	"github.com/DoyleJ11/skirmish-client/internal/hub"
	"github.com/DoyleJ11/skirmish-client/internal/logging"
	"github.com/DoyleJ11/skirmish-client/internal/session"
	"github.com/DoyleJ11/skirmish-client/internal/transport"
	"github.com/DoyleJ11/skirmish-client/internal/types"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		config.Exitf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		config.Exitf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("client stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) (err error) {
	h := hub.NewHub(context.Background(), logger)
	defer func() {
		reply := make(chan error, 1)
		h.Inbox() <- hub.ShutdownHub{Reply: reply}
		select {
		case shutdownErr := <-reply:
			if !errors.Is(shutdownErr, transport.ErrConnectionLost) {
				err = multierr.Append(err, shutdownErr)
			}
		case <-time.After(5 * time.Second):
			logger.Warn("hub shutdown timed out")
		}
	}()

	client, err := transport.Dial(ctx, cfg.ServerURL, cfg.Room, transport.Options{
		WriteTimeout: cfg.WriteTimeout,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	reply := make(chan *session.Session, 1)
	h.Inbox() <- hub.CreateSession{
		Room:      cfg.Room,
		Transport: client,
		Config: session.Config{
			User:         cfg.User,
			GameMaster:   cfg.GameMaster,
			Cooldown:     cfg.MoveCooldown,
			LogRetention: cfg.LogRetention,
			Logger:       logger,
		},
		Reply: reply,
	}
	s := <-reply

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.SetupRoutes(h, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := client.Run(gctx, func(ev types.Inbound) {
			_ = s.Send(gctx, session.FromServer{Event: ev})
		})
		if err != nil {
			_ = s.Send(context.Background(), session.ConnectionLost{Err: err})
		}
		return err
	})
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("room", cfg.Room))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-s.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Close()
		return multierr.Append(s.Err(), srv.Shutdown(shutdownCtx))
	})
	return g.Wait()
}
