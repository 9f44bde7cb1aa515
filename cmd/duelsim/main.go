// Command duelsim runs a local stand-in for the platform gateway: GraphQL
// user lookup and duel requests plus the notification and duel sockets.
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

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/w1sec0d/courseclash-duels/internal/config"
	"github.com/w1sec0d/courseclash-duels/internal/logging"
	"github.com/w1sec0d/courseclash-duels/internal/sim/httpapi"
	"github.com/w1sec0d/courseclash-duels/internal/sim/hub"
	"github.com/w1sec0d/courseclash-duels/internal/sim/questions"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "duelsim:", err)
		os.Exit(1)
	}
}

func run() error {
	v, err := config.Load()
	if err != nil {
		return err
	}
	conf, err := config.Decode(v)
	if err != nil {
		return err
	}
	log, err := logging.New(conf.Debug)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bank, closeBank, err := openBank(ctx, conf.Sim, log)
	if err != nil {
		return err
	}
	defer closeBank()

	h := hub.NewHub(ctx, log.Named("hub"))

	var origins []string
	if conf.Env == "dev" {
		origins = []string{"localhost:*", "127.0.0.1:*"}
	}
	server := &http.Server{
		Addr: conf.Sim.Addr,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Hub:              h,
			Bank:             bank,
			QuestionsPerDuel: conf.Sim.QuestionsPerDuel,
			TimeLimit:        conf.Sim.TimeLimit,
			OriginPatterns:   origins,
			Logger:           log,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", conf.Sim.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(sctx); err != nil {
			log.Error("could not stop server gracefully", zap.Error(err))
			return server.Close()
		}
		return nil
	})
	return g.Wait()
}

// openBank uses Postgres when a DSN is configured and the built-in
// questions otherwise.
func openBank(ctx context.Context, conf config.Sim, log *zap.Logger) (questions.Bank, func(), error) {
	if conf.DatabaseDSN == "" {
		log.Info("using built-in question bank")
		return questions.NewStaticBank(), func() {}, nil
	}
	pg, err := questions.OpenPostgres(conf.DatabaseDSN, log)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.Seed(ctx, questions.Builtin()); err != nil {
		_ = pg.Close()
		return nil, nil, err
	}
	log.Info("using postgres question bank")
	return pg, func() { _ = pg.Close() }, nil
}
