package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"quiz-commit-service/internal/app"
	"quiz-commit-service/internal/config"
	"quiz-commit-service/internal/logger"
	transport "quiz-commit-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	d, err := openDeps(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer d.Close()

	quizRepo, err := newQuizRepository(cfg, d)
	if err != nil {
		return err
	}
	service := app.NewSessionService(newSessionStore(cfg, d), quizRepo, d.commit, app.SessionOptions{
		TickInterval: config.TTLDuration(cfg.Session.Tick, time.Second),
		Logger:       log,
	})
	wsHandler := transport.NewWSHandler(service, log)

	reconcileCtx, stopReconcile := context.WithCancel(ctx)
	reconcileDone := startReconciler(reconcileCtx, cfg, d.commit, log)
	defer func() {
		stopReconcile()
		<-reconcileDone
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.WithField("port", finalPort).Info("starting quiz commit service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server...")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// startReconciler runs the periodic backend retry for pending commitments.
// The returned channel closes once the loop has exited.
func startReconciler(ctx context.Context, cfg config.Config, commit *app.CommitProtocol, log logrus.FieldLogger) <-chan struct{} {
	done := make(chan struct{})
	interval := config.TTLDuration(cfg.Ledger.ReconcileInterval, time.Minute)
	if interval <= 0 {
		log.Info("background reconcile disabled")
		close(done)
		return done
	}
	limit := cfg.Ledger.ReconcileLimit
	if limit <= 0 {
		limit = 100
	}
	log.WithFields(logrus.Fields{"interval": interval, "limit": limit}).Info("starting background reconcile")
	go func() {
		defer close(done)
		commit.RunReconciler(ctx, interval, limit)
	}()
	return done
}
