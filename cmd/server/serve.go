package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/Brownie44l1/eeg-api/internal/config"
	"github.com/Brownie44l1/eeg-api/internal/errors"
	"github.com/Brownie44l1/eeg-api/internal/handlers"
	"github.com/Brownie44l1/eeg-api/internal/logger"
	"github.com/Brownie44l1/eeg-api/internal/model"
	"github.com/Brownie44l1/eeg-api/internal/rank"
	"github.com/Brownie44l1/eeg-api/internal/session"
)

const shutdownTimeout = 10 * time.Second

var serveStub bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and WebSocket server",
	Long: `Start the classifier server. The model loads in the background; requests
made before it is ready get 503 and open sessions are classified once it is.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().String("model", "", "Path to the ONNX model")
	serveCmd.Flags().String("metadata", "", "Path to the model metadata JSON")
	serveCmd.Flags().BoolVar(&serveStub, "stub-model", false, "Serve uniform predictions instead of loading a model")
}

// newLoader returns the model loader for cfg. It has not been started.
func newLoader(cfg *config.Config, stub bool) *model.Loader {
	if stub {
		return model.Ready("stub", model.Uniform(cfg.Signal.Size, len(cfg.Labels)))
	}
	return model.NewLoader(cfg.Model.Path, func(ctx context.Context) (model.Classifier, error) {
		c, err := model.NewOnnxClassifier(cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}

func newPipeline(cfg *config.Config, stub bool) (*session.Pipeline, error) {
	ranker, err := rank.NewRanker(cfg)
	if err != nil {
		return nil, err
	}
	return session.NewPipeline(cfg, newLoader(cfg, stub), ranker), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.ComponentLogger("server")

	pipeline, err := newPipeline(cfg, serveStub)
	if err != nil {
		return err
	}
	loader := pipeline.Loader()
	defer loader.Close()

	store := session.NewStore(pipeline)
	defer store.Close()
	store.StartReaper(cfg.Server.SessionTTL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infow("Loading model",
		logger.FieldModel, cfg.Model.Path,
		"metadata", cfg.Model.MetadataPath,
		"stub", serveStub,
	)
	loader.Start(context.Background())

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           handlers.NewHandler(store).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Infow("Server starting",
			logger.FieldPort, cfg.Server.Port,
			"classes", cfg.Labels,
		)
		errChan <- srv.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "server failed")
	case <-ctx.Done():
		pterm.Info.Println("Shutting down gracefully...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	pterm.Success.Println("Server stopped cleanly")
	return nil
}
