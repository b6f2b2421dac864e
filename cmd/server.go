package cmd

import (
	"catalog-validation/internal/delivery/http"
	"catalog-validation/internal/queue"
	"catalog-validation/internal/service"
	"catalog-validation/pkg/middleware"
	"context"
	"errors"
	"log"
	httpNet "net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var withWorker bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the validation API",
	Run:   Start,
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the validation queue worker",
	Run:   StartWorker,
}

func init() {
	startCmd.Flags().BoolVar(&withWorker, "with-worker", true, "Also consume the validation queue in this process")
}

func Start(cmd *cobra.Command, args []string) {
	// Create a context that is canceled on interrupt signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appDep, err := NewAppDependency(ctx)
	if err != nil {
		log.Fatalf("Failed to create app dependency: %v", err)
	}

	services, err := appDep.NewServices(ctx)
	if err != nil {
		log.Fatalf("Failed to create services: %v", err)
	}

	appDep.echo.HideBanner = true
	appDep.echo.Use(middleware.NewRateLimiterMiddleware(appDep.cfg.API.RequestsPerSecond, appDep.cfg.API.Burst))
	httpHandler := http.NewHttpAPIHandler(ctx, appDep.echo, appDep.validator, appDep.log, services)
	apiServer := NewHTTPServer(ctx, appDep, httpHandler)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := apiServer.Start(); err != nil && !errors.Is(err, httpNet.ErrServerClosed) {
			return err
		}
		return nil
	})
	if withWorker {
		runBackground(gctx, g, appDep, services)
	}

	// Wait for shutdown signal
	<-gctx.Done()
	log.Println("Shutting down gracefully...")

	if err := apiServer.Stop(); err != nil {
		log.Fatalf("Failed to stop HTTP server: %v", err)
	}
	if err := g.Wait(); err != nil {
		appDep.log.Error("Server exited with error", zap.Error(err))
	}

	if err := appDep.Close(); err != nil {
		log.Fatalf("Failed to close app dependency: %v", err)
	}
}

func StartWorker(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appDep, err := NewAppDependency(ctx)
	if err != nil {
		log.Fatalf("Failed to create app dependency: %v", err)
	}

	services, err := appDep.NewServices(ctx)
	if err != nil {
		log.Fatalf("Failed to create services: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	runBackground(gctx, g, appDep, services)

	if err := g.Wait(); err != nil {
		appDep.log.Error("Worker exited with error", zap.Error(err))
	}
	log.Println("Worker stopped")

	if err := appDep.Close(); err != nil {
		log.Fatalf("Failed to close app dependency: %v", err)
	}
}

// runBackground starts the queue worker and the stale job reaper.
func runBackground(ctx context.Context, g *errgroup.Group, appDep *AppDependency, services *service.Service) {
	worker := queue.NewWorker(appDep.queue, appDep.cfg.Queue.Name, appDep.cfg.Worker, appDep.log)
	worker.Register(service.JobRunValidation, services.JobExecutor.HandleJob)

	g.Go(func() error {
		return worker.Run(ctx)
	})
	g.Go(func() error {
		return services.Reaper.Run(ctx)
	})
}
