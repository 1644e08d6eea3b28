package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/wolfman30/clinic-intake/cmd/mainconfig"
	"github.com/wolfman30/clinic-intake/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinic-intake/internal/config"
	"github.com/wolfman30/clinic-intake/internal/notify"
	"github.com/wolfman30/clinic-intake/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-intake API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool != nil {
		defer pool.Close()
	}

	clients, err := buildClients(ctx, cfg, pool, logger)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	app, err := bootstrap.BuildApp(cfg, bootstrap.Deps{
		Clients: clients,
		Redis:   redisClient,
		Done:    ctx.Done(),
	}, logger)
	if err != nil {
		logger.Error("failed to build intake service", "error", err)
		os.Exit(1)
	}

	go app.Sessions.Run(ctx, cfg.SessionSweepInterval)

	// Inference calls can take minutes, so writes get the full retry budget.
	writeTimeout := cfg.InferenceTimeout*time.Duration(cfg.InferenceMaxRetries+1) + 30*time.Second
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// connectPostgresPool returns nil when no database is configured or reachable;
// the Postgres ledger is then skipped.
func connectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if strings.TrimSpace(databaseURL) == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Error("postgres not reachable, appointment table disabled", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

// buildClients creates only the AWS clients the configuration asks for.
func buildClients(ctx context.Context, cfg *appconfig.Config, pool *pgxpool.Pool, logger *logging.Logger) (bootstrap.Clients, error) {
	clients := bootstrap.Clients{Postgres: pool}
	wantS3 := strings.TrimSpace(cfg.LedgerS3Bucket) != ""
	wantDynamo := strings.TrimSpace(cfg.LedgerDynamoTable) != ""
	wantSQS := strings.TrimSpace(cfg.BookingEventsQueueURL) != ""
	wantSES := wantsSES(cfg)
	if !wantS3 && !wantDynamo && !wantSQS && !wantSES {
		return clients, nil
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return clients, err
	}
	localstack := strings.TrimSpace(cfg.AWSEndpointOverride) != ""

	if wantS3 {
		clients.S3 = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.UsePathStyle = localstack
		})
	}
	if wantDynamo {
		clients.Dynamo = dynamodb.NewFromConfig(awsCfg)
	}
	if wantSQS {
		clients.SQS = sqs.NewFromConfig(awsCfg)
	}
	if wantSES {
		clients.SES = sesv2.NewFromConfig(awsCfg)
	}
	logger.Info("aws clients configured",
		"region", awsCfg.Region,
		"endpoint_override", cfg.AWSEndpointOverride,
		"s3", wantS3, "dynamodb", wantDynamo, "sqs", wantSQS, "ses", wantSES,
	)
	return clients, nil
}

func wantsSES(cfg *appconfig.Config) bool {
	if strings.TrimSpace(cfg.EmailFromAddress) == "" {
		return false
	}
	switch cfg.EmailProvider {
	case notify.ProviderSES:
		return true
	case "", notify.ProviderAuto:
		return strings.TrimSpace(cfg.SendGridAPIKey) == ""
	default:
		return false
	}
}
