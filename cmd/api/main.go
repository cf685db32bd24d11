package main

import (
	"context"
	"expvar"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/quinticechen/alchemist-resume-sub001/internal/analysis"
	"github.com/quinticechen/alchemist-resume-sub001/internal/billing"
	"github.com/quinticechen/alchemist-resume-sub001/internal/broker"
	"github.com/quinticechen/alchemist-resume-sub001/internal/config"
	"github.com/quinticechen/alchemist-resume-sub001/internal/httpapi"
	"github.com/quinticechen/alchemist-resume-sub001/internal/objstore"
	"github.com/quinticechen/alchemist-resume-sub001/internal/retry"
	"github.com/quinticechen/alchemist-resume-sub001/internal/store/postgres"
	"github.com/quinticechen/alchemist-resume-sub001/internal/telemetry"
	"github.com/quinticechen/alchemist-resume-sub001/internal/upload"
)

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("api")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	st := postgres.NewStore(pool)

	storage, err := objstore.New(context.Background(), objstore.Config{
		AccountID:     cfg.StorageAccountID,
		Bucket:        cfg.StorageBucket,
		AccessKey:     cfg.StorageAccessKey,
		SecretKey:     cfg.StorageSecretKey,
		PublicBaseURL: cfg.StoragePublicURL,
	})
	if err != nil {
		log.Fatalf("object storage: %v", err)
	}

	publisher, err := broker.NewPublisher(cfg.BrokerURL)
	if err != nil {
		log.Fatalf("broker connect: %v", err)
	}
	defer publisher.Close()

	uploader := upload.NewCoordinator(storage, st, retry.Policy{
		MaxAttempts: cfg.UploadMaxRetries + 1,
		Delay:       cfg.UploadRetryDelay,
	}, nil)
	dispatcher := analysis.NewDispatcher(cfg.AnalysisWebhookURL, cfg.AnalysisWebhookToken, storage, st, publisher)
	billingClient := billing.NewClient(cfg.PaymentBaseURL, cfg.PaymentAPIKey)

	handler := httpapi.NewHandler(st, uploader, dispatcher, billingClient, publisher, httpapi.Options{
		CallbackToken:  cfg.AnalysisWebhookToken,
		StorageBaseURL: cfg.StoragePublicURL,
		SuccessURL:     cfg.CheckoutSuccessURL,
		CancelURL:      cfg.CheckoutCancelURL,
	})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		PerMinute: cfg.RateLimitPerMinute,
		Burst:     cfg.RateLimitBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.Handle("/", httpapi.LocaleMiddleware(httpapi.AuthMiddleware(st, handler.Routes())))

	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(mux)), "api")
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("api listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
