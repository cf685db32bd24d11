package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quinticechen/alchemist-resume-sub001/internal/config"
	"github.com/quinticechen/alchemist-resume-sub001/internal/store/postgres"
	"github.com/quinticechen/alchemist-resume-sub001/internal/worker"
)

func main() {
	cfg := config.Load()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	st := postgres.NewStore(pool)
	w := worker.New(st, worker.Config{
		BatchSize:     cfg.BatchSize,
		EmailProvider: cfg.EmailProvider,
		MaxAttempts:   cfg.NotifyMaxAttempts,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Start(ctx, cfg.PollInterval, w)
	log.Printf("notification worker polling every %s", cfg.PollInterval)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
}
