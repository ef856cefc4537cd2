package main

import (
	"context"
	"log"
	"net/http"

	"github.com/antriq/api/internal/config"
	"github.com/antriq/api/internal/database"
	"github.com/antriq/api/internal/events"
	"github.com/antriq/api/internal/router"
	"github.com/antriq/api/internal/ws"
)

func main() {
	cfg := config.Load()

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	hub := ws.NewHub()
	go hub.Run()

	var pub *events.Publisher
	if cfg.AmqpURL != "" {
		pub, err = events.NewPublisher(cfg.AmqpURL)
		if err != nil {
			log.Fatalf("failed to connect to RabbitMQ: %v", err)
		}
		defer pub.Close()
	}
	fanout := events.NewFanout(hub, pub)

	r := router.New(cfg, pool, hub, fanout)

	log.Printf("server listening on port %s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
