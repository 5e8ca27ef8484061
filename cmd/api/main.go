package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"geofleet/api/internal/clickhouse"
	"geofleet/api/internal/config"
	"geofleet/api/internal/db"
	"geofleet/api/internal/server"

	_ "geofleet/api/docs"
)

// @title GeoFleet API
// @version 1.0
// @description Geofence and rule management API for fleet accounts

// @host localhost:3000
// @BasePath /api/v1

func main() {
	log.Println("[API] Starting GeoFleet API Server...")

	cfg := config.Load()

	gormDB, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatalf("[API] Failed to connect to database: %v", err)
	}
	log.Println("[API] Connected to database")

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatalf("[API] Failed to migrate database: %v", err)
	}
	log.Println("[API] Database migrated")

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
		DB:   0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("[API] Failed to connect to Redis: %v", err)
	}
	log.Println("[API] Connected to Redis")
	defer redisClient.Close()

	natsConn, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		log.Fatalf("[API] Failed to connect to NATS: %v", err)
	}
	log.Println("[API] Connected to NATS")
	defer natsConn.Close()

	chClient, err := clickhouse.NewClient(cfg.ClickHouse)
	if err != nil {
		log.Fatalf("[API] Failed to connect to ClickHouse: %v", err)
	}
	if err := chClient.Ping(ctx); err != nil {
		log.Printf("[API] ClickHouse not reachable yet: %v", err)
	} else {
		log.Println("[API] Connected to ClickHouse")
	}

	srv := server.NewServer(cfg, gormDB, redisClient, natsConn, chClient)
	srv.Setup()

	addr := fmt.Sprintf(":%d", cfg.APIPort)
	go func() {
		if err := srv.Run(addr); err != nil {
			log.Fatalf("[API] Failed to start server: %v", err)
		}
	}()

	log.Printf("[API] Server ready on %s", addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	log.Println("[API] Shutting down...")

	srv.Shutdown()
	log.Println("[API] Server stopped")
}
