package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/voidcat/grant-discovery/internal/api"
	"github.com/voidcat/grant-discovery/internal/cache"
	"github.com/voidcat/grant-discovery/internal/db"
	"github.com/voidcat/grant-discovery/internal/pipeline"
	"github.com/voidcat/grant-discovery/internal/search"
	"github.com/voidcat/grant-discovery/internal/sources"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	reg, err := sources.LoadRegistry(os.Getenv("SOURCES_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load source registry: %v", err)
	}
	adapters, err := sources.BuildAdapters(reg)
	if err != nil {
		log.Fatalf("Failed to build source adapters: %v", err)
	}

	threshold := 1.0
	if v, err := strconv.ParseFloat(os.Getenv("DEDUP_THRESHOLD"), 64); err == nil {
		threshold = v
	}
	agg := pipeline.NewAggregator(adapters, pipeline.NewDeduplicator(threshold), 0)

	ttl := cache.DefaultTTL
	if v, err := strconv.Atoi(os.Getenv("CACHE_TTL_HOURS")); err == nil && v > 0 {
		ttl = time.Duration(v) * time.Hour
	}
	resultCache := cache.New(cache.DefaultCapacity, ttl)

	ctx := context.Background()

	// Postgres is optional: without it the service runs on live aggregation
	// plus cache only.
	var store *db.Store
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Printf("[server] no database: %v (persistent-store reads and ingestion disabled)", err)
	} else {
		defer pool.Close()
		if err := db.ApplyMigrations(ctx, pool); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		store = db.NewStore(pool)
	}

	svc := search.NewService(resultCache, agg, store)
	srv := api.NewServer(svc, reg)

	log.Printf("Server starting on port %s with %d sources...", port, len(adapters))
	if err := srv.Start(port); err != nil {
		log.Fatal(err)
	}
}
