package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/voidcat/grant-discovery/internal/cache"
	"github.com/voidcat/grant-discovery/internal/db"
	"github.com/voidcat/grant-discovery/internal/pipeline"
	"github.com/voidcat/grant-discovery/internal/search"
	"github.com/voidcat/grant-discovery/internal/sources"
)

func main() {
	keywords := flag.String("keywords", "", "Comma-separated search keywords (empty fetches default listings)")
	threshold := flag.Float64("threshold", 1.0, "Dedup similarity threshold (1.0 = exact title+issuer match)")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall ingestion timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()
	store := db.NewStore(pool)

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	reg, err := sources.LoadRegistry(os.Getenv("SOURCES_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load source registry: %v", err)
	}
	adapters, err := sources.BuildAdapters(reg)
	if err != nil {
		log.Fatalf("Failed to build source adapters: %v", err)
	}

	agg := pipeline.NewAggregator(adapters, pipeline.NewDeduplicator(*threshold), 0)
	svc := search.NewService(cache.New(cache.DefaultCapacity, cache.DefaultTTL), agg, store)

	var q sources.Query
	for _, k := range strings.Split(*keywords, ",") {
		if k = strings.TrimSpace(k); k != "" {
			q.Keywords = append(q.Keywords, k)
		}
	}

	log.Printf("Starting ingestion across %d sources...", len(adapters))
	summary, err := svc.Ingest(ctx, q)
	if err != nil {
		log.Fatalf("Ingestion failed: %v", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Source", "Status", "Records", "Duration", "Error"})
	for _, o := range summary.Outcomes {
		status := "ok"
		if !o.OK {
			status = "failed"
		}
		t.AppendRow(table.Row{o.Source, status, o.Records, o.Duration.Round(time.Millisecond), o.Error})
	}
	t.AppendFooter(table.Row{"total", "", summary.Fetched, summary.Duration.Round(time.Millisecond), ""})
	t.Render()

	log.Printf("Ingestion finished. Fetched (deduplicated): %d, Upserted: %d", summary.Fetched, summary.Upserted)

	if total, err := store.Count(ctx); err == nil {
		names, _ := store.Sources(ctx)
		log.Printf("Snapshot now holds %d records from %s", total, strings.Join(names, ", "))
	}
}
