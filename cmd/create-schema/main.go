package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"corep-assistant/config"
	"corep-assistant/corpus"
	"corep-assistant/repository"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	seed := flag.Bool("seed", true, "replace the table contents with the corpus")
	corpusPath := flag.String("corpus", "", "JSON corpus to seed from (defaults to the built-in corpus)")
	flag.Parse()

	config.LoadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	path := *corpusPath
	if path == "" {
		path = cfg.CorpusPath
	}
	if err := run(context.Background(), cfg.DatabaseURL, path, *seed); err != nil {
		log.Fatal(err)
	}
}

// run holds every deferred cleanup so log.Fatal in main never skips it
func run(ctx context.Context, databaseURL, corpusPath string, seed bool) error {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	repo := repository.NewRegulatoryChunkRepository(pool)
	if err := repo.CreateSchema(ctx); err != nil {
		return fmt.Errorf("failed to create regulatory_chunks table: %w", err)
	}
	log.Println("✓ Created regulatory_chunks table")

	if !seed {
		return nil
	}

	var c *corpus.Corpus
	if corpusPath == "" {
		c, err = corpus.Default()
	} else {
		c, err = corpus.LoadFile(corpusPath)
	}
	if err != nil {
		return fmt.Errorf("failed to load corpus: %w", err)
	}

	if err := repo.ReplaceAll(ctx, c.Chunks()); err != nil {
		return fmt.Errorf("failed to seed regulatory_chunks: %w", err)
	}
	n, err := repo.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count regulatory_chunks: %w", err)
	}

	fmt.Println("\n✅ Database schema created successfully!")
	fmt.Println("   Table: regulatory_chunks")
	fmt.Printf("   Rows: %d\n", n)
	return nil
}
