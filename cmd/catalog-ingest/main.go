// Command catalog-ingest bulk-loads supplier product feeds into the catalog.
// Feeds are gzip-compressed NDJSON files named feedN.ndjson.gz, one product
// per line. When the same SKU appears in multiple feeds the earliest feed
// wins; later occurrences are dropped.
//
// The run is two-pass: pass 1 builds a bloom filter of SKUs per feed
// concurrently, pass 2 streams the feeds in order and skips any SKU claimed
// by an earlier feed's filter. Bloom false positives can drop a legitimate
// product from a later feed; the rate is tuned low enough that this is
// acceptable for bulk ingest.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/repository"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.0001
	progressEvery = 100_000
)

const insertProductSQL = `INSERT INTO products (sku, name, description, price, category, image)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (sku) DO NOTHING`

type feedProduct struct {
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Image       string          `json:"image"`
}

func main() {
	var (
		dataDir     string
		numFeeds    int
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing feedN.ndjson.gz files")
	flag.IntVar(&numFeeds, "feeds", 3, "number of feed files to ingest")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, numFeeds, databaseURL); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataDir string, numFeeds int, databaseURL string) error {
	files := make([]string, numFeeds)
	for i := range numFeeds {
		files[i] = filepath.Join(dataDir, fmt.Sprintf("feed%d.ndjson.gz", i+1))
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	// Pass 1: build per-feed SKU bloom filters concurrently.
	slog.Info("pass 1: building sku filters", slog.Int("feeds", numFeeds))

	filters, err := buildSKUFilters(ctx, files)
	if err != nil {
		return errors.Wrap(err, "build sku filters")
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Pass 2: ingest feeds in order, earliest feed winning duplicate SKUs.
	slog.Info("pass 2: ingesting feeds")

	for i, f := range files {
		if err := ingestFeed(ctx, pool, i, f, filters); err != nil {
			return errors.Wrapf(err, "ingest feed %d", i+1)
		}
	}

	return nil
}

// buildSKUFilters creates one bloom filter per feed, concurrently.
func buildSKUFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(buildFilterForFeed(ctx, i, f, filters))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return filters, nil
}

func buildFilterForFeed(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter) func() error {
	return func() error {
		filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		var count uint64

		if err := streamFeed(ctx, path, func(p feedProduct) error {
			if p.SKU == "" {
				return nil
			}
			filter.AddString(p.SKU)
			count++
			if count%progressEvery == 0 {
				slog.Info("pass 1 progress",
					slog.Int("feed", idx+1),
					slog.Uint64("skus", count),
				)
			}
			return nil
		}); err != nil {
			return errors.Wrapf(err, "build filter for feed %d", idx+1)
		}

		slog.Info("pass 1 complete",
			slog.Int("feed", idx+1),
			slog.Uint64("total_skus", count),
		)

		filters[idx] = filter
		return nil
	}
}

// ingestFeed streams one feed into the catalog, skipping SKUs already claimed
// by an earlier feed.
func ingestFeed(ctx context.Context, pool *pgxpool.Pool, idx int, path string, filters []*bloom.BloomFilter) error {
	var inserted, skipped uint64

	if err := streamFeed(ctx, path, func(p feedProduct) error {
		if p.SKU == "" || p.Name == "" {
			skipped++
			return nil
		}

		for j := range idx {
			if filters[j].TestString(p.SKU) {
				skipped++
				return nil
			}
		}

		if _, err := pool.Exec(ctx, insertProductSQL,
			p.SKU, p.Name, p.Description, p.Price, p.Category, p.Image,
		); err != nil {
			return errors.Wrapf(err, "insert product %s", p.SKU)
		}

		inserted++
		if inserted%progressEvery == 0 {
			slog.Info("pass 2 progress",
				slog.Int("feed", idx+1),
				slog.Uint64("inserted", inserted),
			)
		}
		return nil
	}); err != nil {
		return err
	}

	slog.Info("pass 2 complete",
		slog.Int("feed", idx+1),
		slog.Uint64("inserted", inserted),
		slog.Uint64("skipped", skipped),
	)
	return nil
}

// streamFeed opens a gzip-compressed NDJSON file and calls fn for each line.
func streamFeed(ctx context.Context, path string, fn func(feedProduct) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var p feedProduct
		if err := json.Unmarshal(line, &p); err != nil {
			return errors.Wrapf(err, "parse feed line in %s", path)
		}
		if err := fn(p); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
