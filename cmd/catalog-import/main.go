package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/fishnet/internal/domain/product"
	"github.com/xenking/fishnet/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	progressEvery = 100_000
	maxLineSize   = 1 << 20
)

// upserter stores a batch of species, replacing rows with the same
// scientific name.
type upserter interface {
	Upsert(ctx context.Context, ps []product.Product) error
}

func main() {
	var (
		dataDir     string
		databaseURL string
		expected    uint
		batchSize   int
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory with *.ndjson.gz species dumps, used when no files are given")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&expected, "expected", 1_000_000, "expected species per file, sizes the bloom filters")
	flag.IntVar(&batchSize, "batch", 500, "species per upsert batch")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	files := flag.Args()
	if len(files) == 0 {
		var err error
		if files, err = filepath.Glob(filepath.Join(dataDir, "*.ndjson.gz")); err != nil {
			slog.Error("list dumps", slog.String("error", err.Error()))
			os.Exit(1)
		}
		sort.Strings(files)
	}
	if len(files) == 0 {
		slog.Error("no species dumps found", slog.String("data_dir", dataDir))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, files, databaseURL, expected, batchSize); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

func run(ctx context.Context, files []string, databaseURL string, expected uint, batchSize int) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	imp := &importer{
		repo:     postgres.NewSpeciesRepository(pool),
		expected: expected,
		batch:    batchSize,
		now:      time.Now,
	}
	st, err := imp.Import(ctx, files)
	if err != nil {
		return err
	}

	slog.Info("import summary",
		slog.Int("read", st.read),
		slog.Int("imported", st.imported),
		slog.Int("duplicates", st.duplicates),
		slog.Int("invalid", st.invalid),
	)

	return nil
}

type stats struct {
	read       int
	imported   int
	duplicates int
	invalid    int
}

// importer loads species dumps in three passes. The first two build bloom
// filters to find scientific names that may occur more than once; only those
// suspects are tracked exactly during the final import, where the first
// occurrence in file order wins.
type importer struct {
	repo     upserter
	expected uint
	batch    int
	now      func() time.Time
}

// Import runs all passes over files and returns the counters.
func (imp *importer) Import(ctx context.Context, files []string) (stats, error) {
	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))

	filters, err := imp.buildFilters(ctx, files)
	if err != nil {
		return stats{}, errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: finding duplicate candidates")

	suspects, err := imp.findSuspects(ctx, files, filters)
	if err != nil {
		return stats{}, errors.Wrap(err, "find duplicate candidates")
	}

	slog.Info("pass 3: importing species", slog.Int("suspects", len(suspects)))

	return imp.load(ctx, files, suspects)
}

func (imp *importer) newFilter() *bloom.BloomFilter {
	return bloom.NewWithEstimates(max(imp.expected, 1), bloomFPR)
}

// buildFilters creates one bloom filter of scientific names per file,
// concurrently.
func (imp *importer) buildFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := imp.newFilter()
			var count int

			if err := streamDump(ctx, path, func(_ int, line []byte) error {
				if key, ok := dedupKey(line); ok {
					filter.AddString(key)
					count++
				}
				return nil
			}); err != nil {
				return errors.Wrapf(err, "build filter for file %d", i+1)
			}

			slog.Info("pass 1 complete", slog.Int("file", i+1), slog.Int("names", count))

			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// findSuspects re-streams each file and marks names that test positive in
// another file's filter or repeat within the same file.
func (imp *importer) findSuspects(ctx context.Context, files []string, filters []*bloom.BloomFilter) (map[string]struct{}, error) {
	results := make([]map[string]struct{}, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			seen := imp.newFilter()
			found := make(map[string]struct{})

			if err := streamDump(ctx, path, func(_ int, line []byte) error {
				key, ok := dedupKey(line)
				if !ok {
					return nil
				}
				if seen.TestAndAddString(key) {
					found[key] = struct{}{}
					return nil
				}
				for j, f := range filters {
					if j != i && f.TestString(key) {
						found[key] = struct{}{}
						break
					}
				}
				return nil
			}); err != nil {
				return errors.Wrapf(err, "scan file %d for duplicates", i+1)
			}

			slog.Info("pass 2 complete", slog.Int("file", i+1), slog.Int("suspects", len(found)))

			results[i] = found
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]struct{})
	for _, r := range results {
		for key := range r {
			merged[key] = struct{}{}
		}
	}
	return merged, nil
}

// load imports files in order, dropping exact repeats of suspect names.
func (imp *importer) load(ctx context.Context, files []string, suspects map[string]struct{}) (stats, error) {
	var st stats
	batch := make([]product.Product, 0, imp.batch)
	emitted := make(map[string]struct{}, len(suspects))

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := imp.repo.Upsert(ctx, batch); err != nil {
			return err
		}
		st.imported += len(batch)
		batch = batch[:0]
		return nil
	}

	for _, path := range files {
		err := streamDump(ctx, path, func(n int, line []byte) error {
			st.read++
			if st.read%progressEvery == 0 {
				slog.Info("pass 3 progress", slog.Int("read", st.read), slog.Int("imported", st.imported))
			}

			p, err := product.DecodeDocument(jx.DecodeBytes(line))
			if err == nil {
				err = p.Validate()
			}
			if err != nil {
				st.invalid++
				slog.Warn("skipping species",
					slog.String("file", path),
					slog.Int("line", n),
					slog.String("error", err.Error()),
				)
				return nil
			}

			if key := normalize(p.ScientificName); key != "" {
				if _, ok := suspects[key]; ok {
					if _, dup := emitted[key]; dup {
						st.duplicates++
						return nil
					}
					emitted[key] = struct{}{}
				}
			}

			if p.ID == "" {
				p.ID = uuid.NewString()
			}
			if p.CreatedAt.IsZero() {
				p.CreatedAt = imp.now().UTC()
			}
			batch = append(batch, p)
			if len(batch) >= imp.batch {
				return flush()
			}
			return nil
		})
		if err != nil {
			return st, errors.Wrapf(err, "import %s", path)
		}
	}

	if err := flush(); err != nil {
		return st, errors.Wrap(err, "import final batch")
	}
	return st, nil
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// dedupKey extracts the normalized scientific name of one dump line. Lines
// that do not decode and species without a scientific name have no key.
func dedupKey(line []byte) (string, bool) {
	p, err := product.DecodeDocument(jx.DecodeBytes(line))
	if err != nil {
		return "", false
	}
	key := normalize(p.ScientificName)
	return key, key != ""
}

// streamDump opens a gzipped NDJSON file and calls fn with each non-blank
// line and its 1-based number.
func streamDump(ctx context.Context, path string, fn func(n int, line []byte) error) error {
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
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var n int
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		n++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(n, line); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
