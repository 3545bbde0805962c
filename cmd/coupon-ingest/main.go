// Command coupon-ingest imports partner coupon lists into the coupon table.
//
// Every input is a gzip file with one coupon per line:
//
//	CODE[,percentage|fixed,VALUE[,MIN_ORDER_VALUE]]
//
// A code is imported only when at least --min-files inputs list it. Each
// file is first summarized in a bloom filter; the second pass keeps the
// codes other filters also report and an exact merge drops false positives.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/pizza-kart/internal/domain/coupon"
	"github.com/xenking/pizza-kart/internal/storage/postgres"
)

const (
	progressEvery = 1_000_000
	minCodeLen    = 3
	maxCodeLen    = 32
	maxFiles      = 64
)

var defaultRule = rule{
	Type:  coupon.DiscountPercentage,
	Value: decimal.NewFromInt(10),
}

// rule is the discount a line assigns to its code.
type rule struct {
	Type          coupon.DiscountType
	Value         decimal.Decimal
	MinOrderValue *decimal.Decimal
}

// ingestConfig tunes the filters and the acceptance threshold.
type ingestConfig struct {
	MinFiles int
	Capacity uint
	FPR      float64
}

// fileResult holds the candidate codes of one file after pass 2, with the
// rule that file assigned to each.
type fileResult struct {
	candidates map[string]uint
	rules      map[string]rule
}

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
		cfg         ingestConfig
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing the gzip coupon lists")
	flag.StringVar(&pattern, "pattern", "*.gz", "glob selecting the coupon lists inside data-dir")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&cfg.MinFiles, "min-files", 2, "number of lists a code must appear in")
	flag.UintVar(&cfg.Capacity, "capacity", 10_000_000, "expected codes per list, sizes the bloom filters")
	flag.Float64Var(&cfg.FPR, "fpr", 0.001, "bloom filter false positive rate")
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

	if err := run(ctx, dataDir, pattern, databaseURL, cfg); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, dataDir, pattern, databaseURL string, cfg ingestConfig) error {
	files, err := filepath.Glob(filepath.Join(dataDir, pattern))
	if err != nil {
		return errors.Wrap(err, "list coupon files")
	}
	sort.Strings(files)

	accepted, err := collect(ctx, files, cfg)
	if err != nil {
		return err
	}
	slog.Info("accepted codes", slog.Int("count", len(accepted)))

	if len(accepted) == 0 {
		slog.Info("no codes to import")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return writeCoupons(ctx, postgres.NewCouponRepository(pool), accepted)
}

// collect runs both passes and returns the accepted coupons sorted by name.
func collect(ctx context.Context, files []string, cfg ingestConfig) ([]coupon.Coupon, error) {
	switch {
	case len(files) == 0:
		return nil, errors.New("no coupon files found")
	case len(files) > maxFiles:
		return nil, errors.Errorf("too many coupon files: %d > %d", len(files), maxFiles)
	case cfg.MinFiles < 1 || cfg.MinFiles > len(files):
		return nil, errors.Errorf("min-files must be in [1, %d]", len(files))
	}

	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))

	filters, err := buildBloomFilters(ctx, files, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: finding candidate codes")

	results, err := findCandidates(ctx, files, filters, cfg.MinFiles)
	if err != nil {
		return nil, errors.Wrap(err, "find candidate codes")
	}

	return merge(results, cfg.MinFiles), nil
}

// buildBloomFilters creates one bloom filter per file, concurrently.
func buildBloomFilters(ctx context.Context, files []string, cfg ingestConfig) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(cfg.Capacity, cfg.FPR)
			var count uint64

			if err := streamGzFile(ctx, path, func(line string) {
				name, _, ok := parseLine(line)
				if !ok {
					return
				}
				filter.AddString(name)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.String("file", path), slog.Uint64("codes", count))
				}
			}); err != nil {
				return errors.Wrapf(err, "build filter for %s", path)
			}

			slog.Info("pass 1 complete", slog.String("file", path), slog.Uint64("total_codes", count))
			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// findCandidates re-streams each file and keeps the codes that enough other
// files' filters report.
func findCandidates(
	ctx context.Context,
	files []string,
	filters []*bloom.BloomFilter,
	minFiles int,
) ([]fileResult, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			res := fileResult{candidates: map[string]uint{}, rules: map[string]rule{}}
			fileBit := uint(1) << uint(i)

			if err := streamGzFile(ctx, path, func(line string) {
				name, r, ok := parseLine(line)
				if !ok {
					return
				}
				seen := 1
				for j, f := range filters {
					if j != i && f.TestString(name) {
						seen++
					}
				}
				if seen < minFiles {
					return
				}
				res.candidates[name] |= fileBit
				if _, dup := res.rules[name]; !dup {
					res.rules[name] = r
				}
			}); err != nil {
				return errors.Wrapf(err, "scan %s for candidates", path)
			}

			slog.Info("pass 2 complete", slog.String("file", path), slog.Int("candidates", len(res.candidates)))
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// merge keeps the codes exactly listed by minFiles files or more. The rule
// of the first file listing a code wins.
func merge(results []fileResult, minFiles int) []coupon.Coupon {
	masks := make(map[string]uint)
	for _, r := range results {
		for name, mask := range r.candidates {
			masks[name] |= mask
		}
	}

	var out []coupon.Coupon
	for name, mask := range masks {
		if bits.OnesCount(mask) < minFiles {
			continue
		}
		r := results[bits.TrailingZeros(mask)].rules[name]
		out = append(out, coupon.Coupon{
			ID:            coupon.NewID(name),
			Name:          name,
			Type:          r.Type,
			Value:         r.Value,
			Active:        true,
			MinOrderValue: r.MinOrderValue,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// parseLine reads "CODE[,type,value[,min]]". Codes are upper-cased; a
// missing or malformed rule falls back to defaultRule.
func parseLine(line string) (string, rule, bool) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	name := strings.ToUpper(strings.TrimSpace(fields[0]))
	if len(name) < minCodeLen || len(name) > maxCodeLen || !isCode(name) {
		return "", rule{}, false
	}
	if len(fields) < 3 {
		return name, defaultRule, true
	}

	r := rule{Type: coupon.DiscountType(strings.ToLower(strings.TrimSpace(fields[1])))}
	if r.Type != coupon.DiscountPercentage && r.Type != coupon.DiscountFixed {
		return name, defaultRule, true
	}
	value, err := decimal.NewFromString(strings.TrimSpace(fields[2]))
	if err != nil || value.IsNegative() {
		return name, defaultRule, true
	}
	r.Value = value
	if len(fields) > 3 {
		if minimum, err := decimal.NewFromString(strings.TrimSpace(fields[3])); err == nil && minimum.IsPositive() {
			r.MinOrderValue = &minimum
		}
	}
	return name, r, true
}

func isCode(s string) bool {
	for _, c := range s {
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') && c != '-' && c != '_' {
			return false
		}
	}
	return true
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string)) error {
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
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

// writeCoupons upserts the accepted coupons. Existing usage counters are
// kept.
func writeCoupons(ctx context.Context, repo coupon.Repository, coupons []coupon.Coupon) error {
	slog.Info("writing coupons to database", slog.Int("count", len(coupons)))

	for i, c := range coupons {
		if err := repo.Upsert(ctx, c); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Name)
		}
		if (i+1)%100 == 0 || i+1 == len(coupons) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(coupons)))
		}
	}
	return nil
}
