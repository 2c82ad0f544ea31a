package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"math"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/lox/jwstcurves/internal/api"
	"github.com/lox/jwstcurves/internal/dashboard"
	"github.com/lox/jwstcurves/internal/ingest"
	"github.com/lox/jwstcurves/internal/models"
	"github.com/lox/jwstcurves/internal/store"
)

const defaultDataURL = "https://raw.githubusercontent.com/iDataVisualizationLab/jwst-data/main/data/json/ZTF_J1539"

type Globals struct {
	DB           string        `help:"Path to SQLite database." default:"data/jwstcurves.db" env:"JWST_DB"`
	DataURL      string        `help:"Data root: http(s)://, ftp:// or a local directory." default:"${data_url}" env:"JWST_DATA_URL"`
	Catalog      string        `help:"Catalog file relative to the data root." default:"dataList.json" env:"JWST_CATALOG"`
	RawPrefix    string        `help:"Directory holding series payloads, relative to the data root." default:"rawdata"`
	ImageBaseURL string        `help:"Base URL for exposure thumbnails and full-size images." default:"${image_base_url}" env:"JWST_IMAGE_BASE_URL"`
	CacheTTL     time.Duration `help:"How long fetched payloads are served from the database." default:"24h" env:"JWST_CACHE_TTL"`
	Parallelism  int           `help:"Concurrent payload fetches." default:"8"`
}

type CLI struct {
	Globals

	Serve ServeCmd `cmd:"" help:"Run the HTTP API."`
	Fetch FetchCmd `cmd:"" help:"Fetch series payloads into the cache."`
	Stats StatsCmd `cmd:"" help:"Print scatter-matrix statistics for a selection."`
	Cache CacheCmd `cmd:"" help:"Inspect or prune the payload cache."`
}

// app holds the wiring shared by every command.
type app struct {
	db     *sql.DB
	store  *store.Store
	loader *ingest.Loader
	engine *dashboard.Engine
}

func (g *Globals) open() (*app, error) {
	db, err := sql.Open("sqlite", g.DB)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	src, err := ingest.NewSource(g.DataURL)
	if err != nil {
		db.Close()
		return nil, err
	}
	cached := ingest.NewCachedSource(ingest.Observe(src), st, g.CacheTTL)
	loader := ingest.NewLoader(cached,
		ingest.WithStore(st),
		ingest.WithCatalogPath(g.Catalog),
		ingest.WithRawPrefix(g.RawPrefix),
		ingest.WithParallelism(g.Parallelism),
	)
	return &app{
		db:     db,
		store:  st,
		loader: loader,
		engine: dashboard.NewEngine(loader, dashboard.NewImageResolver(g.ImageBaseURL)),
	}, nil
}

func (a *app) Close() error { return a.db.Close() }

type ServeCmd struct {
	Addr     string        `help:"Listen address." default:":8080" env:"JWST_ADDR"`
	Prefetch time.Duration `help:"Interval for warming the cache with every catalogued series; 0 disables." default:"0s"`
}

func (c *ServeCmd) Run(g *Globals) error {
	a, err := g.open()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if c.Prefetch > 0 {
		go ingest.NewScheduler(a.loader, c.Prefetch).Run(ctx)
	} else {
		log.Println("prefetch disabled")
	}

	log.Printf("serving %s", g.DataURL)
	return api.NewServer(a.engine, a.loader, a.store, c.Addr).Run(ctx)
}

type FetchCmd struct {
	Selection []string `help:"Selections to fetch (epoch_rin_rout); defaults to the whole catalog." short:"s"`
}

func (c *FetchCmd) Run(g *Globals) error {
	a, err := g.open()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	selections, err := parseSelections(c.Selection)
	if err != nil {
		return err
	}
	if len(selections) == 0 {
		if selections, err = a.loader.LoadCatalog(ctx); err != nil {
			return err
		}
	}

	start := time.Now()
	loaded, failed := ingest.Warm(ctx, a.loader, selections)
	log.Printf("fetched %d series (%d failed) in %s", loaded, failed, time.Since(start).Round(time.Millisecond))
	if failed > 0 {
		return fmt.Errorf("%d series failed to load", failed)
	}
	return nil
}

type StatsCmd struct {
	Selection []string `arg:"" help:"Selections to compare (epoch_rin_rout)."`
	DataType  string   `help:"average or raw." default:"raw" enum:"average,raw"`
	Chunk     int      `help:"Samples per chunk in average mode." default:"100"`
	ColorBy   string   `help:"Scoring metric: diff or distance." default:"diff" enum:"diff,distance"`
}

func (c *StatsCmd) Run(g *Globals) error {
	a, err := g.open()
	if err != nil {
		return err
	}
	defer a.Close()

	selections, err := parseSelections(c.Selection)
	if err != nil {
		return err
	}
	settings := models.DefaultViewSettings().
		WithSelections(selections).
		WithDataType(models.DataType(c.DataType)).
		WithChunk(c.Chunk).
		WithColorBy(models.ColorBy(c.ColorBy))

	mv, err := a.engine.Matrix(context.Background(), settings)
	if err != nil {
		return err
	}
	for _, f := range mv.Failures {
		fmt.Printf("failed: %s: %s\n", f.Key, f.Error)
	}
	for _, b := range mv.Bands {
		fmt.Printf("\n%s: %d aligned rows, focus range %g\n", b.Band, len(b.Dataset.Rows), b.FocusRangeMax)
		for i, col := range b.Stats.Order {
			fmt.Printf("  %d. %-24s score %8.3f\n", i+1, col, b.Stats.ColumnScore(col))
		}
		pairs := make([]string, 0, len(b.Stats.Pairs))
		for p := range b.Stats.Pairs {
			pairs = append(pairs, p.String())
		}
		sort.Strings(pairs)
		for _, key := range pairs {
			x, y, _ := strings.Cut(key, "|")
			ps, _ := b.Stats.Pair(x, y)
			fmt.Printf("  %s vs %s: score %.3f slope %s (%d points)\n", y, x, ps.Score, formatSlope(ps.Slope), len(ps.Points))
		}
	}
	return nil
}

func formatSlope(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", v)
}

type CacheCmd struct {
	Stats   CacheStatsCmd   `cmd:"" help:"Show payload cache statistics."`
	Cleanup CacheCleanupCmd `cmd:"" help:"Delete payloads older than the retention window."`
}

type CacheStatsCmd struct{}

func (c *CacheStatsCmd) Run(g *Globals) error {
	a, err := g.open()
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.store.GetPayloadStats()
	if err != nil {
		return err
	}
	fmt.Printf("payloads: %d (%s stored, %s uncompressed)\n", stats.TotalCount,
		humanize.Bytes(uint64(stats.TotalSizeBytes)), humanize.Bytes(uint64(stats.UncompressedBytes)))
	if stats.TotalCount > 0 {
		fmt.Printf("oldest: %s\nnewest: %s\n", humanize.Time(stats.OldestFetchedAt), humanize.Time(stats.NewestFetchedAt))
	}
	for source, n := range stats.CountBySource {
		fmt.Printf("  %s: %d (%s)\n", source, n, humanize.Bytes(uint64(stats.SizeBySource[source])))
	}

	health, err := a.store.GetFetchHealth(time.Now().Add(-24 * time.Hour))
	if err != nil {
		return err
	}
	fmt.Printf("fetches (24h): %d total, %d cache hits, %d failed\n", health.Total, health.CacheHits, health.Failed)
	return nil
}

type CacheCleanupCmd struct {
	Days int `help:"Retention window in days." default:"30"`
}

func (c *CacheCleanupCmd) Run(g *Globals) error {
	a, err := g.open()
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.store.CleanupOldPayloads(c.Days)
	if err != nil {
		return err
	}
	log.Printf("deleted %s payloads older than %d days", humanize.Comma(n), c.Days)
	return nil
}

func parseSelections(ids []string) ([]models.Selection, error) {
	var out []models.Selection
	for _, raw := range ids {
		for _, id := range strings.Split(raw, ",") {
			if strings.TrimSpace(id) == "" {
				continue
			}
			sel, err := models.ParseSelection(id)
			if err != nil {
				return nil, err
			}
			out = append(out, sel)
		}
	}
	return out, nil
}

func loadEnv() {
	path := os.Getenv("JWST_ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("env file %s: %v", path, err)
	}
}

func main() {
	loadEnv()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("jwstcurves"),
		kong.Description("JWST photometry light curves and cross-epoch comparison."),
		kong.UsageOnError(),
		kong.Vars{
			"data_url":       defaultDataURL,
			"image_base_url": dashboard.DefaultImageBaseURL,
		},
	)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}
