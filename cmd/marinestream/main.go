package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/lox/marinestream/internal/api"
	"github.com/lox/marinestream/internal/catalog"
	"github.com/lox/marinestream/internal/erddap"
	"github.com/lox/marinestream/internal/httputil"
	"github.com/lox/marinestream/internal/store"
)

type CLI struct {
	EnvFile kongdotenv.ENVFileConfig `kong:"optional,name=env-file,default='.env',help='Path to .env file.'"`

	Port         string `default:"8080" env:"PORT" help:"HTTP server port."`
	DB           string `default:"data/marinestream.db" env:"MARINESTREAM_DB" help:"SQLite fetch audit log path. Empty disables the audit log."`
	Catalog      string `env:"MARINESTREAM_CATALOG" help:"YAML file with additional or overriding sources."`
	WatchCatalog bool   `env:"MARINESTREAM_WATCH_CATALOG" help:"Reload the catalog file when it changes."`

	PageSpan         time.Duration `default:"336h" env:"MARINESTREAM_PAGE_SPAN" help:"Widest time range per upstream request."`
	PollInterval     time.Duration `default:"30s" env:"MARINESTREAM_POLL_INTERVAL" help:"Live stream polling interval."`
	FetchTimeout     time.Duration `default:"30s" env:"MARINESTREAM_FETCH_TIMEOUT" help:"Upstream request timeout."`
	FetchRetryMax    time.Duration `default:"0s" env:"MARINESTREAM_FETCH_RETRY_MAX" help:"Retry rate-limited pages for up to this long. Zero reports the failure immediately."`
	DefaultSinceDays int           `default:"7" env:"MARINESTREAM_DEFAULT_SINCE_DAYS" help:"Default since: days before today."`
	DefaultUntilDays int           `default:"7" env:"MARINESTREAM_DEFAULT_UNTIL_DAYS" help:"Default until: days after today."`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("marinestream"),
		kong.Description("Streams marine observation time series from ERDDAP as JSON lines, CSV or websocket pushes."),
	)

	sources := catalog.Builtin()
	if cli.Catalog != "" {
		loaded, err := catalog.Load(cli.Catalog)
		if err != nil {
			log.Fatalf("load catalog: %v", err)
		}
		sources = loaded
	}
	cat := catalog.New(sources...)
	log.Printf("catalog: serving %v", cat.Names())

	var st *store.Store
	if cli.DB != "" {
		if err := os.MkdirAll(filepath.Dir(cli.DB), 0o755); err != nil {
			log.Fatalf("create database dir: %v", err)
		}
		db, err := sql.Open("sqlite", cli.DB)
		if err != nil {
			log.Fatalf("open database: %v", err)
		}
		defer db.Close()

		db.Exec("PRAGMA journal_mode=WAL")
		db.Exec("PRAGMA busy_timeout=5000")

		st = store.New(db)
		if err := st.Migrate(); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		log.Println("database migrated")
	}

	fetcher := erddap.NewClient(
		erddap.WithHTTPClient(httputil.NewClient(cli.FetchTimeout)),
		erddap.WithRetry(cli.FetchRetryMax),
	)

	server := api.NewServer(cat, fetcher, st, api.Options{
		Port:             cli.Port,
		PageSpan:         cli.PageSpan,
		PollInterval:     cli.PollInterval,
		DefaultSinceDays: cli.DefaultSinceDays,
		DefaultUntilDays: cli.DefaultUntilDays,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cli.Catalog != "" && cli.WatchCatalog {
		go func() {
			if err := catalog.Watch(ctx, cli.Catalog, cat); err != nil {
				log.Printf("catalog: watch %s: %v", cli.Catalog, err)
			}
		}()
	}

	log.Printf("starting server on :%s (page span %s, poll every %s)", cli.Port, cli.PageSpan, cli.PollInterval)
	if err := server.Run(ctx); err != nil {
		log.Fatalf("server: %v", err)
	}
}
