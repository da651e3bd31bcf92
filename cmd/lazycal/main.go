package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/Joseda-hg/lazycal/internal/config"
	"github.com/Joseda-hg/lazycal/internal/db"
	"github.com/Joseda-hg/lazycal/internal/ics"
	"github.com/Joseda-hg/lazycal/internal/logger"
	"github.com/Joseda-hg/lazycal/internal/memstore"
	"github.com/Joseda-hg/lazycal/internal/metrics"
	"github.com/Joseda-hg/lazycal/internal/planner"
	"github.com/Joseda-hg/lazycal/internal/tui"
	"github.com/Joseda-hg/lazycal/internal/web"
)

// memoryDB selects the in-process store instead of SQLite.
const memoryDB = ":memory:"

func main() {
	configPathFlag := flag.String("config", "", "config file path")
	dbPathFlag := flag.String("db", "", "sqlite db path (:memory: keeps events in process)")
	webFlag := flag.Bool("web", false, "enable web server")
	webOnlyFlag := flag.Bool("web-only", false, "run web server only")
	portFlag := flag.Int("port", 0, "web server port")
	exportFlag := flag.String("export", "", "write all events as iCalendar to FILE (- for stdout) and exit")
	importFlag := flag.String("import", "", "import single-occurrence events from an iCalendar FILE and exit")
	flag.Parse()

	cfgPath, err := resolveConfigPath(*configPathFlag)
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	if *dbPathFlag != "" {
		cfg.DBPath = *dbPathFlag
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(filepath.Dir(cfgPath), "lazycal.db")
	}
	if *webFlag || *webOnlyFlag {
		cfg.WebEnabled = true
	}
	if *portFlag != 0 {
		cfg.WebPort = *portFlag
	}
	if cfg.LogPath == "" {
		cfg.LogPath = filepath.Join(filepath.Dir(cfgPath), "lazycal.log")
	}

	if cfg.DBPath != memoryDB {
		if err := config.Save(cfgPath, cfg); err != nil {
			log.Fatal(err)
		}
	}

	logOut, closeLog, err := openLog(cfg, *webOnlyFlag)
	if err != nil {
		log.Fatal(err)
	}
	defer closeLog()

	appLog, err := logger.New(logOut, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()

	m := metrics.NewManager()
	stores, err := openStore(cfg.DBPath, m, appLog)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		if err := stores.close(); err != nil {
			appLog.Error(ctx, "close store", logger.Error(err))
		}
	}()

	p := planner.New(stores.store,
		planner.WithLocation(cfg.Location()),
		planner.WithWeekStart(cfg.WeekStartDay()),
		planner.WithHorizon(cfg.HorizonDays),
		planner.WithLogger(appLog),
	)
	feed := ics.NewService(p, ics.WithMetrics(m), ics.WithLogger(appLog))

	if *exportFlag != "" {
		if err := exportCalendar(ctx, feed, *exportFlag); err != nil {
			log.Fatal(err)
		}
		return
	}
	if *importFlag != "" {
		if err := importCalendar(ctx, feed, *importFlag); err != nil {
			log.Fatal(err)
		}
		return
	}

	if cfg.WebEnabled {
		opts := []web.Option{web.WithFeed(feed), web.WithMetrics(m), web.WithLogger(appLog)}
		if stores.sql != nil {
			opts = append(opts, web.WithHistory(stores.sql), web.WithSearch(stores.sql))
		}
		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.WebPort),
			Handler:           web.NewServer(p, opts...).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		appLog.Info(ctx, "web server starting",
			logger.String("addr", "http://localhost"+server.Addr),
			logger.Bool("web_only", *webOnlyFlag),
		)
		if *webOnlyFlag {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				appLog.Error(ctx, "web server stopped", logger.Error(err))
				os.Exit(1)
			}
			return
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				appLog.Error(ctx, "web server stopped", logger.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	opts := []tui.Option{tui.WithLogger(appLog)}
	if stores.sql != nil {
		opts = append(opts, tui.WithHistory(stores.sql), tui.WithSearch(stores.sql))
	}
	if err := tui.Run(p, opts...); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveConfigPath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	return config.DefaultConfigPath()
}

// backend is the opened event store. sql is nil for the in-memory store,
// which keeps no history and has no text search.
type backend struct {
	store planner.Store
	sql   *db.Store
	close func() error
}

func openStore(dbPath string, m *metrics.Manager, l logger.Logger) (backend, error) {
	if dbPath == memoryDB {
		mem := memstore.New()
		return backend{store: mem, close: mem.Close}, nil
	}

	if err := config.EnsureDir(dbPath); err != nil {
		return backend{}, err
	}

	sqlDB, err := db.Open(dbPath)
	if err != nil {
		return backend{}, err
	}

	store := db.NewStore(sqlDB, db.WithMetrics(m), db.WithLogger(l))
	return backend{store: store, sql: store, close: store.Close}, nil
}

// openLog keeps the terminal clear for the TUI by logging to a file; the
// web-only server logs to stderr.
func openLog(cfg config.Config, webOnly bool) (io.Writer, func(), error) {
	if webOnly {
		return os.Stderr, func() {}, nil
	}
	if err := config.EnsureDir(cfg.LogPath); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func exportCalendar(ctx context.Context, feed *ics.Service, path string) error {
	if path == "-" {
		_, err := feed.Export(ctx, os.Stdout)
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	count, err := feed.Export(ctx, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "exported %d events to %s\n", count, path)
	return nil
}

func importCalendar(ctx context.Context, feed *ics.Service, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()

	result, err := feed.Import(ctx, f)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "imported %d events (%d duplicates, %d recurring skipped, %d invalid)\n",
		result.Imported, result.Duplicate, result.Recurring, result.Invalid)
	return nil
}
