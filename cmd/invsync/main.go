package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"invsync/internal/config"
	"invsync/internal/connectors"
	gmailconnector "invsync/internal/connectors/gmail"
	imapconnector "invsync/internal/connectors/imap"
	"invsync/internal/gemini"
	"invsync/internal/listener"
	"invsync/internal/notify"
	"invsync/internal/pipeline"
	"invsync/internal/sheets"
	"invsync/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	must(err)

	ctx := context.Background()

	cmd := os.Args[1]
	switch cmd {
	case "run":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		force := fs.Bool("force", false, "bypass the schedule gate")
		_ = fs.Parse(os.Args[2:])

		db, err := storage.Open(cfg.DBPath)
		must(err)
		defer db.Close()

		svc, err := buildService(ctx, cfg, db, loc, log)
		must(err)

		result, err := svc.Run(ctx, *force)
		must(err)
		fmt.Printf("run done outcome=%s rows=%d\n", result.Outcome, result.RowsWritten)

	case "serve":
		db, err := storage.Open(cfg.DBPath)
		must(err)
		defer db.Close()

		svc, err := buildService(ctx, cfg, db, loc, log)
		must(err)

		daemon := listener.NewService(cfg, svc, db, loc, log)
		must(daemon.Run(ctx))

	case "extract":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "PDF file path")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*input) == "" || strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--input and --out are required"))
		}

		content, err := os.ReadFile(*input)
		must(err)

		extractor, err := pipeline.NewExtractor(gemini.NewClient(cfg, log), cfg, log)
		must(err)
		passes, err := extractor.Extract(ctx, content)
		must(err)

		rows := pipeline.MergeTables(passes, cfg.DedupEnabled, log)
		updatedAt := pipeline.UpdateTimestamp(content, time.Time{}, time.Now(), loc)
		rec := pipeline.BuildOutputRecord(rows, updatedAt)

		localCfg := cfg
		localCfg.XLSXPath = *out
		store, err := sheets.NewXLSXStore(&localCfg, log)
		must(err)
		must(store.ReplaceSummary(ctx, rec))
		fmt.Printf("extract done rows=%d output=%s\n", len(rec.Rows), *out)

	case "state:reset":
		db, err := storage.Open(cfg.DBPath)
		must(err)
		defer db.Close()
		must(db.ResetState())
		fmt.Println("scheduler state cleared")

	default:
		usage()
		os.Exit(1)
	}
}

func buildService(ctx context.Context, cfg config.Config, db *storage.DB, loc *time.Location, log zerolog.Logger) (*pipeline.Service, error) {
	conn, err := makeConnector(cfg)
	if err != nil {
		return nil, err
	}

	extractor, err := pipeline.NewExtractor(gemini.NewClient(cfg, log), cfg, log)
	if err != nil {
		return nil, err
	}

	store, err := makeStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	notifier, err := makeNotifier(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	selector := pipeline.NewSelector(conn, cfg.SearchQueries, cfg.SubjectKeywords, cfg.SearchMax, log)
	return pipeline.NewService(&cfg, selector, extractor, store, notifier, db, loc, log), nil
}

func makeConnector(cfg config.Config) (connectors.MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.MailProvider)) {
	case "gmail":
		return gmailconnector.NewConnector(cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported mail provider: %s", cfg.MailProvider)
	}
}

func makeStore(ctx context.Context, cfg config.Config, log zerolog.Logger) (sheets.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.SheetBackend)) {
	case "google":
		return sheets.NewGoogleStore(ctx, &cfg, log)
	case "xlsx":
		return sheets.NewXLSXStore(&cfg, log)
	default:
		return nil, fmt.Errorf("unsupported sheet backend: %s", cfg.SheetBackend)
	}
}

func makeNotifier(ctx context.Context, cfg config.Config, log zerolog.Logger) (notify.Notifier, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.NotifyBackend)) {
	case "gmail":
		return notify.NewGmailNotifier(ctx, &cfg)
	case "log":
		return notify.NewLogNotifier(log), nil
	default:
		return nil, fmt.Errorf("unsupported notify backend: %s", cfg.NotifyBackend)
	}
}

func usage() {
	fmt.Println("usage: invsync <command>")
	fmt.Println("commands:")
	fmt.Println("  run [--force]")
	fmt.Println("  serve")
	fmt.Println("  extract --input=report.pdf --out=./out/inventory.xlsx")
	fmt.Println("  state:reset")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
