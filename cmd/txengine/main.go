// Command txengine streams a CSV of transaction records through the ledger
// engine and writes the resulting account snapshot.
//
// By default the snapshot goes to stdout as CSV, so the tool composes with
// shell pipelines; logs go to stderr. A -sink URL redirects the snapshot to
// PostgreSQL or Redis instead.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/paystream/tx-engine/internal/csvio"
	"github.com/paystream/tx-engine/internal/ledger"
	"github.com/paystream/tx-engine/internal/sink"
)

func main() {
	sinkURL := flag.String("sink", "", "snapshot destination URL (postgres:// or redis://), default CSV on stdout")
	strict := flag.Bool("strict", false, "abort on the first malformed row instead of skipping it")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(1)
	}
	path := flag.Arg(0)

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	f, err := os.Open(path)
	if err != nil {
		slog.Error("cannot open input", "path", path, "err", err)
		os.Exit(1)
	}
	defer f.Close()

	reader, err := csvio.NewReader(f)
	if err != nil {
		slog.Error("cannot read input", "path", path, "err", err)
		os.Exit(1)
	}

	// --- Stream records through the engine ---
	engine := ledger.NewEngine()

	var applied, skipped int
	for {
		tx, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var rowErr *csvio.RowError
		if errors.As(err, &rowErr) {
			if *strict {
				slog.Error("malformed row", "line", rowErr.Line, "err", rowErr.Err)
				os.Exit(1)
			}
			skipped++
			slog.Warn("skipping malformed row", "line", rowErr.Line, "err", rowErr.Err)
			continue
		}
		if err != nil {
			slog.Error("input stream failed", "err", err)
			os.Exit(1)
		}
		engine.Apply(tx)
		applied++
	}
	slog.Info("input processed", "applied", applied, "skipped", skipped)

	// --- Write the snapshot ---
	out, cleanup, err := openSink(*sinkURL)
	if err != nil {
		slog.Error("cannot open sink", "err", err)
		os.Exit(1)
	}
	defer cleanup()

	views := engine.Snapshot()
	if err := out.WriteSnapshot(context.Background(), views); err != nil {
		slog.Error("snapshot write failed", "err", err)
		os.Exit(1)
	}
	slog.Info("snapshot written", "accounts", len(views))
}

// openSink resolves the -sink flag to a destination. An empty URL means CSV
// on stdout.
func openSink(url string) (sink.Sink, func(), error) {
	switch {
	case url == "":
		return sink.NewCSVSink(os.Stdout), func() {}, nil
	case strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://"):
		pool, err := pgxpool.New(context.Background(), url)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		return sink.NewPostgresSink(pool), pool.Close, nil
	case strings.HasPrefix(url, "redis://") || strings.HasPrefix(url, "rediss://"):
		opt, err := redis.ParseURL(url)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opt)
		return sink.NewRedisSink(rdb, 0), func() { rdb.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported sink scheme in %q", url)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [-sink URL] [-strict] [-v] <transactions.csv>\n", os.Args[0])
	flag.PrintDefaults()
}
