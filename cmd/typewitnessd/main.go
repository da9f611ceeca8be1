// typewitnessd is the typewitness ingestion daemon.
//
// It watches a spool directory for event batches dropped by the capture
// transport, appends them to their sessions (in memory and in the SQLite
// store), and recomputes behavioral analytics after every append.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"typewitness/internal/analytics"
	"typewitness/internal/config"
	"typewitness/internal/ingest"
	"typewitness/internal/logging"
	"typewitness/internal/session"
	"typewitness/internal/store"
)

var configPath = flag.String("config", "", "path to config file")

func main() {
	flag.Parse()

	if err := run(); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "typewitnessd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()
	logging.SetDefault(logger)

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	manager := session.NewManager()
	engine := analytics.NewEngine(analytics.Default(), logger.Logger)

	// One recomputer per session keeps the memoized result keyed to that
	// session's (version, reset token) pair.
	var (
		mu          sync.Mutex
		recomputers = make(map[string]*analytics.Recomputer)
	)

	ingestor := ingest.NewIngestor(st, manager, logger.Logger)
	ingestor.OnAppend(func(sess *session.Session) {
		mu.Lock()
		rc, ok := recomputers[sess.ID()]
		if !ok {
			rc = analytics.NewRecomputer(engine)
			recomputers[sess.ID()] = rc
		}
		mu.Unlock()

		events, version := sess.Events()
		result := rc.Result(events, version, sess.ResetToken())
		logger.Info("analytics recomputed",
			"session_id", sess.ID(),
			"events", len(events),
			"total_keystrokes", result["total-keystrokes"],
			"paste_char_ratio", result["paste-char-ratio"],
		)
	})

	spool := ingest.NewSpool(cfg.Ingest.SpoolDir, ingestor, logger.Logger)
	spool.SetRescanInterval(time.Duration(cfg.Ingest.RescanIntervalSec) * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("typewitnessd starting",
		"spool_dir", cfg.Ingest.SpoolDir,
		"storage", cfg.Storage.Path,
		"metrics", analytics.Default().Len(),
	)

	err = spool.Run(ctx)
	logger.Info("typewitnessd stopped")
	return err
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	return logging.New(&logging.Config{
		Level:     level,
		Format:    format,
		Output:    cfg.Logging.Output,
		FilePath:  cfg.Logging.FilePath,
		Component: "typewitnessd",
	})
}
