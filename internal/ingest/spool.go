package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"typewitness/internal/logging"
)

// Spool subdirectories for handled batch files.
const (
	processedDir = "processed"
	failedDir    = "failed"
)

// Spool watches a directory for dropped event-batch files. Each *.json file
// is one EventBatchInput; handled files are moved to processed/ or failed/
// so a crash never re-ingests silently and a malformed batch stays available
// for inspection.
type Spool struct {
	dir      string
	ingestor *Ingestor
	log      *slog.Logger

	// rescan guards against missed fsnotify events; files are also picked
	// up by a periodic directory scan.
	rescan time.Duration

	// settle is how long a file must be untouched before ingestion, so a
	// capture transport still writing a batch is not read half-way.
	settle time.Duration
}

// NewSpool creates a spool watcher over dir.
func NewSpool(dir string, ingestor *Ingestor, log *slog.Logger) *Spool {
	if log == nil {
		log = logging.Default().Logger
	}
	return &Spool{
		dir:      dir,
		ingestor: ingestor,
		log:      log,
		rescan:   30 * time.Second,
		settle:   200 * time.Millisecond,
	}
}

// SetRescanInterval overrides the periodic rescan interval. Call before
// Run.
func (s *Spool) SetRescanInterval(d time.Duration) {
	if d > 0 {
		s.rescan = d
	}
}

// Run watches the spool directory until the context is canceled. Files
// already present at startup are processed first.
func (s *Spool) Run(ctx context.Context) error {
	for _, sub := range []string{"", processedDir, failedDir} {
		if err := os.MkdirAll(filepath.Join(s.dir, sub), 0o755); err != nil {
			return fmt.Errorf("create spool directory: %w", err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("watch spool directory: %w", err)
	}

	s.scan()

	ticker := time.NewTicker(s.rescan)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !isBatchFile(ev.Name) {
				continue
			}
			s.settleAndProcess(ctx, ev.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("spool watcher error", "error", err.Error())

		case <-ticker.C:
			s.scan()
		}
	}
}

// scan processes any batch files currently sitting in the spool directory.
func (s *Spool) scan() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.Warn("scan spool directory", "error", err.Error())
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !isBatchFile(entry.Name()) {
			continue
		}
		s.process(filepath.Join(s.dir, entry.Name()))
	}
}

// settleAndProcess waits for the file to stop changing, then ingests it.
func (s *Spool) settleAndProcess(ctx context.Context, path string) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(s.settle):
	}
	s.process(path)
}

// process ingests one batch file and moves it to processed/ or failed/.
func (s *Spool) process(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Already handled by a concurrent scan.
			return
		}
		s.log.Warn("read batch file", "file", path, "error", err.Error())
		return
	}

	n, err := s.ingestor.Ingest(data)
	if err != nil {
		s.log.Error("batch rejected", "file", filepath.Base(path), "error", err.Error())
		s.archive(path, failedDir)
		return
	}

	s.log.Info("batch ingested", "file", filepath.Base(path), "events", n)
	s.archive(path, processedDir)
}

// archive moves a handled file into the given spool subdirectory.
func (s *Spool) archive(path, sub string) {
	dest := filepath.Join(s.dir, sub, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		s.log.Warn("archive batch file", "file", path, "error", err.Error())
	}
}

func isBatchFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
