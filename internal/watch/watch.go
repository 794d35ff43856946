// Package watch feeds artifact files dropped into a directory into a
// session as upload batches.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/spaceshipgen/comparator/internal/codec"
	"github.com/spaceshipgen/comparator/internal/domain"
	"github.com/spaceshipgen/comparator/internal/workflow"
)

// DefaultDebounce is how long a file must be quiet before it is uploaded.
const DefaultDebounce = 500 * time.Millisecond

// Uploader applies an upload batch to a session.
type Uploader interface {
	Upload(ctx context.Context, sessionID string, files []domain.UploadFile) (*workflow.UploadResult, error)
}

// Stats counts watcher activity.
type Stats struct {
	FilesSeen    int
	Batches      int
	BatchErrors  int
	ItemErrors   int
	WatchErrors  int
	LastBatchAt  time.Time
	LastBatchErr string
}

// Watcher uploads artifact files written to Dir into one session. Files
// that settle within the same debounce tick go up as a single batch.
type Watcher struct {
	Dir       string
	SessionID string
	Uploader  Uploader
	Logger    *zap.Logger
	Debounce  time.Duration
	// OnBatch, if set, is called after every upload attempt.
	OnBatch func(*workflow.UploadResult, error)

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	pending map[string]time.Time
	stats   Stats
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a watcher for dir. Start must be called to begin watching.
func New(dir, sessionID string, u Uploader) *Watcher {
	return &Watcher{
		Dir:       dir,
		SessionID: sessionID,
		Uploader:  u,
		Logger:    zap.NewNop(),
		Debounce:  DefaultDebounce,
		pending:   make(map[string]time.Time),
	}
}

// Start creates Dir if needed and begins watching it. Artifact files already
// present are queued as the first batch.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.Dir); err != nil {
		fw.Close()
		return err
	}

	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		fw.Close()
		return err
	}
	now := time.Now()
	for _, e := range entries {
		if !e.IsDir() && codec.IsArtifactName(e.Name()) {
			w.pending[filepath.Join(w.Dir, e.Name())] = now
			w.stats.FilesSeen++
		}
	}

	w.watcher = fw
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true
	w.Logger.Info("watching drop directory", zap.String("dir", w.Dir), zap.String("session", w.SessionID))

	go w.run(ctx, fw, w.stopCh, w.doneCh)
	return nil
}

// Stop halts the watcher and waits for the event loop to exit. Pending
// files that have not settled are dropped.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	stopCh, doneCh, fw := w.stopCh, w.doneCh, w.watcher
	w.mu.Unlock()

	close(stopCh)
	<-doneCh
	if err := fw.Close(); err != nil {
		w.Logger.Warn("close watcher", zap.Error(err))
	}
}

// Done is closed when the event loop exits, either from Stop or from
// context cancellation.
func (w *Watcher) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.doneCh
}

// Stats returns a copy of the counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	tick := w.Debounce / 5
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.Logger.Warn("watch error", zap.Error(err))
			w.mu.Lock()
			w.stats.WatchErrors++
			w.mu.Unlock()
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	if !codec.IsArtifactName(ev.Name) {
		return
	}
	w.mu.Lock()
	if _, ok := w.pending[ev.Name]; !ok {
		w.stats.FilesSeen++
	}
	w.pending[ev.Name] = time.Now()
	w.mu.Unlock()
}

// flush uploads every pending file that has been quiet for the debounce
// interval.
func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var ready []string
	for path, at := range w.pending {
		if now.Sub(at) >= w.Debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()
	if len(ready) == 0 {
		return
	}
	sort.Strings(ready)

	files := make([]domain.UploadFile, 0, len(ready))
	for _, path := range ready {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				w.Logger.Warn("read dropped file", zap.String("path", path), zap.Error(err))
			}
			continue
		}
		files = append(files, codec.FromFile(path, data))
	}
	if len(files) == 0 {
		return
	}

	res, err := w.Uploader.Upload(ctx, w.SessionID, files)

	w.mu.Lock()
	w.stats.Batches++
	w.stats.LastBatchAt = now
	w.stats.LastBatchErr = ""
	if err != nil {
		w.stats.BatchErrors++
		w.stats.LastBatchErr = err.Error()
	} else {
		w.stats.ItemErrors += len(res.Errors)
	}
	w.mu.Unlock()

	if err != nil {
		w.Logger.Warn("upload batch failed", zap.Int("files", len(files)), zap.Error(err))
	} else {
		w.Logger.Info("upload batch applied",
			zap.Int("files", len(files)),
			zap.Int("applied", len(res.Applied)),
			zap.Int("errors", len(res.Errors)))
	}
	if w.OnBatch != nil {
		w.OnBatch(res, err)
	}
}
