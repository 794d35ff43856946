package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/spaceshipgen/comparator/internal/domain"
	"github.com/spaceshipgen/comparator/internal/workflow"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var _ Uploader = (*workflow.Engine)(nil)

type fakeUploader struct {
	mu      sync.Mutex
	batches [][]domain.UploadFile
	err     error
}

func (f *fakeUploader) Upload(_ context.Context, _ string, files []domain.UploadFile) (*workflow.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, files)
	if f.err != nil {
		return nil, f.err
	}
	return &workflow.UploadResult{}, nil
}

func startWatcher(t *testing.T, dir string, u Uploader) (*Watcher, <-chan error) {
	t.Helper()
	done := make(chan error, 16)
	w := New(dir, "sess", u)
	w.Debounce = 30 * time.Millisecond
	w.OnBatch = func(_ *workflow.UploadResult, err error) { done <- err }
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(w.Stop)
	return w, done
}

func waitBatch(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for upload batch")
		return nil
	}
}

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestWatcher_UploadsDroppedFiles(t *testing.T) {
	dir := t.TempDir()
	u := &fakeUploader{}
	w, done := startWatcher(t, dir, u)

	writeFile(t, dir, "ship_42_exp1.txt", "ABBA\n")
	if err := waitBatch(t, done); err != nil {
		t.Fatalf("batch error: %v", err)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.batches) != 1 || len(u.batches[0]) != 1 {
		t.Fatalf("batches = %v", u.batches)
	}
	f := u.batches[0][0]
	if f.Name != "ship_42_exp1.txt" {
		t.Errorf("Name = %q", f.Name)
	}
	if f.Contents != "data:text/plain;base64,QUJCQQ==" {
		t.Errorf("Contents = %q", f.Contents)
	}
	if s := w.Stats(); s.FilesSeen != 1 || s.Batches != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestWatcher_QueuesExistingFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ship_7_exp2.txt", "A")
	writeFile(t, dir, "ship_7_exp3.txt", "B")
	writeFile(t, dir, "README.md", "ignored")

	u := &fakeUploader{}
	_, done := startWatcher(t, dir, u)
	if err := waitBatch(t, done); err != nil {
		t.Fatalf("batch error: %v", err)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.batches[0]) != 2 {
		t.Fatalf("first batch = %v, want both artifacts", u.batches[0])
	}
	if u.batches[0][0].Name != "ship_7_exp2.txt" || u.batches[0][1].Name != "ship_7_exp3.txt" {
		t.Errorf("batch order = %v", u.batches[0])
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	u := &fakeUploader{}
	w, done := startWatcher(t, dir, u)

	writeFile(t, dir, "notes.txt", "x")
	writeFile(t, dir, "ship_1_exp3.txt", "A")
	if err := waitBatch(t, done); err != nil {
		t.Fatalf("batch error: %v", err)
	}
	if s := w.Stats(); s.FilesSeen != 1 {
		t.Errorf("FilesSeen = %d, want 1", s.FilesSeen)
	}
}

func TestWatcher_RecordsBatchErrors(t *testing.T) {
	dir := t.TempDir()
	u := &fakeUploader{err: domain.ErrSeedMismatch}
	w, done := startWatcher(t, dir, u)

	writeFile(t, dir, "ship_1_exp1.txt", "A")
	if err := waitBatch(t, done); !errors.Is(err, domain.ErrSeedMismatch) {
		t.Fatalf("batch err = %v, want ErrSeedMismatch", err)
	}
	s := w.Stats()
	if s.BatchErrors != 1 || s.LastBatchErr == "" {
		t.Errorf("stats = %+v", s)
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w := New(t.TempDir(), "sess", &fakeUploader{})
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	w.Stop()
	w.Stop()
}

func TestWatcher_ContextCancelEndsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := New(t.TempDir(), "sess", &fakeUploader{})
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not exit on cancel")
	}
	w.Stop()
}
