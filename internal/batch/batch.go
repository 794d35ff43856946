// Package batch imports a directory tree of collected experiment data, one
// session per subdirectory.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spaceshipgen/comparator/internal/codec"
	"github.com/spaceshipgen/comparator/internal/domain"
	"github.com/spaceshipgen/comparator/internal/workflow"
)

// RanksFile is the optional per-session file holding the participant's
// ranks, keyed by slot number.
const RanksFile = "ranks.json"

// Engine is the part of workflow.Engine the importer drives.
type Engine interface {
	EnsureSession(ctx context.Context, id string) error
	Upload(ctx context.Context, id string, files []domain.UploadFile) (*workflow.UploadResult, error)
	Export(ctx context.Context, id string, ranks domain.Ranks) (*workflow.ExportResult, error)
}

// Item is the outcome for one session directory.
type Item struct {
	SessionID string
	Dir       string
	Files     int
	Applied   []domain.Slot
	Failures  []workflow.ItemFailure
	Exported  string
	Err       error
}

// Report collects the per-directory outcomes, ordered by session ID.
type Report struct {
	Items []Item
}

// Failed returns the number of directories that could not be processed.
func (r *Report) Failed() int {
	n := 0
	for _, it := range r.Items {
		if it.Err != nil {
			n++
		}
	}
	return n
}

// Importer walks session directories concurrently.
type Importer struct {
	Engine      Engine
	Concurrency int
	Logger      *zap.Logger
}

// Run imports every subdirectory of root. A failing directory is recorded
// in its Item and does not stop the others; only context cancellation
// aborts the run.
func (im *Importer) Run(ctx context.Context, root string) (*Report, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read batch root: %w", err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Strings(dirs)

	log := im.Logger
	if log == nil {
		log = zap.NewNop()
	}
	limit := im.Concurrency
	if limit <= 0 {
		limit = 1
	}

	items := make([]Item, len(dirs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, name := range dirs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			it := im.importDir(gctx, name, filepath.Join(root, name))
			if it.Err != nil {
				log.Warn("session import failed", zap.String("session", name), zap.Error(it.Err))
			} else {
				log.Info("session imported",
					zap.String("session", name),
					zap.Int("files", it.Files),
					zap.String("exported", it.Exported))
			}
			items[i] = it
			if errors.Is(it.Err, context.Canceled) || errors.Is(it.Err, context.DeadlineExceeded) {
				return it.Err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return &Report{Items: items}, err
	}
	return &Report{Items: items}, nil
}

func (im *Importer) importDir(ctx context.Context, id, dir string) Item {
	it := Item{SessionID: id, Dir: dir}

	files, err := readArtifacts(dir)
	if err != nil {
		it.Err = err
		return it
	}
	it.Files = len(files)

	if err := im.Engine.EnsureSession(ctx, id); err != nil {
		it.Err = err
		return it
	}
	if len(files) > 0 {
		res, err := im.Engine.Upload(ctx, id, files)
		if err != nil {
			it.Err = err
			return it
		}
		it.Applied = res.Applied
		it.Failures = res.Failures()
	}

	ranks, err := readRanks(filepath.Join(dir, RanksFile))
	if err != nil {
		it.Err = err
		return it
	}
	if ranks == nil {
		return it
	}
	res, err := im.Engine.Export(ctx, id, ranks)
	if err != nil {
		it.Err = err
		return it
	}
	it.Exported = res.Filename
	return it
}

func readArtifacts(dir string) ([]domain.UploadFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []domain.UploadFile
	for _, e := range entries {
		if e.IsDir() || !codec.IsArtifactName(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		files = append(files, codec.FromFile(path, data))
	}
	return files, nil
}

// readRanks loads a ranks file. A missing file yields nil ranks.
func readRanks(path string) (domain.Ranks, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ranks domain.Ranks
	if err := json.Unmarshal(data, &ranks); err != nil {
		return nil, domain.WrapEngineError(domain.ErrRanksInvalid.Code,
			fmt.Sprintf("%s: %s", domain.ErrRanksInvalid.Message, path), err)
	}
	return ranks, nil
}
