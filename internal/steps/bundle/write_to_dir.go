// Package bundle provides the built-in Bundler step kinds.
package bundle

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/geoflow/pipeline/internal/item"
	"github.com/geoflow/pipeline/internal/steps"
	"github.com/geoflow/pipeline/internal/workflow"
	pkgerrors "github.com/geoflow/pipeline/pkg/errors"
)

func init() {
	steps.Register("WriteToDir", steps.RoleBundler, newWriteToDir)
}

type writeToDir struct {
	baseDir string

	mu          sync.Mutex
	byColl      map[string][]item.Item
	lastOutPath string
}

func newWriteToDir(config map[string]any, ctx *workflow.Context) (any, error) {
	baseDir, _ := config["base_dir"].(string)
	if baseDir == "" {
		return nil, pkgerrors.NewConfigurationError("config.base_dir", "WriteToDir requires base_dir", nil)
	}
	return &writeToDir{baseDir: baseDir, byColl: make(map[string][]item.Item)}, nil
}

func (w *writeToDir) pathFor(coll string) string {
	name := coll
	if name == "" {
		name = "_default"
	}
	return filepath.Join(w.baseDir, name+".ndjson")
}

// Add accumulates it in memory, grouped by collection, for commit at
// Finalize. The output path is deterministic from the collection alone,
// so it can be reported as a checkpoint hint immediately, before the
// file is actually written.
func (w *writeToDir) Add(it item.Item, ctx *workflow.Context) error {
	coll := it.Collection()
	w.mu.Lock()
	defer w.mu.Unlock()
	w.byColl[coll] = append(w.byColl[coll], it)
	w.lastOutPath = w.pathFor(coll)
	return nil
}

// Finalize commits each collection's accumulated items as one
// newline-delimited JSON file under baseDir.
func (w *writeToDir) Finalize(ctx *workflow.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return pkgerrors.NewIoError(w.baseDir, err)
	}

	for coll, items := range w.byColl {
		path := w.pathFor(coll)
		if err := writeNDJSON(path, items); err != nil {
			return err
		}
	}
	return nil
}

// OutputPathHint returns the output file path for the collection of the
// most recently added item; the file itself is written at Finalize.
func (w *writeToDir) OutputPathHint() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastOutPath
}

func writeNDJSON(path string, items []item.Item) error {
	f, err := os.Create(path)
	if err != nil {
		return pkgerrors.NewIoError(path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, it := range items {
		if err := enc.Encode(map[string]any(it)); err != nil {
			return pkgerrors.NewIoError(path, err)
		}
	}
	return nil
}
