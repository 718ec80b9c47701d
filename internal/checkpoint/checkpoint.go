// Package checkpoint implements the crash-safe, append-only completion
// log that drives resume semantics: once an item's completion record has
// been flushed, a later run against the same checkpoint root skips it.
// Completions still buffered when the process dies are lost, and those
// items are processed again.
package checkpoint

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	pkgerrors "github.com/geoflow/pipeline/pkg/errors"
)

// Record is the persistent, durable tuple written per item.
type Record struct {
	ItemID       string    `json:"item_id"`
	CollectionID string    `json:"collection_id"`
	OutputPath   *string   `json:"output_path,omitempty"`
	Completed    bool      `json:"completed"`
	Timestamp    time.Time `json:"timestamp"`
	Error        *string   `json:"error,omitempty"`
}

// defaultFlushThreshold is the number of buffered records that triggers
// an automatic flush, in addition to explicit Flush/Close calls.
const defaultFlushThreshold = 200

// Manager tracks completion per (collection_id, item_id) under a single
// checkpoint root directory for one workflow, per spec.md's
// "<root>/<workflow>/<collection>.jsonl" layout.
type Manager struct {
	root           string
	workflow       string
	flushThreshold int

	mu          sync.Mutex
	collections map[string]*collectionFile
}

// NewManager opens (but does not yet create) the checkpoint directory
// for workflow under root. Existing collection files are loaded lazily,
// on first reference, since a workflow may checkpoint collections that
// were never mentioned by earlier runs.
func NewManager(root, workflowName string) *Manager {
	return &Manager{
		root:           root,
		workflow:       workflowName,
		flushThreshold: defaultFlushThreshold,
		collections:    make(map[string]*collectionFile),
	}
}

type collectionFile struct {
	path string

	mu       sync.Mutex
	existing []Record
	buffered []Record

	completed atomic.Pointer[map[string]struct{}]
}

func (m *Manager) collectionPath(collectionID string) string {
	name := collectionID
	if name == "" {
		name = "_default"
	}
	return filepath.Join(m.root, m.workflow, name+".jsonl")
}

// load reads an existing collection file into a collectionFile, building
// its initial completion set. An unreadable or corrupt file is a fatal
// ConfigurationError per spec.md §4.D.
func (m *Manager) load(collectionID string) (*collectionFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cf, ok := m.collections[collectionID]; ok {
		return cf, nil
	}

	path := m.collectionPath(collectionID)
	cf := &collectionFile{path: path}

	completed := make(map[string]struct{})

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cf.completed.Store(&completed)
			m.collections[collectionID] = cf
			return cf, nil
		}
		return nil, pkgerrors.NewConfigurationError("checkpoint", fmt.Sprintf("open %s", path), err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, pkgerrors.NewConfigurationError("checkpoint", fmt.Sprintf("corrupt record in %s", path), err)
		}
		cf.existing = append(cf.existing, rec)
		if rec.Completed {
			completed[rec.ItemID] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, pkgerrors.NewConfigurationError("checkpoint", fmt.Sprintf("read %s", path), err)
	}

	cf.completed.Store(&completed)
	m.collections[collectionID] = cf
	return cf, nil
}

// IsCompleted looks up (or lazily loads) the collection under the
// manager's mutex, then reads its in-memory completion-set snapshot
// without further locking. A collection whose file cannot be loaded
// reports false.
func (m *Manager) IsCompleted(collectionID, itemID string) bool {
	cf, err := m.load(collectionID)
	if err != nil {
		return false
	}
	set := cf.completed.Load()
	if set == nil {
		return false
	}
	_, ok := (*set)[itemID]
	return ok
}

// MarkCompleted records that itemID reached the end of the pipeline.
// The completion set is updated immediately, before any flush, so a
// subsequent IsCompleted within the same run is correct even if the
// buffered record has not yet been persisted.
func (m *Manager) MarkCompleted(collectionID, itemID, outputPath string) error {
	cf, err := m.load(collectionID)
	if err != nil {
		return err
	}

	var outPtr *string
	if outputPath != "" {
		outPtr = &outputPath
	}

	cf.mu.Lock()
	cf.buffered = append(cf.buffered, Record{
		ItemID:       itemID,
		CollectionID: collectionID,
		OutputPath:   outPtr,
		Completed:    true,
		Timestamp:    time.Now().UTC(),
	})
	shouldFlush := len(cf.buffered) >= m.flushThreshold
	cf.mu.Unlock()

	m.markCompletedInSet(cf, itemID)

	if shouldFlush {
		return m.flushCollection(cf)
	}
	return nil
}

func (m *Manager) markCompletedInSet(cf *collectionFile, itemID string) {
	for {
		old := cf.completed.Load()
		next := make(map[string]struct{}, len(*old)+1)
		for k := range *old {
			next[k] = struct{}{}
		}
		next[itemID] = struct{}{}
		if cf.completed.CompareAndSwap(old, &next) {
			return
		}
	}
}

// MarkFailed records a failed attempt. It does not add itemID to the
// completion set, so the next run retries it.
func (m *Manager) MarkFailed(collectionID, itemID, message string) error {
	cf, err := m.load(collectionID)
	if err != nil {
		return err
	}

	cf.mu.Lock()
	cf.buffered = append(cf.buffered, Record{
		ItemID:       itemID,
		CollectionID: collectionID,
		Completed:    false,
		Timestamp:    time.Now().UTC(),
		Error:        &message,
	})
	shouldFlush := len(cf.buffered) >= m.flushThreshold
	cf.mu.Unlock()

	if shouldFlush {
		return m.flushCollection(cf)
	}
	return nil
}

// Flush persists every collection's buffered records.
func (m *Manager) Flush() error {
	m.mu.Lock()
	files := make([]*collectionFile, 0, len(m.collections))
	for _, cf := range m.collections {
		files = append(files, cf)
	}
	m.mu.Unlock()

	for _, cf := range files {
		if err := m.flushCollection(cf); err != nil {
			return err
		}
	}
	return nil
}

// flushCollection persists cf's buffered records by writing the records
// held in memory for the file (loaded on first use, then extended by
// earlier flushes) followed by the buffered rows to a temporary sibling
// file, then atomically renaming over the target. The file is not read
// again at flush time, so rows written to it by anything else since it
// was loaded are replaced. A crash at any point leaves either the old or
// the new complete file, never a torn one.
func (m *Manager) flushCollection(cf *collectionFile) error {
	cf.mu.Lock()
	defer cf.mu.Unlock()

	if len(cf.buffered) == 0 {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(cf.path), 0o755); err != nil {
		return pkgerrors.NewIoError(cf.path, err)
	}

	tmpPath := cf.path + ".tmp"
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return pkgerrors.NewIoError(cf.path, err)
	}

	writer := bufio.NewWriter(tmp)
	all := make([]Record, 0, len(cf.existing)+len(cf.buffered))
	all = append(all, cf.existing...)
	all = append(all, cf.buffered...)

	for _, rec := range all {
		b, err := json.Marshal(rec)
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return pkgerrors.NewIoError(cf.path, err)
		}
		if _, err := writer.Write(b); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return pkgerrors.NewIoError(cf.path, err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return pkgerrors.NewIoError(cf.path, err)
		}
	}

	if err := writer.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return pkgerrors.NewIoError(cf.path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return pkgerrors.NewIoError(cf.path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return pkgerrors.NewIoError(cf.path, err)
	}

	if err := os.Rename(tmpPath, cf.path); err != nil {
		os.Remove(tmpPath)
		return pkgerrors.NewIoError(cf.path, err)
	}

	cf.existing = all
	cf.buffered = nil
	return nil
}

// Close flushes all buffered records. It is safe to call more than once.
func (m *Manager) Close() error {
	return m.Flush()
}
