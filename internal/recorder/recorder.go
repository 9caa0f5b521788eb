// Package recorder keeps a rotating JSONL trace of decisions and outcomes
// for local debugging. Nothing reads these files at runtime.
package recorder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	MaxRotatedFiles = 5
	DefaultTraceDir = "data/traces"
)

// Entry is one record in the trace.
type Entry struct {
	Timestamp time.Time   `json:"ts"`
	Kind      string      `json:"kind"`
	TabID     string      `json:"tab_id,omitempty"`
	Data      interface{} `json:"data"`
}

// Recorder writes one trace file per agent run, rotating old runs out.
type Recorder struct {
	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
	dir     string
}

// New ensures the trace directory exists.
func New(dir string) (*Recorder, error) {
	if dir == "" {
		dir = DefaultTraceDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Recorder{dir: dir}, nil
}

// Start opens the trace file for this run and drops runs beyond the
// rotation limit.
func (r *Recorder) Start(runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		_ = r.file.Close()
		r.file = nil
	}

	if err := r.rotate(); err != nil {
		return fmt.Errorf("rotate traces: %w", err)
	}

	path := filepath.Join(r.dir, fmt.Sprintf("run_%s_%d.jsonl", runID, time.Now().UnixMilli()))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	r.file = f
	r.encoder = json.NewEncoder(f)
	return nil
}

// Trace appends one entry. Safe to call before Start or after Close; the
// entry is dropped.
func (r *Recorder) Trace(kind, tabID string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.encoder == nil {
		return
	}
	_ = r.encoder.Encode(Entry{
		Timestamp: time.Now(),
		Kind:      kind,
		TabID:     tabID,
		Data:      data,
	})
}

// rotate keeps only the newest MaxRotatedFiles-1 so the new run fits.
func (r *Recorder) rotate() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return err
	}

	var runs []struct {
		name string
		mod  time.Time
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		runs = append(runs, struct {
			name string
			mod  time.Time
		}{e.Name(), info.ModTime()})
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].mod.After(runs[j].mod)
	})

	if len(runs) >= MaxRotatedFiles {
		for i := MaxRotatedFiles - 1; i < len(runs); i++ {
			_ = os.Remove(filepath.Join(r.dir, runs[i].name))
		}
	}
	return nil
}

// Close finishes the current trace.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		r.encoder = nil
		return err
	}
	return nil
}
