package jsonl

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mariozechner/coding-agent/chat/pkg/store"
)

// Recorder implements store.Recorder by appending JSON lines to a transcript
// file named after the session ID. Transcripts are write-only: nothing in the
// chat ever loads a session back from one.
type Recorder struct {
	mu         sync.Mutex
	filePath   string
	fileHandle *os.File
	header     store.Header
}

var _ store.Recorder = (*Recorder)(nil)

// NewRecorder creates dir if needed and opens <dir>/<sessionID>.jsonl,
// writing the header as the first line.
func NewRecorder(dir, sessionID, model string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create transcript directory: %w", err)
	}

	path := filepath.Join(dir, sessionID+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcript file: %w", err)
	}

	r := &Recorder{
		filePath:   path,
		fileHandle: f,
		header: store.Header{
			Type:      store.TypeSession,
			ID:        sessionID,
			Model:     model,
			Version:   1,
			CreatedAt: time.Now(),
		},
	}

	if err := r.writeLine(r.header); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write transcript header: %w", err)
	}
	return r, nil
}

// Path returns the transcript file location.
func (r *Recorder) Path() string { return r.filePath }

// Header returns the metadata written on the first line.
func (r *Recorder) Header() store.Header { return r.header }

// Record appends one entry.
func (r *Recorder) Record(e store.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fileHandle == nil {
		return fmt.Errorf("transcript %s is closed", r.filePath)
	}
	if e.SessionID == "" {
		e.SessionID = r.header.ID
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return r.writeLine(e)
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fileHandle == nil {
		return nil
	}
	err := r.fileHandle.Close()
	r.fileHandle = nil
	return err
}

func (r *Recorder) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := r.fileHandle.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}
