package store

import (
	"time"
)

// EntryType defines the kind of transcript record.
type EntryType string

const (
	TypeSession     EntryType = "session"
	TypeTurn        EntryType = "turn"
	TypeModelChange EntryType = "model_change"
	TypeContext     EntryType = "context"
	TypeSink        EntryType = "sink"
)

// Role defines who produced a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Segment is a single text fragment of a turn.
type Segment struct {
	Text string `json:"text"`
}

// Turn is one role-tagged unit of the conversation.
// Turns are never modified after they are appended to a history.
type Turn struct {
	ID       string    `json:"id"`
	Role     Role      `json:"role"`
	Segments []Segment `json:"segments"`
	// Synthetic marks turns injected by the session itself (sink instructions)
	// rather than typed by the operator.
	Synthetic bool      `json:"synthetic,omitempty"`
	Model     string    `json:"model,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Text joins the turn's segments in order.
func (t Turn) Text() string {
	var n int
	for _, s := range t.Segments {
		n += len(s.Text)
	}
	b := make([]byte, 0, n)
	for _, s := range t.Segments {
		b = append(b, s.Text...)
	}
	return string(b)
}

// Clone returns a deep copy of the turn.
func (t Turn) Clone() Turn {
	c := t
	c.Segments = append([]Segment(nil), t.Segments...)
	return c
}

// Header is the first line of a transcript file.
type Header struct {
	Type      EntryType `json:"type"` // Always "session"
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"timestamp"`
}

// Entry is a tagged union of everything a transcript records.
type Entry struct {
	Type      EntryType `json:"type"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`

	// Payload pointers - only one will be non-nil
	Turn        *Turn             `json:"turn,omitempty"`
	ModelChange *ModelChangeEntry `json:"model_change,omitempty"`
	Context     *ContextEntry     `json:"context,omitempty"`
	Sink        *SinkEntry        `json:"sink,omitempty"`
}

// ModelChangeEntry records a switch of the active model.
type ModelChangeEntry struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ContextEntry records that a context file was loaded for the next turn.
type ContextEntry struct {
	Path  string `json:"path"`
	Bytes int    `json:"bytes"`
}

// SinkEntry records the output sink being toggled or written.
type SinkEntry struct {
	Path    string `json:"path,omitempty"`
	Enabled bool   `json:"enabled"`
	Written bool   `json:"written,omitempty"`
}

// Recorder receives every state change of a session.
type Recorder interface {
	Record(entry Entry) error
	Close() error
}
