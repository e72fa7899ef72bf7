// Package session holds the state of one interactive conversation: its
// history, active model, one-shot context and output sink.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mariozechner/coding-agent/chat/pkg/extract"
	"github.com/mariozechner/coding-agent/chat/pkg/models"
	"github.com/mariozechner/coding-agent/chat/pkg/store"
)

// DefaultModel is the model a new session starts with.
const DefaultModel = "gemini-2.5-flash-preview-05-20"

// Instructions appended to the history when the sink is toggled.
const (
	SinkOnInstruction  = "I want your next answers to be written to a file. Please use <file_content>...</file_content> tags and everything within the tags will be written to the file."
	SinkOffInstruction = "I got what I needed for my file, you don't have to use file_content tags anymore"
)

// Session is one conversation with a text-generation endpoint.
// All methods are safe for concurrent use; turns are serialized so that
// appending to the history and calling the endpoint happen as one step.
// Accessors stay responsive while a turn waits on the endpoint.
type Session struct {
	// turnMu serializes turns and state changes. mu guards the fields below
	// and is never held across an endpoint call.
	turnMu sync.Mutex
	mu     sync.Mutex

	id       string
	provider models.Provider
	recorder store.Recorder
	delims   extract.Delimiters
	logger   *slog.Logger

	history        []store.Turn
	activeModel    string
	pendingContext *string
	outputSink     string
}

// Option configures a Session at construction.
type Option func(*Session)

// WithModel overrides DefaultModel. Blank names are ignored.
func WithModel(name string) Option {
	return func(s *Session) {
		if name = strings.TrimSpace(name); name != "" {
			s.activeModel = name
		}
	}
}

// WithRecorder sends every state change to r.
func WithRecorder(r store.Recorder) Option {
	return func(s *Session) {
		s.recorder = r
	}
}

// WithDelimiters changes the tags searched for in sink mode.
func WithDelimiters(d extract.Delimiters) Option {
	return func(s *Session) {
		s.delims = d
	}
}

// WithID fixes the session ID instead of generating one.
func WithID(id string) Option {
	return func(s *Session) {
		s.id = id
	}
}

// WithLogger replaces slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// New starts a session with an empty history, the default model, no pending
// context and no sink.
func New(provider models.Provider, opts ...Option) *Session {
	s := &Session{
		id:          uuid.New().String(),
		provider:    provider,
		delims:      extract.FileContent,
		logger:      slog.Default(),
		activeModel: DefaultModel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("sessionID", s.id)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// ActiveModel returns the model used for the next turn.
func (s *Session) ActiveModel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeModel
}

// PendingContext returns the context waiting to be attached to the next turn.
func (s *Session) PendingContext() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingContext == nil {
		return "", false
	}
	return *s.pendingContext, true
}

// OutputSink returns the file completions are extracted into, if set.
func (s *Session) OutputSink() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outputSink, s.outputSink != ""
}

// History returns a copy of the conversation so far.
func (s *Session) History() []store.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTurns(s.history)
}

// ListModels asks the provider which models it offers.
func (s *Session) ListModels(ctx context.Context) ([]string, error) {
	return s.provider.List(ctx)
}

// ChangeModel switches the active model. The history is not touched.
func (s *Session) ChangeModel(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &ConfigError{Field: "model", Reason: "model name cannot be empty"}
	}

	s.turnMu.Lock()
	defer s.turnMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.activeModel
	s.activeModel = name
	s.logger.Info("Model changed", "from", prev, "to", name)
	s.record(store.Entry{Type: store.TypeModelChange, ModelChange: &store.ModelChangeEntry{From: prev, To: name}})
	return nil
}

// LoadContext reads path and holds its content for the next user turn.
// On failure no context is pending.
func (s *Session) LoadContext(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return &ContextLoadError{Err: errors.New("path cannot be empty")}
	}

	s.turnMu.Lock()
	defer s.turnMu.Unlock()

	data, readErr := os.ReadFile(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	if readErr != nil {
		s.pendingContext = nil
		s.logger.Warn("Failed to load context", "path", path, "error", readErr)
		return &ContextLoadError{Path: path, Err: readErr}
	}

	content := string(data)
	s.pendingContext = &content
	s.logger.Info("Loaded context", "path", path, "bytes", len(data))
	s.record(store.Entry{Type: store.TypeContext, Context: &store.ContextEntry{Path: path, Bytes: len(data)}})
	return nil
}

// SinkChange describes the effect of ToggleSink.
type SinkChange struct {
	Enabled bool
	// Path is the sink that was enabled or disabled.
	Path string
	// Instruction is the synthetic user turn appended to the history.
	Instruction store.Turn
}

// ToggleSink enables the output sink at path when it is off, or disables it
// when it is on (path is then ignored). Either way a synthetic user turn
// telling the model to start or stop wrapping answers in the delimiters is
// appended. The endpoint is not called.
func (s *Session) ToggleSink(path string) (SinkChange, error) {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.outputSink != "" {
		prev := s.outputSink
		s.outputSink = ""
		turn := s.appendInstruction(SinkOffInstruction)
		s.logger.Info("Stopped writing responses", "path", prev)
		s.record(store.Entry{Type: store.TypeSink, Sink: &store.SinkEntry{Path: prev, Enabled: false}})
		return SinkChange{Enabled: false, Path: prev, Instruction: turn}, nil
	}

	path = strings.TrimSpace(path)
	if path == "" {
		return SinkChange{}, &ConfigError{Field: "sink", Reason: "file path for writing cannot be empty"}
	}
	s.outputSink = path
	turn := s.appendInstruction(SinkOnInstruction)
	s.logger.Info("Entering write file mode", "path", path)
	s.record(store.Entry{Type: store.TypeSink, Sink: &store.SinkEntry{Path: path, Enabled: true}})
	return SinkChange{Enabled: true, Path: path, Instruction: turn}, nil
}

// SinkWrite reports what happened to a completion in sink mode.
type SinkWrite struct {
	Path string
	// Written is true when extracted content was saved to Path.
	Written bool
	// Missing is true when the completion had no delimited block.
	Missing bool
	// Err is the write failure, if any.
	Err error
}

// TurnOutcome is the result of SubmitUserTurn.
type TurnOutcome struct {
	// Submitted is false when the input was blank and nothing happened.
	Submitted bool
	Result    models.TurnResult
	// Sink is set only for successful completions while the sink is on.
	Sink *SinkWrite
}

// SubmitUserTurn appends a user turn made of the pending context (if any) and
// text, clears the pending context, and calls the endpoint once.
//
// A successful completion is appended as a model turn. Blocked and
// unavailable results leave only the user turn behind so the operator can
// resubmit without losing context. Blank text is a no-op.
func (s *Session) SubmitUserTurn(ctx context.Context, text string) TurnOutcome {
	if strings.TrimSpace(text) == "" {
		return TurnOutcome{}
	}

	s.turnMu.Lock()
	defer s.turnMu.Unlock()

	s.mu.Lock()
	segments := make([]store.Segment, 0, 2)
	if s.pendingContext != nil {
		segments = append(segments, store.Segment{Text: *s.pendingContext})
		s.pendingContext = nil
	}
	segments = append(segments, store.Segment{Text: text})
	s.appendTurn(store.Turn{Role: store.RoleUser, Segments: segments})
	model, sink := s.activeModel, s.outputSink
	history := cloneTurns(s.history)
	s.mu.Unlock()

	s.logger.Info("Calling model", "model", model, "turns", len(history))
	result := s.provider.Generate(ctx, model, history)

	out := TurnOutcome{Submitted: true, Result: result}
	switch result.Kind {
	case models.ResultSuccess:
		s.mu.Lock()
		s.appendTurn(store.Turn{
			Role:     store.RoleModel,
			Segments: []store.Segment{{Text: result.Text}},
			Model:    model,
		})
		s.mu.Unlock()
		if sink != "" {
			out.Sink = s.writeSink(sink, result.Text)
		}
	case models.ResultBlocked:
		s.logger.Warn("Prompt was blocked", "reason", result.Reason)
	default:
		s.logger.Error("Model call failed", "reason", result.Reason, "error", result.Err)
	}
	return out
}

// writeSink must be called with s.turnMu held.
func (s *Session) writeSink(path, completion string) *SinkWrite {
	w := &SinkWrite{Path: path}
	content, ok := extract.Extract(completion, s.delims)
	if !ok {
		w.Missing = true
		s.logger.Warn("No delimited block found in the model's response", "open", s.delims.Open)
		return w
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		w.Err = fmt.Errorf("error writing to file %s: %w", path, err)
		s.logger.Error("Failed to write sink", "path", path, "error", err)
		return w
	}
	w.Written = true
	s.logger.Info("Wrote content to sink", "path", path, "bytes", len(content))
	s.record(store.Entry{Type: store.TypeSink, Sink: &store.SinkEntry{Path: path, Enabled: true, Written: true}})
	return w
}

func (s *Session) appendInstruction(text string) store.Turn {
	return s.appendTurn(store.Turn{
		Role:      store.RoleUser,
		Segments:  []store.Segment{{Text: text}},
		Synthetic: true,
	})
}

// appendTurn must be called with s.turnMu and s.mu held.
func (s *Session) appendTurn(turn store.Turn) store.Turn {
	turn.ID = uuid.New().String()
	turn.Timestamp = time.Now()
	s.history = append(s.history, turn)
	s.record(store.Entry{Type: store.TypeTurn, Turn: &turn})
	return turn.Clone()
}

func (s *Session) record(e store.Entry) {
	if s.recorder == nil {
		return
	}
	e.SessionID = s.id
	if err := s.recorder.Record(e); err != nil {
		s.logger.Error("Failed to record transcript entry", "type", e.Type, "error", err)
	}
}

func cloneTurns(turns []store.Turn) []store.Turn {
	out := make([]store.Turn, len(turns))
	for i, t := range turns {
		out[i] = t.Clone()
	}
	return out
}
