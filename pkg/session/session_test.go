package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mariozechner/coding-agent/chat/pkg/models"
	"github.com/mariozechner/coding-agent/chat/pkg/store"
)

// MockModel answers every call with Result and remembers what it was sent.
type MockModel struct {
	mu      sync.Mutex
	Result  models.TurnResult
	Calls   int
	Models  []string
	Sent    [][]store.Turn
	ListErr error
}

func (m *MockModel) List(ctx context.Context) ([]string, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return []string{"models/mock-model"}, nil
}

func (m *MockModel) Generate(ctx context.Context, modelName string, history []store.Turn) models.TurnResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	m.Models = append(m.Models, modelName)
	m.Sent = append(m.Sent, history)
	return m.Result
}

type memRecorder struct {
	entries []store.Entry
}

func (r *memRecorder) Record(e store.Entry) error {
	r.entries = append(r.entries, e)
	return nil
}

func (r *memRecorder) Close() error { return nil }

func assertAlternates(t *testing.T, history []store.Turn) {
	t.Helper()
	for i, turn := range history {
		want := store.RoleUser
		if i%2 == 1 {
			want = store.RoleModel
		}
		if turn.Role != want {
			t.Fatalf("turn %d: role %s, want %s", i, turn.Role, want)
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	s := New(&MockModel{})
	if s.ActiveModel() != DefaultModel {
		t.Errorf("expected default model, got %q", s.ActiveModel())
	}
	if len(s.History()) != 0 {
		t.Error("expected empty history")
	}
	if _, ok := s.PendingContext(); ok {
		t.Error("expected no pending context")
	}
	if _, ok := s.OutputSink(); ok {
		t.Error("expected no sink")
	}
	if s.ID() == "" {
		t.Error("expected generated ID")
	}
}

func TestSubmitUserTurn_AlternatesAndGrows(t *testing.T) {
	mock := &MockModel{Result: models.Success("ok")}
	s := New(mock)

	const n = 5
	for i := 0; i < n; i++ {
		out := s.SubmitUserTurn(context.Background(), "hello")
		if !out.Submitted || out.Result.Kind != models.ResultSuccess {
			t.Fatalf("turn %d: unexpected outcome %+v", i, out)
		}
		if out.Sink != nil {
			t.Fatalf("turn %d: sink outcome without sink", i)
		}
	}

	history := s.History()
	if len(history) != 2*n {
		t.Fatalf("expected %d turns, got %d", 2*n, len(history))
	}
	assertAlternates(t, history)

	// The endpoint sees the whole history, ending with the new user turn.
	last := mock.Sent[n-1]
	if len(last) != 2*n-1 || last[len(last)-1].Role != store.RoleUser {
		t.Errorf("unexpected history sent on last call: %d turns", len(last))
	}
}

func TestSubmitUserTurn_BlankIsNoop(t *testing.T) {
	mock := &MockModel{Result: models.Success("ok")}
	s := New(mock)

	for _, in := range []string{"", "   ", "\n\t"} {
		out := s.SubmitUserTurn(context.Background(), in)
		if out.Submitted {
			t.Errorf("blank input %q should not be submitted", in)
		}
	}
	if mock.Calls != 0 || len(s.History()) != 0 {
		t.Error("blank input must not touch the endpoint or history")
	}
}

func TestSubmitUserTurn_FailureKeepsOnlyUserTurn(t *testing.T) {
	tests := []struct {
		name   string
		result models.TurnResult
	}{
		{"unavailable", models.Unavailable("no reply from endpoint", errors.New("dial tcp: refused"))},
		{"blocked", models.Blocked("SAFETY")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(&MockModel{Result: tt.result})
			out := s.SubmitUserTurn(context.Background(), "Hello")

			if out.Result.Kind != tt.result.Kind {
				t.Fatalf("expected %v, got %v", tt.result.Kind, out.Result.Kind)
			}
			history := s.History()
			if len(history) != 1 || history[0].Role != store.RoleUser {
				t.Fatalf("expected exactly the user turn, got %+v", history)
			}
		})
	}
}

func TestSubmitUserTurn_BlockedReasonVerbatim(t *testing.T) {
	s := New(&MockModel{Result: models.Blocked("PROHIBITED_CONTENT")})
	out := s.SubmitUserTurn(context.Background(), "x")
	if out.Result.Reason != "PROHIBITED_CONTENT" {
		t.Errorf("unexpected reason %q", out.Result.Reason)
	}
}

func TestSubmitUserTurn_ConsumesContext(t *testing.T) {
	dir := t.TempDir()
	ctxFile := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(ctxFile, []byte("some notes"), 0644); err != nil {
		t.Fatal(err)
	}

	for _, result := range []models.TurnResult{models.Success("ok"), models.Unavailable("down", nil)} {
		t.Run(result.Kind.String(), func(t *testing.T) {
			s := New(&MockModel{Result: result})
			if err := s.LoadContext(ctxFile); err != nil {
				t.Fatal(err)
			}
			if got, ok := s.PendingContext(); !ok || got != "some notes" {
				t.Fatalf("unexpected pending context (%q, %v)", got, ok)
			}

			s.SubmitUserTurn(context.Background(), "summarize")

			user := s.History()[0]
			if len(user.Segments) != 2 {
				t.Fatalf("expected 2 segments, got %d", len(user.Segments))
			}
			if user.Segments[0].Text != "some notes" || user.Segments[1].Text != "summarize" {
				t.Errorf("unexpected segments %+v", user.Segments)
			}
			if _, ok := s.PendingContext(); ok {
				t.Error("pending context should be cleared after the turn")
			}

			// The next turn carries only the literal input.
			s.SubmitUserTurn(context.Background(), "again")
			history := s.History()
			next := history[len(history)-1]
			if next.Role == store.RoleModel {
				next = history[len(history)-2]
			}
			if len(next.Segments) != 1 || next.Segments[0].Text != "again" {
				t.Errorf("context leaked into a later turn: %+v", next.Segments)
			}
		})
	}
}

func TestLoadContext_Errors(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.txt")
	os.WriteFile(good, []byte("ctx"), 0644)

	s := New(&MockModel{})
	if err := s.LoadContext(good); err != nil {
		t.Fatal(err)
	}

	err := s.LoadContext(filepath.Join(dir, "missing.txt"))
	var loadErr *ContextLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected ContextLoadError, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected wrapped not-exist error, got %v", err)
	}
	if _, ok := s.PendingContext(); ok {
		t.Error("failed load should leave no pending context")
	}

	if err := s.LoadContext("  "); !errors.As(err, &loadErr) {
		t.Errorf("expected ContextLoadError for empty path, got %v", err)
	}
}

func TestChangeModel(t *testing.T) {
	mock := &MockModel{Result: models.Success("Hi there")}
	s := New(mock)

	if err := s.ChangeModel("  "); err == nil {
		t.Fatal("expected error for empty model")
	} else {
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("expected ConfigError, got %T", err)
		}
	}
	if s.ActiveModel() != DefaultModel {
		t.Errorf("rejected change should keep the previous model, got %q", s.ActiveModel())
	}

	if err := s.ChangeModel("alt-model"); err != nil {
		t.Fatal(err)
	}
	if len(s.History()) != 0 {
		t.Error("changing the model must not touch the history")
	}

	out := s.SubmitUserTurn(context.Background(), "Hello")
	if out.Result.Kind != models.ResultSuccess || out.Result.Text != "Hi there" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(s.History()) != 2 {
		t.Errorf("expected 2 turns, got %d", len(s.History()))
	}
	if s.ActiveModel() != "alt-model" || mock.Models[0] != "alt-model" {
		t.Errorf("expected alt-model to be used, got %q / %v", s.ActiveModel(), mock.Models)
	}
	if s.History()[1].Model != "alt-model" {
		t.Errorf("model turn should record the model, got %q", s.History()[1].Model)
	}
}

func TestToggleSink_OnOff(t *testing.T) {
	mock := &MockModel{Result: models.Success("ok")}
	s := New(mock)
	path := filepath.Join(t.TempDir(), "out.txt")

	on, err := s.ToggleSink(path)
	if err != nil {
		t.Fatal(err)
	}
	if !on.Enabled || on.Path != path {
		t.Errorf("unexpected change %+v", on)
	}
	if got, ok := s.OutputSink(); !ok || got != path {
		t.Errorf("sink not set: (%q, %v)", got, ok)
	}

	off, err := s.ToggleSink("ignored")
	if err != nil {
		t.Fatal(err)
	}
	if off.Enabled || off.Path != path {
		t.Errorf("unexpected change %+v", off)
	}
	if _, ok := s.OutputSink(); ok {
		t.Error("sink should be cleared")
	}

	history := s.History()
	if len(history) != 2 {
		t.Fatalf("expected 2 synthetic turns, got %d", len(history))
	}
	for i, want := range []string{SinkOnInstruction, SinkOffInstruction} {
		if history[i].Role != store.RoleUser || !history[i].Synthetic || history[i].Text() != want {
			t.Errorf("turn %d: unexpected %+v", i, history[i])
		}
	}
	if mock.Calls != 0 {
		t.Error("toggling the sink must not call the endpoint")
	}
}

func TestToggleSink_EmptyPath(t *testing.T) {
	s := New(&MockModel{})
	_, err := s.ToggleSink("")
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if len(s.History()) != 0 {
		t.Error("rejected toggle must not append a turn")
	}
}

func TestSink_WritesExtractedContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	if err := os.WriteFile(path, []byte("old content that is longer"), 0644); err != nil {
		t.Fatal(err)
	}

	s := New(&MockModel{Result: models.Success("<file_content>BODY</file_content>")})
	if _, err := s.ToggleSink(path); err != nil {
		t.Fatal(err)
	}

	out := s.SubmitUserTurn(context.Background(), "give file")
	if out.Sink == nil || !out.Sink.Written || out.Sink.Path != path {
		t.Fatalf("unexpected sink outcome %+v", out.Sink)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "BODY" {
		t.Errorf("expected file to contain exactly BODY, got %q", data)
	}
	if out.Result.Text != "<file_content>BODY</file_content>" {
		t.Errorf("raw text should be returned alongside, got %q", out.Result.Text)
	}
}

func TestSink_MissingDelimiter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	s := New(&MockModel{Result: models.Success("no tags here")})
	s.ToggleSink(path)

	out := s.SubmitUserTurn(context.Background(), "give file")
	if out.Sink == nil || !out.Sink.Missing || out.Sink.Written {
		t.Fatalf("unexpected sink outcome %+v", out.Sink)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("no file should be written on a miss")
	}
}

func TestSink_WriteFailureIsReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no-such-dir", "out.txt")
	s := New(&MockModel{Result: models.Success("<file_content>x</file_content>")})
	s.ToggleSink(path)

	out := s.SubmitUserTurn(context.Background(), "give file")
	if out.Sink == nil || out.Sink.Err == nil || out.Sink.Written {
		t.Fatalf("expected write error, got %+v", out.Sink)
	}
	if got, ok := s.OutputSink(); !ok || got != path {
		t.Error("write failure must not change the sink")
	}
	if len(s.History()) != 3 {
		t.Errorf("expected instruction, user and model turns, got %d", len(s.History()))
	}
}

func TestSink_NotUsedOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	s := New(&MockModel{Result: models.Blocked("SAFETY")})
	s.ToggleSink(path)

	out := s.SubmitUserTurn(context.Background(), "give file")
	if out.Sink != nil {
		t.Errorf("sink should only be consulted on success, got %+v", out.Sink)
	}
}

func TestApply_Dispatch(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	ctxFile := filepath.Join(dir, "c.txt")
	os.WriteFile(ctxFile, []byte("C"), 0644)

	s := New(&MockModel{Result: models.Success("Hi")})

	out, err := s.Apply(ctx, ChangeModel{Name: "alt-model"})
	if err != nil || out.Model != "alt-model" {
		t.Fatalf("ChangeModel: %+v, %v", out, err)
	}

	out, err = s.Apply(ctx, LoadContext{Path: ctxFile})
	if err != nil || out.Context != ctxFile {
		t.Fatalf("LoadContext: %+v, %v", out, err)
	}

	out, err = s.Apply(ctx, ToggleSink{Path: filepath.Join(dir, "o.txt")})
	if err != nil || out.Sink == nil || !out.Sink.Enabled {
		t.Fatalf("ToggleSink: %+v, %v", out, err)
	}

	out, err = s.Apply(ctx, SubmitTurn{Text: "Hello"})
	if err != nil || out.Turn == nil || out.Turn.Result.Text != "Hi" {
		t.Fatalf("SubmitTurn: %+v, %v", out, err)
	}

	if _, err := s.Apply(ctx, ChangeModel{}); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := s.Apply(ctx, nil); err == nil {
		t.Error("expected error for nil command")
	}
}

func TestRecorder_ReceivesEntries(t *testing.T) {
	rec := &memRecorder{}
	s := New(&MockModel{Result: models.Success("ok")}, WithRecorder(rec), WithID("fixed"))

	s.ChangeModel("m2")
	s.SubmitUserTurn(context.Background(), "hi")

	if len(rec.entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(rec.entries))
	}
	wantTypes := []store.EntryType{store.TypeModelChange, store.TypeTurn, store.TypeTurn}
	for i, e := range rec.entries {
		if e.Type != wantTypes[i] || e.SessionID != "fixed" {
			t.Errorf("entry %d: unexpected %+v", i, e)
		}
	}
}

func TestHistory_ReturnsCopy(t *testing.T) {
	s := New(&MockModel{Result: models.Success("ok")})
	s.SubmitUserTurn(context.Background(), "hi")

	h := s.History()
	h[0].Segments[0].Text = "tampered"
	if s.History()[0].Segments[0].Text != "hi" {
		t.Error("History must not expose internal state")
	}
}

func TestSubmitUserTurn_ConcurrentTurnsAreSerialized(t *testing.T) {
	s := New(&MockModel{Result: models.Success("ok")})

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.SubmitUserTurn(context.Background(), "hi")
		}()
	}
	wg.Wait()

	history := s.History()
	if len(history) != 2*n {
		t.Fatalf("expected %d turns, got %d", 2*n, len(history))
	}
	assertAlternates(t, history)
}

func TestListModels(t *testing.T) {
	s := New(&MockModel{})
	names, err := s.ListModels(context.Background())
	if err != nil || len(names) != 1 {
		t.Fatalf("unexpected (%v, %v)", names, err)
	}

	s = New(&MockModel{ListErr: errors.New("no key")})
	if _, err := s.ListModels(context.Background()); err == nil {
		t.Error("expected list error")
	}
}

// gateModel blocks in Generate until release is closed.
type gateModel struct {
	entered chan struct{}
	release chan struct{}
}

func newGateModel() *gateModel {
	return &gateModel{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gateModel) List(ctx context.Context) ([]string, error) { return nil, nil }

func (g *gateModel) Generate(ctx context.Context, modelName string, history []store.Turn) models.TurnResult {
	close(g.entered)
	<-g.release
	return models.Success("late")
}

func TestAccessors_DoNotWaitForEndpoint(t *testing.T) {
	g := newGateModel()
	s := New(g)

	done := make(chan TurnOutcome, 1)
	go func() { done <- s.SubmitUserTurn(context.Background(), "hi") }()
	<-g.entered

	read := make(chan int, 1)
	go func() {
		s.ActiveModel()
		s.PendingContext()
		s.OutputSink()
		read <- len(s.History())
	}()

	select {
	case n := <-read:
		if n != 1 {
			t.Errorf("expected the pending user turn only, got %d turns", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("accessors blocked while the endpoint call was in flight")
	}

	close(g.release)
	if out := <-done; out.Result.Kind != models.ResultSuccess {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if n := len(s.History()); n != 2 {
		t.Fatalf("expected 2 turns, got %d", n)
	}
}
