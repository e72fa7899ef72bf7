package session

import (
	"context"
	"fmt"
)

// Command is one operator request. The concrete types are ChangeModel,
// SubmitTurn, ToggleSink and LoadContext.
type Command interface {
	isCommand()
}

// ChangeModel switches the active model.
type ChangeModel struct{ Name string }

// SubmitTurn sends a user message.
type SubmitTurn struct{ Text string }

// ToggleSink flips the output sink; Path is only used when turning it on.
type ToggleSink struct{ Path string }

// LoadContext reads a file to attach to the next user message.
type LoadContext struct{ Path string }

func (ChangeModel) isCommand() {}
func (SubmitTurn) isCommand()  {}
func (ToggleSink) isCommand()  {}
func (LoadContext) isCommand() {}

// Outcome is what Apply produced. Exactly the field matching the command
// type is set.
type Outcome struct {
	Model   string
	Turn    *TurnOutcome
	Sink    *SinkChange
	Context string
}

// Apply runs cmd against the session. Errors are the recoverable ConfigError
// and ContextLoadError; endpoint failures are reported in Outcome.Turn.
func (s *Session) Apply(ctx context.Context, cmd Command) (Outcome, error) {
	switch c := cmd.(type) {
	case ChangeModel:
		if err := s.ChangeModel(c.Name); err != nil {
			return Outcome{}, err
		}
		return Outcome{Model: s.ActiveModel()}, nil
	case SubmitTurn:
		out := s.SubmitUserTurn(ctx, c.Text)
		return Outcome{Turn: &out}, nil
	case ToggleSink:
		change, err := s.ToggleSink(c.Path)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Sink: &change}, nil
	case LoadContext:
		if err := s.LoadContext(c.Path); err != nil {
			return Outcome{}, err
		}
		return Outcome{Context: c.Path}, nil
	default:
		return Outcome{}, fmt.Errorf("unknown command %T", cmd)
	}
}
