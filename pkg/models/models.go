package models

import (
	"context"
	"fmt"

	"github.com/mariozechner/coding-agent/chat/pkg/store"
)

// ResultKind classifies a normalized endpoint reply.
type ResultKind int

const (
	// ResultSuccess means the endpoint returned completion text.
	ResultSuccess ResultKind = iota
	// ResultBlocked means the endpoint refused the prompt on policy grounds.
	ResultBlocked
	// ResultUnavailable means no usable reply was obtained.
	ResultUnavailable
)

func (k ResultKind) String() string {
	switch k {
	case ResultSuccess:
		return "success"
	case ResultBlocked:
		return "blocked"
	case ResultUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("ResultKind(%d)", int(k))
	}
}

// TurnResult is the normalized outcome of one endpoint call.
type TurnResult struct {
	Kind ResultKind
	// Text is set for ResultSuccess.
	Text string
	// Reason is the block reason for ResultBlocked, or a short description
	// for ResultUnavailable.
	Reason string
	// Err carries the transport failure behind a ResultUnavailable, if any.
	Err error
}

// Success builds a ResultSuccess.
func Success(text string) TurnResult {
	return TurnResult{Kind: ResultSuccess, Text: text}
}

// Blocked builds a ResultBlocked.
func Blocked(reason string) TurnResult {
	return TurnResult{Kind: ResultBlocked, Reason: reason}
}

// Unavailable builds a ResultUnavailable.
func Unavailable(detail string, err error) TurnResult {
	return TurnResult{Kind: ResultUnavailable, Reason: detail, Err: err}
}

// Provider represents a text-generation endpoint.
type Provider interface {
	// List returns the names of available models.
	List(ctx context.Context) ([]string, error)

	// Generate sends the whole history to modelName and returns the
	// normalized reply. It never returns a Go error: failures are folded
	// into a ResultUnavailable.
	Generate(ctx context.Context, modelName string, history []store.Turn) TurnResult
}
