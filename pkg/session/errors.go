package session

import "fmt"

// ConfigError rejects an invalid configuration change. The previous state is
// kept.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ContextLoadError reports a context file that could not be read. No context
// is pending afterwards.
type ContextLoadError struct {
	Path string
	Err  error
}

func (e *ContextLoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("context file path: %v", e.Err)
	}
	return fmt.Sprintf("error reading context file %s: %v", e.Path, e.Err)
}

func (e *ContextLoadError) Unwrap() error { return e.Err }
