// Package extract pulls delimited content blocks out of model replies.
package extract

import "strings"

// Delimiters is an opening/closing tag pair.
type Delimiters struct {
	Open  string
	Close string
}

// FileContent is the pair the chat asks the model to wrap file bodies in.
var FileContent = Delimiters{Open: "<file_content>", Close: "</file_content>"}

// Extract returns the trimmed text between the first Open and the first Close
// that follows it. ok is false when either delimiter is missing.
// Only the first pair is honored.
func Extract(text string, d Delimiters) (content string, ok bool) {
	if d.Open == "" || d.Close == "" {
		return "", false
	}
	start := strings.Index(text, d.Open)
	if start < 0 {
		return "", false
	}
	rest := text[start+len(d.Open):]
	end := strings.Index(rest, d.Close)
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}
