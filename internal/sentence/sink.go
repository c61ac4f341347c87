// Package sentence implements C9: a sink that consumes a lazy,
// possibly-infinite sequence of token strings and produces a lazy
// sequence of whitespace-trimmed sentences (spec §4.9).
package sentence

import "strings"

func isTerminal(r rune) bool { return r == '.' || r == '!' || r == '?' }

// Sink is restartable per new stream; within one stream, ordering of
// the tokens it was fed is preserved in the sentences it yields.
type Sink struct {
	buf strings.Builder
}

// New constructs an empty Sink.
func New() *Sink { return &Sink{} }

// Add appends one token and returns every complete sentence the token
// completed. A sentence boundary is the first occurrence of
// ([.!?])(whitespace); the punctuation stays with the preceding
// sentence. A terminal rune at the very end of the buffer is held until
// a later Add or Flush. Empty sentences (nothing but terminal
// punctuation) are suppressed.
func (s *Sink) Add(token string) []string {
	s.buf.WriteString(token)
	text := s.buf.String()

	var sentences []string
	start := 0
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		// A terminal punctuation rune ends a sentence only if it is
		// followed by whitespace/newline or is the last rune seen so
		// far — and since more tokens may still arrive, treat
		// "last rune in the buffer" as ambiguous and wait for the
		// next Add to resolve it, except when Flush forces it.
		if i+1 >= len(runes) {
			continue
		}
		next := runes[i+1]
		if next != ' ' && next != '\t' && next != '\n' && next != '\r' {
			continue
		}
		candidate := strings.TrimSpace(string(runes[start : i+1]))
		if strings.Trim(candidate, ".!?") != "" {
			sentences = append(sentences, candidate)
		}
		start = i + 1
	}

	s.buf.Reset()
	s.buf.WriteString(string(runes[start:]))
	return sentences
}

// Flush yields the trimmed tail on upstream termination, iff
// non-empty, and resets the Sink for a new stream.
func (s *Sink) Flush() (string, bool) {
	tail := strings.TrimSpace(s.buf.String())
	s.buf.Reset()
	if tail == "" {
		return "", false
	}
	return tail, true
}
