package tokenizer

import (
	"unicode/utf8"
)

// Encoder is a pluggable token-encoding backend. Implementations may wrap a
// real BPE tokenizer; the Counter only needs the number of tokens produced.
type Encoder interface {
	Encode(text string) ([]int, error)
}

// Counter estimates token counts for message content. It never fails: when
// no encoder is configured, or the encoder errors, it falls back to a
// character-length heuristic of roughly 4 characters per token.
type Counter struct {
	enc Encoder
}

// NewCounter creates a counter backed by the given encoder. A nil encoder is
// valid and selects the heuristic estimate for every call.
func NewCounter(enc Encoder) *Counter {
	return &Counter{enc: enc}
}

// Count returns the token count for text. The result is meant to be computed
// once per message at creation time and cached on the message record.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.enc != nil {
		if ids, err := c.enc.Encode(text); err == nil {
			return len(ids)
		}
	}
	return Estimate(text)
}

// Estimate is the documented heuristic fallback: ceil(runes / 4).
func Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}
