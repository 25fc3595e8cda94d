// internal/context/counter.go
package context

import (
	"log/slog"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Counter measures text in model tokens.
type Counter interface {
	Count(text string) int
}

// tiktokenCounter counts with a BPE encoding.
type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// ApproxCounter estimates four characters per token.
type ApproxCounter struct{}

func (ApproxCounter) Count(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// NewCounter picks the tokenizer for model, falling back to cl100k_base
// and then to ApproxCounter when no encoding can be loaded.
func NewCounter(model string) Counter {
	enc, err := tiktoken.EncodingForModel(model)
	if err == nil {
		return tiktokenCounter{enc: enc}
	}
	enc, err = tiktoken.GetEncoding("cl100k_base")
	if err == nil {
		return tiktokenCounter{enc: enc}
	}
	slog.Warn("tokenizer unavailable, estimating token counts", "model", model, "error", err)
	return ApproxCounter{}
}
