// Package tokenizer counts and trims model tokens so inputs stay inside provider limits.
package tokenizer

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is used for models tiktoken does not know, such as open-weight models
// served behind OpenAI-compatible APIs.
const DefaultEncoding = "cl100k_base"

var (
	encodingCache sync.Map
	defaultOnce   sync.Once
	defaultEnc    *tiktoken.Tiktoken
)

// CountTokens returns the token count of text for model. Without an encoding it falls back
// to a conservative len/4 estimate.
func CountTokens(model, text string) int {
	if text == "" {
		return 0
	}
	enc := getEncoding(model)
	if enc == nil {
		return estimate(text)
	}
	return len(enc.Encode(text, nil, nil))
}

// Truncate shortens text to at most maxTokens tokens. It reports whether text was cut.
// A token spans at least one byte, so text no longer than maxTokens bytes is returned
// without touching the encoder.
func Truncate(model, text string, maxTokens int) (string, bool) {
	if maxTokens <= 0 || len(text) <= maxTokens {
		return text, false
	}

	enc := getEncoding(model)
	if enc == nil {
		return truncateEstimate(text, maxTokens)
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text, false
	}
	return enc.Decode(tokens[:maxTokens]), true
}

// truncateEstimate cuts at maxTokens*4 bytes, backing up to a rune boundary.
func truncateEstimate(text string, maxTokens int) (string, bool) {
	limit := maxTokens * 4
	if len(text) <= limit {
		return text, false
	}
	for limit > 0 && !isRuneStart(text[limit]) {
		limit--
	}
	return text[:limit], true
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

func estimate(text string) int {
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

func getEncoding(model string) *tiktoken.Tiktoken {
	base := normalizeModelName(model)
	if cached, ok := encodingCache.Load(base); ok {
		if enc, ok := cached.(*tiktoken.Tiktoken); ok {
			return enc
		}
		return getDefaultEncoding()
	}

	enc, err := tiktoken.EncodingForModel(base)
	if err != nil {
		enc = getDefaultEncoding()
	}
	if enc != nil {
		encodingCache.Store(base, enc)
	}
	return enc
}

func getDefaultEncoding() *tiktoken.Tiktoken {
	defaultOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(DefaultEncoding)
		if err == nil {
			defaultEnc = enc
		}
	})
	return defaultEnc
}

// normalizeModelName strips an organization prefix such as "meta-llama/".
func normalizeModelName(model string) string {
	if idx := strings.LastIndex(model, "/"); idx >= 0 && idx+1 < len(model) {
		return model[idx+1:]
	}
	return model
}
