package ai

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"veritheo-bot/internal/domain/ports/adapter"
)

const (
	fallbackEncoding = "cl100k_base"
	// Chat formatting overhead per message, as counted by OpenAI.
	tokensPerMessage = 3
)

// Tokenizer counts tokens with tiktoken. Gemini models use cl100k_base as an
// approximation. When no encoding can be loaded (offline BPE cache) it falls
// back to a rune-based estimate.
type Tokenizer struct {
	mu    sync.Mutex
	cache map[string]*tiktoken.Tiktoken
	load  func(model string) (*tiktoken.Tiktoken, error)
}

func NewTokenizer() *Tokenizer {
	return &Tokenizer{
		cache: make(map[string]*tiktoken.Tiktoken),
		load: func(model string) (*tiktoken.Tiktoken, error) {
			if enc, err := tiktoken.EncodingForModel(model); err == nil {
				return enc, nil
			}
			return tiktoken.GetEncoding(fallbackEncoding)
		},
	}
}

func (t *Tokenizer) encoding(model string) *tiktoken.Tiktoken {
	t.mu.Lock()
	defer t.mu.Unlock()
	if enc, ok := t.cache[model]; ok {
		return enc
	}
	enc, err := t.load(model)
	if err != nil {
		enc = nil
	}
	t.cache[model] = enc
	return enc
}

// CountText returns the token count of a single string.
func (t *Tokenizer) CountText(model, text string) int {
	if text == "" {
		return 0
	}
	if enc := t.encoding(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return utf8.RuneCountInString(text)/4 + 1
}

// CountMessages adds the per-message overhead of the chat format.
func (t *Tokenizer) CountMessages(model string, messages []adapter.Message) int {
	total := 0
	for _, m := range messages {
		total += tokensPerMessage + t.CountText(model, m.Content)
	}
	if total > 0 {
		total += 3
	}
	return total
}
