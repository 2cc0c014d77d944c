package model

import (
	"log"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates prompt sizes. When the encoding cannot be loaded it
// falls back to four characters per token.
type TokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

func NewTokenCounter() *TokenCounter {
	return &TokenCounter{}
}

func (t *TokenCounter) encoding() *tiktoken.Tiktoken {
	t.once.Do(func() {
		enc, err := tiktoken.EncodingForModel("gpt-3.5-turbo")
		if err != nil {
			log.Printf("[TOKENS] encoding unavailable, estimating by length: %v", err)
			return
		}
		t.enc = enc
	})
	return t.enc
}

func (t *TokenCounter) Count(s string) int {
	if enc := t.encoding(); enc != nil {
		return len(enc.Encode(s, nil, nil))
	}
	return (len([]rune(s)) + 3) / 4
}

// Truncate cuts s to at most limit tokens.
func (t *TokenCounter) Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if enc := t.encoding(); enc != nil {
		tokens := enc.Encode(s, nil, nil)
		if len(tokens) <= limit {
			return s
		}
		return enc.Decode(tokens[:limit])
	}
	r := []rune(s)
	if len(r) <= limit*4 {
		return s
	}
	return string(r[:limit*4])
}
