// Package tokencount estimates token counts before a backend call, used
// by the gateway to size cache segments.
package tokencount

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const fallbackEncoding = "cl100k_base"

// Estimator wraps a tiktoken-go encoding, lazily initialized and reused
// across calls since construction is not free.
type Estimator struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

// NewEstimator returns an Estimator. The underlying encoding is loaded
// on first use so construction never fails.
func NewEstimator() *Estimator {
	return &Estimator{}
}

func (e *Estimator) encoding() (*tiktoken.Tiktoken, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.enc != nil {
		return e.enc, nil
	}
	enc, err := tiktoken.GetEncoding(fallbackEncoding)
	if err != nil {
		return nil, err
	}
	e.enc = enc
	return enc, nil
}

// Count returns the token count for text. On encoder initialization
// failure it falls back to a character-based estimate (len/4, the
// commonly cited rule of thumb) so callers never hard-fail on a purely
// advisory measurement.
func (e *Estimator) Count(text string) int {
	enc, err := e.encoding()
	if err != nil {
		return fallbackEstimate(text)
	}
	return len(enc.Encode(text, nil, nil))
}

func fallbackEstimate(text string) int {
	n := len(text) / 4
	if n == 0 && text != "" {
		n = 1
	}
	return n
}
