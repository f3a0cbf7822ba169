package retrieval

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TokenLength returns a length function counting tiktoken tokens in the
// given encoding. The BPE ranks are fetched on first use and cached by
// tiktoken-go (TIKTOKEN_CACHE_DIR).
func TokenLength(encoding string) (func(string) int, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("retrieval: load encoding %s: %w", encoding, err)
	}
	return func(s string) int {
		return len(enc.Encode(s, nil, nil))
	}, nil
}
