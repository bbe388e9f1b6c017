package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"rag-chat-be/pkg/llm"
)

// The BPE files ship inside the binary; no network fetch at runtime.
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

const encodingName = "cl100k_base"

// Per-message framing overhead of the chat format.
const tokensPerMessage = 3

// Estimator counts tokens with the cl100k_base encoding.
type Estimator struct {
	encoding *tiktoken.Tiktoken
	mu       sync.Mutex
}

var (
	instance    *Estimator
	instanceErr error
	once        sync.Once
)

// GetEstimator returns the shared estimator, loading the encoding once.
func GetEstimator() (*Estimator, error) {
	once.Do(func() {
		enc, err := tiktoken.GetEncoding(encodingName)
		if err != nil {
			instanceErr = err
			return
		}
		instance = &Estimator{encoding: enc}
	})
	return instance, instanceErr
}

func (e *Estimator) CountTokens(text string) int {
	if e == nil || text == "" {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.encoding.Encode(text, nil, nil))
}

// CountMessages approximates the prompt size of a chat request.
func (e *Estimator) CountMessages(messages []llm.Message) int {
	if e == nil {
		return 0
	}
	total := 0
	for _, m := range messages {
		total += tokensPerMessage + e.CountTokens(m.Role) + e.CountTokens(m.Content)
	}
	return total
}
