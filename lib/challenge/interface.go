package challenge

import (
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"
)

var (
	registry map[string]Impl = map[string]Impl{}
	regLock  sync.RWMutex
)

func Register(name string, impl Impl) {
	regLock.Lock()
	defer regLock.Unlock()

	registry[name] = impl
}

func Get(name string) (Impl, bool) {
	regLock.RLock()
	defer regLock.RUnlock()
	result, ok := registry[name]
	return result, ok
}

func Methods() []string {
	regLock.RLock()
	defer regLock.RUnlock()
	var result []string
	for method := range registry {
		result = append(result, method)
	}
	sort.Strings(result)
	return result
}

type ValidateInput struct {
	Signer *Signer
	MaxAge time.Duration
	Now    time.Time
}

// Impl is one way of checking proof-of-work carried in request headers.
type Impl interface {
	// DifficultyHeader renders the difficulty slot sent alongside c.
	DifficultyHeader(c *Challenge) string

	// Validate checks the solution carried by r and returns the challenge it
	// answers.
	Validate(r *http.Request, lg *slog.Logger, in *ValidateInput) (*Challenge, error)
}
