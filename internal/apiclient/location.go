package apiclient

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Location performs a hard navigation that discards in-app state.
type Location interface {
	Assign(path string)
}

// HardRedirect records the last hard navigation and hands it to OnAssign.
type HardRedirect struct {
	OnAssign func(path string)

	mu     sync.Mutex
	target string
	count  int
}

func (h *HardRedirect) Assign(path string) {
	h.mu.Lock()
	h.target = path
	h.count++
	h.mu.Unlock()

	log.Info().Str("location", path).Msg("hard redirect")

	if h.OnAssign != nil {
		h.OnAssign(path)
	}
}

// Target returns the most recent redirect target, or "" if none happened.
func (h *HardRedirect) Target() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.target
}

// Count returns how many redirects have been performed.
func (h *HardRedirect) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}
