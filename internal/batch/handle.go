package batch

import (
	"context"
	"sync"

	"github.com/promptlane/promptlane/internal/model"
)

// Handle is the single-shot rendezvous between an enqueued request and the
// batch that completes it. It is settled exactly once, with either a
// response or an error; a cancelled handle is never settled.
type Handle struct {
	mu        sync.Mutex
	done      chan struct{}
	resp      *model.GenerationResponse
	err       error
	settled   bool
	cancelled bool
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// settle stores the outcome and wakes the waiter. It reports false when the
// handle was already settled or abandoned by the client.
func (h *Handle) settle(resp *model.GenerationResponse, err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.settled || h.cancelled {
		return false
	}
	h.resp = resp
	h.err = err
	h.settled = true
	close(h.done)
	return true
}

// Cancel marks the handle abandoned. The batch it belongs to still runs and
// its side effects still occur; the processor just skips settling it.
func (h *Handle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.settled || h.cancelled {
		return
	}
	h.cancelled = true
}

// Wait blocks until the handle is settled or the context ends. A context
// end abandons the handle.
func (h *Handle) Wait(ctx context.Context) (*model.GenerationResponse, error) {
	select {
	case <-ctx.Done():
		h.Cancel()
		return nil, ctx.Err()
	case <-h.done:
		return h.resp, h.err
	}
}
