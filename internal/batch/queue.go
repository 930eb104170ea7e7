// Package batch implements the priority-lane batching scheduler: three
// FIFO lanes, a periodic dispatcher that forms batches by age or size, and
// the processor that couples each batched answer back to its waiter.
package batch

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/promptlane/promptlane/internal/model"
)

// tickPeriod is the dispatcher inspection granularity. Batch-formation
// latency is bounded above by window + tickPeriod + queuing jitter.
const tickPeriod = 50 * time.Millisecond

// laneParam holds a lane's dispatch bounds. These are constants of the
// scheduler, not user-configurable.
type laneParam struct {
	window   time.Duration
	maxBatch int
}

var laneParams = map[model.Priority]laneParam{
	model.PriorityHigh:   {window: 200 * time.Millisecond, maxBatch: 6},
	model.PriorityMedium: {window: 1 * time.Second, maxBatch: 4},
	model.PriorityLow:    {window: 4 * time.Second, maxBatch: 4},
}

// dispatchOrder is the per-tick lane check order. It gives HIGH a soft
// bias, not a priority-inversion guarantee.
var dispatchOrder = []model.Priority{model.PriorityHigh, model.PriorityMedium, model.PriorityLow}

// QueueItem is one in-flight request: the request itself, its completion
// handle, and the enqueue time the dispatcher ages it by.
type QueueItem struct {
	Request    model.GenerationRequest
	EnqueuedAt time.Time

	handle *Handle
}

// Processor consumes a dispatched batch. It must settle every item's
// handle before returning and must never panic through.
type Processor interface {
	Process(batch []*QueueItem)
}

// Manager owns the three priority lanes and the dispatcher task.
type Manager struct {
	processor Processor

	mu    sync.Mutex
	lanes map[model.Priority][]*QueueItem

	stop     chan struct{}
	stopOnce sync.Once
}

// NewManager creates the queue manager and starts its dispatcher loop.
func NewManager(processor Processor) *Manager {
	m := &Manager{
		processor: processor,
		lanes: map[model.Priority][]*QueueItem{
			model.PriorityHigh:   nil,
			model.PriorityMedium: nil,
			model.PriorityLow:    nil,
		},
		stop: make(chan struct{}),
	}
	go m.run()
	return m
}

// Enqueue parks the request on its priority lane and returns the handle the
// caller awaits. Lanes are unbounded; memory is the only limit.
func (m *Manager) Enqueue(req model.GenerationRequest) *Handle {
	item := &QueueItem{
		Request:    req,
		EnqueuedAt: time.Now().UTC(),
		handle:     newHandle(),
	}

	m.mu.Lock()
	m.lanes[req.Priority] = append(m.lanes[req.Priority], item)
	high := len(m.lanes[model.PriorityHigh])
	medium := len(m.lanes[model.PriorityMedium])
	low := len(m.lanes[model.PriorityLow])
	m.mu.Unlock()

	log.Info().
		Str("request_id", req.RequestID).
		Str("lane", req.Priority.String()).
		Int("high", high).
		Int("medium", medium).
		Int("low", low).
		Msg("request enqueued")

	return item.handle
}

// QueueSizes returns the current lane depths.
func (m *Manager) QueueSizes() map[model.Priority]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	sizes := make(map[model.Priority]int, len(m.lanes))
	for p, lane := range m.lanes {
		sizes[p] = len(lane)
	}
	return sizes
}

// Stop ends the dispatcher loop. Outstanding handles are not drained; the
// surrounding application owns shutdown draining if it wants it.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Manager) run() {
	ticker := time.NewTicker(tickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.dispatchDue(time.Now().UTC())
		}
	}
}

// dispatchDue pops every due batch under the mutex, then hands them to the
// processor on fresh goroutines after the mutex is released. The dispatcher
// never awaits the processor.
func (m *Manager) dispatchDue(now time.Time) {
	var batches [][]*QueueItem

	m.mu.Lock()
	for _, p := range dispatchOrder {
		if b := m.tryDispatch(p, now); len(b) > 0 {
			batches = append(batches, b)
		}
	}
	m.mu.Unlock()

	for _, b := range batches {
		go m.processor.Process(b)
	}
}

// tryDispatch pops the head prefix of a lane when the head is older than
// the lane window or the lane has reached its size cap. Caller holds the
// mutex.
func (m *Manager) tryDispatch(p model.Priority, now time.Time) []*QueueItem {
	lane := m.lanes[p]
	if len(lane) == 0 {
		return nil
	}

	param := laneParams[p]
	age := now.Sub(lane[0].EnqueuedAt)
	if age < param.window && len(lane) < param.maxBatch {
		return nil
	}

	k := param.maxBatch
	if len(lane) < k {
		k = len(lane)
	}
	batch := lane[:k:k]
	rest := make([]*QueueItem, len(lane)-k)
	copy(rest, lane[k:])
	m.lanes[p] = rest

	ids := make([]string, len(batch))
	for i, item := range batch {
		ids[i] = item.Request.RequestID
	}
	log.Info().
		Str("lane", p.String()).
		Int("size", len(batch)).
		Dur("head_age", age).
		Dur("window", param.window).
		Strs("request_ids", ids).
		Msg("dispatching batch")

	return batch
}
