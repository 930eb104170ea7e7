package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/promptlane/promptlane/internal/model"
)

// LLM is the gateway contract the processor consumes.
type LLM interface {
	GenerateBatch(ctx context.Context, prompts, requestIDs []string, priority model.Priority, maxTokens int) (*model.BatchedLLMResponse, error)
}

// Thresholds supplies the live per-priority token budget; read once per
// batch so settings-page changes apply to the next batch.
type Thresholds interface {
	Thresholds(p model.Priority) model.PriorityThreshold
}

// ChatStore persists a completed request/response pair. Best-effort.
type ChatStore interface {
	Append(req model.GenerationRequest, resp model.GenerationResponse, batchID string) error
}

// RequestLogger appends a human-readable request/response block to the
// per-request log file. Best-effort.
type RequestLogger interface {
	LogRequestResponse(req model.GenerationRequest, resp model.GenerationResponse)
}

// BatchProcessor executes one dispatched batch: call the gateway, split the
// results by position, settle every waiter. Errors are confined to the
// batch that caused them.
type BatchProcessor struct {
	llm        LLM
	thresholds Thresholds

	pool   *WorkerPool
	chats  ChatStore
	reqLog RequestLogger
}

// NewProcessor creates a batch processor over the given gateway and
// settings source.
func NewProcessor(llm LLM, thresholds Thresholds) *BatchProcessor {
	return &BatchProcessor{llm: llm, thresholds: thresholds}
}

// SetWorkerPool bounds concurrent upstream executions.
func (bp *BatchProcessor) SetWorkerPool(pool *WorkerPool) {
	bp.pool = pool
}

// SetChatStore installs the persistent chat store side effect.
func (bp *BatchProcessor) SetChatStore(chats ChatStore) {
	bp.chats = chats
}

// SetRequestLogger installs the per-request trace log side effect.
func (bp *BatchProcessor) SetRequestLogger(reqLog RequestLogger) {
	bp.reqLog = reqLog
}

// Process runs one batch to completion. Every handle in the batch is
// settled before Process returns: each with its own response on success,
// all with the same error on upstream failure. Already-cancelled handles
// are skipped silently.
func (bp *BatchProcessor) Process(batch []*QueueItem) {
	if len(batch) == 0 {
		return
	}

	ctx := context.Background()
	if bp.pool != nil {
		if err := bp.pool.Acquire(ctx); err != nil {
			bp.failAll(batch, err)
			return
		}
		defer bp.pool.Release()
	}

	n := len(batch)
	prompts := make([]string, n)
	requestIDs := make([]string, n)
	for i, item := range batch {
		prompts[i] = item.Request.Prompt
		requestIDs[i] = item.Request.RequestID
	}
	priority := batch[0].Request.Priority
	maxTokens := bp.thresholds.Thresholds(priority).Tokens

	log.Info().
		Int("size", n).
		Str("priority", priority.String()).
		Strs("request_ids", requestIDs).
		Msg("processing batch")

	llmResp, err := bp.llm.GenerateBatch(ctx, prompts, requestIDs, priority, maxTokens)
	if err != nil {
		log.Error().Err(err).Str("priority", priority.String()).Int("size", n).Msg("batch upstream call failed")
		bp.failAll(batch, err)
		return
	}
	if len(llmResp.Results) != n {
		bp.failAll(batch, fmt.Errorf("gateway returned %d results for a batch of %d", len(llmResp.Results), n))
		return
	}

	completedAt := time.Now().UTC()
	batchID := uuid.New().String()

	for i, item := range batch {
		llmItem := llmResp.Results[i]
		resp := model.GenerationResponse{
			RequestID:   item.Request.RequestID,
			Username:    item.Request.Username,
			Text:        llmItem.Text,
			TokensUsed:  llmItem.TokensUsed,
			LatencyMS:   completedAt.Sub(item.Request.CreatedAt).Seconds() * 1000,
			CreatedAt:   item.Request.CreatedAt,
			CompletedAt: completedAt,
		}

		if bp.reqLog != nil {
			bp.reqLog.LogRequestResponse(item.Request, resp)
		}
		if bp.chats != nil {
			if err := bp.chats.Append(item.Request, resp, batchID); err != nil {
				log.Warn().Err(err).Str("request_id", resp.RequestID).Msg("failed to append chat to store")
			}
		}

		item.handle.settle(&resp, nil)
	}

	log.Info().
		Str("batch_id", batchID).
		Int("size", n).
		Float64("model_latency_ms", llmResp.ModelLatencyMS).
		Msg("batch completed")
}

func (bp *BatchProcessor) failAll(batch []*QueueItem, err error) {
	for _, item := range batch {
		item.handle.settle(nil, err)
	}
}
