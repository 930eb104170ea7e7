// Package server implements the HTTP surface: query streaming, chat
// history, settings and analytics endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/promptlane/promptlane/internal/batch"
	"github.com/promptlane/promptlane/internal/model"
	"github.com/promptlane/promptlane/internal/settings"
	"github.com/promptlane/promptlane/internal/store"
)

// Server wires the HTTP handlers to the queue manager and its collaborators.
type Server struct {
	queue       *batch.Manager
	settings    *settings.Store
	chats       *store.ChatStore
	streamDelay time.Duration
	version     string
}

// New creates the HTTP server front-end.
func New(queue *batch.Manager, st *settings.Store, chats *store.ChatStore, streamDelay time.Duration, version string) *Server {
	return &Server{
		queue:       queue,
		settings:    st,
		chats:       chats,
		streamDelay: streamDelay,
		version:     version,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), corsMiddleware())

	r.GET("/health", s.handleHealth)
	v1 := r.Group("/v1")
	{
		v1.POST("/query", s.handleQuery)
		v1.GET("/chat", s.handleChat)
		v1.GET("/settings", s.handleGetSettings)
		v1.PUT("/settings", s.handlePutSettings)
		v1.GET("/analytics", s.handleAnalytics)
	}
	return r
}

// corsMiddleware mirrors the permissive policy of the settings dashboard.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, model.HealthResponse{Status: "ok", Version: s.version})
}

// writeChunk emits one SSE data frame and flushes it to the client.
func writeChunk(c *gin.Context, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", data)
	c.Writer.Flush()
}

// handleQuery enqueues one generation request and streams the answer back
// word by word, closing with a metadata frame.
func (s *Server) handleQuery(c *gin.Context) {
	var req model.GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Prompt == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt is required"})
		return
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}

	// Timeout from the configured latency target plus headroom for the
	// queue window and the upstream call.
	th := s.settings.Thresholds(req.Priority)
	timeout := time.Duration(th.LatencyMS)*time.Millisecond + 30*time.Second

	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	handle := s.queue.Enqueue(req)

	c.Header("Content-Type", "text/event-stream;charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	resp, err := handle.Wait(ctx)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = fmt.Sprintf("Request timed out after %.0fs. Please try again.", timeout.Seconds())
		}
		writeChunk(c, gin.H{"type": "error", "message": msg})
		return
	}

	words := strings.Fields(resp.Text)
	for i, word := range words {
		content := word
		if i < len(words)-1 {
			content += " "
		}
		writeChunk(c, gin.H{"type": "text", "content": content})

		if i < len(words)-1 && s.streamDelay > 0 {
			select {
			case <-c.Request.Context().Done():
				return
			case <-time.After(s.streamDelay):
			}
		}
	}

	writeChunk(c, gin.H{
		"type":         "done",
		"request_id":   resp.RequestID,
		"username":     resp.Username,
		"tokens_used":  resp.TokensUsed,
		"latency_ms":   resp.LatencyMS,
		"created_at":   resp.CreatedAt.Format(time.RFC3339Nano),
		"completed_at": resp.CompletedAt.Format(time.RFC3339Nano),
	})
}

func (s *Server) handleChat(c *gin.Context) {
	chats := s.chats.Chats()
	c.JSON(http.StatusOK, gin.H{"chats": chats, "count": len(chats)})
}

func (s *Server) handleGetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.settings.Snapshot())
}

func (s *Server) handlePutSettings(c *gin.Context) {
	var upd model.SettingsUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap, err := s.settings.Update(upd)
	if err != nil {
		log.Error().Err(err).Msg("failed to update settings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleAnalytics(c *gin.Context) {
	c.JSON(http.StatusOK, s.chats.Analytics())
}
