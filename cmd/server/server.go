package main

import (
	"context"
	"net/http"
	"time"

	"github.com/edibez/tokenagent/internal/agent"
	"github.com/edibez/tokenagent/internal/auth"
	"github.com/edibez/tokenagent/internal/chat"
	"github.com/edibez/tokenagent/internal/registry"
	"github.com/edibez/tokenagent/pkg/logger"
	"github.com/edibez/tokenagent/pkg/types"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type rateLimiter interface {
	Allow(ctx context.Context, caller string) (bool, int, error)
	Limit() int
}

type server struct {
	agent    *agent.Agent
	registry *registry.Registry
	keys     *auth.Store // nil disables API keys
	limiter  rateLimiter // nil disables rate limiting

	wsOrigins  []string // extra origins allowed on /v1/ws
	wsPongWait time.Duration
}

func (s *server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())

	// Public endpoints (no auth)
	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if s.keys != nil {
		r.POST("/v1/register", s.handleRegister)
	}

	// Protected when a key store is configured
	v1 := r.Group("/v1")
	if s.keys != nil {
		v1.Use(s.authMiddleware())
	}
	if s.limiter != nil {
		v1.Use(s.rateLimitMiddleware())
	}
	{
		v1.POST("/chat", s.handleChat)
		v1.POST("/query", s.handleQuery)
		v1.GET("/tokens", s.handleTokens)
		v1.GET("/ws", s.handleWebSocket)
		if s.keys != nil {
			v1.GET("/usage", s.handleUsage)
			v1.DELETE("/key", s.handleRevoke)
		}
	}
	return r
}

// Handlers

func (s *server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "ts": time.Now().Unix(), "tokens": s.registry.Len()})
}

func (s *server) handleChat(c *gin.Context) {
	var req types.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "messages are required", Code: "invalid_request", Details: err.Error()})
		return
	}
	s.reply(c, chat.NewSession(req.Messages))
}

func (s *server) handleQuery(c *gin.Context) {
	var req types.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "query is required", Code: "invalid_request"})
		return
	}
	session := chat.NewSession(nil)
	session.AddUserMessage(req.Query)
	s.reply(c, session)
}

func (s *server) reply(c *gin.Context, session *chat.Session) {
	reply, err := s.agent.Run(c.Request.Context(), session)
	if err != nil {
		requestLogger(c).Error("agent run failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "failed to reply", Code: "internal"})
		return
	}
	c.JSON(http.StatusOK, toChatResponse(reply))
}

func (s *server) handleTokens(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tokens": s.registry.Tokens()})
}

func (s *server) handleRegister(c *gin.Context) {
	var req struct {
		Owner string `json:"owner"`
	}
	// body is optional
	_ = c.ShouldBindJSON(&req)

	key, err := s.keys.Issue(c.Request.Context(), req.Owner)
	if err != nil {
		requestLogger(c).Error("issue key failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "Failed to generate API key"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"api_key":    key.Key,
		"message":    "API key generated successfully. Include this in X-API-Key header.",
		"created_at": key.CreatedAt,
	})
}

func (s *server) handleUsage(c *gin.Context) {
	key := c.MustGet(ctxAPIKey).(*auth.APIKey)

	stats, err := s.keys.Usage(c.Request.Context(), key.Key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "Failed to get usage stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"api_key":    maskKey(stats.Key),
		"owner":      stats.Owner,
		"requests":   stats.Requests,
		"created_at": stats.CreatedAt,
		"last_used":  stats.LastUsed,
	})
}

func (s *server) handleRevoke(c *gin.Context) {
	key := c.MustGet(ctxAPIKey).(*auth.APIKey)
	if err := s.keys.Revoke(c.Request.Context(), key.Key); err != nil {
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "Failed to revoke key"})
		return
	}
	c.Status(http.StatusNoContent)
}

func toChatResponse(r agent.Reply) types.ChatResponse {
	resp := types.ChatResponse{Reply: r.Text, Outcome: string(r.Outcome)}
	if r.Token != nil {
		resp.Token = &types.TokenInfo{Symbol: r.Token.Symbol, Name: r.Token.Name, ID: r.Token.ID}
	}
	if r.Quote != nil {
		usd := r.Quote.USD
		resp.Price = &usd
	}
	return resp
}

func maskKey(key string) string {
	if len(key) <= 12 {
		return key
	}
	return key[:12] + "..."
}

func requestLogger(c *gin.Context) *zap.Logger {
	return logger.Log.With(zap.String("request_id", c.GetString(ctxRequestID)))
}
