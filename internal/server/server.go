// Package server exposes the conversation engine over HTTP. The transport is
// a thin shell: all orchestration decisions live in the engine and graph.
package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tilemart/salescore/internal/agent/engine"
	"github.com/tilemart/salescore/internal/agent/graph"
	"github.com/tilemart/salescore/internal/agent/model"
	errx "github.com/tilemart/salescore/internal/core/error"
	logx "github.com/tilemart/salescore/pkg/logger"
)

// Server handles the HTTP surface of the sales agent.
type Server struct {
	runner graph.Runner
	repo   model.ConversationRepository
	engine *engine.Engine
}

func New(runner graph.Runner, repo model.ConversationRepository, eng *engine.Engine) *Server {
	return &Server{runner: runner, repo: repo, engine: eng}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	{
		v1.POST("/sessions/:id/messages", s.postMessage)
		v1.GET("/sessions/:id", s.getSession)
		v1.GET("/sessions/:id/score", s.getScore)
		v1.DELETE("/sessions/:id", s.deleteSession)
	}
	return r
}

type messageRequest struct {
	CustomerID string `json:"customer_id"`
	Message    string `json:"message" binding:"required"`
}

func (s *Server) postMessage(c *gin.Context) {
	sessionID := c.Param("id")
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	out, err := s.runner.Invoke(c.Request.Context(), model.QueryInput{
		SessionID:  sessionID,
		CustomerID: req.CustomerID,
		Query:      req.Message,
	})
	if err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("turn failed")
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getSession(c *gin.Context) {
	session, err := s.repo.LoadSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// getScore re-evaluates the compliance rubric over the checkpointed session.
func (s *Server) getScore(c *gin.Context) {
	session, err := s.repo.LoadSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	report := s.engine.Score(session)
	c.JSON(http.StatusOK, report)
}

func (s *Server) deleteSession(c *gin.Context) {
	if err := s.repo.ClearHistory(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// writeError maps internal errors onto HTTP responses without leaking
// collaborator detail.
func writeError(c *gin.Context, err error) {
	if errors.Is(err, model.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	var appErr *errx.Error
	if errors.As(err, &appErr) {
		c.JSON(appErr.Status, gin.H{"error": appErr.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": errx.SystemErrorMessage})
}
