// Package httpapi exposes the patcher orchestrator's operations as a small
// local HTTP surface: GET /pending, POST /apply, POST /apply/manual,
// POST /reset, and GET /progress (Server-Sent Events). This is the wire
// contract a desktop UI shell would talk to; the shell itself is out of
// scope.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/dselans/beampatch/patcher"
)

var log = logrus.WithField("pkg", "httpapi")

// Server wires a *patcher.Patcher to an HTTP router.
type Server struct {
	p      *patcher.Patcher
	engine *gin.Engine
}

// New builds a Server with all routes registered.
func New(p *patcher.Patcher) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{p: p, engine: engine}
	s.registerRoutes()
	return s
}

// Run starts the HTTP server on addr; it blocks until the server stops or
// errors.
func (s *Server) Run(addr string) error {
	log.WithFields(logrus.Fields{"addr": addr}).Info("starting http control surface")
	return s.engine.Run(addr)
}

// ServeHTTP lets Server be driven directly, e.g. by httptest, without a
// real listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.engine.GET("/pending", s.handlePending)
	s.engine.POST("/apply", s.handleApply)
	s.engine.POST("/apply/manual", s.handleApplyManual)
	s.engine.POST("/reset", s.handleReset)
	s.engine.GET("/progress", s.handleProgress)
}

func (s *Server) handlePending(c *gin.Context) {
	pending, err := s.p.ListPending(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": pending})
}

func (s *Server) handleApply(c *gin.Context) {
	if err := s.p.ApplyAll(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type manualPatchRequest struct {
	Path string `json:"path" binding:"required"`
}

func (s *Server) handleApplyManual(c *gin.Context) {
	var req manualPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.p.ApplyManual(req.Path); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleReset(c *gin.Context) {
	if err := s.p.ResetCache(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleProgress streams the orchestrator's progress channel to the client
// as Server-Sent Events until the client disconnects.
func (s *Server) handleProgress(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ch := s.p.Progress()
	ctx := c.Request.Context()

	c.Stream(func(w gin.ResponseWriter) bool {
		select {
		case sample, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("progress", sample)
			return true
		case <-ctx.Done():
			return false
		case <-time.After(30 * time.Second):
			// keepalive ping so idle proxies don't close the connection
			c.SSEvent("ping", nil)
			return true
		}
	})
}
