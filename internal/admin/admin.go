// Package admin exposes the operator HTTP API: a small authenticated
// surface for moderation and maintenance actions against the live server.
package admin

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cairnway/cairnway/internal/core"
)

// World is the slice of the game server the operator surface needs.
type World interface {
	Status() (int, []string)
	Broadcast(text string)
	Kick(username string) error
	Ban(username string) error
	Unban(username string) error
	Op(username string) error
	Deop(username string) error
	ForceSaveAll()
}

type Server struct {
	Config *core.Config
	Logger *logrus.Logger
	Game   World
}

// Start launches the HTTP listener in its own goroutine and registers its
// shutdown with the WaitGroup.
func (s *Server) Start(ctx context.Context, wg *sync.WaitGroup) error {
	if s.Config.AdminAPI.Token == "" {
		return errors.New("admin API enabled without a token")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.authorize)

	router.GET("/status", s.handleStatus)
	router.POST("/broadcast", s.handleBroadcast)
	router.POST("/kick", s.targeted(s.Game.Kick))
	router.POST("/ban", s.targeted(s.Game.Ban))
	router.POST("/unban", s.targeted(s.Game.Unban))
	router.POST("/op", s.targeted(s.Game.Op))
	router.POST("/deop", s.targeted(s.Game.Deop))
	router.POST("/forcesave", s.handleForceSave)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.Config.AdminAPI.Port),
		Handler: router,
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		s.Logger.Infof("[ADMIN] API listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Errorf("[ADMIN] API server stopped: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	return nil
}

func (s *Server) authorize(c *gin.Context) {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.Config.AdminAPI.Token)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

func (s *Server) handleStatus(c *gin.Context) {
	count, names := s.Game.Status()
	c.JSON(http.StatusOK, gin.H{"players": count, "names": names})
}

type broadcastRequest struct {
	Message string `json:"message" binding:"required"`
}

func (s *Server) handleBroadcast(c *gin.Context) {
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.Game.Broadcast(req.Message)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type targetRequest struct {
	Username string `json:"username" binding:"required"`
}

// targeted adapts the username-keyed game operations into handlers.
func (s *Server) targeted(action func(username string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req targetRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := action(req.Username); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func (s *Server) handleForceSave(c *gin.Context) {
	s.Game.ForceSaveAll()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
