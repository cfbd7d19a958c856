// Package api exposes the recall service over HTTP for operators.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/selfrecall/selfrecall/internal/announce"
	"github.com/selfrecall/selfrecall/internal/bus"
	"github.com/selfrecall/selfrecall/internal/config/gateway"
	"github.com/selfrecall/selfrecall/internal/history"
	"github.com/selfrecall/selfrecall/internal/recall"
	"github.com/selfrecall/selfrecall/internal/session"
)

// operator is the caller used for every API request; the bearer token is the gate.
var operator = recall.Caller{SenderID: "api", Operator: true}

type RecallService interface {
	SetOverride(ctx context.Context, caller recall.Caller, key session.Key, seconds int) error
	GetStatus(ctx context.Context, key session.Key) (recall.Status, error)
	AddToWhitelist(ctx context.Context, caller recall.Caller, key session.Key) (bool, error)
	RemoveFromWhitelist(ctx context.Context, caller recall.Caller, key session.Key) (bool, error)
	Pending() []*recall.Action
	Cancel(id string) (bool, error)
}

type HistoryReader interface {
	Recent(ctx context.Context, session string, limit int) ([]history.Entry, error)
	Counts(ctx context.Context) (map[string]int, error)
}

type Announcer interface {
	Add(req announce.AddRequest) (announce.Job, error)
	List(includeDisabled bool) []announce.Job
	Remove(id string) bool
	Run(ctx context.Context, id string, force bool) bool
}

// Deps are the services the API serves. History and Announce may be nil.
type Deps struct {
	Recall   RecallService
	History  HistoryReader
	Announce Announcer
	Bus      bus.Bus
}

type Server struct {
	cfg    gateway.GatewayConfig
	deps   Deps
	engine *gin.Engine
}

func NewServer(cfg gateway.GatewayConfig, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{cfg: cfg, deps: deps, engine: gin.New()}
	s.engine.Use(gin.Recovery(), requestLog())
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("api: listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("api: shutdown", "err", err)
		}
		return ctx.Err()
	}
}

func (s *Server) routes() {
	r := s.engine
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", s.authn)
	api.GET("/status", s.getStatus)
	api.POST("/override", s.postOverride)
	api.POST("/whitelist", s.postWhitelist)
	api.DELETE("/whitelist", s.deleteWhitelist)
	api.GET("/actions", s.getActions)
	api.DELETE("/actions/:id", s.deleteAction)
	api.POST("/send", s.postSend)
	api.GET("/history", s.getHistory)
	api.GET("/announce", s.getAnnounce)
	api.POST("/announce", s.postAnnounce)
	api.DELETE("/announce/:id", s.deleteAnnounce)
	api.POST("/announce/:id/run", s.runAnnounce)
}

// authn checks the bearer token when one is configured.
func (s *Server) authn(c *gin.Context) {
	if s.cfg.APIToken == "" {
		return
	}
	tok := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if tok != s.cfg.APIToken {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
}

func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("api: request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"took", time.Since(start))
	}
}

type sessionRequest struct {
	Session string `json:"session" binding:"required"`
}

type overrideRequest struct {
	Session string `json:"session" binding:"required"`
	Seconds int    `json:"seconds"`
}

type sendRequest struct {
	Session string `json:"session" binding:"required"`
	Text    string `json:"text" binding:"required"`
}

type announceRequest struct {
	Name           string `json:"name"`
	Kind           string `json:"kind" binding:"required"`
	EverySeconds   int    `json:"everySeconds"`
	Expr           string `json:"expr"`
	TZ             string `json:"tz"`
	At             string `json:"at"`
	Session        string `json:"session" binding:"required"`
	Message        string `json:"message" binding:"required"`
	RecallAfter    int    `json:"recallAfter"`
	DeleteAfterRun bool   `json:"deleteAfterRun"`
}

type actionView struct {
	ID         string      `json:"id"`
	Session    session.Key `json:"session"`
	Channel    string      `json:"channel"`
	MessageIDs []string    `json:"messageIds"`
	Delay      float64     `json:"delay"`
	State      string      `json:"state"`
	CreatedAt  time.Time   `json:"createdAt"`
	DueAt      time.Time   `json:"dueAt"`
}

func (s *Server) getStatus(c *gin.Context) {
	key, err := session.Parse(c.Query("session"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, err := s.deps.Recall.GetStatus(c.Request.Context(), key)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) postOverride(c *gin.Context) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	key, err := session.Parse(req.Session)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.deps.Recall.SetOverride(c.Request.Context(), operator, key, req.Seconds); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": key, "seconds": req.Seconds})
}

func (s *Server) postWhitelist(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.editWhitelist(c, req.Session, s.deps.Recall.AddToWhitelist)
}

func (s *Server) deleteWhitelist(c *gin.Context) {
	s.editWhitelist(c, c.Query("session"), s.deps.Recall.RemoveFromWhitelist)
}

func (s *Server) editWhitelist(c *gin.Context, raw string,
	edit func(context.Context, recall.Caller, session.Key) (bool, error)) {
	key, err := session.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	changed, err := edit(c.Request.Context(), operator, key)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": key.ChatID, "changed": changed})
}

func (s *Server) getActions(c *gin.Context) {
	pending := s.deps.Recall.Pending()
	out := make([]actionView, 0, len(pending))
	for _, a := range pending {
		h := a.Handle()
		out = append(out, actionView{
			ID:         a.ID(),
			Session:    a.Session(),
			Channel:    h.Channel,
			MessageIDs: h.MessageIDs,
			Delay:      a.Delay().Seconds(),
			State:      a.State().String(),
			CreatedAt:  a.CreatedAt(),
			DueAt:      a.DueAt(),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) deleteAction(c *gin.Context) {
	cancelled, err := s.deps.Recall.Cancel(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if !cancelled {
		c.JSON(http.StatusConflict, gin.H{"error": "delete already in progress"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "cancelled": true})
}

func (s *Server) postSend(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	key, err := session.Parse(req.Session)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.deps.Bus.PublishOutbound(bus.NewOutboundMessage(key, req.Text))
	c.JSON(http.StatusAccepted, gin.H{"session": key, "queued": true})
}

func (s *Server) getHistory(c *gin.Context) {
	if s.deps.History == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history disabled"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	entries, err := s.deps.History.Recent(c.Request.Context(), c.Query("session"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	counts, err := s.deps.History.Counts(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "counts": counts})
}

func (s *Server) getAnnounce(c *gin.Context) {
	if !s.announceEnabled(c) {
		return
	}
	jobs := s.deps.Announce.List(c.Query("all") == "true")
	if jobs == nil {
		jobs = []announce.Job{}
	}
	c.JSON(http.StatusOK, jobs)
}

func (s *Server) postAnnounce(c *gin.Context) {
	if !s.announceEnabled(c) {
		return
	}
	var req announceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	add := announce.AddRequest{
		Name:           req.Name,
		Kind:           req.Kind,
		Every:          time.Duration(req.EverySeconds) * time.Second,
		Expr:           req.Expr,
		TZ:             req.TZ,
		Session:        req.Session,
		Message:        req.Message,
		RecallAfter:    req.RecallAfter,
		DeleteAfterRun: req.DeleteAfterRun,
	}
	if req.At != "" {
		at, err := time.Parse(time.RFC3339, req.At)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "at must be RFC3339"})
			return
		}
		add.At = at
	}
	job, err := s.deps.Announce.Add(add)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, job)
}

func (s *Server) deleteAnnounce(c *gin.Context) {
	if !s.announceEnabled(c) {
		return
	}
	if !s.deps.Announce.Remove(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "removed": true})
}

func (s *Server) runAnnounce(c *gin.Context) {
	if !s.announceEnabled(c) {
		return
	}
	if !s.deps.Announce.Run(c.Request.Context(), c.Param("id"), true) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "ran": true})
}

func (s *Server) announceEnabled(c *gin.Context) bool {
	if s.deps.Announce == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "announcements disabled"})
		return false
	}
	return true
}

// fail maps recall errors to HTTP status codes.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, recall.ErrInvalidDelay), errors.Is(err, recall.ErrNotGroup):
		status = http.StatusBadRequest
	case errors.Is(err, recall.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, recall.ErrUnknownAction):
		status = http.StatusNotFound
	case errors.Is(err, recall.ErrRecallDisabled):
		status = http.StatusConflict
	case errors.Is(err, recall.ErrShuttingDown):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		slog.Error("api: request failed", "path", c.FullPath(), "err", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
