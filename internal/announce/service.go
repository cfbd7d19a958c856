// Package announce posts scheduled messages into chat sessions. Announcements
// go through the normal outbound path, so they are recalled like any other
// message the bot sends.
//
// Jobs persist to a JSON file:
//
//	{ "version": 1, "jobs": [ { "id":"…", "name":"…", "enabled":true,
//	    "schedule":{"kind":"every","everyMs":…},
//	    "payload":{"session":"telegram:group:-100123","message":"…","recallAfter":30},
//	    "state":{"nextRunAtMs":…,"lastRunAtMs":…,"lastStatus":"ok"},
//	    "createdAtMs":…, "updatedAtMs":…, "deleteAfterRun":false } ] }
package announce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	robfigcron "github.com/robfig/cron/v3"

	"github.com/selfrecall/selfrecall/internal/session"
)

const (
	KindEvery = "every"
	KindCron  = "cron"
	KindAt    = "at"
)

// minInterval is the shortest accepted "every" schedule.
var minInterval = time.Second

var cronParser = robfigcron.NewParser(
	robfigcron.Minute | robfigcron.Hour | robfigcron.Dom | robfigcron.Month | robfigcron.Dow,
)

type Schedule struct {
	Kind    string  `json:"kind"`
	AtMs    *int64  `json:"atMs,omitempty"`
	EveryMs *int64  `json:"everyMs,omitempty"`
	Expr    *string `json:"expr,omitempty"`
	TZ      *string `json:"tz,omitempty"`
}

type Payload struct {
	Session string `json:"session"`
	Message string `json:"message"`
	// RecallAfter overrides the session's recall delay, in seconds. Zero keeps the default.
	RecallAfter int `json:"recallAfter,omitempty"`
}

type JobState struct {
	NextRunAtMs *int64  `json:"nextRunAtMs,omitempty"`
	LastRunAtMs *int64  `json:"lastRunAtMs,omitempty"`
	LastStatus  *string `json:"lastStatus,omitempty"`
	LastError   *string `json:"lastError,omitempty"`
}

type Job struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Enabled        bool     `json:"enabled"`
	Schedule       Schedule `json:"schedule"`
	Payload        Payload  `json:"payload"`
	State          JobState `json:"state"`
	CreatedAtMs    int64    `json:"createdAtMs"`
	UpdatedAtMs    int64    `json:"updatedAtMs"`
	DeleteAfterRun bool     `json:"deleteAfterRun"`
}

// Key parses the payload session.
func (j Job) Key() (session.Key, error) { return session.Parse(j.Payload.Session) }

// AddRequest describes a new job. Exactly one of Every, Expr or At is used,
// selected by Kind.
type AddRequest struct {
	Name           string
	Kind           string
	Every          time.Duration
	Expr           string
	TZ             string
	At             time.Time
	Session        string
	Message        string
	RecallAfter    int
	DeleteAfterRun bool
}

type jobFile struct {
	Version int   `json:"version"`
	Jobs    []Job `json:"jobs"`
}

// OnJobFunc delivers a fired job.
type OnJobFunc func(ctx context.Context, job Job) error

// Service owns the job file and the timers that fire jobs.
type Service struct {
	path  string
	onJob OnJobFunc

	mu      sync.Mutex
	file    jobFile
	loaded  bool
	modTime time.Time
	runCtx  context.Context

	timers    map[string]*time.Timer
	robfig    *robfigcron.Cron
	robfigIDs map[string]robfigcron.EntryID
}

func NewService(path string) *Service {
	return &Service{
		path:      path,
		timers:    make(map[string]*time.Timer),
		robfig:    robfigcron.New(),
		robfigIDs: make(map[string]robfigcron.EntryID),
	}
}

// SetOnJob must be called before Start.
func (s *Service) SetOnJob(fn OnJobFunc) { s.onJob = fn }

// Start arms every enabled job and blocks until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if err := s.loadLocked(); err != nil {
		slog.Warn("announce: load failed, starting empty", "err", err)
	}
	s.runCtx = ctx
	s.armAllLocked()
	n := len(s.file.Jobs)
	s.mu.Unlock()

	s.robfig.Start()
	slog.Info("announce: started", "jobs", n)

	<-ctx.Done()

	<-s.robfig.Stop().Done()
	s.mu.Lock()
	s.cancelAllLocked()
	s.runCtx = nil
	s.mu.Unlock()
	return ctx.Err()
}

// Reload re-reads the job file when another process changed it, and re-arms
// the jobs if the service is running.
func (s *Service) Reload() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if s.loaded && info.ModTime().Equal(s.modTime) {
		return false, nil
	}
	s.loaded = false
	if err := s.loadLocked(); err != nil {
		return false, err
	}
	if s.runCtx != nil {
		s.cancelAllLocked()
		s.armAllLocked()
	}
	slog.Info("announce: jobs reloaded", "jobs", len(s.file.Jobs))
	return true, nil
}

// Add validates req and stores a new enabled job, arming it when the
// service is running.
func (s *Service) Add(req AddRequest) (Job, error) {
	if strings.TrimSpace(req.Message) == "" {
		return Job{}, errors.New("announce: message is empty")
	}
	if _, err := session.Parse(req.Session); err != nil {
		return Job{}, fmt.Errorf("announce: %w", err)
	}
	if req.RecallAfter < 0 {
		return Job{}, errors.New("announce: recallAfter must not be negative")
	}

	sched := Schedule{Kind: req.Kind}
	switch req.Kind {
	case KindEvery:
		if req.Every < minInterval {
			return Job{}, fmt.Errorf("announce: interval must be at least %s", minInterval)
		}
		ms := req.Every.Milliseconds()
		sched.EveryMs = &ms
	case KindCron:
		if _, err := cronParser.Parse(req.Expr); err != nil {
			return Job{}, fmt.Errorf("announce: invalid cron expression %q: %w", req.Expr, err)
		}
		expr := req.Expr
		sched.Expr = &expr
		if req.TZ != "" {
			if _, err := time.LoadLocation(req.TZ); err != nil {
				return Job{}, fmt.Errorf("announce: unknown timezone %q: %w", req.TZ, err)
			}
			tz := req.TZ
			sched.TZ = &tz
		}
	case KindAt:
		if !req.At.After(time.Now()) {
			return Job{}, errors.New("announce: time is in the past")
		}
		ms := req.At.UnixMilli()
		sched.AtMs = &ms
	default:
		return Job{}, fmt.Errorf("announce: unknown schedule kind %q", req.Kind)
	}

	now := nowMs()
	job := Job{
		ID:       uuid.NewString()[:8],
		Name:     req.Name,
		Enabled:  true,
		Schedule: sched,
		Payload: Payload{
			Session:     req.Session,
			Message:     req.Message,
			RecallAfter: req.RecallAfter,
		},
		State:          JobState{NextRunAtMs: nextRun(sched, now)},
		CreatedAtMs:    now,
		UpdatedAtMs:    now,
		DeleteAfterRun: req.DeleteAfterRun,
	}
	if job.Name == "" {
		job.Name = job.ID
	}

	s.mu.Lock()
	_ = s.loadLocked()
	s.file.Jobs = append(s.file.Jobs, job)
	if s.runCtx != nil {
		s.armLocked(s.runCtx, job)
	}
	s.saveLocked()
	s.mu.Unlock()

	slog.Info("announce: added job", "name", job.Name, "id", job.ID, "kind", req.Kind, "session", req.Session)
	return job, nil
}

// List returns jobs ordered by next run.
func (s *Service) List(includeDisabled bool) []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.loadLocked()

	var jobs []Job
	for _, j := range s.file.Jobs {
		if includeDisabled || j.Enabled {
			jobs = append(jobs, j)
		}
	}
	sort.SliceStable(jobs, func(a, b int) bool {
		return runKey(jobs[a]) < runKey(jobs[b])
	})
	return jobs
}

// Remove deletes a job and reports whether it existed.
func (s *Service) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.loadLocked()

	if !s.dropLocked(id) {
		return false
	}
	s.cancelLocked(id)
	s.saveLocked()
	return true
}

// Enable switches a job on or off.
func (s *Service) Enable(id string, enabled bool) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.loadLocked()

	j := s.findLocked(id)
	if j == nil {
		return Job{}, false
	}
	j.Enabled = enabled
	j.UpdatedAtMs = nowMs()
	if enabled {
		j.State.NextRunAtMs = nextRun(j.Schedule, nowMs())
		if s.runCtx != nil {
			s.armLocked(s.runCtx, *j)
		}
	} else {
		j.State.NextRunAtMs = nil
		s.cancelLocked(id)
	}
	s.saveLocked()
	return *j, true
}

// Run fires a job immediately. Disabled jobs only run with force.
func (s *Service) Run(ctx context.Context, id string, force bool) bool {
	s.mu.Lock()
	_ = s.loadLocked()
	j := s.findLocked(id)
	if j == nil || (!force && !j.Enabled) {
		s.mu.Unlock()
		return false
	}
	job := *j
	s.mu.Unlock()

	s.execute(ctx, job)
	return true
}

func (s *Service) armAllLocked() {
	now := nowMs()
	for i := range s.file.Jobs {
		if s.file.Jobs[i].Enabled {
			s.file.Jobs[i].State.NextRunAtMs = nextRun(s.file.Jobs[i].Schedule, now)
			s.armLocked(s.runCtx, s.file.Jobs[i])
		}
	}
	s.saveLocked()
}

func (s *Service) cancelAllLocked() {
	for id := range s.timers {
		s.cancelLocked(id)
	}
	for id := range s.robfigIDs {
		s.cancelLocked(id)
	}
}

func (s *Service) armLocked(ctx context.Context, job Job) {
	s.cancelLocked(job.ID)

	switch job.Schedule.Kind {
	case KindEvery:
		if job.Schedule.EveryMs == nil || *job.Schedule.EveryMs <= 0 {
			return
		}
		d := time.Duration(*job.Schedule.EveryMs) * time.Millisecond
		s.timers[job.ID] = time.AfterFunc(d, func() {
			s.execute(ctx, job)
			s.mu.Lock()
			defer s.mu.Unlock()
			if ctx.Err() != nil {
				return
			}
			if j := s.findLocked(job.ID); j != nil && j.Enabled {
				s.armLocked(ctx, *j)
			}
		})

	case KindAt:
		if job.Schedule.AtMs == nil {
			return
		}
		delay := time.Until(time.UnixMilli(*job.Schedule.AtMs))
		if delay < 0 {
			return
		}
		s.timers[job.ID] = time.AfterFunc(delay, func() { s.execute(ctx, job) })

	case KindCron:
		if job.Schedule.Expr == nil {
			return
		}
		sched, err := cronParser.Parse(*job.Schedule.Expr)
		if err != nil {
			slog.Warn("announce: invalid cron expression", "job", job.ID, "expr", *job.Schedule.Expr, "err", err)
			return
		}
		s.robfigIDs[job.ID] = s.robfig.Schedule(
			inLocation{inner: sched, loc: location(job.Schedule.TZ)},
			robfigcron.FuncJob(func() { s.execute(ctx, job) }),
		)
	}
}

func (s *Service) cancelLocked(id string) {
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	if eid, ok := s.robfigIDs[id]; ok {
		s.robfig.Remove(eid)
		delete(s.robfigIDs, id)
	}
}

func (s *Service) execute(ctx context.Context, job Job) {
	start := nowMs()
	slog.Info("announce: firing job", "name", job.Name, "id", job.ID, "session", job.Payload.Session)

	status := "ok"
	var lastErr *string
	if s.onJob != nil {
		if err := s.onJob(ctx, job); err != nil {
			status = "error"
			e := err.Error()
			lastErr = &e
			slog.Error("announce: job failed", "name", job.Name, "err", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.findLocked(job.ID)
	if j == nil {
		return
	}
	now := nowMs()
	j.State.LastRunAtMs = &start
	j.State.LastStatus = &status
	j.State.LastError = lastErr
	j.UpdatedAtMs = now

	switch {
	case job.Schedule.Kind == KindAt && job.DeleteAfterRun:
		s.dropLocked(job.ID)
	case job.Schedule.Kind == KindAt:
		j.Enabled = false
		j.State.NextRunAtMs = nil
	default:
		j.State.NextRunAtMs = nextRun(job.Schedule, now)
	}
	s.saveLocked()
}

func (s *Service) findLocked(id string) *Job {
	for i := range s.file.Jobs {
		if s.file.Jobs[i].ID == id {
			return &s.file.Jobs[i]
		}
	}
	return nil
}

func (s *Service) dropLocked(id string) bool {
	kept := s.file.Jobs[:0]
	for _, j := range s.file.Jobs {
		if j.ID != id {
			kept = append(kept, j)
		}
	}
	dropped := len(kept) < len(s.file.Jobs)
	s.file.Jobs = kept
	return dropped
}

func (s *Service) loadLocked() error {
	if s.loaded {
		return nil
	}
	s.loaded = true
	if info, err := os.Stat(s.path); err == nil {
		s.modTime = info.ModTime()
	}
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.file = jobFile{Version: 1}
		return nil
	}
	if err != nil {
		return err
	}
	var f jobFile
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	if f.Version == 0 {
		f.Version = 1
	}
	s.file = f
	return nil
}

func (s *Service) saveLocked() {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		slog.Warn("announce: mkdir failed", "err", err)
		return
	}
	data, err := json.MarshalIndent(s.file, "", "  ")
	if err != nil {
		slog.Warn("announce: marshal failed", "err", err)
		return
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		slog.Warn("announce: write failed", "err", err)
		return
	}
	if info, err := os.Stat(s.path); err == nil {
		s.modTime = info.ModTime()
	}
}

func nowMs() int64 { return time.Now().UnixMilli() }

// runKey sorts jobs without a next run last.
func runKey(j Job) int64 {
	if j.State.NextRunAtMs == nil {
		return int64(^uint64(0) >> 1)
	}
	return *j.State.NextRunAtMs
}

func nextRun(sched Schedule, now int64) *int64 {
	var next int64
	switch sched.Kind {
	case KindAt:
		if sched.AtMs == nil || *sched.AtMs <= now {
			return nil
		}
		next = *sched.AtMs
	case KindEvery:
		if sched.EveryMs == nil || *sched.EveryMs <= 0 {
			return nil
		}
		next = now + *sched.EveryMs
	case KindCron:
		if sched.Expr == nil {
			return nil
		}
		parsed, err := cronParser.Parse(*sched.Expr)
		if err != nil {
			return nil
		}
		next = parsed.Next(time.UnixMilli(now).In(location(sched.TZ))).UnixMilli()
	default:
		return nil
	}
	return &next
}

func location(tz *string) *time.Location {
	if tz != nil && *tz != "" {
		if l, err := time.LoadLocation(*tz); err == nil {
			return l
		}
	}
	return time.Local
}

// inLocation evaluates a cron schedule in a fixed timezone.
type inLocation struct {
	inner robfigcron.Schedule
	loc   *time.Location
}

func (l inLocation) Next(t time.Time) time.Time { return l.inner.Next(t.In(l.loc)) }
