package domain

import (
	"sync"
	"time"
)

// TaskID is a unique identifier for a stream session.
type TaskID string

// String returns the string representation of the TaskID.
func (id TaskID) String() string {
	return string(id)
}

// Status represents the lifecycle state of a stream session.
type Status string

const (
	StatusStarting  Status = "starting"
	StatusStreaming Status = "streaming"
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
	StatusError     Status = "error"
)

// transitions lists the states reachable from each non-terminal state.
var transitions = map[Status][]Status{
	StatusStarting:  {StatusStreaming, StatusStopped, StatusError},
	StatusStreaming: {StatusCompleted, StatusStopped, StatusError},
}

// IsTerminal returns true for completed, stopped and error.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusStopped || s == StatusError
}

// CanTransition reports whether a session in state s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Format values with special meaning to the argument builder.
const (
	FormatBest  = "best"
	FormatAudio = "audio"
)

// Options selects the source format and output container of a session.
type Options struct {
	Format    string `json:"format"`
	AudioOnly bool   `json:"audioOnly"`
}

// WithDefaults fills in the default format.
func (o Options) WithDefaults() Options {
	if o.Format == "" {
		o.Format = FormatBest
	}
	return o
}

// ProcessRole identifies one of the two subprocesses of a session.
type ProcessRole string

const (
	RoleExtractor  ProcessRole = "extractor"
	RoleTranscoder ProcessRole = "transcoder"
)

// Session is the mutable state of one pipeline instance. All methods are safe
// for concurrent use; the owning service is the only writer.
type Session struct {
	ID        TaskID
	SourceURL string
	Options   Options
	StartedAt time.Time

	mu              sync.RWMutex
	status          Status
	endedAt         time.Time
	progress        Progress
	lastErr         error
	extractorAlive  bool
	transcoderAlive bool
}

// NewSession creates a session in the starting state.
func NewSession(id TaskID, sourceURL string, opts Options, fileSize int64, now time.Time) *Session {
	return &Session{
		ID:        id,
		SourceURL: sourceURL,
		Options:   opts.WithDefaults(),
		StartedAt: now,
		status:    StatusStarting,
		progress:  NewProgress(fileSize),
	}
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Transition moves the session to next if the state machine allows it.
// Illegal transitions, including any move out of a terminal state, are no-ops.
func (s *Session) Transition(next Status, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(next, now)
}

func (s *Session) transitionLocked(next Status, now time.Time) bool {
	if !s.status.CanTransition(next) {
		return false
	}
	s.status = next
	if next.IsTerminal() {
		s.endedAt = now
	}
	return true
}

// Fail records err and moves the session to the error state. Only the first
// failure is kept; later calls and calls on a terminal session return false.
func (s *Session) Fail(err error, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastErr != nil || s.status.IsTerminal() {
		return false
	}
	if !s.transitionLocked(StatusError, now) {
		return false
	}
	s.lastErr = err
	return true
}

// Err returns the recorded failure, if any.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Apply merges a parsed progress line into the snapshot.
func (s *Session) Apply(info ProgressInfo) {
	s.mu.Lock()
	s.progress = s.progress.Merge(info)
	s.mu.Unlock()
}

// AddBytes records n bytes delivered from the transcoder output.
func (s *Session) AddBytes(n int64) Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = s.progress.AddBytes(n)
	return s.progress
}

// Progress returns a copy of the merged progress.
func (s *Session) Progress() Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}

// SetAlive records whether the process in role is still running and unsignaled.
func (s *Session) SetAlive(role ProcessRole, alive bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch role {
	case RoleExtractor:
		s.extractorAlive = alive
	case RoleTranscoder:
		s.transcoderAlive = alive
	}
}

// StatusSnapshot is a read-only copy of a session's observable state.
type StatusSnapshot struct {
	TaskID          TaskID     `json:"taskId"`
	Status          Status     `json:"status"`
	SourceURL       string     `json:"url"`
	Options         Options    `json:"options"`
	StartedAt       time.Time  `json:"startedAt"`
	EndedAt         *time.Time `json:"endedAt,omitempty"`
	Uptime          float64    `json:"uptime"`
	ExtractorAlive  bool       `json:"extractorAlive"`
	TranscoderAlive bool       `json:"transcoderAlive"`
	Progress        Progress   `json:"progress"`
	Error           *string    `json:"error"`
	ErrorCode       string     `json:"errorCode,omitempty"`
}

// Snapshot copies the session state. Uptime is measured in seconds up to now,
// or up to the end time once the session is terminal.
func (s *Session) Snapshot(now time.Time) StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := StatusSnapshot{
		TaskID:          s.ID,
		Status:          s.status,
		SourceURL:       s.SourceURL,
		Options:         s.Options,
		StartedAt:       s.StartedAt,
		ExtractorAlive:  s.extractorAlive,
		TranscoderAlive: s.transcoderAlive,
		Progress:        s.progress,
	}

	end := now
	if !s.endedAt.IsZero() {
		ended := s.endedAt
		snap.EndedAt = &ended
		end = ended
	}
	if d := end.Sub(s.StartedAt); d > 0 {
		snap.Uptime = d.Seconds()
	}

	if s.lastErr != nil {
		msg := s.lastErr.Error()
		snap.Error = &msg
		snap.ErrorCode = ErrorCode(s.lastErr)
	}
	return snap
}
