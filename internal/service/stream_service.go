package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GDKAYKY/ytdln-open-sub000/internal/config"
	"github.com/GDKAYKY/ytdln-open-sub000/internal/domain"
	"github.com/GDKAYKY/ytdln-open-sub000/internal/metrics"
	"github.com/GDKAYKY/ytdln-open-sub000/internal/pipeline"
	"github.com/GDKAYKY/ytdln-open-sub000/internal/process"
	"github.com/GDKAYKY/ytdln-open-sub000/internal/progress"
	"github.com/GDKAYKY/ytdln-open-sub000/internal/repository"
	"github.com/GDKAYKY/ytdln-open-sub000/internal/tools"
)

// tailWait bounds how long an exit watcher waits for the stderr monitor to
// drain before it builds the error message.
const tailWait = 500 * time.Millisecond

// CreateRequest describes a new stream session.
type CreateRequest struct {
	// TaskID is generated when empty.
	TaskID  domain.TaskID
	URL     string
	Options domain.Options
	// ExpectedSize is the probed output size in bytes, 0 when unknown.
	ExpectedSize int64
}

// Handle is returned by CreateSession.
type Handle struct {
	TaskID domain.TaskID
	st     *stream
}

// Output claims the transcoder output of the session. It can be claimed once.
func (h *Handle) Output() (io.ReadCloser, error) {
	return h.st.claim()
}

// StreamService creates, tracks and tears down stream sessions.
type StreamService struct {
	spawner  process.Spawner
	bins     tools.Binaries
	live     *repository.InMemorySessionRegistry[*stream]
	finished repository.FinishedStore
	cfg      config.StreamConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger

	now func() time.Time

	// lifecycle is held shared while a session is created and exclusively
	// while StopAll marks the service closing.
	lifecycle sync.RWMutex
	closing   bool

	// mu pairs a terminal transition with its teardowns.Add so StopAll can
	// wait without racing new teardowns.
	mu        sync.Mutex
	teardowns sync.WaitGroup
}

// NewStreamService creates a new stream service. finished may be nil when
// terminal sessions should not be retained.
func NewStreamService(
	spawner process.Spawner,
	bins tools.Binaries,
	finished repository.FinishedStore,
	cfg config.StreamConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *StreamService {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamService{
		spawner:  spawner,
		bins:     bins,
		live:     repository.NewInMemorySessionRegistry[*stream](),
		finished: finished,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// ValidateSource checks that raw is an absolute URL with a scheme. It does not
// check reachability.
func ValidateSource(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%w: url is empty", domain.ErrInvalidSource)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidSource, err)
	}
	if u.Scheme == "" || !u.IsAbs() {
		return fmt.Errorf("%w: url must be absolute with a scheme", domain.ErrInvalidSource)
	}
	if (u.Scheme == "http" || u.Scheme == "https") && u.Host == "" {
		return fmt.Errorf("%w: url has no host", domain.ErrInvalidSource)
	}
	return nil
}

// CreateSession validates the source, starts both processes and pipes the
// extractor into the transcoder. The session is registered before it returns.
func (s *StreamService) CreateSession(ctx context.Context, req CreateRequest) (*Handle, error) {
	if err := ValidateSource(req.URL); err != nil {
		return nil, domain.NewStreamError(req.TaskID, "create", err)
	}

	s.lifecycle.RLock()
	defer s.lifecycle.RUnlock()
	if s.closing {
		return nil, domain.NewStreamError(req.TaskID, "create", domain.ErrShuttingDown)
	}

	id := req.TaskID
	if id == "" {
		id = domain.TaskID("str_" + uuid.NewString())
	}
	opts := req.Options.WithDefaults()
	sess := domain.NewSession(id, req.URL, opts, req.ExpectedSize, s.now())

	logger := s.logger.With("task_id", id.String())
	st := &stream{
		sess:           sess,
		events:         newBroadcaster(s.cfg.SubscriberBuffer, logger),
		logger:         logger,
		extractorTail:  newTailBuffer(s.cfg.StderrTailLines),
		transcoderTail: newTailBuffer(s.cfg.StderrTailLines),
		extractorLog:   make(chan struct{}),
		transcoderLog:  make(chan struct{}),
	}
	if err := s.live.Add(id, st); err != nil {
		return nil, domain.NewStreamError(id, "create", err)
	}

	extractor, err := s.spawner.Spawn(ctx, process.Spec{
		Name: string(domain.RoleExtractor),
		Path: s.bins.Extractor,
		Args: pipeline.BuildExtractorArgs(opts, req.URL),
	})
	if err != nil {
		s.live.Remove(id)
		s.metrics.SpawnFailed(string(domain.RoleExtractor))
		logger.Error("failed to spawn extractor", "error", err)
		return nil, domain.NewStreamError(id, "spawn extractor", err)
	}
	st.setProcess(domain.RoleExtractor, extractor)

	if extractor.Stdout() == nil {
		extractor.Kill()
		releaseStderr(extractor)
		s.live.Remove(id)
		return nil, domain.NewStreamError(id, "pipe", domain.ErrPipeEstablishment)
	}

	transcoder, err := s.spawner.Spawn(ctx, process.Spec{
		Name:  string(domain.RoleTranscoder),
		Path:  s.bins.Transcoder,
		Args:  pipeline.BuildTranscoderArgs(opts),
		Stdin: extractor.Stdout(),
	})
	if err != nil {
		extractor.Kill()
		releaseStderr(extractor)
		s.live.Remove(id)
		s.metrics.SpawnFailed(string(domain.RoleTranscoder))
		logger.Error("failed to spawn transcoder", "error", err)
		return nil, domain.NewStreamError(id, "spawn transcoder", err)
	}
	st.setProcess(domain.RoleTranscoder, transcoder)

	if transcoder.Stdout() == nil {
		transcoder.Kill()
		extractor.Kill()
		releaseStderr(transcoder, extractor)
		s.live.Remove(id)
		return nil, domain.NewStreamError(id, "pipe", domain.ErrPipeEstablishment)
	}

	st.mu.Lock()
	st.output = &countingReader{
		r:         transcoder.Stdout(),
		sess:      sess,
		metrics:   s.metrics,
		onAdvance: func() { st.events.Publish(Event{Type: EventProgress, Snapshot: sess.Snapshot(s.now())}) },
		onDrain:   func() { s.refreshFinished(st) },
	}
	st.mu.Unlock()

	sess.SetAlive(domain.RoleExtractor, true)
	sess.SetAlive(domain.RoleTranscoder, true)
	if !sess.Transition(domain.StatusStreaming, s.now()) {
		// Stopped while spawning; finish already removed it.
		st.closeOutput()
		releaseStderr(transcoder, extractor)
		s.mu.Lock()
		s.teardowns.Add(1)
		s.mu.Unlock()
		go s.teardown(st)
		return nil, domain.NewStreamError(id, "create", domain.ErrSessionNotFound)
	}

	go s.monitor(st, domain.RoleExtractor, extractor.Stderr(), progress.ParseExtractorLine, st.extractorTail, st.extractorLog)
	go s.monitor(st, domain.RoleTranscoder, transcoder.Stderr(), progress.ParseTranscoderLine, st.transcoderTail, st.transcoderLog)
	go s.watchExtractor(st, extractor)
	go s.watchTranscoder(st, transcoder, extractor)

	s.metrics.SessionStarted()
	logger.Info("stream session started",
		"url", req.URL,
		"format", opts.Format,
		"audio_only", opts.AudioOnly,
		"expected_size", req.ExpectedSize,
		"extractor_pid", extractor.Pid(),
		"transcoder_pid", transcoder.Pid(),
	)
	st.events.Publish(Event{Type: EventStatus, Snapshot: sess.Snapshot(s.now())})

	return &Handle{TaskID: id, st: st}, nil
}

// releaseStderr closes the stderr pipes of processes whose monitors were
// never started.
func releaseStderr(procs ...process.Process) {
	for _, p := range procs {
		if r := p.Stderr(); r != nil {
			r.Close()
		}
	}
}

// monitor feeds stderr lines of one process through its parser.
func (s *StreamService) monitor(
	st *stream,
	role domain.ProcessRole,
	r io.ReadCloser,
	parse func(string) (domain.ProgressInfo, bool),
	tail *tailBuffer,
	done chan struct{},
) {
	defer close(done)
	if r == nil {
		return
	}
	defer r.Close()

	err := progress.EachLine(r, progress.DefaultMaxLineLength, func(line string) {
		if info, ok := parse(line); ok {
			st.sess.Apply(info)
			st.events.Publish(Event{Type: EventProgress, Snapshot: st.sess.Snapshot(s.now())})
			return
		}
		tail.Add(line)
		st.logger.Debug("process output", "process", role, "line", line)
	})
	if err != nil {
		st.logger.Debug("stderr monitor stopped", "process", role, "error", err)
	}
}

func (s *StreamService) waitMonitor(done <-chan struct{}) {
	select {
	case <-done:
	case <-time.After(tailWait):
	}
}

func (s *StreamService) watchExtractor(st *stream, extractor process.Process) {
	<-extractor.Done()
	st.sess.SetAlive(domain.RoleExtractor, false)
	if st.sess.Status().IsTerminal() {
		return
	}

	code := extractor.ExitCode()
	if code == 0 {
		st.logger.Debug("extractor finished")
		return
	}
	s.waitMonitor(st.extractorLog)
	s.finish(st, domain.StatusError, exitError(domain.RoleExtractor, code, st.extractorTail))
}

func (s *StreamService) watchTranscoder(st *stream, transcoder, extractor process.Process) {
	<-transcoder.Done()
	st.sess.SetAlive(domain.RoleTranscoder, false)
	if st.sess.Status().IsTerminal() {
		return
	}

	code := transcoder.ExitCode()
	if code != 0 {
		s.waitMonitor(st.transcoderLog)
		s.finish(st, domain.StatusError, exitError(domain.RoleTranscoder, code, st.transcoderTail))
		return
	}
	if err := transcoder.Err(); err != nil {
		s.finish(st, domain.StatusError, fmt.Errorf("%w: transcoder: %v", domain.ErrProcessExit, err))
		return
	}

	// A clean transcoder exit only completes the session if the extractor
	// did not fail.
	select {
	case <-extractor.Done():
		if ec := extractor.ExitCode(); ec != 0 {
			s.waitMonitor(st.extractorLog)
			s.finish(st, domain.StatusError, exitError(domain.RoleExtractor, ec, st.extractorTail))
			return
		}
	case <-time.After(s.cfg.KillTimeout):
		st.logger.Warn("extractor still running after transcoder exit")
	}
	s.finish(st, domain.StatusCompleted, nil)
}

func exitError(role domain.ProcessRole, code int, tail *tailBuffer) error {
	reason := fmt.Sprintf("exited with code %d", code)
	if code < 0 {
		reason = "killed by a signal"
	}
	if msg := tail.String(); msg != "" {
		return fmt.Errorf("%w: %s %s: %s", domain.ErrProcessExit, role, reason, msg)
	}
	return fmt.Errorf("%w: %s %s", domain.ErrProcessExit, role, reason)
}

// finish moves st to a terminal status, publishes the final snapshot and
// removes it from the live registry. Teardown of the processes continues in
// the background. It returns false when the session was already terminal.
func (s *StreamService) finish(st *stream, status domain.Status, cause error) bool {
	now := s.now()
	s.mu.Lock()
	var applied bool
	if status == domain.StatusError {
		applied = st.sess.Fail(cause, now)
	} else {
		applied = st.sess.Transition(status, now)
	}
	if applied {
		s.teardowns.Add(1)
	}
	s.mu.Unlock()
	if !applied {
		return false
	}

	if status != domain.StatusCompleted {
		st.sess.SetAlive(domain.RoleExtractor, false)
		st.sess.SetAlive(domain.RoleTranscoder, false)
	}
	st.retireMu.Lock()
	snap := st.sess.Snapshot(now)
	st.retired = true
	st.expires = now.Add(s.cfg.RetainFinished)
	if s.retains() {
		s.finished.Put(snap, st.expires)
	}
	s.live.Remove(st.sess.ID)
	st.retireMu.Unlock()
	st.events.Close(Event{Type: EventStatus, Snapshot: snap})
	s.metrics.SessionFinished(string(status), snap.Uptime)

	attrs := []any{
		"status", status,
		"uptime_seconds", snap.Uptime,
		"bytes", snap.Progress.BytesTransferred,
	}
	if cause != nil {
		st.logger.Error("stream session failed", append(attrs, "error", cause)...)
	} else {
		st.logger.Info("stream session finished", attrs...)
	}

	// A claimed output of a completed session is left for its reader to
	// drain to EOF.
	if status != domain.StatusCompleted || !st.claimed.Load() {
		st.closeOutput()
	}

	go s.teardown(st)
	return true
}

func (s *StreamService) retains() bool {
	return s.finished != nil && s.cfg.RetainFinished > 0
}

// refreshFinished rewrites the finished snapshot of a retired session once
// its output has drained, so bytes read after the transcoder exited are
// reflected in the final progress.
func (s *StreamService) refreshFinished(st *stream) {
	st.retireMu.Lock()
	defer st.retireMu.Unlock()
	if !st.retired || !s.retains() {
		return
	}
	s.finished.Put(st.sess.Snapshot(s.now()), st.expires)
}

// teardown terminates both processes, escalating to kill after the grace
// period.
func (s *StreamService) teardown(st *stream) {
	defer s.teardowns.Done()

	procs := st.processes()
	for _, p := range procs {
		if err := p.Terminate(); err != nil {
			st.logger.Debug("terminate failed", "pid", p.Pid(), "error", err)
		}
	}
	if waitAll(procs, s.cfg.KillTimeout) {
		return
	}

	for _, p := range procs {
		select {
		case <-p.Done():
			continue
		default:
		}
		st.logger.Warn("process did not exit after terminate, killing", "pid", p.Pid())
		if err := p.Kill(); err != nil {
			st.logger.Debug("kill failed", "pid", p.Pid(), "error", err)
		}
	}
	if !waitAll(procs, s.cfg.KillTimeout) {
		st.logger.Error("processes still running after kill", "error", domain.ErrTimeout)
	}
}

// waitAll reports whether every process exited within d.
func waitAll(procs []process.Process, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for _, p := range procs {
		select {
		case <-p.Done():
		case <-timer.C:
			return false
		}
	}
	return true
}

// Stop stops a live session. The session leaves the registry before Stop
// returns; process teardown continues in the background.
func (s *StreamService) Stop(id domain.TaskID) error {
	st, ok := s.live.Get(id)
	if !ok {
		return domain.NewStreamError(id, "stop", domain.ErrSessionNotFound)
	}
	if !s.finish(st, domain.StatusStopped, nil) {
		return domain.NewStreamError(id, "stop", domain.ErrSessionNotFound)
	}
	return nil
}

// StopAll stops every live session and waits for their teardown until ctx
// is done. New sessions are refused once it has been called.
func (s *StreamService) StopAll(ctx context.Context) error {
	s.lifecycle.Lock()
	s.closing = true
	s.lifecycle.Unlock()

	for _, st := range s.live.List() {
		s.finish(st, domain.StatusStopped, nil)
	}

	// Every session is terminal now; any transition still in flight has
	// registered its teardown once mu is free.
	s.mu.Lock()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.teardowns.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: waiting for process teardown: %v", domain.ErrTimeout, ctx.Err())
	}
}

// OpenStream claims the output of a live session.
func (s *StreamService) OpenStream(id domain.TaskID) (io.ReadCloser, error) {
	st, ok := s.live.Get(id)
	if !ok {
		return nil, domain.NewStreamError(id, "open", domain.ErrSessionNotFound)
	}
	out, err := st.claim()
	if err != nil {
		return nil, domain.NewStreamError(id, "open", err)
	}
	return out, nil
}

// Subscribe returns a channel of events for a live session and a function
// that releases it. The channel is closed after the terminal status event.
func (s *StreamService) Subscribe(id domain.TaskID) (<-chan Event, func(), error) {
	st, ok := s.live.Get(id)
	if !ok {
		return nil, nil, domain.NewStreamError(id, "subscribe", domain.ErrSessionNotFound)
	}
	subID, ch := st.events.Subscribe()
	return ch, func() { st.events.Unsubscribe(subID) }, nil
}

// GetStatus returns a snapshot of a live or recently finished session.
func (s *StreamService) GetStatus(id domain.TaskID) (domain.StatusSnapshot, error) {
	if st, ok := s.live.Get(id); ok {
		return st.sess.Snapshot(s.now()), nil
	}
	if s.finished != nil {
		if snap, ok := s.finished.Get(id, s.now()); ok {
			return snap, nil
		}
	}
	return domain.StatusSnapshot{}, domain.NewStreamError(id, "status", domain.ErrSessionNotFound)
}

// List returns snapshots of all live sessions, oldest first.
func (s *StreamService) List() []domain.StatusSnapshot {
	now := s.now()
	streams := s.live.List()
	snaps := make([]domain.StatusSnapshot, 0, len(streams))
	for _, st := range streams {
		snaps = append(snaps, st.sess.Snapshot(now))
	}
	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].StartedAt.Equal(snaps[j].StartedAt) {
			return snaps[i].TaskID < snaps[j].TaskID
		}
		return snaps[i].StartedAt.Before(snaps[j].StartedAt)
	})
	return snaps
}

// PruneFinished drops expired finished sessions and returns how many were
// removed.
func (s *StreamService) PruneFinished(now time.Time) int {
	if s.finished == nil {
		return 0
	}
	return s.finished.Prune(now)
}

// LiveCount returns the number of live sessions.
func (s *StreamService) LiveCount() int {
	return s.live.Len()
}

// IsNotFound reports whether err means the task id is unknown.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrSessionNotFound)
}
