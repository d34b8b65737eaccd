package service

import (
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GDKAYKY/ytdln-open-sub000/internal/domain"
	"github.com/GDKAYKY/ytdln-open-sub000/internal/metrics"
	"github.com/GDKAYKY/ytdln-open-sub000/internal/process"
)

// stream is the registry entry for one live session: the session state
// plus the resources the service owns on its behalf.
type stream struct {
	sess   *domain.Session
	events *broadcaster
	logger *slog.Logger

	mu         sync.Mutex
	extractor  process.Process
	transcoder process.Process
	output     *countingReader

	claimed atomic.Bool

	// retireMu orders writes of the finished snapshot. retired is set once
	// the session has left the live registry.
	retireMu sync.Mutex
	retired  bool
	expires  time.Time

	extractorTail  *tailBuffer
	transcoderTail *tailBuffer
	extractorLog   chan struct{} // closed when the extractor stderr monitor returns
	transcoderLog  chan struct{}
}

func (st *stream) setProcess(role domain.ProcessRole, p process.Process) {
	st.mu.Lock()
	defer st.mu.Unlock()
	switch role {
	case domain.RoleExtractor:
		st.extractor = p
	case domain.RoleTranscoder:
		st.transcoder = p
	}
}

// processes returns the spawned processes, transcoder first.
func (st *stream) processes() []process.Process {
	st.mu.Lock()
	defer st.mu.Unlock()
	var procs []process.Process
	if st.transcoder != nil {
		procs = append(procs, st.transcoder)
	}
	if st.extractor != nil {
		procs = append(procs, st.extractor)
	}
	return procs
}

// claim hands out the transcoder output to its single reader.
func (st *stream) claim() (io.ReadCloser, error) {
	if !st.claimed.CompareAndSwap(false, true) {
		return nil, domain.ErrStreamClaimed
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.output == nil {
		return nil, domain.ErrPipeEstablishment
	}
	return st.output, nil
}

func (st *stream) closeOutput() {
	st.mu.Lock()
	out := st.output
	st.mu.Unlock()
	if out != nil {
		out.Close()
	}
}

// tailBuffer keeps the last few lines written to it.
type tailBuffer struct {
	mu    sync.Mutex
	lines []string
	max   int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Add(line string) {
	if t.max <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "; ")
}

// countingReader counts bytes read from the transcoder output into the
// session progress. onAdvance runs whenever the integer percent changes, or
// every reportEvery bytes when the size is unknown. onDrain runs once, when
// a read fails (EOF included) or the reader is closed.
type countingReader struct {
	r         io.ReadCloser
	sess      *domain.Session
	metrics   *metrics.Metrics
	onAdvance func()
	onDrain   func()

	lastPercent int
	lastReport  int64
	drainOnce   sync.Once
	closeOnce   sync.Once
	closeErr    error
}

const reportEvery = 1 << 20

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		prog := c.sess.AddBytes(int64(n))
		c.metrics.AddBytes(n)

		advanced := false
		if prog.FileSizeBytes > 0 {
			if pct := int(prog.Percent); pct != c.lastPercent {
				c.lastPercent = pct
				advanced = true
			}
		} else if prog.BytesTransferred-c.lastReport >= reportEvery {
			c.lastReport = prog.BytesTransferred
			advanced = true
		}
		if advanced && c.onAdvance != nil {
			c.onAdvance()
		}
	}
	if err != nil {
		c.drained()
	}
	return n, err
}

// Close closes the underlying reader once.
func (c *countingReader) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.r.Close()
	})
	c.drained()
	return c.closeErr
}

func (c *countingReader) drained() {
	c.drainOnce.Do(func() {
		if c.onDrain != nil {
			c.onDrain()
		}
	})
}
