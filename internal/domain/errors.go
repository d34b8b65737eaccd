package domain

import "errors"

// Domain errors.
var (
	// ErrInvalidSource is returned when the source URL is missing or not an absolute URI.
	ErrInvalidSource = errors.New("invalid source URL")

	// ErrProcessSpawn is returned when the OS fails to start the extractor or transcoder.
	ErrProcessSpawn = errors.New("failed to spawn process")

	// ErrPipeEstablishment is returned when extractor output cannot be connected to transcoder input.
	ErrPipeEstablishment = errors.New("failed to connect extractor output to transcoder input")

	// ErrProcessExit is recorded when a subprocess exits with a non-zero or signal code.
	ErrProcessExit = errors.New("process exited abnormally")

	// ErrSessionNotFound is returned when a task id does not name a live session.
	ErrSessionNotFound = errors.New("stream not found")

	// ErrTimeout is returned when a spawn-time or kill-escalation wait expires.
	ErrTimeout = errors.New("operation timed out")

	// ErrDuplicateTask is returned when a session with the same task id is already live.
	ErrDuplicateTask = errors.New("task id already in use")

	// ErrStreamClaimed is returned when the live output of a session was already handed out.
	ErrStreamClaimed = errors.New("stream output already consumed")

	// ErrShuttingDown is returned when a session is requested after shutdown began.
	ErrShuttingDown = errors.New("service is shutting down")
)

// Machine-readable error codes carried in HTTP error bodies and status snapshots.
const (
	CodeInvalidSource  = "INVALID_SOURCE"
	CodeProcessSpawn   = "PROCESS_SPAWN_ERROR"
	CodePipe           = "PIPE_ERROR"
	CodeProcessExit    = "PROCESS_EXIT_ERROR"
	CodeNotFound       = "STREAM_NOT_FOUND"
	CodeTimeout        = "TIMEOUT"
	CodeDuplicateTask  = "DUPLICATE_TASK"
	CodeStreamConsumed = "STREAM_ALREADY_CONSUMED"
	CodeShuttingDown   = "SHUTTING_DOWN"
	CodeInternal       = "INTERNAL_ERROR"
)

// ErrorCode maps err to its machine-readable code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidSource):
		return CodeInvalidSource
	case errors.Is(err, ErrProcessSpawn):
		return CodeProcessSpawn
	case errors.Is(err, ErrPipeEstablishment):
		return CodePipe
	case errors.Is(err, ErrProcessExit):
		return CodeProcessExit
	case errors.Is(err, ErrSessionNotFound):
		return CodeNotFound
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrDuplicateTask):
		return CodeDuplicateTask
	case errors.Is(err, ErrStreamClaimed):
		return CodeStreamConsumed
	case errors.Is(err, ErrShuttingDown):
		return CodeShuttingDown
	default:
		return CodeInternal
	}
}

// StreamError wraps an error with session context.
type StreamError struct {
	TaskID TaskID
	Op     string
	Err    error
}

func (e *StreamError) Error() string {
	if e.TaskID != "" {
		return e.Op + " [" + e.TaskID.String() + "]: " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// NewStreamError creates a new StreamError.
func NewStreamError(taskID TaskID, op string, err error) *StreamError {
	return &StreamError{
		TaskID: taskID,
		Op:     op,
		Err:    err,
	}
}
