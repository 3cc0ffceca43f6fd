package voice

import "errors"

// State names the position of a recording session in its lifecycle.
// Transitions are serialized by the Controller; a session is in exactly
// one state at a time.
type State string

const (
	StateIdle        State = "idle"
	StateRecording   State = "recording"
	StateProcessing  State = "processing"
	StateReview      State = "review"
	StateQueryResult State = "query_result"
	StateActResult   State = "act_result"
	StateError       State = "error"
)

var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrNoAudio           = errors.New("no audio captured")
	ErrSessionActive     = errors.New("a session is already active")
	ErrNotRecording      = errors.New("not recording")
	ErrProcessingTimeout = errors.New("processing timed out")
)

// Recorder abstracts the capture device. Start may fail when the user
// has not granted microphone access; Stop returns whatever bytes were
// captured.
type Recorder interface {
	Start() error
	Stop() ([]byte, error)
	Cancel()
}

// MemoryRecorder is an in-process Recorder backed by a byte buffer.
type MemoryRecorder struct {
	Audio  []byte
	Denied bool

	recording bool
}

func (r *MemoryRecorder) Start() error {
	if r.Denied {
		return ErrPermissionDenied
	}
	r.recording = true
	return nil
}

func (r *MemoryRecorder) Stop() ([]byte, error) {
	if !r.recording {
		return nil, ErrNotRecording
	}
	r.recording = false
	return r.Audio, nil
}

func (r *MemoryRecorder) Cancel() {
	r.recording = false
}
