package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"voxbridge/internal/gateway"
	"voxbridge/internal/hub"
	"voxbridge/internal/intent"
	"voxbridge/internal/model"
)

const (
	processingTimeout = 30 * time.Second
	maxAttempts       = 3
)

// Classifier turns one utterance of audio into a transcript and a
// parsed intent.
type Classifier interface {
	Process(ctx context.Context, audio []byte) (gateway.Result, error)
}

// Executor runs a confirmed intent and returns the user-visible
// outcome message.
type Executor interface {
	Execute(ctx context.Context, userID string, in intent.Intent) (string, error)
}

// SessionStore persists the session row backing a recording session.
type SessionStore interface {
	CreateVoiceSession(sess model.VoiceSession) (model.VoiceSession, error)
	MarkSessionExecuted(userID, id, status, result, parsedData string) (bool, error)
}

// Publisher pushes state-change events to the user's connected clients.
type Publisher interface {
	Publish(userID string, ev hub.Event)
}

// Controller drives a single user's recording session through
// record, classify, review, and execute. All transitions happen under
// one mutex; asynchronous steps capture a generation counter and
// discard their result if Cancel bumped it while they were in flight.
type Controller struct {
	userID     string
	recorder   Recorder
	classifier Classifier
	executor   Executor
	store      SessionStore
	events     Publisher
	logger     zerolog.Logger

	// Injectable for tests.
	sleep   func(time.Duration)
	timeout func(time.Duration) <-chan time.Time

	mu        sync.Mutex
	state     State
	gen       uint64
	session   model.VoiceSession
	intent    intent.Intent
	resultMsg string
	errMsg    string
}

func NewController(userID string, rec Recorder, cls Classifier, exec Executor, st SessionStore, events Publisher, logger zerolog.Logger) *Controller {
	c := &Controller{
		userID:     userID,
		recorder:   rec,
		classifier: cls,
		executor:   exec,
		store:      st,
		events:     events,
		logger:     logger.With().Str("component", "voice").Str("user", userID).Logger(),
		sleep:      time.Sleep,
		timeout:    func(d time.Duration) <-chan time.Time { return time.After(d) },
		state:      StateIdle,
	}
	return c
}

// State reports the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Intent returns the parsed intent awaiting review. Valid in
// StateReview only.
func (c *Controller) Intent() intent.Intent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.intent
}

// Result returns the message shown in StateQueryResult or
// StateActResult.
func (c *Controller) Result() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resultMsg
}

// ErrMessage returns the message shown in StateError.
func (c *Controller) ErrMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

// StartRecording begins capture. Rejected while another session is
// active.
func (c *Controller) StartRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return ErrSessionActive
	}
	if err := c.recorder.Start(); err != nil {
		return err
	}
	c.setState(StateRecording, "")
	return nil
}

// StopRecording ends capture and runs the classification round-trip.
// It blocks until the session reaches StateReview or StateError, or
// until a concurrent Cancel discards the in-flight result.
func (c *Controller) StopRecording(ctx context.Context) error {
	c.mu.Lock()

	if c.state != StateRecording {
		c.mu.Unlock()
		return ErrNotRecording
	}
	audio, err := c.recorder.Stop()
	if err != nil {
		c.fail(err.Error())
		c.mu.Unlock()
		return err
	}
	if len(audio) == 0 {
		c.fail(ErrNoAudio.Error())
		c.mu.Unlock()
		return ErrNoAudio
	}
	c.setState(StateProcessing, "")
	gen := c.gen
	c.mu.Unlock()

	res, err := c.classify(ctx, audio)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.state != StateProcessing {
		// Cancelled while the call was in flight; discard.
		return nil
	}
	if err != nil {
		c.fail(userMessage(err))
		return err
	}

	parsed, _ := json.Marshal(res.Intent)
	sess, err := c.store.CreateVoiceSession(model.VoiceSession{
		UserID:     c.userID,
		Transcript: res.Transcript,
		IntentType: string(res.Intent.Type),
		Category:   res.Intent.Category,
		Confidence: res.Intent.Confidence,
		ParsedData: string(parsed),
	})
	if err != nil {
		c.fail(err.Error())
		return err
	}
	c.session = sess
	c.intent = res.Intent
	c.setState(StateReview, res.Transcript)
	return nil
}

// classify races the retried gateway call against the processing
// timeout. On timeout the in-flight call is abandoned, not cancelled:
// a later completion finds the generation advanced and is discarded.
func (c *Controller) classify(ctx context.Context, audio []byte) (gateway.Result, error) {
	type outcome struct {
		res gateway.Result
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		var lastErr error
		for attempt := 0; attempt < maxAttempts; attempt++ {
			if attempt > 0 {
				c.sleep(time.Duration(attempt) * time.Second)
			}
			res, err := c.classifier.Process(ctx, audio)
			if err == nil {
				done <- outcome{res: res}
				return
			}
			lastErr = err
			var te *gateway.TransientError
			if !errors.As(err, &te) {
				break
			}
			c.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("classification attempt failed")
		}
		done <- outcome{err: lastErr}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-c.timeout(processingTimeout):
		return gateway.Result{}, ErrProcessingTimeout
	}
}

// ConfirmIntent sends the possibly edited intent to the executor and
// branches on the intent type. Confirming a session that already
// reached a terminal state is a no-op.
func (c *Controller) ConfirmIntent(ctx context.Context, edited intent.Intent) error {
	c.mu.Lock()

	if c.state != StateReview {
		c.mu.Unlock()
		return nil
	}
	edited.Normalize()
	if err := edited.Validate(); err != nil {
		c.markSession(model.ExecutionError, errorResult(err))
		c.fail(err.Error())
		c.mu.Unlock()
		return err
	}
	c.intent = edited
	c.setState(StateProcessing, "")
	gen := c.gen
	c.mu.Unlock()

	msg, err := c.executor.Execute(ctx, c.userID, edited)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.state != StateProcessing {
		return nil
	}
	if err != nil {
		c.markSession(model.ExecutionError, errorResult(err))
		c.fail(userMessage(err))
		return err
	}

	c.markSession(model.ExecutionSuccess, messageResult(msg))
	c.resultMsg = msg
	switch edited.Type {
	case intent.TypeQuery:
		c.setState(StateQueryResult, msg)
	case intent.TypeAct:
		c.setState(StateActResult, msg)
	default:
		c.setState(StateIdle, "")
	}
	return nil
}

// Cancel aborts the session from any non-terminal point. A step still
// in flight sees the bumped generation when it resumes and discards
// its result, so a slow response cannot resurrect the session.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateIdle {
		return
	}
	c.gen++
	if c.state == StateRecording {
		c.recorder.Cancel()
	}
	c.markSession(model.ExecutionCancelled, "")
	c.setState(StateIdle, "")
}

// Dismiss returns to idle from a result or error display.
func (c *Controller) Dismiss() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateQueryResult, StateActResult, StateError:
		c.setState(StateIdle, "")
	}
}

// SessionID returns the persisted session row id, if one exists yet.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.ID
}

func (c *Controller) setState(s State, detail string) {
	c.state = s
	if s != StateError {
		c.errMsg = ""
	}
	if s == StateIdle {
		c.resultMsg = ""
		c.intent = intent.Intent{}
	}
	if c.events != nil {
		c.events.Publish(c.userID, hub.Event{
			Type:      "voice_state",
			SessionID: c.session.ID,
			State:     string(s),
			Detail:    detail,
		})
	}
	if s == StateIdle {
		c.session = model.VoiceSession{}
	}
}

func (c *Controller) fail(msg string) {
	c.gen++
	c.errMsg = msg
	c.setState(StateError, msg)
}

// markSession stamps the terminal execution status on the backing
// row. The store only honors the first terminal transition, so a
// repeat call is harmless.
func (c *Controller) markSession(status, result string) {
	if c.session.ID == "" {
		return
	}
	parsed, _ := json.Marshal(c.intent)
	if _, err := c.store.MarkSessionExecuted(c.userID, c.session.ID, status, result, string(parsed)); err != nil {
		c.logger.Error().Err(err).Str("session", c.session.ID).Msg("failed to mark session")
	}
}

func errorResult(err error) string {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(b)
}

func messageResult(msg string) string {
	b, _ := json.Marshal(map[string]string{"message": msg})
	return string(b)
}

// userMessage renders an error the way it should be shown to the
// user.
func userMessage(err error) string {
	switch {
	case errors.Is(err, ErrProcessingTimeout):
		return "Processing timed out. Please try again."
	case isTransient(err):
		return "Network problem while processing. Please try again."
	default:
		var pe *gateway.ParseError
		if errors.As(err, &pe) {
			return "Could not understand the recording. Please try again."
		}
		return fmt.Sprintf("Something went wrong: %v", err)
	}
}

func isTransient(err error) bool {
	var te *gateway.TransientError
	return errors.As(err, &te)
}
