// Package gateway wraps the speech-to-text engine and the classifier
// behind one Process call: audio in, transcript plus intent out.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"voxbridge/internal/intent"
)

// TransientError marks failures worth retrying: network trouble,
// timeouts, or an upstream 5xx.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// ParseError marks malformed classifier output. Retrying would replay
// the same model response, so it surfaces immediately.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

type Result struct {
	Transcript string
	Intent     intent.Intent
}

type Config struct {
	DeepgramAPIKey string
	GeminiAPIKey   string

	// Overridable for tests.
	DeepgramBaseURL string
	GeminiBaseURL   string
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger zerolog.Logger
}

func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.DeepgramBaseURL == "" {
		cfg.DeepgramBaseURL = "https://api.deepgram.com"
	}
	if cfg.GeminiBaseURL == "" {
		cfg.GeminiBaseURL = "https://generativelanguage.googleapis.com"
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: 25 * time.Second},
		logger: logger.With().Str("component", "gateway").Logger(),
	}
}

// Process transcribes one utterance and classifies it into an intent.
func (c *Client) Process(ctx context.Context, audio []byte) (Result, error) {
	if c.cfg.DeepgramAPIKey == "" {
		return Result{}, errors.New("speech-to-text API key not configured")
	}
	if c.cfg.GeminiAPIKey == "" {
		return Result{}, errors.New("classifier API key not configured")
	}

	transcript, err := c.transcribe(ctx, audio)
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(transcript) == "" {
		return Result{}, errors.New("could not transcribe audio")
	}

	in, err := c.classify(ctx, transcript)
	if err != nil {
		return Result{}, err
	}

	c.logger.Debug().
		Str("type", string(in.Type)).
		Str("category", in.Category).
		Float64("confidence", in.Confidence).
		Msg("classified utterance")

	return Result{Transcript: transcript, Intent: in}, nil
}

func (c *Client) transcribe(ctx context.Context, audio []byte) (string, error) {
	url := c.cfg.DeepgramBaseURL + "/v1/listen?model=nova-2&smart_format=true"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(audio))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Token "+c.cfg.DeepgramAPIKey)
	req.Header.Set("Content-Type", "audio/m4a")

	body, err := c.do(req, "speech-to-text")
	if err != nil {
		return "", err
	}

	var parsed struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("speech-to-text: decode response: %w", err)
	}
	if len(parsed.Results.Channels) == 0 || len(parsed.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return parsed.Results.Channels[0].Alternatives[0].Transcript, nil
}

func (c *Client) classify(ctx context.Context, transcript string) (intent.Intent, error) {
	url := c.cfg.GeminiBaseURL + "/v1beta/models/gemini-2.0-flash:generateContent?key=" + c.cfg.GeminiAPIKey

	payload := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]any{{"text": classificationPrompt(transcript)}}},
		},
		"generationConfig": map[string]any{
			"temperature":      0.1,
			"responseMimeType": "application/json",
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return intent.Intent{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return intent.Intent{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req, "classifier")
	if err != nil {
		return intent.Intent{}, err
	}

	var parsed struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return intent.Intent{}, &ParseError{Err: fmt.Errorf("classifier: decode envelope: %w", err)}
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return intent.Intent{}, &ParseError{Err: errors.New("classifier returned no candidates")}
	}

	var in intent.Intent
	if err := json.Unmarshal([]byte(parsed.Candidates[0].Content.Parts[0].Text), &in); err != nil {
		return intent.Intent{}, &ParseError{Err: fmt.Errorf("classifier returned malformed intent: %w", err)}
	}
	in.Normalize()
	return in, nil
}

// do executes a request, classifying failures as transient or permanent.
func (c *Client) do(req *http.Request, what string) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		// Transport-level failures (DNS, refused connections, timeouts)
		// are all retryable.
		return nil, &TransientError{Err: fmt.Errorf("%s: %w", what, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("%s: %w", what, err)}
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusRequestTimeout {
		return nil, &TransientError{Err: fmt.Errorf("%s error (%d): %s", what, resp.StatusCode, strings.TrimSpace(string(body)))}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s error (%d): %s", what, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
