package backend

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

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"quiz-commit-service/internal/domain"
)

const submitPath = "/quize/submit"

// Config configures a Client.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	MaxRetries  uint64
	InitialWait time.Duration
	MaxWait     time.Duration
}

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend status %d: %s", e.Code, e.Body)
}

// Client posts plaintext answers to the quiz backend.
type Client struct {
	cfg  Config
	http *http.Client
	log  logrus.FieldLogger
}

func NewClient(cfg Config, log logrus.FieldLogger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.InitialWait <= 0 {
		cfg.InitialWait = 200 * time.Millisecond
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 5 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log.WithField("component", "backend"),
	}
}

type submitRequest struct {
	QuizUUID string                   `json:"quiz_uuid"`
	Answers  []domain.CanonicalAnswer `json:"answers"`
}

// SubmitAnswers posts the submission's payload. Transport errors and 5xx/429
// answers are retried with exponential backoff; other 4xx answers are final.
// Every attempt carries the submission's idempotency key.
func (c *Client) SubmitAnswers(ctx context.Context, sub domain.Submission) error {
	body, err := json.Marshal(submitRequest{QuizUUID: sub.Payload.QuizID, Answers: sub.Payload.Answers})
	if err != nil {
		return fmt.Errorf("encode submit request: %w", err)
	}
	url := strings.TrimRight(c.cfg.BaseURL, "/") + submitPath
	log := c.log.WithFields(logrus.Fields{
		"quiz_id":    sub.Payload.QuizID,
		"commitment": sub.CommitmentHex(),
	})

	attempt := 0
	op := func() error {
		attempt++
		err := c.post(ctx, url, body, sub)
		if err == nil {
			return nil
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !retryable(statusErr.Code) {
			return backoff.Permanent(err)
		}
		log.WithError(err).WithField("attempt", attempt).Debug("backend submit attempt failed")
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialWait
	b.MaxInterval = c.cfg.MaxWait
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.cfg.MaxRetries), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		return err
	}
	log.WithField("attempts", attempt).Debug("backend accepted answers")
	return nil
}

func (c *Client) post(ctx context.Context, url string, body []byte, sub domain.Submission) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", sub.IdempotencyKey)
	req.Header.Set("X-Quiz-Commitment", sub.CommitmentHex())

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
}

func retryable(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}
