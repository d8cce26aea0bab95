// Package notify posts experiment summaries to an HTTP endpoint.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"cvrpbench/internal/experiment"
)

const EventPlanFinished = "plan.finished"

// OutcomeReport is the wire form of one experiment.Outcome.
type OutcomeReport struct {
	Instance string  `json:"instance"`
	Solver   string  `json:"solver"`
	Runs     int     `json:"runs"`
	Failures int     `json:"failures"`
	Best     float64 `json:"best"`
	Worst    float64 `json:"worst"`
	Average  float64 `json:"average"`
	Std      float64 `json:"std"`
	Genome   string  `json:"genome,omitempty"`
}

type payload struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	TS   string          `json:"ts"`
	Data []OutcomeReport `json:"data"`
}

// Webhook delivers JSON events, signed with HMAC-SHA256 in X-Signature when
// Secret is set. Failed deliveries are retried with exponential backoff until
// MaxAttempts (at least one) is spent.
type Webhook struct {
	URL         string
	Secret      string
	HTTP        *http.Client
	MaxAttempts int
	// Backoff overrides the delay before retry n (0-based).
	Backoff func(attempt int) time.Duration
	Log     *logrus.Entry
}

func NewWebhook(url, secret string) *Webhook {
	return &Webhook{
		URL:         url,
		Secret:      secret,
		HTTP:        &http.Client{Timeout: 5 * time.Second},
		MaxAttempts: 5,
		Backoff:     nextBackoff,
		Log:         logrus.WithField("component", "webhook"),
	}
}

func Reports(outcomes []experiment.Outcome) []OutcomeReport {
	out := make([]OutcomeReport, 0, len(outcomes))
	for _, o := range outcomes {
		r := OutcomeReport{
			Instance: o.Instance,
			Solver:   o.Solver,
			Runs:     o.Runs,
			Failures: o.Failures,
			Best:     o.Summary.Best,
			Worst:    o.Summary.Worst,
			Average:  o.Summary.Average,
			Std:      o.Summary.Std,
		}
		if o.Best.Solution != nil {
			r.Genome = o.Best.Solution.String()
		}
		out = append(out, r)
	}
	return out
}

// PlanFinished posts the outcomes of a finished plan.
func (w *Webhook) PlanFinished(ctx context.Context, outcomes []experiment.Outcome) error {
	body, err := json.Marshal(payload{
		ID:   "evt_" + uuid.NewString(),
		Type: EventPlanFinished,
		TS:   time.Now().UTC().Format(time.RFC3339),
		Data: Reports(outcomes),
	})
	if err != nil {
		return err
	}
	return w.deliver(ctx, EventPlanFinished, body)
}

func (w *Webhook) deliver(ctx context.Context, eventType string, body []byte) error {
	attempts := max(w.MaxAttempts, 1)
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.Backoff(attempt - 1)):
			}
		}
		start := time.Now()
		code, err := w.post(ctx, eventType, body)
		if err == nil && code >= 200 && code < 300 {
			w.Log.WithFields(logrus.Fields{"code": code, "latency": time.Since(start), "attempt": attempt + 1}).Debug("delivered")
			return nil
		}
		if err == nil {
			err = fmt.Errorf("webhook: status %d", code)
		}
		lastErr = err
		w.Log.WithError(err).WithField("attempt", attempt+1).Warn("delivery failed")
	}
	return fmt.Errorf("webhook: giving up after %d attempts: %w", attempts, lastErr)
}

func (w *Webhook) post(ctx context.Context, eventType string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", eventType)
	if w.Secret != "" {
		req.Header.Set("X-Signature", sign(w.Secret, body))
	}
	resp, err := w.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Minute {
		base = time.Minute
	}
	return base
}
