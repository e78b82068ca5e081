// Package submit posts answers to a grader and interprets its verdict.
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pavelanni/quizsolver/internal/model"
)

// ErrSubmission wraps transport failures and unreadable grader replies.
var ErrSubmission = errors.New("submission failed")

const maxResponseBytes = 1 << 20

// Payload is the JSON body sent to the grader.
type Payload struct {
	Email  string       `json:"email"`
	Secret string       `json:"secret"`
	URL    string       `json:"url"`
	Answer model.Answer `json:"answer"`
}

// Client submits answers over HTTP.
type Client struct {
	http *http.Client
}

// New creates a Client. A nil http client selects http.DefaultClient.
func New(client *http.Client) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{http: client}
}

// Submit posts p to submitURL once. Any JSON object reply is a result, whatever the
// status code; the grader's body is authoritative.
func (c *Client) Submit(ctx context.Context, submitURL string, p Payload) (*model.GradingResult, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("%w: encode payload: %v", ErrSubmission, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, submitURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSubmission, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSubmission, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrSubmission, err)
	}

	result, err := ParseResult(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: status %d: %v", ErrSubmission, resp.StatusCode, err)
	}
	result.StatusCode = resp.StatusCode
	return result, nil
}

// ParseResult reads a grader reply. Only a boolean "correct" and a non-empty string
// "url" are taken; other shapes leave those fields unset.
func ParseResult(raw []byte) (*model.GradingResult, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("response is not a JSON object: %q", preview(raw))
	}

	res := &model.GradingResult{Raw: json.RawMessage(bytes.TrimSpace(raw))}
	if v, ok := fields["correct"]; ok {
		// null unmarshals into a bool without error, so match the literals.
		switch string(bytes.TrimSpace(v)) {
		case "true":
			res.Correct = boolPtr(true)
		case "false":
			res.Correct = boolPtr(false)
		}
	}
	var next string
	if v, ok := fields["url"]; ok && json.Unmarshal(v, &next) == nil {
		res.NextURL = strings.TrimSpace(next)
	}
	var reason string
	if v, ok := fields["reason"]; ok && json.Unmarshal(v, &reason) == nil {
		res.Reason = reason
	}
	return res, nil
}

func boolPtr(b bool) *bool { return &b }

func preview(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	return s
}
