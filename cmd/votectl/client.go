package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	registerhttp "istruecaller/contexts/trust-safety/call-vote-register/transport/http"
)

// client talks to the register's HTTP API.
type client struct {
	base string
	http *http.Client
}

func newClient(addr string, timeout time.Duration) *client {
	base := strings.TrimRight(strings.TrimSpace(addr), "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &client{base: base, http: &http.Client{Timeout: timeout}}
}

type apiError struct {
	Status int
	Body   registerhttp.ErrorResponse
}

func (e *apiError) Error() string {
	if e.Body.Code == "" {
		return fmt.Sprintf("register returned HTTP %d", e.Status)
	}
	return fmt.Sprintf("register returned HTTP %d: %s: %s", e.Status, e.Body.Code, e.Body.Message)
}

func (c *client) AddVote(ctx context.Context, callID string, legitimate, fraudulent bool) (registerhttp.AddVoteResponse, error) {
	var out registerhttp.AddVoteResponse
	err := c.do(ctx, http.MethodPost, callPath(callID, "votes"), registerhttp.AddVoteRequest{
		Legitimate: legitimate,
		Fraudulent: fraudulent,
	}, &out)
	return out, err
}

func (c *client) Verdict(ctx context.Context, callID string) (registerhttp.VerdictResponse, error) {
	var out registerhttp.VerdictResponse
	err := c.do(ctx, http.MethodGet, callPath(callID, "verdict"), nil, &out)
	return out, err
}

func (c *client) Votes(ctx context.Context, callID string) (registerhttp.VotesResponse, error) {
	var out registerhttp.VotesResponse
	err := c.do(ctx, http.MethodGet, callPath(callID, "votes"), nil, &out)
	return out, err
}

func (c *client) CallIDs(ctx context.Context) (registerhttp.CallIDsResponse, error) {
	var out registerhttp.CallIDsResponse
	err := c.do(ctx, http.MethodGet, "/v1/calls", nil, &out)
	return out, err
}

func (c *client) ClearCall(ctx context.Context, callID string) (registerhttp.ClearResponse, error) {
	var out registerhttp.ClearResponse
	err := c.do(ctx, http.MethodDelete, callPath(callID, "votes"), nil, &out)
	return out, err
}

func (c *client) ClearAll(ctx context.Context) (registerhttp.ClearResponse, error) {
	var out registerhttp.ClearResponse
	err := c.do(ctx, http.MethodDelete, "/v1/calls", nil, &out)
	return out, err
}

// watchURL is the websocket endpoint streaming verdicts for callID.
func (c *client) watchURL(callID string) string {
	base := c.base
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws/calls/" + url.PathEscape(callID)
}

func (c *client) do(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &apiError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr.Body)
		return apiErr
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func callPath(callID string, leaf string) string {
	return "/v1/calls/" + url.PathEscape(callID) + "/" + leaf
}
