package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Conductor/internal/claims"
	"github.com/shaiso/Conductor/internal/domain"
)

// Protocol — шесть сообщений, которыми воркер общается с сервером.
//
// Реализации: claims.Queue (in-process, dev-режим) и Client (HTTP,
// отдельный процесс воркера).
type Protocol interface {
	Claim(ctx context.Context, workerID string) (*claims.ClaimedRun, error)
	StartRun(ctx context.Context, runID uuid.UUID) error
	StartStep(ctx context.Context, runID, jobID uuid.UUID) (*claims.StartedStep, error)
	AppendLog(ctx context.Context, runID uuid.UUID, stepID *uuid.UUID, lines []string) error
	CompleteStep(ctx context.Context, runID, stepID uuid.UUID, reason domain.ExitReason, output map[string]any) ([]claims.ReadyJob, error)
	CompleteRun(ctx context.Context, runID uuid.UUID, finalState domain.RunState, errMsg string) error
}

// Client — HTTP-клиент протокола воркера (/worker/v1).
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент протокола воркера.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Claim запрашивает старейший available run. claims.ErrNoRuns, если
// очередь пуста.
func (c *Client) Claim(ctx context.Context, workerID string) (*claims.ClaimedRun, error) {
	body := map[string]string{"worker_id": workerID}
	resp, err := c.do(ctx, "/worker/v1/claim", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, claims.ErrNoRuns
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var claimed claims.ClaimedRun
	if err := decodeData(resp.Body, &claimed); err != nil {
		return nil, err
	}
	return &claimed, nil
}

// StartRun отправляет start_run.
func (c *Client) StartRun(ctx context.Context, runID uuid.UUID) error {
	return c.send(ctx, fmt.Sprintf("/worker/v1/runs/%s/start", runID), struct{}{}, nil)
}

// StartStep отправляет start_step.
func (c *Client) StartStep(ctx context.Context, runID, jobID uuid.UUID) (*claims.StartedStep, error) {
	body := map[string]uuid.UUID{"job_id": jobID}
	var started claims.StartedStep
	if err := c.send(ctx, fmt.Sprintf("/worker/v1/runs/%s/steps", runID), body, &started); err != nil {
		return nil, err
	}
	return &started, nil
}

// AppendLog отправляет append_log.
func (c *Client) AppendLog(ctx context.Context, runID uuid.UUID, stepID *uuid.UUID, lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	body := map[string]any{"lines": lines}
	if stepID != nil {
		body["step_id"] = *stepID
	}
	return c.send(ctx, fmt.Sprintf("/worker/v1/runs/%s/log", runID), body, nil)
}

// CompleteStep отправляет complete_step и возвращает новые ready jobs.
func (c *Client) CompleteStep(ctx context.Context, runID, stepID uuid.UUID, reason domain.ExitReason, output map[string]any) ([]claims.ReadyJob, error) {
	body := map[string]any{"exit_reason": reason}
	if output != nil {
		body["output"] = output
	}
	var result struct {
		Ready []claims.ReadyJob `json:"ready"`
	}
	path := fmt.Sprintf("/worker/v1/runs/%s/steps/%s/complete", runID, stepID)
	if err := c.send(ctx, path, body, &result); err != nil {
		return nil, err
	}
	return result.Ready, nil
}

// CompleteRun отправляет complete_run.
func (c *Client) CompleteRun(ctx context.Context, runID uuid.UUID, finalState domain.RunState, errMsg string) error {
	body := map[string]any{"final_state": finalState}
	if errMsg != "" {
		body["error_message"] = errMsg
	}
	return c.send(ctx, fmt.Sprintf("/worker/v1/runs/%s/complete", runID), body, nil)
}

// --- HTTP helpers ---

func (c *Client) send(ctx context.Context, path string, body, result any) error {
	resp, err := c.do(ctx, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNoContent || result == nil {
		return nil
	}
	return decodeData(resp.Body, result)
}

func (c *Client) do(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.httpClient.Do(req)
}

func decodeData(r io.Reader, result any) error {
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(r).Decode(&wrapper); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return json.Unmarshal(wrapper.Data, result)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("%w: HTTP %d", ErrServerRejected, resp.StatusCode)
	}
	return fmt.Errorf("%w: %s: %s", ErrServerRejected, er.Error.Code, er.Error.Message)
}
