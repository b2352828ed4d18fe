package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// WorkOrderResponse — work order из API.
type WorkOrderResponse struct {
	ID         string `json:"id"`
	WorkflowID string `json:"workflow_id"`
	SnapshotID string `json:"snapshot_id"`
	TriggerID  string `json:"trigger_id"`
	DataclipID string `json:"dataclip_id"`
	State      string `json:"state"`
	InsertedAt string `json:"inserted_at"`
	UpdatedAt  string `json:"updated_at"`
}

// WorkOrderDetail — work order вместе с его run.
type WorkOrderDetail struct {
	WorkOrderResponse
	Run *RunResponse `json:"run,omitempty"`
}

// RunResponse — run из API.
type RunResponse struct {
	ID           string `json:"id"`
	WorkOrderID  string `json:"work_order_id"`
	SnapshotID   string `json:"snapshot_id"`
	State        string `json:"state"`
	WorkerID     string `json:"worker_id,omitempty"`
	StartedAt    string `json:"started_at,omitempty"`
	FinishedAt   string `json:"finished_at,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	InsertedAt   string `json:"inserted_at"`
}

// StepResponse — step из API.
type StepResponse struct {
	ID               string `json:"id"`
	JobID            string `json:"job_id"`
	InputDataclipID  string `json:"input_dataclip_id"`
	OutputDataclipID string `json:"output_dataclip_id,omitempty"`
	ExitReason       string `json:"exit_reason,omitempty"`
	StartedAt        string `json:"started_at"`
	FinishedAt       string `json:"finished_at,omitempty"`
}

// LogLineResponse — строка лога из API.
type LogLineResponse struct {
	StepID    string `json:"step_id,omitempty"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// SubmitResponse — ответ на принятое webhook событие.
type SubmitResponse struct {
	WorkOrderID string `json:"work_order_id"`
	RunID       string `json:"run_id"`
}

// ListWorkOrdersOpts — параметры фильтрации work orders.
type ListWorkOrdersOpts struct {
	WorkflowID string
	State      string
	Limit      int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Conductor API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Work orders ---

// ListWorkOrders возвращает work orders с фильтрацией.
func (c *Client) ListWorkOrders(opts ListWorkOrdersOpts) ([]WorkOrderResponse, error) {
	params := url.Values{}
	if opts.WorkflowID != "" {
		params.Set("workflow_id", opts.WorkflowID)
	}
	if opts.State != "" {
		params.Set("state", opts.State)
	}
	if opts.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}

	var orders []WorkOrderResponse
	err := c.list("/api/v1/work-orders", params, &orders)
	return orders, err
}

// GetWorkOrder возвращает work order вместе с его run.
func (c *Client) GetWorkOrder(id string) (*WorkOrderDetail, error) {
	var detail WorkOrderDetail
	err := c.get("/api/v1/work-orders/"+id, &detail)
	return &detail, err
}

// --- Runs ---

// GetRun возвращает run по ID.
func (c *Client) GetRun(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.get("/api/v1/runs/"+id, &run)
	return &run, err
}

// ListRunSteps возвращает steps для run.
func (c *Client) ListRunSteps(runID string) ([]StepResponse, error) {
	var steps []StepResponse
	err := c.list("/api/v1/runs/"+runID+"/steps", nil, &steps)
	return steps, err
}

// GetRunLog возвращает строки лога run.
func (c *Client) GetRunLog(runID string) ([]LogLineResponse, error) {
	var lines []LogLineResponse
	err := c.list("/api/v1/runs/"+runID+"/log", nil, &lines)
	return lines, err
}

// CancelRun отменяет run, который ещё не начал исполняться.
func (c *Client) CancelRun(id string) error {
	return c.post("/api/v1/runs/"+id+"/cancel", struct{}{}, nil)
}

// --- Submit ---

// Submit отправляет событие webhook-триггера.
func (c *Client) Submit(triggerID string, body map[string]any) (*SubmitResponse, error) {
	var result SubmitResponse
	err := c.post("/i/"+triggerID, body, &result)
	return &result, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
