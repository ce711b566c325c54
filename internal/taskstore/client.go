package taskstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Client talks to the task service's REST API:
// GET /api/{user_id}/tasks/{task_id} and POST /api/{user_id}/tasks.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *Client) taskURL(userID string, taskID int64) string {
	url := c.BaseURL + "/api/" + userID + "/tasks"
	if taskID > 0 {
		url += "/" + strconv.FormatInt(taskID, 10)
	}
	return url
}

func (c *Client) GetTask(ctx context.Context, taskID int64, userID string) (Task, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.taskURL(userID, taskID), nil)
	if err != nil {
		return Task{}, err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Task{}, fmt.Errorf("get task %d: %w", taskID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var task Task
		if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
			return Task{}, fmt.Errorf("decode task %d: %w", taskID, err)
		}
		return task, nil
	case http.StatusNotFound:
		return Task{}, ErrTaskNotFound
	default:
		return Task{}, fmt.Errorf("get task %d: unexpected status %d", taskID, resp.StatusCode)
	}
}

func (c *Client) CreateTask(ctx context.Context, userID string, params CreateParams) (Task, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return Task{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.taskURL(userID, 0), bytes.NewReader(body))
	if err != nil {
		return Task{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Task{}, fmt.Errorf("create task: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return Task{}, fmt.Errorf("create task: unexpected status %d", resp.StatusCode)
	}

	var task Task
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return Task{}, fmt.Errorf("decode created task: %w", err)
	}
	return task, nil
}
