// Package client calls the sheetboard HTTP API.
package client

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

	"sheetboard/internal/apperr"
	"sheetboard/internal/models"
	"sheetboard/internal/tasks"
)

// Client talks to one server. A zero SessionToken means no session yet.
type Client struct {
	baseURL      string
	http         *http.Client
	sessionToken string
	accessToken  string
}

// New returns a client for the server at baseURL. A nil httpClient selects a
// client with a 30 second timeout.
func New(baseURL, sessionToken, accessToken string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         httpClient,
		sessionToken: sessionToken,
		accessToken:  accessToken,
	}
}

// SessionToken returns the token sent with authenticated requests.
func (c *Client) SessionToken() string { return c.sessionToken }

// LoginResult is the answer of a successful login.
type LoginResult struct {
	Token string           `json:"token"`
	User  models.Principal `json:"user"`
}

// Login exchanges credentials for a session token and keeps it for later
// calls.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var out LoginResult
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/login", nil, body, &out); err != nil {
		return LoginResult{}, err
	}
	c.sessionToken = out.Token
	return out, nil
}

// Signup registers a new account.
func (c *Client) Signup(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}
	return c.do(ctx, http.MethodPost, "/api/signup", nil, body, nil)
}

// ListProjects returns the projects visible to the session user.
func (c *Client) ListProjects(ctx context.Context) ([]models.Project, error) {
	var out struct {
		Projects []models.Project `json:"projects"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/projects", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Projects, nil
}

// ListTasks returns the tasks and columns of a project.
func (c *Client) ListTasks(ctx context.Context, projectID string) (tasks.Board, error) {
	var out tasks.Board
	q := url.Values{"accessToken": {c.accessToken}}
	if err := c.do(ctx, http.MethodGet, projectPath(projectID), q, nil, &out); err != nil {
		return tasks.Board{}, err
	}
	return out, nil
}

// UpdateTask sends a partial update and returns the task as stored.
func (c *Client) UpdateTask(ctx context.Context, projectID, taskID string, changes models.TaskChanges) (models.Task, error) {
	body, err := updateBody(taskID, c.accessToken, changes)
	if err != nil {
		return models.Task{}, err
	}
	var out struct {
		Task models.Task `json:"task"`
	}
	if err := c.do(ctx, http.MethodPut, projectPath(projectID), nil, body, &out); err != nil {
		return models.Task{}, err
	}
	return out.Task, nil
}

// Project binds the client to one project so it can back a board.
func (c *Client) Project(projectID string) *ProjectUpdater {
	return &ProjectUpdater{client: c, projectID: projectID}
}

// ProjectUpdater saves task edits of one project.
type ProjectUpdater struct {
	client    *Client
	projectID string
}

// UpdateTask implements board.Updater.
func (p *ProjectUpdater) UpdateTask(ctx context.Context, taskID string, changes models.TaskChanges) (models.Task, error) {
	return p.client.UpdateTask(ctx, p.projectID, taskID, changes)
}

func projectPath(projectID string) string {
	return "/api/projects/" + url.PathEscape(projectID) + "/tasks"
}

// updateBody flattens the changed fields next to taskId and accessToken.
func updateBody(taskID, accessToken string, changes models.TaskChanges) (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(changes)
	if err != nil {
		return nil, fmt.Errorf("encode changes: %w", err)
	}
	body := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("encode changes: %w", err)
	}
	body["taskId"], _ = json.Marshal(taskID)
	body["accessToken"], _ = json.Marshal(accessToken)
	return body, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.sessionToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.sessionToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &e)
		return apperr.FromStatus(resp.StatusCode, e.Error)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
