package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"sheetboard/internal/auth"
	"sheetboard/internal/models"
	"sheetboard/internal/oauth"
	"sheetboard/internal/projects"
	"sheetboard/internal/rowcodec"
	"sheetboard/internal/storage"
	"sheetboard/internal/storage/memtable"
	"sheetboard/internal/tasks"
	"sheetboard/internal/users"
)

var (
	registryID = "registry"
	taskTable  = storage.TableRef{SpreadsheetID: "sheet-1", Sheet: tasks.DefaultSheet}
	alice      = models.Principal{Email: "alice@x.com", Role: models.RoleAdmin}
	bob        = models.Principal{Email: "bob@x.com", Role: models.RoleMember}
)

type fixture struct {
	srv      *Server
	store    *memtable.Store
	sessions *auth.Sessions
	project  models.Project
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memtable.New()
	store.Seed(taskTable, [][]string{
		rowcodec.TaskHeaders,
		{"T1", "Plan", "Scope the work", "bob@x.com", "To Do", "2024-06-01"},
		{"T2", "Build", "", "", "In Progress", "", "", "40"},
	})

	sessions, err := auth.NewSessions("test-secret", time.Hour)
	require.NoError(t, err)

	registry := projects.NewRegistry(store, storage.TableRef{SpreadsheetID: registryID, Sheet: "Projects"}, nil)
	project, err := registry.Create(context.Background(), projects.NewProject{
		ProjectName:   "Launch",
		LinkedSheetID: taskTable.SpreadsheetID,
		CreatedBy:     alice.Email,
	})
	require.NoError(t, err)

	backends := storage.Static{Backend: store}
	srv := New(Deps{
		Users:    users.NewDirectory(store, storage.TableRef{SpreadsheetID: registryID, Sheet: "Users"}, []string{alice.Email}, nil),
		Projects: registry,
		Tasks:    tasks.NewRepository(backends, "", nil),
		Sheets:   backends,
		Sessions: sessions,
		OAuth:    oauth.NewGoogle("", "", ""),
	}, nil, "")

	return &fixture{srv: srv, store: store, sessions: sessions, project: project}
}

func (f *fixture) do(t *testing.T, as *models.Principal, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		token, err := f.sessions.Issue(*as)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.srv.Engine().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (f *fixture) tasksPath(projectID string) string {
	return "/api/projects/" + projectID + "/tasks"
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, nil, http.MethodGet, "/api/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSignupAndLogin(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, nil, http.MethodPost, "/api/signup", map[string]string{"email": "carol@x.com", "password": "pw123456"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	rec = f.do(t, nil, http.MethodPost, "/api/signup", map[string]string{"email": "carol@x.com", "password": "other"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User already exists.", decode(t, rec)["error"])

	rec = f.do(t, nil, http.MethodPost, "/api/login", map[string]string{"email": "carol@x.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, nil, http.MethodPost, "/api/login", map[string]string{"email": "carol@x.com", "password": "pw123456"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, map[string]any{"email": "carol@x.com", "role": "Member"}, body["user"])

	cookie := findCookie(rec, auth.CookieName)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.False(t, cookie.Secure)

	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	f.srv.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"projects":[]}`, rec.Body.String())
}

func TestSecureCookiesBehindProxy(t *testing.T) {
	f := newFixture(t)
	f.srv.deps.SecureCookies = true

	rec := f.do(t, nil, http.MethodPost, "/api/signup", map[string]string{"email": "carol@x.com", "password": "pw123456"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, nil, http.MethodPost, "/api/login", map[string]string{"email": "carol@x.com", "password": "pw123456"})
	require.Equal(t, http.StatusOK, rec.Code)

	cookie := findCookie(rec, auth.CookieName)
	require.NotNil(t, cookie)
	assert.True(t, cookie.Secure)
}

func TestRoutesRequireSession(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/api/projects", f.tasksPath(f.project.ProjectID) + "?accessToken=tok", "/api/google-oauth/auth"} {
		rec := f.do(t, nil, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestListProjectsFiltersByCreator(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, &alice, http.MethodGet, "/api/projects", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode(t, rec)["projects"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "Launch", list[0].(map[string]any)["projectName"])

	rec = f.do(t, &bob, http.MethodGet, "/api/projects", nil)
	assert.JSONEq(t, `{"projects":[]}`, rec.Body.String())
}

func TestCreateProject(t *testing.T) {
	f := newFixture(t)
	req := map[string]string{"projectName": "Docs", "linkedSheetId": "sheet-2"}

	rec := f.do(t, &bob, http.MethodPost, "/api/projects", req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Only admins can create projects", decode(t, rec)["error"])

	rec = f.do(t, &alice, http.MethodPost, "/api/projects", map[string]string{"projectName": "Docs"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, &alice, http.MethodPost, "/api/projects", req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	project := body["project"].(map[string]any)
	assert.Equal(t, "alice@x.com", project["createdBy"])
	assert.NotEmpty(t, project["projectId"])
}

func TestListTasks(t *testing.T) {
	f := newFixture(t)
	path := f.tasksPath(f.project.ProjectID)

	rec := f.do(t, &alice, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, &bob, http.MethodGet, path+"?accessToken=tok", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, &alice, http.MethodGet, f.tasksPath("missing")+"?accessToken=tok", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Project not found", decode(t, rec)["error"])

	rec = f.do(t, &alice, http.MethodGet, path+"?accessToken=tok", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var board tasks.Board
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &board))
	assert.Equal(t, []string{"To Do", "In Progress"}, board.Columns)
	require.Len(t, board.Tasks, 2)
	assert.Equal(t, 40, board.Tasks[1].Progress)
}

func TestListTasksEmptyTableUsesDefaultColumns(t *testing.T) {
	f := newFixture(t)
	f.store.Seed(taskTable, [][]string{rowcodec.TaskHeaders})

	rec := f.do(t, &alice, http.MethodGet, f.tasksPath(f.project.ProjectID)+"?accessToken=tok", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tasks":[],"columns":["To Do","In Progress","Done"]}`, rec.Body.String())
}

func TestUpdateTaskKeepsOtherFields(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, &alice, http.MethodPut, f.tasksPath(f.project.ProjectID), map[string]any{
		"taskId": "T1", "accessToken": "tok", "newStatus": "Done",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		Success bool        `json:"success"`
		Task    models.Task `json:"task"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.Success)
	assert.Equal(t, "Done", out.Task.Status)
	assert.Equal(t, "Scope the work", out.Task.Description)
	assert.Equal(t, "2024-06-01", out.Task.DueDate)
	assert.Equal(t, 2, out.Task.RowIndex)
}

func TestUpdateTaskRejections(t *testing.T) {
	f := newFixture(t)
	path := f.tasksPath(f.project.ProjectID)

	tests := []struct {
		name   string
		as     models.Principal
		path   string
		body   map[string]any
		status int
		msg    string
	}{
		{"missing task id", alice, path, map[string]any{"accessToken": "tok", "newStatus": "Done"}, http.StatusBadRequest, "Task ID is required"},
		{"missing token", alice, path, map[string]any{"taskId": "T1", "newStatus": "Done"}, http.StatusUnauthorized, "Google OAuth token is required"},
		{"no fields", alice, path, map[string]any{"taskId": "T1", "accessToken": "tok"}, http.StatusBadRequest, "At least one field to update must be provided"},
		{"progress too high", alice, path, map[string]any{"taskId": "T1", "accessToken": "tok", "progress": 150}, http.StatusBadRequest, "Progress must be a number between 0 and 100"},
		{"fractional progress", alice, path, map[string]any{"taskId": "T1", "accessToken": "tok", "progress": 12.5}, http.StatusBadRequest, "Progress must be a number between 0 and 100"},
		{"bad date", alice, path, map[string]any{"taskId": "T1", "accessToken": "tok", "dueDate": "06/01/2024"}, http.StatusBadRequest, "Due date must be in YYYY-MM-DD format"},
		{"unknown project", alice, f.tasksPath("missing"), map[string]any{"taskId": "T1", "accessToken": "tok", "newStatus": "Done"}, http.StatusNotFound, "Project not found"},
		{"not the owner", bob, path, map[string]any{"taskId": "T1", "accessToken": "tok", "newStatus": "Done"}, http.StatusForbidden, "Forbidden"},
		{"unknown task", alice, path, map[string]any{"taskId": "T9", "accessToken": "tok", "newStatus": "Done"}, http.StatusNotFound, "Task not found"},
	}

	before := f.store.Rows(taskTable)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, &tt.as, http.MethodPut, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.msg, decode(t, rec)["error"])
		})
	}
	assert.Equal(t, before, f.store.Rows(taskTable))
}

func TestValidateSheet(t *testing.T) {
	f := newFixture(t)
	f.store.Seed(storage.TableRef{SpreadsheetID: "wrong", Sheet: tasks.DefaultSheet}, [][]string{{"Name", "Owner"}})

	tests := map[string]bool{"sheet-1": true, "wrong": false, "absent": false}
	for id, want := range tests {
		rec := f.do(t, &bob, http.MethodPost, "/api/google-sheets/validate", map[string]string{"sheetId": id, "accessToken": "tok"})
		require.Equal(t, http.StatusOK, rec.Code, id)
		body := decode(t, rec)
		assert.Equal(t, want, body["isValid"], id)
		assert.Len(t, body["requiredHeaders"], 6)
	}

	rec := f.do(t, &bob, http.MethodPost, "/api/google-sheets/validate", map[string]string{"sheetId": "sheet-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTemplateAndList(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, &bob, http.MethodPost, "/api/google-sheets/create-template", map[string]string{"name": "Roadmap", "accessToken": "tok"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sheet := decode(t, rec)["sheet"].(map[string]any)
	assert.Equal(t, "Roadmap - Tasks", sheet["name"])

	id := sheet["id"].(string)
	rows := f.store.Rows(storage.TableRef{SpreadsheetID: id, Sheet: tasks.DefaultSheet})
	require.Len(t, rows, 1)
	assert.Equal(t, rowcodec.TaskHeaders, rows[0])

	rec = f.do(t, &bob, http.MethodPost, "/api/google-sheets/list", map[string]string{"accessToken": "tok"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Roadmap - Tasks")

	rec = f.do(t, &bob, http.MethodPost, "/api/google-sheets/list", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOAuthRoutes(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, &alice, http.MethodGet, "/api/google-oauth/auth", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Google OAuth is not configured", decode(t, rec)["error"])

	f.srv.deps.OAuth = oauth.NewGoogle("client-id", "client-secret", "")
	rec = f.do(t, &alice, http.MethodGet, "/api/google-oauth/auth", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	authURL, err := url.Parse(decode(t, rec)["authUrl"].(string))
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/auth/google/callback", authURL.Query().Get("redirect_uri"))
	assert.Equal(t, "offline", authURL.Query().Get("access_type"))

	state := findCookie(rec, "sheetboard_oauth_state")
	require.NotNil(t, state)
	assert.True(t, state.HttpOnly)
	assert.Equal(t, "/api/google-oauth", state.Path)
	assert.Equal(t, state.Value, authURL.Query().Get("state"))

	rec = f.do(t, &alice, http.MethodPost, "/api/google-oauth/callback", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOAuthCallbackVerifiesState(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	f := newFixture(t)
	f.srv.deps.OAuth = oauth.NewGoogle("client-id", "client-secret", "").
		WithEndpoint(oauth2.Endpoint{AuthURL: tokenSrv.URL + "/auth", TokenURL: tokenSrv.URL + "/token"})

	rec := f.do(t, &alice, http.MethodGet, "/api/google-oauth/auth", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	state := findCookie(rec, "sheetboard_oauth_state")
	require.NotNil(t, state)

	callback := "/api/google-oauth/callback"
	rec = f.do(t, &alice, http.MethodPost, callback, map[string]string{"code": "c-1", "state": state.Value})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "no state cookie")
	assert.Equal(t, "Invalid OAuth state", decode(t, rec)["error"])

	rec = f.do(t, &alice, http.MethodPost, callback, map[string]string{"code": "c-1", "state": "forged"}, state)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "mismatched state")

	rec = f.do(t, &alice, http.MethodPost, callback, map[string]string{"code": "c-1"}, state)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing state")

	rec = f.do(t, &alice, http.MethodPost, callback, map[string]string{"code": "c-1", "state": state.Value}, state)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":true,"accessToken":"at-1","refreshToken":"rt-1"}`, rec.Body.String())

	cleared := findCookie(rec, "sheetboard_oauth_state")
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Negative(t, cleared.MaxAge)
}

func TestMetricsAndUnknownRoutes(t *testing.T) {
	f := newFixture(t)
	f.do(t, nil, http.MethodGet, "/api/healthz", nil)

	rec := f.do(t, nil, http.MethodGet, "/api/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"endpoint not found"}`, rec.Body.String())

	rec = f.do(t, nil, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `sheetboard_http_requests_total{method="GET",route="/api/healthz",status="200"} 1`), rec.Body.String())
}
