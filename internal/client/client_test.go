package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetboard/internal/apperr"
	"sheetboard/internal/models"
)

func TestLoginKeepsSessionToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/login":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "alice@x.com", body["email"])
			_, _ = w.Write([]byte(`{"success":true,"token":"jwt-1","user":{"email":"alice@x.com","role":"Admin"}}`))
		case "/api/projects":
			assert.Equal(t, "Bearer jwt-1", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"projects":[{"projectId":"p1","projectName":"Launch"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "", "", srv.Client())
	res, err := c.Login(context.Background(), "alice@x.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, res.User.Role)
	assert.Equal(t, "jwt-1", c.SessionToken())

	projects, err := c.ListProjects(context.Background())
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "Launch", projects[0].ProjectName)
}

func TestListTasksSendsAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/projects/p1/tasks", r.URL.Path)
		assert.Equal(t, "ya29.token", r.URL.Query().Get("accessToken"))
		_, _ = w.Write([]byte(`{"tasks":[{"id":"T1","status":"Done","rowIndex":2}],"columns":["Done"]}`))
	}))
	defer srv.Close()

	b, err := New(srv.URL, "jwt", "ya29.token", nil).ListTasks(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Done"}, b.Columns)
	assert.Equal(t, 2, b.Tasks[0].RowIndex)
}

func TestUpdateTaskFlattensChanges(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{
			"taskId":      "T1",
			"accessToken": "ya29.token",
			"newStatus":   "Done",
			"progress":    float64(80),
		}, body)
		_, _ = w.Write([]byte(`{"success":true,"task":{"id":"T1","status":"Done","progress":80}}`))
	}))
	defer srv.Close()

	up := New(srv.URL, "jwt", "ya29.token", nil).Project("p1")
	task, err := up.UpdateTask(context.Background(), "T1", models.TaskChanges{
		Status:   models.String("Done"),
		Progress: models.Progress(80),
	})
	require.NoError(t, err)
	assert.Equal(t, 80, task.Progress)
}

func TestErrorCarriesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"Forbidden"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "jwt", "tok", nil).ListTasks(context.Background(), "p1")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	assert.Equal(t, "Forbidden", apperr.Message(err, "fallback"))
}
