package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bravohq/dispatch/internal/httpapi/middleware"
	"github.com/bravohq/dispatch/internal/upload"
)

func seedUpload(t *testing.T, env *testEnv, sessionID, name, content string) *upload.File {
	t.Helper()
	key, url, err := env.store.Save(name, strings.NewReader(content))
	require.NoError(t, err)

	f := &upload.File{
		SessionID:        sessionID,
		Filename:         key,
		OriginalFilename: name,
		FileURL:          url,
		FileType:         "text/plain",
	}
	require.NoError(t, env.handler.Uploads.Create(context.Background(), f))
	return f
}

func sessionToken(t *testing.T, sessionID string) string {
	t.Helper()
	token, err := middleware.SignSessionToken(sessionID, testSessionSecret, sessionTokenTTL)
	require.NoError(t, err)
	return token
}

func getUpload(env *testEnv, key, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/uploads/"+key+"?token="+token, nil)
	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, req)
	return w
}

func TestGetUpload_OwnSessionServesFile(t *testing.T) {
	env := newTestEnv(t)
	f := seedUpload(t, env, "session-a", "notes.txt", "hello notes")

	w := getUpload(env, f.Filename, sessionToken(t, "session-a"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello notes", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "notes.txt")
}

func TestGetUpload_OtherSessionGetsNotFound(t *testing.T) {
	env := newTestEnv(t)
	f := seedUpload(t, env, "session-a", "secret.txt", "for a only")

	// a valid token for a different session must not reveal the file
	w := getUpload(env, f.Filename, sessionToken(t, "session-b"))

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "file not found")
}

func TestGetUpload_MissingTokenRejected(t *testing.T) {
	env := newTestEnv(t)
	f := seedUpload(t, env, "session-a", "notes.txt", "hello")

	req := httptest.NewRequest(http.MethodGet, "/uploads/"+f.Filename, nil)
	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
