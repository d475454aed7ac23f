package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xlog-social/xlog/domain"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	conf := `conf:
  instanceDomain: blog.example
  instanceName: test blog
  logLevel: error
  database:
    driver: sqlite
    dsn: ` + filepath.Join(dir, "xlog.db") + `
`
	require.NoError(t, os.WriteFile(path, []byte(conf), 0o600))
	return path
}

func run(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", configPath}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestUserAndPostCommands(t *testing.T) {
	conf := writeConfig(t)

	out, err := run(t, conf, "migrate")
	require.NoError(t, err, out)

	out, err = run(t, conf, "user", "add", "alice", "--display-name", "Alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Created alice (https://blog.example/ap/users/alice)")

	out, err = run(t, conf, "user", "add", "alice")
	assert.Error(t, err, out)

	out, err = run(t, conf, "post", "add", "alice", "--title", "Hello", "--content", "<p>hi</p>", "--tag", "go", "--publish")
	require.NoError(t, err)
	assert.Contains(t, out, "Created post")
	assert.Contains(t, out, "Queued 0 deliveries")

	out, err = run(t, conf, "deliveries", "failed")
	require.NoError(t, err)
	assert.Contains(t, out, "No failed deliveries")
}

func TestPostAddRequiresTitle(t *testing.T) {
	conf := writeConfig(t)

	_, err := run(t, conf, "user", "add", "alice")
	require.NoError(t, err)

	_, err = run(t, conf, "post", "add", "alice")
	assert.ErrorContains(t, err, "--title")
}

func TestPostAddUnknownUser(t *testing.T) {
	_, err := run(t, writeConfig(t), "post", "add", "nobody", "--title", "x")
	assert.Error(t, err)
}

func TestPublishInvalidId(t *testing.T) {
	_, err := run(t, writeConfig(t), "publish", "not-a-uuid")
	assert.ErrorContains(t, err, "invalid post id")
}

func TestFollowCommand(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := srv.URL + "/users/bob"
		w.Header().Set("Content-Type", "application/activity+json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":                actor,
			"type":              "Person",
			"preferredUsername": "bob",
			"inbox":             actor + "/inbox",
		})
	}))
	defer srv.Close()

	conf := writeConfig(t)
	_, err := run(t, conf, "user", "add", "alice")
	require.NoError(t, err)

	out, err := run(t, conf, "follow", "alice", srv.URL+"/users/bob")
	require.NoError(t, err)
	assert.Contains(t, out, "Following "+srv.URL+"/users/bob (pending)")
}

func TestFailedTable(t *testing.T) {
	rows := []domain.Delivery{{
		Id:           uuid.New(),
		Kind:         domain.KindCreate,
		RemoteInbox:  "https://remote.example/inbox",
		Status:       domain.DeliveryFailed,
		AttemptCount: 5,
		LastError:    "remote returned 500",
		UpdatedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}}

	rendered := failedTable(rows).String()
	assert.Contains(t, rendered, "INBOX")
	assert.Contains(t, rendered, "https://remote.example/inbox")
	assert.Contains(t, rendered, "remote returned 500")
	assert.Contains(t, rendered, "2026-03-01 12:00:00")
}
