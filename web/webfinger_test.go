package web

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAcct(t *testing.T) {
	tests := []struct {
		resource string
		username string
		host     string
		ok       bool
	}{
		{"acct:alice@example.com", "alice", "example.com", true},
		{"alice@example.com", "", "", false},
		{"acct:alice", "", "", false},
		{"acct:@example.com", "", "", false},
		{"acct:alice@", "", "", false},
		{"acct:alice@example.com@evil.com", "", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.resource, func(t *testing.T) {
			username, host, ok := parseAcct(tt.resource)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.username, username)
			assert.Equal(t, tt.host, host)
		})
	}
}

func TestWebfinger(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	w := f.get("/.well-known/webfinger?resource=acct:alice@example.com")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, jrdContentType, w.Header().Get("Content-Type"))

	var resp WebfingerResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "acct:alice@example.com", resp.Subject)
	require.NotEmpty(t, resp.Links)
	assert.Equal(t, WebfingerLink{
		Rel:  "self",
		Type: "application/activity+json",
		Href: "https://example.com/ap/users/alice",
	}, resp.Links[0])
}

func TestWebfingerErrors(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"missing resource", "", http.StatusBadRequest},
		{"not acct", "?resource=https://example.com/ap/users/alice", http.StatusBadRequest},
		{"foreign domain", "?resource=acct:alice@other.example", http.StatusNotFound},
		{"unknown user", "?resource=acct:nobody@example.com", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.get("/.well-known/webfinger"+tt.query).Code)
		})
	}
}

func TestHostMeta(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	w := f.get("/.well-known/host-meta")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/xrd+xml")
	assert.Contains(t, w.Body.String(), `template="https://example.com/.well-known/webfinger?resource={uri}"`)

	w = f.get("/.well-known/host-meta.json")
	require.Equal(t, http.StatusOK, w.Code)
	var resp WebfingerResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Links, 1)
	assert.Equal(t, "lrdd", resp.Links[0].Rel)
	assert.Equal(t, "https://example.com/.well-known/webfinger?resource={uri}", resp.Links[0].Template)
}

func TestNodeInfo(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.publish(t, "One", time.Now())
	f.publish(t, "Two", time.Now())

	w := f.get("/.well-known/nodeinfo")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "https://example.com/nodeinfo/2.1")

	w = f.get("/nodeinfo/2.1")
	require.Equal(t, http.StatusOK, w.Code)

	var info NodeInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "2.1", info.Version)
	assert.Equal(t, []string{"activitypub"}, info.Protocols)
	assert.Equal(t, 1, info.Usage.Users.Total)
	assert.Equal(t, 2, info.Usage.LocalPosts)
	assert.Equal(t, "xlog test", info.Metadata["nodeName"])
}
