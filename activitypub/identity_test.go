package activitypub

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestUsernameFromActorURL(t *testing.T) {
	tests := []struct {
		url      string
		username string
		ok       bool
	}{
		{"https://example.com/ap/users/alice", "alice", true},
		{"https://EXAMPLE.com/ap/users/alice", "alice", true},
		{"http://example.com/ap/users/alice", "", false},
		{"https://other.example/ap/users/alice", "", false},
		{"https://example.com/ap/users/", "", false},
		{"https://example.com/ap/users/alice/inbox", "", false},
		{"https://example.com/users/alice", "", false},
	}
	for _, tt := range tests {
		username, ok := UsernameFromActorURL("example.com", tt.url)
		assert.Equal(t, tt.ok, ok, tt.url)
		assert.Equal(t, tt.username, username, tt.url)
	}
}

func TestPostIDFromObjectURL(t *testing.T) {
	id := uuid.New()

	got, ok := PostIDFromObjectURL(PostURL("example.com", id))
	assert.True(t, ok)
	assert.Equal(t, id, got)

	got, ok = PostIDFromObjectURL(PostURL("example.com", id) + "/")
	assert.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = PostIDFromObjectURL("https://example.com/post/not-a-uuid")
	assert.False(t, ok)
}

func TestKeyIDAndActor(t *testing.T) {
	keyId := KeyID("example.com", "alice")
	assert.Equal(t, "https://example.com/ap/users/alice#main-key", keyId)
	assert.Equal(t, ActorURL("example.com", "alice"), ActorFromKeyID(keyId))
	assert.Equal(t, "https://r.example/u/bob", ActorFromKeyID("https://r.example/u/bob"))
}

func TestNewActivityIDIsUnique(t *testing.T) {
	a := NewActivityID("example.com")
	b := NewActivityID("example.com")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "https://example.com/ap/activities/"))
}

func TestRemoteInboxFor(t *testing.T) {
	assert.Equal(t, "https://r.example/u/bob/inbox", RemoteInboxFor("https://r.example/u/bob"))
	assert.Equal(t, "https://r.example/u/bob/inbox", RemoteInboxFor("https://r.example/u/bob/"))
}
