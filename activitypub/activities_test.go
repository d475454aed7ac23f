package activitypub

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseActivity(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantType   string
		wantObject string
	}{
		{
			name:       "follow",
			raw:        `{"id":"https://r.example/a/1","type":"Follow","actor":"https://r.example/u/bob","object":"https://example.com/ap/users/alice"}`,
			wantType:   "Follow",
			wantObject: "https://example.com/ap/users/alice",
		},
		{
			name:       "like",
			raw:        `{"id":"https://r.example/a/2","type":"Like","actor":"https://r.example/u/bob","object":"https://example.com/post/abc"}`,
			wantType:   "Like",
			wantObject: "https://example.com/post/abc",
		},
		{
			name:       "accept with embedded follow",
			raw:        `{"id":"https://r.example/a/3","type":"Accept","actor":"https://r.example/u/bob","object":{"id":"https://example.com/ap/activities/9","type":"Follow"}}`,
			wantType:   "Accept",
			wantObject: "https://example.com/ap/activities/9",
		},
		{
			name:       "actor given as object",
			raw:        `{"id":"https://r.example/a/4","type":"Like","actor":{"id":"https://r.example/u/bob","type":"Person"},"object":"x"}`,
			wantType:   "Like",
			wantObject: "x",
		},
		{
			name:       "create",
			raw:        `{"id":"https://r.example/a/5","type":"Create","actor":"https://r.example/u/bob","object":{"id":"https://r.example/n/1","type":"Note"}}`,
			wantType:   "Create",
			wantObject: "https://r.example/n/1",
		},
		{
			name:     "unknown type",
			raw:      `{"id":"https://r.example/a/6","type":"Announce","actor":"https://r.example/u/bob"}`,
			wantType: "Announce",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := ParseActivity([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, a.TypeName())
			assert.Equal(t, "https://r.example/u/bob", a.ActorID())
			assert.Equal(t, tt.wantObject, a.ObjectID())
		})
	}
}

func TestParseActivityVariants(t *testing.T) {
	a, err := ParseActivity([]byte(`{"id":"u1","type":"Undo","actor":"https://r.example/u/bob","object":{"id":"l1","type":"Like","actor":"https://r.example/u/bob","object":"https://example.com/post/p"}}`))
	require.NoError(t, err)

	undo, ok := a.(*Undo)
	require.True(t, ok)
	assert.Equal(t, ObjectRef{ID: "l1", Type: "Like", Actor: "https://r.example/u/bob", Object: "https://example.com/post/p"}, undo.Object)

	a, err = ParseActivity([]byte(`{"id":"u2","type":"Undo","actor":"https://r.example/u/bob","object":"f1"}`))
	require.NoError(t, err)
	undo = a.(*Undo)
	assert.Equal(t, ObjectRef{ID: "f1"}, undo.Object)

	a, err = ParseActivity([]byte(`{"id":"x","type":"Move","actor":"https://r.example/u/bob"}`))
	require.NoError(t, err)
	_, ok = a.(*UnknownActivity)
	assert.True(t, ok)
}

func TestParseActivityMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `not json`},
		{"array", `[]`},
		{"missing type", `{"actor":"https://r.example/u/bob"}`},
		{"missing actor", `{"type":"Follow","object":"x"}`},
		{"follow without object", `{"type":"Follow","actor":"https://r.example/u/bob"}`},
		{"undo without object", `{"type":"Undo","actor":"https://r.example/u/bob"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseActivity([]byte(tt.raw))
			assert.ErrorIs(t, err, ErrMalformedActivity)
		})
	}
}

func TestObjectRefMarshal(t *testing.T) {
	raw, err := json.Marshal(ObjectRef{ID: "https://r.example/a/1"})
	require.NoError(t, err)
	assert.Equal(t, `"https://r.example/a/1"`, string(raw))

	raw, err = json.Marshal(ObjectRef{ID: "a", Type: "Follow", Actor: "b", Object: "c"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"a","type":"Follow","actor":"b","object":"c"}`, string(raw))
}
