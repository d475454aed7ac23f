package activitypub

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Activity is one of Create, Follow, Accept, Like, Undo or UnknownActivity.
type Activity interface {
	ActivityID() string
	ActorID() string
	TypeName() string
	// ObjectID is the id of the activity's object, embedded or referenced.
	ObjectID() string
	isActivity()
}

// ObjectRef is an activity object given either as a bare id or an embedded object.
// Only the fields needed to route Accept and Undo are kept.
type ObjectRef struct {
	ID     string
	Type   string
	Actor  string
	Object string
}

func (r *ObjectRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*r = ObjectRef{}
		return nil
	}
	if b[0] == '"' {
		var id string
		if err := json.Unmarshal(b, &id); err != nil {
			return err
		}
		*r = ObjectRef{ID: id}
		return nil
	}

	var embedded struct {
		ID     string     `json:"id"`
		Type   string     `json:"type"`
		Actor  *ObjectRef `json:"actor"`
		Object *ObjectRef `json:"object"`
	}
	if err := json.Unmarshal(b, &embedded); err != nil {
		return err
	}
	*r = ObjectRef{ID: embedded.ID, Type: embedded.Type}
	if embedded.Actor != nil {
		r.Actor = embedded.Actor.ID
	}
	if embedded.Object != nil {
		r.Object = embedded.Object.ID
	}
	return nil
}

// MarshalJSON writes a bare id unless the reference carries a type.
func (r ObjectRef) MarshalJSON() ([]byte, error) {
	if r.Type == "" {
		return json.Marshal(r.ID)
	}
	return json.Marshal(struct {
		ID     string `json:"id,omitempty"`
		Type   string `json:"type"`
		Actor  string `json:"actor,omitempty"`
		Object string `json:"object,omitempty"`
	}{r.ID, r.Type, r.Actor, r.Object})
}

type Hashtag struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type Article struct {
	Context      []string  `json:"@context,omitempty"`
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	URL          string    `json:"url,omitempty"`
	AttributedTo string    `json:"attributedTo,omitempty"`
	Name         string    `json:"name,omitempty"`
	Summary      string    `json:"summary,omitempty"`
	Content      string    `json:"content,omitempty"`
	Tag          []Hashtag `json:"tag"`
	Image        string    `json:"image,omitempty"`
	Published    string    `json:"published,omitempty"`
}

type Create struct {
	Context   []string `json:"@context,omitempty"`
	ID        string   `json:"id"`
	Type      string   `json:"type"`
	Actor     string   `json:"actor"`
	Published string   `json:"published,omitempty"`
	To        []string `json:"to,omitempty"`
	Object    *Article `json:"object"`
}

type Follow struct {
	Context []string `json:"@context,omitempty"`
	ID      string   `json:"id"`
	Type    string   `json:"type"`
	Actor   string   `json:"actor"`
	Object  string   `json:"object"`
}

type Accept struct {
	Context []string  `json:"@context,omitempty"`
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Actor   string    `json:"actor"`
	Object  ObjectRef `json:"object"`
}

type Like struct {
	Context []string `json:"@context,omitempty"`
	ID      string   `json:"id"`
	Type    string   `json:"type"`
	Actor   string   `json:"actor"`
	Object  string   `json:"object"`
}

type Undo struct {
	Context []string  `json:"@context,omitempty"`
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Actor   string    `json:"actor"`
	Object  ObjectRef `json:"object"`
}

// UnknownActivity is any type the inbox records without acting on.
type UnknownActivity struct {
	ID     string
	Type   string
	Actor  string
	Object ObjectRef
}

func (a *Create) ActivityID() string { return a.ID }
func (a *Create) ActorID() string    { return a.Actor }
func (a *Create) TypeName() string   { return "Create" }
func (a *Create) ObjectID() string {
	if a.Object == nil {
		return ""
	}
	return a.Object.ID
}
func (a *Create) isActivity() {}

func (a *Follow) ActivityID() string { return a.ID }
func (a *Follow) ActorID() string    { return a.Actor }
func (a *Follow) TypeName() string   { return "Follow" }
func (a *Follow) ObjectID() string   { return a.Object }
func (a *Follow) isActivity()        {}

func (a *Accept) ActivityID() string { return a.ID }
func (a *Accept) ActorID() string    { return a.Actor }
func (a *Accept) TypeName() string   { return "Accept" }
func (a *Accept) ObjectID() string   { return a.Object.ID }
func (a *Accept) isActivity()        {}

func (a *Like) ActivityID() string { return a.ID }
func (a *Like) ActorID() string    { return a.Actor }
func (a *Like) TypeName() string   { return "Like" }
func (a *Like) ObjectID() string   { return a.Object }
func (a *Like) isActivity()        {}

func (a *Undo) ActivityID() string { return a.ID }
func (a *Undo) ActorID() string    { return a.Actor }
func (a *Undo) TypeName() string   { return "Undo" }
func (a *Undo) ObjectID() string   { return a.Object.ID }
func (a *Undo) isActivity()        {}

func (a *UnknownActivity) ActivityID() string { return a.ID }
func (a *UnknownActivity) ActorID() string    { return a.Actor }
func (a *UnknownActivity) TypeName() string   { return a.Type }
func (a *UnknownActivity) ObjectID() string   { return a.Object.ID }
func (a *UnknownActivity) isActivity()        {}

type envelope struct {
	ID     string    `json:"id"`
	Type   string    `json:"type"`
	Actor  ObjectRef `json:"actor"`
	Object ObjectRef `json:"object"`
}

// ParseActivity decodes an inbound activity. Bodies that are not JSON objects,
// or lack a type, an actor, or an object the type requires, wrap ErrMalformedActivity.
func ParseActivity(raw []byte) (Activity, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedActivity, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedActivity)
	}
	if env.Actor.ID == "" {
		return nil, fmt.Errorf("%w: missing actor", ErrMalformedActivity)
	}

	actor := env.Actor.ID
	switch env.Type {
	case "Follow", "Like", "Accept", "Undo":
		if env.Object.ID == "" && env.Object.Type == "" {
			return nil, fmt.Errorf("%w: %s without object", ErrMalformedActivity, env.Type)
		}
	}

	switch env.Type {
	case "Create":
		return &Create{ID: env.ID, Type: env.Type, Actor: actor, Object: &Article{ID: env.Object.ID, Type: env.Object.Type}}, nil
	case "Follow":
		return &Follow{ID: env.ID, Type: env.Type, Actor: actor, Object: env.Object.ID}, nil
	case "Accept":
		return &Accept{ID: env.ID, Type: env.Type, Actor: actor, Object: env.Object}, nil
	case "Like":
		return &Like{ID: env.ID, Type: env.Type, Actor: actor, Object: env.Object.ID}, nil
	case "Undo":
		return &Undo{ID: env.ID, Type: env.Type, Actor: actor, Object: env.Object}, nil
	default:
		return &UnknownActivity{ID: env.ID, Type: env.Type, Actor: actor, Object: env.Object}, nil
	}
}
