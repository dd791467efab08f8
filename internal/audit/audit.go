package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	auditDatamodel "github.com/frahmantamala/teamboard/internal/core/datamodel/audit"
	"github.com/google/uuid"
)

type Action string

const (
	ActionGranted Action = "granted"
	ActionRevoked Action = "revoked"
	ActionChecked Action = "checked"
	ActionDenied  Action = "denied"
)

func (a Action) Valid() bool {
	switch a {
	case ActionGranted, ActionRevoked, ActionChecked, ActionDenied:
		return true
	}
	return false
}

// ErrSinkUnavailable wraps every failure to persist or read audit entries.
var ErrSinkUnavailable = errors.New("audit sink unavailable")

type Entry struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	Action         Action         `json:"action"`
	PermissionSlug string         `json:"permission_slug"`
	ResourceType   string         `json:"resource_type,omitempty"`
	ResourceID     string         `json:"resource_id,omitempty"`
	TeamID         string         `json:"team_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Filter narrows a Query. Zero fields match everything.
type Filter struct {
	UserID         string
	TeamID         string
	Action         Action
	PermissionSlug string
	Since          time.Time
	Limit          int
}

// Cursor is a forward-only view over one query snapshot. Once Next returns false
// the cursor is exhausted; callers query again for a fresh snapshot.
type Cursor interface {
	Next() bool
	Entry() Entry
	Err() error
	Close() error
}

type Sink interface {
	Append(ctx context.Context, e *Entry) (string, error)
	Query(ctx context.Context, f Filter) (Cursor, error)
}

// Stamp assigns the id and creation time when they are not already set.
func (e *Entry) Stamp(now time.Time) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now.UTC()
	}
}

func (e *Entry) ToDataModel() (*auditDatamodel.Entry, error) {
	var metadata string
	if len(e.Metadata) > 0 {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode audit metadata: %w", err)
		}
		metadata = string(raw)
	}
	return &auditDatamodel.Entry{
		ID:             e.ID,
		UserID:         e.UserID,
		Action:         string(e.Action),
		PermissionSlug: e.PermissionSlug,
		ResourceType:   e.ResourceType,
		ResourceID:     e.ResourceID,
		TeamID:         e.TeamID,
		Metadata:       metadata,
		CreatedAt:      e.CreatedAt,
	}, nil
}

func FromDataModel(row *auditDatamodel.Entry) (Entry, error) {
	e := Entry{
		ID:             row.ID,
		UserID:         row.UserID,
		Action:         Action(row.Action),
		PermissionSlug: row.PermissionSlug,
		ResourceType:   row.ResourceType,
		ResourceID:     row.ResourceID,
		TeamID:         row.TeamID,
		CreatedAt:      row.CreatedAt,
	}
	if row.Metadata != "" {
		if err := json.Unmarshal([]byte(row.Metadata), &e.Metadata); err != nil {
			return Entry{}, fmt.Errorf("decode audit metadata for %s: %w", row.ID, err)
		}
	}
	return e, nil
}
