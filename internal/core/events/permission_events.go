package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeRoleBindingChanged   = "role.binding_changed"
	EventTypeMemberRoleAssigned   = "member.role_assigned"
	EventTypeRoleDeactivated      = "role.deactivated"
	EventTypeRoleHierarchyChanged = "role.hierarchy_changed"
	EventTypeTeamSwitched         = "team.switched"
	EventTypePermissionsFlushed   = "permissions.flushed"
)

// PermissionEventTypes lists every event whose handlers may need to drop cached
// permission sets.
var PermissionEventTypes = []string{
	EventTypeRoleBindingChanged,
	EventTypeMemberRoleAssigned,
	EventTypeRoleDeactivated,
	EventTypeRoleHierarchyChanged,
	EventTypeTeamSwitched,
	EventTypePermissionsFlushed,
}

// Subject is one (user, team) pair whose permission set changed.
type Subject struct {
	UserID string `json:"user_id"`
	TeamID string `json:"team_id"`
}

// Invalidating is implemented by events that change resolved permission sets.
type Invalidating interface {
	Event
	AffectedSubjects() []Subject
}

// Flushing is implemented by events whose affected subjects could not be enumerated.
// When FlushesAll reports true, every cached permission set must be dropped.
type Flushing interface {
	FlushesAll() bool
}

func newBase(eventType string, data map[string]interface{}) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

type RoleBindingChangedEvent struct {
	BaseEvent
	RoleID     int64     `json:"role_id"`
	RoleSlug   string    `json:"role"`
	Permission string    `json:"permission"`
	Granted    bool      `json:"granted"`
	Changed    bool      `json:"changed"`
	Actor      string    `json:"actor"`
	Affected   []Subject `json:"affected"`
	FlushAll   bool      `json:"flush_all,omitempty"`
}

func NewRoleBindingChangedEvent(roleID int64, roleSlug, permission string, granted bool, actor string, affected []Subject) *RoleBindingChangedEvent {
	return &RoleBindingChangedEvent{
		BaseEvent: newBase(EventTypeRoleBindingChanged, map[string]interface{}{
			"role_id":    roleID,
			"role":       roleSlug,
			"permission": permission,
			"granted":    granted,
			"actor":      actor,
			"affected":   len(affected),
		}),
		RoleID:     roleID,
		RoleSlug:   roleSlug,
		Permission: permission,
		Granted:    granted,
		Actor:      actor,
		Affected:   affected,
	}
}

func (e *RoleBindingChangedEvent) AffectedSubjects() []Subject { return e.Affected }
func (e *RoleBindingChangedEvent) FlushesAll() bool { return e.FlushAll }

type MemberRoleAssignedEvent struct {
	BaseEvent
	UserID         string `json:"user_id"`
	TeamID         string `json:"team_id"`
	RoleID         int64  `json:"role_id"`
	PreviousRoleID int64  `json:"previous_role_id,omitempty"`
	Actor          string `json:"actor"`
}

func NewMemberRoleAssignedEvent(userID, teamID string, roleID, previousRoleID int64, actor string) *MemberRoleAssignedEvent {
	return &MemberRoleAssignedEvent{
		BaseEvent: newBase(EventTypeMemberRoleAssigned, map[string]interface{}{
			"user_id":          userID,
			"team_id":          teamID,
			"role_id":          roleID,
			"previous_role_id": previousRoleID,
			"actor":            actor,
		}),
		UserID:         userID,
		TeamID:         teamID,
		RoleID:         roleID,
		PreviousRoleID: previousRoleID,
		Actor:          actor,
	}
}

func (e *MemberRoleAssignedEvent) AffectedSubjects() []Subject {
	return []Subject{{UserID: e.UserID, TeamID: e.TeamID}}
}

type RoleDeactivatedEvent struct {
	BaseEvent
	RoleID   int64     `json:"role_id"`
	RoleSlug string    `json:"role"`
	Actor    string    `json:"actor"`
	Affected []Subject `json:"affected"`
	FlushAll bool      `json:"flush_all,omitempty"`
}

func NewRoleDeactivatedEvent(roleID int64, roleSlug, actor string, affected []Subject) *RoleDeactivatedEvent {
	return &RoleDeactivatedEvent{
		BaseEvent: newBase(EventTypeRoleDeactivated, map[string]interface{}{
			"role_id":  roleID,
			"role":     roleSlug,
			"actor":    actor,
			"affected": len(affected),
		}),
		RoleID:   roleID,
		RoleSlug: roleSlug,
		Actor:    actor,
		Affected: affected,
	}
}

func (e *RoleDeactivatedEvent) AffectedSubjects() []Subject { return e.Affected }
func (e *RoleDeactivatedEvent) FlushesAll() bool { return e.FlushAll }

type RoleHierarchyChangedEvent struct {
	BaseEvent
	RoleID   int64     `json:"role_id"`
	RoleSlug string    `json:"role"`
	From     int       `json:"from"`
	To       int       `json:"to"`
	Actor    string    `json:"actor"`
	Affected []Subject `json:"affected"`
	FlushAll bool      `json:"flush_all,omitempty"`
}

func NewRoleHierarchyChangedEvent(roleID int64, roleSlug string, from, to int, actor string, affected []Subject) *RoleHierarchyChangedEvent {
	return &RoleHierarchyChangedEvent{
		BaseEvent: newBase(EventTypeRoleHierarchyChanged, map[string]interface{}{
			"role_id":  roleID,
			"role":     roleSlug,
			"from":     from,
			"to":       to,
			"actor":    actor,
			"affected": len(affected),
		}),
		RoleID:   roleID,
		RoleSlug: roleSlug,
		From:     from,
		To:       to,
		Actor:    actor,
		Affected: affected,
	}
}

func (e *RoleHierarchyChangedEvent) AffectedSubjects() []Subject { return e.Affected }
func (e *RoleHierarchyChangedEvent) FlushesAll() bool { return e.FlushAll }

type TeamSwitchedEvent struct {
	BaseEvent
	UserID     string `json:"user_id"`
	FromTeamID string `json:"from_team_id,omitempty"`
	ToTeamID   string `json:"to_team_id"`
}

func NewTeamSwitchedEvent(userID, fromTeamID, toTeamID string) *TeamSwitchedEvent {
	return &TeamSwitchedEvent{
		BaseEvent: newBase(EventTypeTeamSwitched, map[string]interface{}{
			"user_id":      userID,
			"from_team_id": fromTeamID,
			"to_team_id":   toTeamID,
		}),
		UserID:     userID,
		FromTeamID: fromTeamID,
		ToTeamID:   toTeamID,
	}
}

func (e *TeamSwitchedEvent) AffectedSubjects() []Subject {
	subjects := []Subject{{UserID: e.UserID, TeamID: e.ToTeamID}}
	if e.FromTeamID != "" && e.FromTeamID != e.ToTeamID {
		subjects = append(subjects, Subject{UserID: e.UserID, TeamID: e.FromTeamID})
	}
	return subjects
}

// PermissionsFlushedEvent reports that every cached permission set was dropped, for
// instance after a re-seed added bindings.
type PermissionsFlushedEvent struct {
	BaseEvent
	Trigger string `json:"trigger"`
}

func NewPermissionsFlushedEvent(trigger string) *PermissionsFlushedEvent {
	return &PermissionsFlushedEvent{
		BaseEvent: newBase(EventTypePermissionsFlushed, map[string]interface{}{
			"trigger": trigger,
		}),
		Trigger: trigger,
	}
}

func (e *PermissionsFlushedEvent) AffectedSubjects() []Subject { return nil }
func (e *PermissionsFlushedEvent) FlushesAll() bool { return true }
