// Arr Dashboard - TRaSH Guides Sync for Sonarr/Radarr Instances
// Copyright 2026 Kha-kis
// SPDX-License-Identifier: MIT
// https://github.com/Kha-kis/arr-dashboard-sub014

// Package store persists sync state: which guide items have been pushed to
// which instance, the remote IDs they map to, applied quality-size hashes,
// and the sync templates driving scheduled runs.
package store

import (
	"errors"
	"time"
)

// ErrNotFound signals that no record exists for the requested key.
var ErrNotFound = errors.New("record not found")

// UpdateStrategy controls how a template reacts to new guide content.
type UpdateStrategy string

const (
	// StrategyAuto applies guide updates on every scheduled run.
	StrategyAuto UpdateStrategy = "auto"
	// StrategyNotify records that updates are available without applying.
	StrategyNotify UpdateStrategy = "notify"
	// StrategyManual applies only when a run is explicitly triggered.
	StrategyManual UpdateStrategy = "manual"
)

// FormatTracking records one custom format pushed to one instance. The
// remote ID is the instance's own identifier, required for updates and
// orphan deletion.
type FormatTracking struct {
	InstanceID   string    `json:"instanceId"`
	TrashID      string    `json:"trashId"`
	FormatName   string    `json:"formatName"`
	RemoteID     int       `json:"remoteId"`
	LastSyncedAt time.Time `json:"lastSyncedAt"`

	// ImportSource and SourceReference record what brought the format in:
	// "template" with the template ID, or "group" with the group trash_id.
	ImportSource    string `json:"importSource,omitempty"`
	SourceReference string `json:"sourceReference,omitempty"`

	// CommitHash is the guide commit the format content came from.
	CommitHash string `json:"commitHash,omitempty"`
}

// GroupTracking records which formats a custom-format group contributed to
// an instance, so removals from the group can be cleaned up.
type GroupTracking struct {
	InstanceID     string    `json:"instanceId"`
	GroupTrashID   string    `json:"groupTrashId"`
	GroupName      string    `json:"groupName"`
	FormatTrashIDs []string  `json:"formatTrashIds"`
	LastSyncedAt   time.Time `json:"lastSyncedAt"`
}

// ProfileTracking records one quality profile managed on one instance.
type ProfileTracking struct {
	InstanceID     string    `json:"instanceId"`
	ProfileTrashID string    `json:"profileTrashId"`
	ProfileName    string    `json:"profileName"`
	RemoteID       int       `json:"remoteId"`
	LastSyncedAt   time.Time `json:"lastSyncedAt"`
}

// QualitySizeMapping records which quality-size preset an instance follows
// and the content hash of the limits last applied. A nil hash means the
// instance's current definitions are not known to match any applied state
// and the next run must re-apply.
type QualitySizeMapping struct {
	InstanceID      string     `json:"instanceId"`
	PresetType      string     `json:"presetType"`
	AppliedDataHash *string    `json:"appliedDataHash,omitempty"`
	AppliedAt       *time.Time `json:"appliedAt,omitempty"`

	// Strategy controls how preset changes reach the instance. Auto (the
	// zero value is treated as auto) resets and re-applies; notify only
	// reports that an update is pending.
	Strategy UpdateStrategy `json:"strategy,omitempty"`
}

// Template binds guide items to an instance with an update strategy. The
// scheduler walks templates on every run.
type Template struct {
	ID         string         `json:"id"`
	InstanceID string         `json:"instanceId"`
	Name       string         `json:"name"`
	Strategy   UpdateStrategy `json:"strategy"`

	// ScoreSet selects which trash_scores entry resolves format scores.
	ScoreSet string `json:"scoreSet,omitempty"`

	FormatTrashIDs  []string `json:"formatTrashIds,omitempty"`
	GroupTrashIDs   []string `json:"groupTrashIds,omitempty"`
	ProfileTrashIDs []string `json:"profileTrashIds,omitempty"`

	// ExcludeTrashIDs lists formats this template never touches, in any
	// direction.
	ExcludeTrashIDs []string `json:"excludeTrashIds,omitempty"`

	// TermOverrides replaces release-title terms per format before
	// planning, keyed trash_id then specification name.
	TermOverrides map[string]map[string]string `json:"termOverrides,omitempty"`

	// AddTerms appends user release-title specifications per format,
	// keyed trash_id then new specification name.
	AddTerms map[string]map[string]string `json:"addTerms,omitempty"`

	// RemoveTerms drops named specifications per format.
	RemoveTerms map[string][]string `json:"removeTerms,omitempty"`

	// UpdatesAvailable is set by notify-strategy runs when guide content
	// changed since the last apply.
	UpdatesAvailable bool `json:"updatesAvailable"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ScoreConflict records a format whose score differs between the guide and
// a user override, surfaced for review rather than silently resolved.
type ScoreConflict struct {
	InstanceID   string    `json:"instanceId"`
	TrashID      string    `json:"trashId"`
	FormatName   string    `json:"formatName"`
	GuideScore   int       `json:"guideScore"`
	CurrentScore int       `json:"currentScore"`
	RecordedAt   time.Time `json:"recordedAt"`
}

// Store is the persistence surface for sync state.
type Store interface {
	// Format tracking.
	PutFormatTracking(rec *FormatTracking) error
	GetFormatTracking(instanceID, trashID string) (*FormatTracking, error)
	ListFormatTracking(instanceID string) ([]FormatTracking, error)
	DeleteFormatTracking(instanceID, trashID string) error

	// Group tracking.
	PutGroupTracking(rec *GroupTracking) error
	GetGroupTracking(instanceID, groupTrashID string) (*GroupTracking, error)
	ListGroupTracking(instanceID string) ([]GroupTracking, error)
	DeleteGroupTracking(instanceID, groupTrashID string) error

	// Profile tracking.
	PutProfileTracking(rec *ProfileTracking) error
	GetProfileTracking(instanceID, profileTrashID string) (*ProfileTracking, error)
	ListProfileTracking(instanceID string) ([]ProfileTracking, error)
	DeleteProfileTracking(instanceID, profileTrashID string) error

	// Quality-size mappings.
	PutQualitySizeMapping(rec *QualitySizeMapping) error
	GetQualitySizeMapping(instanceID string) (*QualitySizeMapping, error)
	ListQualitySizeMappings() ([]QualitySizeMapping, error)

	// Templates.
	PutTemplate(tpl *Template) error
	GetTemplate(id string) (*Template, error)
	ListTemplates() ([]Template, error)
	DeleteTemplate(id string) error

	// Score conflicts.
	PutScoreConflict(rec *ScoreConflict) error
	ListScoreConflicts(instanceID string) ([]ScoreConflict, error)
	ClearScoreConflicts(instanceID string) error
}
