// Package changelog records every modification Ansuz makes to the vault as
// a session-scoped, rollback-able change history. The log is persisted as a
// single JSON document inside the vault and rewritten in full on every
// mutation; the storage provider's atomic write keeps it consistent.
package changelog

import (
	"time"
)

// StoragePath is the vault-relative location of the persisted changelog.
const StoragePath = ".ansuz/changelog.json"

// storageVersion identifies the persisted layout.
const storageVersion = 1

// DefaultRetention is the maximum number of persisted sessions; the oldest
// are pruned first.
const DefaultRetention = 30

// ChangeType classifies a change entry.
type ChangeType string

const (
	TypeLinkAdded       ChangeType = "link_added"
	TypeTagAdded        ChangeType = "tag_added"
	TypeContentModified ChangeType = "content_modified"
	TypeFileRenamed     ChangeType = "file_renamed"
	TypeFileMoved       ChangeType = "file_moved"
)

// Change is one recorded modification. It is created in two phases:
// RecordBefore captures the pre-state with a placeholder type and empty
// description, RecordAfter fills in the outcome once the patch result is
// known. A change that never reaches the second phase is still persisted
// and still rollback-able, its Before snapshot is what matters.
type Change struct {
	ID          string                 `json:"id"`
	Timestamp   time.Time              `json:"timestamp"`
	Type        ChangeType             `json:"type"`
	Path        string                 `json:"file_path"`
	Description string                 `json:"description"`
	Before      *string                `json:"before_content,omitempty"`
	After       *string                `json:"after_content,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// Rollbackable reports whether the change carries a restorable pre-state.
func (c *Change) Rollbackable() bool {
	return c.Before != nil
}

// Session groups the changes of one operation (a single-note analysis or a
// whole-vault batch) for joint undo. Append-only while open, immutable once
// ended except for targeted removal during rollback.
type Session struct {
	ID        string     `json:"session_id"`
	Label     string     `json:"label,omitempty"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Changes   []*Change  `json:"changes"`
}

// Log is the persisted root document.
type Log struct {
	Version  int        `json:"version"`
	Sessions []*Session `json:"sessions"`
}
