package model

import "time"

// ApprovalType categorizes the agent action awaiting approval.
type ApprovalType string

const (
	TypeBash       ApprovalType = "bash"
	TypeFileEdit   ApprovalType = "file_edit"
	TypeFileCreate ApprovalType = "file_create"
	TypeFileDelete ApprovalType = "file_delete"
	TypeToolUse    ApprovalType = "tool_use"
)

// String returns the string representation of the approval type.
func (t ApprovalType) String() string {
	return string(t)
}

// IsValid reports whether the approval type is a known value. Unknown tool
// names map to TypeToolUse at the hook boundary, so anything else here is a
// malformed request.
func (t ApprovalType) IsValid() bool {
	switch t {
	case TypeBash, TypeFileEdit, TypeFileCreate, TypeFileDelete, TypeToolUse:
		return true
	}
	return false
}

// ApprovalStatus is the lifecycle state of an approval request.
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "pending"
	StatusApproved ApprovalStatus = "approved"
	StatusRejected ApprovalStatus = "rejected"
	// StatusExpired is never stored; it is reported when a request's queue
	// entry has TTL'd out of the store.
	StatusExpired ApprovalStatus = "expired"
)

// String returns the string representation of the status.
func (s ApprovalStatus) String() string {
	return string(s)
}

// Terminal reports whether the status is an end state. A terminal request is
// immutable except for expiry.
func (s ApprovalStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// ApprovalRequest is one unit of work requiring a human yes/no decision
// before the agent proceeds. Field names are camelCase on the wire; the same
// schema is shared by the enqueueing hook and the resolving watch.
type ApprovalRequest struct {
	ID          string         `json:"id"`
	PairingID   string         `json:"pairingId"`
	Type        ApprovalType   `json:"type"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	FilePath    string         `json:"filePath,omitempty"`
	Command     string         `json:"command,omitempty"`
	Status      ApprovalStatus `json:"status"`
	CreatedAt   time.Time      `json:"createdAt"`
}
