package model

import "time"

// PairingStatus is the lifecycle state of a pairing.
type PairingStatus string

const (
	PairingPending PairingStatus = "pending"
	PairingActive  PairingStatus = "active"
)

// PairingRecord binds a watch identity to a CLI session. Created pending on
// initiate, flipped to active exactly once when the watch presents the code.
// Once active, the record is keyed by PairingID and has no TTL; it persists
// until explicitly unpaired.
type PairingRecord struct {
	PairingID   string        `json:"pairingId"`
	WatchID     string        `json:"watchId"`
	DeviceToken string        `json:"deviceToken,omitempty"`
	Status      PairingStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
}

// Active reports whether the pairing has completed.
func (p *PairingRecord) Active() bool {
	return p.Status == PairingActive
}
