package model

import "time"

// PresenceStatus is a platform-reported availability state.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "ONLINE"
	PresenceIdle    PresenceStatus = "IDLE"
	PresenceBusy    PresenceStatus = "BUSY"
	PresenceOffline PresenceStatus = "OFFLINE"
	PresenceUnknown PresenceStatus = "UNKNOWN"
)

// Priority is the fixed availability ordinal: ONLINE=4 > IDLE=3 > BUSY=2 >
// OFFLINE=1 > UNKNOWN=0.
func (s PresenceStatus) Priority() int {
	switch s {
	case PresenceOnline:
		return 4
	case PresenceIdle:
		return 3
	case PresenceBusy:
		return 2
	case PresenceOffline:
		return 1
	default:
		return 0
	}
}

// StatusFromPriority maps an ordinal back to its discrete status.
func StatusFromPriority(p int) PresenceStatus {
	switch p {
	case 4:
		return PresenceOnline
	case 3:
		return PresenceIdle
	case 2:
		return PresenceBusy
	case 1:
		return PresenceOffline
	default:
		return PresenceUnknown
	}
}

// PresenceRecord is the most recent signal for one (user, platform) pair.
// It is a live cache value, overwritten on each poll, never retained
// historically.
type PresenceRecord struct {
	UserID      string         `json:"user_id"`
	Platform    string         `json:"platform"`
	Status      PresenceStatus `json:"status"`
	Confidence  float64        `json:"confidence"`
	LastUpdated time.Time      `json:"last_updated"`
}

// UnifiedPresence is derived on demand from all of a user's PresenceRecords;
// it is never stored.
type UnifiedPresence struct {
	Status PresenceStatus `json:"status"`
	// Score is the confidence-weighted availability ordinal before rounding.
	Score float64 `json:"score"`
	// Confidence combines contributing records so that more or better
	// signals never lower it below any single record alone.
	Confidence float64          `json:"confidence"`
	Records    []PresenceRecord `json:"records,omitempty"`
}
