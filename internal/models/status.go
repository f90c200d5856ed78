package models

import (
	"encoding/json"
	"time"
)

// SyncStatus describes the progress of a backup run.
type SyncStatus struct {
	IsSyncing    bool      `json:"isSyncing"`
	LastSyncTime time.Time `json:"lastSyncTime"`
	Progress     int       `json:"progress"`
	LastError    string    `json:"lastError,omitempty"`
}

// Snapshot is the full local corpus as exported to, or restored from, the
// backup provider.
type Snapshot struct {
	Users    []Owner                    `json:"users"`
	Records  []Record                   `json:"records"`
	Settings map[string]json.RawMessage `json:"settings,omitempty"`
}
