package models

import (
	"time"

	"github.com/dmitrijs2005/carekeeper/internal/common"
)

// ProfilesEnvelope wraps the owner list stored at users/system/users.json.
type ProfilesEnvelope struct {
	Users       []Owner   `json:"users"`
	LastUpdated time.Time `json:"lastUpdated"`
	Version     int       `json:"version"`
	Checksum    string    `json:"checksum"`
}

func NewProfilesEnvelope(users []Owner, now time.Time) (ProfilesEnvelope, error) {
	list := make([]Owner, len(users))
	copy(list, users)

	sum, err := ChecksumOf(list)
	if err != nil {
		return ProfilesEnvelope{}, err
	}
	return ProfilesEnvelope{Users: list, LastUpdated: now.UTC(), Version: common.SchemaVersion, Checksum: sum}, nil
}
