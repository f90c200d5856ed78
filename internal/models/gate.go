package models

import "time"

// ShouldApply is the pull gate shared by record envelopes and the profile
// list: a remote copy replaces local state when there is no local copy, or
// when it is strictly newer and its content differs.
func ShouldApply(localExists bool, localUpdated time.Time, localChecksum string, remoteUpdated time.Time, remoteChecksum string) bool {
	if !localExists {
		return true
	}
	return remoteUpdated.After(localUpdated) && remoteChecksum != localChecksum
}
