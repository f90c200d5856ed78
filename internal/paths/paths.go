// Package paths is the single place where storage paths and cache keys are
// built. Every object key carrying an owner goes through Resolve, so an
// owner id can never end up prefixed twice.
package paths

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/dmitrijs2005/carekeeper/internal/common"
)

const (
	// PrefixToken is prepended exactly once to an owner id.
	PrefixToken = "user_"

	// UsersRoot is the top-level prefix of every owner directory.
	UsersRoot = "users/"

	// ProfilesKey holds the owner profile list.
	ProfilesKey = UsersRoot + "system/users.json"
)

// OwnerID strips surrounding whitespace and every leading PrefixToken.
func OwnerID(raw string) string {
	id := strings.TrimSpace(raw)
	for strings.HasPrefix(id, PrefixToken) {
		id = strings.TrimPrefix(id, PrefixToken)
	}
	return id
}

// Resolve returns the canonical storage prefix "user_<id>".
// Resolve(Resolve(x)) == Resolve(x) for every x.
func Resolve(raw string) string {
	return PrefixToken + OwnerID(raw)
}

// Validate rejects ids that are empty after stripping or that would escape
// the owner directory.
func Validate(raw string) error {
	id := OwnerID(raw)
	if id == "" || strings.ContainsAny(id, "/\\") {
		return fmt.Errorf("%w: %q", common.ErrInvalidOwnerID, raw)
	}
	return nil
}

// PrefixCount reports how many times PrefixToken leads name.
func PrefixCount(name string) int {
	n := 0
	for strings.HasPrefix(name, PrefixToken) {
		name = strings.TrimPrefix(name, PrefixToken)
		n++
	}
	return n
}

// IsDuplicatePrefixed reports whether a directory name carries the legacy
// "user_user_<id>" form.
func IsDuplicatePrefixed(name string) bool {
	return PrefixCount(strings.TrimSuffix(name, "/")) >= 2 && OwnerID(name) != ""
}

// OwnerDir returns "users/user_<id>/".
func OwnerDir(owner string) string {
	return UsersRoot + Resolve(owner) + "/"
}

// EnvelopeKey returns "users/user_<id>/<type>-records.json".
func EnvelopeKey(owner, recordType string) string {
	return OwnerDir(owner) + recordType + "-records.json"
}

// AttachmentKey returns "users/user_<id>/<type>_attachments/<ts>_<name>".
func AttachmentKey(owner, recordType string, timestamp int64, fileName string) string {
	return fmt.Sprintf("%s%s_attachments/%d_%s", OwnerDir(owner), recordType, timestamp, SanitizeFileName(fileName))
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeFileName keeps the base name and replaces anything outside
// [A-Za-z0-9._-] with '_'.
func SanitizeFileName(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" {
		base = ""
	}
	clean := strings.Trim(unsafeChars.ReplaceAllString(base, "_"), "_")
	if clean == "" {
		return "file"
	}
	return clean
}

// LocalRecordsKey is the local cache key of one owner's envelope of one type.
func LocalRecordsKey(appPrefix, recordType, owner string) string {
	return fmt.Sprintf("%s-%s-records-%s", appPrefix, recordType, OwnerID(owner))
}

// LocalRecordsPrefix is the key prefix shared by all owners of one type.
func LocalRecordsPrefix(appPrefix, recordType string) string {
	return fmt.Sprintf("%s-%s-records-", appPrefix, recordType)
}

// LocalProfilesKey is the local cache key of the owner profile list.
func LocalProfilesKey(appPrefix string) string {
	return appPrefix + "-users"
}

// LocalSettingsKey is the local cache key of one owner's settings document.
func LocalSettingsKey(appPrefix, owner string) string {
	return fmt.Sprintf("%s-settings-%s", appPrefix, OwnerID(owner))
}
