// Package records implements local-first persistence for owner records and
// owner profiles.
//
// A Store owns one record type. Each owner's records of that type live in a
// single envelope under one local key; every mutation rebuilds the whole
// envelope, recomputes its checksum and replaces it in one write. Only after
// the local write succeeds is the cloud mirror started, in the background,
// on a context detached from the caller's cancellation.
//
// Stores never fail on missing or malformed local data: both degrade to an
// empty envelope (the latter with a warning).
package records
