package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/carekeeper/internal/common"
)

// RecordsEnvelope wraps one owner's records of one type. It is replaced
// whole on every change, never patched.
type RecordsEnvelope struct {
	UniqueOwnerID string    `json:"uniqueOwnerId"`
	Records       []Record  `json:"records"`
	LastUpdated   time.Time `json:"lastUpdated"`
	Version       int       `json:"version"`
	Checksum      string    `json:"checksum"`
}

// NewEnvelope copies records into a fresh envelope and computes its checksum.
func NewEnvelope(ownerID string, records []Record, now time.Time) (RecordsEnvelope, error) {
	list := make([]Record, len(records))
	copy(list, records)
	for i := range list {
		list[i].Normalize()
	}

	sum, err := Checksum(list)
	if err != nil {
		return RecordsEnvelope{}, err
	}

	return RecordsEnvelope{
		UniqueOwnerID: ownerID,
		Records:       list,
		LastUpdated:   now.UTC(),
		Version:       common.SchemaVersion,
		Checksum:      sum,
	}, nil
}

// EmptyEnvelope is what a store returns for an owner with no data.
func EmptyEnvelope(ownerID string) RecordsEnvelope {
	return RecordsEnvelope{
		UniqueOwnerID: ownerID,
		Records:       []Record{},
		Version:       common.SchemaVersion,
		Checksum:      mustChecksum([]Record{}),
	}
}

// Verify recomputes the checksum and compares it with the stored one.
func (e RecordsEnvelope) Verify() error {
	sum, err := Checksum(e.Records)
	if err != nil {
		return err
	}
	if sum != e.Checksum {
		return fmt.Errorf("%w: stored %s, computed %s", common.ErrChecksumMismatch, e.Checksum, sum)
	}
	return nil
}

// Clone returns a deep enough copy for callers to mutate the record list.
func (e RecordsEnvelope) Clone() RecordsEnvelope {
	out := e
	out.Records = make([]Record, len(e.Records))
	copy(out.Records, e.Records)
	return out
}

// Checksum hashes the JSON form of records. A nil list hashes like an empty one.
func Checksum(records []Record) (string, error) {
	if records == nil {
		records = []Record{}
	}
	return ChecksumOf(records)
}

// ChecksumOf hashes the JSON form of v with a 32-bit rolling hash
// (h = h*31 + b, wrapping). It detects divergence only; it is not an
// integrity guarantee.
func ChecksumOf(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal for checksum: %w", err)
	}
	return RollingHash(data), nil
}

// RollingHash renders the hash of data as 8 hex digits.
func RollingHash(data []byte) string {
	var h int32
	for _, b := range data {
		h = h*31 + int32(b)
	}
	return fmt.Sprintf("%08x", uint32(h))
}

func mustChecksum(records []Record) string {
	sum, err := Checksum(records)
	if err != nil {
		panic(err)
	}
	return sum
}
