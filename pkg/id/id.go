// Package id derives run identifiers. They are ULIDs, so they sort by the
// time of the data they cover, but their entropy comes from a seed so the
// same run always gets the same id.
package id

import (
	"bytes"
	"crypto/sha256"
	"time"

	"github.com/oklog/ulid/v2"
)

// Deterministic returns the ULID with timestamp t and entropy taken from
// the SHA-256 of seed.
func Deterministic(t time.Time, seed []byte) string {
	sum := sha256.Sum256(seed)
	if t.Before(time.UnixMilli(0)) {
		t = time.UnixMilli(0)
	}
	id, err := ulid.New(ulid.Timestamp(t.UTC()), bytes.NewReader(sum[:]))
	if err != nil {
		// Only reachable for timestamps beyond the year 10889.
		panic(err)
	}
	return id.String()
}

// Time returns the timestamp encoded in an id.
func Time(s string) (time.Time, error) {
	id, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(id.Time()).UTC(), nil
}
