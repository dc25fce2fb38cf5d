// Package event defines the canonical event record produced by crawlers and
// served by the read API, plus its content fingerprint.
package event

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Image describes an optional event image. The three fields travel as a unit:
// either the whole struct is present or it is nil.
type Image struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Record is the canonical shape every crawler maps its source items into.
// ID is assigned by the store and, together with StartDate, is used only for
// pagination tie-breaking. Records are never mutated after creation; changed
// content is a new record with a new fingerprint.
type Record struct {
	ID          uuid.UUID         `json:"id"`
	StartDate   time.Time         `json:"start_date"`
	EndDate     time.Time         `json:"end_date"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Schedule    string            `json:"schedule,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
	Image       *Image            `json:"image,omitempty"`
	Location    string            `json:"location"`
	Coordinate  *Coordinate       `json:"coordinate,omitempty"`
	Fingerprint string            `json:"fingerprint"`
}

// Coordinate is an ordered [longitude, latitude] pair.
type Coordinate [2]float64

// canonicalRecord is the serialized form fed into the content hash. It
// excludes the store-assigned ID and the fingerprint itself, and pins
// timestamps to epoch millis so the digest does not depend on timezone or
// sub-millisecond noise. Field order is fixed by struct declaration order and
// map keys are sorted by encoding/json, so the serialization is stable.
type canonicalRecord struct {
	StartDate   int64             `json:"start_date"`
	EndDate     int64             `json:"end_date"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Schedule    string            `json:"schedule"`
	Extra       map[string]string `json:"extra"`
	Image       *Image            `json:"image"`
	Location    string            `json:"location"`
	Coordinate  *Coordinate       `json:"coordinate"`
}

// ContentHash computes the record's deterministic content fingerprint: a hex
// SHA-256 digest over the canonical serialization of every attribute except
// ID and Fingerprint. Two records with identical content always produce the
// same digest, which backs the store's unique index for deduplication.
func (r Record) ContentHash() (string, error) {
	payload, err := json.Marshal(canonicalRecord{
		StartDate:   r.StartDate.UnixMilli(),
		EndDate:     r.EndDate.UnixMilli(),
		Title:       r.Title,
		Description: r.Description,
		Schedule:    r.Schedule,
		Extra:       r.Extra,
		Image:       r.Image,
		Location:    r.Location,
		Coordinate:  r.Coordinate,
	})
	if err != nil {
		return "", fmt.Errorf("marshal canonical record: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
