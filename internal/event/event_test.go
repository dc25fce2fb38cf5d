package event

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func sampleRecord() Record {
	return Record{
		StartDate:   time.Date(2026, 3, 1, 19, 30, 0, 0, time.UTC),
		EndDate:     time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC),
		Title:       "Late Night Jazz",
		Description: "Quartet session in the basement bar.",
		Schedule:    "FREQ=WEEKLY;BYDAY=SA",
		Extra:       map[string]string{"organizer": "Blue Note e.V."},
		Image:       &Image{URL: "https://img.example.com/jazz.jpg", Width: 1200, Height: 630},
		Location:    "Kellerbar, Hauptstr. 12",
		Coordinate:  &Coordinate{13.4050, 52.5200},
	}
}

func TestContentHashDeterministic(t *testing.T) {
	t.Parallel()

	rec := sampleRecord()
	first, err := rec.ContentHash()
	require.NoError(t, err)
	require.Len(t, first, 64)

	again, err := rec.ContentHash()
	require.NoError(t, err)
	require.Equal(t, first, again)
}

func TestContentHashIgnoresIdentityAndFingerprint(t *testing.T) {
	t.Parallel()

	rec := sampleRecord()
	base, err := rec.ContentHash()
	require.NoError(t, err)

	rec.ID = uuid.New()
	rec.Fingerprint = "already-set"
	got, err := rec.ContentHash()
	require.NoError(t, err)
	require.Equal(t, base, got, "store id and fingerprint must not feed the digest")
}

func TestContentHashChangesWithAnyAttribute(t *testing.T) {
	t.Parallel()

	base, err := sampleRecord().ContentHash()
	require.NoError(t, err)

	mutations := map[string]func(*Record){
		"start date":  func(r *Record) { r.StartDate = r.StartDate.Add(time.Minute) },
		"end date":    func(r *Record) { r.EndDate = r.EndDate.Add(time.Minute) },
		"title":       func(r *Record) { r.Title = "Early Night Jazz" },
		"description": func(r *Record) { r.Description = "" },
		"schedule":    func(r *Record) { r.Schedule = "" },
		"extra":       func(r *Record) { r.Extra["organizer"] = "someone else" },
		"image":       func(r *Record) { r.Image = nil },
		"location":    func(r *Record) { r.Location = "elsewhere" },
		"coordinate":  func(r *Record) { r.Coordinate = &Coordinate{0, 0} },
	}
	for name, mutate := range mutations {
		rec := sampleRecord()
		mutate(&rec)
		got, err := rec.ContentHash()
		require.NoError(t, err)
		require.NotEqual(t, base, got, "changing %s must change the fingerprint", name)
	}
}

func TestContentHashTimezoneIndependent(t *testing.T) {
	t.Parallel()

	rec := sampleRecord()
	base, err := rec.ContentHash()
	require.NoError(t, err)

	berlin := time.FixedZone("CET", 3600)
	rec.StartDate = rec.StartDate.In(berlin)
	rec.EndDate = rec.EndDate.In(berlin)
	got, err := rec.ContentHash()
	require.NoError(t, err)
	require.Equal(t, base, got, "same instant in another zone must hash identically")
}
