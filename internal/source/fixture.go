// Package source provides the data collaborators the queue hydrates from.
package source

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"qms/patient-queue/internal/models"
)

//go:embed fixtures/default.yaml
var defaultFixture []byte

// Source returns the current queue entries or fails with a transport or
// availability error.
type Source interface {
	Fetch(ctx context.Context) ([]models.QueueEntry, error)
}

type Document struct {
	Patients []models.Patient `yaml:"patients"`
	Queue    []fixtureEntry   `yaml:"queue"`
}

type fixtureEntry struct {
	ID                string `yaml:"id"`
	PatientID         string `yaml:"patient_id"`
	PatientName       string `yaml:"patient_name"`
	QueueNumber       int    `yaml:"queue_number"`
	ArrivalTime       string `yaml:"arrival_time"`
	ArrivedMinutesAgo *int   `yaml:"arrived_minutes_ago"`
	Condition         string `yaml:"condition"`
	Priority          string `yaml:"priority"`
	Status            string `yaml:"status"`
	AssignedDoctor    string `yaml:"assigned_doctor"`
	Notes             string `yaml:"notes"`
}

type FixtureOptions struct {
	// Latency simulates a slow backend on every Fetch.
	Latency time.Duration
	Now     func() time.Time
}

// Fixture serves queue entries and patients parsed from a YAML document.
type Fixture struct {
	doc     Document
	latency time.Duration
	now     func() time.Time
}

func ParseFixture(data []byte, options FixtureOptions) (*Fixture, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	now := options.Now
	if now == nil {
		now = time.Now
	}
	return &Fixture{doc: doc, latency: options.Latency, now: now}, nil
}

// LoadFixture reads path, or the embedded default fixture when path is empty.
func LoadFixture(path string, options FixtureOptions) (*Fixture, error) {
	if path == "" {
		return ParseFixture(defaultFixture, options)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	return ParseFixture(data, options)
}

func (f *Fixture) Fetch(ctx context.Context) ([]models.QueueEntry, error) {
	if f.latency > 0 {
		timer := time.NewTimer(f.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	now := f.now()
	entries := make([]models.QueueEntry, 0, len(f.doc.Queue))
	for _, raw := range f.doc.Queue {
		entries = append(entries, raw.toEntry(now))
	}
	return entries, nil
}

func (f *Fixture) Patients() []models.Patient {
	out := make([]models.Patient, len(f.doc.Patients))
	copy(out, f.doc.Patients)
	return out
}

func (e fixtureEntry) toEntry(now time.Time) models.QueueEntry {
	entry := models.QueueEntry{
		ID:          strings.TrimSpace(e.ID),
		PatientID:   strings.TrimSpace(e.PatientID),
		PatientName: strings.TrimSpace(e.PatientName),
		QueueNumber: e.QueueNumber,
		ArrivalTime: parseArrival(e.ArrivalTime, e.ArrivedMinutesAgo, now),
		Condition:   strings.TrimSpace(e.Condition),
		Priority:    models.Priority(strings.TrimSpace(e.Priority)),
		Status:      models.Status(strings.TrimSpace(e.Status)),
	}
	if doctor := strings.TrimSpace(e.AssignedDoctor); doctor != "" {
		entry.AssignedDoctor = models.StringPtr(doctor)
	}
	if notes := strings.TrimSpace(e.Notes); notes != "" {
		entry.Notes = models.StringPtr(notes)
	}
	return entry
}

// parseArrival leaves the zero time when the timestamp cannot be read; the
// entry still loads and renders its wait time as unknown.
func parseArrival(raw string, minutesAgo *int, now time.Time) time.Time {
	if minutesAgo != nil {
		return now.Add(-time.Duration(*minutesAgo) * time.Minute).UTC()
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}

// Static is a fixed in-memory source, mostly for tests and empty boots.
type Static struct {
	Entries []models.QueueEntry
	Err     error
}

func (s Static) Fetch(ctx context.Context) ([]models.QueueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]models.QueueEntry, len(s.Entries))
	for i, entry := range s.Entries {
		out[i] = entry.Clone()
	}
	return out, nil
}
