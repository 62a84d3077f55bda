// Package patients is the patient-identity lookup used by intake.
package patients

import (
	"context"
	"errors"
	"sort"
	"sync"

	"qms/patient-queue/internal/models"
)

var ErrPatientNotFound = errors.New("patient not found")

type Directory interface {
	Lookup(ctx context.Context, patientID string) (models.Patient, error)
	List(ctx context.Context) ([]models.Patient, error)
}

// Memory is a Directory over a fixed patient list.
type Memory struct {
	mu    sync.RWMutex
	byID  map[string]models.Patient
	order []string
}

func NewMemory(patients []models.Patient) *Memory {
	m := &Memory{byID: make(map[string]models.Patient, len(patients))}
	for _, patient := range patients {
		m.put(patient)
	}
	return m
}

func (m *Memory) Lookup(_ context.Context, patientID string) (models.Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	patient, ok := m.byID[patientID]
	if !ok {
		return models.Patient{}, ErrPatientNotFound
	}
	return patient, nil
}

// List returns patients sorted by name, for the quick-select list.
func (m *Memory) List(_ context.Context) ([]models.Patient, error) {
	m.mu.RLock()
	out := make([]models.Patient, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.byID[id])
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Upsert records a patient seen at intake so later lookups resolve it.
func (m *Memory) Upsert(patient models.Patient) {
	if patient.PatientID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(patient)
}

func (m *Memory) put(patient models.Patient) {
	if _, exists := m.byID[patient.PatientID]; !exists {
		m.order = append(m.order, patient.PatientID)
	}
	m.byID[patient.PatientID] = patient
}
