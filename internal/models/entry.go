package models

import "time"

type Priority string

type Status string

const (
	PriorityNormal    Priority = "normal"
	PriorityUrgent    Priority = "urgent"
	PriorityEmergency Priority = "emergency"
)

const (
	StatusWaiting    Status = "waiting"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// FilterAll is the tab and priority selector that disables the respective filter.
const FilterAll = "all"

type QueueEntry struct {
	ID             string    `json:"id"`
	PatientID      string    `json:"patient_id"`
	PatientName    string    `json:"patient_name"`
	QueueNumber    int       `json:"queue_number"`
	ArrivalTime    time.Time `json:"arrival_time"`
	Condition      string    `json:"condition"`
	Priority       Priority  `json:"priority"`
	Status         Status    `json:"status"`
	AssignedDoctor *string   `json:"assigned_doctor,omitempty"`
	Notes          *string   `json:"notes,omitempty"`
}

// QueueFilter is the per-session view criteria. Status mirrors the active tab.
type QueueFilter struct {
	Status     string `json:"status,omitempty"`
	Priority   string `json:"priority,omitempty"`
	SearchTerm string `json:"search_term,omitempty"`
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityNormal, PriorityUrgent, PriorityEmergency:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusProcessing, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (e QueueEntry) Assignee() string {
	if e.AssignedDoctor == nil {
		return ""
	}
	return *e.AssignedDoctor
}

// Clone returns a copy that shares no pointers with e.
func (e QueueEntry) Clone() QueueEntry {
	out := e
	if e.AssignedDoctor != nil {
		v := *e.AssignedDoctor
		out.AssignedDoctor = &v
	}
	if e.Notes != nil {
		v := *e.Notes
		out.Notes = &v
	}
	return out
}

func StringPtr(value string) *string {
	return &value
}
