// Package queue holds the queue's viewer-facing logic: projection by tab and
// filter, role eligibility, presentation, intake validation, and the service
// and viewing sessions that tie them to a store.
package queue

import (
	"fmt"
	"strconv"
	"strings"

	"qms/patient-queue/internal/models"
)

// Project returns the entries visible under tab and filter, in store order.
// tab selects a status; filter.Status is ignored in favour of tab.
func Project(entries []models.QueueEntry, tab string, filter models.QueueFilter) []models.QueueEntry {
	term := strings.ToLower(strings.TrimSpace(filter.SearchTerm))
	out := make([]models.QueueEntry, 0, len(entries))
	for _, entry := range entries {
		if active(tab) && string(entry.Status) != tab {
			continue
		}
		if active(filter.Priority) && string(entry.Priority) != filter.Priority {
			continue
		}
		if term != "" && !matchesTerm(entry, term) {
			continue
		}
		out = append(out, entry)
	}
	return out
}

func active(selector string) bool {
	return selector != "" && selector != models.FilterAll
}

func matchesTerm(entry models.QueueEntry, term string) bool {
	return strings.Contains(strings.ToLower(entry.PatientName), term) ||
		strings.Contains(strings.ToLower(entry.Condition), term) ||
		strings.Contains(strconv.Itoa(entry.QueueNumber), term)
}

type Summary struct {
	Total      int    `json:"total"`
	Waiting    int    `json:"waiting"`
	Processing int    `json:"processing"`
	Text       string `json:"text"`
}

// Summarize counts a projected slice for the queue status card.
func Summarize(entries []models.QueueEntry) Summary {
	s := Summary{Total: len(entries)}
	for _, entry := range entries {
		switch entry.Status {
		case models.StatusWaiting:
			s.Waiting++
		case models.StatusProcessing:
			s.Processing++
		}
	}
	s.Text = fmt.Sprintf("%d patients waiting, %d in progress", s.Waiting, s.Processing)
	return s
}
