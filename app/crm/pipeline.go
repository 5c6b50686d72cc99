// Package crm holds the per-user guest pipeline: opportunities, appearances and tasks.
//
// Opportunity status graph:
//
//	lead ──► pitched ──► negotiating ──► scheduled ──► recorded ──► aired
//	  │         │             │              │             │
//	  └─────────┴─────────────┴──────────────┴─────────────┴──► rejected ──► lead
//
// aired is terminal. rejected can only be reopened as a lead.
package crm

import (
	"fmt"
	"slices"
)

type Status string

const (
	StatusLead        Status = "lead"
	StatusPitched     Status = "pitched"
	StatusNegotiating Status = "negotiating"
	StatusScheduled   Status = "scheduled"
	StatusRecorded    Status = "recorded"
	StatusAired       Status = "aired"
	StatusRejected    Status = "rejected"
)

var validTransitions = map[Status][]Status{
	StatusLead:        {StatusPitched, StatusRejected},
	StatusPitched:     {StatusNegotiating, StatusRejected},
	StatusNegotiating: {StatusScheduled, StatusRejected},
	StatusScheduled:   {StatusRecorded, StatusRejected},
	StatusRecorded:    {StatusAired, StatusRejected},
	StatusRejected:    {StatusLead},
}

// ParseStatus is case-sensitive; stored values are lowercase.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusLead, StatusPitched, StatusNegotiating, StatusScheduled, StatusRecorded, StatusAired, StatusRejected:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown opportunity status %q", ErrInvalidValue, s)
}

func IsTransitionAllowed(from, to Status) bool {
	return slices.Contains(validTransitions[from], to)
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority maps "" to medium.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(s); p {
	case "":
		return PriorityMedium, nil
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown priority %q", ErrInvalidValue, s)
}
