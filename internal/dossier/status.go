package dossier

import "strings"

// Status is the single workflow vocabulary for dossiers.
type Status string

const (
	StatusDraft          Status = "draft"
	StatusReceived       Status = "received"
	StatusInProgress     Status = "in_progress"
	StatusAwaitingClient Status = "awaiting_client"
	StatusSubmitted      Status = "submitted"
	StatusDone           Status = "done"
)

// Statuses lists every status in workflow order (admin console tabs).
var Statuses = []Status{
	StatusDraft, StatusReceived, StatusInProgress,
	StatusAwaitingClient, StatusSubmitted, StatusDone,
}

// transitions is the allowed workflow graph:
// draft → received → in_progress ↔ awaiting_client, in_progress → submitted → done.
var transitions = map[Status][]Status{
	StatusDraft:          {StatusReceived},
	StatusReceived:       {StatusInProgress},
	StatusInProgress:     {StatusAwaitingClient, StatusSubmitted},
	StatusAwaitingClient: {StatusInProgress},
	StatusSubmitted:      {StatusDone},
}

// Older admin screens wrote French labels; they are still accepted as input.
var statusAliases = map[string]Status{
	"recu":           StatusReceived,
	"reçu":           StatusReceived,
	"en_cours":       StatusInProgress,
	"attente_client": StatusAwaitingClient,
	"termine":        StatusDone,
	"terminé":        StatusDone,
}

// ParseStatus parses a status name or a legacy alias.
func ParseStatus(s string) (Status, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, st := range Statuses {
		if string(st) == s {
			return st, true
		}
	}
	st, ok := statusAliases[s]
	return st, ok
}

// CanTransition reports whether the workflow allows from → to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// answersEditable reports whether the client may still change answers.
func (s Status) answersEditable() bool {
	switch s {
	case StatusDraft, StatusReceived, StatusAwaitingClient:
		return true
	}
	return false
}
