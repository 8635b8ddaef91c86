package core

import (
	"strings"
	"time"
)

// Kind identifies one of the four financial record collections.
type Kind string

const (
	KindBudget     Kind = "budget"
	KindExpense    Kind = "expense"
	KindInvestment Kind = "investment"
	KindGoal       Kind = "goal"
)

// Kinds lists all record kinds in a stable order.
var Kinds = []Kind{KindBudget, KindExpense, KindInvestment, KindGoal}

// Valid reports whether k names a known record kind.
func (k Kind) Valid() bool {
	switch k {
	case KindBudget, KindExpense, KindInvestment, KindGoal:
		return true
	}
	return false
}

// MirrorKey is the key under which this kind's records live in the local
// mirror document. Historical plural/singular inconsistency is part of the
// persisted format and kept as is.
func (k Kind) MirrorKey() string {
	switch k {
	case KindBudget:
		return "budget"
	case KindExpense:
		return "expenses"
	case KindInvestment:
		return "investments"
	case KindGoal:
		return "goals"
	}
	return string(k)
}

// APIPath is the record store path for this kind, e.g. "/api/budget".
func (k Kind) APIPath() string {
	return "/api/" + string(k)
}

// Record is a single user-submitted financial fact. One flat struct covers
// all four kinds; kind-specific fields are empty for the other kinds, and
// omitted on the wire.
type Record struct {
	// ServerID is assigned by the record store on creation and is the
	// permanent identity. ClientID is a session-local stand-in used until
	// the store confirms; a record always carries at least one of the two.
	ServerID string `json:"_id,omitempty"`
	ClientID int64  `json:"client_id,omitempty"`

	Owner  string    `json:"user_id"`
	Date   time.Time `json:"date"`
	Amount Amount    `json:"amount"`

	// Budget
	Source string `json:"source,omitempty"`
	// Expense
	Reason string `json:"reason,omitempty"`
	// Investment
	Company string  `json:"company,omitempty"`
	Type    string  `json:"type,omitempty"`
	Returns *Amount `json:"returns,omitempty"`
	// Goal
	Name     string   `json:"name,omitempty"`
	Deadline string   `json:"deadline,omitempty"`
	Progress *float64 `json:"progress,omitempty"`
}

// HasIdentity reports whether the record carries at least one identity.
// Records failing this must never be rendered or persisted.
func (r Record) HasIdentity() bool {
	return r.ServerID != "" || r.ClientID != 0
}

// Matches reports whether the record answers to the given identity, by
// server id once assigned, client id otherwise.
func (r Record) Matches(serverID string, clientID int64) bool {
	if serverID != "" && r.ServerID == serverID {
		return true
	}
	return clientID != 0 && r.ClientID == clientID
}

// Validate checks the record against the requirements of its kind.
func (r Record) Validate(kind Kind) error {
	if !kind.Valid() {
		return &ValidationError{Field: "kind", Reason: "unknown kind " + string(kind)}
	}
	if strings.TrimSpace(r.Owner) == "" {
		return ErrUnauthenticated
	}
	if r.Date.IsZero() {
		return &ValidationError{Field: "date", Reason: "empty"}
	}
	switch kind {
	case KindBudget:
		if strings.TrimSpace(r.Source) == "" {
			return &ValidationError{Field: "source", Reason: "empty"}
		}
	case KindExpense:
		if strings.TrimSpace(r.Reason) == "" {
			return &ValidationError{Field: "reason", Reason: "empty"}
		}
	case KindInvestment:
		if strings.TrimSpace(r.Company) == "" {
			return &ValidationError{Field: "company", Reason: "empty"}
		}
		if strings.TrimSpace(r.Type) == "" {
			return &ValidationError{Field: "type", Reason: "empty"}
		}
		if r.Returns == nil {
			return &ValidationError{Field: "returns", Reason: "empty"}
		}
	case KindGoal:
		if strings.TrimSpace(r.Name) == "" {
			return &ValidationError{Field: "name", Reason: "empty"}
		}
		if _, err := time.Parse("2006-01-02", r.Deadline); err != nil {
			return &ValidationError{Field: "deadline", Reason: "want YYYY-MM-DD"}
		}
	}
	return nil
}

// KindField returns the value of the record's primary kind-specific field,
// the one export rows and listings label the record with.
func (r Record) KindField(kind Kind) string {
	switch kind {
	case KindBudget:
		return r.Source
	case KindExpense:
		return r.Reason
	case KindInvestment:
		return r.Company
	case KindGoal:
		return r.Name
	}
	return ""
}
