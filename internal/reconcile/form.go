package reconcile

import (
	"strconv"
	"strings"
	"time"

	"finova/internal/core"
)

// FormFields carries the raw submission form input. Only the fields for the
// submitted kind are consulted; all values arrive as strings and are parsed
// here, before any network call.
type FormFields struct {
	Amount string

	// Budget
	Source string
	// Expense
	Reason string
	// Investment
	Company string
	Type    string
	Returns string
	// Goal. Savings is what has been put aside so far; progress is derived
	// from it against the target amount. Progress itself is only consulted
	// when a record already carrying one is edited.
	Name     string
	Deadline string
	Savings  string
	Progress string
}

// buildRecord validates the form and constructs the record to send, stamping
// owner and the submission time. Validation failures leave no trace; the
// caller's state is untouched.
func buildRecord(kind core.Kind, owner string, now time.Time, f FormFields) (core.Record, error) {
	amount, err := core.ParseAmount(f.Amount)
	if err != nil {
		return core.Record{}, err
	}

	rec := core.Record{
		Owner:  owner,
		Date:   now,
		Amount: amount,
	}

	switch kind {
	case core.KindBudget:
		rec.Source = strings.TrimSpace(f.Source)
	case core.KindExpense:
		rec.Reason = strings.TrimSpace(f.Reason)
	case core.KindInvestment:
		rec.Company = strings.TrimSpace(f.Company)
		rec.Type = strings.TrimSpace(f.Type)
		returns, err := core.ParseAmount(f.Returns)
		if err != nil {
			return core.Record{}, &core.ValidationError{Field: "returns", Reason: "not a number"}
		}
		rec.Returns = &returns
	case core.KindGoal:
		rec.Name = strings.TrimSpace(f.Name)
		rec.Deadline = strings.TrimSpace(f.Deadline)
		if sv := strings.TrimSpace(f.Savings); sv != "" {
			savings, err := core.ParseAmount(sv)
			if err != nil {
				return core.Record{}, &core.ValidationError{Field: "savings", Reason: "not a number"}
			}
			progress := core.GoalProgress(savings, amount)
			rec.Progress = &progress
		} else if p := strings.TrimSpace(f.Progress); p != "" {
			progress, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return core.Record{}, &core.ValidationError{Field: "progress", Reason: "not a number"}
			}
			rec.Progress = &progress
		}
	}

	if err := rec.Validate(kind); err != nil {
		return core.Record{}, err
	}
	return rec, nil
}

// formFromRecord loads a record back into form fields for editing.
func formFromRecord(kind core.Kind, rec core.Record) FormFields {
	f := FormFields{Amount: rec.Amount.String()}
	switch kind {
	case core.KindBudget:
		f.Source = rec.Source
	case core.KindExpense:
		f.Reason = rec.Reason
	case core.KindInvestment:
		f.Company = rec.Company
		f.Type = rec.Type
		if rec.Returns != nil {
			f.Returns = rec.Returns.String()
		}
	case core.KindGoal:
		f.Name = rec.Name
		f.Deadline = rec.Deadline
		if rec.Progress != nil {
			f.Progress = strconv.FormatFloat(*rec.Progress, 'f', -1, 64)
		}
	}
	return f
}
