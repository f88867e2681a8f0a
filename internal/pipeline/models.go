package pipeline

import (
	"time"

	"github.com/shaneweinberger/Finsight-V2.0/internal/domain"
)

// DraftTransaction is the normalized projection of one raw record. Amount,
// Date, Type and Account are fixed here and never re-derived from classifier
// output.
type DraftTransaction struct {
	ID          string
	Description string
	Amount      float64
	Date        time.Time
	Type        domain.TransactionType
	Account     string
}

// Classification is one element of the classifier's response array. The JSON
// keys match what the prompt instructs the model to emit.
type Classification struct {
	ID          string `json:"uuid"`
	Category    string `json:"final_category"`
	Description string `json:"final_description"`
}

// ClassifyRequest is one classification request: everything the backend
// needs for a single user's slice in one cycle. Transactions carry only the
// minimal projection; date, type and account are withheld to bound payload
// size.
type ClassifyRequest struct {
	UserID          string
	Prompt          string
	Categories      []string
	StructuredRules []domain.Rule
	FreeTextRules   []domain.Rule
	Transactions    []DraftTransaction
}

// UserResult summarizes reconciliation for one user group in one cycle.
type UserResult struct {
	UserID    string `json:"user_id"`
	Processed int    `json:"processed"`
	Deleted   int    `json:"deleted"`
	Errored   int    `json:"errored"`
}

// CycleResult summarizes one batch cycle.
type CycleResult struct {
	Empty     bool         `json:"empty"`
	Processed int          `json:"processed"`
	Deleted   int          `json:"deleted"`
	Errored   int          `json:"errored"`
	Users     []UserResult `json:"users,omitempty"`
}

// newlyProcessed is the number of records the cycle moved out of pending via
// the happy paths (canonical write, omission, or deletion).
func (r *CycleResult) newlyProcessed() int {
	return r.Processed + r.Deleted
}

// DrainResult aggregates successive cycles of one drain invocation.
type DrainResult struct {
	Cycles    int `json:"cycles"`
	Processed int `json:"processed"`
	Deleted   int `json:"deleted"`
	Errored   int `json:"errored"`
}
