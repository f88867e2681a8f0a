package domain

import (
	"time"
)

// RecordStatus is the lifecycle status of a raw bronze record.
type RecordStatus string

const (
	StatusPending   RecordStatus = "pending"
	StatusProcessed RecordStatus = "processed"
	StatusError     RecordStatus = "error"
)

// TransactionType is the money direction of a transaction, derived from the
// sign of the normalized amount.
type TransactionType string

const (
	TypeExpenditure TransactionType = "Expenditure"
	TypeIncome      TransactionType = "Income"
)

// DeleteSentinel is the reserved category value instructing the pipeline to
// discard a raw record instead of producing a canonical transaction. Matched
// case-insensitively.
const DeleteSentinel = "DELETE"

// RawRecord is one unprocessed statement line in the bronze store. The Raw*
// fields carry the statement text exactly as uploaded; only the pipeline
// interprets them.
type RawRecord struct {
	ID             string
	UserID         string
	FileID         string
	FileName       string
	Account        string
	RawDate        string
	RawDescription string
	RawMoneyOut    string
	RawMoneyIn     string
	RawBalance     string
	Status         RecordStatus
	ErrorMessage   string
	CreatedAt      time.Time
}

// CanonicalTransaction is the cleaned, categorized silver record derived from
// exactly one raw record. BronzeID is unique in the silver store; Amount,
// Date, Type and Account come from normalization and are never taken from
// classifier output.
type CanonicalTransaction struct {
	ID          string
	BronzeID    string
	UserID      string
	Description string
	Category    string
	Amount      float64
	Date        time.Time
	Type        TransactionType
	Account     string
	ProcessedAt time.Time
	Edited      bool
}

// RuleKind distinguishes the two mutually exclusive forms a user rule
// may take.
type RuleKind string

const (
	// RuleKindCondition is a structured {field, operator, value} rule with a
	// category action.
	RuleKindCondition RuleKind = "condition"
	// RuleKindInstruction is a free-text instruction passed to the
	// classifier verbatim.
	RuleKindInstruction RuleKind = "instruction"
)

// RuleCondition is the structured trigger of a condition rule.
// Field is one of "description", "amount", "transaction_type";
// Operator is one of "contains", "equals", "greater_than", "less_than".
type RuleCondition struct {
	Field    string
	Operator string
	Value    string
}

// RuleAction is what a condition rule assigns when it matches.
type RuleAction struct {
	Category            string
	DescriptionOverride string
}

// Rule is a user-authored classification rule. Exactly one of the two
// variants is populated: Condition+Action when Kind is RuleKindCondition,
// Instruction when Kind is RuleKindInstruction. Rules are supplied to the
// classifier as context, not executed deterministically by the pipeline.
type Rule struct {
	ID       string
	UserID   string
	Name     string
	Priority int
	Active   bool
	Kind     RuleKind

	Condition *RuleCondition
	Action    *RuleAction

	Instruction string
}

// IsStructured reports whether the rule is the structured variant.
func (r Rule) IsStructured() bool {
	return r.Kind == RuleKindCondition
}
