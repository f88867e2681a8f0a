package bigquery

import (
	"time"

	"cloud.google.com/go/civil"

	"github.com/shaneweinberger/Finsight-V2.0/internal/domain"
)

// Table names within the configured dataset.
const (
	bronzeTable     = "bronze_transactions"
	silverTable     = "silver_transactions"
	rulesTable      = "user_rules"
	categoriesTable = "user_categories"
	promptsTable    = "llm_prompts"
)

// RawRecordRow is a row of the bronze transactions table. The raw_* columns
// hold statement text exactly as uploaded.
type RawRecordRow struct {
	ID             string    `bigquery:"id"`
	UserID         string    `bigquery:"user_id"`
	FileID         string    `bigquery:"file_id"`
	FileName       string    `bigquery:"file_name"`
	Account        string    `bigquery:"account"`
	RawDate        string    `bigquery:"raw_date"`
	RawDescription string    `bigquery:"raw_description"`
	RawMoneyOut    string    `bigquery:"raw_money_out"`
	RawMoneyIn     string    `bigquery:"raw_money_in"`
	RawBalance     string    `bigquery:"raw_balance"`
	Status         string    `bigquery:"status"`
	ErrorMessage   string    `bigquery:"error_message"`
	CreatedTS      time.Time `bigquery:"created_ts"`
}

// SilverRow is a row of the silver transactions table. bronze_id is unique:
// the MERGE in UpsertTransactionsWithClient keys on it.
type SilverRow struct {
	TransactionID string     `bigquery:"transaction_id"`
	BronzeID      string     `bigquery:"bronze_id"`
	UserID        string     `bigquery:"user_id"`
	Description   string     `bigquery:"description"`
	Category      string     `bigquery:"category"`
	Amount        float64    `bigquery:"amount"`
	Date          civil.Date `bigquery:"date"`
	Type          string     `bigquery:"type"`
	Account       string     `bigquery:"account"`
	ProcessedTS   time.Time  `bigquery:"processed_ts"`
	IsEdited      bool       `bigquery:"is_edited"`
}

// RuleRow is a row of the user rules table. rule_type selects which column
// group is meaningful: "condition" rows use field/operator/value/category/
// description_override, "instruction" rows use instruction.
type RuleRow struct {
	RuleID              string `bigquery:"rule_id"`
	UserID              string `bigquery:"user_id"`
	Name                string `bigquery:"name"`
	Priority            int64  `bigquery:"priority"`
	IsActive            bool   `bigquery:"is_active"`
	RuleType            string `bigquery:"rule_type"`
	Field               string `bigquery:"field"`
	Operator            string `bigquery:"operator"`
	Value               string `bigquery:"value"`
	Category            string `bigquery:"category"`
	DescriptionOverride string `bigquery:"description_override"`
	Instruction         string `bigquery:"instruction"`
}

// CategoryRow is a row of the per-user category vocabulary table.
type CategoryRow struct {
	UserID string `bigquery:"user_id"`
	Name   string `bigquery:"name"`
}

// PromptRow is a row of the prompt configuration table.
type PromptRow struct {
	PromptID   string    `bigquery:"prompt_id"`
	PromptText string    `bigquery:"prompt_text"`
	IsActive   bool      `bigquery:"is_active"`
	UpdatedTS  time.Time `bigquery:"updated_ts"`
}

// ToDomain converts a bronze row into the domain representation.
func (r *RawRecordRow) ToDomain() domain.RawRecord {
	return domain.RawRecord{
		ID:             r.ID,
		UserID:         r.UserID,
		FileID:         r.FileID,
		FileName:       r.FileName,
		Account:        r.Account,
		RawDate:        r.RawDate,
		RawDescription: r.RawDescription,
		RawMoneyOut:    r.RawMoneyOut,
		RawMoneyIn:     r.RawMoneyIn,
		RawBalance:     r.RawBalance,
		Status:         domain.RecordStatus(r.Status),
		ErrorMessage:   r.ErrorMessage,
		CreatedAt:      r.CreatedTS,
	}
}

// NewRawRecordRow converts a domain raw record into its bronze row.
func NewRawRecordRow(rec domain.RawRecord) *RawRecordRow {
	return &RawRecordRow{
		ID:             rec.ID,
		UserID:         rec.UserID,
		FileID:         rec.FileID,
		FileName:       rec.FileName,
		Account:        rec.Account,
		RawDate:        rec.RawDate,
		RawDescription: rec.RawDescription,
		RawMoneyOut:    rec.RawMoneyOut,
		RawMoneyIn:     rec.RawMoneyIn,
		RawBalance:     rec.RawBalance,
		Status:         string(rec.Status),
		ErrorMessage:   rec.ErrorMessage,
		CreatedTS:      rec.CreatedAt,
	}
}

// ToDomain converts a rule row into the tagged-variant domain rule.
func (r *RuleRow) ToDomain() domain.Rule {
	rule := domain.Rule{
		ID:       r.RuleID,
		UserID:   r.UserID,
		Name:     r.Name,
		Priority: int(r.Priority),
		Active:   r.IsActive,
		Kind:     domain.RuleKind(r.RuleType),
	}
	switch rule.Kind {
	case domain.RuleKindCondition:
		rule.Condition = &domain.RuleCondition{
			Field:    r.Field,
			Operator: r.Operator,
			Value:    r.Value,
		}
		rule.Action = &domain.RuleAction{
			Category:            r.Category,
			DescriptionOverride: r.DescriptionOverride,
		}
	case domain.RuleKindInstruction:
		rule.Instruction = r.Instruction
	}
	return rule
}
