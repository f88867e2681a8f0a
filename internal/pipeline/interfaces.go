package pipeline

import (
	"context"

	"github.com/shaneweinberger/Finsight-V2.0/internal/domain"
)

// BronzeRepository is the raw-record store as seen by the pipeline.
type BronzeRepository interface {
	// ListPending returns up to limit pending records across all users,
	// oldest first.
	ListPending(ctx context.Context, limit int) ([]domain.RawRecord, error)
	// UpdateStatus sets status and error message on every listed record.
	UpdateStatus(ctx context.Context, ids []string, status domain.RecordStatus, errorMessage string) error
	// DeleteRecords physically removes records (deletion side-channel).
	DeleteRecords(ctx context.Context, ids []string) error
}

// SilverRepository is the canonical-transaction store as seen by the
// pipeline.
type SilverRepository interface {
	// UpsertTransactions writes canonical rows keyed on their bronze
	// reference; applying the same payload twice leaves exactly one row.
	UpsertTransactions(ctx context.Context, txs []domain.CanonicalTransaction) error
}

// ContextRepository supplies per-user classification context.
type ContextRepository interface {
	// ActivePrompt returns the active prompt template text, "" when none is
	// configured.
	ActivePrompt(ctx context.Context) (string, error)
	// ListActiveRules returns the user's active rules, highest priority
	// first.
	ListActiveRules(ctx context.Context, userID string) ([]domain.Rule, error)
	// ListCategories returns the user's category vocabulary.
	ListCategories(ctx context.Context, userID string) ([]string, error)
}

// Reprocessor resets a user's pipeline state: all canonical rows removed,
// all non-pending raw records back to pending.
type Reprocessor interface {
	ReprocessUser(ctx context.Context, userID string) error
}

// Classifier is the external classification backend as an opaque capability.
// Implementations return a BackendError for transport-level failures and a
// ResponseParseError when the response cannot be read as a classification
// array.
type Classifier interface {
	Classify(ctx context.Context, req ClassifyRequest) ([]Classification, error)
}
