package pipeline

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/shaneweinberger/Finsight-V2.0/internal/domain"
)

// reconcile applies one user's classification results. Write ordering is
// fixed: physical deletions first, then canonical upserts, then bronze
// status updates, so a write failure never reports success for records that
// did not land.
func (p *Pipeline) reconcile(ctx context.Context, userID string, drafts []DraftTransaction, classifications []Classification) (UserResult, error) {
	byID := make(map[string]DraftTransaction, len(drafts))
	for _, d := range drafts {
		byID[d.ID] = d
	}

	var (
		deletions []string
		upserts   []domain.CanonicalTransaction
		processed []string
		responded = make(map[string]bool, len(classifications))
	)

	now := p.now()
	for _, item := range classifications {
		draft, ok := byID[item.ID]
		if !ok {
			// The classifier invented an id; nothing to apply it to.
			continue
		}
		responded[item.ID] = true

		if strings.EqualFold(strings.TrimSpace(item.Category), domain.DeleteSentinel) {
			deletions = append(deletions, item.ID)
			continue
		}

		description := strings.TrimSpace(item.Description)
		if description == "" {
			description = draft.Description
		}

		upserts = append(upserts, domain.CanonicalTransaction{
			ID:          uuid.NewString(),
			BronzeID:    item.ID,
			UserID:      userID,
			Description: description,
			Category:    item.Category,
			Amount:      draft.Amount,
			Date:        draft.Date,
			Type:        draft.Type,
			Account:     draft.Account,
			ProcessedAt: now,
		})
		processed = append(processed, item.ID)
	}

	// Records the classifier silently dropped are accepted without change;
	// marking them processed keeps them from re-queueing forever.
	for _, d := range drafts {
		if !responded[d.ID] {
			processed = append(processed, d.ID)
		}
	}

	result := UserResult{UserID: userID}

	if len(deletions) > 0 {
		if err := p.bronze.DeleteRecords(ctx, deletions); err != nil {
			// Deleted-queued records stay pending; the rest of the slice must
			// not report success either.
			p.log.Error().Str("user_id", userID).Err(err).Msg("Raw record deletion failed")
			return p.downgradeToError(ctx, userID, processed, err)
		}
		result.Deleted = len(deletions)
	}

	if len(upserts) > 0 {
		if err := p.silver.UpsertTransactions(ctx, upserts); err != nil {
			p.log.Error().Str("user_id", userID).Err(err).Msg("Canonical upsert failed")
			dr, derr := p.downgradeToError(ctx, userID, processed, err)
			dr.Deleted = result.Deleted
			return dr, derr
		}
	}

	if len(processed) > 0 {
		if err := p.bronze.UpdateStatus(ctx, processed, domain.StatusProcessed, ""); err != nil {
			return UserResult{}, &PersistenceError{Op: "mark processed for user " + userID, Err: err}
		}
		result.Processed = len(processed)
	}

	return result, nil
}

// downgradeToError redirects every id that would have been marked processed
// to error status before any success status is committed. The canonical
// write failure itself is recoverable: the cycle moves on to the next user.
func (p *Pipeline) downgradeToError(ctx context.Context, userID string, ids []string, cause error) (UserResult, error) {
	if len(ids) == 0 {
		return UserResult{UserID: userID}, nil
	}

	message := "Canonical write failed: " + cause.Error()
	if err := p.bronze.UpdateStatus(ctx, ids, domain.StatusError, message); err != nil {
		return UserResult{}, &PersistenceError{Op: "downgrade to error for user " + userID, Err: err}
	}

	return UserResult{UserID: userID, Errored: len(ids)}, nil
}
