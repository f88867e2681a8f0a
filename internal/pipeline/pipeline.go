package pipeline

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/shaneweinberger/Finsight-V2.0/internal/domain"
)

// parseFailureMessage is the fixed diagnostic written onto every record of a
// user slice whose classifier response could not be parsed.
const parseFailureMessage = "LLM Parsing Failed"

// Pipeline runs one batch cycle at a time: claim a slice of pending raw
// records, group by owner, classify each group, reconcile the results into
// the silver store and the bronze statuses.
type Pipeline struct {
	bronze     BronzeRepository
	silver     SilverRepository
	loader     *ContextLoader
	classifier Classifier
	batchSize  int
	now        func() time.Time
	log        zerolog.Logger
}

// New creates a pipeline. batchSize is the fixed slice size one cycle
// claims.
func New(bronze BronzeRepository, silver SilverRepository, contextRepo ContextRepository, classifier Classifier, batchSize int, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		bronze:     bronze,
		silver:     silver,
		loader:     NewContextLoader(contextRepo),
		classifier: classifier,
		batchSize:  batchSize,
		now:        time.Now,
		log:        log,
	}
}

// RunCycle executes one batch cycle. A backend transport failure aborts the
// cycle and is returned; a response-parse failure is contained to the user
// group it hit. An empty backlog yields a CycleResult with Empty set.
func (p *Pipeline) RunCycle(ctx context.Context) (*CycleResult, error) {
	records, err := p.bronze.ListPending(ctx, p.batchSize)
	if err != nil {
		return nil, &PersistenceError{Op: "list pending records", Err: err}
	}
	if len(records) == 0 {
		p.log.Debug().Msg("No pending records")
		return &CycleResult{Empty: true}, nil
	}

	// Resolve the prompt once for the whole invocation.
	prompt, err := p.loader.ActivePrompt(ctx)
	if err != nil {
		return nil, err
	}

	byUser := groupByUser(records)
	userIDs := make([]string, 0, len(byUser))
	for id := range byUser {
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)

	p.log.Info().
		Int("records", len(records)).
		Int("users", len(userIDs)).
		Msg("Starting batch cycle")

	result := &CycleResult{}
	for _, userID := range userIDs {
		userRecords := byUser[userID]

		ur, err := p.processUserGroup(ctx, userID, prompt, userRecords)
		if err != nil {
			// Transport and store failures abort the invocation. Groups
			// already completed in this run stand; there is no rollback.
			return nil, err
		}

		result.Users = append(result.Users, ur)
		result.Processed += ur.Processed
		result.Deleted += ur.Deleted
		result.Errored += ur.Errored
	}

	p.log.Info().
		Int("processed", result.Processed).
		Int("deleted", result.Deleted).
		Int("errored", result.Errored).
		Msg("Batch cycle finished")

	return result, nil
}

// processUserGroup classifies and reconciles one user's slice. A
// response-parse failure converts the whole slice to error status and is
// swallowed so the next group can proceed.
func (p *Pipeline) processUserGroup(ctx context.Context, userID, prompt string, records []domain.RawRecord) (UserResult, error) {
	uctx, err := p.loader.Load(ctx, userID, prompt)
	if err != nil {
		return UserResult{}, err
	}

	drafts := Normalize(records, p.now())

	classifications, err := p.classifier.Classify(ctx, ClassifyRequest{
		UserID:          userID,
		Prompt:          uctx.Prompt,
		Categories:      uctx.Categories,
		StructuredRules: uctx.StructuredRules,
		FreeTextRules:   uctx.FreeTextRules,
		Transactions:    drafts,
	})
	if err != nil {
		var parseErr *ResponseParseError
		if errors.As(err, &parseErr) {
			p.log.Error().
				Str("user_id", userID).
				Err(parseErr.Err).
				Msg("Unparseable classifier response, marking slice as errored")

			ids := recordIDs(records)
			if uerr := p.bronze.UpdateStatus(ctx, ids, domain.StatusError, parseFailureMessage); uerr != nil {
				return UserResult{}, &PersistenceError{Op: "mark parse failure for user " + userID, Err: uerr}
			}
			return UserResult{UserID: userID, Errored: len(ids)}, nil
		}
		return UserResult{}, err
	}

	return p.reconcile(ctx, userID, drafts, classifications)
}

func groupByUser(records []domain.RawRecord) map[string][]domain.RawRecord {
	byUser := make(map[string][]domain.RawRecord)
	for _, rec := range records {
		byUser[rec.UserID] = append(byUser[rec.UserID], rec)
	}
	return byUser
}

func recordIDs(records []domain.RawRecord) []string {
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	return ids
}
