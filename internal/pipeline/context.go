package pipeline

import (
	"context"

	"github.com/shaneweinberger/Finsight-V2.0/internal/domain"
)

// DefaultPrompt is used when no active prompt template is configured.
const DefaultPrompt = "Categorize these transactions."

// UserContext is everything the classifier needs to know about one user:
// the resolved prompt, the rule set split into its two variants, and the
// closed category vocabulary.
type UserContext struct {
	UserID          string
	Prompt          string
	StructuredRules []domain.Rule
	FreeTextRules   []domain.Rule
	Categories      []string
}

// ContextLoader fetches per-user classification context from the store.
// Rules are supplied as context to the classifier, not executed here.
type ContextLoader struct {
	repo ContextRepository
}

// NewContextLoader creates a loader backed by the given repository.
func NewContextLoader(repo ContextRepository) *ContextLoader {
	return &ContextLoader{repo: repo}
}

// ActivePrompt resolves the prompt template once per invocation. The result
// is passed down to every user group in the run and never re-read mid-run.
func (l *ContextLoader) ActivePrompt(ctx context.Context) (string, error) {
	prompt, err := l.repo.ActivePrompt(ctx)
	if err != nil {
		return "", &PersistenceError{Op: "load active prompt", Err: err}
	}
	if prompt == "" {
		prompt = DefaultPrompt
	}
	return prompt, nil
}

// Load fetches one user's rules and categories, partitioning the rules into
// structured and free-text variants. The repository already orders rules by
// descending priority; the partition preserves that order.
func (l *ContextLoader) Load(ctx context.Context, userID, prompt string) (*UserContext, error) {
	rules, err := l.repo.ListActiveRules(ctx, userID)
	if err != nil {
		return nil, &PersistenceError{Op: "load rules for user " + userID, Err: err}
	}

	categories, err := l.repo.ListCategories(ctx, userID)
	if err != nil {
		return nil, &PersistenceError{Op: "load categories for user " + userID, Err: err}
	}

	uctx := &UserContext{
		UserID:     userID,
		Prompt:     prompt,
		Categories: categories,
	}
	for _, r := range rules {
		if r.IsStructured() {
			uctx.StructuredRules = append(uctx.StructuredRules, r)
		} else {
			uctx.FreeTextRules = append(uctx.FreeTextRules, r)
		}
	}

	return uctx, nil
}
