package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/shaneweinberger/Finsight-V2.0/internal/domain"
)

// ActivePromptWithClient returns the text of the active prompt template, or
// "" when none is configured. Should more than one row be flagged active, the
// most recently updated one wins, so the result is deterministic.
func ActivePromptWithClient(ctx context.Context, client *bigquery.Client, dataset string) (string, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT prompt_text
		FROM %s.%s
		WHERE is_active = TRUE
		ORDER BY updated_ts DESC
		LIMIT 1
	`, dataset, promptsTable))

	it, err := q.Read(ctx)
	if err != nil {
		return "", fmt.Errorf("ActivePrompt: query read: %w", err)
	}

	var row struct {
		PromptText string `bigquery:"prompt_text"`
	}
	err = it.Next(&row)
	if err == iterator.Done {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("ActivePrompt: iter next: %w", err)
	}

	return row.PromptText, nil
}

// ListActiveRulesWithClient returns the user's active rules, highest priority
// first.
func ListActiveRulesWithClient(ctx context.Context, client *bigquery.Client, dataset, userID string) ([]domain.Rule, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			rule_id,
			user_id,
			name,
			priority,
			is_active,
			rule_type,
			field,
			operator,
			value,
			category,
			description_override,
			instruction
		FROM %s.%s
		WHERE user_id = @user_id
		  AND is_active = TRUE
		ORDER BY priority DESC
	`, dataset, rulesTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListActiveRules: query read: %w", err)
	}

	var rules []domain.Rule
	for {
		var r RuleRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListActiveRules: iter next: %w", err)
		}
		rules = append(rules, r.ToDomain())
	}

	return rules, nil
}

// ListCategoriesWithClient returns the user's category vocabulary, sorted by
// name.
func ListCategoriesWithClient(ctx context.Context, client *bigquery.Client, dataset, userID string) ([]string, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT user_id, name
		FROM %s.%s
		WHERE user_id = @user_id
		ORDER BY name
	`, dataset, categoriesTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListCategories: query read: %w", err)
	}

	var names []string
	for {
		var r CategoryRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListCategories: iter next: %w", err)
		}
		names = append(names, r.Name)
	}

	return names, nil
}
