package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/shaneweinberger/Finsight-V2.0/internal/domain"
)

// BigQueryPipelineRepository is the concrete store behind the pipeline's
// bronze, silver and context interfaces. It holds a shared BigQuery client to
// avoid creating a new connection for each operation.
type BigQueryPipelineRepository struct {
	client  *bigquery.Client
	dataset string
}

// NewBigQueryPipelineRepository creates a repository with a shared BigQuery
// client for the given project and dataset.
func NewBigQueryPipelineRepository(ctx context.Context, projectID, dataset string) (*BigQueryPipelineRepository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryPipelineRepository: creating client: %w", err)
	}
	return &BigQueryPipelineRepository{
		client:  client,
		dataset: dataset,
	}, nil
}

// Close closes the BigQuery client connection.
func (r *BigQueryPipelineRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// ListPending delegates to ListPendingRawRecordsWithClient with the shared client.
func (r *BigQueryPipelineRepository) ListPending(ctx context.Context, limit int) ([]domain.RawRecord, error) {
	return ListPendingRawRecordsWithClient(ctx, r.client, r.dataset, limit)
}

// UpdateStatus delegates to UpdateRawRecordStatusWithClient with the shared client.
func (r *BigQueryPipelineRepository) UpdateStatus(ctx context.Context, ids []string, status domain.RecordStatus, errorMessage string) error {
	return UpdateRawRecordStatusWithClient(ctx, r.client, r.dataset, ids, status, errorMessage)
}

// DeleteRecords delegates to DeleteRawRecordsWithClient with the shared client.
func (r *BigQueryPipelineRepository) DeleteRecords(ctx context.Context, ids []string) error {
	return DeleteRawRecordsWithClient(ctx, r.client, r.dataset, ids)
}

// InsertRawRecords delegates to InsertRawRecordsWithClient with the shared client.
func (r *BigQueryPipelineRepository) InsertRawRecords(ctx context.Context, records []domain.RawRecord) error {
	return InsertRawRecordsWithClient(ctx, r.client, r.dataset, records)
}

// UpsertTransactions delegates to UpsertTransactionsWithClient with the shared client.
func (r *BigQueryPipelineRepository) UpsertTransactions(ctx context.Context, txs []domain.CanonicalTransaction) error {
	return UpsertTransactionsWithClient(ctx, r.client, r.dataset, txs)
}

// DeleteTransactionsForUser delegates to DeleteTransactionsForUserWithClient
// with the shared client.
func (r *BigQueryPipelineRepository) DeleteTransactionsForUser(ctx context.Context, userID string) error {
	return DeleteTransactionsForUserWithClient(ctx, r.client, r.dataset, userID)
}

// ReprocessUser delegates to ReprocessUserWithClient with the shared client.
func (r *BigQueryPipelineRepository) ReprocessUser(ctx context.Context, userID string) error {
	return ReprocessUserWithClient(ctx, r.client, r.dataset, userID)
}

// ActivePrompt delegates to ActivePromptWithClient with the shared client.
func (r *BigQueryPipelineRepository) ActivePrompt(ctx context.Context) (string, error) {
	return ActivePromptWithClient(ctx, r.client, r.dataset)
}

// ListActiveRules delegates to ListActiveRulesWithClient with the shared client.
func (r *BigQueryPipelineRepository) ListActiveRules(ctx context.Context, userID string) ([]domain.Rule, error) {
	return ListActiveRulesWithClient(ctx, r.client, r.dataset, userID)
}

// ListCategories delegates to ListCategoriesWithClient with the shared client.
func (r *BigQueryPipelineRepository) ListCategories(ctx context.Context, userID string) ([]string, error) {
	return ListCategoriesWithClient(ctx, r.client, r.dataset, userID)
}
