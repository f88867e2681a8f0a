package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/shaneweinberger/Finsight-V2.0/internal/domain"
)

// ListPendingRawRecordsWithClient returns up to limit pending bronze records
// across all users, oldest first. This is a plain filtered read, not an
// atomic claim; the sequential drain loop is what keeps two cycles from
// working the same slice.
func ListPendingRawRecordsWithClient(ctx context.Context, client *bigquery.Client, dataset string, limit int) ([]domain.RawRecord, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			id,
			user_id,
			file_id,
			file_name,
			account,
			raw_date,
			raw_description,
			raw_money_out,
			raw_money_in,
			raw_balance,
			status,
			error_message,
			created_ts
		FROM %s.%s
		WHERE status = @status
		ORDER BY created_ts
		LIMIT @limit
	`, dataset, bronzeTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: string(domain.StatusPending)},
		{Name: "limit", Value: int64(limit)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListPendingRawRecords: query read: %w", err)
	}

	var records []domain.RawRecord
	for {
		var r RawRecordRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListPendingRawRecords: iter next: %w", err)
		}
		records = append(records, r.ToDomain())
	}

	return records, nil
}

// UpdateRawRecordStatusWithClient sets the status and error message on every
// record in ids.
func UpdateRawRecordStatusWithClient(ctx context.Context, client *bigquery.Client, dataset string, ids []string, status domain.RecordStatus, errorMessage string) error {
	if len(ids) == 0 {
		return nil
	}

	q := client.Query(fmt.Sprintf(`
		UPDATE %s.%s
		SET status = @status,
		    error_message = @error_message
		WHERE id IN UNNEST(@ids)
	`, dataset, bronzeTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: string(status)},
		{Name: "error_message", Value: errorMessage},
		{Name: "ids", Value: ids},
	}

	return runDML(ctx, q, "UpdateRawRecordStatus")
}

// DeleteRawRecordsWithClient physically removes bronze records. Used by the
// deletion side-channel; there is no way back for a deleted record.
func DeleteRawRecordsWithClient(ctx context.Context, client *bigquery.Client, dataset string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	q := client.Query(fmt.Sprintf(`
		DELETE FROM %s.%s
		WHERE id IN UNNEST(@ids)
	`, dataset, bronzeTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "ids", Value: ids},
	}

	return runDML(ctx, q, "DeleteRawRecords")
}

// InsertRawRecordsWithClient streams freshly ingested statement lines into
// the bronze table.
func InsertRawRecordsWithClient(ctx context.Context, client *bigquery.Client, dataset string, records []domain.RawRecord) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([]*RawRecordRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, NewRawRecordRow(rec))
	}

	inserter := client.Dataset(dataset).Table(bronzeTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertRawRecords: inserting rows: %w", err)
	}

	return nil
}

// ReprocessUserWithClient discards the user's canonical rows and resets all
// of their non-pending bronze records back to pending, committed together in
// one multi-statement transaction so the two writes cannot diverge.
func ReprocessUserWithClient(ctx context.Context, client *bigquery.Client, dataset, userID string) error {
	q := client.Query(fmt.Sprintf(`
		BEGIN TRANSACTION;

		DELETE FROM %[1]s.%[2]s
		WHERE user_id = @user_id;

		UPDATE %[1]s.%[3]s
		SET status = @pending,
		    error_message = ''
		WHERE user_id = @user_id
		  AND status != @pending;

		COMMIT TRANSACTION;
	`, dataset, silverTable, bronzeTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "pending", Value: string(domain.StatusPending)},
	}

	return runDML(ctx, q, "ReprocessUser")
}

// runDML executes a parameterized DML query and waits for completion.
func runDML(ctx context.Context, q *bigquery.Query, op string) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("%s: running query: %w", op, err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("%s: waiting for job: %w", op, err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("%s: job error: %w", op, err)
	}

	return nil
}
