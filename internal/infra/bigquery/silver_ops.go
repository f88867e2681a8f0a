package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/shaneweinberger/Finsight-V2.0/internal/domain"
)

// UpsertTransactionsWithClient writes canonical transactions into the silver
// table, one MERGE per row keyed on bronze_id. An existing row is updated in
// place; is_edited is deliberately left untouched on the update path so a
// human edit survives an ordinary pipeline rerun. The first failing row
// aborts the batch and the error is returned to the reconciler, which
// downgrades the affected records.
func UpsertTransactionsWithClient(ctx context.Context, client *bigquery.Client, dataset string, txs []domain.CanonicalTransaction) error {
	for i := range txs {
		if err := upsertTransaction(ctx, client, dataset, &txs[i]); err != nil {
			return fmt.Errorf("UpsertTransactions: row %d (bronze_id=%s): %w", i, txs[i].BronzeID, err)
		}
	}
	return nil
}

func upsertTransaction(ctx context.Context, client *bigquery.Client, dataset string, tx *domain.CanonicalTransaction) error {
	q := client.Query(fmt.Sprintf(`
		MERGE %s.%s T
		USING (SELECT @bronze_id AS bronze_id) S
		ON T.bronze_id = S.bronze_id
		WHEN MATCHED THEN UPDATE SET
			user_id = @user_id,
			description = @description,
			category = @category,
			amount = @amount,
			date = @date,
			type = @type,
			account = @account,
			processed_ts = @processed_ts
		WHEN NOT MATCHED THEN INSERT (
			transaction_id,
			bronze_id,
			user_id,
			description,
			category,
			amount,
			date,
			type,
			account,
			processed_ts,
			is_edited
		) VALUES (
			@transaction_id,
			@bronze_id,
			@user_id,
			@description,
			@category,
			@amount,
			@date,
			@type,
			@account,
			@processed_ts,
			FALSE
		)
	`, dataset, silverTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "transaction_id", Value: tx.ID},
		{Name: "bronze_id", Value: tx.BronzeID},
		{Name: "user_id", Value: tx.UserID},
		{Name: "description", Value: tx.Description},
		{Name: "category", Value: tx.Category},
		{Name: "amount", Value: tx.Amount},
		{Name: "date", Value: civil.DateOf(tx.Date)},
		{Name: "type", Value: string(tx.Type)},
		{Name: "account", Value: tx.Account},
		{Name: "processed_ts", Value: tx.ProcessedAt},
	}

	return runDML(ctx, q, "upsertTransaction")
}

// DeleteTransactionsForUserWithClient removes every silver row owned by the
// user. Part of the reprocess flow; see also ReprocessUserWithClient which
// pairs this with the bronze reset transactionally.
func DeleteTransactionsForUserWithClient(ctx context.Context, client *bigquery.Client, dataset, userID string) error {
	q := client.Query(fmt.Sprintf(`
		DELETE FROM %s.%s
		WHERE user_id = @user_id
	`, dataset, silverTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	return runDML(ctx, q, "DeleteTransactionsForUser")
}
