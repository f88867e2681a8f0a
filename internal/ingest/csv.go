// Package ingest turns uploaded statement CSVs into pending bronze records.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shaneweinberger/Finsight-V2.0/internal/domain"
)

// Statement CSVs are headerless with a fixed column order:
// Date | Description | Money Out | Money In | Balance.
const (
	colDate = iota
	colDescription
	colMoneyOut
	colMoneyIn
	colBalance
	statementColumns
)

// ParseStatementCSV reads one statement file and maps every line to a
// pending raw record. All records share one freshly generated file id. Rows
// are carried verbatim; interpretation of amounts and dates happens later in
// the pipeline.
func ParseStatementCSV(r io.Reader, userID, account, fileName string) ([]domain.RawRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	fileID := uuid.NewString()
	now := time.Now()

	var records []domain.RawRecord
	line := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ParseStatementCSV: line %d: %w", line+1, err)
		}
		line++

		if isBlankRow(row) {
			continue
		}
		if len(row) < statementColumns {
			padded := make([]string, statementColumns)
			copy(padded, row)
			row = padded
		}

		records = append(records, domain.RawRecord{
			ID:             uuid.NewString(),
			UserID:         userID,
			FileID:         fileID,
			FileName:       fileName,
			Account:        account,
			RawDate:        row[colDate],
			RawDescription: row[colDescription],
			RawMoneyOut:    row[colMoneyOut],
			RawMoneyIn:     row[colMoneyIn],
			RawBalance:     row[colBalance],
			Status:         domain.StatusPending,
			CreatedAt:      now,
		})
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("ParseStatementCSV: no statement lines in %s", fileName)
	}

	return records, nil
}

func isBlankRow(row []string) bool {
	for _, field := range row {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
