package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/shaneweinberger/Finsight-V2.0/internal/domain"
)

// fakeStore is an in-memory stand-in for the bronze, silver and context
// repositories. Silver rows are keyed on their bronze reference so upsert
// semantics match the real store.
type fakeStore struct {
	mu      sync.Mutex
	records []domain.RawRecord
	silver  map[string]domain.CanonicalTransaction

	prompt     string
	rules      map[string][]domain.Rule
	categories map[string][]string

	failUpsert        bool
	failDelete        bool
	failStatusWrites  bool
	ignoreStatusWrite bool
}

func newFakeStore(records ...domain.RawRecord) *fakeStore {
	return &fakeStore{
		records:    records,
		silver:     make(map[string]domain.CanonicalTransaction),
		rules:      make(map[string][]domain.Rule),
		categories: make(map[string][]string),
	}
}

func (s *fakeStore) ListPending(_ context.Context, limit int) ([]domain.RawRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.RawRecord
	for _, r := range s.records {
		if r.Status == domain.StatusPending {
			out = append(out, r)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, ids []string, status domain.RecordStatus, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failStatusWrites {
		return errors.New("status write refused")
	}
	if s.ignoreStatusWrite {
		return nil
	}
	for _, id := range ids {
		for i := range s.records {
			if s.records[i].ID == id {
				s.records[i].Status = status
				s.records[i].ErrorMessage = errorMessage
			}
		}
	}
	return nil
}

func (s *fakeStore) DeleteRecords(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDelete {
		return errors.New("delete refused")
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := s.records[:0]
	for _, r := range s.records {
		if !drop[r.ID] {
			kept = append(kept, r)
		}
	}
	s.records = kept
	return nil
}

func (s *fakeStore) UpsertTransactions(_ context.Context, txs []domain.CanonicalTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpsert {
		return errors.New("upsert refused")
	}
	for _, tx := range txs {
		s.silver[tx.BronzeID] = tx
	}
	return nil
}

func (s *fakeStore) ActivePrompt(context.Context) (string, error) {
	return s.prompt, nil
}

func (s *fakeStore) ListActiveRules(_ context.Context, userID string) ([]domain.Rule, error) {
	return s.rules[userID], nil
}

func (s *fakeStore) ListCategories(_ context.Context, userID string) ([]string, error) {
	return s.categories[userID], nil
}

func (s *fakeStore) ReprocessUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, tx := range s.silver {
		if tx.UserID == userID {
			delete(s.silver, id)
		}
	}
	for i := range s.records {
		if s.records[i].UserID == userID {
			s.records[i].Status = domain.StatusPending
			s.records[i].ErrorMessage = ""
		}
	}
	return nil
}

func (s *fakeStore) record(id string) (domain.RawRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == id {
			return r, true
		}
	}
	return domain.RawRecord{}, false
}

func (s *fakeStore) countByStatus(status domain.RecordStatus) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.records {
		if r.Status == status {
			n++
		}
	}
	return n
}

// stubClassifier dispatches on user id so multi-user tests can fail one
// slice and answer another.
type stubClassifier struct {
	respond func(req ClassifyRequest) ([]Classification, error)
}

func (c *stubClassifier) Classify(_ context.Context, req ClassifyRequest) ([]Classification, error) {
	return c.respond(req)
}

func newTestPipeline(store *fakeStore, classifier Classifier, batchSize int) *Pipeline {
	p := New(store, store, store, classifier, batchSize, zerolog.Nop())
	p.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return p
}

func pendingRecord(id, userID string) domain.RawRecord {
	return domain.RawRecord{
		ID:             id,
		UserID:         userID,
		FileID:         "file-1",
		FileName:       "statement.csv",
		Account:        "debit",
		RawDate:        "2024-01-05",
		RawDescription: "UBER *TRIP HELSINKI",
		RawMoneyOut:    "15.00",
		Status:         domain.StatusPending,
	}
}

func TestRunCycle_ProcessesSingleTransaction(t *testing.T) {
	store := newFakeStore(pendingRecord("rec-1", "user-a"))
	store.categories["user-a"] = []string{"Transport", "Groceries"}

	classifier := &stubClassifier{respond: func(req ClassifyRequest) ([]Classification, error) {
		if req.Prompt != DefaultPrompt {
			t.Errorf("prompt = %q, want default", req.Prompt)
		}
		if len(req.Transactions) != 1 || req.Transactions[0].Amount != -15 {
			t.Fatalf("unexpected transactions: %+v", req.Transactions)
		}
		return []Classification{{ID: "rec-1", Category: "Transport", Description: "Uber"}}, nil
	}}

	result, err := newTestPipeline(store, classifier, 50).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if result.Processed != 1 || result.Deleted != 0 || result.Errored != 0 {
		t.Errorf("result = %+v, want 1 processed", result)
	}

	tx, ok := store.silver["rec-1"]
	if !ok {
		t.Fatal("no canonical row for rec-1")
	}
	if tx.Category != "Transport" || tx.Description != "Uber" {
		t.Errorf("canonical row = %+v", tx)
	}
	if tx.Amount != -15 {
		t.Errorf("Amount = %v, want -15", tx.Amount)
	}
	if tx.Type != domain.TypeExpenditure {
		t.Errorf("Type = %v, want Expenditure", tx.Type)
	}
	if want := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC); !tx.Date.Equal(want) {
		t.Errorf("Date = %v, want %v", tx.Date, want)
	}
	if tx.ID == "" || tx.ID == tx.BronzeID {
		t.Errorf("canonical id %q must be distinct from bronze id", tx.ID)
	}

	rec, _ := store.record("rec-1")
	if rec.Status != domain.StatusProcessed {
		t.Errorf("bronze status = %v, want processed", rec.Status)
	}
}

func TestRunCycle_DeleteSentinelRemovesRecord(t *testing.T) {
	cases := []string{"DELETE", "delete", " Delete "}
	for _, category := range cases {
		t.Run(category, func(t *testing.T) {
			store := newFakeStore(pendingRecord("rec-1", "user-a"))
			classifier := &stubClassifier{respond: func(ClassifyRequest) ([]Classification, error) {
				return []Classification{{ID: "rec-1", Category: category}}, nil
			}}

			result, err := newTestPipeline(store, classifier, 50).RunCycle(context.Background())
			if err != nil {
				t.Fatalf("RunCycle() error = %v", err)
			}
			if result.Deleted != 1 || result.Processed != 0 {
				t.Errorf("result = %+v, want 1 deleted", result)
			}
			if _, ok := store.record("rec-1"); ok {
				t.Error("raw record still present after deletion")
			}
			if len(store.silver) != 0 {
				t.Error("deleted record produced a canonical row")
			}
		})
	}
}

func TestRunCycle_OmittedRecordMarkedProcessed(t *testing.T) {
	store := newFakeStore(
		pendingRecord("rec-1", "user-a"),
		pendingRecord("rec-2", "user-a"),
	)
	classifier := &stubClassifier{respond: func(ClassifyRequest) ([]Classification, error) {
		return []Classification{{ID: "rec-1", Category: "Transport", Description: "Uber"}}, nil
	}}

	result, err := newTestPipeline(store, classifier, 50).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if result.Processed != 2 {
		t.Errorf("Processed = %d, want 2 (classified + omitted)", result.Processed)
	}

	rec, _ := store.record("rec-2")
	if rec.Status != domain.StatusProcessed {
		t.Errorf("omitted record status = %v, want processed", rec.Status)
	}
	if _, ok := store.silver["rec-2"]; ok {
		t.Error("omitted record must not produce a canonical row")
	}
}

func TestRunCycle_UnknownIDIgnored(t *testing.T) {
	store := newFakeStore(pendingRecord("rec-1", "user-a"))
	classifier := &stubClassifier{respond: func(ClassifyRequest) ([]Classification, error) {
		return []Classification{
			{ID: "made-up-id", Category: "Transport", Description: "Ghost"},
			{ID: "rec-1", Category: "Transport", Description: "Uber"},
		}, nil
	}}

	result, err := newTestPipeline(store, classifier, 50).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if result.Processed != 1 {
		t.Errorf("Processed = %d, want 1", result.Processed)
	}
	if _, ok := store.silver["made-up-id"]; ok {
		t.Error("invented id must not produce a canonical row")
	}
}

func TestRunCycle_BlankDescriptionFallsBackToDraft(t *testing.T) {
	store := newFakeStore(pendingRecord("rec-1", "user-a"))
	classifier := &stubClassifier{respond: func(ClassifyRequest) ([]Classification, error) {
		return []Classification{{ID: "rec-1", Category: "Transport", Description: "  "}}, nil
	}}

	if _, err := newTestPipeline(store, classifier, 50).RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if got := store.silver["rec-1"].Description; got != "UBER *TRIP HELSINKI" {
		t.Errorf("Description = %q, want the raw description fallback", got)
	}
}

func TestRunCycle_ParseFailureIsolatedPerUser(t *testing.T) {
	store := newFakeStore(
		pendingRecord("rec-a", "user-a"),
		pendingRecord("rec-b", "user-b"),
	)
	classifier := &stubClassifier{respond: func(req ClassifyRequest) ([]Classification, error) {
		if req.UserID == "user-a" {
			return nil, &ResponseParseError{UserID: "user-a", Raw: "sorry, no JSON today", Err: errors.New("invalid character 's'")}
		}
		return []Classification{{ID: "rec-b", Category: "Transport", Description: "Uber"}}, nil
	}}

	result, err := newTestPipeline(store, classifier, 50).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if result.Errored != 1 || result.Processed != 1 {
		t.Errorf("result = %+v, want 1 errored and 1 processed", result)
	}

	recA, _ := store.record("rec-a")
	if recA.Status != domain.StatusError {
		t.Errorf("user-a record status = %v, want error", recA.Status)
	}
	if recA.ErrorMessage != "LLM Parsing Failed" {
		t.Errorf("user-a error message = %q", recA.ErrorMessage)
	}

	recB, _ := store.record("rec-b")
	if recB.Status != domain.StatusProcessed {
		t.Errorf("user-b record status = %v, want processed", recB.Status)
	}
}

func TestRunCycle_BackendErrorAbortsInvocation(t *testing.T) {
	store := newFakeStore(
		pendingRecord("rec-a", "user-a"),
		pendingRecord("rec-b", "user-b"),
	)
	calls := 0
	classifier := &stubClassifier{respond: func(req ClassifyRequest) ([]Classification, error) {
		calls++
		if req.UserID == "user-a" {
			return nil, wrapBackendError(fmt.Errorf("googleapi: Error 429: RESOURCE_EXHAUSTED"))
		}
		return []Classification{{ID: "rec-b", Category: "Transport"}}, nil
	}}

	_, err := newTestPipeline(store, classifier, 50).RunCycle(context.Background())
	var backendErr *BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("RunCycle() error = %v, want BackendError", err)
	}
	if backendErr.Kind != BackendQuotaExceeded {
		t.Errorf("Kind = %v, want quota_exceeded", backendErr.Kind)
	}
	// Groups are visited in sorted user order, so user-b is never attempted.
	if calls != 1 {
		t.Errorf("classifier calls = %d, want 1", calls)
	}
	recB, _ := store.record("rec-b")
	if recB.Status != domain.StatusPending {
		t.Errorf("user-b record status = %v, want still pending", recB.Status)
	}
}

func TestRunCycle_UpsertFailureDowngradesToError(t *testing.T) {
	store := newFakeStore(pendingRecord("rec-1", "user-a"))
	store.failUpsert = true
	classifier := &stubClassifier{respond: func(ClassifyRequest) ([]Classification, error) {
		return []Classification{{ID: "rec-1", Category: "Transport", Description: "Uber"}}, nil
	}}

	result, err := newTestPipeline(store, classifier, 50).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v, canonical write failure must be recoverable", err)
	}
	if result.Errored != 1 || result.Processed != 0 {
		t.Errorf("result = %+v, want 1 errored", result)
	}

	rec, _ := store.record("rec-1")
	if rec.Status != domain.StatusError {
		t.Errorf("status = %v, want error", rec.Status)
	}
	if !strings.HasPrefix(rec.ErrorMessage, "Canonical write failed: ") {
		t.Errorf("error message = %q", rec.ErrorMessage)
	}
}

func TestRunCycle_DeleteFailureLeavesSliceRecoverable(t *testing.T) {
	store := newFakeStore(
		pendingRecord("rec-1", "user-a"),
		pendingRecord("rec-2", "user-a"),
	)
	store.failDelete = true
	classifier := &stubClassifier{respond: func(ClassifyRequest) ([]Classification, error) {
		return []Classification{
			{ID: "rec-1", Category: "DELETE"},
			{ID: "rec-2", Category: "Transport", Description: "Uber"},
		}, nil
	}}

	result, err := newTestPipeline(store, classifier, 50).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if result.Deleted != 0 || result.Processed != 0 || result.Errored != 1 {
		t.Errorf("result = %+v, want only errored", result)
	}

	rec1, ok := store.record("rec-1")
	if !ok || rec1.Status != domain.StatusPending {
		t.Errorf("delete-queued record = %+v, want still pending", rec1)
	}
	rec2, _ := store.record("rec-2")
	if rec2.Status != domain.StatusError {
		t.Errorf("sibling record status = %v, want error", rec2.Status)
	}
}

func TestRunCycle_StatusWriteFailureIsFatal(t *testing.T) {
	store := newFakeStore(pendingRecord("rec-1", "user-a"))
	store.failStatusWrites = true
	classifier := &stubClassifier{respond: func(ClassifyRequest) ([]Classification, error) {
		return []Classification{{ID: "rec-1", Category: "Transport"}}, nil
	}}

	_, err := newTestPipeline(store, classifier, 50).RunCycle(context.Background())
	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("RunCycle() error = %v, want PersistenceError", err)
	}
}

func TestRunCycle_EmptyBacklog(t *testing.T) {
	store := newFakeStore()
	classifier := &stubClassifier{respond: func(ClassifyRequest) ([]Classification, error) {
		t.Fatal("classifier must not be invoked on an empty backlog")
		return nil, nil
	}}

	result, err := newTestPipeline(store, classifier, 50).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if !result.Empty {
		t.Error("result.Empty = false, want true")
	}
}

func TestRunCycle_UpsertIdempotentOnBronzeID(t *testing.T) {
	store := newFakeStore(pendingRecord("rec-1", "user-a"))
	category := "Transport"
	classifier := &stubClassifier{respond: func(ClassifyRequest) ([]Classification, error) {
		return []Classification{{ID: "rec-1", Category: category, Description: "Uber"}}, nil
	}}
	p := newTestPipeline(store, classifier, 50)

	if _, err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("first RunCycle() error = %v", err)
	}

	// Reset the record to pending and classify again with a new category: the
	// silver store must hold one row carrying the latest payload.
	store.mu.Lock()
	store.records[0].Status = domain.StatusPending
	store.mu.Unlock()
	category = "Travel"

	if _, err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("second RunCycle() error = %v", err)
	}
	if len(store.silver) != 1 {
		t.Fatalf("silver rows = %d, want 1", len(store.silver))
	}
	if got := store.silver["rec-1"].Category; got != "Travel" {
		t.Errorf("Category = %q, want the later payload", got)
	}
}

func TestRunCycle_RulesPartitionedForClassifier(t *testing.T) {
	store := newFakeStore(pendingRecord("rec-1", "user-a"))
	store.rules["user-a"] = []domain.Rule{
		{Name: "uber", Priority: 10, Kind: domain.RuleKindCondition,
			Condition: &domain.RuleCondition{Field: "description", Operator: "contains", Value: "UBER"},
			Action:    &domain.RuleAction{Category: "Transport"}},
		{Name: "refunds", Priority: 5, Kind: domain.RuleKindInstruction, Instruction: "Refunds are income."},
	}

	classifier := &stubClassifier{respond: func(req ClassifyRequest) ([]Classification, error) {
		if len(req.StructuredRules) != 1 || req.StructuredRules[0].Name != "uber" {
			t.Errorf("StructuredRules = %+v", req.StructuredRules)
		}
		if len(req.FreeTextRules) != 1 || req.FreeTextRules[0].Instruction != "Refunds are income." {
			t.Errorf("FreeTextRules = %+v", req.FreeTextRules)
		}
		return []Classification{{ID: "rec-1", Category: "Transport"}}, nil
	}}

	if _, err := newTestPipeline(store, classifier, 50).RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
}
