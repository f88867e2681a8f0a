package inmemory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shaneweinberger/Finsight-V2.0/internal/jobs"
)

func waitForStatus(t *testing.T, store *Store, jobID string, want jobs.JobStatus) *jobs.PipelineJob {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), jobID)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", jobID, want)
	return nil
}

func TestQueue_PublishAndComplete(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, store)
	defer q.Close()

	err := q.Start(context.Background(), func(_ context.Context, job *jobs.PipelineJob) error {
		job.Processed = 7
		job.Deleted = 2
		return nil
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job := &jobs.PipelineJob{Kind: jobs.JobKindDrain}
	if err := q.Publish(context.Background(), job); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if job.JobID == "" {
		t.Fatal("Publish did not assign a job id")
	}

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if done.Processed != 7 || done.Deleted != 2 {
		t.Errorf("stored job counters = %d/%d, want 7/2", done.Processed, done.Deleted)
	}
	if done.StartedAt == nil || done.CompletedAt == nil {
		t.Error("timestamps not recorded")
	}
}

func TestQueue_HandlerFailureMarksJobFailedWithoutRetry(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, store)
	defer q.Close()

	var mu sync.Mutex
	attempts := 0
	err := q.Start(context.Background(), func(context.Context, *jobs.PipelineJob) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("classification backend: quota exceeded")
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job := &jobs.PipelineJob{Kind: jobs.JobKindDrain}
	if err := q.Publish(context.Background(), job); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	if failed.Error == "" {
		t.Error("failed job has no error detail")
	}

	// Give a hypothetical retry loop time to fire, then confirm it did not.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if attempts != 1 {
		t.Errorf("handler attempts = %d, want exactly 1", attempts)
	}
}

func TestQueue_JobsRunSequentially(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, store)
	defer q.Close()

	var mu sync.Mutex
	running := 0
	maxRunning := 0
	var lastID string

	err := q.Start(context.Background(), func(_ context.Context, job *jobs.PipelineJob) error {
		mu.Lock()
		running++
		if running > maxRunning {
			maxRunning = running
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		running--
		lastID = job.JobID
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var published []*jobs.PipelineJob
	for i := 0; i < 4; i++ {
		job := &jobs.PipelineJob{Kind: jobs.JobKindDrain}
		if err := q.Publish(context.Background(), job); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
		published = append(published, job)
	}

	for _, job := range published {
		waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	}

	mu.Lock()
	defer mu.Unlock()
	if maxRunning != 1 {
		t.Errorf("max concurrent jobs = %d, want 1", maxRunning)
	}
	if lastID != published[len(published)-1].JobID {
		t.Errorf("jobs completed out of order, last was %s", lastID)
	}
}

func TestQueue_PublishAfterClose(t *testing.T) {
	q := NewQueue(10, NewStore())
	if err := q.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := q.Publish(context.Background(), &jobs.PipelineJob{Kind: jobs.JobKindDrain}); err == nil {
		t.Fatal("Publish() after Close() error = nil, want an error")
	}
}

func TestStore_SaveAndGetReturnCopies(t *testing.T) {
	store := NewStore()
	job := &jobs.PipelineJob{JobID: "job-1", Kind: jobs.JobKindDrain, Status: jobs.JobStatusPending}

	if err := store.SaveJob(context.Background(), job); err != nil {
		t.Fatalf("SaveJob() error = %v", err)
	}

	// Mutating the caller's struct must not leak into the store.
	job.Status = jobs.JobStatusFailed

	got, err := store.GetJob(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.Status != jobs.JobStatusPending {
		t.Errorf("stored status = %v, want pending", got.Status)
	}

	// Mutating a returned copy must not change the stored job.
	got.Status = jobs.JobStatusRunning
	again, _ := store.GetJob(context.Background(), "job-1")
	if again.Status != jobs.JobStatusPending {
		t.Errorf("stored status = %v after copy mutation, want pending", again.Status)
	}
}

func TestStore_GetMissingJob(t *testing.T) {
	if _, err := NewStore().GetJob(context.Background(), "nope"); err == nil {
		t.Fatal("GetJob() for missing id error = nil, want an error")
	}
}

func TestStore_SaveRequiresID(t *testing.T) {
	if err := NewStore().SaveJob(context.Background(), &jobs.PipelineJob{}); err == nil {
		t.Fatal("SaveJob() without id error = nil, want an error")
	}
}
