package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"studio/internal/domain"
	"studio/internal/sqlinline"
)

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func jobRow(id string, status domain.JobStatus, payload []byte, detail string, completed *time.Time) simpleRow {
	return rowOf(
		id, "u1", "veo3_fast", "video", []byte(`{"prompt":"x"}`), "task_1",
		string(status), payload, detail, int64(40), false, "",
		testNow, testNow, completed,
	)
}

func TestFinalizeWinner(t *testing.T) {
	done := testNow.Add(time.Minute)
	exec := &stubExecutor{rows: map[string]simpleRow{
		sqlinline.QFinalizeJob: jobRow("j1", domain.JobStatusCompleted, []byte(`{"urls":["https://cdn/v.mp4"]}`), "", &done),
	}}
	repo := NewJobRepository(exec)
	job, applied, err := repo.Finalize(context.Background(), "j1", domain.JobStatusCompleted, &domain.ResultPayload{URLs: []string{"https://cdn/v.mp4"}}, "", done)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !applied || job.Status != domain.JobStatusCompleted || job.Result == nil || job.Result.URLs[0] != "https://cdn/v.mp4" {
		t.Fatalf("unexpected result applied=%v job=%+v", applied, job)
	}
	if len(exec.queries) != 1 {
		t.Fatalf("winner should issue one statement, got %d", len(exec.queries))
	}
}

func TestFinalizeLoserReturnsStoredRecord(t *testing.T) {
	done := testNow.Add(time.Minute)
	exec := &stubExecutor{rows: map[string]simpleRow{
		sqlinline.QFinalizeJob:   {},
		sqlinline.QSelectJobByID: jobRow("j1", domain.JobStatusFailed, nil, "generation timed out", &done),
	}}
	repo := NewJobRepository(exec)
	job, applied, err := repo.Finalize(context.Background(), "j1", domain.JobStatusCompleted, &domain.ResultPayload{URLs: []string{"u"}}, "", done)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if applied {
		t.Fatalf("loser reported applied")
	}
	if job.Status != domain.JobStatusFailed || job.ErrorDetail != "generation timed out" || job.Result != nil {
		t.Fatalf("loser should see stored record, got %+v", job)
	}
}

func TestFinalizeRejectsNonTerminal(t *testing.T) {
	repo := NewJobRepository(&stubExecutor{})
	_, _, err := repo.Finalize(context.Background(), "j1", domain.JobStatusProcessing, nil, "", testNow)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestFinalizeMissingJob(t *testing.T) {
	repo := NewJobRepository(&stubExecutor{rows: map[string]simpleRow{}})
	_, _, err := repo.Finalize(context.Background(), "nope", domain.JobStatusFailed, nil, "x", testNow)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListByUserAndThumbnail(t *testing.T) {
	exec := &stubExecutor{
		sets: map[string][]simpleRow{
			sqlinline.QListJobsByUser: {
				jobRow("j2", domain.JobStatusProcessing, nil, "", nil),
				jobRow("j1", domain.JobStatusCompleted, []byte(`{"urls":["a"]}`), "", &testNow),
			},
		},
		tags: map[string]pgconn.CommandTag{sqlinline.QSetJobThumbnail: pgconn.NewCommandTag("UPDATE 1")},
	}
	repo := NewJobRepository(exec)
	jobs, err := repo.ListByUser(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != "j2" || jobs[1].Result == nil {
		t.Fatalf("unexpected jobs %+v", jobs)
	}
	if err := repo.SetThumbnail(context.Background(), "j1", "thumbnails/j1.jpg"); err != nil {
		t.Fatalf("set thumbnail: %v", err)
	}
	if err := NewJobRepository(&stubExecutor{}).SetThumbnail(context.Background(), "missing", "k"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing job, got %v", err)
	}
}
