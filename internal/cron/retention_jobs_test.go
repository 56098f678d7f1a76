package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/mintforge/packdrop-backend/pkg/logger"
)

type fakeTxRunner struct {
	err error
}

func (f *fakeTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

type fakeOutboxRetentionRepo struct {
	cutoff      time.Time
	minAttempts int
	deleted     int64
	err         error
}

func (f *fakeOutboxRetentionRepo) DeletePublishedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error) {
	f.cutoff = cutoff
	f.minAttempts = minAttemptCount
	return f.deleted, f.err
}

type fakeDLQRetentionRepo struct {
	cutoff  time.Time
	deleted int64
	err     error
}

func (f *fakeDLQRetentionRepo) DeleteFailedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.deleted, f.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func TestOutboxRetentionJobUsesConfiguredWindow(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{deleted: 7}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:      testLogger(),
		DB:          &fakeTxRunner{},
		Repository:  repo,
		Retention:   10,
		MinAttempts: 3,
	})
	if err != nil {
		t.Fatalf("failed to construct job: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("job run failed: %v", err)
	}
	wantCutoff := time.Now().UTC().Add(-10 * 24 * time.Hour)
	if diff := repo.cutoff.Sub(wantCutoff); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("unexpected cutoff %s", repo.cutoff)
	}
	if repo.minAttempts != 3 {
		t.Fatalf("unexpected min attempts %d", repo.minAttempts)
	}
}

func TestOutboxRetentionJobDefaults(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     testLogger(),
		DB:         &fakeTxRunner{},
		Repository: repo,
	})
	if err != nil {
		t.Fatalf("failed to construct job: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("job run failed: %v", err)
	}
	if repo.minAttempts != outboxMinAttempts {
		t.Fatalf("expected default min attempts, got %d", repo.minAttempts)
	}
}

func TestOutboxRetentionJobPropagatesFailure(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{err: errors.New("boom")}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     testLogger(),
		DB:         &fakeTxRunner{},
		Repository: repo,
	})
	if err != nil {
		t.Fatalf("failed to construct job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatalf("expected error from failing repository")
	}
}

func TestDLQRetentionJobUsesConfiguredWindow(t *testing.T) {
	repo := &fakeDLQRetentionRepo{deleted: 2}
	job, err := NewDLQRetentionJob(DLQRetentionJobParams{
		Logger:     testLogger(),
		DB:         &fakeTxRunner{},
		Repository: repo,
		Retention:  30,
	})
	if err != nil {
		t.Fatalf("failed to construct job: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("job run failed: %v", err)
	}
	wantCutoff := time.Now().UTC().Add(-30 * 24 * time.Hour)
	if diff := repo.cutoff.Sub(wantCutoff); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("unexpected cutoff %s", repo.cutoff)
	}
}

func TestDLQRetentionJobRequiresDeps(t *testing.T) {
	if _, err := NewDLQRetentionJob(DLQRetentionJobParams{Logger: testLogger()}); err == nil {
		t.Fatalf("expected error without db runner")
	}
	if _, err := NewDLQRetentionJob(DLQRetentionJobParams{DB: &fakeTxRunner{}}); err == nil {
		t.Fatalf("expected error without logger")
	}
}
