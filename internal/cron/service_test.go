package cron

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeLock struct {
	locked   bool
	acquires int
	releases int
	err      error
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	f.acquires++
	return f.locked, f.err
}

func (f *fakeLock) Release(context.Context) error {
	f.releases++
	return nil
}

type recordedJob struct {
	name string
	runs int
	err  error
}

func (j *recordedJob) Name() string { return j.name }

func (j *recordedJob) Run(context.Context) error {
	j.runs++
	return j.err
}

func TestSweepRunsEveryJob(t *testing.T) {
	first := &recordedJob{name: "first"}
	second := &recordedJob{name: "second", err: errors.New("boom")}
	third := &recordedJob{name: "third"}
	lock := &fakeLock{locked: true}

	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(first, second, third),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}

	if err := service.sweep(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	// A failing job must not block the jobs after it.
	for _, job := range []*recordedJob{first, second, third} {
		if job.runs != 1 {
			t.Fatalf("job %s ran %d times", job.name, job.runs)
		}
	}
	if lock.releases != 1 {
		t.Fatalf("expected lock released once, got %d", lock.releases)
	}
}

func TestSweepSkipsWhenLockHeldElsewhere(t *testing.T) {
	job := &recordedJob{name: "only"}
	lock := &fakeLock{locked: false}

	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(job),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}

	if err := service.sweep(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected job skipped, ran %d times", job.runs)
	}
	if lock.releases != 0 {
		t.Fatalf("lock released without being held")
	}
}

func TestRegistryIgnoresNilJobs(t *testing.T) {
	registry := NewRegistry(nil, &recordedJob{name: "real"}, nil)
	registry.Register(nil)
	if got := len(registry.Jobs()); got != 1 {
		t.Fatalf("expected 1 job, got %d", got)
	}
}

func TestRegistryReplacesJobBySameName(t *testing.T) {
	first := &recordedJob{name: "retention"}
	other := &recordedJob{name: "other"}
	replacement := &recordedJob{name: "retention"}

	registry := NewRegistry(first, other)
	registry.Register(replacement)

	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	// The replacement keeps the original slot in cycle order.
	if jobs[0] != Job(replacement) || jobs[1] != Job(other) {
		t.Fatalf("unexpected job order: %v", jobs)
	}
}

type fakeLeaseStore struct {
	values map[string]string
	setErr error
}

func (f *fakeLeaseStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if f.setErr != nil {
		return false, f.setErr
	}
	if _, held := f.values[key]; held {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

func (f *fakeLeaseStore) Get(_ context.Context, key string) (string, error) {
	return f.values[key], nil
}

func (f *fakeLeaseStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func TestLeaseLockSingleHolder(t *testing.T) {
	store := &fakeLeaseStore{values: map[string]string{}}

	a, err := NewLeaseLock(store, "sweep", time.Hour)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	b, err := NewLeaseLock(store, "sweep", time.Hour)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}

	held, err := a.Acquire(context.Background())
	if err != nil || !held {
		t.Fatalf("first acquire: held=%v err=%v", held, err)
	}
	held, err = b.Acquire(context.Background())
	if err != nil || held {
		t.Fatalf("second acquire must lose: held=%v err=%v", held, err)
	}

	// Only the holder's release frees the key.
	if err := b.Release(context.Background()); err != nil {
		t.Fatalf("non-holder release: %v", err)
	}
	if _, stillHeld := store.values["sweep"]; !stillHeld {
		t.Fatal("non-holder release dropped the lease")
	}
	if err := a.Release(context.Background()); err != nil {
		t.Fatalf("holder release: %v", err)
	}
	if _, stillHeld := store.values["sweep"]; stillHeld {
		t.Fatal("lease not dropped by its holder")
	}

	held, err = b.Acquire(context.Background())
	if err != nil || !held {
		t.Fatalf("acquire after release: held=%v err=%v", held, err)
	}
}
