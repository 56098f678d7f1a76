package cron

import "context"

// Job is one maintenance task the worker runs per sweep cycle.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds the cycle's job list in registration order. Registering
// under a name already present replaces the earlier entry, so wiring code
// can swap a job implementation without reordering the cycle.
type Registry struct {
	jobs []Job
}

// NewRegistry builds a registry from the given jobs; nils are dropped.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{}
	for _, job := range jobs {
		r.Register(job)
	}
	return r
}

// Register appends a job, or replaces the one sharing its name.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	for i, existing := range r.jobs {
		if existing.Name() == job.Name() {
			r.jobs[i] = job
			return
		}
	}
	r.jobs = append(r.jobs, job)
}

// Jobs returns a copy of the job list in cycle order.
func (r *Registry) Jobs() []Job {
	return append([]Job(nil), r.jobs...)
}
