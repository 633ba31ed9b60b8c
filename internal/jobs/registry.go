package jobs

import (
	"context"
	"slices"
)

// Job is one step of an operator-triggered batch. Its result is echoed back
// to the operator as JSON.
type Job interface {
	Name() string
	Run(ctx context.Context) (any, error)
}

// Func turns a service call into a Job.
func Func(name string, fn func(ctx context.Context) (any, error)) Job {
	return funcJob{name: name, fn: fn}
}

type funcJob struct {
	name string
	fn   func(ctx context.Context) (any, error)
}

func (j funcJob) Name() string                         { return j.name }
func (j funcJob) Run(ctx context.Context) (any, error) { return j.fn(ctx) }

// Registry is an ordered batch. Nil jobs are dropped.
type Registry struct {
	jobs []Job
}

func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{}
	for _, job := range jobs {
		r.Register(job)
	}
	return r
}

func (r *Registry) Register(job Job) {
	if job != nil {
		r.jobs = append(r.jobs, job)
	}
}

// Jobs returns a copy in registration order.
func (r *Registry) Jobs() []Job {
	return slices.Clone(r.jobs)
}
