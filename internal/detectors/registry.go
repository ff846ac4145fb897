package detectors

import (
	"context"
	"fmt"
	"sync"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Registry runs a fixed, ordered set of detectors.
type Registry struct {
	detectors  []Detector
	maxWorkers int
}

// Outcome collects the flags and failures of one registry run.
type Outcome struct {
	Flags    []domain.Flag
	Failures []*domain.DetectorError
}

// NewRegistry creates a registry. Detector order defines flag order.
func NewRegistry(maxWorkers int, detectors ...Detector) *Registry {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	return &Registry{detectors: detectors, maxWorkers: maxWorkers}
}

// Names returns the registered detector names in order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.detectors))
	for i, d := range r.detectors {
		names[i] = d.Name()
	}
	return names
}

// Run evaluates every detector in parallel. A detector that errors or
// panics contributes no flags and is reported in Failures; the others are
// unaffected.
func (r *Registry) Run(ctx context.Context, in *Input) Outcome {
	type result struct {
		flags []domain.Flag
		err   error
	}

	results := make([]result, len(r.detectors))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, r.maxWorkers)

	for i, d := range r.detectors {
		wg.Add(1)
		go func(idx int, det Detector) {
			defer wg.Done()

			select {
			case sem <- struct{}{}: // Acquire
			case <-ctx.Done():
				results[idx].err = ctx.Err()
				return
			}
			defer func() { <-sem }() // Release

			flags, err := safeDetect(det, in)
			results[idx] = result{flags: flags, err: err}
		}(i, d)
	}

	wg.Wait()

	var out Outcome
	for i, res := range results {
		name := r.detectors[i].Name()
		if res.err != nil {
			out.Failures = append(out.Failures, &domain.DetectorError{Detector: name, Err: res.err})
			continue
		}
		for _, f := range res.flags {
			if f.Detector == "" {
				f.Detector = name
			}
			out.Flags = append(out.Flags, f)
		}
	}
	return out
}

func safeDetect(d Detector, in *Input) (flags []domain.Flag, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			flags = nil
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return d.Detect(in)
}
