package health

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Manager runs checks in parallel, each under its own timeout.
type Manager struct {
	checkers []Checker
	timeout  time.Duration
}

// NewManager creates a manager with a 5-second per-check timeout.
func NewManager(checkers ...Checker) *Manager {
	return &Manager{checkers: checkers, timeout: 5 * time.Second}
}

// WithTimeout sets the per-check timeout.
func (m *Manager) WithTimeout(timeout time.Duration) *Manager {
	m.timeout = timeout
	return m
}

// AddChecker registers a checker. Results keep registration order.
func (m *Manager) AddChecker(checker Checker) {
	m.checkers = append(m.checkers, checker)
}

// Check runs every checker and returns results in registration order.
func (m *Manager) Check(ctx context.Context) []*Result {
	results := make([]*Result, len(m.checkers))
	var wg sync.WaitGroup

	for i, checker := range m.checkers {
		wg.Add(1)
		go func(i int, c Checker) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()

			start := time.Now()
			result := runCheck(checkCtx, c)
			if result.Latency == 0 {
				result.Latency = time.Since(start)
			}
			result.Name = c.Name()
			results[i] = result
		}(i, checker)
	}

	wg.Wait()
	return results
}

func runCheck(ctx context.Context, c Checker) (result *Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Unhealthy(fmt.Sprintf("check panicked: %v", r))
		}
	}()
	result = c.Check(ctx)
	if result == nil {
		result = Unhealthy("check returned no result")
	}
	return result
}

// OverallStatus is the worst status among results.
func OverallStatus(results []*Result) Status {
	overall := StatusHealthy
	for _, result := range results {
		switch result.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}
