package scheduler_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gmp-go/core/internal/scheduler"
)

func TestProcessTasksRunsInSubmissionOrder(t *testing.T) {
	s := scheduler.New()
	var order []int
	for i := range 5 {
		i := i
		s.ScheduleOnMainThread(func() { order = append(order, i) })
	}

	s.ProcessTasks()
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
	require.Equal(t, 0, s.Pending())
}

func TestEachTaskRunsExactlyOnce(t *testing.T) {
	s := scheduler.New()
	var calls int
	s.ScheduleOnMainThread(func() { calls++ })
	s.ProcessTasks()
	s.ProcessTasks()
	require.Equal(t, 1, calls)
}

func TestScheduleIsSafeFromConcurrentGoroutines(t *testing.T) {
	s := scheduler.New()
	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.ScheduleOnMainThread(func() {})
		}(i)
	}
	wg.Wait()
	require.Equal(t, 100, s.Pending())
}
