package task

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/armadaproject/mesoscoordinator/internal/common/metrics"
)

type task struct {
	function    func()
	interval    time.Duration
	metricName  string
	stopChannel chan struct{}
}

// BackgroundTaskManager runs functions on a fixed interval until StopAll is called.
// Stopping never interrupts a function that is already running; StopAll waits for it to return.
type BackgroundTaskManager struct {
	tasks   []*task
	clock   clock.Clock
	wg      *sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

func NewBackgroundTaskManager(clock clock.Clock) *BackgroundTaskManager {
	return &BackgroundTaskManager{
		tasks: []*task{},
		clock: clock,
		wg:    &sync.WaitGroup{},
	}
}

// Register starts backgroundTask immediately and then once per interval.
// Tasks registered after StopAll are ignored.
func (m *BackgroundTaskManager) Register(backgroundTask func(), interval time.Duration, metricName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		log.Warnf("Not starting background task %s, task manager already stopped", metricName)
		return
	}
	task := &task{
		function:    backgroundTask,
		interval:    interval,
		metricName:  metricName,
		stopChannel: make(chan struct{}),
	}
	m.startBackgroundTask(task)
	m.tasks = append(m.tasks, task)
}

// StopAll stops every task and waits up to timeout for in-flight runs to finish.
// Returns true if the wait timed out.
func (m *BackgroundTaskManager) StopAll(timeout time.Duration) bool {
	m.stopTasks()
	return m.waitForShutdownCompletion(timeout)
}

func (m *BackgroundTaskManager) startBackgroundTask(task *task) {
	taskDurationHistogram := metrics.BackgroundTaskLatency.WithLabelValues(task.metricName)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		start := m.clock.Now()
		task.function()
		taskDurationHistogram.Observe(m.clock.Since(start).Seconds())

		for {
			select {
			case <-m.clock.After(task.interval):
			case <-task.stopChannel:
				return
			}
			innerStart := m.clock.Now()
			task.function()
			taskDurationHistogram.Observe(m.clock.Since(innerStart).Seconds())
		}
	}()
}

func (m *BackgroundTaskManager) waitForShutdownCompletion(timeout time.Duration) bool {
	c := make(chan struct{})
	go func() {
		defer close(c)
		m.wg.Wait()
	}()
	select {
	case <-c:
		return false // completed normally
	case <-time.After(timeout):
		return true // timed out
	}
}

func (m *BackgroundTaskManager) stopTasks() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.stopped = true
	for _, task := range m.tasks {
		close(task.stopChannel)
	}
}
