// timer/timer.go
package timer

import (
	"container/heap"
	"sync"
	"time"
)

// Scheduler is what rooms and the registry need from a timer source.
type Scheduler interface {
	AddTimer(delay time.Duration, interval time.Duration, callback func()) int64
	RemoveTimer(timerId int64)
}

type TimerTask struct {
	Id       int64
	Execute  time.Time
	Interval time.Duration
	Callback func()
	index    int
}

type TimerQueue []*TimerTask

func (q TimerQueue) Len() int { return len(q) }

func (q TimerQueue) Less(i, j int) bool {
	return q[i].Execute.Before(q[j].Execute)
}

func (q TimerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *TimerQueue) Push(x interface{}) {
	n := len(*q)
	task := x.(*TimerTask)
	task.index = n
	*q = append(*q, task)
}

func (q *TimerQueue) Pop() interface{} {
	old := *q
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	task.index = -1
	*q = old[0 : n-1]
	return task
}

// TimerManager 基于最小堆的定时器，所有到期回调都在独立的 goroutine 中执行
type TimerManager struct {
	queue      TimerQueue
	tasks      map[int64]*TimerTask
	mutex      sync.Mutex
	nextId     int64
	resolution time.Duration
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewTimerManager starts the processing loop. resolution is the polling
// granularity; callbacks may fire up to one resolution late.
func NewTimerManager(resolution time.Duration) *TimerManager {
	if resolution <= 0 {
		resolution = 100 * time.Millisecond
	}
	manager := &TimerManager{
		queue:      make(TimerQueue, 0),
		tasks:      make(map[int64]*TimerTask),
		nextId:     1,
		resolution: resolution,
		stop:       make(chan struct{}),
	}
	heap.Init(&manager.queue)
	go manager.process()
	return manager
}

// AddTimer schedules callback after delay. A positive interval repeats it
// until RemoveTimer is called.
func (m *TimerManager) AddTimer(delay time.Duration, interval time.Duration, callback func()) int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	task := &TimerTask{
		Id:       m.nextId,
		Execute:  time.Now().Add(delay),
		Interval: interval,
		Callback: callback,
	}
	m.nextId++

	heap.Push(&m.queue, task)
	m.tasks[task.Id] = task
	return task.Id
}

func (m *TimerManager) RemoveTimer(timerId int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	task, ok := m.tasks[timerId]
	if !ok {
		return
	}
	delete(m.tasks, timerId)
	if task.index >= 0 {
		heap.Remove(&m.queue, task.index)
	}
}

// Pending returns the number of scheduled timers.
func (m *TimerManager) Pending() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.tasks)
}

// Stop halts processing. Pending timers never fire.
func (m *TimerManager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *TimerManager) process() {
	ticker := time.NewTicker(m.resolution)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, task := range m.due(time.Now()) {
				go task()
			}
		case <-m.stop:
			return
		}
	}
}

// due pops every expired task and re-arms the repeating ones.
func (m *TimerManager) due(now time.Time) []func() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var callbacks []func()
	for m.queue.Len() > 0 {
		task := m.queue[0]
		if task.Execute.After(now) {
			break
		}

		heap.Pop(&m.queue)
		callbacks = append(callbacks, task.Callback)

		if task.Interval > 0 {
			task.Execute = now.Add(task.Interval)
			heap.Push(&m.queue, task)
		} else {
			delete(m.tasks, task.Id)
		}
	}
	return callbacks
}
