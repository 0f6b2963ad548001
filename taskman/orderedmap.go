package taskman

import (
	"sync"

	orderedmap "github.com/wk8/go-ordered-map"

	"github.com/tubetok/tubetok/task"
)

// TaskMap keeps tasks in insertion order.
type TaskMap struct {
	tasks *orderedmap.OrderedMap
	lock  sync.RWMutex
}

func NewTaskMap() *TaskMap {
	return &TaskMap{
		tasks: orderedmap.New(),
	}
}

func (m *TaskMap) Len() int {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return m.tasks.Len()
}

func (m *TaskMap) Get(key task.VideoID) (*Task, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	t, ok := m.tasks.Get(key)
	if !ok {
		return nil, false
	}
	return t.(*Task), true
}

// SetIfAbsent stores value unless key is already present, and reports
// whether it did.
func (m *TaskMap) SetIfAbsent(key task.VideoID, value *Task) bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.tasks.Get(key); ok {
		return false
	}
	m.tasks.Set(key, value)
	return true
}

func (m *TaskMap) Delete(key task.VideoID) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.tasks.Delete(key)
}

// Values returns the tasks from oldest to newest.
func (m *TaskMap) Values() []*Task {
	m.lock.RLock()
	defer m.lock.RUnlock()

	out := make([]*Task, 0, m.tasks.Len())
	for pair := m.tasks.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value.(*Task))
	}
	return out
}
