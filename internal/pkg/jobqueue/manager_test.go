package jobqueue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetManager(t *testing.T) {
	globalManager = nil
	managerOnce = sync.Once{}
	t.Setenv("CACHE_HOST", "127.0.0.1")
	t.Setenv("CACHE_PORT", "1")

	manager1 := GetManager()
	manager2 := GetManager()

	assert.NotNil(t, manager1)
	assert.Same(t, manager1, manager2, "GetManager should return the same instance")
	assert.NotNil(t, manager1.GetQueue())
	assert.False(t, manager1.IsRunning())

	globalManager = nil
	managerOnce = sync.Once{}
}

func TestManager_StopWithoutStart(t *testing.T) {
	queue, _ := newTestQueue(t, 1)
	manager := NewManager(queue)

	assert.False(t, manager.IsRunning())
	manager.Stop()
	assert.False(t, manager.IsRunning())
}

func TestManager_RunsPeriodicTasks(t *testing.T) {
	queue, _ := newTestQueue(t, 1)
	manager := NewManager(queue)

	var runs int32
	manager.AddPeriodicTask(PeriodicTask{
		Name:     "test",
		Interval: 10 * time.Millisecond,
		Run: func(context.Context) error {
			atomic.AddInt32(&runs, 1)
			return nil
		},
	})
	manager.AddPeriodicTask(PeriodicTask{Name: "broken"})

	manager.Start()
	assert.True(t, manager.IsRunning())
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 2 }, 2*time.Second, 5*time.Millisecond)

	manager.Stop()
	assert.False(t, manager.IsRunning())

	// restart after stop is allowed
	manager.Start()
	manager.Stop()
}
