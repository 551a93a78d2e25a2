package di

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryEarlyReferencePromotion(t *testing.T) {
	r := newRegistry()
	raw := &fixture{Value: "raw"}
	var resolved atomic.Int32

	r.beginCreation("a")
	r.addSingletonFactory("a", &earlyReference{
		raw: raw,
		resolve: func(obj any) (any, error) {
			resolved.Add(1)
			return obj, nil
		},
	})

	// 不允许早期引用时不解析二级缓存
	_, ok, err := r.getSingleton("a", false)
	require.NoError(t, err)
	assert.False(t, ok)

	obj, ok, err := r.getSingleton("a", true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Same(t, raw, obj)

	again, ok, err := r.getSingleton("a", true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Same(t, raw, again)
	assert.EqualValues(t, 1, resolved.Load())

	early, ok := r.earlyExposed("a")
	require.True(t, ok)
	assert.Same(t, raw, early)

	r.addSingleton("a", raw)
	r.endCreation("a")
	_, ok = r.earlyExposed("a")
	assert.False(t, ok)
	assert.True(t, r.containsSingleton("a"))
}

func TestRegistryEarlyReferenceIgnoredOutsideCreation(t *testing.T) {
	r := newRegistry()
	r.addSingletonFactory("a", &earlyReference{
		raw:     &fixture{},
		resolve: func(obj any) (any, error) { return obj, nil },
	})

	_, ok, err := r.getSingleton("a", true)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistryReentrantLock(t *testing.T) {
	r := newRegistry()
	res := newResolution()

	_, created, err := r.lockForCreation("a", res)
	require.NoError(t, err)
	require.False(t, created)

	_, _, err = r.lockForCreation("a", res)
	assert.True(t, IsCurrentlyInCreation(err))
	r.unlockCreation("a")
}

func TestRegistryWaitForCycleDetected(t *testing.T) {
	r := newRegistry()
	first, second := newResolution(), newResolution()

	_, _, err := r.lockForCreation("a", first)
	require.NoError(t, err)
	_, _, err = r.lockForCreation("b", second)
	require.NoError(t, err)

	// first 等待 b
	waitErr := make(chan error, 1)
	go func() {
		_, _, err := r.lockForCreation("b", first)
		waitErr <- err
	}()
	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return first.waiting != nil
	}, time.Second, time.Millisecond)

	// second 再等待 a 会形成环
	_, _, err = r.lockForCreation("a", second)
	assert.True(t, IsCurrentlyInCreation(err))

	// second 放弃 b 后 first 获得锁
	r.unlockCreation("b")
	assert.NoError(t, <-waitErr)
	r.unlockCreation("b")
	r.unlockCreation("a")
}

func TestRegistryWaitersSeeCreatedSingleton(t *testing.T) {
	r := newRegistry()
	owner, waiter := newResolution(), newResolution()

	_, _, err := r.lockForCreation("a", owner)
	require.NoError(t, err)

	got := make(chan any, 1)
	go func() {
		obj, created, err := r.lockForCreation("a", waiter)
		assert.NoError(t, err)
		assert.True(t, created)
		got <- obj
	}()

	instance := &fixture{Value: "done"}
	r.addSingleton("a", instance)
	r.unlockCreation("a")
	assert.Same(t, instance, <-got)
}

func TestRegistryTransitiveDependents(t *testing.T) {
	r := newRegistry()
	r.registerDependent("a", "b")
	r.registerDependent("b", "c")
	r.registerDependent("a", "b")

	assert.Equal(t, []string{"b"}, r.dependents("a"))
	assert.Equal(t, []string{"a"}, r.dependencies("b"))
	assert.True(t, r.isDependent("a", "c"))
	assert.False(t, r.isDependent("c", "a"))
}

func TestRegistryClear(t *testing.T) {
	r := newRegistry()
	r.addSingleton("a", &fixture{})
	r.registerDependent("a", "b")
	r.clear()

	assert.Zero(t, r.singletonCount())
	assert.Empty(t, r.dependents("a"))
}
