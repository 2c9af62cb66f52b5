package configuration

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type biasConfig struct {
	Bias int
}

func TestUpdaterAppliesLatestValue(t *testing.T) {
	var applyCount atomic.Int32
	u := New(biasConfig{Bias: 0}, func(prev, next biasConfig) biasConfig {
		applyCount.Add(1)
		return next
	})
	defer u.Close()

	u.Update(biasConfig{Bias: 1})
	u.Update(biasConfig{Bias: 2})
	u.Update(biasConfig{Bias: 3})

	require.Eventually(t, func() bool {
		return u.Applied().Bias == 3
	}, time.Second, time.Millisecond)

	assert.LessOrEqual(t, int(applyCount.Load()), 3)
}

func TestUpdaterCoalescesRapidUpdates(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var applyCount atomic.Int32

	u := New(biasConfig{Bias: 0}, func(prev, next biasConfig) biasConfig {
		applyCount.Add(1)
		if applyCount.Load() == 1 {
			close(started)
			<-release
		}
		return next
	})
	defer u.Close()

	u.Update(biasConfig{Bias: 1})
	<-started

	u.Update(biasConfig{Bias: 2})
	u.Update(biasConfig{Bias: 3})
	u.Update(biasConfig{Bias: 4})
	close(release)

	require.Eventually(t, func() bool {
		return u.Applied().Bias == 4
	}, time.Second, time.Millisecond)

	assert.LessOrEqual(t, int(applyCount.Load()), 2)
}

func TestUpdaterCloseJoinsWorker(t *testing.T) {
	u := New(biasConfig{}, func(prev, next biasConfig) biasConfig { return next })
	u.Update(biasConfig{Bias: 5})
	u.Close()

	done := make(chan struct{})
	go func() {
		u.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second Close did not return")
	}
}
