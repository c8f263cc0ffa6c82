package lockmgr

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExclusiveLockBlocksAnotherWriter(t *testing.T) {
	m := New()
	m.Lock(1)

	acquired := make(chan struct{})
	go func() {
		m.Lock(1)
		close(acquired)
		m.Unlock(1)
	}()

	select {
	case <-acquired:
		t.Fatal("second writer acquired the lock while the first still held it")
	case <-time.After(20 * time.Millisecond):
	}

	m.Unlock(1)
	<-acquired
}

func TestDifferentFileIDsDoNotContend(t *testing.T) {
	m := New()
	m.Lock(1)
	defer m.Unlock(1)

	done := make(chan struct{})
	go func() {
		m.Lock(2)
		m.Unlock(2)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on file 2 should not be blocked by file 1's lock")
	}
}

func TestReadersShareTheLock(t *testing.T) {
	m := New()
	var wg, held sync.WaitGroup
	held.Add(8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RLock(1)
			defer m.RUnlock(1)
			// no reader lets go until all eight hold the lock at once
			held.Done()
			held.Wait()
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("concurrent readers should not serialize on the same file lock")
	}
}

func TestRemoveDropsLockEntry(t *testing.T) {
	m := New()
	m.Lock(1)
	m.Unlock(1)
	m.Remove(1)

	require.NotPanics(t, func() {
		m.Lock(1)
		m.Unlock(1)
	})
}
