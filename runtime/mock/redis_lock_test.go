package mock

import "testing"

func TestRedisLockAcquireRelease(t *testing.T) {

	lock, err := NewRedisLock("holder-a")
	if err != nil {
		t.Fatalf("unexpected failure to create mock Redis: %s", err)
	}

	acquired, err := lock.Acquire("capacity_lock.cluster.worker", 60)
	if err != nil {
		t.Errorf("unexpected failure to acquire: %s", err)
	}
	if !acquired {
		t.Errorf("expected a free lock to be acquired")
	}

	// A second acquire against a held lock must report the conflict
	acquired, err = lock.Acquire("capacity_lock.cluster.worker", 60)
	if err != nil {
		t.Errorf("unexpected failure to re-acquire: %s", err)
	}
	if acquired {
		t.Errorf("expected a held lock to reject acquisition")
	}

	err = lock.Release("capacity_lock.cluster.worker")
	if err != nil {
		t.Errorf("unexpected failure to release: %s", err)
	}

	acquired, err = lock.Acquire("capacity_lock.cluster.worker", 60)
	if err != nil {
		t.Errorf("unexpected failure to acquire after release: %s", err)
	}
	if !acquired {
		t.Errorf("expected a released lock to be acquirable")
	}
}

func TestRedisLockReleaseOtherHolder(t *testing.T) {

	lock, err := NewRedisLock("holder-a")
	if err != nil {
		t.Fatalf("unexpected failure to create mock Redis: %s", err)
	}

	other, err := NewRedisLock("holder-b")
	if err != nil {
		t.Fatalf("unexpected failure to create mock Redis: %s", err)
	}

	if _, err = lock.Acquire("capacity_lock.cluster.worker", 60); err != nil {
		t.Errorf("unexpected failure to acquire: %s", err)
	}

	// Releasing someone else's lock is a no-op, separate stores here so
	// the other holder simply sees no key of its own
	if err = other.Release("capacity_lock.cluster.worker"); err != nil {
		t.Errorf("unexpected failure on foreign release: %s", err)
	}

	acquired, err := lock.Acquire("capacity_lock.cluster.worker", 60)
	if err != nil {
		t.Errorf("unexpected failure to re-check lock: %s", err)
	}
	if acquired {
		t.Errorf("expected the original holder to still hold the lock")
	}
}
