package interfaces

// Locker defines the available actions for advisory locks guarding a
// mutating operation against concurrent invocations
type Locker interface {
	// Connect to the lock store
	Connect() error
	// Acquire attempts to take the lock at key for at most ttlSeconds.
	// It returns true if the lock was taken, false if another holder
	// currently has it
	Acquire(key string, ttlSeconds int) (bool, error)
	// Release gives up the lock at key. Releasing a lock held by someone
	// else is a no-op
	Release(key string) error
	// Disconnect from the lock store
	Disconnect() error
}
