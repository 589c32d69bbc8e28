package interfaces

// Cacher defines the available actions for caches
type Cacher interface {
	// Connect to the cache
	Connect() error
	// Set an integer value at key
	Set(key string, value int) error
	// GetInt retrieves the integer value at key. The boolean reports
	// whether the key was present
	GetInt(key string) (int, bool, error)
	// Delete a key
	Delete(key string) error
	// Disconnect from the cache
	Disconnect() error
}
