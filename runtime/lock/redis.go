package lock

import (
	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"
)

// Redis implements an advisory lock using a Redis conditional write
type Redis struct {
	// conn holds the Redis connection
	conn redis.Conn
	// token identifies this holder so we never release a lock taken
	// by another invocation after our TTL expired
	token string
}

// NewRedis creates a new instance of a Redis lock
// endpoint is the full URL of the Redis endpoint
// database is the Redis database number to use
func NewRedis(endpoint string, database int) (*Redis, error) {
	// Open the Redis connection
	conn, err := redis.Dial(
		"tcp",
		endpoint,
		// The Redis database number (0-15)
		redis.DialDatabase(database),
	)

	return &Redis{
		conn:  conn,
		token: uuid.NewString(),
	}, err
}

// Connect to a Redis instance
func (lock *Redis) Connect() error {
	// We already have a connection, this will error
	// if the connection is not usable
	return lock.conn.Err()
}

// Acquire attempts to take the lock at key for at most ttlSeconds
func (lock *Redis) Acquire(key string, ttlSeconds int) (bool, error) {
	// SET with NX only writes when the key does not exist yet, which
	// makes the write conditional on no other holder
	// EX expires the key so a crashed holder cannot wedge the lock
	// https://redis.io/commands/set/
	reply, err := redis.String(lock.conn.Do(
		"SET", key, lock.token, "NX", "EX", ttlSeconds,
	))
	if err != nil {
		// ErrNil indicates the SET was not performed, the lock is held
		if err == redis.ErrNil {
			return false, nil
		}
		return false, err
	}
	return reply == "OK", nil
}

// Release gives up the lock at key if we still hold it
func (lock *Redis) Release(key string) error {
	holder, err := redis.String(lock.conn.Do("GET", key))
	if err != nil {
		// ErrNil means the lock already expired, nothing to release
		if err == redis.ErrNil {
			return nil
		}
		return err
	}

	// Another invocation took the lock after our TTL lapsed, leave it
	if holder != lock.token {
		return nil
	}

	_, err = redis.Int(lock.conn.Do("DEL", key))
	return err
}

// Disconnect from a Redis instance
func (lock *Redis) Disconnect() error {
	lock.conn.Flush()
	return lock.conn.Close()
}
