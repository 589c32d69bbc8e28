package mock

import (
	"fmt"

	"github.com/gomodule/redigo/redis"
	redigomock "github.com/rafaeljusto/redigomock/v3"
)

// RedisLock implements a mock Redis advisory lock
type RedisLock struct {
	// conn holds the Redis connection
	conn redis.Conn
	// token identifies this holder
	token string
	// held simulates the lock keyspace so that NX semantics behave like
	// a real Redis instance
	held map[string]string
}

// NewRedisLock creates a new instance of the Redis mock lock holding
// state in memory so conditional writes behave like the real thing
func NewRedisLock(token string) (*RedisLock, error) {

	conn := redigomock.NewConn()
	held := make(map[string]string)

	// Set up simulated call for the conditional lock write
	conn.GenericCommand("SET").Handle(redigomock.ResponseHandler(func(args []interface{}) (interface{}, error) {
		if len(args) != 5 {
			return nil, fmt.Errorf("unexpected number of arguments: expected 5, received %d", len(args))
		}
		key := fmt.Sprintf("%v", args[0])
		if _, ok := held[key]; ok {
			// NX failed, the key exists
			return nil, nil
		}
		held[key] = fmt.Sprintf("%v", args[1])
		return "OK", nil
	}))

	// Set up simulated call for reading the lock holder
	conn.GenericCommand("GET").Handle(redigomock.ResponseHandler(func(args []interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("unexpected number of arguments: expected 1, received %d", len(args))
		}
		holder, ok := held[fmt.Sprintf("%v", args[0])]
		if !ok {
			return nil, nil
		}
		return []byte(holder), nil
	}))

	// Set up simulated call for releasing the lock
	conn.GenericCommand("DEL").Handle(redigomock.ResponseHandler(func(args []interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("unexpected number of arguments: expected 1, received %d", len(args))
		}
		key := fmt.Sprintf("%v", args[0])
		if _, ok := held[key]; !ok {
			return int64(0), nil
		}
		delete(held, key)
		return int64(1), nil
	}))

	return &RedisLock{
		conn:  conn,
		token: token,
		held:  held,
	}, nil
}

// Connect to a Redis instance
func (lock *RedisLock) Connect() error {
	// We already have a connection, this will error
	// if the connection is not usable
	return lock.conn.Err()
}

// Acquire attempts to take the lock at key for at most ttlSeconds
func (lock *RedisLock) Acquire(key string, ttlSeconds int) (bool, error) {
	reply, err := redis.String(lock.conn.Do("SET", key, lock.token, "NX", "EX", ttlSeconds))
	if err != nil {
		if err == redis.ErrNil {
			return false, nil
		}
		return false, err
	}
	return reply == "OK", nil
}

// Release gives up the lock at key if we still hold it
func (lock *RedisLock) Release(key string) error {
	holder, err := redis.String(lock.conn.Do("GET", key))
	if err != nil {
		if err == redis.ErrNil {
			return nil
		}
		return err
	}
	if holder != lock.token {
		return nil
	}
	_, err = redis.Int(lock.conn.Do("DEL", key))
	return err
}

// Disconnect from a Redis instance
func (lock *RedisLock) Disconnect() error {
	lock.conn.Flush()
	return lock.conn.Close()
}
