package mock

import (
	"fmt"
	"strconv"

	"github.com/gomodule/redigo/redis"
	redigomock "github.com/rafaeljusto/redigomock/v3"
)

// RedisCache implements a mock Redis cache using keys
type RedisCache struct {
	// conn holds the Redis connection
	conn redis.Conn
	// values simulates the cache keyspace
	values map[string]int
}

// NewRedisCache creates a new instance of the Redis mock cache backed
// by an in-memory map so sets are readable again within a test
func NewRedisCache() (*RedisCache, error) {

	conn := redigomock.NewConn()
	values := make(map[string]int)

	// Set up simulated call for storing a value
	conn.GenericCommand("SET").Handle(redigomock.ResponseHandler(func(args []interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("unexpected number of arguments: expected 2, received %d", len(args))
		}
		value, err := strconv.Atoi(fmt.Sprintf("%v", args[1]))
		if err != nil {
			return nil, err
		}
		values[fmt.Sprintf("%v", args[0])] = value
		return "OK", nil
	}))

	// Set up simulated call for reading a value
	conn.GenericCommand("GET").Handle(redigomock.ResponseHandler(func(args []interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("unexpected number of arguments: expected 1, received %d", len(args))
		}
		value, ok := values[fmt.Sprintf("%v", args[0])]
		if !ok {
			return nil, nil
		}
		return []byte(strconv.Itoa(value)), nil
	}))

	// Set up simulated call for deleting a value
	conn.GenericCommand("DEL").Handle(redigomock.ResponseHandler(func(args []interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("unexpected number of arguments: expected 1, received %d", len(args))
		}
		key := fmt.Sprintf("%v", args[0])
		if _, ok := values[key]; !ok {
			return int64(0), nil
		}
		delete(values, key)
		return int64(1), nil
	}))

	return &RedisCache{
		conn:   conn,
		values: values,
	}, nil
}

// Connect to a Redis instance
func (cache *RedisCache) Connect() error {
	// We already have a connection, this will error
	// if the connection is not usable
	return cache.conn.Err()
}

// Set an integer value at key
func (cache *RedisCache) Set(key string, value int) error {
	// https://redis.io/commands/set/
	_, err := cache.conn.Do("SET", key, value)
	return err
}

// GetInt retrieves the integer value at key
func (cache *RedisCache) GetInt(key string) (int, bool, error) {
	// https://redis.io/commands/get/
	value, err := redis.Int(cache.conn.Do("GET", key))
	if err != nil {
		// Key not found
		if err == redis.ErrNil {
			return 0, false, nil
		}
		return 0, false, err
	}
	return value, true, nil
}

// Delete a key
func (cache *RedisCache) Delete(key string) error {
	// DEL deletes the key and acts as a clear operation
	// https://redis.io/commands/del/
	// DEL returns the amount of items deleted and an error where applicable
	_, err := redis.Int(cache.conn.Do("DEL", key))
	return err
}

// Disconnect from a Redis instance
func (cache *RedisCache) Disconnect() error {
	cache.conn.Flush()
	return cache.conn.Close()
}
