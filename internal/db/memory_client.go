package db

import (
	"context"
	"encoding"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryClient implements the LimitedRedisClient interface on top of an in-process map.
// It backs the process-local pending flag and the "redis-mock" persistence type.
// The values are stored as strings like redis would do, expired keys are dropped when they are accessed.
// Contexts are completely ignored.
type MemoryClient struct {
	lock  sync.Mutex
	store map[string]memoryEntry
	now   func() time.Time
}

type memoryEntry struct {
	value     any
	expiresAt time.Time
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{store: map[string]memoryEntry{}, now: time.Now}
}

func (m *MemoryClient) entry(key string) (memoryEntry, bool) {
	e, found := m.store[key]
	if !found {
		return memoryEntry{}, false
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.store, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (m *MemoryClient) expiresAt(expiration time.Duration) time.Time {
	if expiration <= 0 {
		return time.Time{}
	}
	return m.now().Add(expiration)
}

func stringify(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		if v {
			return "1", nil
		}
		return "0", nil
	case time.Time:
		return v.Format(time.RFC3339Nano), nil
	case encoding.BinaryMarshaler:
		raw, err := v.MarshalBinary()
		return string(raw), err
	case encoding.TextMarshaler:
		raw, err := v.MarshalText()
		return string(raw), err
	default:
		return "", fmt.Errorf("can't marshal %T", value)
	}
}

func convertValuesToMap(values ...any) (map[string]string, error) {
	if len(values)%2 != 0 {
		return map[string]string{}, fmt.Errorf("number of provided values must be even")
	}
	output := map[string]string{}
	for i := 0; i < len(values); i += 2 {
		key, ok := values[i].(string)
		if !ok {
			return map[string]string{}, fmt.Errorf("hash field names must be strings, got %T", values[i])
		}
		val, err := stringify(values[i+1])
		if err != nil {
			return map[string]string{}, err
		}
		output[key] = val
	}
	return output, nil
}

func (m *MemoryClient) Del(_ context.Context, keys ...string) *redis.IntCmd {
	m.lock.Lock()
	defer m.lock.Unlock()
	var deleted int64
	for _, k := range keys {
		if _, found := m.entry(k); found {
			delete(m.store, k)
			deleted++
		}
	}
	res := redis.IntCmd{}
	res.SetVal(deleted)
	return &res
}

func (m *MemoryClient) Exists(_ context.Context, keys ...string) *redis.IntCmd {
	m.lock.Lock()
	defer m.lock.Unlock()
	var existing int64
	for _, k := range keys {
		if _, found := m.entry(k); found {
			existing++
		}
	}
	res := redis.IntCmd{}
	res.SetVal(existing)
	return &res
}

func (m *MemoryClient) Get(_ context.Context, key string) *redis.StringCmd {
	m.lock.Lock()
	defer m.lock.Unlock()
	res := redis.StringCmd{}
	e, found := m.entry(key)
	if !found {
		res.SetErr(redis.Nil)
		return &res
	}
	val, ok := e.value.(string)
	if !ok {
		res.SetErr(fmt.Errorf("WRONGTYPE Operation against a key holding the wrong kind of value"))
		return &res
	}
	res.SetVal(val)
	return &res
}

func (m *MemoryClient) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.lock.Lock()
	defer m.lock.Unlock()
	res := redis.StatusCmd{}
	val, err := stringify(value)
	if err != nil {
		res.SetErr(err)
		return &res
	}
	m.store[key] = memoryEntry{value: val, expiresAt: m.expiresAt(expiration)}
	res.SetVal("OK")
	return &res
}

func (m *MemoryClient) SetNX(_ context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	m.lock.Lock()
	defer m.lock.Unlock()
	res := redis.BoolCmd{}
	if _, found := m.entry(key); found {
		res.SetVal(false)
		return &res
	}
	val, err := stringify(value)
	if err != nil {
		res.SetErr(err)
		return &res
	}
	m.store[key] = memoryEntry{value: val, expiresAt: m.expiresAt(expiration)}
	res.SetVal(true)
	return &res
}

func (m *MemoryClient) HSet(_ context.Context, key string, values ...any) *redis.IntCmd {
	m.lock.Lock()
	defer m.lock.Unlock()
	res := redis.IntCmd{}
	val, err := convertValuesToMap(values...)
	if err != nil {
		res.SetErr(err)
		return &res
	}
	hash := map[string]string{}
	if e, found := m.entry(key); found {
		existing, ok := e.value.(map[string]string)
		if !ok {
			res.SetErr(fmt.Errorf("WRONGTYPE Operation against a key holding the wrong kind of value"))
			return &res
		}
		hash = existing
	}
	var added int64
	for k, v := range val {
		if _, found := hash[k]; !found {
			added++
		}
		hash[k] = v
	}
	m.store[key] = memoryEntry{value: hash}
	res.SetVal(added)
	return &res
}

func (m *MemoryClient) HGetAll(_ context.Context, key string) *redis.MapStringStringCmd {
	m.lock.Lock()
	defer m.lock.Unlock()
	res := redis.MapStringStringCmd{}
	res.SetVal(map[string]string{})
	e, found := m.entry(key)
	if !found {
		return &res
	}
	hash, ok := e.value.(map[string]string)
	if !ok {
		res.SetErr(fmt.Errorf("WRONGTYPE Operation against a key holding the wrong kind of value"))
		return &res
	}
	output := make(map[string]string, len(hash))
	for k, v := range hash {
		output[k] = v
	}
	res.SetVal(output)
	return &res
}
