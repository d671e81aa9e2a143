// Package localstore is the on-device cache: one named table per record
// family, backed by Redis. The session boundary requires a total clear of
// every table on logout, so the table list is closed and ClearAll iterates
// it rather than trusting callers to enumerate tables themselves.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	TableWorkspaces     = "workspaces"
	TableFolders        = "folders"
	TableDocuments      = "documents"
	TableSettings       = "settings"
	TableWorkspaceIDMap = "workspace-id-mappings"
)

// Tables is the closed set of on-device tables. ClearAll walks this list;
// adding a table here is what makes it part of the logout wipe.
var Tables = []string{
	TableWorkspaces,
	TableFolders,
	TableDocuments,
	TableSettings,
	TableWorkspaceIDMap,
}

var ErrNotFound = errors.New("localstore: not found")

// Store is a per-table JSON key/value store.
type Store struct {
	client *redis.Client
}

// New connects to Redis and verifies the connection.
func New(redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Store{client: client}, nil
}

// NewWithClient wraps an existing Redis client.
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) key(table, id string) string {
	return table + ":" + id
}

// Put stores v under table/id as JSON.
func (s *Store) Put(ctx context.Context, table, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", table, err)
	}
	if err := s.client.Set(ctx, s.key(table, id), data, 0).Err(); err != nil {
		return fmt.Errorf("put %s record: %w", table, err)
	}
	return nil
}

// Get loads table/id into dest. Missing keys return ErrNotFound.
func (s *Store) Get(ctx context.Context, table, id string, dest any) error {
	data, err := s.client.Get(ctx, s.key(table, id)).Result()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s record: %w", table, err)
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("unmarshal %s record: %w", table, err)
	}
	return nil
}

// Delete removes table/id. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, table, id string) error {
	if err := s.client.Del(ctx, s.key(table, id)).Err(); err != nil {
		return fmt.Errorf("delete %s record: %w", table, err)
	}
	return nil
}

// List returns the raw JSON of every record in a table.
func (s *Store) List(ctx context.Context, table string) ([][]byte, error) {
	keys, err := s.tableKeys(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s records: %w", table, err)
	}
	out := make([][]byte, 0, len(values))
	for _, v := range values {
		if str, ok := v.(string); ok {
			out = append(out, []byte(str))
		}
	}
	return out, nil
}

// ListInto unmarshals every record of a table into a slice of T.
func ListInto[T any](ctx context.Context, s *Store, table string) ([]T, error) {
	raw, err := s.List(ctx, table)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raw))
	for _, data := range raw {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("unmarshal %s record: %w", table, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Clear removes every record in one table.
func (s *Store) Clear(ctx context.Context, table string) error {
	keys, err := s.tableKeys(ctx, table)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("clear %s table: %w", table, err)
	}
	return nil
}

// ClearAll wipes every known table. A partial clear is worse than a failed
// one, so the first error aborts and is reported; callers retry the wipe.
func (s *Store) ClearAll(ctx context.Context) error {
	for _, table := range Tables {
		if err := s.Clear(ctx, table); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of records in a table.
func (s *Store) Count(ctx context.Context, table string) (int, error) {
	keys, err := s.tableKeys(ctx, table)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (s *Store) tableKeys(ctx context.Context, table string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, table+":*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		// "workspaces:*" also matches nothing else today, but keep the
		// prefix check strict in case table names ever nest.
		if strings.HasPrefix(key, table+":") {
			keys = append(keys, key)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %s table: %w", table, err)
	}
	return keys, nil
}

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
