package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "opgate/pkg/domain"
	audit "opgate/pkg/platform/audit"
)

// DefaultKey is the list that holds the trail when no key is configured.
const DefaultKey = "opgate:audit:entries"

// appendScript adds the entry ID to the ID set and pushes the record only when
// the ID is new, so a retried Append never stores an entry twice.
// KEYS[1] list, KEYS[2] ID set; ARGV[1] entry ID, ARGV[2] record.
var appendScript = redis.NewScript(`
if redis.call("SADD", KEYS[2], ARGV[1]) == 1 then
	redis.call("RPUSH", KEYS[1], ARGV[2])
	return 1
end
return 0
`)

// Store keeps the trail in a Redis list of JSON records, oldest first, with a
// companion set of entry IDs ("<key>:ids") that makes Append idempotent.
// Durability follows the server's persistence settings; run Redis with
// appendfsync always, or require replica acknowledgement with WithWaitReplicas.
type Store struct {
	client      *redis.Client
	key         string
	replicas    int
	waitTimeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithKey overrides the list key.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithWaitReplicas makes Append block until n replicas acknowledge the write.
func WithWaitReplicas(n int, timeout time.Duration) Option {
	return func(s *Store) {
		s.replicas = n
		s.waitTimeout = timeout
	}
}

// New constructs a Redis-backed audit store.
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{client: client, key: DefaultKey}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Append pushes the encoded entry onto the tail of the list. An entry whose ID
// is already stored is not pushed again, so retrying after a failed replica
// wait is safe; the wait itself is repeated.
func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	data, err := audit.MarshalEntry(entry)
	if err != nil {
		return err
	}
	keys := []string{s.key, s.idsKey()}
	if err := appendScript.Run(ctx, s.client, keys, entry.ID.String(), data).Err(); err != nil {
		return fmt.Errorf("push audit entry: %w", err)
	}
	if s.replicas > 0 {
		acked, err := s.client.Wait(ctx, s.replicas, s.waitTimeout).Result()
		if err != nil {
			return fmt.Errorf("wait for audit replicas: %w", err)
		}
		if acked < int64(s.replicas) {
			return fmt.Errorf("audit entry acknowledged by %d of %d replicas", acked, s.replicas)
		}
	}
	return nil
}

// Load returns every entry in push order. Lists written before the ID set
// existed may hold repeats of one ID; only the first is returned.
func (s *Store) Load(ctx context.Context) ([]audit.Entry, error) {
	raw, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange audit entries: %w", err)
	}
	entries := make([]audit.Entry, 0, len(raw))
	seen := make(map[id.EntryID]struct{}, len(raw))
	for i, item := range raw {
		e, err := audit.UnmarshalEntry([]byte(item))
		if err != nil {
			return nil, fmt.Errorf("decode audit entry %d: %w", i, err)
		}
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *Store) idsKey() string {
	return s.key + ":ids"
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
