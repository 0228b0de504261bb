package tour

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Store is the key-value persistence adapter behind the seen set and the
// tour-in-progress flag. Get reports found=false for a missing key.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// ExpiringStore is implemented by stores that can expire a key on their own.
// The controller uses it for the flag when Options.FlagTTL is set.
type ExpiringStore interface {
	Store
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
}

const (
	seenKeyPrefix = "tour:seen:"

	// DefaultFlagKey is the tour-in-progress key used when Options.FlagKey is empty.
	DefaultFlagKey = "tour:in-progress"

	flagValue = "true"
)

// SeenKey is the store key holding the seen set of userID.
func SeenKey(userID string) string {
	return seenKeyPrefix + userID
}

// FlagKey scopes the tour-in-progress flag to one user session.
func FlagKey(userID string) string {
	return DefaultFlagKey + ":" + userID
}

// FlagSet reports whether the tour-in-progress flag at key is set.
func FlagSet(ctx context.Context, store Store, key string) (bool, error) {
	v, ok, err := store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return ok && v == flagValue, nil
}

func encodeSeen(seen map[string]struct{}) (string, error) {
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	b, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeSeen(raw string) (map[string]struct{}, error) {
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("decode seen set: %w", err)
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return seen, nil
}

// LoadSeen reads the seen set of userID. A missing key is an empty set.
func LoadSeen(ctx context.Context, store Store, userID string) ([]string, error) {
	raw, ok, err := store.Get(ctx, SeenKey(userID))
	if err != nil || !ok {
		return []string{}, err
	}
	seen, err := decodeSeen(raw)
	if err != nil {
		return []string{}, err
	}
	return sortedIDs(seen), nil
}

func sortedIDs(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
