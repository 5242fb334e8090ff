package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

const bucketName = "account_setup_drafts"

// KVStore persists drafts in a JetStream key-value bucket so they
// survive process restarts.
type KVStore struct {
	kv jetstream.KeyValue
}

// NewKVStore creates or binds the draft bucket on the given JetStream
// context.
func NewKVStore(ctx context.Context, js jetstream.JetStream) (*KVStore, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  bucketName,
		Storage: jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("creating draft bucket: %w", err)
	}

	return &KVStore{kv: kv}, nil
}

func draftKey(userID string) string {
	return StorageKey + "." + userID
}

func (s *KVStore) Load(ctx context.Context, userID string) (Data, error) {
	entry, err := s.kv.Get(ctx, draftKey(userID))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return Data{}, ErrNotFound
		}
		return Data{}, fmt.Errorf("loading draft: %w", err)
	}

	var d Data
	if err := json.Unmarshal(entry.Value(), &d); err != nil {
		return Data{}, fmt.Errorf("decoding draft: %w", err)
	}
	return d, nil
}

func (s *KVStore) Save(ctx context.Context, userID string, d Data) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encoding draft: %w", err)
	}

	if _, err := s.kv.Put(ctx, draftKey(userID), data); err != nil {
		return fmt.Errorf("saving draft: %w", err)
	}
	return nil
}

func (s *KVStore) Clear(ctx context.Context, userID string) error {
	err := s.kv.Delete(ctx, draftKey(userID))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("clearing draft: %w", err)
	}
	return nil
}
