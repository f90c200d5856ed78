package records

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/carekeeper/internal/kv"
	"github.com/dmitrijs2005/carekeeper/internal/models"
	"github.com/dmitrijs2005/carekeeper/internal/paths"
)

// Batch collects local writes from several stores and commits them with a
// single kv.Repository.SetMany, so either all of them land or none do.
// Nothing staged in a batch is mirrored to the cloud.
type Batch struct {
	repo   kv.Repository
	values map[string][]byte
	forget []func()
}

func NewBatch(repo kv.Repository) *Batch {
	return &Batch{repo: repo, values: make(map[string][]byte)}
}

// Len reports how many keys are staged.
func (b *Batch) Len() int {
	return len(b.values)
}

// Commit writes every staged key atomically. Caches of the stores involved
// are dropped afterwards so later reads see the committed values.
func (b *Batch) Commit(ctx context.Context) error {
	if len(b.values) == 0 {
		return nil
	}
	if err := b.repo.SetMany(ctx, b.values); err != nil {
		return fmt.Errorf("commit batch of %d keys: %w", len(b.values), err)
	}
	for _, fn := range b.forget {
		fn()
	}
	return nil
}

// StageReplace is Replace deferred to b.Commit.
func (s *Store) StageReplace(b *Batch, env models.RecordsEnvelope) error {
	id, env, err := s.prepare(env)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	b.values[paths.LocalRecordsKey(s.appPrefix, string(s.recordType), id)] = data
	b.forget = append(b.forget, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.cache, id)
	})
	return nil
}

// StageProfiles stages users as the whole profile list.
func (s *OwnerStore) StageProfiles(b *Batch, users []models.Owner) error {
	env, err := models.NewProfilesEnvelope(users, s.now())
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal profiles: %w", err)
	}
	b.values[paths.LocalProfilesKey(s.appPrefix)] = data
	return nil
}

// StageSettings is SetSettings deferred to b.Commit.
func (s *OwnerStore) StageSettings(b *Batch, id string, doc json.RawMessage) error {
	if err := checkSettings(id, doc); err != nil {
		return err
	}
	b.values[paths.LocalSettingsKey(s.appPrefix, id)] = doc
	return nil
}
