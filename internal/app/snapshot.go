package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/carekeeper/internal/models"
	"github.com/dmitrijs2005/carekeeper/internal/paths"
	"github.com/dmitrijs2005/carekeeper/internal/records"
)

// Snapshot collects every profile, record and settings document held
// locally. It is the backup pipeline's snapshot source.
func (a *App) Snapshot(ctx context.Context) (models.Snapshot, error) {
	users, err := a.owners.List(ctx)
	if err != nil {
		return models.Snapshot{}, err
	}

	snap := models.Snapshot{
		Users:    users,
		Records:  []models.Record{},
		Settings: map[string]json.RawMessage{},
	}
	for _, s := range a.stores {
		recs, err := s.All(ctx)
		if err != nil {
			return models.Snapshot{}, fmt.Errorf("collect %s records: %w", s.Type(), err)
		}
		snap.Records = append(snap.Records, recs...)
	}

	owners, err := a.knownOwners(ctx)
	if err != nil {
		return models.Snapshot{}, err
	}
	for _, id := range owners {
		doc, err := a.owners.Settings(ctx, id)
		if err != nil {
			return models.Snapshot{}, err
		}
		if !bytes.Equal(bytes.TrimSpace(doc), []byte("{}")) {
			snap.Settings[id] = doc
		}
	}
	return snap, nil
}

// Import makes local state match snap for every owner it mentions: their
// profiles are overwritten, and each owner's envelope of every type is
// rebuilt from snap's records. Owners absent from snap are left alone.
// All local writes are committed in one transaction. Nothing is mirrored;
// run Push afterwards to publish the result.
func (a *App) Import(ctx context.Context, snap models.Snapshot) error {
	grouped := make(map[string]map[models.RecordType][]models.Record)
	add := func(id string) {
		if _, ok := grouped[id]; !ok {
			grouped[id] = make(map[models.RecordType][]models.Record)
		}
	}

	users := make([]models.Owner, 0, len(snap.Users))
	for _, u := range snap.Users {
		id := paths.OwnerID(u.ID)
		if id == "" {
			continue
		}
		u.ID = id
		users = append(users, u)
		add(id)
	}

	for _, r := range snap.Records {
		id := paths.OwnerID(r.OwnerID)
		if id == "" {
			a.logger.Warn(ctx, "restored record without owner skipped", "record", r.ID)
			continue
		}
		if _, err := models.ParseRecordType(string(r.Type)); err != nil {
			a.logger.Warn(ctx, "restored record of unknown type skipped", "record", r.ID, "type", r.Type)
			continue
		}
		add(id)
		r.OwnerID = id
		r.Normalize()
		grouped[id][r.Type] = append(grouped[id][r.Type], r)
	}

	batch := records.NewBatch(a.kv)

	if len(users) > 0 {
		merged, err := a.mergeProfiles(ctx, users)
		if err != nil {
			return fmt.Errorf("import profiles: %w", err)
		}
		if err := a.owners.StageProfiles(batch, merged); err != nil {
			return fmt.Errorf("import profiles: %w", err)
		}
	}

	now := a.now().UTC()
	for id, byType := range grouped {
		for _, s := range a.stores {
			env, err := models.NewEnvelope(paths.Resolve(id), byType[s.Type()], now)
			if err != nil {
				return fmt.Errorf("build %s envelope for %s: %w", s.Type(), id, err)
			}
			if err := s.StageReplace(batch, env); err != nil {
				return fmt.Errorf("import %s records for %s: %w", s.Type(), id, err)
			}
		}
	}

	for id, doc := range snap.Settings {
		if paths.OwnerID(id) == "" {
			continue
		}
		if err := a.owners.StageSettings(batch, id, doc); err != nil {
			return fmt.Errorf("import settings: %w", err)
		}
	}

	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("import: %w", err)
	}

	a.logger.Info(ctx, "snapshot imported", "owners", len(grouped), "records", len(snap.Records), "keys", batch.Len())
	return nil
}

// mergeProfiles returns the local profile list with the given profiles
// overwriting or appended to it.
func (a *App) mergeProfiles(ctx context.Context, users []models.Owner) ([]models.Owner, error) {
	local, err := a.owners.List(ctx)
	if err != nil {
		return nil, err
	}

	incoming := make(map[string]models.Owner, len(users))
	for _, u := range users {
		incoming[u.ID] = u
	}

	merged := make([]models.Owner, 0, len(local)+len(users))
	for _, u := range local {
		if in, ok := incoming[paths.OwnerID(u.ID)]; ok {
			merged = append(merged, in)
			delete(incoming, in.ID)
			continue
		}
		merged = append(merged, u)
	}
	for _, u := range users {
		if _, ok := incoming[u.ID]; ok {
			merged = append(merged, u)
			delete(incoming, u.ID)
		}
	}
	return merged, nil
}
