package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dmitrijs2005/carekeeper/internal/common"
	"github.com/dmitrijs2005/carekeeper/internal/kv"
	"github.com/dmitrijs2005/carekeeper/internal/logging"
	"github.com/dmitrijs2005/carekeeper/internal/models"
	"github.com/dmitrijs2005/carekeeper/internal/objectstore"
	"github.com/dmitrijs2005/carekeeper/internal/paths"
)

// OwnerStore keeps the owner profile list locally and mirrors it to
// users/system/users.json. It also owns per-owner settings documents and
// the hard delete of an owner across every record store.
type OwnerStore struct {
	repo      kv.Repository
	objects   objectstore.Store
	appPrefix string
	logger    logging.Logger
	now       func() time.Time
	stores    []*Store

	mu sync.Mutex

	background
}

func NewOwnerStore(repo kv.Repository, objects objectstore.Store, appPrefix string, stores []*Store, logger logging.Logger, opts ...Option) *OwnerStore {
	o := buildOptions(opts)
	logger = logger.With("module", "owners")
	return &OwnerStore{
		repo:       repo,
		objects:    objects,
		appPrefix:  appPrefix,
		logger:     logger,
		now:        o.now,
		stores:     stores,
		background: background{logger: logger},
	}
}

func (s *OwnerStore) loadLocked(ctx context.Context) (models.ProfilesEnvelope, bool, error) {
	data, err := s.repo.Get(ctx, paths.LocalProfilesKey(s.appPrefix))
	if err != nil {
		return models.ProfilesEnvelope{}, false, fmt.Errorf("load profiles: %w", err)
	}
	if len(data) == 0 {
		return models.ProfilesEnvelope{Users: []models.Owner{}, Version: common.SchemaVersion}, false, nil
	}

	var env models.ProfilesEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Warn(ctx, "malformed local profiles, treating as empty", "error", err)
		return models.ProfilesEnvelope{Users: []models.Owner{}, Version: common.SchemaVersion}, false, nil
	}
	if env.Users == nil {
		env.Users = []models.Owner{}
	}
	return env, true, nil
}

func (s *OwnerStore) saveLocked(ctx context.Context, users []models.Owner) error {
	env, err := models.NewProfilesEnvelope(users, s.now())
	if err != nil {
		return err
	}
	return s.writeLocked(ctx, env)
}

func (s *OwnerStore) writeLocked(ctx context.Context, env models.ProfilesEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal profiles: %w", err)
	}
	return s.repo.Set(ctx, paths.LocalProfilesKey(s.appPrefix), data)
}

// List returns every known owner.
func (s *OwnerStore) List(ctx context.Context) ([]models.Owner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, _, err := s.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	return env.Users, nil
}

func (s *OwnerStore) Get(ctx context.Context, id string) (models.Owner, error) {
	users, err := s.List(ctx)
	if err != nil {
		return models.Owner{}, err
	}
	id = paths.OwnerID(id)
	for _, u := range users {
		if u.ID == id {
			return u, nil
		}
	}
	return models.Owner{}, fmt.Errorf("owner %s: %w", id, common.ErrorNotFound)
}

// Add registers a new owner. Without an id one is derived from the current
// time in milliseconds, which is how owner ids have always been minted.
func (s *OwnerStore) Add(ctx context.Context, o models.Owner) (models.Owner, error) {
	now := s.now().UTC()
	if o.ID == "" {
		o.ID = strconv.FormatInt(now.UnixMilli(), 10)
	}
	if err := paths.Validate(o.ID); err != nil {
		return models.Owner{}, err
	}
	o.ID = paths.OwnerID(o.ID)
	if o.Role == "" {
		o.Role = models.RoleFamily
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = later(now, o.CreatedAt)

	s.mu.Lock()
	defer s.mu.Unlock()

	env, _, err := s.loadLocked(ctx)
	if err != nil {
		return models.Owner{}, err
	}
	for _, u := range env.Users {
		if u.ID == o.ID {
			return models.Owner{}, fmt.Errorf("owner %s: %w", o.ID, common.ErrAlreadyExists)
		}
	}

	if err := s.saveLocked(ctx, append(env.Users, o)); err != nil {
		return models.Owner{}, err
	}
	s.spawn(ctx, "profiles push failed", nil, s.Push)
	return o, nil
}

func (s *OwnerStore) Update(ctx context.Context, o models.Owner) (models.Owner, error) {
	if err := paths.Validate(o.ID); err != nil {
		return models.Owner{}, err
	}
	o.ID = paths.OwnerID(o.ID)

	s.mu.Lock()
	defer s.mu.Unlock()

	env, _, err := s.loadLocked(ctx)
	if err != nil {
		return models.Owner{}, err
	}

	for i, u := range env.Users {
		if u.ID != o.ID {
			continue
		}
		o.CreatedAt = u.CreatedAt
		o.UpdatedAt = later(s.now().UTC(), o.CreatedAt)
		env.Users[i] = o
		if err := s.saveLocked(ctx, env.Users); err != nil {
			return models.Owner{}, err
		}
		s.spawn(ctx, "profiles push failed", nil, s.Push)
		return o, nil
	}
	return models.Owner{}, fmt.Errorf("owner %s: %w", o.ID, common.ErrorNotFound)
}

// Delete removes the owner and all of their data: local envelopes of every
// type, local settings and every cloud object under the owner's prefix.
// Local removal always completes; cloud failures are returned afterwards.
func (s *OwnerStore) Delete(ctx context.Context, id string) error {
	if err := paths.Validate(id); err != nil {
		return err
	}
	id = paths.OwnerID(id)

	s.mu.Lock()
	env, _, err := s.loadLocked(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	kept := env.Users[:0:0]
	found := false
	for _, u := range env.Users {
		if u.ID == id {
			found = true
			continue
		}
		kept = append(kept, u)
	}
	if !found {
		s.mu.Unlock()
		return fmt.Errorf("owner %s: %w", id, common.ErrorNotFound)
	}
	if err := s.saveLocked(ctx, kept); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	var errs []error
	for _, st := range s.stores {
		if err := st.Purge(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.repo.Delete(ctx, paths.LocalSettingsKey(s.appPrefix, id)); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("delete local data of %s: %w", id, err)
	}

	n, err := objectstore.DeletePrefix(ctx, s.objects, paths.OwnerDir(id))
	s.logger.Info(ctx, "deleted owner", "owner", id, "cloud_objects", n)
	if err != nil {
		return fmt.Errorf("delete cloud data of %s: %w", id, err)
	}
	return s.Push(ctx)
}

// Push uploads the local profile list unconditionally.
func (s *OwnerStore) Push(ctx context.Context) error {
	s.mu.Lock()
	env, _, err := s.loadLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal profiles: %w", err)
	}
	if err := s.objects.Put(ctx, paths.ProfilesKey, data, "application/json"); err != nil {
		return fmt.Errorf("push profiles: %w", err)
	}
	return nil
}

// Pull applies the cloud profile list under the same gate as record
// envelopes. It reports whether local state changed.
func (s *OwnerStore) Pull(ctx context.Context) (bool, error) {
	data, err := s.objects.GetFresh(ctx, paths.ProfilesKey)
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pull profiles: %w", err)
	}

	var remote models.ProfilesEnvelope
	if err := json.Unmarshal(data, &remote); err != nil {
		return false, fmt.Errorf("decode remote profiles: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	local, exists, err := s.loadLocked(ctx)
	if err != nil {
		return false, err
	}
	if !models.ShouldApply(exists, local.LastUpdated, local.Checksum, remote.LastUpdated, remote.Checksum) {
		return false, nil
	}
	if remote.Users == nil {
		remote.Users = []models.Owner{}
	}
	if err := s.writeLocked(ctx, remote); err != nil {
		return false, err
	}
	return true, nil
}

var emptySettings = json.RawMessage(`{}`)

// Settings returns the owner's settings document, "{}" when none is stored.
func (s *OwnerStore) Settings(ctx context.Context, id string) (json.RawMessage, error) {
	if err := paths.Validate(id); err != nil {
		return nil, err
	}
	data, err := s.repo.Get(ctx, paths.LocalSettingsKey(s.appPrefix, id))
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if len(data) == 0 || !json.Valid(data) {
		return emptySettings, nil
	}
	return json.RawMessage(data), nil
}

func (s *OwnerStore) SetSettings(ctx context.Context, id string, doc json.RawMessage) error {
	if err := checkSettings(id, doc); err != nil {
		return err
	}
	return s.repo.Set(ctx, paths.LocalSettingsKey(s.appPrefix, id), doc)
}

func checkSettings(id string, doc json.RawMessage) error {
	if err := paths.Validate(id); err != nil {
		return err
	}
	if !json.Valid(doc) {
		return fmt.Errorf("settings for %s are not valid JSON", paths.OwnerID(id))
	}
	return nil
}
