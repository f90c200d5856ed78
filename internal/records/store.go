package records

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/carekeeper/internal/common"
	"github.com/dmitrijs2005/carekeeper/internal/kv"
	"github.com/dmitrijs2005/carekeeper/internal/logging"
	"github.com/dmitrijs2005/carekeeper/internal/models"
	"github.com/dmitrijs2005/carekeeper/internal/paths"
)

// Mirror uploads an owner's current local envelope to the cloud.
type Mirror interface {
	PushToCloud(ctx context.Context, owner string) error
}

// Puller reads an owner's cloud envelope without applying it.
type Puller interface {
	Fetch(ctx context.Context, owner string) (models.RecordsEnvelope, bool, error)
}

type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Store persists one record type for every owner.
type Store struct {
	repo       kv.Repository
	appPrefix  string
	recordType models.RecordType
	logger     logging.Logger
	now        func() time.Time

	mu     sync.Mutex
	cache  map[string]models.RecordsEnvelope
	mirror Mirror
	puller Puller

	background
}

func NewStore(repo kv.Repository, appPrefix string, recordType models.RecordType, logger logging.Logger, opts ...Option) *Store {
	o := buildOptions(opts)
	logger = logger.With("module", "records", "type", string(recordType))
	return &Store{
		repo:       repo,
		appPrefix:  appPrefix,
		recordType: recordType,
		logger:     logger,
		now:        o.now,
		cache:      make(map[string]models.RecordsEnvelope),
		background: background{logger: logger},
	}
}

// SetMirror and SetPuller attach the sync engine after construction; the
// engine itself needs the store, so neither can be a constructor argument.
func (s *Store) SetMirror(m Mirror) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mirror = m
}

func (s *Store) SetPuller(p Puller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puller = p
}

func (s *Store) Type() models.RecordType {
	return s.recordType
}

// Load returns the owner's envelope, or an empty one when nothing usable is
// stored. Only storage failures are returned as errors.
func (s *Store) Load(ctx context.Context, owner string) (models.RecordsEnvelope, error) {
	if err := paths.Validate(owner); err != nil {
		return models.RecordsEnvelope{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	env, _, err := s.loadLocked(ctx, paths.OwnerID(owner))
	if err != nil {
		return models.RecordsEnvelope{}, err
	}
	return env.Clone(), nil
}

// Local reads the envelope straight from the local cache and reports
// whether a valid one exists. It is what the sync engine compares against.
func (s *Store) Local(ctx context.Context, owner string) (models.RecordsEnvelope, bool, error) {
	if err := paths.Validate(owner); err != nil {
		return models.RecordsEnvelope{}, false, err
	}

	id := paths.OwnerID(owner)

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cache, id)
	env, exists, err := s.loadLocked(ctx, id)
	if err != nil {
		return models.RecordsEnvelope{}, false, err
	}
	return env.Clone(), exists, nil
}

func (s *Store) loadLocked(ctx context.Context, id string) (models.RecordsEnvelope, bool, error) {
	if env, ok := s.cache[id]; ok {
		return env, true, nil
	}

	key := paths.LocalRecordsKey(s.appPrefix, string(s.recordType), id)
	data, err := s.repo.Get(ctx, key)
	if err != nil {
		return models.RecordsEnvelope{}, false, fmt.Errorf("load %s: %w", key, err)
	}
	if len(data) == 0 {
		return models.EmptyEnvelope(paths.Resolve(id)), false, nil
	}

	var env models.RecordsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Warn(ctx, "malformed local envelope, treating as empty", "owner", id, "error", err)
		return models.EmptyEnvelope(paths.Resolve(id)), false, nil
	}
	for i := range env.Records {
		env.Records[i].Normalize()
	}
	if env.Records == nil {
		env.Records = []models.Record{}
	}
	if err := env.Verify(); err != nil {
		s.logger.Warn(ctx, "local envelope checksum mismatch, recomputing", "owner", id, "error", err)
		if sum, err := models.Checksum(env.Records); err == nil {
			env.Checksum = sum
		}
	}

	s.cache[id] = env
	return env, true, nil
}

// Replace stores env as-is (after normalizing) without mirroring it. The
// sync engine uses it to apply a pulled copy.
func (s *Store) Replace(ctx context.Context, env models.RecordsEnvelope) error {
	id, env, err := s.prepare(env)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(ctx, id, env)
}

// prepare validates env's owner and returns the bare owner id together
// with a normalized copy of env.
func (s *Store) prepare(env models.RecordsEnvelope) (string, models.RecordsEnvelope, error) {
	if err := paths.Validate(env.UniqueOwnerID); err != nil {
		return "", models.RecordsEnvelope{}, err
	}
	id := paths.OwnerID(env.UniqueOwnerID)

	env = env.Clone()
	env.UniqueOwnerID = paths.Resolve(id)
	for i := range env.Records {
		env.Records[i].Normalize()
	}
	return id, env, nil
}

func (s *Store) writeLocked(ctx context.Context, id string, env models.RecordsEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	key := paths.LocalRecordsKey(s.appPrefix, string(s.recordType), id)
	if err := s.repo.Set(ctx, key, data); err != nil {
		return err
	}
	s.cache[id] = env
	return nil
}

// commitLocked persists records as the owner's new envelope and schedules
// the cloud mirror.
func (s *Store) commitLocked(ctx context.Context, id string, list []models.Record) error {
	env, err := models.NewEnvelope(paths.Resolve(id), list, s.now())
	if err != nil {
		return err
	}
	if err := s.writeLocked(ctx, id, env); err != nil {
		return err
	}

	if s.mirror != nil {
		mirror := s.mirror
		s.spawn(ctx, "mirror push failed", []any{"owner", id}, func(ctx context.Context) error {
			return mirror.PushToCloud(ctx, id)
		})
	}
	return nil
}

// Add appends rec to its owner's envelope. A missing id is generated and
// timestamps are stamped; the stored record is returned.
func (s *Store) Add(ctx context.Context, rec models.Record) (models.Record, error) {
	if err := paths.Validate(rec.OwnerID); err != nil {
		return models.Record{}, err
	}
	if err := s.checkType(&rec); err != nil {
		return models.Record{}, err
	}

	id := paths.OwnerID(rec.OwnerID)
	rec.OwnerID = id
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := s.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = later(now, rec.CreatedAt)
	rec.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	env, _, err := s.loadLocked(ctx, id)
	if err != nil {
		return models.Record{}, err
	}
	for _, r := range env.Records {
		if r.ID == rec.ID {
			return models.Record{}, fmt.Errorf("record %s: %w", rec.ID, common.ErrAlreadyExists)
		}
	}

	list := append(env.Clone().Records, rec)
	if err := s.commitLocked(ctx, id, list); err != nil {
		return models.Record{}, err
	}
	return rec, nil
}

// Update replaces the record with the same id. CreatedAt is preserved.
func (s *Store) Update(ctx context.Context, rec models.Record) (models.Record, error) {
	if err := paths.Validate(rec.OwnerID); err != nil {
		return models.Record{}, err
	}
	if err := s.checkType(&rec); err != nil {
		return models.Record{}, err
	}

	id := paths.OwnerID(rec.OwnerID)
	rec.OwnerID = id
	rec.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	env, _, err := s.loadLocked(ctx, id)
	if err != nil {
		return models.Record{}, err
	}

	list := env.Clone().Records
	idx := indexOf(list, rec.ID)
	if idx < 0 {
		return models.Record{}, fmt.Errorf("record %s: %w", rec.ID, common.ErrorNotFound)
	}

	rec.CreatedAt = list[idx].CreatedAt
	rec.UpdatedAt = later(s.now().UTC(), rec.CreatedAt)
	list[idx] = rec

	if err := s.commitLocked(ctx, id, list); err != nil {
		return models.Record{}, err
	}
	return rec, nil
}

// Delete removes one record of owner.
func (s *Store) Delete(ctx context.Context, owner, recordID string) error {
	if err := paths.Validate(owner); err != nil {
		return err
	}
	id := paths.OwnerID(owner)

	s.mu.Lock()
	defer s.mu.Unlock()

	env, _, err := s.loadLocked(ctx, id)
	if err != nil {
		return err
	}

	list := env.Clone().Records
	idx := indexOf(list, recordID)
	if idx < 0 {
		return fmt.Errorf("record %s: %w", recordID, common.ErrorNotFound)
	}
	list = append(list[:idx], list[idx+1:]...)

	return s.commitLocked(ctx, id, list)
}

// ForceRefresh replaces everything held locally for owner with the cloud
// copy, ignoring timestamps. The cloud copy is read first; when that read
// fails local state is left as it was. A missing cloud copy leaves the
// owner empty.
func (s *Store) ForceRefresh(ctx context.Context, owner string) (models.RecordsEnvelope, error) {
	if err := paths.Validate(owner); err != nil {
		return models.RecordsEnvelope{}, err
	}
	id := paths.OwnerID(owner)

	s.mu.Lock()
	puller := s.puller
	s.mu.Unlock()

	var (
		remote models.RecordsEnvelope
		found  bool
	)
	if puller != nil {
		var err error
		remote, found, err = puller.Fetch(ctx, id)
		if err != nil {
			return models.RecordsEnvelope{}, fmt.Errorf("force refresh: %w", err)
		}
	}

	if found {
		if err := s.Replace(ctx, remote); err != nil {
			return models.RecordsEnvelope{}, fmt.Errorf("force refresh: %w", err)
		}
	} else if err := s.Purge(ctx, id); err != nil {
		return models.RecordsEnvelope{}, err
	}
	return s.Load(ctx, id)
}

// Purge deletes the owner's local envelope and cached copy.
func (s *Store) Purge(ctx context.Context, owner string) error {
	if err := paths.Validate(owner); err != nil {
		return err
	}
	id := paths.OwnerID(owner)

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cache, id)
	return s.repo.Delete(ctx, paths.LocalRecordsKey(s.appPrefix, string(s.recordType), id))
}

// Owners lists the ids of owners with a local envelope of this type.
func (s *Store) Owners(ctx context.Context) ([]string, error) {
	prefix := paths.LocalRecordsPrefix(s.appPrefix, string(s.recordType))
	all, err := s.repo.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	owners := make([]string, 0, len(all))
	for key := range all {
		owners = append(owners, strings.TrimPrefix(key, prefix))
	}
	sort.Strings(owners)
	return owners, nil
}

// All returns every record of this type across owners.
func (s *Store) All(ctx context.Context) ([]models.Record, error) {
	owners, err := s.Owners(ctx)
	if err != nil {
		return nil, err
	}

	var out []models.Record
	for _, o := range owners {
		env, err := s.Load(ctx, o)
		if err != nil {
			return nil, err
		}
		out = append(out, env.Records...)
	}
	return out, nil
}

func (s *Store) checkType(rec *models.Record) error {
	if rec.Type == "" {
		rec.Type = s.recordType
	}
	if rec.Type != s.recordType {
		return fmt.Errorf("%w: %s store got %s", common.ErrInvalidRecordType, s.recordType, rec.Type)
	}
	return nil
}

func indexOf(list []models.Record, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

func later(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
