// Package cloudsync reconciles local record envelopes with the primary
// object store. One Engine serves one record type for every owner.
//
// Pushes overwrite the remote envelope unconditionally. Pulls apply the
// remote envelope only when there is no local one, or when it is strictly
// newer and its checksum differs; the whole envelope wins, nothing is merged.
// Failures are kept in a last-error slot and returned, never retried.
package cloudsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/carekeeper/internal/common"
	"github.com/dmitrijs2005/carekeeper/internal/logging"
	"github.com/dmitrijs2005/carekeeper/internal/metrics"
	"github.com/dmitrijs2005/carekeeper/internal/models"
	"github.com/dmitrijs2005/carekeeper/internal/objectstore"
	"github.com/dmitrijs2005/carekeeper/internal/paths"
)

// LocalStore is the part of records.Store the engine needs.
type LocalStore interface {
	Type() models.RecordType
	Local(ctx context.Context, owner string) (models.RecordsEnvelope, bool, error)
	Replace(ctx context.Context, env models.RecordsEnvelope) error
}

type Option func(*Engine)

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

type Engine struct {
	store   LocalStore
	objects objectstore.Store
	logger  logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.Mutex
	lastErr string
}

func New(store LocalStore, objects objectstore.Store, logger logging.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		objects: objects,
		logger:  logger.With("module", "cloudsync", "type", string(store.Type())),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Type() models.RecordType {
	return e.store.Type()
}

// LastError returns the message of the most recent failure, or "" when the
// last operation succeeded.
func (e *Engine) LastError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

func (e *Engine) record(ctx context.Context, op, owner string, start time.Time, err error) error {
	e.metrics.ObserveSync(op, string(e.Type()), start, err)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.lastErr = err.Error()
		e.logger.Error(ctx, op+" failed", "owner", owner, "error", err)
		return err
	}
	e.lastErr = ""
	return nil
}

// PushToCloud uploads the owner's local envelope, overwriting the remote one.
func (e *Engine) PushToCloud(ctx context.Context, owner string) error {
	start := time.Now()
	err := e.push(ctx, owner)
	return e.record(ctx, "push", owner, start, err)
}

func (e *Engine) push(ctx context.Context, owner string) error {
	if err := paths.Validate(owner); err != nil {
		return err
	}

	env, _, err := e.store.Local(ctx, owner)
	if err != nil {
		return fmt.Errorf("read local envelope: %w", err)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	key := paths.EnvelopeKey(owner, string(e.Type()))
	if err := e.objects.Put(ctx, key, data, "application/json"); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}

	e.logger.Debug(ctx, "pushed envelope", "owner", paths.OwnerID(owner), "records", len(env.Records), "checksum", env.Checksum)
	return nil
}

// PullFromCloud applies the remote envelope when ShouldApply allows it and
// reports whether local state changed. A missing remote is not an error.
func (e *Engine) PullFromCloud(ctx context.Context, owner string) (bool, error) {
	start := time.Now()
	applied, err := e.pull(ctx, owner, false)
	return applied, e.record(ctx, "pull", owner, start, err)
}

// ForcePull applies the remote envelope whenever one exists.
func (e *Engine) ForcePull(ctx context.Context, owner string) (bool, error) {
	start := time.Now()
	applied, err := e.pull(ctx, owner, true)
	return applied, e.record(ctx, "force_pull", owner, start, err)
}

// Fetch downloads the owner's remote envelope with a cache-defeating read
// and reports whether one exists. Local state is not touched.
func (e *Engine) Fetch(ctx context.Context, owner string) (models.RecordsEnvelope, bool, error) {
	start := time.Now()
	remote, found, err := e.fetch(ctx, owner)
	return remote, found, e.record(ctx, "fetch", owner, start, err)
}

func (e *Engine) fetch(ctx context.Context, owner string) (models.RecordsEnvelope, bool, error) {
	if err := paths.Validate(owner); err != nil {
		return models.RecordsEnvelope{}, false, err
	}

	key := paths.EnvelopeKey(owner, string(e.Type()))
	data, err := e.objects.GetFresh(ctx, key)
	if errors.Is(err, common.ErrorNotFound) {
		return models.RecordsEnvelope{}, false, nil
	}
	if err != nil {
		return models.RecordsEnvelope{}, false, fmt.Errorf("download %s: %w", key, err)
	}

	var remote models.RecordsEnvelope
	if err := json.Unmarshal(data, &remote); err != nil {
		return models.RecordsEnvelope{}, false, fmt.Errorf("decode %s: %w", key, err)
	}
	remote.UniqueOwnerID = paths.Resolve(owner)
	if remote.Records == nil {
		remote.Records = []models.Record{}
	}
	return remote, true, nil
}

func (e *Engine) pull(ctx context.Context, owner string, force bool) (bool, error) {
	remote, found, err := e.fetch(ctx, owner)
	if err != nil || !found {
		return false, err
	}

	if !force {
		local, exists, err := e.store.Local(ctx, owner)
		if err != nil {
			return false, fmt.Errorf("read local envelope: %w", err)
		}
		if !ShouldApply(local, exists, remote) {
			e.logger.Debug(ctx, "pull skipped", "owner", paths.OwnerID(owner), "local_checksum", local.Checksum, "remote_checksum", remote.Checksum)
			return false, nil
		}
	}

	if err := e.store.Replace(ctx, remote); err != nil {
		return false, fmt.Errorf("apply remote envelope: %w", err)
	}

	e.logger.Info(ctx, "applied remote envelope", "owner", paths.OwnerID(owner), "records", len(remote.Records), "forced", force)
	return true, nil
}

// ShouldApply reports whether remote should replace local.
func ShouldApply(local models.RecordsEnvelope, localExists bool, remote models.RecordsEnvelope) bool {
	return models.ShouldApply(localExists, local.LastUpdated, local.Checksum, remote.LastUpdated, remote.Checksum)
}

// UploadAttachment stores a file under the owner's attachment folder for
// this record type and returns its descriptor with a download URL.
func (e *Engine) UploadAttachment(ctx context.Context, owner, name, mimeType string, data []byte) (models.Attachment, error) {
	start := time.Now()
	att, err := e.uploadAttachment(ctx, owner, name, mimeType, data)
	return att, e.record(ctx, "attachment", owner, start, err)
}

func (e *Engine) uploadAttachment(ctx context.Context, owner, name, mimeType string, data []byte) (models.Attachment, error) {
	if err := paths.Validate(owner); err != nil {
		return models.Attachment{}, err
	}

	key := paths.AttachmentKey(owner, string(e.Type()), e.now().UnixMilli(), name)
	if err := e.objects.Put(ctx, key, data, mimeType); err != nil {
		return models.Attachment{}, fmt.Errorf("upload %s: %w", key, err)
	}

	url, err := e.objects.URL(ctx, key)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("sign %s: %w", key, err)
	}

	return models.Attachment{
		ID:       uuid.NewString(),
		Name:     name,
		MimeType: mimeType,
		Size:     int64(len(data)),
		URL:      url,
	}, nil
}
