// Package migration repairs owner trees written under the legacy
// double-prefixed directory ("users/user_user_<id>/") by moving every
// object to the canonical directory with copy, verify, then delete.
package migration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"path"
	"sort"
	"strings"

	"github.com/dmitrijs2005/carekeeper/internal/common"
	"github.com/dmitrijs2005/carekeeper/internal/logging"
	"github.com/dmitrijs2005/carekeeper/internal/metrics"
	"github.com/dmitrijs2005/carekeeper/internal/models"
	"github.com/dmitrijs2005/carekeeper/internal/objectstore"
	"github.com/dmitrijs2005/carekeeper/internal/paths"
)

// Arrow separates source and destination in Report.MigratedFiles.
const Arrow = " → "

// ErrCanonicalNewer is reported for a legacy envelope that was not copied
// because the canonical envelope is at least as recent. The legacy object
// stays where it is until someone resolves the conflict.
var ErrCanonicalNewer = errors.New("canonical envelope is newer than the legacy copy")

type Summary struct {
	Users  int `json:"users"`
	Files  int `json:"files"`
	Failed int `json:"failed"`
}

// Report aggregates per-object outcomes. Success is false when any object
// or directory failed; objects already moved stay moved.
type Report struct {
	MigratedFiles []string `json:"migratedFiles"`
	Errors        []string `json:"errors"`
	Summary       Summary  `json:"summary"`
	Success       bool     `json:"success"`
}

func newReport() Report {
	return Report{MigratedFiles: []string{}, Errors: []string{}, Success: true}
}

func (r *Report) merge(o Report) {
	r.MigratedFiles = append(r.MigratedFiles, o.MigratedFiles...)
	r.Errors = append(r.Errors, o.Errors...)
	r.Summary.Users += o.Summary.Users
	r.Summary.Files += o.Summary.Files
	r.Summary.Failed += o.Summary.Failed
	r.Success = len(r.Errors) == 0
}

func (r *Report) fail(desc string, err error) {
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", desc, err))
	r.Summary.Failed++
}

type Option func(*Engine)

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

type Engine struct {
	objects objectstore.Store
	logger  logging.Logger
	metrics *metrics.Metrics
}

func New(objects objectstore.Store, logger logging.Logger, opts ...Option) *Engine {
	e := &Engine{objects: objects, logger: logger.With("module", "migration")}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// duplicateDirs lists the legacy top-level directories, keyed by owner id.
func (e *Engine) duplicateDirs(ctx context.Context) (map[string][]string, error) {
	listing, err := e.objects.List(ctx, paths.UsersRoot)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", paths.UsersRoot, err)
	}

	dirs := make(map[string][]string)
	for _, p := range listing.Prefixes {
		name := strings.TrimSuffix(strings.TrimPrefix(p, paths.UsersRoot), "/")
		if !paths.IsDuplicatePrefixed(name) {
			continue
		}
		id := paths.OwnerID(name)
		dirs[id] = append(dirs[id], p)
	}
	for id := range dirs {
		sort.Strings(dirs[id])
	}
	return dirs, nil
}

// UsersNeedingMigration lists the owner ids that still have a legacy
// directory. It only reads.
func (e *Engine) UsersNeedingMigration(ctx context.Context) ([]string, error) {
	dirs, err := e.duplicateDirs(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(dirs))
	for id := range dirs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// MigrateOwner moves every legacy directory of one owner. The returned
// error is reserved for failures that prevent the scan itself and for
// cancellation.
func (e *Engine) MigrateOwner(ctx context.Context, owner string) (Report, error) {
	if err := paths.Validate(owner); err != nil {
		return Report{}, err
	}

	dirs, err := e.duplicateDirs(ctx)
	if err != nil {
		return Report{}, err
	}

	id := paths.OwnerID(owner)
	report := e.migrateOwner(ctx, id, dirs[id])
	return report, ctx.Err()
}

// MigrateAll migrates every owner that has a legacy directory. A failing
// owner is recorded in the report and the next one is processed.
func (e *Engine) MigrateAll(ctx context.Context) (Report, error) {
	dirs, err := e.duplicateDirs(ctx)
	if err != nil {
		return Report{}, err
	}

	ids := make([]string, 0, len(dirs))
	for id := range dirs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	total := newReport()
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		total.merge(e.migrateOwner(ctx, id, dirs[id]))
	}
	return total, ctx.Err()
}

func (e *Engine) migrateOwner(ctx context.Context, id string, dirs []string) Report {
	report := newReport()
	report.Summary.Users = 1
	for _, dir := range dirs {
		e.migrateDir(ctx, dir, paths.OwnerDir(id), &report)
	}
	report.Success = len(report.Errors) == 0

	e.logger.Info(ctx, "owner migration finished",
		"owner", id,
		"migrated", len(report.MigratedFiles),
		"failed", report.Summary.Failed,
	)
	return report
}

// migrateDir moves every object under srcDir to the same relative key
// under dstDir, depth first in key order. A directory that cannot be
// listed is recorded as a failure and its siblings are still processed.
func (e *Engine) migrateDir(ctx context.Context, srcDir, dstDir string, report *Report) {
	if ctx.Err() != nil {
		return
	}

	listing, err := e.objects.List(ctx, srcDir)
	if err != nil {
		report.fail(srcDir, fmt.Errorf("list: %w", err))
		e.logger.Warn(ctx, "listing legacy directory failed", "dir", srcDir, "error", err)
		return
	}

	sort.Slice(listing.Objects, func(i, j int) bool { return listing.Objects[i].Key < listing.Objects[j].Key })
	for _, obj := range listing.Objects {
		if ctx.Err() != nil {
			return
		}
		dst := dstDir + strings.TrimPrefix(obj.Key, srcDir)
		desc := obj.Key + Arrow + dst

		report.Summary.Files++
		err := e.migrateObject(ctx, obj.Key, dst)
		e.metrics.MigrationFile(err)
		if err != nil {
			report.fail(desc, err)
			e.logger.Warn(ctx, "object migration failed", "from", obj.Key, "to", dst, "error", err)
			continue
		}
		report.MigratedFiles = append(report.MigratedFiles, desc)
	}

	sort.Strings(listing.Prefixes)
	for _, p := range listing.Prefixes {
		e.migrateDir(ctx, p, dstDir+strings.TrimPrefix(p, srcDir), report)
	}
}

// migrateObject copies src to dst, re-reads dst with a cache-defeating
// request, compares bytes and only then deletes src. A record envelope is
// not copied over a canonical envelope that is at least as recent; that
// case fails with ErrCanonicalNewer and src stays in place.
func (e *Engine) migrateObject(ctx context.Context, src, dst string) error {
	data, err := e.objects.Get(ctx, src)
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}

	if strings.HasSuffix(dst, "-records.json") {
		newer, err := e.destinationNewer(ctx, data, dst)
		if err != nil {
			return err
		}
		if newer {
			return ErrCanonicalNewer
		}
	}

	if err := e.objects.Put(ctx, dst, data, contentType(dst)); err != nil {
		return fmt.Errorf("write destination: %w", err)
	}

	copied, err := e.objects.GetFresh(ctx, dst)
	if err != nil {
		return fmt.Errorf("verify destination: %w", err)
	}
	if !bytes.Equal(copied, data) {
		return fmt.Errorf("%w: %s differs from %s", common.ErrVerificationFailed, dst, src)
	}

	if err := e.objects.Delete(ctx, src); err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	return nil
}

func (e *Engine) destinationNewer(ctx context.Context, srcData []byte, dst string) (bool, error) {
	dstData, err := e.objects.GetFresh(ctx, dst)
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read destination: %w", err)
	}
	if bytes.Equal(dstData, srcData) {
		return false, nil
	}

	var src, cur models.RecordsEnvelope
	if json.Unmarshal(srcData, &src) != nil || json.Unmarshal(dstData, &cur) != nil {
		// not comparable; the legacy copy is moved as-is
		return false, nil
	}
	return !cur.LastUpdated.Before(src.LastUpdated), nil
}

func contentType(key string) string {
	if t := mime.TypeByExtension(path.Ext(key)); t != "" {
		return t
	}
	return "application/octet-stream"
}
