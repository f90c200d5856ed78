package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/carekeeper/internal/common"
	"github.com/dmitrijs2005/carekeeper/internal/logging"
	"github.com/dmitrijs2005/carekeeper/internal/metrics"
	"github.com/dmitrijs2005/carekeeper/internal/models"
	"github.com/dmitrijs2005/carekeeper/internal/paths"
)

// Fixed names inside the backup hierarchy.
const (
	UsersFolder  = "users"
	ProfileFile  = "profile.json"
	RecordsFile  = "records.json"
	SettingsFile = "settings.json"
	StatusFile   = "sync-status.json"
)

// SnapshotSource produces the local corpus for SyncAllData.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (models.Snapshot, error)
}

// ProgressFunc receives status updates during a sync run.
type ProgressFunc func(models.SyncStatus)

// Folders are the two fixed folders of the hierarchy.
type Folders struct {
	Root  Item
	Users Item
}

// Result summarizes a sync run. It is also the content of sync-status.json.
type Result struct {
	LastSyncTime time.Time `json:"lastSyncTime"`
	TotalUsers   int       `json:"totalUsers"`
	TotalRecords int       `json:"totalRecords"`
	Errors       []string  `json:"errors"`
}

type CleanupResult struct {
	DeletedCount int    `json:"deletedCount"`
	KeptID       string `json:"keptId"`
}

// CleanupEntry is one location visited by CleanupHierarchy.
type CleanupEntry struct {
	Path string `json:"path"`
	CleanupResult
}

type Option func(*FolderManager)

func WithSnapshotSource(src SnapshotSource) Option {
	return func(m *FolderManager) { m.source = src }
}

func WithProgress(fn ProgressFunc) Option {
	return func(m *FolderManager) { m.progress = fn }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *FolderManager) { m.metrics = mt }
}

func WithClock(now func() time.Time) Option {
	return func(m *FolderManager) { m.now = now }
}

// FolderManager builds and maintains the backup hierarchy.
type FolderManager struct {
	provider Provider
	rootName string
	source   SnapshotSource
	progress ProgressFunc
	metrics  *metrics.Metrics
	logger   logging.Logger
	now      func() time.Time
}

func NewFolderManager(provider Provider, rootName string, logger logging.Logger, opts ...Option) *FolderManager {
	if rootName == "" {
		rootName = common.DefaultBackupRootFolder
	}
	m := &FolderManager{
		provider: provider,
		rootName: rootName,
		logger:   logger.With("module", "backup"),
		now:      time.Now,
		progress: func(models.SyncStatus) {},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// earliest orders items by creation time, then id, and returns them.
func earliest(items []Item) []Item {
	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedTime.Equal(sorted[j].CreatedTime) {
			return sorted[i].CreatedTime.Before(sorted[j].CreatedTime)
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

func (m *FolderManager) findFolder(ctx context.Context, parentID, name string) (Item, bool, error) {
	items, err := m.provider.List(ctx, parentID, name, KindFolder)
	if err != nil {
		return Item{}, false, err
	}
	if len(items) == 0 {
		return Item{}, false, nil
	}
	return earliest(items)[0], true, nil
}

// findOrCreateFolder searches by exact name before creating.
func (m *FolderManager) findOrCreateFolder(ctx context.Context, parentID, name string) (Item, error) {
	it, ok, err := m.findFolder(ctx, parentID, name)
	if err != nil {
		return Item{}, err
	}
	if ok {
		return it, nil
	}

	it, err = m.provider.CreateFolder(ctx, parentID, name)
	if err != nil {
		return Item{}, err
	}
	m.logger.Info(ctx, "created backup folder", "name", name, "id", it.ID, "parent", parentID)
	return it, nil
}

func (m *FolderManager) findFile(ctx context.Context, parentID, name string) (Item, bool, error) {
	items, err := m.provider.List(ctx, parentID, name, KindFile)
	if err != nil {
		return Item{}, false, err
	}
	if len(items) == 0 {
		return Item{}, false, nil
	}
	return earliest(items)[0], true, nil
}

// upsertFile updates the file named name under parentID, creating it only
// when absent.
func (m *FolderManager) upsertFile(ctx context.Context, parentID, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	it, ok, err := m.findFile(ctx, parentID, name)
	if err != nil {
		return err
	}
	if ok {
		return m.provider.UpdateFile(ctx, it.ID, data)
	}
	_, err = m.provider.CreateFile(ctx, parentID, name, "application/json", data)
	return err
}

// InitializeSync finds or creates the root folder and its users folder.
func (m *FolderManager) InitializeSync(ctx context.Context) (Folders, error) {
	root, err := m.findOrCreateFolder(ctx, RootParent, m.rootName)
	if err != nil {
		return Folders{}, fmt.Errorf("root folder: %w", err)
	}
	users, err := m.findOrCreateFolder(ctx, root.ID, UsersFolder)
	if err != nil {
		return Folders{}, fmt.Errorf("users folder: %w", err)
	}
	return Folders{Root: root, Users: users}, nil
}

// SyncAllData exports the snapshot produced by the configured source.
func (m *FolderManager) SyncAllData(ctx context.Context) (Result, error) {
	if m.source == nil {
		return Result{}, errors.New("backup: no snapshot source configured")
	}
	snap, err := m.source.Snapshot(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("build snapshot: %w", err)
	}
	return m.SyncLocalData(ctx, snap)
}

type ownerExport struct {
	owner    models.Owner
	records  []models.Record
	settings json.RawMessage
}

// group buckets records by owner. Owners referenced only by records get a
// synthetic profile. Profiles and records without a usable owner id cannot
// be placed in the hierarchy and come back as problems instead.
func (m *FolderManager) group(ctx context.Context, snap models.Snapshot) ([]ownerExport, []string) {
	byID := make(map[string]*ownerExport)
	var (
		order    []string
		problems []string
	)

	for _, u := range snap.Users {
		if err := paths.Validate(u.ID); err != nil {
			problems = append(problems, fmt.Sprintf("profile %q: %v", u.Name, err))
			m.logger.Warn(ctx, "profile without usable id left out of backup", "name", u.Name, "error", err)
			continue
		}
		id := paths.OwnerID(u.ID)
		if _, dup := byID[id]; dup {
			continue
		}
		u.ID = id
		byID[id] = &ownerExport{owner: u, records: []models.Record{}}
		order = append(order, id)
	}

	var orphans []string
	for _, r := range snap.Records {
		if err := paths.Validate(r.OwnerID); err != nil {
			problems = append(problems, fmt.Sprintf("record %s: %v", r.ID, err))
			m.logger.Warn(ctx, "record without usable owner left out of backup", "record", r.ID, "type", r.Type, "error", err)
			continue
		}
		id := paths.OwnerID(r.OwnerID)
		e, ok := byID[id]
		if !ok {
			e = &ownerExport{owner: models.SyntheticOwner(id, m.now().UTC()), records: []models.Record{}}
			byID[id] = e
			orphans = append(orphans, id)
		}
		e.records = append(e.records, r)
	}
	sort.Strings(orphans)
	order = append(order, orphans...)

	out := make([]ownerExport, 0, len(order))
	for _, id := range order {
		e := byID[id]
		e.settings = snap.Settings[id]
		if len(e.settings) == 0 {
			e.settings = json.RawMessage(`{}`)
		}
		out = append(out, *e)
	}
	return out, problems
}

// SyncLocalData writes snap into the hierarchy. Per-owner failures are
// collected in Result.Errors; a lost session aborts the run.
func (m *FolderManager) SyncLocalData(ctx context.Context, snap models.Snapshot) (res Result, err error) {
	start := time.Now()
	defer func() { m.metrics.ObserveBackup("sync", start, err) }()

	m.progress(models.SyncStatus{IsSyncing: true})
	defer func() {
		st := models.SyncStatus{LastSyncTime: res.LastSyncTime, Progress: 100}
		if err != nil {
			st.LastError = err.Error()
			st.Progress = 0
		} else if len(res.Errors) > 0 {
			st.LastError = fmt.Sprintf("%d backup error(s)", len(res.Errors))
		}
		m.progress(st)
	}()

	folders, err := m.InitializeSync(ctx)
	if err != nil {
		return Result{}, err
	}

	exports, problems := m.group(ctx, snap)
	res = Result{TotalUsers: len(exports), Errors: append([]string{}, problems...)}

	for i, e := range exports {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if err := m.syncOwner(ctx, folders.Users.ID, e); err != nil {
			if errors.Is(err, common.ErrNotAuthenticated) {
				return Result{}, err
			}
			res.Errors = append(res.Errors, fmt.Sprintf("owner %s: %v", e.owner.ID, err))
			m.logger.Warn(ctx, "owner export failed", "owner", e.owner.ID, "error", err)
		} else {
			res.TotalRecords += len(e.records)
		}
		m.progress(models.SyncStatus{IsSyncing: true, Progress: (i + 1) * 100 / len(exports)})
	}

	res.LastSyncTime = m.now().UTC()
	if err := m.upsertFile(ctx, folders.Root.ID, StatusFile, res); err != nil {
		return res, fmt.Errorf("write %s: %w", StatusFile, err)
	}

	m.logger.Info(ctx, "backup sync finished", "users", res.TotalUsers, "records", res.TotalRecords, "errors", len(res.Errors))
	return res, nil
}

func (m *FolderManager) syncOwner(ctx context.Context, usersID string, e ownerExport) error {
	folder, err := m.findOrCreateFolder(ctx, usersID, e.owner.ID)
	if err != nil {
		return err
	}
	if err := m.upsertFile(ctx, folder.ID, ProfileFile, e.owner); err != nil {
		return fmt.Errorf("%s: %w", ProfileFile, err)
	}
	if err := m.upsertFile(ctx, folder.ID, RecordsFile, e.records); err != nil {
		return fmt.Errorf("%s: %w", RecordsFile, err)
	}
	if err := m.upsertFile(ctx, folder.ID, SettingsFile, e.settings); err != nil {
		return fmt.Errorf("%s: %w", SettingsFile, err)
	}
	return nil
}

// RestoreFromBackup reads the hierarchy back into a snapshot. Missing files
// are treated as empty; an absent hierarchy yields an empty snapshot.
func (m *FolderManager) RestoreFromBackup(ctx context.Context) (snap models.Snapshot, err error) {
	start := time.Now()
	defer func() { m.metrics.ObserveBackup("restore", start, err) }()

	snap = models.Snapshot{Users: []models.Owner{}, Records: []models.Record{}, Settings: map[string]json.RawMessage{}}

	root, ok, err := m.findFolder(ctx, RootParent, m.rootName)
	if err != nil || !ok {
		return snap, err
	}
	users, ok, err := m.findFolder(ctx, root.ID, UsersFolder)
	if err != nil || !ok {
		return snap, err
	}

	folders, err := m.provider.List(ctx, users.ID, "", KindFolder)
	if err != nil {
		return snap, err
	}

	seen := make(map[string]bool)
	for _, f := range earliest(folders) {
		id := paths.OwnerID(f.Name)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		owner := models.SyntheticOwner(id, f.CreatedTime)
		if _, err := m.readJSON(ctx, f.ID, ProfileFile, &owner); err != nil {
			return snap, err
		}
		owner.ID = id

		var recs []models.Record
		if _, err := m.readJSON(ctx, f.ID, RecordsFile, &recs); err != nil {
			return snap, err
		}
		for i := range recs {
			recs[i].OwnerID = id
			recs[i].Normalize()
		}

		var settings json.RawMessage
		found, err := m.readJSON(ctx, f.ID, SettingsFile, &settings)
		if err != nil {
			return snap, err
		}
		if found && len(settings) > 0 {
			snap.Settings[id] = settings
		}

		snap.Users = append(snap.Users, owner)
		snap.Records = append(snap.Records, recs...)
	}

	m.logger.Info(ctx, "backup restored", "users", len(snap.Users), "records", len(snap.Records))
	return snap, nil
}

// readJSON downloads name from folderID into v. A missing or unreadable
// file leaves v untouched and reports false.
func (m *FolderManager) readJSON(ctx context.Context, folderID, name string, v any) (bool, error) {
	it, ok, err := m.findFile(ctx, folderID, name)
	if err != nil || !ok {
		return false, err
	}

	data, err := m.provider.Download(ctx, it.ID)
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		m.logger.Warn(ctx, "unreadable backup file treated as empty", "folder", folderID, "file", name, "error", err)
		return false, nil
	}
	return true, nil
}

func (m *FolderManager) cleanup(ctx context.Context, items []Item) (CleanupResult, error) {
	if len(items) == 0 {
		return CleanupResult{}, nil
	}

	sorted := earliest(items)
	res := CleanupResult{KeptID: sorted[0].ID}

	var errs []error
	for _, it := range sorted[1:] {
		if err := m.provider.Delete(ctx, it.ID); err != nil {
			if errors.Is(err, common.ErrNotAuthenticated) {
				return res, err
			}
			errs = append(errs, err)
			continue
		}
		res.DeletedCount++
	}
	return res, errors.Join(errs...)
}

// CleanupDuplicateFolders keeps the earliest-created folder named name under
// parentID and deletes the others.
func (m *FolderManager) CleanupDuplicateFolders(ctx context.Context, parentID, name string) (res CleanupResult, err error) {
	start := time.Now()
	defer func() { m.metrics.ObserveBackup("cleanup_folders", start, err) }()

	items, err := m.provider.List(ctx, parentID, name, KindFolder)
	if err != nil {
		return CleanupResult{}, err
	}
	res, err = m.cleanup(ctx, items)
	if res.DeletedCount > 0 {
		m.logger.Info(ctx, "removed duplicate folders", "name", name, "deleted", res.DeletedCount, "kept", res.KeptID)
	}
	return res, err
}

// CleanupDuplicateStatusFiles does the same for sync-status.json at the root.
func (m *FolderManager) CleanupDuplicateStatusFiles(ctx context.Context) (res CleanupResult, err error) {
	start := time.Now()
	defer func() { m.metrics.ObserveBackup("cleanup_status", start, err) }()

	root, ok, err := m.findFolder(ctx, RootParent, m.rootName)
	if err != nil || !ok {
		return CleanupResult{}, err
	}
	items, err := m.provider.List(ctx, root.ID, StatusFile, KindFile)
	if err != nil {
		return CleanupResult{}, err
	}
	return m.cleanup(ctx, items)
}

// CleanupHierarchy runs folder cleanup for the root, users and every owner
// folder, then status file cleanup.
func (m *FolderManager) CleanupHierarchy(ctx context.Context) ([]CleanupEntry, error) {
	var entries []CleanupEntry

	res, err := m.CleanupDuplicateFolders(ctx, RootParent, m.rootName)
	if err != nil {
		return entries, err
	}
	entries = append(entries, CleanupEntry{Path: m.rootName, CleanupResult: res})
	if res.KeptID == "" {
		return entries, nil
	}

	res, err = m.CleanupDuplicateFolders(ctx, res.KeptID, UsersFolder)
	if err != nil {
		return entries, err
	}
	entries = append(entries, CleanupEntry{Path: m.rootName + "/" + UsersFolder, CleanupResult: res})

	if res.KeptID != "" {
		owners, err := m.provider.List(ctx, res.KeptID, "", KindFolder)
		if err != nil {
			return entries, err
		}
		counts := make(map[string]int)
		for _, o := range owners {
			counts[o.Name]++
		}
		names := make([]string, 0, len(counts))
		for n, c := range counts {
			if c > 1 {
				names = append(names, n)
			}
		}
		sort.Strings(names)
		for _, n := range names {
			r, err := m.CleanupDuplicateFolders(ctx, res.KeptID, n)
			if err != nil {
				return entries, err
			}
			entries = append(entries, CleanupEntry{Path: m.rootName + "/" + UsersFolder + "/" + n, CleanupResult: r})
		}
	}

	st, err := m.CleanupDuplicateStatusFiles(ctx)
	if err != nil {
		return entries, err
	}
	entries = append(entries, CleanupEntry{Path: m.rootName + "/" + StatusFile, CleanupResult: st})
	return entries, nil
}
