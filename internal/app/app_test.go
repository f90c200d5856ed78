package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/carekeeper/internal/backup/backuptest"
	"github.com/dmitrijs2005/carekeeper/internal/common"
	"github.com/dmitrijs2005/carekeeper/internal/config"
	"github.com/dmitrijs2005/carekeeper/internal/kv"
	"github.com/dmitrijs2005/carekeeper/internal/logging"
	"github.com/dmitrijs2005/carekeeper/internal/metrics"
	"github.com/dmitrijs2005/carekeeper/internal/models"
	"github.com/dmitrijs2005/carekeeper/internal/objectstore"
	"github.com/dmitrijs2005/carekeeper/internal/paths"
)

const ann = "1751693499371"

// tickingClock advances one second per reading so successive writes on
// different devices are strictly ordered.
type tickingClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type world struct {
	objects  *objectstore.Memory
	provider *backuptest.Provider
	clock    *tickingClock
}

func newWorld() *world {
	return &world{
		objects:  objectstore.NewMemory(),
		provider: backuptest.NewProvider(),
		clock:    &tickingClock{t: time.Date(2025, 7, 5, 10, 0, 0, 0, time.UTC)},
	}
}

// device builds an App with its own local cache over the shared stores.
func (w *world) device(t *testing.T) *App {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.PullConcurrency = 3

	store, err := kv.Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)

	a := Assemble(cfg, Deps{
		KV:       store,
		Objects:  w.objects,
		Provider: w.provider,
		Metrics:  metrics.New(),
		Now:      w.clock.Now,
	})
	a.closers = append(a.closers, store.Close)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func addMeal(t *testing.T, a *App, owner, content string) models.Record {
	t.Helper()
	s, err := a.Store(models.RecordTypeMeal)
	require.NoError(t, err)
	rec, err := s.Add(context.Background(), models.Record{OwnerID: owner, Date: "2025-07-05", Content: content})
	require.NoError(t, err)
	return rec
}

func TestPull_BringsOtherDeviceData(t *testing.T) {
	w := newWorld()
	phone, tablet := w.device(t), w.device(t)
	ctx := context.Background()

	_, err := phone.Owners().Add(ctx, models.Owner{ID: ann, Name: "Ann", Active: true})
	require.NoError(t, err)
	addMeal(t, phone, ann, "oatmeal")
	phone.Flush()

	rep, err := tablet.Pull(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Owners: 1, Checked: len(models.RecordTypes()), Applied: 1}, rep)

	users, err := tablet.Owners().List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Ann", users[0].Name)

	meals, err := tablet.Store(models.RecordTypeMeal)
	require.NoError(t, err)
	env, err := meals.Load(ctx, ann)
	require.NoError(t, err)
	require.Len(t, env.Records, 1)
	assert.Equal(t, "oatmeal", env.Records[0].Content)

	rep, err = tablet.Pull(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, rep.Applied, "second pull sees equal checksums")
}

func TestPull_InvalidOwner(t *testing.T) {
	_, err := newWorld().device(t).Pull(context.Background(), "user_user_")
	assert.ErrorIs(t, err, common.ErrInvalidOwnerID)
}

func TestPull_ContinuesPastFailures(t *testing.T) {
	w := newWorld()
	phone, tablet := w.device(t), w.device(t)
	ctx := context.Background()

	addMeal(t, phone, ann, "oatmeal")
	phone.Flush()
	w.objects.Fail(objectstore.OpGetFresh, paths.EnvelopeKey(ann, "poop"), errors.New("connection reset"))

	rep, err := tablet.Pull(ctx, ann)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ann+"/poop")
	assert.Equal(t, len(models.RecordTypes()), rep.Checked)
	assert.Equal(t, 1, rep.Applied)
}

func TestPush_SkipsTypesWithoutLocalData(t *testing.T) {
	w := newWorld()
	a := w.device(t)
	ctx := context.Background()

	addMeal(t, a, ann, "soup")
	a.Flush()
	require.NoError(t, w.objects.Delete(ctx, paths.EnvelopeKey(ann, "meal")))

	rep, err := a.Push(ctx, ann)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Applied)
	assert.Equal(t, []string{paths.EnvelopeKey(ann, "meal")}, w.objects.Keys())
}

func TestBackupAndRestoreOnNewDevice(t *testing.T) {
	w := newWorld()
	old := w.device(t)
	ctx := context.Background()

	_, err := old.Owners().Add(ctx, models.Owner{ID: ann, Name: "Ann", Role: models.RolePrimary, Active: true})
	require.NoError(t, err)
	addMeal(t, old, ann, "oatmeal")
	addMeal(t, old, "2", "pasta")
	require.NoError(t, old.Owners().SetSettings(ctx, ann, json.RawMessage(`{"units":"metric"}`)))
	old.Flush()

	res, err := old.Backup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalUsers)
	assert.Equal(t, 2, res.TotalRecords)
	assert.Empty(t, res.Errors)

	st := old.Status()
	assert.False(t, st.IsSyncing)
	assert.Equal(t, 100, st.Progress)
	assert.False(t, st.LastSyncTime.IsZero())

	fresh := w.device(t)
	snap, err := fresh.Restore(ctx, true)
	require.NoError(t, err)
	assert.Len(t, snap.Records, 2)

	users, err := fresh.Owners().List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	meals, err := fresh.Store(models.RecordTypeMeal)
	require.NoError(t, err)
	env, err := meals.Load(ctx, ann)
	require.NoError(t, err)
	require.Len(t, env.Records, 1)
	assert.Equal(t, "oatmeal", env.Records[0].Content)
	assert.Equal(t, paths.Resolve(ann), env.UniqueOwnerID)

	settings, err := fresh.Owners().Settings(ctx, ann)
	require.NoError(t, err)
	assert.JSONEq(t, `{"units":"metric"}`, string(settings))
}

func TestRestore_WithoutApplyLeavesLocalState(t *testing.T) {
	w := newWorld()
	old := w.device(t)
	ctx := context.Background()
	addMeal(t, old, ann, "oatmeal")
	old.Flush()
	_, err := old.Backup(ctx)
	require.NoError(t, err)

	fresh := w.device(t)
	snap, err := fresh.Restore(ctx, false)
	require.NoError(t, err)
	assert.Len(t, snap.Records, 1)

	local, err := fresh.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, local.Records)
}

func TestImport_KeepsUnmentionedOwners(t *testing.T) {
	w := newWorld()
	a := w.device(t)
	ctx := context.Background()

	_, err := a.Owners().Add(ctx, models.Owner{ID: "7", Name: "Grandpa"})
	require.NoError(t, err)
	_, err = a.Owners().Add(ctx, models.Owner{ID: ann, Name: "Old name"})
	require.NoError(t, err)
	addMeal(t, a, "7", "toast")

	require.NoError(t, a.Import(ctx, models.Snapshot{
		Users: []models.Owner{{ID: "user_" + ann, Name: "Ann"}},
		Records: []models.Record{
			{ID: "x", OwnerID: ann, Type: models.RecordTypeCheckup, Date: "2025-07-01"},
			{ID: "bad", OwnerID: ann, Type: "sleep"},
		},
	}))

	users, err := a.Owners().List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Grandpa", users[0].Name)
	assert.Equal(t, "Ann", users[1].Name)

	snap, err := a.Snapshot(ctx)
	require.NoError(t, err)
	ids := map[string]string{}
	for _, r := range snap.Records {
		ids[r.ID] = r.OwnerID
	}
	assert.Len(t, ids, 2)
	assert.Equal(t, ann, ids["x"])
}

type failingSetMany struct {
	kv.Repository
}

func (failingSetMany) SetMany(context.Context, map[string][]byte) error {
	return errors.New("disk full")
}

func TestImport_FailedCommitLeavesLocalState(t *testing.T) {
	a := newWorld().device(t)
	ctx := context.Background()

	_, err := a.Owners().Add(ctx, models.Owner{ID: ann, Name: "Ann"})
	require.NoError(t, err)
	addMeal(t, a, ann, "oatmeal")
	before, err := a.Snapshot(ctx)
	require.NoError(t, err)

	a.kv = failingSetMany{Repository: a.kv}
	err = a.Import(ctx, models.Snapshot{
		Users:    []models.Owner{{ID: ann, Name: "Renamed"}, {ID: "7", Name: "Grandpa"}},
		Records:  []models.Record{{ID: "x", OwnerID: ann, Type: models.RecordTypeCheckup, Date: "2025-07-01"}},
		Settings: map[string]json.RawMessage{ann: json.RawMessage(`{"units":"imperial"}`)},
	})
	require.ErrorContains(t, err, "disk full")

	after, err := a.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestBackup_Busy(t *testing.T) {
	a := newWorld().device(t)
	a.backupGate <- struct{}{}
	defer func() { <-a.backupGate }()

	_, err := a.Backup(context.Background())
	assert.ErrorIs(t, err, common.ErrBusy)
}

func TestBackup_NotAuthenticatedReportsHealth(t *testing.T) {
	w := newWorld()
	a := w.device(t)
	w.provider.SetAuthenticated(false)

	var healthy []bool
	a.onBackupRun = func(ok bool) { healthy = append(healthy, ok) }

	_, err := a.Backup(context.Background())
	require.ErrorIs(t, err, common.ErrNotAuthenticated)
	assert.NotEmpty(t, a.Status().LastError)

	w.provider.SetAuthenticated(true)
	_, err = a.Backup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true}, healthy)
}

func TestAuth_NotConfigured(t *testing.T) {
	a := newWorld().device(t)
	_, err := a.AuthCodeURL()
	assert.Error(t, err)
	assert.Error(t, a.CompleteAuth(context.Background(), "s", "c"))
	_, err = a.Authenticated(context.Background())
	assert.Error(t, err)
}

func TestMigrateThroughApp(t *testing.T) {
	w := newWorld()
	a := w.device(t)
	ctx := context.Background()

	legacy := "users/user_user_42/meal-records.json"
	require.NoError(t, w.objects.Put(ctx, legacy, []byte(`{"records":[]}`), "application/json"))

	ids, err := a.MigrationCandidates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, ids)

	rep, err := a.Migrate(ctx, "")
	require.NoError(t, err)
	assert.True(t, rep.Success)
	assert.Equal(t, []string{paths.EnvelopeKey("42", "meal")}, w.objects.Keys())
}

func TestPeriodicBackup(t *testing.T) {
	w := newWorld()
	a := w.device(t)
	addMeal(t, a, ann, "oatmeal")
	a.Flush()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.runPeriodicBackup(ctx, 10*time.Millisecond)
	}()

	require.Eventually(t, func() bool {
		return !a.Status().LastSyncTime.IsZero()
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("periodic backup did not stop")
	}
}

func TestForceRefresh_ReplacesNewerLocalState(t *testing.T) {
	w := newWorld()
	phone, tablet := w.device(t), w.device(t)
	ctx := context.Background()

	addMeal(t, phone, ann, "oatmeal")
	phone.Flush()

	// tablet writes later but its mirror never reaches the cloud
	w.objects.Fail(objectstore.OpPut, paths.EnvelopeKey(ann, "meal"), errors.New("offline"))
	addMeal(t, tablet, ann, "local only")
	tablet.Flush()
	w.objects.Fail(objectstore.OpPut, paths.EnvelopeKey(ann, "meal"), nil)

	counts, err := tablet.ForceRefresh(ctx, ann)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.RecordTypeMeal])
	assert.Zero(t, counts[models.RecordTypePoop])

	meals, err := tablet.Store(models.RecordTypeMeal)
	require.NoError(t, err)
	env, err := meals.Load(ctx, ann)
	require.NoError(t, err)
	require.Len(t, env.Records, 1)
	assert.Equal(t, "oatmeal", env.Records[0].Content)
}

type recordingLogger struct {
	mu   *sync.Mutex
	msgs *[]string
}

func newRecordingLogger() recordingLogger {
	return recordingLogger{mu: &sync.Mutex{}, msgs: &[]string{}}
}

func (l recordingLogger) add(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.msgs = append(*l.msgs, msg)
}

func (l recordingLogger) Debug(_ context.Context, msg string, _ ...any) { l.add(msg) }
func (l recordingLogger) Info(_ context.Context, msg string, _ ...any) { l.add(msg) }
func (l recordingLogger) Warn(_ context.Context, msg string, _ ...any) { l.add(msg) }
func (l recordingLogger) Error(_ context.Context, msg string, _ ...any) { l.add(msg) }
func (l recordingLogger) With(...any) logging.Logger { return l }

func (l recordingLogger) has(msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range *l.msgs {
		if m == msg {
			return true
		}
	}
	return false
}

func TestLogStatus_ReportsFinishedBackup(t *testing.T) {
	a := newWorld().device(t)
	addMeal(t, a, ann, "soup")

	rec := newRecordingLogger()
	a.logger = rec

	ctx, cancel := context.WithCancel(context.Background())
	updates, stop := a.status.Subscribe()
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.logStatus(ctx, updates)
	}()

	_, err := a.Backup(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rec.has("backup finished") }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
