package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/carekeeper/internal/app"
	"github.com/dmitrijs2005/carekeeper/internal/backup/backuptest"
	"github.com/dmitrijs2005/carekeeper/internal/config"
	"github.com/dmitrijs2005/carekeeper/internal/kv"
	"github.com/dmitrijs2005/carekeeper/internal/models"
	"github.com/dmitrijs2005/carekeeper/internal/objectstore"
)

type harness struct {
	cli     *cli
	objects *objectstore.Memory
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.LoadConfig(nil)

	store, err := kv.Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	h := &harness{objects: objectstore.NewMemory()}
	provider := backuptest.NewProvider()
	h.cli = &cli{cfg: cfg, open: func(ctx context.Context, cfg *config.Config) (*app.App, error) {
		return app.Assemble(cfg, app.Deps{KV: store, Objects: h.objects, Provider: provider}), nil
	}}
	t.Cleanup(func() { _ = h.cli.close() })
	return h
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(h.cli)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) addMeal(t *testing.T, owner string) {
	t.Helper()
	root := newRootCmd(h.cli)
	root.SetContext(context.Background())
	a, err := h.cli.ensureApp(root)
	require.NoError(t, err)
	s, err := a.Store(models.RecordTypeMeal)
	require.NoError(t, err)
	_, err = s.Add(context.Background(), models.Record{OwnerID: owner, Date: "2025-07-05", Content: "oatmeal"})
	require.NoError(t, err)
	a.Flush()
}

func TestPushThenPull(t *testing.T) {
	h := newHarness(t)
	h.addMeal(t, "42")

	out, err := h.run(t, "push", "--owner", "user_42")
	require.NoError(t, err)
	var rep app.SyncReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, 1, rep.Applied)

	out, err = h.run(t, "pull")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, 1, rep.Owners)
	assert.Zero(t, rep.Applied)
}

func TestMigrateScanAndRun(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "migrate", "scan")
	require.NoError(t, err)
	assert.Equal(t, "No owners need migration.\n", out)

	require.NoError(t, h.objects.Put(context.Background(), "users/user_user_7/poop-records.json", []byte(`{}`), "application/json"))

	out, err = h.run(t, "migrate", "scan")
	require.NoError(t, err)
	assert.Equal(t, "7\n", out)

	_, err = h.run(t, "migrate", "run", "--owner", "7")
	require.NoError(t, err)
	assert.Equal(t, []string{"users/user_7/poop-records.json"}, h.objects.Keys())
}

func TestBackupSyncAndRestoreToFile(t *testing.T) {
	h := newHarness(t)
	h.addMeal(t, "42")

	_, err := h.run(t, "backup", "init")
	require.NoError(t, err)

	out, err := h.run(t, "backup", "sync")
	require.NoError(t, err)
	assert.Contains(t, out, `"totalRecords": 1`)

	path := filepath.Join(t.TempDir(), "restore", "snapshot.json")
	out, err = h.run(t, "backup", "restore", "--out", path)
	require.NoError(t, err)
	assert.Contains(t, out, "1 owners and 1 records")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var snap models.Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	require.Len(t, snap.Records, 1)
	assert.Equal(t, "42", snap.Records[0].OwnerID)

	out, err = h.run(t, "backup", "cleanup")
	require.NoError(t, err)
	assert.Contains(t, out, `"deletedCount": 0`)
}

func TestAuthWithoutProvider(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "auth", "url")
	assert.Error(t, err)
	_, err = h.run(t, "auth", "status")
	assert.Error(t, err)
}

func TestUnknownCommand(t *testing.T) {
	_, err := newHarness(t).run(t, "frobnicate")
	assert.Error(t, err)
}

func TestPullForce(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "pull", "--force")
	assert.Error(t, err)

	h.addMeal(t, "42")
	out, err := h.run(t, "pull", "--force", "--owner", "42")
	require.NoError(t, err)
	var counts map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &counts))
	assert.Equal(t, 1, counts["meal"])
}

func TestAttach(t *testing.T) {
	h := newHarness(t)
	file := filepath.Join(t.TempDir(), "plate photo.jpg")
	require.NoError(t, os.WriteFile(file, []byte("jpeg"), 0o600))

	out, err := h.run(t, "attach", "--owner", "42", "--type", "meal", file)
	require.NoError(t, err)

	var att models.Attachment
	require.NoError(t, json.Unmarshal([]byte(out), &att))
	assert.Equal(t, "plate photo.jpg", att.Name)
	assert.EqualValues(t, 4, att.Size)

	keys := h.objects.Keys()
	require.Len(t, keys, 1)
	assert.Contains(t, keys[0], "users/user_42/meal_attachments/")
	assert.Contains(t, keys[0], "_plate_photo.jpg")

	_, err = h.run(t, "attach", "--owner", "42", "--type", "sleep", file)
	assert.Error(t, err)
}
