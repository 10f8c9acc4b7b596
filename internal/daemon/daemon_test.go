package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mufancom/remote-workspace/internal/container"
	"github.com/mufancom/remote-workspace/internal/errors"
	"github.com/mufancom/remote-workspace/internal/store"
	"github.com/mufancom/remote-workspace/internal/testutil"
	"github.com/mufancom/remote-workspace/internal/workspace"
)

type daemonFixture struct {
	daemon   *Daemon
	store    *store.Store
	executor *testutil.MockExecutor
}

func newFixture(t *testing.T) *daemonFixture {
	t.Helper()

	cfg := testutil.NewConfig(t)
	st, err := store.Open(cfg.StorePath())
	require.NoError(t, err)

	executor := testutil.NewMockExecutor()
	docker := container.NewClient(executor, cfg.Name, cfg.DataDir)

	return &daemonFixture{
		daemon:   New(cfg, st, docker, nil),
		store:    st,
		executor: executor,
	}
}

func testOptions(name string) workspace.Options {
	return workspace.Options{
		DisplayName: name,
		Owner:       "alice",
		Projects: []workspace.Project{
			{Name: "app", Git: workspace.ProjectGit{URL: "git@github.com:example/app.git", Branch: "main"}},
		},
		Services: []workspace.Service{
			{Name: "postgres", Image: "postgres:14"},
		},
	}
}

func TestCreatePersistsActiveRecordWithPort(t *testing.T) {
	f := newFixture(t)

	id, err := f.daemon.Create(context.Background(), testOptions("feature-work"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	record, ok := f.store.Get(id)
	require.True(t, ok)
	assert.True(t, record.Active)
	assert.Greater(t, record.Port, 0)
	assert.Nil(t, record.IdleSince)
	assert.Equal(t, "feature-work", record.DisplayName)
}

func TestCreateRejectsInvalidOptions(t *testing.T) {
	f := newFixture(t)

	_, err := f.daemon.Create(context.Background(), workspace.Options{})
	require.Error(t, err)
	assert.Equal(t, errors.ErrValidation, errors.CodeOf(err))
	assert.Empty(t, f.store.List())
}

func TestCreateAssignsDistinctPorts(t *testing.T) {
	f := newFixture(t)

	seen := map[int]bool{}
	for i := 0; i < 5; i++ {
		id, err := f.daemon.Create(context.Background(), testOptions(fmt.Sprintf("ws-%d", i)))
		require.NoError(t, err)

		record, ok := f.store.Get(id)
		require.True(t, ok)
		assert.False(t, seen[record.Port], "port %d assigned twice", record.Port)
		seen[record.Port] = true
	}
}

func TestCreateCycleSurvivesCallerDisconnect(t *testing.T) {
	f := newFixture(t)

	// A caller that went away after the mutation committed must not abort
	// the apply that follows it.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	id, err := f.daemon.Create(ctx, testOptions("feature-work"))
	require.NoError(t, err)

	var applied bool
	for _, line := range f.executor.CommandLines() {
		if strings.Contains(line, "up --detach") {
			applied = true
		}
	}
	assert.True(t, applied, "compose up did not run")

	_, err = os.Stat(filepath.Join(f.daemon.cfg.WorkspacesDir(), id, "metadata.json"))
	assert.NoError(t, err)
}

func TestCreateRunsFullReconciliationCycle(t *testing.T) {
	f := newFixture(t)

	id, err := f.daemon.Create(context.Background(), testOptions("feature-work"))
	require.NoError(t, err)

	lines := f.executor.CommandLines()
	var upIndex, pruneIndex int
	for i, line := range lines {
		if strings.Contains(line, "up --detach --remove-orphans") {
			upIndex = i
		}
		if strings.Contains(line, "container prune") {
			pruneIndex = i
		}
	}
	require.NotZero(t, pruneIndex, "prune was not invoked")
	assert.Less(t, upIndex, pruneIndex, "compose up must run before prune")

	// The metadata snapshot carries the record's project list for the
	// in-container bootstrap.
	data, err := os.ReadFile(filepath.Join(f.daemon.cfg.WorkspacesDir(), id, "metadata.json"))
	require.NoError(t, err)

	var snapshot workspace.Record
	require.NoError(t, json.Unmarshal(data, &snapshot))
	assert.Equal(t, id, snapshot.ID)
	require.Len(t, snapshot.Projects, 1)
	assert.Equal(t, "app", snapshot.Projects[0].Name)

	_, err = os.Stat(f.daemon.files.ComposePath())
	assert.NoError(t, err)
}

func TestUpdateReplacesConfigPreservingRuntimeState(t *testing.T) {
	f := newFixture(t)

	id, err := f.daemon.Create(context.Background(), testOptions("before"))
	require.NoError(t, err)
	original, _ := f.store.Get(id)

	opts := testOptions("after")
	opts.Image = "custom/image:tag"
	require.NoError(t, f.daemon.Update(context.Background(), id, opts))

	record, ok := f.store.Get(id)
	require.True(t, ok)
	assert.Equal(t, "after", record.DisplayName)
	assert.Equal(t, "custom/image:tag", record.Image)
	assert.Equal(t, original.Port, record.Port)
	assert.Equal(t, original.Active, record.Active)
}

func TestUpdateUnknownWorkspace(t *testing.T) {
	f := newFixture(t)

	err := f.daemon.Update(context.Background(), "missing", testOptions("x"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrNotFound, errors.CodeOf(err))
}

func TestActivateStampsIdleWindow(t *testing.T) {
	f := newFixture(t)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f.daemon.now = func() time.Time { return fixed }

	id, err := f.daemon.Create(context.Background(), testOptions("feature-work"))
	require.NoError(t, err)

	require.NoError(t, f.daemon.Deactivate(context.Background(), id))
	require.NoError(t, f.daemon.Activate(context.Background(), id))

	record, ok := f.store.Get(id)
	require.True(t, ok)
	assert.True(t, record.Active)
	require.NotNil(t, record.IdleSince)
	assert.Equal(t, fixed, *record.IdleSince)
}

func TestDeactivateRejectedWhileConnected(t *testing.T) {
	f := newFixture(t)

	id, err := f.daemon.Create(context.Background(), testOptions("feature-work"))
	require.NoError(t, err)

	f.executor.Outputs["ps --quiet "+id] = "abc123\n"
	f.executor.Outputs["exec abc123 ss"] = "ESTAB 0 0 172.18.0.2:22 10.0.0.5:50022\n"

	err = f.daemon.Deactivate(context.Background(), id)
	require.Error(t, err)
	assert.Equal(t, errors.ErrWorkspaceInUse, errors.CodeOf(err))

	record, _ := f.store.Get(id)
	assert.True(t, record.Active)
}

func TestDeactivateSucceedsWhenIdle(t *testing.T) {
	f := newFixture(t)

	id, err := f.daemon.Create(context.Background(), testOptions("feature-work"))
	require.NoError(t, err)

	f.executor.Outputs["ps --quiet "+id] = "abc123\n"
	f.executor.Outputs["exec abc123 ss"] = "\n"

	require.NoError(t, f.daemon.Deactivate(context.Background(), id))

	record, _ := f.store.Get(id)
	assert.False(t, record.Active)
	assert.Nil(t, record.IdleSince)
}

func TestDeactivateProceedsOnProbeFailure(t *testing.T) {
	f := newFixture(t)

	id, err := f.daemon.Create(context.Background(), testOptions("feature-work"))
	require.NoError(t, err)

	f.executor.Outputs["ps --quiet "+id] = "abc123\n"
	f.executor.Errors["exec abc123 ss"] = fmt.Errorf("exit status 1")

	require.NoError(t, f.daemon.Deactivate(context.Background(), id))

	record, _ := f.store.Get(id)
	assert.False(t, record.Active)
}

func TestDeleteRemovesRecordAndArtifacts(t *testing.T) {
	f := newFixture(t)

	id, err := f.daemon.Create(context.Background(), testOptions("feature-work"))
	require.NoError(t, err)

	workspaceDir := filepath.Join(f.daemon.cfg.WorkspacesDir(), id)
	_, err = os.Stat(workspaceDir)
	require.NoError(t, err)

	require.NoError(t, f.daemon.Delete(context.Background(), id))

	_, ok := f.store.Get(id)
	assert.False(t, ok)

	// The reconciliation cycle following the delete pruned the directory.
	_, err = os.Stat(workspaceDir)
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteUnknownWorkspace(t *testing.T) {
	f := newFixture(t)

	err := f.daemon.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, errors.ErrNotFound, errors.CodeOf(err))
}

func TestLogRequiresRunningContainer(t *testing.T) {
	f := newFixture(t)

	id, err := f.daemon.Create(context.Background(), testOptions("feature-work"))
	require.NoError(t, err)

	// No container id reported by compose ps.
	_, err = f.daemon.Log(context.Background(), id)
	require.Error(t, err)
	assert.Equal(t, errors.ErrNotFound, errors.CodeOf(err))

	f.executor.Outputs["ps --quiet "+id] = "abc123\n"
	f.executor.Outputs["logs abc123"] = "boot complete\n"

	output, err := f.daemon.Log(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "boot complete\n", output)
}

func TestStatusesReportsReadiness(t *testing.T) {
	f := newFixture(t)

	id, err := f.daemon.Create(context.Background(), testOptions("feature-work"))
	require.NoError(t, err)

	statuses := f.daemon.Statuses(context.Background())
	require.Len(t, statuses, 1)
	assert.Equal(t, id, statuses[0].ID)
	assert.True(t, statuses[0].Active)
	assert.False(t, statuses[0].Ready, "no container reported yet")

	f.executor.Outputs["ps --quiet "+id] = "abc123\n"
	statuses = f.daemon.Statuses(context.Background())
	assert.True(t, statuses[0].Ready)
}

func TestStatusesMergesInPlaceProjectConfig(t *testing.T) {
	f := newFixture(t)

	id, err := f.daemon.Create(context.Background(), testOptions("feature-work"))
	require.NoError(t, err)

	projectDir := filepath.Join(f.daemon.cfg.WorkspacesDir(), id, "app")
	require.NoError(t, os.MkdirAll(projectDir, 0755))

	overlay := map[string]interface{}{
		"scripts": map[string]string{"initialize": "yarn install"},
		"ssh":     map[string][]string{"configs": {"ForwardAgent yes"}},
	}
	data, err := json.Marshal(overlay)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "remote-workspace.json"), data, 0644))

	statuses := f.daemon.Statuses(context.Background())
	require.Len(t, statuses, 1)
	require.Len(t, statuses[0].Projects, 1)

	project := statuses[0].Projects[0]
	assert.Equal(t, "yarn install", project.Scripts.Initialize)
	assert.Contains(t, project.SSH.Configs, "ForwardAgent yes")
}

func TestEstablishedConnectionsCountsLines(t *testing.T) {
	f := newFixture(t)

	id, err := f.daemon.Create(context.Background(), testOptions("feature-work"))
	require.NoError(t, err)

	f.executor.Outputs["ps --quiet "+id] = "abc123\n"
	f.executor.Outputs["exec abc123 ss"] = "ESTAB 0 0 172.18.0.2:22 10.0.0.5:50022\nESTAB 0 0 172.18.0.2:22 10.0.0.6:50023\n"

	connections, err := f.daemon.establishedConnections(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 2, connections)

	// Probe arguments avoid shell interpolation entirely.
	var probeArgs []string
	for _, cmd := range f.executor.Commands() {
		if len(cmd.Args) > 0 && cmd.Args[0] == "exec" {
			probeArgs = cmd.Args
			break
		}
	}
	assert.Equal(t, []string{"exec", "abc123", "ss", "-H", "-t", "state", "established", "(", "sport", "=", ":22", ")"}, probeArgs)
}
