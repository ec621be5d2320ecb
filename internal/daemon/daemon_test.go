package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sololeveling/lifesystem/internal/domain"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	t.Setenv("LIFESYSTEM_HOME", t.TempDir())
	cfg := DefaultConfig()
	cfg.API.Port = 0
	return cfg
}

func TestNewWithConfig(t *testing.T) {
	d, err := NewWithConfig(testConfig(t), nil)
	require.NoError(t, err)
	defer d.Close()

	n, err := d.ReloadCatalog(context.Background())
	require.NoError(t, err)
	assert.Positive(t, n)

	_, ok := d.Scheduler.StatusOf(JobDaily)
	assert.True(t, ok)
	_, ok = d.Scheduler.StatusOf(JobWeekly)
	assert.True(t, ok)

	statuses := d.Health.RunOnce(context.Background())
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{"database", "data_dir", "sweep_daily", "sweep_weekly"}, names)
}

func TestNewWithConfig_Invalid(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scheduler.DailyAt = "noon"
	_, err := NewWithConfig(cfg, nil)
	assert.Error(t, err)
}

func TestReloadCatalog_RetiresRemovedTemplates(t *testing.T) {
	cfg := testConfig(t)
	cfg.Catalog.SeedFile = filepath.Join(t.TempDir(), "quests.yaml")
	write := func(body string) {
		require.NoError(t, os.WriteFile(cfg.Catalog.SeedFile, []byte(body), 0600))
	}
	write(`version: 1
templates:
  - {id: read-1, title: "Read a Chapter", category: Reading, quest_type: daily}
  - {id: read-2, title: "Write a Summary", category: Reading, quest_type: daily}
`)

	d, err := NewWithConfig(cfg, nil)
	require.NoError(t, err)
	defer d.Close()
	ctx := context.Background()

	n, err := d.ReloadCatalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	write(`version: 1
templates:
  - {id: read-1, title: "Read a Chapter", category: Reading, quest_type: daily}
`)
	_, err = d.ReloadCatalog(ctx)
	require.NoError(t, err)

	pool, err := d.Engine.Catalog.Pool(ctx, "Reading", domain.QuestDaily)
	require.NoError(t, err)
	require.Len(t, pool, 1)
	assert.Equal(t, "read-1", pool[0].ID)

	all, err := d.DB.ListTemplates(ctx, domain.TemplateFilter{Category: "Reading"})
	require.NoError(t, err)
	assert.Len(t, all, 2, "retired templates stay in the store")
}

func TestSweepJobs_GenerateQuests(t *testing.T) {
	d, err := NewWithConfig(testConfig(t), nil)
	require.NoError(t, err)
	defer d.Close()

	ctx := context.Background()
	_, err = d.ReloadCatalog(ctx)
	require.NoError(t, err)
	u, err := d.Engine.Users.Create(ctx, "sung", domain.RoleAdventurer, "Fitness")
	require.NoError(t, err)

	require.NoError(t, d.Scheduler.RunNow(ctx, JobDaily))
	require.NoError(t, d.Scheduler.RunNow(ctx, JobWeekly))

	daily, err := d.Engine.Quests.List(ctx, u.ID, domain.QuestDaily, true)
	require.NoError(t, err)
	assert.Len(t, daily, 8)
	weekly, err := d.Engine.Quests.List(ctx, u.ID, domain.QuestWeekly, true)
	require.NoError(t, err)
	assert.Len(t, weekly, 3)
}

func TestSweepJobs_LogOnce(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	d, err := NewWithConfig(testConfig(t), zap.New(core))
	require.NoError(t, err)
	defer d.Close()

	ctx := context.Background()
	require.NoError(t, d.Scheduler.RunNow(ctx, JobDaily))
	require.NoError(t, d.Scheduler.RunNow(ctx, JobWeekly))

	finished := logs.FilterMessage("sweep finished").All()
	require.Len(t, finished, 2, "one report line per sweep run")
	assert.Equal(t, "daily", finished[0].ContextMap()["sweep"])
	assert.Equal(t, "weekly", finished[1].ContextMap()["sweep"])
}

func TestServe_StopsOnCancel(t *testing.T) {
	d, err := NewWithConfig(testConfig(t), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx) }()

	require.Eventually(t, func() bool {
		st, _ := d.Scheduler.StatusOf(JobDaily)
		return !st.LastSuccess.IsZero()
	}, 5*time.Second, 10*time.Millisecond, "startup sweep did not run")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
