package catalog_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sololeveling/lifesystem/internal/app/engagement"
	"github.com/sololeveling/lifesystem/internal/domain"
	"github.com/sololeveling/lifesystem/internal/infra/catalog"
)

// ═══════════════════════════════════════════════════════════════════════════
// Parsing
// ═══════════════════════════════════════════════════════════════════════════

func TestDefault_Loads(t *testing.T) {
	templates, err := catalog.Default()
	require.NoError(t, err)
	require.NotEmpty(t, templates)

	assert.Contains(t, catalog.Categories(templates), "Fitness")

	var fitnessDaily []string
	for _, tmpl := range templates {
		assert.True(t, tmpl.Active, "%s should default to active", tmpl.Title)
		assert.Positive(t, tmpl.BaseXP)
		if tmpl.Category == "Fitness" && tmpl.QuestType == domain.QuestDaily {
			fitnessDaily = append(fitnessDaily, tmpl.Title)
		}
	}
	assert.GreaterOrEqual(t, len(fitnessDaily), 8, "a Fitness user must be able to fill a daily batch")
}

func TestDefault_TitlesDistinctPerCategory(t *testing.T) {
	templates, err := catalog.Default()
	require.NoError(t, err)

	byPool := make(map[string][]string)
	for _, tmpl := range templates {
		key := tmpl.Category + "/" + string(tmpl.QuestType)
		for _, other := range byPool[key] {
			assert.True(t, engagement.IsUnique(tmpl.Title, []string{other}),
				"%q and %q are too similar", tmpl.Title, other)
		}
		byPool[key] = append(byPool[key], tmpl.Title)
	}
}

func TestParse_Defaults(t *testing.T) {
	templates, err := catalog.Parse([]byte(`
templates:
  - title: Evening Walk
    category: Fitness
  - id: custom-1
    title: Weekly Hike
    category: Fitness
    quest_type: weekly
    difficulty: HARD
    active: false
`))
	require.NoError(t, err)
	require.Len(t, templates, 2)

	walk := templates[0]
	assert.Equal(t, domain.QuestDaily, walk.QuestType)
	assert.Equal(t, domain.DifficultyEasy, walk.Difficulty)
	assert.Equal(t, int64(30), walk.BaseXP)
	assert.True(t, walk.Active)
	assert.Equal(t, catalog.DeriveID("Fitness", domain.QuestDaily, "Evening Walk"), walk.ID)

	hike := catalog.Lookup(templates, "custom-1")
	require.NotNil(t, hike)
	assert.Equal(t, int64(200), hike.BaseXP)
	assert.Equal(t, domain.DifficultyHard, hike.Difficulty)
	assert.False(t, hike.Active)

	assert.Nil(t, catalog.Lookup(templates, "missing"))
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "templates: [unclosed"},
		{"no title", "templates:\n  - category: Fitness\n"},
		{"no category", "templates:\n  - title: Run\n"},
		{"bad type", "templates:\n  - {title: Run, category: Fitness, quest_type: monthly}\n"},
		{"bad difficulty", "templates:\n  - {title: Run, category: Fitness, difficulty: brutal}\n"},
		{"negative xp", "templates:\n  - {title: Run, category: Fitness, base_xp: -5}\n"},
		{"excessive xp", "templates:\n  - {title: Run, category: Fitness, base_xp: 100001}\n"},
		{"duplicate id", "templates:\n  - {id: a, title: Run, category: Fitness}\n  - {id: a, title: Swim, category: Fitness}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := catalog.Parse([]byte(tt.yaml))
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestDeriveID_Stable(t *testing.T) {
	a := catalog.DeriveID("Fitness", domain.QuestDaily, "Morning Run")
	b := catalog.DeriveID("fitness", domain.QuestDaily, "MORNING RUN")
	c := catalog.DeriveID("Fitness", domain.QuestWeekly, "Morning Run")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestLoad_EmptyPathIsDefault(t *testing.T) {
	fromLoad, err := catalog.Load("")
	require.NoError(t, err)
	def, err := catalog.Default()
	require.NoError(t, err)
	assert.Equal(t, len(def), len(fromLoad))

	_, err = catalog.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

// ═══════════════════════════════════════════════════════════════════════════
// Watcher
// ═══════════════════════════════════════════════════════════════════════════

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "quests.yaml")
	require.NoError(t, os.WriteFile(path, []byte("templates:\n  - {title: Run, category: Fitness}\n"), 0o600))

	got := make(chan []domain.QuestTemplate, 4)
	w, err := catalog.NewWatcher(path, func(_ context.Context, ts []domain.QuestTemplate) error {
		got <- ts
		return nil
	}, nil)
	require.NoError(t, err)
	w.SetDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(path,
		[]byte("templates:\n  - {title: Run, category: Fitness}\n  - {title: Swim Laps, category: Fitness}\n"), 0o600))

	select {
	case ts := <-got:
		assert.Len(t, ts, 2)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not reload")
	}

	require.NoError(t, w.Close())
}

func TestWatcher_IgnoresInvalidFile(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "quests.yaml")
	require.NoError(t, os.WriteFile(path, []byte("templates: []\n"), 0o600))

	called := make(chan struct{}, 1)
	w, err := catalog.NewWatcher(path, func(context.Context, []domain.QuestTemplate) error {
		called <- struct{}{}
		return nil
	}, nil)
	require.NoError(t, err)
	w.SetDebounce(10 * time.Millisecond)
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, os.WriteFile(path, []byte("templates: [broken"), 0o600))

	select {
	case <-called:
		t.Fatal("invalid catalog must not be applied")
	case <-time.After(300 * time.Millisecond):
	}
	require.NoError(t, w.Close())
}

func TestNewWatcher_NeedsPath(t *testing.T) {
	_, err := catalog.NewWatcher("", nil, nil)
	assert.Error(t, err)
}
