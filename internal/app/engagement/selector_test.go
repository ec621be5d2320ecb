package engagement_test

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/sololeveling/lifesystem/internal/app/engagement"
	"github.com/sololeveling/lifesystem/internal/domain"
)

// ═══════════════════════════════════════════════════════════════════════════
// Similarity Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"same", "same", 0},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"Run", "run", 1},
		{"café", "cafe", 1},
	}
	for _, tt := range tests {
		if got := engagement.LevenshteinDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("LevenshteinDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSimilarity(t *testing.T) {
	if got := engagement.Similarity("", ""); got != 1.0 {
		t.Errorf("Similarity of two empty strings = %v, want 1", got)
	}
	if got := engagement.Similarity("abc", "abc"); got != 1.0 {
		t.Errorf("identical = %v, want 1", got)
	}
	if got := engagement.Similarity("abc", "xyz"); got != 0 {
		t.Errorf("disjoint = %v, want 0", got)
	}
	if got := engagement.Similarity("abc", "abd"); got < 0.666 || got > 0.667 {
		t.Errorf("one substitution in three = %v, want 2/3", got)
	}
}

func TestSimilarity_Symmetric(t *testing.T) {
	words := []string{"", "a", "Morning Run", "Morning Runs", "evening walk", "kitten", "sitting", "🔥 streak", "Plank Hold"}
	for _, a := range words {
		for _, b := range words {
			if x, y := engagement.Similarity(a, b), engagement.Similarity(b, a); x != y {
				t.Errorf("Similarity(%q,%q)=%v but Similarity(%q,%q)=%v", a, b, x, b, a, y)
			}
		}
	}
}

func TestIsUnique(t *testing.T) {
	existing := []string{"morning run"}

	if engagement.IsUnique("Morning Runs", existing) {
		t.Error("\"Morning Runs\" should collide with \"morning run\"")
	}
	if engagement.IsUnique("  MORNING RUN ", existing) {
		t.Error("normalized exact match should not be unique")
	}
	if !engagement.IsUnique("Evening Swim", existing) {
		t.Error("\"Evening Swim\" should be unique")
	}
	if !engagement.IsUnique("anything", nil) {
		t.Error("everything is unique against an empty set")
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Shuffle Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestShuffle_CopyAndPermutation(t *testing.T) {
	in := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	orig := append([]int(nil), in...)

	out := engagement.Shuffle(in, rand.New(rand.NewSource(42)))

	for i := range in {
		if in[i] != orig[i] {
			t.Fatal("Shuffle modified its input")
		}
	}
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	seen := make(map[int]int)
	for _, v := range out {
		seen[v]++
	}
	for _, v := range in {
		if seen[v] != 1 {
			t.Errorf("value %d appears %d times", v, seen[v])
		}
	}
}

func TestShuffle_Deterministic(t *testing.T) {
	in := []string{"a", "b", "c", "d", "e"}
	a := engagement.Shuffle(in, rand.New(rand.NewSource(7)))
	b := engagement.Shuffle(in, rand.New(rand.NewSource(7)))
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed produced %v and %v", a, b)
		}
	}
}

func TestShuffle_Uniformity(t *testing.T) {
	// Each of the 6 permutations of 3 items should appear ~1/6 of the time.
	r := rand.New(rand.NewSource(1))
	counts := make(map[string]int)
	const n = 60000
	for i := 0; i < n; i++ {
		counts[fmt.Sprint(engagement.Shuffle([]int{1, 2, 3}, r))]++
	}
	if len(counts) != 6 {
		t.Fatalf("saw %d permutations, want 6", len(counts))
	}
	for perm, c := range counts {
		if c < n/6-1000 || c > n/6+1000 {
			t.Errorf("permutation %s appeared %d times, want ~%d", perm, c, n/6)
		}
	}
}

func TestShuffle_Empty(t *testing.T) {
	if out := engagement.Shuffle([]int{}, nil); len(out) != 0 {
		t.Errorf("expected empty, got %v", out)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Selector Tests
// ═══════════════════════════════════════════════════════════════════════════

func templatesFrom(prefix, category string, titles ...string) []domain.QuestTemplate {
	out := make([]domain.QuestTemplate, len(titles))
	for i, title := range titles {
		out[i] = domain.QuestTemplate{
			ID:        fmt.Sprintf("%s-%02d", prefix, i),
			Title:     title,
			Category:  category,
			QuestType: domain.QuestDaily,
			BaseXP:    30,
			Active:    true,
		}
	}
	return out
}

var twentyTitles = []string{
	"Morning Run", "Read a Chapter", "Journal Entry", "Cold Shower",
	"Language Lesson", "Budget Review", "Call a Friend", "Cook Dinner",
	"Tidy Desk", "Practice Guitar", "Learn Chess", "Plank Hold",
	"Yoga Flow", "Swim Laps", "Write a Poem", "Water Plants",
	"Sketch Portrait", "Solve Puzzles", "Bake Bread", "Volunteer Hour",
}

func assertSelection(t *testing.T, got []domain.QuestTemplate, threshold float64) {
	t.Helper()
	ids := make(map[string]bool)
	for i, a := range got {
		if ids[a.ID] {
			t.Errorf("duplicate id %s", a.ID)
		}
		ids[a.ID] = true
		for _, b := range got[i+1:] {
			if s := engagement.Similarity(strings.ToLower(a.Title), strings.ToLower(b.Title)); s > threshold {
				t.Errorf("titles %q and %q are similar (%.2f)", a.Title, b.Title, s)
			}
		}
	}
}

func TestSelect_Cardinality(t *testing.T) {
	sel := engagement.NewSelector(0)
	pool := templatesFrom("p", "Life", twentyTitles...)

	for seed := int64(0); seed < 20; seed++ {
		sel.Rand = rand.New(rand.NewSource(seed))
		got := sel.Select(pool, nil, 8)
		if len(got) != 8 {
			t.Fatalf("seed %d: got %d templates, want 8", seed, len(got))
		}
		assertSelection(t, got, engagement.DefaultSimilarityThreshold)
	}
}

func TestSelect_Backfill(t *testing.T) {
	sel := engagement.NewSelector(0)
	sel.Rand = rand.New(rand.NewSource(3))
	primary := templatesFrom("p", "Fitness", "Morning Run", "Plank Hold")
	backfill := templatesFrom("b", "Life", twentyTitles[1:11]...)

	got := sel.Select(primary, backfill, 8)
	if len(got) != 8 {
		t.Fatalf("got %d templates, want 8", len(got))
	}
	var fromPrimary int
	for _, tmpl := range got {
		if tmpl.Category == "Fitness" {
			fromPrimary++
		}
	}
	if fromPrimary != 2 {
		t.Errorf("expected both primary templates, got %d", fromPrimary)
	}
	assertSelection(t, got, engagement.DefaultSimilarityThreshold)
}

func TestSelect_RejectsSimilarTitles(t *testing.T) {
	sel := engagement.NewSelector(0)
	pool := templatesFrom("p", "Fitness", "Morning Run", "Morning Runs", "morning run!", "Plank Hold")

	got := sel.Select(pool, nil, 8)
	if len(got) != 2 {
		t.Errorf("expected 2 distinct titles, got %d: %v", len(got), got)
	}
}

func TestSelect_DuplicateIDs(t *testing.T) {
	sel := engagement.NewSelector(0)
	primary := templatesFrom("x", "Fitness", "Morning Run")
	backfill := []domain.QuestTemplate{{ID: primary[0].ID, Title: "Completely Different"}}

	got := sel.Select(primary, backfill, 8)
	if len(got) != 1 {
		t.Errorf("same id must not be chosen twice, got %d", len(got))
	}
}

func TestSelect_ShortAndEmpty(t *testing.T) {
	sel := engagement.NewSelector(0)
	if got := sel.Select(nil, nil, 8); len(got) != 0 {
		t.Errorf("empty pools should yield nothing, got %d", len(got))
	}
	if got := sel.Select(templatesFrom("p", "Fitness", "Morning Run"), nil, 0); len(got) != 0 {
		t.Errorf("zero target should yield nothing, got %d", len(got))
	}
	got := sel.Select(templatesFrom("p", "Fitness", "Morning Run", "Plank Hold", "Yoga Flow"), nil, 8)
	if len(got) != 3 {
		t.Errorf("short pool: got %d, want 3", len(got))
	}
}

func TestSelect_StricterThreshold(t *testing.T) {
	// "Read a Chapter" and "Read a Poem" share a prefix; a low threshold
	// treats them as duplicates.
	pool := templatesFrom("p", "Life", "Read a Chapter", "Read a Poem")
	if got := engagement.NewSelector(0.3).Select(pool, nil, 8); len(got) != 1 {
		t.Errorf("threshold 0.3: got %d, want 1", len(got))
	}
	if got := engagement.NewSelector(0.9).Select(pool, nil, 8); len(got) != 2 {
		t.Errorf("threshold 0.9: got %d, want 2", len(got))
	}
}
