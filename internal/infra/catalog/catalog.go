// Package catalog loads quest templates from YAML seed files.
// The default catalog is embedded in the binary, so a fresh install always
// has quests to hand out; operators can point the daemon at their own file.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/sololeveling/lifesystem/internal/domain"
)

//go:embed default_templates.yaml
var defaultYAML []byte

// templateNamespace seeds the derived template ids.
var templateNamespace = uuid.MustParse("6f1c2a4e-3b9d-4c57-9e2f-8a1d0b7c5e34")

// entry is one template as written in a seed file. Active defaults to true.
type entry struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	BaseXP      int64  `yaml:"base_xp"`
	Difficulty  string `yaml:"difficulty"`
	RelatedStat string `yaml:"related_stat"`
	Category    string `yaml:"category"`
	QuestType   string `yaml:"quest_type"`
	Active      *bool  `yaml:"active"`
}

// file is the seed file layout.
type file struct {
	Version   int     `yaml:"version"`
	Templates []entry `yaml:"templates"`
}

// Default returns the embedded catalog.
func Default() ([]domain.QuestTemplate, error) {
	return Parse(defaultYAML)
}

// Load reads a seed file. An empty path means the embedded catalog.
func Load(path string) ([]domain.QuestTemplate, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	templates, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return templates, nil
}

// Parse decodes a seed file, filling defaults and rejecting duplicate ids.
func Parse(data []byte) ([]domain.QuestTemplate, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, domain.Validationf("parse catalog: %v", err)
	}

	seen := make(map[string]bool, len(f.Templates))
	out := make([]domain.QuestTemplate, 0, len(f.Templates))
	for i, e := range f.Templates {
		t, err := e.template()
		if err != nil {
			return nil, fmt.Errorf("template %d: %w", i, err)
		}
		if seen[t.ID] {
			return nil, domain.Validationf("template %d: duplicate id %s", i, t.ID)
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	return out, nil
}

func (e entry) template() (domain.QuestTemplate, error) {
	title := strings.TrimSpace(e.Title)
	category := strings.TrimSpace(e.Category)
	if title == "" {
		return domain.QuestTemplate{}, domain.Validationf("missing title")
	}
	if category == "" {
		return domain.QuestTemplate{}, domain.Validationf("%q: missing category", title)
	}

	qt, err := domain.ParseQuestType(strings.ToLower(e.QuestType))
	if err != nil {
		return domain.QuestTemplate{}, err
	}

	diff := domain.Difficulty(strings.ToLower(e.Difficulty))
	switch diff {
	case domain.DifficultyEasy, domain.DifficultyMedium, domain.DifficultyHard:
	case "":
		diff = domain.DifficultyEasy
	default:
		return domain.QuestTemplate{}, domain.Validationf("%q: unknown difficulty %q", title, e.Difficulty)
	}

	xp := e.BaseXP
	if xp == 0 {
		xp = qt.DefaultXP()
	}
	if xp < 0 {
		return domain.QuestTemplate{}, domain.Validationf("%q: negative base_xp", title)
	}
	if xp > domain.MaxBaseXP {
		return domain.QuestTemplate{}, domain.Validationf("%q: base_xp %d exceeds %d", title, xp, domain.MaxBaseXP)
	}

	id := strings.TrimSpace(e.ID)
	if id == "" {
		id = DeriveID(category, qt, title)
	}

	return domain.QuestTemplate{
		ID:          id,
		Title:       title,
		Description: strings.TrimSpace(e.Description),
		BaseXP:      xp,
		Difficulty:  diff,
		RelatedStat: strings.TrimSpace(e.RelatedStat),
		Category:    category,
		QuestType:   qt,
		Active:      e.Active == nil || *e.Active,
	}, nil
}

// DeriveID returns the stable id of a template without an explicit one.
func DeriveID(category string, qt domain.QuestType, title string) string {
	key := strings.ToLower(category) + "/" + string(qt) + "/" + strings.ToLower(title)
	return uuid.NewSHA1(templateNamespace, []byte(key)).String()
}

// Lookup finds a template by id. Returns nil if not found.
func Lookup(templates []domain.QuestTemplate, id string) *domain.QuestTemplate {
	for i := range templates {
		if templates[i].ID == id {
			return &templates[i]
		}
	}
	return nil
}

// Categories returns the distinct categories in templates, sorted.
func Categories(templates []domain.QuestTemplate) []string {
	var out []string
	for _, t := range templates {
		if !slices.Contains(out, t.Category) {
			out = append(out, t.Category)
		}
	}
	slices.Sort(out)
	return out
}
