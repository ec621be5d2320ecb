package engagement

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sahilm/fuzzy"
	"go.uber.org/zap"

	"github.com/sololeveling/lifesystem/internal/domain"
	"github.com/sololeveling/lifesystem/internal/infra/metrics"
)

// DefaultCatalogCacheSize bounds the number of cached template pools.
const DefaultCatalogCacheSize = 128

// Catalog serves quest template pools from the store through an LRU cache.
// Templates are immutable to the engine, so the cache is only invalidated
// when the catalog is reseeded.
type Catalog struct {
	repo  domain.QuestRepo
	cache *lru.Cache
	log   *zap.Logger
}

// NewCatalog creates a catalog over repo. size <= 0 uses the default.
func NewCatalog(repo domain.QuestRepo, size int, log *zap.Logger) (*Catalog, error) {
	if size <= 0 {
		size = DefaultCatalogCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("template cache: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Catalog{repo: repo, cache: cache, log: log.Named("catalog")}, nil
}

// Templates returns the active templates matching f. The returned slice is
// shared with the cache and must not be modified.
func (c *Catalog) Templates(ctx context.Context, f domain.TemplateFilter) ([]domain.QuestTemplate, error) {
	key := cacheKey(f)
	if v, ok := c.cache.Get(key); ok {
		metrics.CatalogCacheLookups.WithLabelValues("hit").Inc()
		return v.([]domain.QuestTemplate), nil
	}
	metrics.CatalogCacheLookups.WithLabelValues("miss").Inc()

	templates, err := c.repo.ListTemplates(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	c.cache.Add(key, templates)
	return templates, nil
}

// Pool returns the primary pool for a category and quest type.
func (c *Catalog) Pool(ctx context.Context, category string, qt domain.QuestType) ([]domain.QuestTemplate, error) {
	return c.Templates(ctx, domain.TemplateFilter{Category: category, QuestType: qt, ActiveOnly: true})
}

// Others returns the active templates of a quest type outside category.
func (c *Catalog) Others(ctx context.Context, category string, qt domain.QuestType) ([]domain.QuestTemplate, error) {
	return c.Templates(ctx, domain.TemplateFilter{ExcludeCategory: category, QuestType: qt, ActiveOnly: true})
}

// Seed upserts templates into the store and drops every cached pool.
// Templates without an id are rejected.
func (c *Catalog) Seed(ctx context.Context, templates []domain.QuestTemplate) (int, error) {
	defer c.Invalidate()

	for i, t := range templates {
		if err := validateTemplate(t); err != nil {
			return i, fmt.Errorf("template %d: %w", i, err)
		}
		if err := c.repo.UpsertTemplate(ctx, t); err != nil {
			return i, fmt.Errorf("upsert template %s: %w", t.ID, err)
		}
	}

	if n, err := c.repo.CountTemplates(ctx); err == nil {
		metrics.CatalogTemplates.Set(float64(n))
	}
	c.log.Info("catalog seeded", zap.Int("templates", len(templates)))
	return len(templates), nil
}

// Replace makes templates the whole active catalog: it upserts them and
// retires every other active template so it is no longer assigned.
// Quests already assigned from a retired template are untouched.
func (c *Catalog) Replace(ctx context.Context, templates []domain.QuestTemplate) (int, error) {
	if len(templates) == 0 {
		return 0, domain.Validationf("refusing to replace the catalog with no templates")
	}
	for i, t := range templates {
		if err := validateTemplate(t); err != nil {
			return 0, fmt.Errorf("template %d: %w", i, err)
		}
	}
	n, err := c.Seed(ctx, templates)
	if err != nil {
		return n, err
	}

	keep := make([]string, len(templates))
	for i, t := range templates {
		keep[i] = t.ID
	}
	retired, err := c.repo.RetireTemplatesExcept(ctx, keep)
	if err != nil {
		return n, fmt.Errorf("retire templates: %w", err)
	}
	if retired > 0 {
		c.log.Info("templates retired", zap.Int64("count", retired))
	}
	return n, nil
}

// Invalidate drops every cached pool.
func (c *Catalog) Invalidate() {
	c.cache.Purge()
}

// Search fuzzy-matches query against template titles, best match first.
// An empty query returns every template matching f.
func (c *Catalog) Search(ctx context.Context, query string, f domain.TemplateFilter) ([]domain.QuestTemplate, error) {
	templates, err := c.Templates(ctx, f)
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		out := make([]domain.QuestTemplate, len(templates))
		copy(out, templates)
		return out, nil
	}

	matches := fuzzy.FindFrom(query, titleSource(templates))
	out := make([]domain.QuestTemplate, 0, len(matches))
	for _, m := range matches {
		out = append(out, templates[m.Index])
	}
	return out, nil
}

// titleSource adapts a template slice to fuzzy.Source.
type titleSource []domain.QuestTemplate

func (s titleSource) String(i int) string { return s[i].Title }
func (s titleSource) Len() int            { return len(s) }

func cacheKey(f domain.TemplateFilter) string {
	return fmt.Sprintf("%s|%s|%s|%t", f.Category, f.ExcludeCategory, f.QuestType, f.ActiveOnly)
}

func validateTemplate(t domain.QuestTemplate) error {
	switch {
	case t.ID == "":
		return domain.Validationf("missing id")
	case strings.TrimSpace(t.Title) == "":
		return domain.Validationf("%s: missing title", t.ID)
	case t.Category == "":
		return domain.Validationf("%s: missing category", t.ID)
	case !t.QuestType.Valid():
		return domain.Validationf("%s: unknown quest type %q", t.ID, t.QuestType)
	case t.BaseXP < 0:
		return domain.Validationf("%s: negative base_xp", t.ID)
	case t.BaseXP > domain.MaxBaseXP:
		return domain.Validationf("%s: base_xp %d exceeds %d", t.ID, t.BaseXP, domain.MaxBaseXP)
	}
	return nil
}
