package engagement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sololeveling/lifesystem/internal/domain"
	"github.com/sololeveling/lifesystem/internal/infra/metrics"
)

// QuestConfig tunes quest generation and the sweeps.
type QuestConfig struct {
	DailyCount          int
	WeeklyCount         int
	SimilarityThreshold float64
	BackfillPoolSize    int
	Retention           time.Duration // uncompleted quests are purged this long after expiry
	DailyTTL            time.Duration
	WeeklyTTL           time.Duration
	Location            *time.Location
	UserTimeout         time.Duration // per-user budget inside a sweep
	Concurrency         int           // parallel users inside a sweep
}

// DefaultQuestConfig returns the stock generation settings.
func DefaultQuestConfig() QuestConfig {
	return QuestConfig{
		DailyCount:          8,
		WeeklyCount:         3,
		SimilarityThreshold: DefaultSimilarityThreshold,
		BackfillPoolSize:    20,
		Retention:           7 * 24 * time.Hour,
		DailyTTL:            24 * time.Hour,
		WeeklyTTL:           7 * 24 * time.Hour,
		Location:            time.UTC,
		UserTimeout:         30 * time.Second,
		Concurrency:         4,
	}
}

// QuestService assigns, expires and renews quests per user and quest type.
//
// Per user and type a quest moves none → active → expired | completed.
// Generate replaces the user's live batch; the daily sweep expires old
// quests and renews users left without any; the weekly sweep generates at
// most one batch per calendar week.
type QuestService struct {
	store    domain.Store
	catalog  *Catalog
	selector *Selector
	cfg      QuestConfig
	log      *zap.Logger
}

// NewQuestService creates a quest service. Zero config fields take defaults.
func NewQuestService(store domain.Store, catalog *Catalog, cfg QuestConfig, log *zap.Logger) *QuestService {
	def := DefaultQuestConfig()
	if cfg.DailyCount <= 0 {
		cfg.DailyCount = def.DailyCount
	}
	if cfg.WeeklyCount <= 0 {
		cfg.WeeklyCount = def.WeeklyCount
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = def.SimilarityThreshold
	}
	if cfg.BackfillPoolSize <= 0 {
		cfg.BackfillPoolSize = def.BackfillPoolSize
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	if cfg.DailyTTL <= 0 {
		cfg.DailyTTL = def.DailyTTL
	}
	if cfg.WeeklyTTL <= 0 {
		cfg.WeeklyTTL = def.WeeklyTTL
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	if cfg.UserTimeout <= 0 {
		cfg.UserTimeout = def.UserTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &QuestService{
		store:    store,
		catalog:  catalog,
		selector: NewSelector(cfg.SimilarityThreshold),
		cfg:      cfg,
		log:      log.Named("quests"),
	}
}

// Config returns the effective configuration.
func (q *QuestService) Config() QuestConfig {
	return q.cfg
}

// Generate replaces the user's live batch of qt quests.
func (q *QuestService) Generate(ctx context.Context, userID string, qt domain.QuestType) (*domain.GenerationResult, error) {
	return q.GenerateAt(ctx, userID, qt, time.Now())
}

// GenerateAt replaces the user's live batch of qt quests as of now.
// The user must have a category set (ErrValidation otherwise).
func (q *QuestService) GenerateAt(ctx context.Context, userID string, qt domain.QuestType, now time.Time) (*domain.GenerationResult, error) {
	return q.generate(ctx, userID, qt, now, nil)
}

// errBatchExists aborts a guarded generate whose guard found a batch.
var errBatchExists = errors.New("batch already assigned")

// generate replaces the live batch. The user's progress row is locked first
// so overlapping generates for one user run one after the other. When guard
// is set it runs under that lock and may veto the batch by returning false.
func (q *QuestService) generate(ctx context.Context, userID string, qt domain.QuestType, now time.Time, guard func(domain.Repo) (bool, error)) (*domain.GenerationResult, error) {
	if !qt.Valid() {
		return nil, domain.Validationf("unknown quest type %q", qt)
	}

	p, err := q.store.GetProgress(ctx, userID)
	if err != nil {
		return nil, domain.Persistence("get progress", err)
	}
	if p == nil {
		return nil, domain.NotFoundf("progress for user %s", userID)
	}
	if p.Category == "" {
		return nil, domain.Validationf("user %s has no category set", userID)
	}

	// Pools are read before the transaction opens: the SQLite store has a
	// single connection, which the transaction holds until commit.
	chosen, err := q.choose(ctx, p.Category, qt)
	if err != nil {
		return nil, domain.Persistence("load templates", err)
	}

	fallback := len(chosen) == 0
	quests := q.materialize(userID, qt, chosen, now)
	if fallback {
		quests = q.placeholders(userID, qt, now)
	}

	res := &domain.GenerationResult{UserID: userID, QuestType: qt, Quests: quests, Fallback: fallback}
	err = q.store.InTx(ctx, func(repo domain.Repo) error {
		locked, err := repo.LockProgress(ctx, userID)
		if err != nil {
			return fmt.Errorf("lock progress: %w", err)
		}
		if locked == nil {
			return domain.NotFoundf("progress for user %s", userID)
		}
		if guard != nil {
			ok, err := guard(repo)
			if err != nil {
				return err
			}
			if !ok {
				return errBatchExists
			}
		}
		cleared, err := repo.DeleteAssignedQuests(ctx, userID, qt, false, now)
		if err != nil {
			return fmt.Errorf("clear quests: %w", err)
		}
		res.Cleared = cleared
		for _, aq := range quests {
			if err := repo.InsertAssignedQuest(ctx, aq); err != nil {
				return fmt.Errorf("insert quest: %w", err)
			}
		}
		return nil
	})
	if errors.Is(err, errBatchExists) {
		return nil, err
	}
	if err != nil {
		return nil, domain.Persistence("generate quests", err)
	}

	origin := "catalog"
	if fallback {
		origin = "fallback"
	}
	metrics.QuestsGenerated.WithLabelValues(string(qt), origin).Add(float64(len(quests)))
	q.log.Debug("quests generated",
		zap.String("user_id", userID),
		zap.String("type", string(qt)),
		zap.Int("count", len(quests)),
		zap.Int64("cleared", res.Cleared),
		zap.Bool("fallback", fallback))
	return res, nil
}

// choose runs the selector over the category pool, backfilling daily
// batches from a bounded random sample of the other categories.
func (q *QuestService) choose(ctx context.Context, category string, qt domain.QuestType) ([]domain.QuestTemplate, error) {
	primary, err := q.catalog.Pool(ctx, category, qt)
	if err != nil {
		return nil, err
	}

	var backfill []domain.QuestTemplate
	if qt == domain.QuestDaily {
		others, err := q.catalog.Others(ctx, category, qt)
		if err != nil {
			return nil, err
		}
		backfill = Shuffle(others, q.selector.Rand)
		if len(backfill) > q.cfg.BackfillPoolSize {
			backfill = backfill[:q.cfg.BackfillPoolSize]
		}
	}
	return q.selector.Select(primary, backfill, q.count(qt)), nil
}

func (q *QuestService) materialize(userID string, qt domain.QuestType, templates []domain.QuestTemplate, now time.Time) []domain.AssignedQuest {
	out := make([]domain.AssignedQuest, 0, len(templates))
	for i := range templates {
		t := templates[i]
		out = append(out, domain.AssignedQuest{
			ID:           uuid.NewString(),
			UserID:       userID,
			TemplateID:   t.ID,
			QuestType:    qt,
			Title:        t.Title,
			Description:  t.Description,
			Difficulty:   t.Difficulty,
			RelatedStat:  t.RelatedStat,
			BaseXP:       t.BaseXP,
			AssignedDate: now.In(q.cfg.Location).Format(dateLayout),
			ExpiresAt:    now.Add(q.ttl(qt)),
			Template:     &t,
		})
	}
	return out
}

// placeholders synthesizes the generic batch used when the catalog has
// nothing to offer. Placeholder quests carry no template id.
func (q *QuestService) placeholders(userID string, qt domain.QuestType, now time.Time) []domain.AssignedQuest {
	src := dailyPlaceholders
	if qt == domain.QuestWeekly {
		src = weeklyPlaceholders
	}
	n := min(q.count(qt), len(src))
	out := make([]domain.AssignedQuest, 0, n)
	for _, ph := range src[:n] {
		out = append(out, domain.AssignedQuest{
			ID:           uuid.NewString(),
			UserID:       userID,
			QuestType:    qt,
			Title:        ph.Title,
			Description:  ph.Description,
			Difficulty:   ph.Difficulty,
			RelatedStat:  ph.RelatedStat,
			BaseXP:       qt.DefaultXP(),
			AssignedDate: now.In(q.cfg.Location).Format(dateLayout),
			ExpiresAt:    now.Add(q.ttl(qt)),
		})
	}
	return out
}

// List returns the user's quests of qt (all types when empty). With
// activeOnly, only quests that can still be completed are returned.
func (q *QuestService) List(ctx context.Context, userID string, qt domain.QuestType, activeOnly bool) ([]domain.AssignedQuest, error) {
	f := domain.QuestFilter{QuestType: qt}
	if activeOnly {
		f.ActiveAt = time.Now()
	}
	quests, err := q.store.ListAssignedQuests(ctx, userID, f)
	if err != nil {
		return nil, domain.Persistence("list quests", err)
	}
	return quests, nil
}

// ─── Sweeps ─────────────────────────────────────────────────────────────────

// DailySweep runs the expire-and-renew sweep now.
func (q *QuestService) DailySweep(ctx context.Context) (*domain.SweepReport, error) {
	return q.DailySweepAt(ctx, time.Now())
}

// DailySweepAt expires finished daily quests, generates a batch for every
// active adventurer left without a live daily quest, and purges quests that
// expired uncompleted more than the retention window ago.
//
// Running it twice in the same window is a no-op the second time: users
// renewed by the first run hold live quests and are not candidates again.
func (q *QuestService) DailySweepAt(ctx context.Context, now time.Time) (*domain.SweepReport, error) {
	report := &domain.SweepReport{Sweep: "daily", StartedAt: now}
	start := time.Now()
	defer q.observe(report, start)

	expired, err := q.store.ExpireQuests(ctx, domain.QuestDaily, now)
	if err != nil {
		return report, domain.Persistence("expire quests", err)
	}
	report.Expired = expired

	candidates, err := q.store.UsersWithoutActiveQuests(ctx, domain.QuestDaily, now)
	if err != nil {
		return report, domain.Persistence("list candidates", err)
	}
	report.Candidates = len(candidates)

	q.fanOut(ctx, report, candidates, func(ctx context.Context, userID string) (bool, error) {
		_, err := q.GenerateAt(ctx, userID, domain.QuestDaily, now)
		return err == nil, err
	})

	purged, err := q.store.PurgeExpiredQuests(ctx, now.Add(-q.cfg.Retention))
	if err != nil {
		return report, domain.Persistence("purge quests", err)
	}
	report.Purged = purged

	if n, err := q.store.PurgeExpiredNotifications(ctx, now); err != nil {
		q.log.Warn("purge notifications failed", zap.Error(err))
	} else if n > 0 {
		q.log.Debug("notifications purged", zap.Int64("count", n))
	}
	return report, nil
}

// WeeklySweep runs the weekly sweep now.
func (q *QuestService) WeeklySweep(ctx context.Context) (*domain.SweepReport, error) {
	return q.WeeklySweepAt(ctx, time.Now())
}

// WeeklySweepAt generates a weekly batch for every active adventurer who has
// not been assigned one since this week's Monday.
func (q *QuestService) WeeklySweepAt(ctx context.Context, now time.Time) (*domain.SweepReport, error) {
	report := &domain.SweepReport{Sweep: "weekly", StartedAt: now}
	start := time.Now()
	defer q.observe(report, start)

	expired, err := q.store.ExpireQuests(ctx, domain.QuestWeekly, now)
	if err != nil {
		return report, domain.Persistence("expire quests", err)
	}
	report.Expired = expired

	users, err := q.store.ListUsers(ctx, domain.RoleAdventurer, true)
	if err != nil {
		return report, domain.Persistence("list users", err)
	}
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	report.Candidates = len(ids)

	weekStart := WeekStart(now, q.cfg.Location)
	q.fanOut(ctx, report, ids, func(ctx context.Context, userID string) (bool, error) {
		n, err := q.store.CountQuestsAssignedSince(ctx, userID, domain.QuestWeekly, weekStart)
		if err != nil {
			return false, domain.Persistence("count weekly quests", err)
		}
		if n > 0 {
			return false, nil
		}
		// Recheck under the user's lock; another sweep may have won the race.
		_, err = q.generate(ctx, userID, domain.QuestWeekly, now, func(repo domain.Repo) (bool, error) {
			n, err := repo.CountQuestsAssignedSince(ctx, userID, domain.QuestWeekly, weekStart)
			if err != nil {
				return false, fmt.Errorf("count weekly quests: %w", err)
			}
			return n == 0, nil
		})
		if errors.Is(err, errBatchExists) {
			return false, nil
		}
		return err == nil, err
	})
	return report, nil
}

// fanOut runs fn for every user with bounded parallelism and a per-user
// timeout. A failing user never stops the others: validation errors count
// as skipped, anything else as failed.
func (q *QuestService) fanOut(ctx context.Context, report *domain.SweepReport, userIDs []string, fn func(context.Context, string) (bool, error)) {
	var (
		mu   sync.Mutex
		errs error
		g    errgroup.Group
	)
	g.SetLimit(q.cfg.Concurrency)

	for _, id := range userIDs {
		g.Go(func() error {
			uctx, cancel := context.WithTimeout(ctx, q.cfg.UserTimeout)
			defer cancel()

			generated, err := fn(uctx, id)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && generated:
				report.Generated++
			case err == nil, errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrNotFound):
				report.Skipped++
			default:
				report.Failed++
				errs = multierr.Append(errs, fmt.Errorf("user %s: %w", id, err))
				q.log.Warn("sweep user failed",
					zap.String("sweep", report.Sweep),
					zap.String("user_id", id),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range multierr.Errors(errs) {
		report.Errors = append(report.Errors, err.Error())
	}
}

func (q *QuestService) observe(report *domain.SweepReport, start time.Time) {
	report.Duration = time.Since(start)
	metrics.SweepRuns.WithLabelValues(report.Sweep).Inc()
	metrics.SweepDuration.WithLabelValues(report.Sweep).Observe(report.Duration.Seconds())
	if report.Failed > 0 {
		metrics.SweepUserFailures.WithLabelValues(report.Sweep).Add(float64(report.Failed))
	}
	q.log.Info("sweep finished",
		zap.String("sweep", report.Sweep),
		zap.Int64("expired", report.Expired),
		zap.Int("candidates", report.Candidates),
		zap.Int("generated", report.Generated),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Int64("purged", report.Purged),
		zap.Duration("duration", report.Duration))
}

func (q *QuestService) count(qt domain.QuestType) int {
	if qt == domain.QuestWeekly {
		return q.cfg.WeeklyCount
	}
	return q.cfg.DailyCount
}

func (q *QuestService) ttl(qt domain.QuestType) time.Duration {
	if qt == domain.QuestWeekly {
		return q.cfg.WeeklyTTL
	}
	return q.cfg.DailyTTL
}

// WeekStart returns the date (YYYY-MM-DD) of the Monday of t's week in loc.
func WeekStart(t time.Time, loc *time.Location) string {
	d := startOfDay(t, loc)
	offset := (int(d.Weekday()) + 6) % 7 // days since Monday
	return d.AddDate(0, 0, -offset).Format(dateLayout)
}

// ─── Placeholder Quests ─────────────────────────────────────────────────────

type placeholder struct {
	Title       string
	Description string
	Difficulty  domain.Difficulty
	RelatedStat string
}

var dailyPlaceholders = []placeholder{
	{"Drink eight glasses of water", "Stay hydrated through the day.", domain.DifficultyEasy, "Vitality"},
	{"Take a 20-minute walk", "Get outside and move.", domain.DifficultyEasy, "Agility"},
	{"Do 30 push-ups", "Split them into sets if needed.", domain.DifficultyMedium, "Strength"},
	{"Read for 30 minutes", "Any book that teaches you something.", domain.DifficultyEasy, "Intelligence"},
	{"Meditate for 10 minutes", "Sit quietly and focus on your breath.", domain.DifficultyEasy, "Perception"},
	{"Sleep before midnight", "Protect your recovery.", domain.DifficultyMedium, "Vitality"},
	{"Stretch for 15 minutes", "Full-body mobility routine.", domain.DifficultyEasy, "Agility"},
	{"Write tomorrow's plan", "List three priorities for tomorrow.", domain.DifficultyEasy, "Intelligence"},
}

var weeklyPlaceholders = []placeholder{
	{"Complete three workouts", "Any training session of 30 minutes or more.", domain.DifficultyMedium, "Strength"},
	{"Finish a book chapter a day", "Read one chapter on five days this week.", domain.DifficultyMedium, "Intelligence"},
	{"Weekly review", "Reflect on the week and set goals for the next one.", domain.DifficultyEasy, "Perception"},
}
