package engagement

import (
	"go.uber.org/zap"

	"github.com/sololeveling/lifesystem/internal/domain"
)

// Config collects the tunables of every engagement service.
type Config struct {
	Quests           QuestConfig
	Notifications    domain.NotificationPolicy
	CatalogCacheSize int
}

// DefaultConfig returns stock settings for every service.
func DefaultConfig() Config {
	return Config{
		Quests:           DefaultQuestConfig(),
		Notifications:    domain.DefaultNotificationPolicy(),
		CatalogCacheSize: DefaultCatalogCacheSize,
	}
}

// Engine wires the engagement services over one store.
type Engine struct {
	Catalog       *Catalog
	Users         *UserService
	Quests        *QuestService
	Progression   *ProgressionService
	Achievements  *AchievementService
	Notifications *NotificationService
	Streaks       *StreakTracker
}

// New builds an Engine. A nil logger disables logging.
func New(store domain.Store, cfg Config, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	catalog, err := NewCatalog(store, cfg.CatalogCacheSize, log)
	if err != nil {
		return nil, err
	}

	quests := NewQuestService(store, catalog, cfg.Quests, log)
	loc := quests.Config().Location

	notify := NewNotificationServiceWithPolicy(store, cfg.Notifications, loc, log)
	streaks := NewStreakTracker(loc)
	achievements := NewAchievementService(store, notify, log)

	return &Engine{
		Catalog:       catalog,
		Users:         NewUserService(store, notify, log),
		Quests:        quests,
		Progression:   NewProgressionService(store, streaks, achievements, notify, log),
		Achievements:  achievements,
		Notifications: notify,
		Streaks:       streaks,
	}, nil
}
