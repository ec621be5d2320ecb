package domain

import "time"

// ─── Quest Types ────────────────────────────────────────────────────────────

// QuestType is the cadence a quest belongs to.
type QuestType string

const (
	QuestDaily  QuestType = "daily"
	QuestWeekly QuestType = "weekly"
)

// Valid reports whether t is a known quest cadence.
func (t QuestType) Valid() bool {
	return t == QuestDaily || t == QuestWeekly
}

// ParseQuestType parses a quest type, defaulting to daily when s is empty.
func ParseQuestType(s string) (QuestType, error) {
	if s == "" {
		return QuestDaily, nil
	}
	t := QuestType(s)
	if !t.Valid() {
		return "", Validationf("unknown quest type %q", s)
	}
	return t, nil
}

// DefaultXP is the reward used when a completed quest has no template.
func (t QuestType) DefaultXP() int64 {
	switch t {
	case QuestDaily:
		return 30
	case QuestWeekly:
		return 200
	default:
		return 50
	}
}

// Difficulty grades a quest template.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// QuestTemplate is an immutable catalog entry. Templates are created by
// content seeding and never mutated by the engine.
type QuestTemplate struct {
	ID          string     `json:"id" yaml:"id"`
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description" yaml:"description"`
	BaseXP      int64      `json:"base_xp" yaml:"base_xp"`
	Difficulty  Difficulty `json:"difficulty" yaml:"difficulty"`
	RelatedStat string     `json:"related_stat,omitempty" yaml:"related_stat"`
	Category    string     `json:"category" yaml:"category"`
	QuestType   QuestType  `json:"quest_type" yaml:"quest_type"`
	Active      bool       `json:"active" yaml:"active"`
}

// TemplateFilter narrows a template lookup. Empty fields match everything.
type TemplateFilter struct {
	Category        string
	ExcludeCategory string
	QuestType       QuestType
	ActiveOnly      bool
}

// AssignedQuest is a quest bound to a user for a time window.
// TemplateID is empty for generated placeholder quests; the title, XP and
// stat of the quest are snapshotted so placeholders render like any other.
type AssignedQuest struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	TemplateID   string     `json:"template_id,omitempty"`
	QuestType    QuestType  `json:"quest_type"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Difficulty   Difficulty `json:"difficulty"`
	RelatedStat  string     `json:"related_stat,omitempty"`
	BaseXP       int64      `json:"base_xp"`
	AssignedDate string     `json:"assigned_date"` // YYYY-MM-DD
	ExpiresAt    time.Time  `json:"expires_at"`
	Expired      bool       `json:"expired"`
	Completed    bool       `json:"completed"`
	CompletedAt  time.Time  `json:"completed_at,omitzero"`
	XPAwarded    int64      `json:"xp_awarded"`

	// Template is the joined catalog row, nil when TemplateID is empty or
	// the template has since been removed.
	Template *QuestTemplate `json:"-"`
}

// State returns the lifecycle state of the quest at the given time.
func (q AssignedQuest) State(now time.Time) QuestState {
	switch {
	case q.Completed:
		return QuestStateCompleted
	case q.Expired || !now.Before(q.ExpiresAt):
		return QuestStateExpired
	default:
		return QuestStateActive
	}
}

// QuestState is the per-quest lifecycle state: active → expired | completed.
type QuestState string

const (
	QuestStateActive    QuestState = "active"
	QuestStateExpired   QuestState = "expired"
	QuestStateCompleted QuestState = "completed"
)

// QuestCompletion is an append-only completion history record.
type QuestCompletion struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	QuestID     string    `json:"quest_id"`
	TemplateID  string    `json:"template_id,omitempty"`
	QuestType   QuestType `json:"quest_type"`
	XP          int64     `json:"xp"`
	CompletedAt time.Time `json:"completed_at"`
}

// GenerationResult describes one Generate call.
type GenerationResult struct {
	UserID    string          `json:"user_id"`
	QuestType QuestType       `json:"quest_type"`
	Cleared   int64           `json:"cleared"`
	Quests    []AssignedQuest `json:"quests"`
	Fallback  bool            `json:"fallback"`
}

// SweepReport summarises a scheduled sweep over all adventurers.
type SweepReport struct {
	Sweep      string        `json:"sweep"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Expired    int64         `json:"expired"`
	Candidates int           `json:"candidates"`
	Generated  int           `json:"generated"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Purged     int64         `json:"purged"`
	Errors     []string      `json:"errors,omitempty"`
}
