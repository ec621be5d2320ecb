package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/sololeveling/lifesystem/internal/domain"
)

// ─── Quest Templates ────────────────────────────────────────────────────────

const templateColumns = `id, title, description, base_xp, difficulty, related_stat, category, quest_type, active`

// UpsertTemplate inserts a catalog entry or replaces the one with the same id.
func (r *repo) UpsertTemplate(ctx context.Context, t domain.QuestTemplate) error {
	_, err := r.exec(ctx,
		`INSERT INTO quest_templates (`+templateColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			base_xp = excluded.base_xp,
			difficulty = excluded.difficulty,
			related_stat = excluded.related_stat,
			category = excluded.category,
			quest_type = excluded.quest_type,
			active = excluded.active`,
		t.ID, t.Title, t.Description, t.BaseXP, string(t.Difficulty), t.RelatedStat,
		t.Category, string(t.QuestType), b2i(t.Active),
	)
	return err
}

// ListTemplates returns catalog entries matching the filter, ordered by id.
func (r *repo) ListTemplates(ctx context.Context, f domain.TemplateFilter) ([]domain.QuestTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM quest_templates WHERE 1 = 1`
	var args []any
	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, f.Category)
	}
	if f.ExcludeCategory != "" {
		query += ` AND category <> ?`
		args = append(args, f.ExcludeCategory)
	}
	if f.QuestType != "" {
		query += ` AND quest_type = ?`
		args = append(args, string(f.QuestType))
	}
	if f.ActiveOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY id`

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.QuestTemplate
	for rows.Next() {
		var t domain.QuestTemplate
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.BaseXP, &t.Difficulty,
			&t.RelatedStat, &t.Category, &t.QuestType, &t.Active); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CountTemplates returns the catalog size.
func (r *repo) CountTemplates(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM quest_templates`)
}

// RetireTemplatesExcept deactivates active templates whose id is not in keep.
// Assigned quests keep their template link.
func (r *repo) RetireTemplatesExcept(ctx context.Context, keep []string) (int64, error) {
	query := `UPDATE quest_templates SET active = 0 WHERE active = 1`
	args := make([]any, len(keep))
	if len(keep) > 0 {
		query += ` AND id NOT IN (?` + strings.Repeat(`, ?`, len(keep)-1) + `)`
		for i, id := range keep {
			args[i] = id
		}
	}
	res, err := r.exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ─── Assigned Quests ────────────────────────────────────────────────────────

// assignedSelect joins each assigned quest to its template, if any.
const assignedSelect = `SELECT q.id, q.user_id, q.template_id, q.quest_type, q.title, q.description,
	q.difficulty, q.related_stat, q.base_xp, q.assigned_date, q.expires_at, q.expired,
	q.completed, q.completed_at, q.xp_awarded,
	t.id, t.title, t.description, t.base_xp, t.difficulty, t.related_stat, t.category, t.quest_type, t.active
FROM assigned_quests q
LEFT JOIN quest_templates t ON t.id = q.template_id`

// InsertAssignedQuest stores a newly generated quest.
func (r *repo) InsertAssignedQuest(ctx context.Context, q domain.AssignedQuest) error {
	_, err := r.exec(ctx,
		`INSERT INTO assigned_quests (id, user_id, template_id, quest_type, title, description,
			difficulty, related_stat, base_xp, assigned_date, expires_at, expired, completed,
			completed_at, xp_awarded)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.UserID, nullString(q.TemplateID), string(q.QuestType), q.Title, q.Description,
		string(q.Difficulty), q.RelatedStat, q.BaseXP, q.AssignedDate, q.ExpiresAt.Unix(),
		b2i(q.Expired), b2i(q.Completed), unixOrZero(q.CompletedAt), q.XPAwarded,
	)
	return err
}

// GetAssignedQuest retrieves an assigned quest with its template.
func (r *repo) GetAssignedQuest(ctx context.Context, id string) (*domain.AssignedQuest, error) {
	return r.getAssigned(ctx, id, "")
}

// LockAssignedQuest retrieves an assigned quest for update.
func (r *repo) LockAssignedQuest(ctx context.Context, id string) (*domain.AssignedQuest, error) {
	return r.getAssigned(ctx, id, r.dialect.lock("q"))
}

func (r *repo) getAssigned(ctx context.Context, id, lock string) (*domain.AssignedQuest, error) {
	q, err := scanAssigned(r.queryRow(ctx, assignedSelect+` WHERE q.id = ?`+lock, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return q, err
}

// ListAssignedQuests returns a user's quests, newest assignment first.
func (r *repo) ListAssignedQuests(ctx context.Context, userID string, f domain.QuestFilter) ([]domain.AssignedQuest, error) {
	query := assignedSelect + ` WHERE q.user_id = ?`
	args := []any{userID}
	if f.QuestType != "" {
		query += ` AND q.quest_type = ?`
		args = append(args, string(f.QuestType))
	}
	if !f.ActiveAt.IsZero() {
		query += ` AND q.completed = 0 AND q.expired = 0 AND q.expires_at > ?`
		args = append(args, f.ActiveAt.Unix())
	}
	query += ` ORDER BY q.assigned_date DESC, q.quest_type, q.title`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AssignedQuest
	for rows.Next() {
		q, err := scanAssigned(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}
	return out, rows.Err()
}

// DeleteAssignedQuests removes a user's uncompleted quests of one type.
// Completed quests are history and are never deleted.
func (r *repo) DeleteAssignedQuests(ctx context.Context, userID string, qt domain.QuestType, onlyExpired bool, now time.Time) (int64, error) {
	query := `DELETE FROM assigned_quests WHERE user_id = ? AND quest_type = ? AND completed = 0`
	if onlyExpired {
		query += ` AND expires_at <= ?`
	} else {
		query += ` AND expires_at > ?`
	}
	res, err := r.exec(ctx, query, userID, string(qt), now.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkQuestCompleted is the completion check-and-set. It returns false when
// the quest was already completed by a concurrent or earlier call.
func (r *repo) MarkQuestCompleted(ctx context.Context, id, userID string, xp int64, at time.Time) (bool, error) {
	res, err := r.exec(ctx,
		`UPDATE assigned_quests SET completed = 1, completed_at = ?, xp_awarded = ?
		 WHERE id = ? AND user_id = ? AND completed = 0`,
		at.Unix(), xp, id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ExpireQuests flags every uncompleted quest of a type whose window closed.
func (r *repo) ExpireQuests(ctx context.Context, qt domain.QuestType, now time.Time) (int64, error) {
	res, err := r.exec(ctx,
		`UPDATE assigned_quests SET expired = 1
		 WHERE quest_type = ? AND completed = 0 AND expired = 0 AND expires_at <= ?`,
		string(qt), now.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PurgeExpiredQuests deletes uncompleted quests that expired before the cutoff.
func (r *repo) PurgeExpiredQuests(ctx context.Context, expiredBefore time.Time) (int64, error) {
	res, err := r.exec(ctx,
		`DELETE FROM assigned_quests WHERE completed = 0 AND expires_at < ?`,
		expiredBefore.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UsersWithoutActiveQuests lists active adventurers holding no live quest of
// the given type.
func (r *repo) UsersWithoutActiveQuests(ctx context.Context, qt domain.QuestType, now time.Time) ([]string, error) {
	rows, err := r.query(ctx,
		`SELECT u.id FROM users u
		 JOIN user_progress p ON p.user_id = u.id
		 WHERE u.role = ? AND u.active = 1
		   AND NOT EXISTS (
			SELECT 1 FROM assigned_quests q
			WHERE q.user_id = u.id AND q.quest_type = ?
			  AND q.expired = 0 AND q.expires_at > ?
		   )
		 ORDER BY u.id`,
		string(domain.RoleAdventurer), string(qt), now.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountQuestsAssignedSince counts quests of a type assigned on or after sinceDate.
func (r *repo) CountQuestsAssignedSince(ctx context.Context, userID string, qt domain.QuestType, sinceDate string) (int, error) {
	return r.count(ctx,
		`SELECT COUNT(*) FROM assigned_quests WHERE user_id = ? AND quest_type = ? AND assigned_date >= ?`,
		userID, string(qt), sinceDate)
}

// CountCompletedQuests counts the user's completions from history.
func (r *repo) CountCompletedQuests(ctx context.Context, userID string) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM quest_history WHERE user_id = ?`, userID)
}

// InsertQuestCompletion appends a completion history record.
func (r *repo) InsertQuestCompletion(ctx context.Context, c domain.QuestCompletion) error {
	_, err := r.exec(ctx,
		`INSERT INTO quest_history (id, user_id, quest_id, template_id, quest_type, xp, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.QuestID, nullString(c.TemplateID), string(c.QuestType), c.XP, c.CompletedAt.Unix())
	return err
}

func scanAssigned(s scanner) (*domain.AssignedQuest, error) {
	var (
		q                      domain.AssignedQuest
		templateID             sql.NullString
		expiresAt, completedAt int64

		tID, tTitle, tDesc, tDiff, tStat, tCat, tType sql.NullString
		tXP                                           sql.NullInt64
		tActive                                       sql.NullInt64
	)
	err := s.Scan(&q.ID, &q.UserID, &templateID, &q.QuestType, &q.Title, &q.Description,
		&q.Difficulty, &q.RelatedStat, &q.BaseXP, &q.AssignedDate, &expiresAt, &q.Expired,
		&q.Completed, &completedAt, &q.XPAwarded,
		&tID, &tTitle, &tDesc, &tXP, &tDiff, &tStat, &tCat, &tType, &tActive)
	if err != nil {
		return nil, err
	}
	q.TemplateID = templateID.String
	q.ExpiresAt = time.Unix(expiresAt, 0)
	q.CompletedAt = timeOrZero(completedAt)
	if tID.Valid {
		q.Template = &domain.QuestTemplate{
			ID:          tID.String,
			Title:       tTitle.String,
			Description: tDesc.String,
			BaseXP:      tXP.Int64,
			Difficulty:  domain.Difficulty(tDiff.String),
			RelatedStat: tStat.String,
			Category:    tCat.String,
			QuestType:   domain.QuestType(tType.String),
			Active:      tActive.Int64 == 1,
		}
	}
	return &q, nil
}
