package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sololeveling/lifesystem/internal/domain"
)

// ─── Request Types ──────────────────────────────────────────────────────────

type createUserRequest struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	Category string `json:"category"`
}

type categoryRequest struct {
	Category string `json:"category"`
}

type feedbackRequest struct {
	UserID  string `json:"user_id"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.Validationf("invalid request body: %v", err)
	}
	return nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, domain.Validationf("%s must be a non-negative integer", key)
	}
	return n, nil
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}

// ─── Users ──────────────────────────────────────────────────────────────────

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	user, err := s.eng.Users.Create(r.Context(), req.Username, role, req.Category)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	view, err := s.eng.Progression.Progress(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSetCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	userID := chi.URLParam(r, "userID")
	if err := s.eng.Users.SetCategory(r.Context(), userID, req.Category); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user_id": userID, "category": req.Category})
}

// ─── Quests ─────────────────────────────────────────────────────────────────

func (s *Server) handleListQuests(w http.ResponseWriter, r *http.Request) {
	var qt domain.QuestType
	if v := r.URL.Query().Get("type"); v != "" {
		parsed, err := domain.ParseQuestType(v)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		qt = parsed
	}
	quests, err := s.eng.Quests.List(r.Context(), chi.URLParam(r, "userID"), qt, !queryBool(r, "all"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quests": quests})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	qt, err := domain.ParseQuestType(r.URL.Query().Get("type"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	res, err := s.eng.Quests.Generate(r.Context(), chi.URLParam(r, "userID"), qt)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	res, err := s.eng.Progression.Complete(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "questID"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ─── Progress Read Model ────────────────────────────────────────────────────

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	earned, err := s.eng.Achievements.Earned(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"earned":    earned,
		"available": s.eng.Achievements.Definitions(),
	})
}

func (s *Server) handleCheckins(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", 30)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	checkins, err := s.eng.Progression.Checkins(r.Context(), chi.URLParam(r, "userID"), days, time.Now())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"checkins": checkins})
}

// ─── Notifications ──────────────────────────────────────────────────────────

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	notes, err := s.eng.Notifications.List(r.Context(), chi.URLParam(r, "userID"), queryBool(r, "unread"), limit)
	if err != nil {
		s.writeDomainError(w, r, domain.Persistence("list notifications", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notes})
}

func (s *Server) handleNotificationRead(w http.ResponseWriter, r *http.Request) {
	err := s.eng.Notifications.MarkRead(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, domain.Persistence("mark notification read", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Coaches ────────────────────────────────────────────────────────────────

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	n, err := s.eng.Users.SendFeedback(r.Context(), chi.URLParam(r, "coachID"), req.UserID, req.Title, req.Message)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// ─── Templates ──────────────────────────────────────────────────────────────

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.TemplateFilter{Category: q.Get("category"), ActiveOnly: true}
	if v := q.Get("type"); v != "" {
		qt, err := domain.ParseQuestType(v)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		f.QuestType = qt
	}
	templates, err := s.eng.Catalog.Search(r.Context(), q.Get("q"), f)
	if err != nil {
		s.writeDomainError(w, r, domain.Persistence("search templates", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": templates})
}

// ─── Admin ──────────────────────────────────────────────────────────────────

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	var role domain.Role
	if v := r.URL.Query().Get("role"); v != "" {
		parsed, err := domain.ParseRole(v)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		role = parsed
	}
	users, err := s.eng.Users.List(r.Context(), role, !queryBool(r, "all"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	var (
		report *domain.SweepReport
		err    error
	)
	switch kind := chi.URLParam(r, "kind"); kind {
	case "daily":
		report, err = s.eng.Quests.DailySweep(r.Context())
	case "weekly":
		report, err = s.eng.Quests.WeeklySweep(r.Context())
	default:
		writeError(w, http.StatusBadRequest, "unknown sweep "+kind+", want daily or weekly")
		return
	}
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCatalogReload(w http.ResponseWriter, r *http.Request) {
	if s.reload == nil {
		writeError(w, http.StatusNotFound, "catalog reload is not configured")
		return
	}
	n, err := s.reload(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"templates": n})
}

func (s *Server) handleAdminHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"healthy": true}
	if s.health != nil {
		checks := s.health.Statuses()
		if len(checks) == 0 || queryBool(r, "refresh") {
			checks = s.health.RunOnce(r.Context())
		}
		resp["healthy"] = s.health.IsHealthy()
		resp["checks"] = checks
	}
	if s.jobs != nil {
		resp["jobs"] = s.jobs.Status()
	}
	writeJSON(w, http.StatusOK, resp)
}
