package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sololeveling/lifesystem/internal/app/engagement"
	"github.com/sololeveling/lifesystem/internal/domain"
	"github.com/sololeveling/lifesystem/internal/health"
	"github.com/sololeveling/lifesystem/internal/infra/catalog"
	"github.com/sololeveling/lifesystem/internal/infra/store"
)

type testEnv struct {
	srv     *Server
	handler http.Handler
	eng     *engagement.Engine
	db      *store.DB
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	db, err := store.OpenSQLite(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	eng, err := engagement.New(db, engagement.DefaultConfig(), nil)
	require.NoError(t, err)

	templates, err := catalog.Default()
	require.NoError(t, err)
	_, err = eng.Catalog.Seed(context.Background(), templates)
	require.NoError(t, err)

	srv := NewServer(eng, nil)
	return &testEnv{srv: srv, handler: srv.Handler(), eng: eng, db: db}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) createUser(t *testing.T, name string, role domain.Role, category string) string {
	t.Helper()
	u, err := e.eng.Users.Create(context.Background(), name, role, category)
	require.NoError(t, err)
	return u.ID
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type errorBody struct {
	Error struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Retryable bool   `json:"retryable"`
	} `json:"error"`
}

// ═══════════════════════════════════════════════════════════════════════════
// Basics
// ═══════════════════════════════════════════════════════════════════════════

func TestHealth(t *testing.T) {
	env := newTestServer(t)
	w := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, w)["status"])
}

func TestVersion(t *testing.T) {
	env := newTestServer(t)
	w := env.do(t, http.MethodGet, "/api/version", nil)
	assert.Equal(t, Version, decode[map[string]string](t, w)["version"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/metrics", nil).Code)

	env.srv.EnableMetrics()
	env.handler = env.srv.Handler()
	env.do(t, http.MethodGet, "/health", nil)
	w := env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "lifesystem_http_requests_total")
}

func TestCORS(t *testing.T) {
	env := newTestServer(t)
	w := env.do(t, http.MethodOptions, "/api/templates", nil, "Origin", "http://app.local")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	env.srv.SetCORSOrigins([]string{"http://app.local"})
	env.handler = env.srv.Handler()
	w = env.do(t, http.MethodGet, "/health", nil, "Origin", "http://app.local")
	assert.Equal(t, "http://app.local", w.Header().Get("Access-Control-Allow-Origin"))
	w = env.do(t, http.MethodGet, "/health", nil, "Origin", "http://evil.local")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

// ═══════════════════════════════════════════════════════════════════════════
// Users
// ═══════════════════════════════════════════════════════════════════════════

func TestCreateUser(t *testing.T) {
	env := newTestServer(t)

	w := env.do(t, http.MethodPost, "/api/users", createUserRequest{Username: "jinwoo", Category: "Fitness"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	user := decode[domain.User](t, w)
	assert.Equal(t, domain.RoleAdventurer, user.Role)
	assert.NotEmpty(t, user.ID)

	w = env.do(t, http.MethodGet, "/api/users/"+user.ID+"/progress", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[map[string]any](t, w)
	assert.EqualValues(t, 1, view["level"])
	assert.Len(t, view["stats"], len(domain.DefaultStats))

	w = env.do(t, http.MethodPost, "/api/users", createUserRequest{Username: "jinwoo"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", decode[errorBody](t, w).Error.Type)
}

func TestCreateUser_Validation(t *testing.T) {
	env := newTestServer(t)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/users", createUserRequest{}).Code)
	assert.Equal(t, http.StatusBadRequest,
		env.do(t, http.MethodPost, "/api/users", createUserRequest{Username: "x", Role: "wizard"}).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/users", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProgress_UnknownUser(t *testing.T) {
	env := newTestServer(t)
	w := env.do(t, http.MethodGet, "/api/users/nobody/progress", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode[errorBody](t, w).Error.Type)
}

// ═══════════════════════════════════════════════════════════════════════════
// Quests
// ═══════════════════════════════════════════════════════════════════════════

func TestGenerateAndComplete(t *testing.T) {
	env := newTestServer(t)
	uid := env.createUser(t, "hunter", domain.RoleAdventurer, "Fitness")

	w := env.do(t, http.MethodPost, "/api/users/"+uid+"/quests/generate", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	gen := decode[domain.GenerationResult](t, w)
	require.Len(t, gen.Quests, 8)
	assert.False(t, gen.Fallback)

	w = env.do(t, http.MethodGet, "/api/users/"+uid+"/quests?type=daily", nil)
	require.Equal(t, http.StatusOK, w.Code)
	listed := decode[struct {
		Quests []domain.AssignedQuest `json:"quests"`
	}](t, w)
	assert.Len(t, listed.Quests, 8)

	qid := gen.Quests[0].ID
	w = env.do(t, http.MethodPost, "/api/users/"+uid+"/quests/"+qid+"/complete", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[domain.CompletionResult](t, w)
	assert.Equal(t, qid, res.QuestID)
	assert.Positive(t, res.XPGained)
	assert.Equal(t, 1, res.Streak.Current)

	w = env.do(t, http.MethodPost, "/api/users/"+uid+"/quests/"+qid+"/complete", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Completed quests drop out of the active list but stay in the full one.
	w = env.do(t, http.MethodGet, "/api/users/"+uid+"/quests?all=1", nil)
	all := decode[struct {
		Quests []domain.AssignedQuest `json:"quests"`
	}](t, w)
	assert.Len(t, all.Quests, 8)

	w = env.do(t, http.MethodGet, "/api/users/"+uid+"/checkins?days=7", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[map[string][]any](t, w)["checkins"], 1)

	w = env.do(t, http.MethodGet, "/api/users/"+uid+"/achievements", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode[map[string][]any](t, w)["available"])
}

func TestComplete_UnknownQuest(t *testing.T) {
	env := newTestServer(t)
	uid := env.createUser(t, "lost", domain.RoleAdventurer, "Fitness")
	w := env.do(t, http.MethodPost, "/api/users/"+uid+"/quests/missing/complete", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGenerate_NeedsCategory(t *testing.T) {
	env := newTestServer(t)
	uid := env.createUser(t, "undecided", domain.RoleAdventurer, "")

	w := env.do(t, http.MethodPost, "/api/users/"+uid+"/quests/generate", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPut, "/api/users/"+uid+"/category", categoryRequest{Category: "Study"})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/api/users/"+uid+"/quests/generate?type=weekly", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Len(t, decode[domain.GenerationResult](t, w).Quests, 3)
}

func TestGenerate_BadType(t *testing.T) {
	env := newTestServer(t)
	uid := env.createUser(t, "typo", domain.RoleAdventurer, "Fitness")
	w := env.do(t, http.MethodPost, "/api/users/"+uid+"/quests/generate?type=monthly", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ═══════════════════════════════════════════════════════════════════════════
// Notifications and Feedback
// ═══════════════════════════════════════════════════════════════════════════

func TestFeedbackAndNotifications(t *testing.T) {
	env := newTestServer(t)
	coach := env.createUser(t, "coach", domain.RoleCoach, "")
	uid := env.createUser(t, "student", domain.RoleAdventurer, "Fitness")

	w := env.do(t, http.MethodPost, "/api/coaches/"+coach+"/feedback",
		feedbackRequest{UserID: uid, Message: "Great week, keep it up"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	n := decode[domain.Notification](t, w)
	assert.Equal(t, domain.NotifyCoachFeedback, n.Type)

	w = env.do(t, http.MethodGet, "/api/users/"+uid+"/notifications?unread=1", nil)
	notes := decode[struct {
		Notifications []domain.Notification `json:"notifications"`
	}](t, w)
	require.Len(t, notes.Notifications, 1)

	w = env.do(t, http.MethodPost, "/api/users/"+uid+"/notifications/"+n.ID+"/read", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(t, http.MethodPost, "/api/users/"+coach+"/notifications/"+n.ID+"/read", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/users/"+uid+"/notifications?unread=1", nil)
	assert.Empty(t, decode[struct {
		Notifications []domain.Notification `json:"notifications"`
	}](t, w).Notifications)
}

func TestFeedback_RequiresCoach(t *testing.T) {
	env := newTestServer(t)
	peer := env.createUser(t, "peer", domain.RoleAdventurer, "Fitness")
	uid := env.createUser(t, "target", domain.RoleAdventurer, "Fitness")

	w := env.do(t, http.MethodPost, "/api/coaches/"+peer+"/feedback", feedbackRequest{UserID: uid, Message: "hi"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

// ═══════════════════════════════════════════════════════════════════════════
// Templates
// ═══════════════════════════════════════════════════════════════════════════

func TestTemplates_Search(t *testing.T) {
	env := newTestServer(t)

	w := env.do(t, http.MethodGet, "/api/templates?category=Fitness&type=daily", nil)
	require.Equal(t, http.StatusOK, w.Code)
	all := decode[struct {
		Templates []domain.QuestTemplate `json:"templates"`
	}](t, w).Templates
	require.NotEmpty(t, all)
	for _, tpl := range all {
		assert.Equal(t, "Fitness", tpl.Category)
		assert.Equal(t, domain.QuestDaily, tpl.QuestType)
	}

	w = env.do(t, http.MethodGet, "/api/templates?category=Fitness&type=daily&q="+all[0].Title[:4], nil)
	found := decode[struct {
		Templates []domain.QuestTemplate `json:"templates"`
	}](t, w).Templates
	require.NotEmpty(t, found)
	assert.LessOrEqual(t, len(found), len(all))

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/templates?type=yearly", nil).Code)
}

// ═══════════════════════════════════════════════════════════════════════════
// Admin
// ═══════════════════════════════════════════════════════════════════════════

func TestAdmin_RequiresRole(t *testing.T) {
	env := newTestServer(t)
	uid := env.createUser(t, "plain", domain.RoleAdventurer, "Fitness")

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/admin/users", nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/admin/users", nil, "X-User-ID", uid).Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/admin/users", nil, "X-User-ID", "ghost").Code)
}

func TestAdmin_UsersAndSweep(t *testing.T) {
	env := newTestServer(t)
	admin := env.createUser(t, "root", domain.RoleAdmin, "")
	env.createUser(t, "a1", domain.RoleAdventurer, "Fitness")
	env.createUser(t, "a2", domain.RoleAdventurer, "Study")

	w := env.do(t, http.MethodGet, "/api/admin/users?role=adventurer", nil, "X-User-ID", admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[map[string][]any](t, w)["users"], 2)

	w = env.do(t, http.MethodPost, "/api/admin/sweeps/daily", nil, "X-User-ID", admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decode[domain.SweepReport](t, w)
	assert.Equal(t, 2, report.Generated)

	w = env.do(t, http.MethodPost, "/api/admin/sweeps/weekly", nil, "X-User-ID", admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[domain.SweepReport](t, w).Generated)

	w = env.do(t, http.MethodPost, "/api/admin/sweeps/hourly", nil, "X-User-ID", admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdmin_CatalogReload(t *testing.T) {
	env := newTestServer(t)
	admin := env.createUser(t, "root", domain.RoleAdmin, "")

	w := env.do(t, http.MethodPost, "/api/admin/catalog/reload", nil, "X-User-ID", admin)
	assert.Equal(t, http.StatusNotFound, w.Code)

	env.srv.SetCatalogReloader(func(ctx context.Context) (int, error) {
		templates, err := catalog.Default()
		if err != nil {
			return 0, err
		}
		return env.eng.Catalog.Seed(ctx, templates)
	})
	w = env.do(t, http.MethodPost, "/api/admin/catalog/reload", nil, "X-User-ID", admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Positive(t, decode[map[string]int](t, w)["templates"])

	env.srv.SetCatalogReloader(func(context.Context) (int, error) {
		return 0, errors.New("disk on fire")
	})
	w = env.do(t, http.MethodPost, "/api/admin/catalog/reload", nil, "X-User-ID", admin)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode[errorBody](t, w)
	assert.True(t, body.Error.Retryable)
	assert.NotContains(t, body.Error.Message, "disk on fire")
}

func TestAdmin_Health(t *testing.T) {
	env := newTestServer(t)
	admin := env.createUser(t, "root", domain.RoleAdmin, "")
	env.srv.SetHealth(health.NewChecker(env.db, "", nil))

	w := env.do(t, http.MethodGet, "/api/admin/health", nil, "X-User-ID", admin)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[struct {
		Healthy bool            `json:"healthy"`
		Checks  []health.Status `json:"checks"`
	}](t, w)
	assert.True(t, resp.Healthy)
	require.Len(t, resp.Checks, 1)
	assert.Equal(t, "database", resp.Checks[0].Name)
}
