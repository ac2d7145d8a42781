package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/consulthub/internal/cache"
	"github.com/sakif/consulthub/internal/config"
	"github.com/sakif/consulthub/internal/notify"
	sqliteRepo "github.com/sakif/consulthub/internal/repository/sqlite"
)

// =========================================================================
// TEST HARNESS
// =========================================================================

// outbox records every message instead of sending it.
type outbox struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (o *outbox) Send(_ context.Context, msg notify.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) to(addr string) []notify.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []notify.Message
	for _, m := range o.msgs {
		if m.To == addr {
			out = append(out, m)
		}
	}
	return out
}

type testServer struct {
	t      *testing.T
	srv    *Server
	outbox *outbox
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)

	cfg := &config.Config{
		Port:         5000,
		SecretKey:    "test-secret",
		DBPath:       ":memory:",
		CacheBackend: config.CacheMemory,
		SessionTTL:   time.Hour,
		EmailDomain:  "gmail.com",
		BcryptCost:   4, // bcrypt.MinCost keeps the suite fast
	}

	box := &outbox{}
	srv, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), Deps{
		DB:       db,
		Sessions: cache.NewMemoryStore(cfg.SessionTTL, cfg.SecretKey),
		Sender:   box,
	})
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	return &testServer{t: t, srv: srv, outbox: box}
}

// do sends a request. body may be nil, a string (sent as-is) or any value
// (JSON-encoded). JSON bodies get a JSON Content-Type.
func (ts *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()

	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(ts.t, err)
		rd = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("X-Api-Token", token)
	}

	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (ts *testServer) register(username, field string, generalChannel bool) map[string]any {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/register", "", map[string]any{
		"username": username,
		"email":    username + "@gmail.com",
		"password": "pass1234",
		"field":    field,
		"notifications": map[string]bool{
			"general_channel": generalChannel,
		},
	})
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode(ts.t, rec)["data"].(map[string]any)
}

func (ts *testServer) login(username string) string {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/api/auth/login/", "", map[string]string{
		"username": username,
		"password": "pass1234",
	})
	require.Equal(ts.t, http.StatusOK, rec.Code, rec.Body.String())
	return decode(ts.t, rec)["data"].(map[string]any)["token"].(string)
}

func (ts *testServer) post(token, path, title, text string) map[string]any {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, path, token, map[string]string{"title": title, "query_text": text})
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode(ts.t, rec)
}

// =========================================================================
// PUBLIC ROUTES
// =========================================================================

func TestPublicRoutes(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to ConsultHub API", decode(t, rec)["message"])

	rec = ts.do(http.MethodGet, "/status", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"success"}`, rec.Body.String())

	rec = ts.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "consulthub_http_requests_total")
}

// =========================================================================
// ACCOUNTS AND SESSIONS
// =========================================================================

func TestScenario_RegisterLoginLogout(t *testing.T) {
	ts := newTestServer(t)

	user := ts.register("Alice1234", "developer", false)
	assert.Equal(t, "alice1234", user["username"])
	assert.Len(t, user["id"], 24)
	assert.NotContains(t, user, "password")

	token := ts.login("alice1234")

	rec := ts.do(http.MethodGet, "/api/users/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice1234", decode(t, rec)["data"].(map[string]any)["username"])

	rec = ts.do(http.MethodPost, "/api/auth/logout/", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodGet, "/api/users/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid Token", decode(t, rec)["message"])
}

func TestScenario_MinimumPassword(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/register", "", map[string]string{
		"username": "alice1234",
		"email":    "alice1234@gmail.com",
		"password": "pass",
		"field":    "developer",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Account created successfully", decode(t, rec)["message"])

	rec = ts.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice1234",
		"password": "pass",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token := decode(t, rec)["data"].(map[string]any)["token"].(string)
	require.NotEmpty(t, token)

	rec = ts.do(http.MethodGet, "/api/users/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice1234", decode(t, rec)["data"].(map[string]any)["username"])
}

func TestAuth_TokenSources(t *testing.T) {
	ts := newTestServer(t)
	ts.register("alice1234", "developer", false)
	token := ts.login("alice1234")

	rec := ts.do(http.MethodGet, "/api/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "No API Authentication Token", decode(t, rec)["message"])

	rec = ts.do(http.MethodGet, "/api/users/me?api_key="+token, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegister_Errors(t *testing.T) {
	ts := newTestServer(t)
	ts.register("alice1234", "developer", false)

	t.Run("missing fields are listed", func(t *testing.T) {
		rec := ts.do(http.MethodPost, "/register", "", map[string]string{"username": "carol1234"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, map[string]any{
			"email":    "Info required but missing",
			"password": "Info required but missing",
			"field":    "Info required but missing",
		}, decode(t, rec)["message"])
	})

	t.Run("same email different username", func(t *testing.T) {
		rec := ts.do(http.MethodPost, "/register", "", map[string]string{
			"username": "alice5678", "email": "alice1234@gmail.com", "password": "pass1234", "field": "developer",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("non gmail address", func(t *testing.T) {
		rec := ts.do(http.MethodPost, "/register", "", map[string]string{
			"username": "carol1234", "email": "carol@yahoo.com", "password": "pass1234", "field": "developer",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid username, password or email(only Gmail)", decode(t, rec)["message"])
	})

	t.Run("username shadowed by a route", func(t *testing.T) {
		rec := ts.do(http.MethodPost, "/register", "", map[string]string{
			"username": "questions", "email": "questions@gmail.com", "password": "pass1234", "field": "developer",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid username, password or email(only Gmail)", decode(t, rec)["message"])
	})

	t.Run("all-channels field", func(t *testing.T) {
		rec := ts.do(http.MethodPost, "/register", "", map[string]string{
			"username": "carol1234", "email": "carol1234@gmail.com", "password": "pass1234", "field": "all",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid field", decode(t, rec)["message"])
	})

	t.Run("bad notifications", func(t *testing.T) {
		rec := ts.do(http.MethodPost, "/register", "", map[string]any{
			"username": "carol1234", "email": "carol1234@gmail.com", "password": "pass1234", "field": "developer",
			"notifications": map[string]any{"own_channel": "yes"},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid notifications", decode(t, rec)["message"])
	})

	t.Run("not json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader("username=x"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		ts.srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})

	t.Run("malformed json", func(t *testing.T) {
		rec := ts.do(http.MethodPost, "/register", "", "{not json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid or no JSON data", decode(t, rec)["message"])
	})
}

func TestLogin_Errors(t *testing.T) {
	ts := newTestServer(t)
	ts.register("alice1234", "developer", false)

	rec := ts.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "alice1234"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "username or password missing for login", decode(t, rec)["message"])

	rec = ts.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "nobody123", "password": "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid username", decode(t, rec)["message"])

	rec = ts.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "alice1234", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid password", decode(t, rec)["message"])
}

func TestUpdateProfile(t *testing.T) {
	ts := newTestServer(t)
	ts.register("alice1234", "developer", false)
	token := ts.login("alice1234")

	rec := ts.do(http.MethodPut, "/api/users/", token, map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "empty update", decode(t, rec)["message"])

	rec = ts.do(http.MethodPut, "/api/users/", token, map[string]any{"field": "data science"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid field", decode(t, rec)["message"])

	rec = ts.do(http.MethodPut, "/api/users/", token, map[string]any{"field": "all"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid field", decode(t, rec)["message"])

	rec = ts.do(http.MethodPut, "/api/users/", token, map[string]any{"field": "designer"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "designer", decode(t, rec)["data"].(map[string]any)["field"])

	// field is ignored on the notifications route
	rec = ts.do(http.MethodPut, "/api/users/notifications", token, map[string]any{
		"field":         "ignored",
		"notifications": map[string]bool{"general_channel": true},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, "designer", data["field"])
	assert.Equal(t, true, data["notifications"].(map[string]any)["general_channel"])
	assert.Equal(t, true, data["notifications"].(map[string]any)["own_channel"])

	rec = ts.do(http.MethodPut, "/api/users/notifications", token, map[string]any{
		"notifications": map[string]any{"email_me": true},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid notifications", decode(t, rec)["message"])
}

func TestGetUser(t *testing.T) {
	ts := newTestServer(t)
	ts.register("alice1234", "developer", false)
	ts.register("bobbybob1", "designer", false)
	token := ts.login("alice1234")

	rec := ts.do(http.MethodGet, "/api/users/BobbyBob1", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bobbybob1", decode(t, rec)["data"].(map[string]any)["username"])

	rec = ts.do(http.MethodGet, "/api/users/nobody123", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid username", decode(t, rec)["message"])
}

// =========================================================================
// QUESTIONS AND RESPONSES
// =========================================================================

func TestPostQuestion_ShortTitle(t *testing.T) {
	ts := newTestServer(t)
	ts.register("alice1234", "developer", false)
	token := ts.login("alice1234")

	rec := ts.do(http.MethodPost, "/api/channel/", token, map[string]string{
		"title": "short", "query_text": "long enough body text",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid query input", decode(t, rec)["message"])

	rec = ts.do(http.MethodPost, "/api/channel/?general=yes", token, map[string]string{
		"title": "a long enough title", "query_text": "long enough body text",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid value for generals query parameter", decode(t, rec)["message"])
}

func TestScenario_GeneralFallbackAndResponse(t *testing.T) {
	ts := newTestServer(t)
	ts.register("alice1234", "developer", false)
	ts.register("bobbybob1", "designer", true)
	alice := ts.login("alice1234")
	bob := ts.login("bobbybob1")

	// Nobody else is in "developer", so the question is generalized and
	// bob, who follows general, is mailed.
	posted := ts.post(alice, "/api/channel/", "How Do Goroutines Work", "Explain the scheduler please")
	assert.NotEmpty(t, posted["more_info"])
	data := posted["data"].(map[string]any)
	assert.Equal(t, "general", data["channel"])
	questionID := data["id"].(string)

	mails := ts.outbox.to("bobbybob1@gmail.com")
	require.Len(t, mails, 1)
	assert.Contains(t, mails[0].HTML, questionID)

	// Title lookup is case-insensitive with underscores for spaces.
	rec := ts.do(http.MethodGet, "/api/channel/general/questions/how_do_goroutines_work", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	q := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, questionID, q["id"])
	assert.Equal(t, "Explain the scheduler please", q["query_text"])

	rec = ts.do(http.MethodPost, "/api/channel/general/"+strings.ToUpper(questionID)+"/response", bob,
		map[string]string{"content": "M:N scheduling over Ps"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, questionID, resp["question_id"])
	responseID := resp["response_id"].(string)

	require.Len(t, ts.outbox.to("alice1234@gmail.com"), 1)

	rec = ts.do(http.MethodGet, "/api/responses/"+responseID, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lookup := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, "bobbybob1", lookup["responder"])
	assert.Equal(t, "M:N scheduling over Ps", lookup["response"])

	// Cross-query from both sides.
	rec = ts.do(http.MethodGet, "/api/channel/general/me/", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	act := decode(t, rec)["data"].(map[string]any)
	assert.Len(t, act["user_questions"], 1)
	assert.Len(t, act["responded_questions"], 0)

	rec = ts.do(http.MethodGet, "/api/channel/general/bobbybob1/"+questionID, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	act = decode(t, rec)["data"].(map[string]any)
	require.Len(t, act["responded_questions"], 1)

	rec = ts.do(http.MethodGet, "/api/channel/general/multi?name=me&name=bobbybob1", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	multi := decode(t, rec)["data"].(map[string]any)
	assert.Contains(t, multi, "me")
	assert.Contains(t, multi, "bobbybob1")

	rec = ts.do(http.MethodGet, "/api/channel/general/multi?name=ghostuser", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid username ghostuser", decode(t, rec)["message"])
}

func TestRespond_Errors(t *testing.T) {
	ts := newTestServer(t)
	ts.register("alice1234", "developer", false)
	token := ts.login("alice1234")
	posted := ts.post(token, "/api/channel/?general=true", "A question of some length", "And a body of some length")
	id := posted["data"].(map[string]any)["id"].(string)

	tests := []struct {
		name, path, content, want string
	}{
		{"not an id", "/api/channel/general/12345/response", "hello", "Invalid question Id"},
		{"unknown id", "/api/channel/general/0123456789abcdef01234567/response", "hello", "No question with that Id"},
		{"wrong channel", "/api/channel/developer/" + id + "/response", "hello", "No question with that Id"},
		{"empty content", "/api/channel/general/" + id + "/response", "", "Invalid content"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(http.MethodPost, tt.path, token, map[string]string{"content": tt.content})
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, decode(t, rec)["message"])
		})
	}
}

// =========================================================================
// FEEDS
// =========================================================================

func TestFeed_Pagination(t *testing.T) {
	ts := newTestServer(t)
	ts.register("alice1234", "developer", false)
	token := ts.login("alice1234")

	for _, title := range []string{"first question", "second question", "third question"} {
		ts.post(token, "/api/channel/?general=true", title, "body text long enough")
	}

	rec := ts.do(http.MethodGet, "/api/channel/general/?page_size=2", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode(t, rec)
	assert.Len(t, page["data"], 2)
	assert.Equal(t, 1.0, page["page"])
	assert.Nil(t, page["prev_page"])
	assert.Equal(t, 2.0, page["next_page"])

	rec = ts.do(http.MethodGet, "/api/channel/general/?page=2&page_size=2", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decode(t, rec)
	assert.Len(t, page["data"], 1)
	assert.Equal(t, 1.0, page["prev_page"])
	assert.Nil(t, page["next_page"])

	rec = ts.do(http.MethodGet, "/api/channel/?all=TRUE", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["data"], 3)

	// A page past the int range is clamped, not wrapped.
	rec = ts.do(http.MethodGet, "/api/channel/general/?page=9223372036854775807&page_size=2", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decode(t, rec)
	assert.Empty(t, page["data"])
	assert.Nil(t, page["next_page"])
	require.NotNil(t, page["prev_page"])
	assert.Greater(t, page["prev_page"].(float64), 0.0)

	rec = ts.do(http.MethodGet, "/api/channel/general/?page=two", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "page or page_size must be numerals", decode(t, rec)["message"])
}

func TestChannelRoot_Redirects(t *testing.T) {
	ts := newTestServer(t)
	ts.register("alice1234", "developer", false)
	token := ts.login("alice1234")

	rec := ts.do(http.MethodGet, "/api/channel/?page=2", token, nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/api/channel/general/?page=2", rec.Header().Get("Location"))

	rec = ts.do(http.MethodGet, "/api/channel/?all=false&channel=developer", token, nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/api/channel/developer/", rec.Header().Get("Location"))

	rec = ts.do(http.MethodGet, "/api/general", token, nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/api/channel/general/", rec.Header().Get("Location"))

	rec = ts.do(http.MethodGet, "/api/channel/?all=maybe", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid all parameter", decode(t, rec)["message"])
}
