package httpapi_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gormsqlite "github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/minchat/minchat/internal/ai"
	"github.com/minchat/minchat/internal/chat"
	"github.com/minchat/minchat/internal/httpapi"
	"github.com/minchat/minchat/internal/httpapi/handlers"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
	repo   *chat.Repo
}

// newTestEnv wires the whole stack against a stub completion endpoint.
func newTestEnv(t *testing.T, stub http.HandlerFunc, opts chat.Options, authSecret string) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := chat.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	if opts.RetryBaseDelay == 0 {
		opts.RetryBaseDelay = time.Millisecond
	}

	repo := chat.NewRepo(db)
	svc := chat.NewService(repo, ai.NewMockProvider(srv.URL), zap.NewNop(), opts)
	h := handlers.NewHandler(svc, nil, nil, zap.NewNop())
	return &testEnv{
		router: httpapi.NewRouter(h, authSecret, zap.NewNop()),
		db:     db,
		repo:   repo,
	}
}

func echoStub(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Messages []ai.Message `json:"messages"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	last := ""
	if len(req.Messages) > 0 {
		last = req.Messages[len(req.Messages)-1].Content
	}
	json.NewEncoder(w).Encode(map[string]string{"reply": "echo: " + last})
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var decoded map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("%s %s: invalid JSON body %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w, decoded
}

func (e *testEnv) createConversation(t *testing.T) string {
	t.Helper()
	w, body := e.do(t, http.MethodPost, "/conversations", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("create conversation: status %d: %v", w.Code, body)
	}
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatalf("create conversation: no id in %v", body)
	}
	return id
}

func TestCreateConversation(t *testing.T) {
	env := newTestEnv(t, echoStub, chat.Options{}, "")

	w, body := env.do(t, http.MethodPost, "/conversations", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d", w.Code)
	}
	if body["title"] != "Conversation #1" {
		t.Fatalf("unexpected title %v", body["title"])
	}
	if body["lastMessageAt"] != nil {
		t.Fatalf("lastMessageAt must start null, got %v", body["lastMessageAt"])
	}

	_, body = env.do(t, http.MethodPost, "/conversations", "")
	if body["title"] != "Conversation #2" {
		t.Fatalf("unexpected second title %v", body["title"])
	}
}

func TestSendMessage_RoundTrip(t *testing.T) {
	env := newTestEnv(t, echoStub, chat.Options{}, "")
	id := env.createConversation(t)

	w, body := env.do(t, http.MethodPost, "/conversations/"+id+"/messages", `{"content":"hello"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %v", w.Code, body)
	}
	msg, _ := body["message"].(map[string]any)
	reply, _ := body["reply"].(map[string]any)
	if msg["content"] != "hello" || msg["role"] != "user" {
		t.Fatalf("unexpected message %v", msg)
	}
	if reply["role"] != "assistant" || reply["content"] == "" {
		t.Fatalf("unexpected reply %v", reply)
	}
}

func TestSendMessage_Validation(t *testing.T) {
	env := newTestEnv(t, echoStub, chat.Options{}, "")
	id := env.createConversation(t)

	w, body := env.do(t, http.MethodPost, "/conversations/"+id+"/messages", `{"content":""}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d: %v", w.Code, body)
	}
	if body["error"] != "validation_error" {
		t.Fatalf("unexpected error code %v", body["error"])
	}
}

func TestSendMessage_ConversationNotFound(t *testing.T) {
	env := newTestEnv(t, echoStub, chat.Options{}, "")

	w, body := env.do(t, http.MethodPost, "/conversations/01NOSUCHCONVERSATION000000/messages", `{"content":"hi"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status %d: %v", w.Code, body)
	}
	if body["error"] != "not_found" {
		t.Fatalf("unexpected error code %v", body["error"])
	}
}

func TestSendMessage_UpstreamExhausted(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, chat.Options{RetryMax: 2}, "")
	id := env.createConversation(t)

	w, body := env.do(t, http.MethodPost, "/conversations/"+id+"/messages", `{"content":"hi"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status %d: %v", w.Code, body)
	}
	if body["error"] != "upstream_error" {
		t.Fatalf("unexpected error code %v", body["error"])
	}
	if _, ok := body["retryAfterMs"]; !ok {
		t.Fatalf("retryable failure must carry a retry hint: %v", body)
	}
}

func TestSendMessage_TimeoutRollsBack(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		// drain the body so the server can observe the client going away;
		// otherwise srv.Close blocks forever on this connection
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}, chat.Options{ProviderTimeout: 50 * time.Millisecond}, "")
	id := env.createConversation(t)

	w, body := env.do(t, http.MethodPost, "/conversations/"+id+"/messages", `{"content":"hi"}`)
	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("status %d: %v", w.Code, body)
	}
	if body["error"] != "timeout" {
		t.Fatalf("unexpected error code %v", body["error"])
	}
	if _, ok := body["retryAfterMs"]; !ok {
		t.Fatalf("timeout is retryable and must carry a retry hint: %v", body)
	}

	// the user message must be gone
	_, listing := env.do(t, http.MethodGet, "/conversations/"+id+"/messages", "")
	msgs, _ := listing["messages"].([]any)
	if len(msgs) != 0 {
		t.Fatalf("expected no persisted messages after timeout, got %d", len(msgs))
	}
}

func TestGetMessages_PaginationWalk(t *testing.T) {
	env := newTestEnv(t, echoStub, chat.Options{}, "")
	id := env.createConversation(t)

	for i := 0; i < 3; i++ {
		w, body := env.do(t, http.MethodPost, "/conversations/"+id+"/messages",
			fmt.Sprintf(`{"content":"m%d"}`, i))
		if w.Code != http.StatusOK {
			t.Fatalf("send %d: status %d: %v", i, w.Code, body)
		}
	}

	// 6 messages total, walk with page size 4: newest 4, then oldest 2
	var pages [][]any
	path := "/conversations/" + id + "/messages?limit=4"
	for {
		w, body := env.do(t, http.MethodGet, path, "")
		if w.Code != http.StatusOK {
			t.Fatalf("status %d: %v", w.Code, body)
		}
		msgs, _ := body["messages"].([]any)
		pages = append(pages, msgs)
		pi, _ := body["pageInfo"].(map[string]any)
		next, _ := pi["nextCursor"].(string)
		if next == "" {
			break
		}
		path = "/conversations/" + id + "/messages?limit=4&messagesCursor=" + next
	}

	if len(pages) != 2 || len(pages[0]) != 4 || len(pages[1]) != 2 {
		t.Fatalf("unexpected page shapes: %d pages", len(pages))
	}

	seen := map[float64]bool{}
	for _, p := range pages {
		for _, m := range p {
			id := m.(map[string]any)["id"].(float64)
			if seen[id] {
				t.Fatalf("message %v appeared twice", id)
			}
			seen[id] = true
		}
	}
	if len(seen) != 6 {
		t.Fatalf("expected 6 distinct messages, got %d", len(seen))
	}
}

func TestDeleteConversation(t *testing.T) {
	env := newTestEnv(t, echoStub, chat.Options{}, "")
	id := env.createConversation(t)

	w, _ := env.do(t, http.MethodDelete, "/conversations/"+id, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", w.Code)
	}
	w, _ = env.do(t, http.MethodDelete, "/conversations/"+id, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("second delete: status %d", w.Code)
	}
	w, _ = env.do(t, http.MethodGet, "/conversations/"+id+"/messages", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("messages after delete: status %d", w.Code)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	env := newTestEnv(t, echoStub, chat.Options{}, "")

	w, _ := env.do(t, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("healthz: status %d", w.Code)
	}
	w, _ = env.do(t, http.MethodGet, "/readyz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("readyz: status %d", w.Code)
	}
}

func TestAuth_GuardsAPIButNotProbes(t *testing.T) {
	const secret = "test-secret"
	env := newTestEnv(t, echoStub, chat.Options{}, secret)

	w, _ := env.do(t, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("healthz must stay open: status %d", w.Code)
	}

	w, body := env.do(t, http.MethodPost, "/conversations", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d: %v", w.Code, body)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/conversations", strings.NewReader(""))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 with token, got %d: %s", rec.Code, rec.Body.String())
	}
}
