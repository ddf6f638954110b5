package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cyberlover-ai/cyberlover/internal/auth"
	"github.com/cyberlover-ai/cyberlover/internal/config"
	"github.com/cyberlover-ai/cyberlover/internal/domain"
	"github.com/cyberlover-ai/cyberlover/internal/generation"
	"github.com/cyberlover-ai/cyberlover/internal/ledger"
	"github.com/cyberlover-ai/cyberlover/internal/store"
)

type fakeRepo struct {
	mu    sync.Mutex
	fail  bool
	users map[string]*domain.UserRecord
}

var errStoreDown = errors.New("store unavailable")

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: make(map[string]*domain.UserRecord)}
}

func (f *fakeRepo) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func (f *fakeRepo) GetUser(_ context.Context, userID string) (*domain.UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errStoreDown
	}
	user := f.users[userID]
	if user == nil {
		return nil, nil
	}
	copy := *user
	return &copy, nil
}

func (f *fakeRepo) GetUserByEmail(_ context.Context, email string) (*domain.UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			copy := *u
			return &copy, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) CreateUser(_ context.Context, user *domain.UserRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errStoreDown
	}
	if user.Email != "" {
		for _, u := range f.users {
			if u.Email == user.Email {
				return store.ErrEmailInUse
			}
		}
	}
	copy := *user
	f.users[user.UserID] = &copy
	return nil
}

func (f *fakeRepo) UpdateCredits(_ context.Context, userID string, credits int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u := f.users[userID]; u != nil {
		u.Credits = credits
	}
	return nil
}

func (f *fakeRepo) ApplyMetricsDelta(_ context.Context, _ string, _ domain.MetricsDelta) error {
	return nil
}

func (f *fakeRepo) TouchLastOnline(_ context.Context, _ string, _ time.Time) error { return nil }
func (f *fakeRepo) Ping(_ context.Context) error                                   { return nil }
func (f *fakeRepo) Close() error                                                   { return nil }

type echoGenerator struct {
	mu    sync.Mutex
	calls int
}

func (g *echoGenerator) Generate(_ context.Context, req generation.Request) (string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	return "you said: " + req.Message, nil
}

func (g *echoGenerator) Close() error { return nil }

func (g *echoGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func testConfig() *config.Config {
	return &config.Config{
		Port:       "8080",
		BaseURL:    "http://localhost:8080",
		DBPath:     ":memory:",
		JWTSecret:  "test-secret",
		SessionTTL: time.Hour,
		RateLimit: config.RateLimitConfig{
			RequestsPerWindow: 100,
			WindowDuration:    time.Minute,
		},
	}
}

type testEnv struct {
	repo    *fakeRepo
	ledgers *ledger.Manager
	gen     *echoGenerator
	base    *Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := newFakeRepo()
	ledgers := ledger.NewManager(repo)
	gen := &echoGenerator{}
	authSvc := auth.NewService(repo, "test-secret", time.Hour)
	base := NewHandler(repo, ledgers, authSvc, generation.NewService(gen), nil, testConfig())
	return &testEnv{repo: repo, ledgers: ledgers, gen: gen, base: base}
}

func (e *testEnv) addUser(t *testing.T, userID string, credits int) {
	t.Helper()
	err := e.repo.CreateUser(context.Background(), &domain.UserRecord{
		UserID:  userID,
		Email:   userID + "@example.com",
		Credits: credits,
		Metrics: domain.NewUsageMetrics(),
	})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
}

func authedRequest(method, path string, body interface{}, userID string) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			panic(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req = req.WithContext(auth.WithUserID(req.Context(), userID))
	}
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func TestSendMessageChargesAndReplies(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "u1", 10)

	led, err := env.ledgers.Acquire(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := led.SelectCompanion(domain.CompanionRomantic, domain.GenderFemale); err != nil {
		t.Fatalf("SelectCompanion failed: %v", err)
	}

	h := NewChatHandler(env.base)
	rec := httptest.NewRecorder()
	h.SendMessage(rec, authedRequest(http.MethodPost, "/api/chat/message", sendMessageRequest{Message: "hi there"}, "u1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp sendMessageResponse
	decodeBody(t, rec, &resp)
	if resp.Reply.Content != "you said: hi there" {
		t.Errorf("Expected echoed reply, got %q", resp.Reply.Content)
	}
	if resp.Reply.Sender != domain.SenderAssistant {
		t.Errorf("Expected assistant sender, got %q", resp.Reply.Sender)
	}
	if resp.Reply.ID == "" {
		t.Error("Expected a message ID")
	}
	if resp.Credits != 9 {
		t.Errorf("Expected 9 credits after send, got %d", resp.Credits)
	}
	if resp.Metrics.MessagesExchanged != 1 {
		t.Errorf("Expected messagesExchanged 1, got %d", resp.Metrics.MessagesExchanged)
	}
	if env.gen.callCount() != 1 {
		t.Errorf("Expected 1 generator call, got %d", env.gen.callCount())
	}
}

func TestSendMessageInsufficientCredits(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "u1", 0)

	led, err := env.ledgers.Acquire(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := led.SelectCompanion(domain.CompanionFriendly, domain.GenderMale); err != nil {
		t.Fatalf("SelectCompanion failed: %v", err)
	}

	h := NewChatHandler(env.base)
	rec := httptest.NewRecorder()
	h.SendMessage(rec, authedRequest(http.MethodPost, "/api/chat/message", sendMessageRequest{Message: "hi"}, "u1"))

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("Expected 402, got %d", rec.Code)
	}
	if env.gen.callCount() != 0 {
		t.Errorf("Generator must not be called when credits are insufficient, got %d calls", env.gen.callCount())
	}
	if led.Credits() != 0 {
		t.Errorf("Expected credits untouched at 0, got %d", led.Credits())
	}
}

func TestSendMessageRequiresCompanion(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "u1", 10)

	h := NewChatHandler(env.base)
	rec := httptest.NewRecorder()
	h.SendMessage(rec, authedRequest(http.MethodPost, "/api/chat/message", sendMessageRequest{Message: "hi"}, "u1"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 without a companion, got %d", rec.Code)
	}
	if env.gen.callCount() != 0 {
		t.Errorf("Generator must not be called without a companion")
	}
}

func TestSendMessageRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	h := NewChatHandler(env.base)
	rec := httptest.NewRecorder()
	h.SendMessage(rec, authedRequest(http.MethodPost, "/api/chat/message", sendMessageRequest{Message: "hi"}, ""))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 for anonymous request, got %d", rec.Code)
	}
}

func TestSendMessageEmptyMessage(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "u1", 10)

	h := NewChatHandler(env.base)
	rec := httptest.NewRecorder()
	h.SendMessage(rec, authedRequest(http.MethodPost, "/api/chat/message", sendMessageRequest{Message: "   "}, "u1"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for empty message, got %d", rec.Code)
	}
}

func TestSelectCompanionEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "u1", 10)

	h := NewChatHandler(env.base)
	rec := httptest.NewRecorder()
	h.SelectCompanion(rec, authedRequest(http.MethodPost, "/api/chat/companion",
		selectCompanionRequest{Type: domain.CompanionCool, Gender: domain.GenderMale}, "u1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	led := env.ledgers.Peek("u1")
	if led == nil {
		t.Fatal("Expected ledger instance after selection")
	}
	sel := led.Selection()
	if sel.Type != domain.CompanionCool || sel.Gender != domain.GenderMale {
		t.Errorf("Expected cool/male selection, got %+v", sel)
	}
}

func TestSelectCompanionRejectsUnknownType(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "u1", 10)

	h := NewChatHandler(env.base)
	rec := httptest.NewRecorder()
	h.SelectCompanion(rec, authedRequest(http.MethodPost, "/api/chat/companion",
		selectCompanionRequest{Type: "sarcastic", Gender: domain.GenderFemale}, "u1"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for unknown companion type, got %d", rec.Code)
	}
}

func TestCheckoutAndComplete(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "u1", 5)

	h := NewPaymentsHandler(env.base)

	rec := httptest.NewRecorder()
	h.CreateCheckout(rec, authedRequest(http.MethodPost, "/api/payments/checkout",
		checkoutRequest{PackageID: "popular"}, "u1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 creating checkout, got %d: %s", rec.Code, rec.Body.String())
	}

	var created checkoutResponse
	decodeBody(t, rec, &created)
	if created.SessionID == "" {
		t.Fatal("Expected a session ID")
	}
	if !created.Mock {
		t.Error("Expected a mock session without a payment provider")
	}

	rec = httptest.NewRecorder()
	h.CompleteCheckout(rec, authedRequest(http.MethodPost, "/api/payments/complete",
		completeRequest{SessionID: created.SessionID}, "u1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 completing checkout, got %d: %s", rec.Code, rec.Body.String())
	}

	var result struct {
		CreditsAdded int `json:"credits_added"`
		Credits      int `json:"credits"`
	}
	decodeBody(t, rec, &result)
	if result.CreditsAdded != 100 {
		t.Errorf("Expected 100 credits added, got %d", result.CreditsAdded)
	}
	if result.Credits != 105 {
		t.Errorf("Expected 105 credits after purchase, got %d", result.Credits)
	}
}

func TestCompleteCheckoutUnknownSession(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "u1", 5)

	h := NewPaymentsHandler(env.base)
	rec := httptest.NewRecorder()
	h.CompleteCheckout(rec, authedRequest(http.MethodPost, "/api/payments/complete",
		completeRequest{SessionID: "mock_deadbeef"}, "u1"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 for unknown session, got %d", rec.Code)
	}
}

func TestCompleteCheckoutWrongUser(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "u1", 5)
	env.addUser(t, "u2", 5)

	h := NewPaymentsHandler(env.base)

	rec := httptest.NewRecorder()
	h.CreateCheckout(rec, authedRequest(http.MethodPost, "/api/payments/checkout",
		checkoutRequest{PackageID: "starter"}, "u1"))
	var created checkoutResponse
	decodeBody(t, rec, &created)

	rec = httptest.NewRecorder()
	h.CompleteCheckout(rec, authedRequest(http.MethodPost, "/api/payments/complete",
		completeRequest{SessionID: created.SessionID}, "u2"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 completing another user's session, got %d", rec.Code)
	}
}

func TestCheckoutRejectsUnknownPackage(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "u1", 5)

	h := NewPaymentsHandler(env.base)
	rec := httptest.NewRecorder()
	h.CreateCheckout(rec, authedRequest(http.MethodPost, "/api/payments/checkout",
		checkoutRequest{PackageID: "mega"}, "u1"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for unknown package, got %d", rec.Code)
	}
}

func TestAppConfigLists(t *testing.T) {
	env := newTestEnv(t)

	h := NewAccountHandler(env.base)
	rec := httptest.NewRecorder()
	h.AppConfig(rec, httptest.NewRequest(http.MethodGet, "/api/config", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp appConfigResponse
	decodeBody(t, rec, &resp)
	if len(resp.Companions) != 5 {
		t.Errorf("Expected 5 companions, got %d", len(resp.Companions))
	}
	if len(resp.CreditPackages) != 3 {
		t.Errorf("Expected 3 credit packages, got %d", len(resp.CreditPackages))
	}
	if resp.MessageCost != ledger.MessageCost {
		t.Errorf("Expected message cost %d, got %d", ledger.MessageCost, resp.MessageCost)
	}
	if !resp.AIEnabled {
		t.Error("Expected ai_enabled true with a configured generator")
	}
}

func TestProfileEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "u1", 42)

	h := NewAccountHandler(env.base)
	rec := httptest.NewRecorder()
	h.Me(rec, authedRequest(http.MethodGet, "/api/me", nil, "u1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp profileResponse
	decodeBody(t, rec, &resp)
	if resp.UserID != "u1" {
		t.Errorf("Expected user_id u1, got %q", resp.UserID)
	}
	if resp.Email != "u1@example.com" {
		t.Errorf("Expected email u1@example.com, got %q", resp.Email)
	}
	if resp.Credits != 42 {
		t.Errorf("Expected 42 credits, got %d", resp.Credits)
	}
	if resp.Metrics == nil {
		t.Fatal("Expected metrics in profile response")
	}
}

func TestProfileRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	h := NewAccountHandler(env.base)
	rec := httptest.NewRecorder()
	h.Me(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	h := NewHealthHandler(env.repo)
	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decodeBody(t, rec, &resp)
	if resp.Status != "healthy" {
		t.Errorf("Expected healthy status, got %q", resp.Status)
	}
	if resp.Checks["database"] != "ok" {
		t.Errorf("Expected database ok, got %q", resp.Checks["database"])
	}
}

func TestSignUpAndSignOutFlow(t *testing.T) {
	env := newTestEnv(t)

	h := NewAuthHandler(env.base)

	rec := httptest.NewRecorder()
	h.SignUp(rec, authedRequest(http.MethodPost, "/api/auth/signup",
		credentialsRequest{Email: "new@example.com", Password: "hunter22"}, ""))
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var session sessionResponse
	decodeBody(t, rec, &session)
	if session.Credits != ledger.StarterCredits {
		t.Errorf("Expected %d starter credits, got %d", ledger.StarterCredits, session.Credits)
	}

	cookieSet := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.SessionCookieName && c.Value != "" {
			cookieSet = true
		}
	}
	if !cookieSet {
		t.Error("Expected session cookie to be set on signup")
	}

	// Sign out clears the ledger instance.
	if _, err := env.ledgers.Acquire(context.Background(), session.UserID); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	rec = httptest.NewRecorder()
	h.SignOut(rec, authedRequest(http.MethodPost, "/api/auth/signout", nil, session.UserID))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on signout, got %d", rec.Code)
	}
	if env.ledgers.Peek(session.UserID) != nil {
		t.Error("Expected ledger instance released after signout")
	}
}

func TestSignInWrongPassword(t *testing.T) {
	env := newTestEnv(t)

	h := NewAuthHandler(env.base)

	rec := httptest.NewRecorder()
	h.SignUp(rec, authedRequest(http.MethodPost, "/api/auth/signup",
		credentialsRequest{Email: "who@example.com", Password: "hunter22"}, ""))
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.SignIn(rec, authedRequest(http.MethodPost, "/api/auth/signin",
		credentialsRequest{Email: "who@example.com", Password: "wrong"}, ""))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 for wrong password, got %d", rec.Code)
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)

	h := NewAuthHandler(env.base)

	rec := httptest.NewRecorder()
	h.SignUp(rec, authedRequest(http.MethodPost, "/api/auth/signup",
		credentialsRequest{Email: "dup@example.com", Password: "hunter22"}, ""))
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.SignUp(rec, authedRequest(http.MethodPost, "/api/auth/signup",
		credentialsRequest{Email: "dup@example.com", Password: "hunter22"}, ""))
	if rec.Code != http.StatusConflict {
		t.Fatalf("Expected 409 for duplicate email, got %d", rec.Code)
	}
}

func TestRateLimiterBlocksAboveLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow("u1") {
			t.Fatalf("Request %d should be allowed", i+1)
		}
	}
	if rl.Allow("u1") {
		t.Error("Fourth request should be blocked")
	}
	if !rl.Allow("u2") {
		t.Error("Other users should not be affected")
	}
}

func TestCompleteCheckoutDegradedLedgerKeepsSessionPending(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "u1", 42)

	h := NewPaymentsHandler(env.base)

	rec := httptest.NewRecorder()
	h.CreateCheckout(rec, authedRequest(http.MethodPost, "/api/payments/checkout",
		checkoutRequest{PackageID: "popular"}, "u1"))
	var created checkoutResponse
	decodeBody(t, rec, &created)

	// Store goes down before the user's ledger has loaded; completing must
	// not grant from a zeroed balance.
	env.repo.setFail(true)
	rec = httptest.NewRecorder()
	h.CompleteCheckout(rec, authedRequest(http.MethodPost, "/api/payments/complete",
		completeRequest{SessionID: created.SessionID}, "u1"))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503 on unloaded ledger, got %d: %s", rec.Code, rec.Body.String())
	}

	// Store recovers; the same session completes and builds on the real
	// balance.
	env.repo.setFail(false)
	rec = httptest.NewRecorder()
	h.CompleteCheckout(rec, authedRequest(http.MethodPost, "/api/payments/complete",
		completeRequest{SessionID: created.SessionID}, "u1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 after recovery, got %d: %s", rec.Code, rec.Body.String())
	}

	var result struct {
		Credits int `json:"credits"`
	}
	decodeBody(t, rec, &result)
	if result.Credits != 142 {
		t.Errorf("Expected 142 credits (42 existing + 100 purchased), got %d", result.Credits)
	}

	led := env.ledgers.Peek("u1")
	led.Flush()
	stored, err := env.repo.GetUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if stored.Credits != 142 {
		t.Errorf("Expected remote balance 142, got %d", stored.Credits)
	}
}

func TestAssistantReplyFrame(t *testing.T) {
	replyMsg := assistantMessage("hey you")
	credits := 7
	frame := wsReply{Type: "reply", Reply: &replyMsg, Credits: &credits}

	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded struct {
		Type  string         `json:"type"`
		Reply domain.Message `json:"reply"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Type != "reply" {
		t.Errorf("Expected type reply, got %q", decoded.Type)
	}
	if decoded.Reply.Content != "hey you" {
		t.Errorf("Expected content round-tripped, got %q", decoded.Reply.Content)
	}
	if decoded.Reply.Sender != domain.SenderAssistant {
		t.Errorf("Expected assistant sender, got %q", decoded.Reply.Sender)
	}
}
