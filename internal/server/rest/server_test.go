package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/domainx/internal/common"
	"github.com/dmitrijs2005/domainx/internal/logging"
	"github.com/dmitrijs2005/domainx/internal/server/auth"
	"github.com/dmitrijs2005/domainx/internal/server/models"
	"github.com/dmitrijs2005/domainx/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/domainx/internal/server/services"
	"github.com/dmitrijs2005/domainx/internal/server/throttle"
)

// --- helpers ---

type captureNotifier struct {
	mu     sync.Mutex
	resets map[string]string
}

func (n *captureNotifier) PasswordReset(ctx context.Context, acc *models.Account, raw string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets[acc.Email] = raw
	return nil
}

func (n *captureNotifier) PasswordChanged(context.Context, *models.Account, time.Time) {}
func (n *captureNotifier) Welcome(context.Context, *models.Account) {}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type testAPI struct {
	srv      *Server
	rm       *repomanager.MemoryRepositoryManager
	svcs     map[string]*services.AccountService
	notifier *captureNotifier
}

func newTestAPI(t *testing.T, health Pinger) *testAPI {
	t.Helper()

	api := &testAPI{
		rm:       repomanager.NewMemoryRepositoryManager(),
		svcs:     map[string]*services.AccountService{},
		notifier: &captureNotifier{resets: map[string]string{}},
	}
	tokens := auth.NewTokenIssuer([]byte("test-secret"), nil)
	hasher := auth.NewPasswordHasher(bcrypt.MinCost)
	settings := services.Settings{
		TokenTTL:          24 * time.Hour,
		RememberMeTTL:     30 * 24 * time.Hour,
		MinPasswordLength: 6,
		Throttle:          throttle.DefaultPolicy(),
	}

	var list []AccountService
	for _, p := range services.Policies {
		svc, err := services.NewAccountService(p, api.rm, settings, hasher, tokens, api.notifier, logging.Discard())
		require.NoError(t, err)
		api.svcs[p.Kind] = svc
		list = append(list, svc)
	}

	srv, err := NewServer(Config{Production: true}, logging.Discard(), prometheus.NewRegistry(), health, list...)
	require.NoError(t, err)
	api.srv = srv
	return api
}

type reply struct {
	code    int
	raw     string
	body    envelope
	cookies []*http.Cookie
}

func (a *testAPI) do(t *testing.T, method, path, body string, mods ...func(*http.Request)) reply {
	t.Helper()

	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, m := range mods {
		m(req)
	}

	rec := httptest.NewRecorder()
	a.srv.Handler().ServeHTTP(rec, req)

	r := reply{code: rec.Code, raw: rec.Body.String(), cookies: rec.Result().Cookies()}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r.body), rec.Body.String())
	}
	return r
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withCookie(ck *http.Cookie) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(ck) }
}

func (a *testAPI) registerAndLogin(t *testing.T, kind, email, password string) (string, *http.Cookie) {
	t.Helper()

	r := a.do(t, http.MethodPost, "/api/"+kind+"/auth/register", `{"name":"Test User","email":"`+email+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusCreated, r.code, r.raw)

	r = a.do(t, http.MethodPost, "/api/"+kind+"/auth/login", `{"email":"`+email+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, r.code, r.raw)

	data := r.body.Data.(map[string]any)
	var ck *http.Cookie
	if len(r.cookies) > 0 {
		ck = r.cookies[0]
	}
	return data["token"].(string), ck
}

// --- tests ---

func TestRegister(t *testing.T) {
	api := newTestAPI(t, pinger{})

	r := api.do(t, http.MethodPost, "/api/buyer/auth/register", `{"name":"Alice","email":"alice@x.com","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, r.code, r.raw)
	assert.True(t, r.body.Success)
	assert.Equal(t, "Buyer account created successfully", r.body.Message)
	assert.NotContains(t, r.raw, "password")
	assert.Equal(t, true, r.body.Data.(map[string]any)["isApproved"])

	r = api.do(t, http.MethodPost, "/api/buyer/auth/register", `{"name":"Alice","email":"ALICE@x.com","password":"secret1"}`)
	assert.Equal(t, http.StatusBadRequest, r.code)
	assert.False(t, r.body.Success)
	assert.Equal(t, "User with this email already exists", r.body.Message)
}

func TestRegister_ResellerNeedsApproval(t *testing.T) {
	api := newTestAPI(t, pinger{})

	r := api.do(t, http.MethodPost, "/api/reseller/auth/register", `{"name":"Bob","email":"bob@x.com","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, r.code, r.raw)
	assert.Contains(t, r.body.Message, "wait for admin approval")

	r = api.do(t, http.MethodPost, "/api/reseller/auth/login", `{"email":"bob@x.com","password":"secret1"}`)
	assert.Equal(t, http.StatusForbidden, r.code)
	assert.Equal(t, "Account is pending admin approval", r.body.Message)
}

func TestValidationErrors(t *testing.T) {
	api := newTestAPI(t, pinger{})

	r := api.do(t, http.MethodPost, "/api/buyer/auth/register", `{"name":"A","email":"nope","password":"secret1"}`)
	require.Equal(t, http.StatusBadRequest, r.code)
	assert.Equal(t, "Validation failed", r.body.Message)

	fields, isList := r.body.Error.([]any)
	require.True(t, isList, r.raw)
	assert.Len(t, fields, 2)
	assert.Contains(t, r.raw, `"field":"email"`)
	assert.Contains(t, r.raw, `"field":"name"`)

	r = api.do(t, http.MethodPost, "/api/buyer/auth/login", `{not json`)
	assert.Equal(t, http.StatusBadRequest, r.code)
	assert.Equal(t, "Invalid request body", r.body.Message)
}

func TestLogin_CookiesPerKind(t *testing.T) {
	api := newTestAPI(t, pinger{})

	_, ck := api.registerAndLogin(t, common.KindBuyer, "alice@x.com", "secret1")
	require.NotNil(t, ck)
	assert.Equal(t, "buyerToken", ck.Name)
	assert.True(t, ck.HttpOnly)
	assert.True(t, ck.Secure)
	assert.Equal(t, http.SameSiteStrictMode, ck.SameSite)
	assert.Equal(t, int((24 * time.Hour).Seconds()), ck.MaxAge)

	r := api.do(t, http.MethodPost, "/api/buyer/auth/login", `{"email":"alice@x.com","password":"secret1","rememberMe":true}`)
	require.Equal(t, http.StatusOK, r.code)
	require.Len(t, r.cookies, 1)
	assert.Equal(t, int((30 * 24 * time.Hour).Seconds()), r.cookies[0].MaxAge)

	_, ck = api.registerAndLogin(t, common.KindAdmin, "root@x.com", "Secret12")
	assert.Nil(t, ck)
}

func TestLogin_FailuresLookAlikeAndLock(t *testing.T) {
	api := newTestAPI(t, pinger{})
	api.registerAndLogin(t, common.KindBuyer, "alice@x.com", "secret1")

	unknown := api.do(t, http.MethodPost, "/api/buyer/auth/login", `{"email":"ghost@x.com","password":"whatever"}`)
	wrong := api.do(t, http.MethodPost, "/api/buyer/auth/login", `{"email":"alice@x.com","password":"wrongpw"}`)
	assert.Equal(t, http.StatusUnauthorized, unknown.code)
	assert.Equal(t, unknown.code, wrong.code)
	assert.Equal(t, unknown.raw, wrong.raw)

	for i := 0; i < 4; i++ {
		r := api.do(t, http.MethodPost, "/api/buyer/auth/login", `{"email":"alice@x.com","password":"wrongpw"}`)
		require.Equal(t, http.StatusUnauthorized, r.code, "attempt %d", i+2)
	}

	r := api.do(t, http.MethodPost, "/api/buyer/auth/login", `{"email":"alice@x.com","password":"secret1"}`)
	assert.Equal(t, http.StatusLocked, r.code)
	assert.Contains(t, r.body.Message, "temporarily locked")
}

func TestGuard(t *testing.T) {
	api := newTestAPI(t, pinger{})
	token, ck := api.registerAndLogin(t, common.KindBuyer, "alice@x.com", "secret1")

	r := api.do(t, http.MethodGet, "/api/buyer/auth/profile", "")
	assert.Equal(t, http.StatusUnauthorized, r.code)
	assert.Equal(t, "Access denied. No token provided.", r.body.Message)

	r = api.do(t, http.MethodGet, "/api/buyer/auth/profile", "", bearer(token))
	require.Equal(t, http.StatusOK, r.code, r.raw)
	assert.Equal(t, "alice@x.com", r.body.Data.(map[string]any)["email"])

	r = api.do(t, http.MethodGet, "/api/buyer/auth/profile", "", withCookie(ck))
	assert.Equal(t, http.StatusOK, r.code)

	// A buyer token is useless on reseller and admin routes.
	r = api.do(t, http.MethodGet, "/api/reseller/auth/profile", "", bearer(token))
	assert.Equal(t, http.StatusUnauthorized, r.code)
	assert.Equal(t, "Access denied. Invalid token.", r.body.Message)
	r = api.do(t, http.MethodGet, "/api/admin/auth/profile", "", withCookie(ck))
	assert.Equal(t, http.StatusUnauthorized, r.code)

	r = api.do(t, http.MethodGet, "/api/buyer/auth/profile", "", bearer("junk"))
	assert.Equal(t, http.StatusUnauthorized, r.code)

	_, err := api.svcs[common.KindBuyer].SetStatus(context.Background(), "alice@x.com", false, true)
	require.NoError(t, err)
	r = api.do(t, http.MethodGet, "/api/buyer/auth/profile", "", bearer(token))
	assert.Equal(t, http.StatusUnauthorized, r.code)
	assert.Equal(t, "Account is deactivated", r.body.Message)
}

func TestGuard_WithdrawnApproval(t *testing.T) {
	api := newTestAPI(t, pinger{})
	ctx := context.Background()
	resellers := api.svcs[common.KindReseller]

	r := api.do(t, http.MethodPost, "/api/reseller/auth/register", `{"name":"Bob","email":"bob@x.com","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, r.code, r.raw)
	_, err := resellers.SetStatus(ctx, "bob@x.com", true, true)
	require.NoError(t, err)

	r = api.do(t, http.MethodPost, "/api/reseller/auth/login", `{"email":"bob@x.com","password":"secret1"}`)
	require.Equal(t, http.StatusOK, r.code, r.raw)
	token := r.body.Data.(map[string]any)["token"].(string)

	r = api.do(t, http.MethodGet, "/api/reseller/auth/profile", "", bearer(token))
	require.Equal(t, http.StatusOK, r.code, r.raw)

	_, err = resellers.SetStatus(ctx, "bob@x.com", true, false)
	require.NoError(t, err)

	r = api.do(t, http.MethodGet, "/api/reseller/auth/profile", "", bearer(token))
	assert.Equal(t, http.StatusForbidden, r.code)
	assert.Equal(t, "Access denied. Account pending approval.", r.body.Message)
	assert.Nil(t, r.body.Data)
}

func TestVerify(t *testing.T) {
	api := newTestAPI(t, pinger{})

	r := api.do(t, http.MethodPost, "/api/admin/auth/register", `{"name":"Root","email":"root@x.com","password":"Secret12"}`)
	require.Equal(t, http.StatusCreated, r.code, r.raw)
	r = api.do(t, http.MethodPost, "/api/admin/auth/login", `{"email":"root@x.com","password":"Secret12"}`)
	require.Equal(t, http.StatusOK, r.code, r.raw)
	token := r.body.Data.(map[string]any)["token"].(string)

	r = api.do(t, http.MethodGet, "/api/admin/auth/verify", "", bearer(token))
	require.Equal(t, http.StatusOK, r.code, r.raw)
	assert.Equal(t, "Token is valid", r.body.Message)
	data := r.body.Data.(map[string]any)
	assert.Equal(t, "root@x.com", data["email"])
	assert.Equal(t, "Root", data["name"])
	assert.Equal(t, "admin", data["role"])
	assert.NotEmpty(t, data["id"])
	assert.NotContains(t, r.raw, "password")

	r = api.do(t, http.MethodGet, "/api/admin/auth/verify", "")
	assert.Equal(t, http.StatusUnauthorized, r.code)

	buyerToken, _ := api.registerAndLogin(t, common.KindBuyer, "alice@x.com", "secret1")
	r = api.do(t, http.MethodGet, "/api/buyer/auth/verify", "", bearer(buyerToken))
	assert.Equal(t, http.StatusOK, r.code)
	r = api.do(t, http.MethodGet, "/api/admin/auth/verify", "", bearer(buyerToken))
	assert.Equal(t, http.StatusUnauthorized, r.code)
}

func TestProfileUpdateAndPasswordChange(t *testing.T) {
	api := newTestAPI(t, pinger{})
	token, _ := api.registerAndLogin(t, common.KindBuyer, "alice@x.com", "secret1")

	r := api.do(t, http.MethodPut, "/api/buyer/auth/profile", `{"name":"Alice A","company":"ACME"}`, bearer(token))
	require.Equal(t, http.StatusOK, r.code, r.raw)
	data := r.body.Data.(map[string]any)
	assert.Equal(t, "Alice A", data["name"])
	assert.Equal(t, "ACME", data["company"])

	r = api.do(t, http.MethodPut, "/api/buyer/auth/change-password", `{"currentPassword":"nope","newPassword":"secret2"}`, bearer(token))
	assert.Equal(t, http.StatusBadRequest, r.code)
	assert.Equal(t, "Current password is incorrect", r.body.Message)

	r = api.do(t, http.MethodPut, "/api/buyer/auth/change-password", `{"currentPassword":"secret1","newPassword":"secret2"}`, bearer(token))
	assert.Equal(t, http.StatusOK, r.code)

	r = api.do(t, http.MethodPost, "/api/buyer/auth/login", `{"email":"alice@x.com","password":"secret2"}`)
	assert.Equal(t, http.StatusOK, r.code)
}

func TestLogoutClearsCookie(t *testing.T) {
	api := newTestAPI(t, pinger{})

	r := api.do(t, http.MethodPost, "/api/reseller/auth/register", `{"name":"Carol","email":"carol@x.com","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, r.code, r.raw)
	_, err := api.svcs[common.KindReseller].SetStatus(context.Background(), "carol@x.com", true, true)
	require.NoError(t, err)

	r = api.do(t, http.MethodPost, "/api/reseller/auth/login", `{"email":"carol@x.com","password":"secret1"}`)
	require.Equal(t, http.StatusOK, r.code, r.raw)
	require.Len(t, r.cookies, 1)
	assert.Equal(t, "resellerToken", r.cookies[0].Name)

	r = api.do(t, http.MethodPost, "/api/reseller/auth/logout", "", withCookie(r.cookies[0]))
	require.Equal(t, http.StatusOK, r.code, r.raw)
	require.Len(t, r.cookies, 1)
	assert.Equal(t, "resellerToken", r.cookies[0].Name)
	assert.Empty(t, r.cookies[0].Value)
	assert.Equal(t, -1, r.cookies[0].MaxAge)
}

func TestPasswordResetFlow(t *testing.T) {
	api := newTestAPI(t, pinger{})
	api.registerAndLogin(t, common.KindBuyer, "alice@x.com", "secret1")

	known := api.do(t, http.MethodPost, "/api/buyer/auth/forgot-password", `{"email":"alice@x.com"}`)
	unknown := api.do(t, http.MethodPost, "/api/buyer/auth/forgot-password", `{"email":"ghost@x.com"}`)
	require.Equal(t, http.StatusOK, known.code)
	assert.Equal(t, known.raw, unknown.raw)

	raw := api.notifier.resets["alice@x.com"]
	require.NotEmpty(t, raw)

	r := api.do(t, http.MethodGet, "/api/buyer/auth/verify-reset-token/"+raw, "")
	require.Equal(t, http.StatusOK, r.code)
	assert.Equal(t, "alice@x.com", r.body.Data.(map[string]any)["email"])

	r = api.do(t, http.MethodPost, "/api/buyer/auth/reset-password", `{"token":"`+raw+`","newPassword":"newpass1"}`)
	require.Equal(t, http.StatusOK, r.code, r.raw)

	r = api.do(t, http.MethodPost, "/api/buyer/auth/reset-password", `{"token":"`+raw+`","newPassword":"again12"}`)
	assert.Equal(t, http.StatusBadRequest, r.code)
	assert.Equal(t, "Invalid or expired reset token", r.body.Message)

	r = api.do(t, http.MethodGet, "/api/buyer/auth/verify-reset-token/"+raw, "")
	assert.Equal(t, http.StatusBadRequest, r.code)

	r = api.do(t, http.MethodPost, "/api/buyer/auth/login", `{"email":"alice@x.com","password":"newpass1"}`)
	assert.Equal(t, http.StatusOK, r.code)
}

func TestHealthz(t *testing.T) {
	r := newTestAPI(t, pinger{}).do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, r.code)

	r = newTestAPI(t, pinger{err: errors.New("db down")}).do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, r.code)
	assert.False(t, r.body.Success)
}

func TestUnknownRoute(t *testing.T) {
	api := newTestAPI(t, pinger{})

	r := api.do(t, http.MethodGet, "/api/nobody/auth/login", "")
	assert.Equal(t, http.StatusNotFound, r.code)
	assert.False(t, r.body.Success)

	// Unknown paths under a kind prefix are not sent through the guard.
	for _, path := range []string{"/api/buyer/auth/nope", "/api/admin/auth/verify/extra", "/api/reseller/auth/"} {
		r = api.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, r.code, path)
	}
}

// brokenService fails every login with an unexpected error.
type brokenService struct {
	AccountService
}

func (brokenService) Policy() services.Policy { return services.BuyerPolicy }

func (brokenService) Login(context.Context, services.LoginInput) (*services.LoginResult, error) {
	return nil, errors.New("connection reset by peer")
}

func TestUnexpectedErrorsAreHidden(t *testing.T) {
	srv, err := NewServer(Config{}, logging.Discard(), prometheus.NewRegistry(), pinger{}, brokenService{})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/buyer/auth/login", strings.NewReader(`{"email":"a@x.com","password":"secret1"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection reset")
	assert.Contains(t, rec.Body.String(), "Internal server error")
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestMetricsEndpoint(t *testing.T) {
	api := newTestAPI(t, pinger{})
	api.do(t, http.MethodGet, "/healthz", "")

	rec := httptest.NewRecorder()
	api.srv.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "domainx_http_requests_total")
}

func TestRunStopsOnCancel(t *testing.T) {
	srv, err := NewServer(Config{Address: "127.0.0.1:0", MetricsAddress: "127.0.0.1:0"}, logging.Discard(), prometheus.NewRegistry(), pinger{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 2)
	go func() { done <- srv.Run(ctx) }()
	go func() { done <- srv.RunMetrics(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	for i := 0; i < 2; i++ {
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("server did not stop")
		}
	}
}
