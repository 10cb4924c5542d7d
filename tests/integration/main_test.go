// tests/integration/main_test.go
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anybook/internal/authsvc"
	"anybook/internal/identity"
	"anybook/internal/notify"
)

// memProfiles is an in-memory stand-in for the MongoDB profile store, with
// the same write-time userId uniqueness guarantee.
type memProfiles struct {
	mu   sync.Mutex
	docs map[uuid.UUID]*identity.Profile
}

func newMemProfiles() *memProfiles {
	return &memProfiles{docs: map[uuid.UUID]*identity.Profile{}}
}

func (m *memProfiles) Get(_ context.Context, id uuid.UUID) (*identity.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.docs[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memProfiles) Create(_ context.Context, p *identity.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.docs {
		if existing.UserID == p.UserID {
			return identity.ErrDuplicateUserID
		}
	}
	cp := *p
	m.docs[p.InternalID] = &cp
	return nil
}

func (m *memProfiles) Upsert(_ context.Context, p *identity.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.docs[p.InternalID] = &cp
	return nil
}

func (m *memProfiles) UpdateSettings(_ context.Context, id uuid.UUID, settings identity.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.docs[id]
	if !ok {
		return identity.ErrNotFound
	}
	p.Settings = settings
	return nil
}

func (m *memProfiles) UpdateMembership(_ context.Context, id uuid.UUID, plan, expiryDate string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.docs[id]
	if !ok {
		return identity.ErrNotFound
	}
	p.MembershipPlan = plan
	p.MembershipExpiryDate = expiryDate
	return nil
}

func (m *memProfiles) FindByEmail(_ context.Context, email string) (*identity.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.docs {
		if p.Email == email {
			cp := *p
			return &cp, nil
		}
	}
	return nil, identity.ErrNotFound
}

func (m *memProfiles) CountByUserID(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, p := range m.docs {
		if p.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *memProfiles) List(context.Context) ([]*identity.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*identity.Profile, 0, len(m.docs))
	for _, p := range m.docs {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *memProfiles) Count(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.docs)), nil
}

// memAuth keeps credentials in memory and drives the real session manager,
// mirroring the MongoDB-backed authentication service.
type memAuth struct {
	mu       sync.Mutex
	creds    map[string]memCred
	sessions *authsvc.SessionManager
}

type memCred struct {
	id       uuid.UUID
	password string
}

func newMemAuth(sessions *authsvc.SessionManager) *memAuth {
	return &memAuth{creds: map[string]memCred{}, sessions: sessions}
}

func (a *memAuth) CreateCredential(_ context.Context, email, password string) (uuid.UUID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.creds[email]; exists {
		return uuid.Nil, &identity.AuthError{Code: identity.AuthEmailInUse}
	}
	if len(password) < 6 {
		return uuid.Nil, &identity.AuthError{Code: identity.AuthWeakPassword}
	}
	id := uuid.New()
	a.creds[email] = memCred{id: id, password: password}
	if err := a.sessions.Begin(id); err != nil {
		return uuid.Nil, &identity.AuthError{Code: identity.AuthOther, Err: err}
	}
	return id, nil
}

func (a *memAuth) SignIn(_ context.Context, email, password string) (uuid.UUID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cred, ok := a.creds[email]
	if !ok {
		return uuid.Nil, &identity.AuthError{Code: identity.AuthUserNotFound}
	}
	if cred.password != password {
		return uuid.Nil, &identity.AuthError{Code: identity.AuthWrongPassword}
	}
	if err := a.sessions.Begin(cred.id); err != nil {
		return uuid.Nil, &identity.AuthError{Code: identity.AuthOther, Err: err}
	}
	return cred.id, nil
}

func (a *memAuth) SignOut(context.Context) error {
	a.sessions.End()
	return nil
}

func (a *memAuth) SendPasswordReset(_ context.Context, email string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.creds[email]; !ok {
		return &identity.AuthError{Code: identity.AuthUserNotFound}
	}
	return nil
}

func (a *memAuth) SendEmailVerification(context.Context, uuid.UUID) error { return nil }

func (a *memAuth) ListSignInMethods(_ context.Context, email string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.creds[email]; ok {
		return []string{"password"}, nil
	}
	return nil, nil
}

type testStack struct {
	server   *httptest.Server
	sessions *authsvc.SessionManager
	notifier *notify.MockNotifier
	svc      identity.Service
}

func setupStack(t *testing.T) *testStack {
	t.Helper()

	sessions := authsvc.NewSessionManager([]byte("integration-secret"))
	auth := newMemAuth(sessions)
	profiles := newMemProfiles()
	notifier := notify.NewMockNotifier()
	svc := identity.NewService(auth, sessions, profiles, nil, notifier)

	results, err := svc.Reconcile(context.Background(), identity.DefaultAdminSeeds)
	require.NoError(t, err)
	for _, res := range results {
		require.NoError(t, res.Err)
	}

	router := chi.NewRouter()
	router.Route("/", identity.NewHandler(svc).Routes)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testStack{server: server, sessions: sessions, notifier: notifier, svc: svc}
}

func (ts *testStack) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.server.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestMemberSignUpFlow(t *testing.T) {
	ts := setupStack(t)

	resp := ts.postJSON(t, "/signup", map[string]string{
		"name":            "Jane Doe",
		"email":           "jane@example.com",
		"password":        "secret1",
		"confirmPassword": "secret1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	acct := decodeJSON[identity.ProvisionedAccount](t, resp)
	assert.Len(t, acct.UserID, 6)
	assert.Equal(t, identity.RoleMember, acct.Role)

	resp = ts.postJSON(t, "/login", map[string]string{
		"email":    "jane@example.com",
		"password": "secret1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	profile := decodeJSON[identity.Profile](t, resp)
	assert.Equal(t, acct.UserID, profile.UserID)
	assert.Equal(t, "None", profile.MembershipPlan)
	assert.True(t, profile.Settings.Notifications)
}

func TestSignUpDuplicateEmail(t *testing.T) {
	ts := setupStack(t)

	body := map[string]string{
		"name":            "Jane Doe",
		"email":           "jane@example.com",
		"password":        "secret1",
		"confirmPassword": "secret1",
	}
	resp := ts.postJSON(t, "/signup", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = ts.postJSON(t, "/signup", body)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestAdminAddsLibrarianKeepsSession(t *testing.T) {
	ts := setupStack(t)

	resp := ts.postJSON(t, "/login", map[string]string{
		"email":    "admin@anybook.com",
		"password": "Admin@2025!",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	admin := decodeJSON[identity.Profile](t, resp)

	resp = ts.postJSON(t, "/librarians", map[string]string{
		"name":          "Mary Major",
		"personalEmail": "mary@example.com",
		"govtDocNumber": "123456789012",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	acct := decodeJSON[identity.ProvisionedAccount](t, resp)
	assert.Equal(t, "marymajor@anybook.com", acct.LoginEmail)
	assert.Len(t, acct.Password, 12)

	cur, ok := ts.sessions.Current()
	require.True(t, ok)
	assert.Equal(t, admin.InternalID, cur, "admin session must survive librarian creation")

	sent := ts.notifier.Sent()
	require.NotEmpty(t, sent)
	assert.Equal(t, "mary@example.com", sent[len(sent)-1].To)
}

func TestLibrarianValidationOverHTTP(t *testing.T) {
	ts := setupStack(t)

	resp := ts.postJSON(t, "/librarians", map[string]string{
		"name":          "Mary Major",
		"personalEmail": "mary@example.com",
		"govtDocNumber": "12345", // not 12 digits
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestLibrarianCreationRequiresAdminOverHTTP(t *testing.T) {
	ts := setupStack(t)

	// Nobody is signed in; a well-formed request must still be rejected.
	resp := ts.postJSON(t, "/librarians", map[string]string{
		"name":          "Mary Major",
		"personalEmail": "mary@example.com",
		"govtDocNumber": "123456789012",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestUserListingByRole(t *testing.T) {
	ts := setupStack(t)
	ctx := context.Background()

	_, err := ts.svc.Provision(ctx, identity.ProvisionRequest{
		Name: "Member One", LoginEmail: "m1@example.com",
		Password: "secret1", ConfirmPassword: "secret1",
		Role: identity.RoleMember, SelfRegistered: true,
	})
	require.NoError(t, err)

	_, err = ts.svc.Login(ctx, "admin@anybook.com", "Admin@2025!")
	require.NoError(t, err)
	_, err = ts.svc.Provision(ctx, identity.ProvisionRequest{
		Name: "Lib One", Role: identity.RoleLibrarian,
		PersonalEmail: "lib1@example.com", GovtDocNumber: "123456789012",
	})
	require.NoError(t, err)

	resp, err := http.Get(ts.server.URL + "/users?role=Member")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	members := decodeJSON[[]identity.UserSummary](t, resp)
	require.Len(t, members, 1)
	assert.Equal(t, "Member One", members[0].Name)

	resp, err = http.Get(ts.server.URL + "/users?role=Librarian")
	require.NoError(t, err)
	librarians := decodeJSON[[]identity.UserSummary](t, resp)
	require.Len(t, librarians, 1)
	assert.Equal(t, "libone@anybook.com", librarians[0].Email)

	resp, err = http.Get(ts.server.URL + "/stats")
	require.NoError(t, err)
	stats := decodeJSON[identity.Stats](t, resp)
	assert.Equal(t, int64(3), stats.Users, "admin, member and librarian")
}
