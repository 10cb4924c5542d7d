// internal/identity/fakes_test.go
package identity

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// fakeSessions is an in-memory session accessor.
type fakeSessions struct {
	mu         sync.Mutex
	current    uuid.UUID
	active     bool
	restoreErr error
	calls      map[string]int
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{calls: map[string]int{}}
}

func (f *fakeSessions) Current() (uuid.UUID, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Current"]++
	return f.current, f.active
}

func (f *fakeSessions) Snapshot() Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Snapshot"]++
	if !f.active {
		return Session{}
	}
	return Session{ID: f.current, Token: "tok-" + f.current.String()}
}

func (f *fakeSessions) Restore(s Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Restore"]++
	if f.restoreErr != nil {
		return f.restoreErr
	}
	f.current = s.ID
	f.active = s != Session{}
	return nil
}

func (f *fakeSessions) activate(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = id
	f.active = true
}

func (f *fakeSessions) clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = uuid.Nil
	f.active = false
}

// fakeAuth is an in-memory authentication service counting every call.
type fakeAuth struct {
	mu        sync.Mutex
	creds     map[string]fakeCred // keyed by lowercased email
	sessions  *fakeSessions
	calls     map[string]int
	createErr error
	signInErr map[string]error // per email
	verifyErr error            // SendEmailVerification
}

type fakeCred struct {
	id       uuid.UUID
	password string
}

func newFakeAuth(sessions *fakeSessions) *fakeAuth {
	return &fakeAuth{
		creds:     map[string]fakeCred{},
		sessions:  sessions,
		calls:     map[string]int{},
		signInErr: map[string]error{},
	}
}

func (f *fakeAuth) count(name string) {
	f.calls[name]++
}

func (f *fakeAuth) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeAuth) CreateCredential(_ context.Context, email, password string) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("CreateCredential")
	if f.createErr != nil {
		return uuid.Nil, f.createErr
	}
	if _, exists := f.creds[email]; exists {
		return uuid.Nil, &AuthError{Code: AuthEmailInUse}
	}
	if len(password) < 6 {
		return uuid.Nil, &AuthError{Code: AuthWeakPassword}
	}
	id := uuid.New()
	f.creds[email] = fakeCred{id: id, password: password}
	return id, nil
}

func (f *fakeAuth) SignIn(_ context.Context, email, password string) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("SignIn")
	if err := f.signInErr[email]; err != nil {
		return uuid.Nil, err
	}
	cred, ok := f.creds[email]
	if !ok {
		return uuid.Nil, &AuthError{Code: AuthUserNotFound}
	}
	if cred.password != password {
		return uuid.Nil, &AuthError{Code: AuthWrongPassword}
	}
	f.sessions.activate(cred.id)
	return cred.id, nil
}

func (f *fakeAuth) SignOut(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("SignOut")
	f.sessions.clear()
	return nil
}

func (f *fakeAuth) SendPasswordReset(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("SendPasswordReset")
	if _, ok := f.creds[email]; !ok {
		return &AuthError{Code: AuthUserNotFound}
	}
	return nil
}

func (f *fakeAuth) SendEmailVerification(context.Context, uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("SendEmailVerification")
	return f.verifyErr
}

func (f *fakeAuth) ListSignInMethods(_ context.Context, email string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("ListSignInMethods")
	if _, ok := f.creds[email]; ok {
		return []string{"password"}, nil
	}
	return nil, nil
}

// fakeProfiles is an in-memory profile store enforcing userId uniqueness.
type fakeProfiles struct {
	mu       sync.Mutex
	docs     map[uuid.UUID]*Profile
	calls    map[string]int
	countErr error
	// dupOnce forces one ErrDuplicateUserID before accepting a create.
	dupOnce bool
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{docs: map[uuid.UUID]*Profile{}, calls: map[string]int{}}
}

func (f *fakeProfiles) count(name string) {
	f.calls[name]++
}

func (f *fakeProfiles) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeProfiles) snapshot() map[uuid.UUID]Profile {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uuid.UUID]Profile, len(f.docs))
	for id, p := range f.docs {
		out[id] = *p
	}
	return out
}

func (f *fakeProfiles) Get(_ context.Context, id uuid.UUID) (*Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("Get")
	p, ok := f.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProfiles) Create(_ context.Context, p *Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("Create")
	if f.dupOnce {
		f.dupOnce = false
		return ErrDuplicateUserID
	}
	for _, existing := range f.docs {
		if existing.UserID == p.UserID {
			return ErrDuplicateUserID
		}
	}
	cp := *p
	f.docs[p.InternalID] = &cp
	return nil
}

func (f *fakeProfiles) Upsert(_ context.Context, p *Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("Upsert")
	cp := *p
	f.docs[p.InternalID] = &cp
	return nil
}

func (f *fakeProfiles) UpdateSettings(_ context.Context, id uuid.UUID, settings Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("UpdateSettings")
	p, ok := f.docs[id]
	if !ok {
		return ErrNotFound
	}
	p.Settings = settings
	return nil
}

func (f *fakeProfiles) UpdateMembership(_ context.Context, id uuid.UUID, plan, expiryDate string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("UpdateMembership")
	p, ok := f.docs[id]
	if !ok {
		return ErrNotFound
	}
	p.MembershipPlan = plan
	p.MembershipExpiryDate = expiryDate
	return nil
}

func (f *fakeProfiles) FindByEmail(_ context.Context, email string) (*Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("FindByEmail")
	for _, p := range f.docs {
		if p.Email == email {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeProfiles) CountByUserID(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("CountByUserID")
	if f.countErr != nil {
		return 0, f.countErr
	}
	var n int64
	for _, p := range f.docs {
		if p.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (f *fakeProfiles) List(context.Context) ([]*Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("List")
	out := make([]*Profile, 0, len(f.docs))
	for _, p := range f.docs {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeProfiles) Count(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("Count")
	return int64(len(f.docs)), nil
}

// fullProfiles reports every user id as taken, for exhaustion tests.
type fullProfiles struct {
	fakeProfiles
	checks int
}

func (f *fullProfiles) CountByUserID(context.Context, string) (int64, error) {
	f.checks++
	return 1, nil
}
