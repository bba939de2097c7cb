package identity

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/counselhq/identity/password"
)

// testClock is a mutable time source shared between a test and its engine.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type mockDirectory struct {
	mu       sync.Mutex
	users    map[string]UserRecord
	profiles map[string]ProfileRecord

	findErr          error
	findByIDErr      error
	createErr        error
	updateErr        error
	updateHashErr    error
	profileErr       error
	createProfileErr error

	findCalls          int
	createCalls        int
	updateCalls        int
	updateHashCalls    int
	createProfileCalls int
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{
		users:    map[string]UserRecord{},
		profiles: map[string]ProfileRecord{},
	}
}

func (m *mockDirectory) putUser(u UserRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.UserID] = u
}

func (m *mockDirectory) user(userID string) (UserRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	return u, ok
}

func (m *mockDirectory) userCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

func (m *mockDirectory) FindUsersByEmail(_ context.Context, email string) ([]UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.findCalls++
	if m.findErr != nil {
		return nil, m.findErr
	}

	var rows []UserRecord
	for _, u := range m.users {
		if u.Email == email {
			rows = append(rows, u)
		}
	}
	return rows, nil
}

func (m *mockDirectory) FindUserByID(_ context.Context, userID string) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findByIDErr != nil {
		return UserRecord{}, m.findByIDErr
	}

	u, ok := m.users[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return u, nil
}

func (m *mockDirectory) CreateUser(_ context.Context, input CreateUserInput) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.createCalls++
	if m.createErr != nil {
		return UserRecord{}, m.createErr
	}

	for _, existing := range m.users {
		if existing.Email == input.Email {
			return UserRecord{}, ErrDuplicateEmail
		}
	}

	u := UserRecord{
		UserID:       input.UserID,
		Email:        input.Email,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		PasswordHash: input.PasswordHash,
		UserType:     input.UserType,
		CreatedAt:    input.CreatedAt,
	}
	m.users[u.UserID] = u
	return u, nil
}

func (m *mockDirectory) UpdateUser(_ context.Context, userID string, update UserUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.updateCalls++
	if m.updateErr != nil {
		return m.updateErr
	}

	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.FirstName = update.FirstName
	u.LastName = update.LastName
	m.users[userID] = u
	return nil
}

func (m *mockDirectory) FindProfileByUserID(_ context.Context, userID string) (*ProfileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.profileErr != nil {
		return nil, m.profileErr
	}

	p, ok := m.profiles[userID]
	if !ok {
		return nil, nil
	}
	out := p
	return &out, nil
}

func (m *mockDirectory) CreateProfile(_ context.Context, input CreateProfileInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.createProfileCalls++
	if m.createProfileErr != nil {
		return m.createProfileErr
	}

	m.profiles[input.UserID] = ProfileRecord{
		UserID: input.UserID,
		Name:   input.Name,
		City:   input.City,
	}
	return nil
}

func (m *mockDirectory) UpdatePasswordHash(_ context.Context, userID, newHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.updateHashCalls++
	if m.updateHashErr != nil {
		return m.updateHashErr
	}

	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = newHash
	m.users[userID] = u
	return nil
}

// consultantMockDirectory adds the consultant capability on top of the
// base mock.
type consultantMockDirectory struct {
	*mockDirectory
	consultants map[string]ConsultantRecord
}

func (m *consultantMockDirectory) FindConsultantByUserID(_ context.Context, userID string) (*ConsultantRecord, error) {
	c, ok := m.consultants[userID]
	if !ok {
		return nil, nil
	}
	out := c
	return &out, nil
}

type sentMessage struct {
	Email           string
	DisplayName     string
	OneTimePassword string
}

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []sentMessage
	fail  int // first N sends fail
	err   error
	calls int
}

func (n *recordingNotifier) SendOneTimePassword(_ context.Context, email, displayName, oneTimePassword string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.calls++
	if n.fail > 0 {
		n.fail--
		return n.err
	}
	n.sent = append(n.sent, sentMessage{Email: email, DisplayName: displayName, OneTimePassword: oneTimePassword})
	return nil
}

func (n *recordingNotifier) messages() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]sentMessage, len(n.sent))
	copy(out, n.sent)
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.SigningKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Notify.AttemptTimeout = time.Second
	cfg.Notify.RetryBackoff = time.Millisecond
	return cfg
}

type engineOption func(*Builder)

func newTestEngine(t *testing.T, dir Directory, notifier Notifier, clock *testClock, opts ...engineOption) *Engine {
	t.Helper()

	b := New().
		WithConfig(testConfig()).
		WithDirectory(dir).
		WithNotifier(notifier).
		WithClock(clock.Now)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

// newWeakHash derives a hash under the minimum allowed parameters, for
// exercising upgrade-on-login.
func newWeakHash(pass string) (string, error) {
	h, err := password.NewHasher(password.Params{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		return "", err
	}
	return h.Hash(pass)
}

func seedLocalUser(t *testing.T, engine *Engine, dir *mockDirectory, email, pass, userType string) UserRecord {
	t.Helper()

	hash, err := engine.hasher.Hash(pass)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	u := UserRecord{
		UserID:       "u-" + strings.SplitN(email, "@", 2)[0],
		Email:        email,
		FirstName:    "Test",
		LastName:     "User",
		PasswordHash: hash,
		UserType:     userType,
		CreatedAt:    engine.clock(),
	}
	dir.putUser(u)
	return u
}
