package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

func googleProfile(email string) VerifiedProfile {
	return VerifiedProfile{
		Provider:   "google",
		Email:      email,
		GivenName:  "Priya",
		FamilyName: "Sharma",
	}
}

func TestFederatedLoginProvisionsFirstSeenEmail(t *testing.T) {
	dir := newMockDirectory()
	notifier := &recordingNotifier{}
	clock := newTestClock()
	engine := newTestEngine(t, dir, notifier, clock)

	res, err := engine.FederatedLogin(context.Background(), googleProfile("priya@example.com"))
	if err != nil {
		t.Fatalf("FederatedLogin failed: %v", err)
	}

	if res.Identity.Role != RoleStudent || res.Identity.UserType != UserTypeStudent {
		t.Fatalf("provisioned identity = %q/%q, want student/student", res.Identity.Role, res.Identity.UserType)
	}
	if res.Claims.Provider != "google" {
		t.Fatalf("claims provider = %q, want google", res.Claims.Provider)
	}

	user, ok := dir.user(res.Identity.UserID)
	if !ok {
		t.Fatal("expected a persisted user row")
	}
	if user.PasswordHash == "" {
		t.Fatal("provisioned account must carry a local password hash")
	}
	if user.UserType != UserTypeStudent {
		t.Fatalf("persisted user type = %q, want student", user.UserType)
	}

	if _, err := dir.FindProfileByUserID(context.Background(), user.UserID); err != nil {
		t.Fatalf("profile lookup failed: %v", err)
	}
	if dir.createProfileCalls != 1 {
		t.Fatalf("createProfileCalls = %d, want 1", dir.createProfileCalls)
	}

	engine.Close()
	msgs := notifier.messages()
	if len(msgs) != 1 {
		t.Fatalf("notifications sent = %d, want exactly 1", len(msgs))
	}
	if msgs[0].Email != "priya@example.com" {
		t.Fatalf("notification email = %q", msgs[0].Email)
	}
	if len(msgs[0].OneTimePassword) == 0 {
		t.Fatal("notification must carry the plaintext one-time password")
	}
	if strings.Contains(user.PasswordHash, msgs[0].OneTimePassword) {
		t.Fatal("plaintext must not appear in the stored hash")
	}
}

func TestFederatedLoginOneTimePasswordOpensLocalLogin(t *testing.T) {
	dir := newMockDirectory()
	notifier := &recordingNotifier{}
	clock := newTestClock()
	engine := newTestEngine(t, dir, notifier, clock)

	if _, err := engine.FederatedLogin(context.Background(), googleProfile("priya@example.com")); err != nil {
		t.Fatalf("FederatedLogin failed: %v", err)
	}

	engine.Close()
	msgs := notifier.messages()
	if len(msgs) != 1 {
		t.Fatalf("notifications sent = %d, want 1", len(msgs))
	}

	// The delivered one-time password is a working local credential.
	dir2 := dir
	engine2 := newTestEngine(t, dir2, &recordingNotifier{}, clock)
	if _, err := engine2.Login(context.Background(), "priya@example.com", msgs[0].OneTimePassword); err != nil {
		t.Fatalf("local login with one-time password failed: %v", err)
	}
}

func TestFederatedLoginExistingUserRefreshesNames(t *testing.T) {
	dir := newMockDirectory()
	clock := newTestClock()
	engine := newTestEngine(t, dir, &recordingNotifier{}, clock)

	u := seedLocalUser(t, engine, dir, "priya@example.com", "some-password", UserTypeStudent)

	res, err := engine.FederatedLogin(context.Background(), googleProfile("priya@example.com"))
	if err != nil {
		t.Fatalf("FederatedLogin failed: %v", err)
	}

	if res.Identity.UserID != u.UserID {
		t.Fatalf("resolved %q, want existing user %q", res.Identity.UserID, u.UserID)
	}
	if dir.createCalls != 0 {
		t.Fatal("existing account must not be re-created")
	}

	updated, _ := dir.user(u.UserID)
	if updated.FirstName != "Priya" || updated.LastName != "Sharma" {
		t.Fatalf("names not refreshed: %q %q", updated.FirstName, updated.LastName)
	}
	if updated.PasswordHash != u.PasswordHash {
		t.Fatal("existing credential must not be touched")
	}
}

func TestFederatedLoginForcesStudentRole(t *testing.T) {
	dir := newMockDirectory()
	clock := newTestClock()
	engine := newTestEngine(t, dir, &recordingNotifier{}, clock)

	seedLocalUser(t, engine, dir, "admin@example.com", "some-password", UserTypeAdmin)

	res, err := engine.FederatedLogin(context.Background(), googleProfile("admin@example.com"))
	if err != nil {
		t.Fatalf("FederatedLogin failed: %v", err)
	}
	if res.Identity.Role != RoleStudent {
		t.Fatalf("role = %q, federated entry must always resolve as student", res.Identity.Role)
	}
	if res.Claims.Role != string(RoleStudent) {
		t.Fatalf("claims role = %q, want student", res.Claims.Role)
	}
}

func TestFederatedLoginValidation(t *testing.T) {
	dir := newMockDirectory()
	engine := newTestEngine(t, dir, &recordingNotifier{}, newTestClock())

	if _, err := engine.FederatedLogin(context.Background(), VerifiedProfile{Provider: "google"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing email: err = %v, want ErrValidation", err)
	}
	if _, err := engine.FederatedLogin(context.Background(), VerifiedProfile{Email: "a@b.com"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing provider: err = %v, want ErrValidation", err)
	}
}

func TestFederatedLoginConcurrentProvisioningIsIdempotent(t *testing.T) {
	dir := newMockDirectory()
	notifier := &recordingNotifier{}
	clock := newTestClock()
	engine := newTestEngine(t, dir, notifier, clock)

	const attempts = 8
	results := make([]*LoginResult, attempts)
	errs := make([]error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = engine.FederatedLogin(context.Background(), googleProfile("race@example.com"))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("attempt %d failed: %v", i, err)
		}
	}

	if got := dir.userCount(); got != 1 {
		t.Fatalf("user rows = %d, want exactly 1", got)
	}
	winner := results[0].Identity.UserID
	for i, res := range results {
		if res.Identity.UserID != winner {
			t.Fatalf("attempt %d resolved %q, others %q; all must converge on one account", i, res.Identity.UserID, winner)
		}
	}

	engine.Close()
	if got := len(notifier.messages()); got != 1 {
		t.Fatalf("notifications sent = %d, want exactly 1 (losers must not re-send)", got)
	}
}

func TestFederatedLoginProfileCreateFailureDoesNotBlockLogin(t *testing.T) {
	dir := newMockDirectory()
	clock := newTestClock()
	engine := newTestEngine(t, dir, &recordingNotifier{}, clock)

	dir.createProfileErr = errors.New("disk full")

	res, err := engine.FederatedLogin(context.Background(), googleProfile("priya@example.com"))
	if err != nil {
		t.Fatalf("FederatedLogin must succeed despite profile write failure: %v", err)
	}

	// The account exists without its profile; RepairProfile completes it.
	dir.createProfileErr = nil
	if err := engine.RepairProfile(context.Background(), "priya@example.com"); err != nil {
		t.Fatalf("RepairProfile failed: %v", err)
	}

	profile, err := dir.FindProfileByUserID(context.Background(), res.Identity.UserID)
	if err != nil {
		t.Fatalf("profile lookup failed: %v", err)
	}
	if profile == nil {
		t.Fatal("expected repaired profile row")
	}

	// Repair is idempotent.
	before := dir.createProfileCalls
	if err := engine.RepairProfile(context.Background(), "priya@example.com"); err != nil {
		t.Fatalf("second RepairProfile failed: %v", err)
	}
	if dir.createProfileCalls != before {
		t.Fatal("repair must not re-create an existing profile")
	}
}

func TestRepairProfileUnknownEmail(t *testing.T) {
	dir := newMockDirectory()
	engine := newTestEngine(t, dir, &recordingNotifier{}, newTestClock())

	if err := engine.RepairProfile(context.Background(), "nobody@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestFederatedLoginAssignsPasswordToHashlessAccount(t *testing.T) {
	dir := newMockDirectory()
	notifier := &recordingNotifier{}
	clock := newTestClock()
	engine := newTestEngine(t, dir, notifier, clock)

	dir.putUser(UserRecord{
		UserID:    "u1",
		Email:     "gap@example.com",
		FirstName: "Priya",
		LastName:  "Sharma",
		UserType:  UserTypeStudent,
		CreatedAt: clock.Now(),
	})

	if _, err := engine.FederatedLogin(context.Background(), googleProfile("gap@example.com")); err != nil {
		t.Fatalf("FederatedLogin failed: %v", err)
	}

	repaired, _ := dir.user("u1")
	if repaired.PasswordHash == "" {
		t.Fatal("expected a generated credential for the hashless account")
	}

	engine.Close()
	if got := len(notifier.messages()); got != 1 {
		t.Fatalf("notifications sent = %d, want 1", got)
	}
}
