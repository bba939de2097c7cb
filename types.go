package identity

import (
	"context"
	"errors"
	"time"

	"github.com/counselhq/identity/token"
)

// Role is the authorization role embedded in session claims.
type Role string

const (
	// RoleAdmin is granted to back-office administrator accounts.
	RoleAdmin Role = "admin"
	// RoleStudent is granted to student accounts, including every account
	// provisioned through a federated login.
	RoleStudent Role = "student"
	// RoleConsultant is granted to consultant accounts.
	RoleConsultant Role = "consultant"
	// RoleUser is the fallback role for any unrecognized user type.
	RoleUser Role = "user"
)

// User types stored in the directory. Any other value maps to [RoleUser].
const (
	UserTypeAdmin      = "admin"
	UserTypeStudent    = "student"
	UserTypeConsultant = "consultant"
)

// UserRecord is the account row returned by [Directory] lookups.
// PasswordHash is empty until the account has been provisioned with a
// local credential.
type UserRecord struct {
	UserID       string
	Email        string
	FirstName    string
	LastName     string
	Phone        string
	PasswordHash string
	UserType     string
	Country      string
	City         string
	CreatedAt    time.Time
}

// ProfileRecord is the student profile row linked to a user. Profiles are
// created lazily: on first federated login for a provisioned student, or by
// [Engine.RepairProfile] when an earlier best-effort write failed.
type ProfileRecord struct {
	UserID           string
	Name             string
	Nationality      string
	City             string
	Gender           string
	PreferredProgram string
}

// ConsultantRecord carries the consultant-only attributes embedded in
// session claims for role=consultant principals.
type ConsultantRecord struct {
	UserID      string
	CompanyName string
	Designation string
	State       string
}

// VerifiedProfile is the canonical output of a federation adapter. The
// adapter has already validated the provider's signature; the engine trusts
// the profile and is provider-agnostic beyond the Provider tag.
type VerifiedProfile struct {
	Provider   string
	Email      string
	GivenName  string
	FamilyName string
	AvatarURL  string
}

// ResolvedIdentity is the in-memory result of a successful authentication
// attempt. It is immutable and consumed exactly once by token issuance.
type ResolvedIdentity struct {
	UserID      string
	Email       string
	DisplayName string
	FirstName   string
	LastName    string
	Phone       string
	Nationality string
	City        string
	Role        Role
	UserType    string
	// Provider is empty for local logins.
	Provider string
}

// LoginResult is returned by [Engine.Login] and [Engine.FederatedLogin].
type LoginResult struct {
	Token    string
	Claims   token.SessionClaims
	Identity ResolvedIdentity
}

// ErrDuplicateEmail must be returned (or wrapped) by [Directory.CreateUser]
// when the email uniqueness constraint rejects the insert. The engine relies
// on it for idempotent provisioning: on conflict it re-fetches the row the
// concurrent winner created.
var ErrDuplicateEmail = errors.New("email already exists")

// Directory is the narrow persistence contract the engine is wired against.
// Implementations must enforce a uniqueness constraint on email for new
// writes. FindUsersByEmail may still observe historical duplicates; the
// engine deterministically picks the most recently created row.
// FindUserByID returns an error wrapping [ErrUserNotFound] when no row
// matches; any other error is treated as a persistence fault.
type Directory interface {
	FindUsersByEmail(ctx context.Context, email string) ([]UserRecord, error)
	FindUserByID(ctx context.Context, userID string) (UserRecord, error)
	CreateUser(ctx context.Context, input CreateUserInput) (UserRecord, error)
	UpdateUser(ctx context.Context, userID string, update UserUpdate) error
	FindProfileByUserID(ctx context.Context, userID string) (*ProfileRecord, error)
	CreateProfile(ctx context.Context, input CreateProfileInput) error
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error
}

// ConsultantDirectory is an optional capability of a [Directory]. When the
// wired directory implements it, consultant logins carry company name,
// designation, and state in their session claims.
type ConsultantDirectory interface {
	FindConsultantByUserID(ctx context.Context, userID string) (*ConsultantRecord, error)
}

// CreateUserInput is the insert payload for [Directory.CreateUser]. The
// engine assigns UserID and CreatedAt.
type CreateUserInput struct {
	UserID       string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	UserType     string
	CreatedAt    time.Time
}

// UserUpdate carries the mutable display fields refreshed from a federated
// profile on every federated login.
type UserUpdate struct {
	FirstName string
	LastName  string
}

// CreateProfileInput is the insert payload for [Directory.CreateProfile].
type CreateProfileInput struct {
	UserID string
	Name   string
	City   string
}

// Notifier delivers the plaintext one-time password generated during
// provisioning. Delivery runs on the engine's outbound dispatcher: a
// returned error triggers bounded retries and then a dead-letter audit
// event, never a login failure.
type Notifier interface {
	SendOneTimePassword(ctx context.Context, email, displayName, oneTimePassword string) error
}
