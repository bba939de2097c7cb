package identity

import (
	"context"
	"errors"

	"github.com/counselhq/identity/internal"
	"github.com/google/uuid"
)

// provisionUser creates the local account for a first-seen federated
// identity: a generated one-time password is hashed and stored, the row is
// written with user_type student, a profile row is attempted best-effort,
// and the plaintext secret is queued for delivery exactly once.
//
// Provisioning is idempotent under races. Two near-simultaneous first
// logins both reach CreateUser; the storage uniqueness constraint lets one
// insert win, and the loser re-fetches the winner's row instead of
// failing. Only the winner enqueues the delivery.
func (e *Engine) provisionUser(ctx context.Context, profile VerifiedProfile, email string) (UserRecord, error) {
	oneTime, err := internal.NewOneTimePassword()
	if err != nil {
		return UserRecord{}, ErrPersistenceUnavailable
	}

	hash, err := e.hashPassword(ctx, oneTime)
	if err != nil {
		return UserRecord{}, ErrPersistenceUnavailable
	}

	input := CreateUserInput{
		UserID:       uuid.NewString(),
		Email:        email,
		FirstName:    profile.GivenName,
		LastName:     profile.FamilyName,
		PasswordHash: hash,
		UserType:     UserTypeStudent,
		CreatedAt:    e.clock(),
	}

	opCtx, cancel := e.persistCtx(ctx)
	created, err := e.directory.CreateUser(opCtx, input)
	cancel()
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			// Lost the race: adopt the row the concurrent login created.
			// That call owns the one-time password delivery.
			e.metricInc(MetricProvisionConflict)
			existing, found, fetchErr := e.findUserByEmail(ctx, email)
			if fetchErr != nil || !found {
				return UserRecord{}, ErrPersistenceUnavailable
			}
			return existing, nil
		}
		return UserRecord{}, ErrPersistenceUnavailable
	}

	e.ensureProfile(ctx, created)
	e.enqueueOneTimePassword(created, oneTime)

	e.metricInc(MetricUserProvisioned)
	e.emitAudit(ctx, auditEventUserProvisioned, true, created.UserID, email, nil, func() map[string]string {
		return map[string]string{"provider": profile.Provider}
	})

	return created, nil
}

// assignOneTimePassword generates and persists a fresh local credential
// for an account that has none, then queues its delivery. Used on the
// defensive federated path; provisioning embeds the same steps inline so
// the hash lands in the initial insert.
func (e *Engine) assignOneTimePassword(ctx context.Context, user UserRecord) (UserRecord, error) {
	oneTime, err := internal.NewOneTimePassword()
	if err != nil {
		return user, ErrPersistenceUnavailable
	}

	hash, err := e.hashPassword(ctx, oneTime)
	if err != nil {
		return user, ErrPersistenceUnavailable
	}

	opCtx, cancel := e.persistCtx(ctx)
	err = e.directory.UpdatePasswordHash(opCtx, user.UserID, hash)
	cancel()
	if err != nil {
		return user, ErrPersistenceUnavailable
	}
	user.PasswordHash = hash

	e.enqueueOneTimePassword(user, oneTime)
	e.emitAudit(ctx, auditEventOneTimePasswordAssigned, true, user.UserID, user.Email, nil, nil)

	return user, nil
}

func (e *Engine) enqueueOneTimePassword(user UserRecord, oneTime string) {
	e.notify.Enqueue(notifyJob{
		Email:           user.Email,
		DisplayName:     displayName(user.FirstName, user.LastName),
		OneTimePassword: oneTime,
	})
	e.metricInc(MetricNotifyEnqueued)
}

// ensureProfile lazily creates the student profile row. Best-effort by
// design: provisioning the user must succeed even when the dependent
// profile write fails, and [Engine.RepairProfile] can complete the pair
// later.
func (e *Engine) ensureProfile(ctx context.Context, user UserRecord) {
	if user.UserType != UserTypeStudent {
		return
	}

	profile, err := e.loadProfile(ctx, user.UserID)
	if err != nil {
		e.log.Warn().Str("user_id", user.UserID).Msg("profile lookup failed; skipping lazy creation")
		return
	}
	if profile != nil {
		return
	}

	opCtx, cancel := e.persistCtx(ctx)
	defer cancel()
	if err := e.directory.CreateProfile(opCtx, CreateProfileInput{
		UserID: user.UserID,
		Name:   displayName(user.FirstName, user.LastName),
		City:   user.City,
	}); err != nil {
		e.metricInc(MetricProfileCreateFailed)
		e.log.Warn().Str("user_id", user.UserID).Msg("profile creation failed; repairable later")
		e.emitAudit(ctx, auditEventProfileCreateFailed, false, user.UserID, user.Email, nil, nil)
	}
}

// RepairProfile is the idempotent compensation step for a provisioning run
// whose best-effort profile write failed. It creates the missing profile
// row for the student account behind email; an account that already has a
// profile, or is not a student, is left untouched.
func (e *Engine) RepairProfile(ctx context.Context, email string) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if email == "" {
		return ErrValidation
	}

	user, found, err := e.findUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !found {
		return ErrUserNotFound
	}
	if user.UserType != UserTypeStudent {
		return nil
	}

	profile, err := e.loadProfile(ctx, user.UserID)
	if err != nil {
		return err
	}
	if profile != nil {
		return nil
	}

	opCtx, cancel := e.persistCtx(ctx)
	defer cancel()
	if err := e.directory.CreateProfile(opCtx, CreateProfileInput{
		UserID: user.UserID,
		Name:   displayName(user.FirstName, user.LastName),
		City:   user.City,
	}); err != nil {
		return ErrPersistenceUnavailable
	}

	e.metricInc(MetricProfileRepaired)
	e.emitAudit(ctx, auditEventProfileRepaired, true, user.UserID, email, nil, nil)
	return nil
}
