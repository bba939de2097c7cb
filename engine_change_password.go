package identity

import (
	"context"
	"errors"

	"github.com/counselhq/identity/password"
)

// ChangePassword rotates the local credential for an authenticated
// principal. The caller has already validated the session token; userID
// comes from its claims, never from request input. The current password
// must verify against the stored hash before anything is written, and a
// failed attempt leaves the stored credential untouched. No email is sent
// on success.
func (e *Engine) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}

	if userID == "" || currentPassword == "" {
		return ErrValidation
	}
	if len(newPassword) < password.MinPasswordBytes {
		return ErrValidation
	}

	opCtx, cancel := e.persistCtx(ctx)
	user, err := e.directory.FindUserByID(opCtx, userID)
	cancel()
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.emitAudit(ctx, auditEventPasswordChangeFailure, false, userID, "", ErrUserNotFound, nil)
			return ErrUserNotFound
		}
		return ErrPersistenceUnavailable
	}

	if user.PasswordHash == "" {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, userID, user.Email, ErrSocialOnlyAccount, nil)
		return ErrSocialOnlyAccount
	}

	match, err := e.verifyPassword(ctx, user.PasswordHash, currentPassword)
	if err != nil {
		return ErrPersistenceUnavailable
	}
	if !match {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, userID, user.Email, ErrWrongPassword, nil)
		return ErrWrongPassword
	}

	newHash, err := e.hashPassword(ctx, newPassword)
	if err != nil {
		return ErrValidation
	}

	opCtx, cancel = e.persistCtx(ctx)
	err = e.directory.UpdatePasswordHash(opCtx, userID, newHash)
	cancel()
	if err != nil {
		return ErrPersistenceUnavailable
	}

	if e.limiter != nil {
		// Best effort: a stale failure counter must not outlive a
		// successful rotation.
		_ = e.limiter.Reset(ctx, user.Email, clientIPFromContext(ctx))
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, userID, user.Email, nil, nil)
	return nil
}
