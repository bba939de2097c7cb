package identity

import "context"

// FederatedLogin resolves an already-provider-verified profile into a
// signed session token, provisioning a local account the first time the
// email is seen.
//
// The engine does not validate provider signatures; a federation adapter
// has done that before constructing the [VerifiedProfile]. Federated entry
// is only offered on the student-facing product, so the resulting identity
// always carries the student role and user type.
func (e *Engine) FederatedLogin(ctx context.Context, profile VerifiedProfile) (*LoginResult, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	email := normalizeEmail(profile.Email)
	if email == "" || profile.Provider == "" {
		e.metricInc(MetricFederatedLoginFailure)
		e.emitAudit(ctx, auditEventFederatedLoginFailure, false, "", email, ErrValidation, nil)
		return nil, ErrValidation
	}

	user, found, err := e.findUserByEmail(ctx, email)
	if err != nil {
		e.metricInc(MetricFederatedLoginFailure)
		e.emitAudit(ctx, auditEventFederatedLoginFailure, false, "", email, err, nil)
		return nil, err
	}

	if !found {
		user, err = e.provisionUser(ctx, profile, email)
		if err != nil {
			e.metricInc(MetricFederatedLoginFailure)
			e.emitAudit(ctx, auditEventFederatedLoginFailure, false, "", email, err, nil)
			return nil, err
		}
	} else {
		user, err = e.refreshFederatedUser(ctx, user, profile)
		if err != nil {
			e.metricInc(MetricFederatedLoginFailure)
			e.emitAudit(ctx, auditEventFederatedLoginFailure, false, user.UserID, email, err, nil)
			return nil, err
		}
	}

	id := resolveUser(user, profile.Provider)
	// Federated signup is student-only; the role never follows the stored
	// user type on this path.
	id.Role = RoleStudent
	id.UserType = UserTypeStudent

	result, err := e.issueSession(ctx, id)
	if err != nil {
		e.metricInc(MetricFederatedLoginFailure)
		e.emitAudit(ctx, auditEventFederatedLoginFailure, false, user.UserID, email, err, nil)
		return nil, err
	}

	e.metricInc(MetricFederatedLoginSuccess)
	e.emitAudit(ctx, auditEventFederatedLoginSuccess, true, user.UserID, email, nil, func() map[string]string {
		return map[string]string{"provider": profile.Provider}
	})

	return result, nil
}

// refreshFederatedUser brings an existing account up to date with the
// fresh provider profile: display names are overwritten, a missing student
// profile is lazily created, and an account that somehow has no password
// hash gets one generated and delivered.
func (e *Engine) refreshFederatedUser(ctx context.Context, user UserRecord, profile VerifiedProfile) (UserRecord, error) {
	if profile.GivenName != user.FirstName || profile.FamilyName != user.LastName {
		opCtx, cancel := e.persistCtx(ctx)
		err := e.directory.UpdateUser(opCtx, user.UserID, UserUpdate{
			FirstName: profile.GivenName,
			LastName:  profile.FamilyName,
		})
		cancel()
		if err != nil {
			return user, ErrPersistenceUnavailable
		}
		user.FirstName = profile.GivenName
		user.LastName = profile.FamilyName
	}

	e.ensureProfile(ctx, user)

	// Provisioned accounts always end up with a hash; handle the gap
	// anyway so the account stays reachable by local login.
	if user.PasswordHash == "" {
		assigned, err := e.assignOneTimePassword(ctx, user)
		if err != nil {
			return user, err
		}
		user = assigned
	}

	return user, nil
}
