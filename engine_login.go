package identity

import "context"

// Login resolves a local credential pair into a signed session token.
//
// The failure kind is always specific: an unknown email is
// [ErrUserNotFound], never [ErrWrongPassword]; an account without a local
// password is [ErrSocialOnlyAccount]; a directory failure is
// [ErrPersistenceUnavailable] and is never downgraded to "not found".
func (e *Engine) Login(ctx context.Context, email, pass string) (*LoginResult, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if email == "" || pass == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", email, ErrValidation, nil)
		return nil, ErrValidation
	}

	ip := clientIPFromContext(ctx)
	if e.limiter != nil {
		if err := e.limiter.Check(ctx, email, ip); err != nil {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, "", email, ErrLoginRateLimited, nil)
			return nil, ErrLoginRateLimited
		}
	}

	user, found, err := e.findUserByEmail(ctx, email)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", email, err, nil)
		return nil, err
	}
	if !found {
		e.recordLoginFailure(ctx, email, ip)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", email, ErrUserNotFound, nil)
		return nil, ErrUserNotFound
	}

	if user.PasswordHash == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, email, ErrSocialOnlyAccount, nil)
		return nil, ErrSocialOnlyAccount
	}

	match, err := e.verifyPassword(ctx, user.PasswordHash, pass)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, email, err, nil)
		return nil, ErrPersistenceUnavailable
	}
	if !match {
		e.recordLoginFailure(ctx, email, ip)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, email, ErrWrongPassword, nil)
		return nil, ErrWrongPassword
	}

	e.maybeUpgradeHash(ctx, user, pass)
	pass = ""

	if e.limiter != nil {
		// Counter reset is best-effort; a limiter outage must not undo a
		// successful credential check.
		if err := e.limiter.Reset(ctx, email, ip); err != nil {
			e.log.Warn().Str("email", email).Msg("login limiter reset failed")
		}
	}

	result, err := e.issueSession(ctx, resolveUser(user, ""))
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, email, err, nil)
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.UserID, email, nil, nil)

	return result, nil
}

func (e *Engine) recordLoginFailure(ctx context.Context, email, ip string) {
	e.metricInc(MetricLoginFailure)
	if e.limiter == nil {
		return
	}
	if err := e.limiter.RecordFailure(ctx, email, ip); err != nil {
		e.log.Warn().Str("email", email).Msg("login failure count not recorded")
	}
}

// maybeUpgradeHash transparently re-hashes the password after a successful
// verification when the stored hash used weaker parameters than the
// current configuration. Best-effort: failures are logged only.
func (e *Engine) maybeUpgradeHash(ctx context.Context, user UserRecord, pass string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}

	needs, err := e.hasher.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needs {
		return
	}

	upgraded, err := e.hashPassword(ctx, pass)
	if err != nil {
		e.log.Warn().Str("user_id", user.UserID).Msg("password hash upgrade generation failed")
		return
	}

	opCtx, cancel := e.persistCtx(ctx)
	defer cancel()
	if err := e.directory.UpdatePasswordHash(opCtx, user.UserID, upgraded); err != nil {
		e.log.Warn().Str("user_id", user.UserID).Msg("password hash upgrade update failed")
	}
}
