package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/counselhq/identity/token"
)

// resolveUser maps a directory row to the immutable [ResolvedIdentity]
// consumed by token issuance. Role follows user type: admin, student, and
// consultant map onto themselves; anything else degrades to the generic
// user role.
func resolveUser(user UserRecord, provider string) ResolvedIdentity {
	return ResolvedIdentity{
		UserID:      user.UserID,
		Email:       user.Email,
		DisplayName: displayName(user.FirstName, user.LastName),
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Phone:       user.Phone,
		City:        user.City,
		Role:        roleForUserType(user.UserType),
		UserType:    user.UserType,
		Provider:    provider,
	}
}

func displayName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}

// issueSession converts a resolved identity into a signed session token,
// enriching the claims with profile and consultant attributes where they
// exist. Enrichment reads are best-effort: a missing or unreadable profile
// must not fail a login whose credentials already checked out.
func (e *Engine) issueSession(ctx context.Context, id ResolvedIdentity) (*LoginResult, error) {
	claims := token.SessionClaims{
		UserID:      id.UserID,
		Role:        string(id.Role),
		UserType:    id.UserType,
		FirstName:   id.FirstName,
		LastName:    id.LastName,
		Phone:       id.Phone,
		Nationality: id.Nationality,
		City:        id.City,
		Provider:    id.Provider,
	}

	if id.UserType == UserTypeStudent {
		profile, err := e.loadProfile(ctx, id.UserID)
		if err != nil {
			e.log.Warn().Str("user_id", id.UserID).Msg("profile read failed during claims assembly")
		} else if profile != nil {
			claims.Nationality = profile.Nationality
			claims.PreferredProgram = profile.PreferredProgram
			claims.Gender = profile.Gender
			if profile.City != "" {
				claims.City = profile.City
			}
			id.Nationality = profile.Nationality
			if profile.City != "" {
				id.City = profile.City
			}
		}
	}

	if id.Role == RoleConsultant {
		if consultants, ok := e.directory.(ConsultantDirectory); ok {
			opCtx, cancel := e.persistCtx(ctx)
			record, err := consultants.FindConsultantByUserID(opCtx, id.UserID)
			cancel()
			if err != nil {
				e.log.Warn().Str("user_id", id.UserID).Msg("consultant read failed during claims assembly")
			} else if record != nil {
				claims.CompanyName = record.CompanyName
				claims.Designation = record.Designation
				claims.State = record.State
			}
		}
	}

	signed, err := e.tokens.Issue(claims)
	if err != nil {
		return nil, ErrPersistenceUnavailable
	}
	issued, err := e.tokens.Parse(signed)
	if err != nil {
		return nil, ErrPersistenceUnavailable
	}

	e.metricInc(MetricSessionIssued)

	return &LoginResult{
		Token:    signed,
		Claims:   *issued,
		Identity: id,
	}, nil
}

// RenewSession implements sliding expiration over a previously issued
// token. A token younger than the renewal threshold is returned unchanged;
// an older one is transparently re-signed with the same claims and a reset
// age counter. A token past its hard expiry returns [ErrTokenExpired];
// anything unverifiable returns [ErrTokenInvalid]. Renewal is pure
// computation: no store is consulted.
func (e *Engine) RenewSession(ctx context.Context, tokenStr string) (string, error) {
	if e == nil || e.tokens == nil {
		return "", ErrEngineNotReady
	}

	fresh, claims, err := e.tokens.Renew(tokenStr)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			e.metricInc(MetricSessionExpired)
			e.emitAudit(ctx, auditEventSessionExpired, false, "", "", ErrTokenExpired, nil)
			return "", ErrTokenExpired
		}
		return "", ErrTokenInvalid
	}

	if fresh != tokenStr {
		e.metricInc(MetricSessionRenewed)
		e.emitAudit(ctx, auditEventSessionRenewed, true, claims.UserID, "", nil, nil)
	}

	return fresh, nil
}

// ValidateSession verifies a session token and returns its claims.
func (e *Engine) ValidateSession(ctx context.Context, tokenStr string) (*token.SessionClaims, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.Parse(tokenStr)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
