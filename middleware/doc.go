// Package middleware exposes an HTTP adapter that enforces session
// validation through an identity.Engine.
//
// [RequireSession] reads the Authorization bearer token, validates it, and
// injects the session claims into the request context for downstream
// handlers via [ClaimsFromContext].
//
// The package translates HTTP semantics into Engine calls and nothing
// more. It does not parse tokens itself and it makes no authorization
// decision beyond pass/reject from validation; role checks belong to the
// application.
package middleware
