// Package token signs and verifies self-contained session tokens.
//
// A session token embeds the full claim set of an authenticated principal,
// a hard expiry, and a last-renewed timestamp. Renewal is pure claim
// re-signing: when a token older than the renewal threshold is presented,
// the manager mints a fresh token with identical identity claims and a
// reset age counter. There is no server-side session store and no
// revocation list; compromise mitigation relies on the hard expiry.
package token
