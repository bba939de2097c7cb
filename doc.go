// Package identity implements authentication, first-seen account
// provisioning, and session claims issuance for the counselhq platform.
//
// The package is embedded as a library: the surrounding application supplies
// a [Directory] (user and profile persistence) and a [Notifier] (one-time
// password delivery), and receives an [Engine] that resolves local and
// federated login attempts into signed, role-scoped session tokens.
//
// Construct an engine through the [Builder]:
//
//	engine, err := identity.New().
//		WithConfig(identity.DefaultConfig()).
//		WithDirectory(store).
//		WithNotifier(mailer).
//		Build()
//
// All engine methods are safe for concurrent use. Session tokens are
// self-contained: validation and sliding renewal require only the signing
// key, never a server-side lookup.
package identity
