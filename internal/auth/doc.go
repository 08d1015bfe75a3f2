// Package auth issues and verifies the connector's RS256 access tokens.
//
// When a key pair is configured the connector signs one token at startup
// whose "id" claim carries the configured secret key, and logs it so an
// operator can paste it into SCLAB. Every protected request must present a
// token that verifies against the public key and carries the same id.
//
// Tokens are accepted as "Authorization: <token>" or
// "Authorization: Bearer <token>".
//
// Without a key pair authentication is disabled.
package auth
