// Package auth signs and verifies the relay's bearer credentials.
//
// Tokens are HS256 JWTs whose subject is the user id and whose "name"
// claim is the display name shown to other editors.
package auth
