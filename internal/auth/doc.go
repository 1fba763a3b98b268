// Package auth provides the authorization primitives shared by every layer
// of the firm auth service.
//
// This package implements:
//   - The static role to permission catalog
//   - Immutable permission sets and effective permission resolution
//   - The Principal, the identity resolved once per request
//
// It has no I/O. Token decoding lives in package tokens and credential
// verification in services/auth.
package auth
