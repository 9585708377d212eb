// Package jwt issues and verifies the signed access and refresh tokens that
// back signet sessions.
//
// Access tokens carry the identity claims a resource server needs (subject,
// email, roles, session ID); refresh tokens carry only the session ID and its
// current token family. Both are signed with a rotating key identified by a
// kid header; verifiers hold only public keys.
package jwt
