// SPDX-License-Identifier: GPL-3.0-only

package gateway

import (
	"context"
	"fmt"

	"accfleet-server/models"
)

// Credentials is the opaque application credential pair for one identity.
type Credentials struct {
	APIID   int
	APIHash string
}

type AuthResult int

const (
	// AuthAlreadyAuthorized means a previously completed handshake resumed.
	AuthAlreadyAuthorized AuthResult = iota
	// AuthChallengeIssued means a one-time verification code was sent to the
	// identity and Verify must be called with it.
	AuthChallengeIssued
)

type VerifyOutcome int

const (
	VerifyAuthorized VerifyOutcome = iota
	VerifySecondFactorRequired
	VerifyInvalidCode
)

type VerifyResult struct {
	Outcome  VerifyOutcome
	Username string // populated on VerifyAuthorized when the remote side knows it
}

type ProbeOutcome int

const (
	ProbeAuthorized ProbeOutcome = iota
	ProbeUnauthorized
	ProbeBanned
	ProbeExpired
)

// SessionGateway performs the wire-protocol calls for one identity. The
// gateway owns the live session handles; callers hold only phone keys. Every
// call may fail with *RateLimitedError, *BannedError or a plain transport
// error.
type SessionGateway interface {
	Authenticate(ctx context.Context, phone string, creds Credentials, proxy *models.ProxyConfig) (AuthResult, error)
	Verify(ctx context.Context, phone, code string) (VerifyResult, error)
	SupplySecondFactor(ctx context.Context, phone, secret string) (VerifyResult, error)
	Probe(ctx context.Context, phone string, creds Credentials, proxy *models.ProxyConfig) (ProbeOutcome, error)
}

type RateLimitedError struct {
	WaitSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: wait %d seconds", e.WaitSeconds)
}

type BannedError struct {
	Detail string
}

func (e *BannedError) Error() string {
	if e.Detail == "" {
		return "account is banned"
	}
	return "account is banned: " + e.Detail
}
