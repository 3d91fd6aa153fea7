// SPDX-License-Identifier: GPL-3.0-only

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"accfleet-server/commons"
	"accfleet-server/events"
	"accfleet-server/gateway"
	"accfleet-server/models"
	"accfleet-server/recovery"
	"accfleet-server/store"
	"accfleet-server/vpn"

	"github.com/labstack/gommon/log"
)

// Result is the outcome of one lifecycle operation. Gateway and storage
// faults never escape the controller; they come back as a committed status
// plus a failure message here.
type Result struct {
	OK      bool
	Message string
	// Status is the lifecycle state this operation observed or committed.
	Status models.AccountStatus
}

// CodeFunc supplies the out-of-band verification code once the gateway has
// issued a challenge. The controller never solicits the code itself.
type CodeFunc func(ctx context.Context, phone string) (string, error)

type Config struct {
	DefaultAPIID        int
	DefaultAPIHash      string
	Fallback2FAPassword string
	GatewayTimeout      time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		DefaultAPIID:        commons.GetEnvInt("DEFAULT_API_ID", 0),
		DefaultAPIHash:      commons.GetEnv("DEFAULT_API_HASH"),
		Fallback2FAPassword: commons.GetEnv("FALLBACK_2FA_PASSWORD"),
		GatewayTimeout:      time.Duration(commons.GetEnvInt("GATEWAY_TIMEOUT_SECONDS", 30)) * time.Second,
	}
}

// Controller is the account lifecycle state machine. All state changes flow
// through the store; the controller holds no authoritative status between
// operations.
type Controller struct {
	store    *store.Store
	gateway  gateway.SessionGateway
	vpn      *vpn.Allocator
	recovery *recovery.Manager
	events   *events.Publisher
	locks    *keyedMutex
	cfg      Config
	logger   *log.Logger
}

func NewController(s *store.Store, gw gateway.SessionGateway, allocator *vpn.Allocator, rec *recovery.Manager, pub *events.Publisher, cfg Config, logger *log.Logger) *Controller {
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 30 * time.Second
	}
	return &Controller{
		store:    s,
		gateway:  gw,
		vpn:      allocator,
		recovery: rec,
		events:   pub,
		locks:    newKeyedMutex(),
		cfg:      cfg,
		logger:   logger,
	}
}

// Enroll adds a new account and runs the authenticate-or-verify flow. The
// verification code, when the gateway issues a challenge, is pulled through
// codeFn; a nil codeFn leaves the account in state new awaiting the code.
func (c *Controller) Enroll(ctx context.Context, rawPhone string, useVPN bool, codeFn CodeFunc) (Result, error) {
	phone := commons.NormalizeIdentity(rawPhone)
	if !commons.ValidateIdentity(phone) {
		c.logger.Errorf("Invalid phone number: %s", rawPhone)
		return Result{Message: "invalid phone number"}, ErrInvalidIdentity
	}

	unlock := c.locks.lock(phone)
	defer unlock()

	exists, err := c.store.Exists(ctx, phone)
	if err != nil {
		return Result{Message: err.Error()}, nil
	}
	if exists {
		c.logger.Warnf("Account %s already exists in database", phone)
		return Result{Message: "account already enrolled"}, ErrAlreadyEnrolled
	}

	account := &models.Account{
		Phone:   phone,
		APIID:   c.cfg.DefaultAPIID,
		APIHash: c.cfg.DefaultAPIHash,
		Status:  models.StatusNew,
	}
	if useVPN {
		account.ProxyConfig = c.vpn.Assign()
		if !c.vpn.CheckReachability(ctx, account.ProxyConfig) {
			c.logger.Warnf("Assigned VPN %s is not reachable, continuing anyway", account.ProxyConfig.Address)
		}
	}

	creds := gateway.Credentials{APIID: account.APIID, APIHash: account.APIHash}

	auth, err := c.callAuthenticate(ctx, phone, creds, account.ProxyConfig)
	if err != nil {
		status, detail := classifyGatewayError(err)
		return c.commitEnroll(ctx, account, status, detail, failureMessage(status, detail)), nil
	}

	if auth == gateway.AuthAlreadyAuthorized {
		c.logger.Infof("Account %s is already authorized, saving to database", phone)
		return c.commitEnroll(ctx, account, models.StatusActive, "", "account already authorized and saved"), nil
	}

	// Challenge issued: suspend for the out-of-band verification code.
	if codeFn == nil {
		return c.commitEnroll(ctx, account, models.StatusNew, "verification code sent", "verification code sent"), nil
	}
	code, err := codeFn(ctx, phone)
	if err != nil || code == "" {
		detail := "verification code not supplied"
		if err != nil {
			detail = err.Error()
		}
		return c.commitEnroll(ctx, account, models.StatusNew, detail, "verification code sent"), nil
	}

	status, username, detail := c.runVerification(ctx, phone, code, "")
	if username != "" {
		account.Username = &username
	}
	result := c.commitEnroll(ctx, account, status, detail, "")
	if status == models.StatusActive {
		result.OK = true
		result.Message = "account added successfully"
	}
	return result, nil
}

// Check probes one identity and commits the observed state. It never lets a
// gateway fault escape; every failure becomes a committed status plus a
// message.
func (c *Controller) Check(ctx context.Context, rawPhone string) (Result, error) {
	phone := commons.NormalizeIdentity(rawPhone)

	unlock := c.locks.lock(phone)
	defer unlock()

	account, err := c.store.Get(ctx, phone)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Result{Message: "account not found"}, ErrNotFound
		}
		return Result{Message: err.Error()}, nil
	}

	// Terminal states are never probed: no automatic transition may move them.
	if models.IsTerminal(account.Status) {
		return Result{Message: "account is banned", Status: models.StatusBanned}, nil
	}

	creds := gateway.Credentials{APIID: account.APIID, APIHash: account.APIHash}

	outcome, err := c.callProbe(ctx, phone, creds, account.ProxyConfig)
	if err != nil {
		status, detail := classifyGatewayError(err)
		c.commitTransition(ctx, phone, "check", status, detail, nil)
		if status == models.StatusBanned {
			c.archiveArtifact(phone)
		}
		return Result{Message: failureMessage(status, detail), Status: status}, nil
	}

	now := time.Now()
	switch outcome {
	case gateway.ProbeAuthorized:
		c.commitTransition(ctx, phone, "check", models.StatusActive, "", &now)
		c.logger.Infof("Account %s is valid and active", phone)
		return Result{OK: true, Message: "account is valid and active", Status: models.StatusActive}, nil
	case gateway.ProbeUnauthorized:
		c.commitTransition(ctx, phone, "check", models.StatusUnauthorized, "", nil)
		c.logger.Warnf("Account %s is not authorized", phone)
		return Result{Message: "account is not authorized", Status: models.StatusUnauthorized}, nil
	case gateway.ProbeBanned:
		c.commitTransition(ctx, phone, "check", models.StatusBanned, "", nil)
		c.archiveArtifact(phone)
		c.logger.Errorf("Account %s has been banned", phone)
		return Result{Message: "account is banned", Status: models.StatusBanned}, nil
	case gateway.ProbeExpired:
		c.commitTransition(ctx, phone, "check", models.StatusExpired, "", nil)
		if err := c.recovery.Quarantine(ctx, phone); err != nil {
			c.logger.Errorf("Failed to quarantine expired account %s: %v", phone, err)
		}
		c.logger.Errorf("Session for account %s has expired", phone)
		return Result{Message: "session has expired", Status: models.StatusExpired}, nil
	default:
		detail := fmt.Sprintf("unexpected probe outcome %d", outcome)
		c.commitTransition(ctx, phone, "check", models.StatusError, detail, nil)
		return Result{Message: detail, Status: models.StatusError}, nil
	}
}

// Reauthenticate re-runs the login flow for an enrolled account. Any existing
// session artifact is archived first so a corrupt artifact is never reused.
func (c *Controller) Reauthenticate(ctx context.Context, rawPhone, code, password string) (Result, error) {
	phone := commons.NormalizeIdentity(rawPhone)

	unlock := c.locks.lock(phone)
	defer unlock()

	account, err := c.store.Get(ctx, phone)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Result{Message: "account not found"}, ErrNotFound
		}
		return Result{Message: err.Error()}, nil
	}

	if _, err := c.recovery.Archive(phone); err != nil {
		c.logger.Errorf("Failed to archive artifact for %s: %v", phone, err)
	}

	creds := gateway.Credentials{APIID: account.APIID, APIHash: account.APIHash}

	auth, err := c.callAuthenticate(ctx, phone, creds, account.ProxyConfig)
	if err != nil {
		status, detail := classifyGatewayError(err)
		c.commitTransition(ctx, phone, "reauthenticate", status, detail, nil)
		return Result{Message: failureMessage(status, detail), Status: status}, nil
	}

	if auth == gateway.AuthChallengeIssued && code == "" {
		c.logger.Infof("Verification code sent to %s", phone)
		return Result{Message: "verification code sent", Status: account.Status}, nil
	}

	var status models.AccountStatus
	var username, detail string
	if auth == gateway.AuthAlreadyAuthorized {
		status = models.StatusActive
	} else {
		status, username, detail = c.runVerification(ctx, phone, code, password)
	}

	if status == models.StatusActive {
		now := time.Now()
		account.Status = models.StatusActive
		account.LastCheckedAt = &now
		account.DiagnosticInfo = nil
		if username != "" {
			account.Username = &username
		}
		if err := c.store.Upsert(ctx, account); err != nil {
			c.logger.Errorf("Failed to persist reauthenticated account %s: %v", phone, err)
			return Result{Message: err.Error(), Status: models.StatusError}, nil
		}
		if err := c.store.AppendLog(ctx, phone, "reauthenticate", models.StatusActive, nil); err != nil {
			c.logger.Errorf("Failed to log reauthentication for %s: %v", phone, err)
		}
		if err := c.store.MarkUsed(ctx, phone); err != nil {
			c.logger.Errorf("Failed to stamp last use for %s: %v", phone, err)
		}
		c.publish(ctx, phone, "reauthenticate", models.StatusActive, "")
		c.logger.Infof("Relogin successful for %s", phone)
		return Result{OK: true, Message: "relogin successful", Status: models.StatusActive}, nil
	}

	c.commitTransition(ctx, phone, "reauthenticate", status, detail, nil)
	return Result{Message: failureMessage(status, detail), Status: status}, nil
}

// Retire writes a final activity entry, deletes the record with its log
// cascade and discards the session artifact.
func (c *Controller) Retire(ctx context.Context, rawPhone string) (Result, error) {
	phone := commons.NormalizeIdentity(rawPhone)

	unlock := c.locks.lock(phone)
	defer unlock()

	account, err := c.store.Get(ctx, phone)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Result{Message: "account not found"}, ErrNotFound
		}
		return Result{Message: err.Error()}, nil
	}

	detail := "account deleted from database"
	if err := c.store.AppendLog(ctx, phone, "retire", account.Status, &detail); err != nil {
		c.logger.Errorf("Failed to write final log entry for %s: %v", phone, err)
	}
	if err := c.store.Delete(ctx, phone); err != nil {
		return Result{Message: err.Error()}, nil
	}
	if err := c.recovery.Discard(phone); err != nil {
		c.logger.Errorf("Failed to discard artifact for %s: %v", phone, err)
	}

	c.publish(ctx, phone, "retire", "", detail)
	c.logger.Infof("Account %s deleted", phone)
	return Result{OK: true, Message: "account deleted successfully"}, nil
}

// runVerification drives the verify / second-factor exchange and maps the
// outcome to a lifecycle state.
func (c *Controller) runVerification(ctx context.Context, phone, code, password string) (models.AccountStatus, string, string) {
	verify, err := c.callVerify(ctx, phone, code)
	if err != nil {
		status, detail := classifyGatewayError(err)
		return status, "", detail
	}

	switch verify.Outcome {
	case gateway.VerifyAuthorized:
		return models.StatusActive, verify.Username, ""
	case gateway.VerifyInvalidCode:
		c.logger.Errorf("Invalid verification code for %s", phone)
		return models.StatusCodeError, "", "invalid verification code"
	case gateway.VerifySecondFactorRequired:
		secret := password
		if secret == "" {
			secret = c.cfg.Fallback2FAPassword
		}
		if secret == "" {
			return models.StatusError, "", "second factor required but no password configured"
		}
		c.logger.Infof("2FA required for %s, using configured password", phone)
		second, err := c.callSecondFactor(ctx, phone, secret)
		if err != nil {
			status, detail := classifyGatewayError(err)
			return status, "", detail
		}
		if second.Outcome == gateway.VerifyAuthorized {
			return models.StatusActive, second.Username, ""
		}
		return models.StatusError, "", "second factor verification failed"
	default:
		return models.StatusError, "", fmt.Sprintf("unexpected verify outcome %d", verify.Outcome)
	}
}

// commitEnroll persists the enrollment outcome and its activity entry.
func (c *Controller) commitEnroll(ctx context.Context, account *models.Account, status models.AccountStatus, detail, message string) Result {
	account.Status = status
	if detail != "" {
		account.DiagnosticInfo = &detail
	}
	if status == models.StatusActive {
		now := time.Now()
		account.LastCheckedAt = &now
	}

	if err := c.store.Upsert(ctx, account); err != nil {
		c.logger.Errorf("Failed to persist account %s: %v", account.Phone, err)
		return Result{Message: err.Error(), Status: models.StatusError}
	}
	var detailPtr *string
	if detail != "" {
		detailPtr = &detail
	}
	if err := c.store.AppendLog(ctx, account.Phone, "enroll", status, detailPtr); err != nil {
		c.logger.Errorf("Failed to log enrollment for %s: %v", account.Phone, err)
	}
	if status == models.StatusActive {
		// A commit to active means the gateway performed a login with the
		// session, so the artifact was just used.
		if err := c.store.MarkUsed(ctx, account.Phone); err != nil {
			c.logger.Errorf("Failed to stamp last use for %s: %v", account.Phone, err)
		}
	}
	c.publish(ctx, account.Phone, "enroll", status, detail)

	if message == "" {
		message = failureMessage(status, detail)
	}
	return Result{OK: status == models.StatusActive, Message: message, Status: status}
}

// commitTransition commits a state change for an existing account. Commit
// failures are logged; the in-memory intent is not durable until the store
// confirms the write.
func (c *Controller) commitTransition(ctx context.Context, phone, action string, status models.AccountStatus, detail string, lastChecked *time.Time) {
	var detailPtr *string
	if detail != "" {
		detailPtr = &detail
	}
	if err := c.store.UpdateStatus(ctx, phone, action, status, detailPtr, lastChecked); err != nil {
		c.logger.Errorf("Failed to commit status %s for %s: %v", status, phone, err)
		return
	}
	c.publish(ctx, phone, action, status, detail)
}

// archiveArtifact puts the session artifact beyond reuse after a ban. The
// status itself stays banned until an operator steps in.
func (c *Controller) archiveArtifact(phone string) {
	if _, err := c.recovery.Archive(phone); err != nil {
		c.logger.Errorf("Failed to archive artifact for banned account %s: %v", phone, err)
	}
}

func (c *Controller) publish(ctx context.Context, phone, action string, status models.AccountStatus, detail string) {
	c.events.Publish(ctx, events.Event{Phone: phone, Action: action, Status: status, Detail: detail})
}

func (c *Controller) callAuthenticate(ctx context.Context, phone string, creds gateway.Credentials, proxy *models.ProxyConfig) (gateway.AuthResult, error) {
	gctx, cancel := context.WithTimeout(ctx, c.cfg.GatewayTimeout)
	defer cancel()
	return c.gateway.Authenticate(gctx, phone, creds, proxy)
}

func (c *Controller) callVerify(ctx context.Context, phone, code string) (gateway.VerifyResult, error) {
	gctx, cancel := context.WithTimeout(ctx, c.cfg.GatewayTimeout)
	defer cancel()
	return c.gateway.Verify(gctx, phone, code)
}

func (c *Controller) callSecondFactor(ctx context.Context, phone, secret string) (gateway.VerifyResult, error) {
	gctx, cancel := context.WithTimeout(ctx, c.cfg.GatewayTimeout)
	defer cancel()
	return c.gateway.SupplySecondFactor(gctx, phone, secret)
}

func (c *Controller) callProbe(ctx context.Context, phone string, creds gateway.Credentials, proxy *models.ProxyConfig) (gateway.ProbeOutcome, error) {
	gctx, cancel := context.WithTimeout(ctx, c.cfg.GatewayTimeout)
	defer cancel()
	return c.gateway.Probe(gctx, phone, creds, proxy)
}

// classifyGatewayError maps a gateway failure onto the state machine.
func classifyGatewayError(err error) (models.AccountStatus, string) {
	var rateLimited *gateway.RateLimitedError
	if errors.As(err, &rateLimited) {
		return models.StatusFloodWait, fmt.Sprintf("wait:%d", rateLimited.WaitSeconds)
	}
	var banned *gateway.BannedError
	if errors.As(err, &banned) {
		return models.StatusBanned, banned.Detail
	}
	return models.StatusError, err.Error()
}

func failureMessage(status models.AccountStatus, detail string) string {
	switch status {
	case models.StatusFloodWait:
		return "flood wait: " + detail
	case models.StatusBanned:
		return "account is banned"
	case models.StatusCodeError:
		return "invalid verification code"
	case models.StatusExpired:
		return "session has expired"
	case models.StatusNew:
		return "verification code sent"
	default:
		if detail != "" {
			return "error: " + detail
		}
		return "error"
	}
}
