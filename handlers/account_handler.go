// SPDX-License-Identifier: GPL-3.0-only

package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"accfleet-server/commons"
	"accfleet-server/lifecycle"
	"accfleet-server/models"
	"accfleet-server/recovery"
	"accfleet-server/scanner"
	"accfleet-server/store"
	"accfleet-server/vpn"

	"github.com/labstack/echo/v4"
)

// API bundles the components the HTTP handlers operate on.
type API struct {
	Store      *store.Store
	Controller *lifecycle.Controller
	Scanner    *scanner.Scanner
	Allocator  *vpn.Allocator
	Recovery   *recovery.Manager
}

func accountResponse(account *models.Account) AccountResponse {
	return AccountResponse{
		Phone:          account.Phone,
		Username:       account.Username,
		Status:         account.Status,
		DiagnosticInfo: account.DiagnosticInfo,
		Proxy:          account.ProxyConfig,
		LastCheckedAt:  account.LastCheckedAt,
		LastUsedAt:     account.LastUsedAt,
		CreatedAt:      account.CreatedAt,
	}
}

func operationResponse(result lifecycle.Result) OperationResponse {
	return OperationResponse{
		Success: result.OK,
		Message: result.Message,
		Status:  result.Status,
	}
}

// EnrollAccountHandler godoc
// @Summary      Enroll an account
// @Description  Adds a phone number to the fleet and runs the login flow. When the gateway issues a verification challenge and no code was supplied, the account is stored in state new awaiting the code.
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body  EnrollAccountRequest  true  "Account to enroll"
// @Success      201 {object} OperationResponse "Enrollment outcome"
// @Failure      400 {object} echo.HTTPError    "Invalid phone number"
// @Failure      409 {object} echo.HTTPError    "Account already enrolled"
// @Router       /v1/accounts [post]
func (a *API) EnrollAccountHandler(c echo.Context) error {
	logger := c.Logger()

	req := new(EnrollAccountRequest)
	if err := c.Bind(req); err != nil {
		logger.Error("Failed to bind enroll request:", err)
		return &echo.HTTPError{
			Code:    http.StatusBadRequest,
			Message: "Invalid request body",
		}
	}

	var codeFn lifecycle.CodeFunc
	if req.Code != "" {
		code := req.Code
		codeFn = func(ctx context.Context, phone string) (string, error) {
			return code, nil
		}
	}

	result, err := a.Controller.Enroll(c.Request().Context(), req.Phone, req.UseVPN, codeFn)
	if err != nil {
		switch {
		case errors.Is(err, lifecycle.ErrInvalidIdentity):
			return &echo.HTTPError{
				Code:    http.StatusBadRequest,
				Message: "Invalid phone number",
			}
		case errors.Is(err, lifecycle.ErrAlreadyEnrolled):
			return &echo.HTTPError{
				Code:    http.StatusConflict,
				Message: "Account already enrolled",
			}
		default:
			logger.Error("Enrollment failed:", err)
			return &echo.HTTPError{
				Code:    http.StatusInternalServerError,
				Message: "Failed to enroll account",
			}
		}
	}

	return c.JSON(http.StatusCreated, operationResponse(result))
}

// ListAccountsHandler godoc
// @Summary      List accounts
// @Description  Lists enrolled accounts, optionally filtered by lifecycle status.
// @Tags         accounts
// @Produce      json
// @Security     BearerAuth
// @Param        status  query  string  false  "Filter by status (active, banned, expired, ...)"
// @Success      200 {object} AccountListResponse "Enrolled accounts"
// @Failure      400 {object} echo.HTTPError      "Unknown status filter"
// @Router       /v1/accounts [get]
func (a *API) ListAccountsHandler(c echo.Context) error {
	logger := c.Logger()

	status := models.AccountStatus(c.QueryParam("status"))
	if status != "" && !models.IsValidStatus(status) {
		return &echo.HTTPError{
			Code:    http.StatusBadRequest,
			Message: "Unknown status filter",
		}
	}

	accounts, err := a.Store.List(c.Request().Context(), status)
	if err != nil {
		logger.Error("Failed to list accounts:", err)
		return &echo.HTTPError{
			Code:    http.StatusInternalServerError,
			Message: "Failed to list accounts",
		}
	}

	resp := AccountListResponse{Accounts: make([]AccountResponse, 0, len(accounts)), Total: len(accounts)}
	for i := range accounts {
		resp.Accounts = append(resp.Accounts, accountResponse(&accounts[i]))
	}
	return c.JSON(http.StatusOK, resp)
}

// GetAccountHandler godoc
// @Summary      Get an account
// @Description  Retrieves one enrolled account by phone number.
// @Tags         accounts
// @Produce      json
// @Security     BearerAuth
// @Param        phone  path  string  true  "Phone number"
// @Success      200 {object} AccountResponse "Account details"
// @Failure      404 {object} echo.HTTPError  "Account not found"
// @Router       /v1/accounts/{phone} [get]
func (a *API) GetAccountHandler(c echo.Context) error {
	logger := c.Logger()

	account, err := a.Store.Get(c.Request().Context(), commons.NormalizeIdentity(c.Param("phone")))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &echo.HTTPError{
				Code:    http.StatusNotFound,
				Message: "Account not found",
			}
		}
		logger.Error("Failed to get account:", err)
		return &echo.HTTPError{
			Code:    http.StatusInternalServerError,
			Message: "Failed to get account",
		}
	}
	return c.JSON(http.StatusOK, accountResponse(account))
}

// DeleteAccountHandler godoc
// @Summary      Retire an account
// @Description  Removes an account from the fleet, deletes its activity log and discards the session artifact.
// @Tags         accounts
// @Produce      json
// @Security     BearerAuth
// @Param        phone  path  string  true  "Phone number"
// @Success      200 {object} OperationResponse "Deletion outcome"
// @Failure      404 {object} echo.HTTPError    "Account not found"
// @Router       /v1/accounts/{phone} [delete]
func (a *API) DeleteAccountHandler(c echo.Context) error {
	logger := c.Logger()

	result, err := a.Controller.Retire(c.Request().Context(), c.Param("phone"))
	if err != nil {
		if errors.Is(err, lifecycle.ErrNotFound) {
			return &echo.HTTPError{
				Code:    http.StatusNotFound,
				Message: "Account not found",
			}
		}
		logger.Error("Failed to retire account:", err)
		return &echo.HTTPError{
			Code:    http.StatusInternalServerError,
			Message: "Failed to retire account",
		}
	}
	return c.JSON(http.StatusOK, operationResponse(result))
}

// CheckAccountHandler godoc
// @Summary      Check an account
// @Description  Probes the account's session and commits the observed lifecycle state. Gateway faults are classified and committed, never surfaced as transport errors.
// @Tags         accounts
// @Produce      json
// @Security     BearerAuth
// @Param        phone  path  string  true  "Phone number"
// @Success      200 {object} OperationResponse "Check outcome"
// @Failure      404 {object} echo.HTTPError    "Account not found"
// @Router       /v1/accounts/{phone}/check [post]
func (a *API) CheckAccountHandler(c echo.Context) error {
	logger := c.Logger()

	result, err := a.Controller.Check(c.Request().Context(), c.Param("phone"))
	if err != nil {
		if errors.Is(err, lifecycle.ErrNotFound) {
			return &echo.HTTPError{
				Code:    http.StatusNotFound,
				Message: "Account not found",
			}
		}
		logger.Error("Failed to check account:", err)
		return &echo.HTTPError{
			Code:    http.StatusInternalServerError,
			Message: "Failed to check account",
		}
	}
	return c.JSON(http.StatusOK, operationResponse(result))
}

// ReauthenticateAccountHandler godoc
// @Summary      Reauthenticate an account
// @Description  Re-runs the login flow for an enrolled account. The existing session artifact is archived first. Without a code in the body, a verification challenge is requested and the call returns pending.
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        phone  path  string                 true   "Phone number"
// @Param        body   body  ReauthenticateRequest  false  "Verification code and optional 2FA password"
// @Success      200 {object} OperationResponse "Relogin outcome"
// @Failure      404 {object} echo.HTTPError    "Account not found"
// @Router       /v1/accounts/{phone}/reauth [post]
func (a *API) ReauthenticateAccountHandler(c echo.Context) error {
	logger := c.Logger()

	req := new(ReauthenticateRequest)
	if err := c.Bind(req); err != nil {
		logger.Error("Failed to bind reauth request:", err)
		return &echo.HTTPError{
			Code:    http.StatusBadRequest,
			Message: "Invalid request body",
		}
	}

	result, err := a.Controller.Reauthenticate(c.Request().Context(), c.Param("phone"), req.Code, req.Password)
	if err != nil {
		if errors.Is(err, lifecycle.ErrNotFound) {
			return &echo.HTTPError{
				Code:    http.StatusNotFound,
				Message: "Account not found",
			}
		}
		logger.Error("Failed to reauthenticate account:", err)
		return &echo.HTTPError{
			Code:    http.StatusInternalServerError,
			Message: "Failed to reauthenticate account",
		}
	}
	return c.JSON(http.StatusOK, operationResponse(result))
}

// QuarantineAccountHandler godoc
// @Summary      Quarantine an account
// @Description  Archives the account's session artifact and marks it recovery_needed so an operator can relogin later.
// @Tags         accounts
// @Produce      json
// @Security     BearerAuth
// @Param        phone  path  string  true  "Phone number"
// @Success      200 {object} OperationResponse "Quarantine outcome"
// @Failure      404 {object} echo.HTTPError    "Account not found"
// @Router       /v1/accounts/{phone}/quarantine [post]
func (a *API) QuarantineAccountHandler(c echo.Context) error {
	logger := c.Logger()

	err := a.Recovery.Quarantine(c.Request().Context(), commons.NormalizeIdentity(c.Param("phone")))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &echo.HTTPError{
				Code:    http.StatusNotFound,
				Message: "Account not found",
			}
		}
		logger.Error("Failed to quarantine account:", err)
		return &echo.HTTPError{
			Code:    http.StatusInternalServerError,
			Message: "Failed to quarantine account",
		}
	}
	return c.JSON(http.StatusOK, OperationResponse{
		Success: true,
		Message: "account quarantined",
		Status:  models.StatusRecoveryNeeded,
	})
}

// RotateVPNHandler godoc
// @Summary      Rotate an account's VPN
// @Description  Assigns a fresh VPN descriptor from the pool and persists it on the account.
// @Tags         accounts
// @Produce      json
// @Security     BearerAuth
// @Param        phone  path  string  true  "Phone number"
// @Success      200 {object} RotateVPNResponse "New VPN descriptor"
// @Failure      404 {object} echo.HTTPError    "Account not found"
// @Router       /v1/accounts/{phone}/vpn/rotate [post]
func (a *API) RotateVPNHandler(c echo.Context) error {
	logger := c.Logger()

	proxy, err := a.Allocator.Rotate(c.Request().Context(), commons.NormalizeIdentity(c.Param("phone")))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &echo.HTTPError{
				Code:    http.StatusNotFound,
				Message: "Account not found",
			}
		}
		logger.Error("Failed to rotate VPN:", err)
		return &echo.HTTPError{
			Code:    http.StatusInternalServerError,
			Message: "Failed to rotate VPN",
		}
	}
	return c.JSON(http.StatusOK, RotateVPNResponse{
		Message: "VPN rotated successfully",
		Proxy:   proxy,
	})
}

// GetAccountLogsHandler godoc
// @Summary      Get account activity log
// @Description  Returns the most recent activity entries for an account, newest first.
// @Tags         accounts
// @Produce      json
// @Security     BearerAuth
// @Param        phone  path   string  true   "Phone number"
// @Param        limit  query  int     false  "Maximum entries to return (default 10)"
// @Success      200 {object} ActivityLogListResponse "Activity entries"
// @Failure      404 {object} echo.HTTPError          "Account not found"
// @Router       /v1/accounts/{phone}/logs [get]
func (a *API) GetAccountLogsHandler(c echo.Context) error {
	logger := c.Logger()
	ctx := c.Request().Context()
	phone := commons.NormalizeIdentity(c.Param("phone"))

	exists, err := a.Store.Exists(ctx, phone)
	if err != nil {
		logger.Error("Failed to look up account:", err)
		return &echo.HTTPError{
			Code:    http.StatusInternalServerError,
			Message: "Failed to get activity log",
		}
	}
	if !exists {
		return &echo.HTTPError{
			Code:    http.StatusNotFound,
			Message: "Account not found",
		}
	}

	limit := 10
	if l := c.QueryParam("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	logs, err := a.Store.Logs(ctx, phone, limit)
	if err != nil {
		logger.Error("Failed to get activity log:", err)
		return &echo.HTTPError{
			Code:    http.StatusInternalServerError,
			Message: "Failed to get activity log",
		}
	}

	resp := ActivityLogListResponse{Logs: make([]ActivityLogResponse, 0, len(logs))}
	for _, entry := range logs {
		resp.Logs = append(resp.Logs, ActivityLogResponse{
			EID:       entry.EID.String(),
			Action:    entry.Action,
			Status:    entry.Status,
			Detail:    entry.Detail,
			CreatedAt: entry.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, resp)
}
