// SPDX-License-Identifier: GPL-3.0-only

package routes

import (
	"accfleet-server/commons"
	"accfleet-server/handlers"
	"accfleet-server/middlewares"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo, api *handlers.API) {
	commons.Logger.Debug("Registering v1 routes")
	auth := middlewares.AdminAuthMiddleware()
	api_v1 := e.Group("/v1")
	api_v1.POST("/accounts", api.EnrollAccountHandler, auth)
	api_v1.GET("/accounts", api.ListAccountsHandler, auth)
	api_v1.GET("/accounts/:phone", api.GetAccountHandler, auth)
	api_v1.DELETE("/accounts/:phone", api.DeleteAccountHandler, auth)
	api_v1.POST("/accounts/:phone/check", api.CheckAccountHandler, auth)
	api_v1.POST("/accounts/:phone/reauth", api.ReauthenticateAccountHandler, auth)
	api_v1.POST("/accounts/:phone/quarantine", api.QuarantineAccountHandler, auth)
	api_v1.POST("/accounts/:phone/vpn/rotate", api.RotateVPNHandler, auth)
	api_v1.GET("/accounts/:phone/logs", api.GetAccountLogsHandler, auth)
	api_v1.POST("/fleet/scan", api.ScanFleetHandler, auth)
	api_v1.POST("/fleet/backup", api.BackupFleetHandler, auth)
	api_v1.GET("/fleet/summary", api.FleetSummaryHandler, auth)
	commons.Logger.Info("v1 routes registered successfully")
}
