// SPDX-License-Identifier: GPL-3.0-only

package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ScanFleetHandler godoc
// @Summary      Scan the fleet
// @Description  Checks every enrolled account with bounded concurrency and returns the per-bucket tally. One account's failure does not stop the sweep.
// @Tags         fleet
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} scanner.Tally  "Scan tally"
// @Failure      500 {object} echo.HTTPError "Internal server error"
// @Router       /v1/fleet/scan [post]
func (a *API) ScanFleetHandler(c echo.Context) error {
	logger := c.Logger()

	tally, err := a.Scanner.ScanAll(c.Request().Context())
	if err != nil {
		logger.Error("Fleet scan failed:", err)
		return &echo.HTTPError{
			Code:    http.StatusInternalServerError,
			Message: "Fleet scan failed",
		}
	}
	return c.JSON(http.StatusOK, tally)
}

// BackupFleetHandler godoc
// @Summary      Back up fleet state
// @Description  Copies the database file and all live session artifacts into a timestamped backup directory, then prunes backups beyond the retention count.
// @Tags         fleet
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} BackupResponse "Backup location"
// @Failure      500 {object} echo.HTTPError "Internal server error"
// @Router       /v1/fleet/backup [post]
func (a *API) BackupFleetHandler(c echo.Context) error {
	logger := c.Logger()

	path, err := a.Recovery.Backup()
	if err != nil {
		logger.Error("Backup failed:", err)
		return &echo.HTTPError{
			Code:    http.StatusInternalServerError,
			Message: "Backup failed",
		}
	}
	return c.JSON(http.StatusOK, BackupResponse{Message: "backup complete", Path: path})
}

// FleetSummaryHandler godoc
// @Summary      Fleet summary
// @Description  Returns account counts per lifecycle status without probing any sessions.
// @Tags         fleet
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} FleetSummaryResponse "Per-status counts"
// @Failure      500 {object} echo.HTTPError       "Internal server error"
// @Router       /v1/fleet/summary [get]
func (a *API) FleetSummaryHandler(c echo.Context) error {
	logger := c.Logger()

	counts, err := a.Scanner.Summary(c.Request().Context())
	if err != nil {
		logger.Error("Failed to build fleet summary:", err)
		return &echo.HTTPError{
			Code:    http.StatusInternalServerError,
			Message: "Failed to build fleet summary",
		}
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	return c.JSON(http.StatusOK, FleetSummaryResponse{Counts: counts, Total: total})
}
