// SPDX-License-Identifier: GPL-3.0-only

package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"accfleet-server/commons"
	"accfleet-server/lifecycle"
	"accfleet-server/models"
	"accfleet-server/notifications"
	"accfleet-server/store"

	"github.com/labstack/gommon/log"
	"golang.org/x/sync/errgroup"
)

// Tally summarizes one fleet sweep. The buckets always add up to the number
// of accounts scanned.
type Tally struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Banned  int `json:"banned"`
	Expired int `json:"expired"`
	Errors  int `json:"errors"`
	Other   int `json:"other"`
}

type Scanner struct {
	store      *store.Store
	controller *lifecycle.Controller
	notifier   *notifications.Notifier
	limit      int
	staleAfter time.Duration
	logger     *log.Logger
}

func New(s *store.Store, c *lifecycle.Controller, n *notifications.Notifier, logger *log.Logger) *Scanner {
	limit := commons.GetEnvInt("SCAN_CONCURRENCY", 5)
	if limit < 1 {
		limit = 1
	}
	staleHours := commons.GetEnvInt("STALE_CHECK_HOURS", 24)
	return &Scanner{
		store:      s,
		controller: c,
		notifier:   n,
		limit:      limit,
		staleAfter: time.Duration(staleHours) * time.Hour,
		logger:     logger,
	}
}

// ScanAll checks every enrolled account with bounded concurrency. One
// account's failure never stops the sweep; it lands in the errors bucket and
// the rest proceed.
func (s *Scanner) ScanAll(ctx context.Context) (Tally, error) {
	accounts, err := s.store.List(ctx, "")
	if err != nil {
		return Tally{}, err
	}

	s.logger.Infof("Scanning %d accounts with concurrency %d", len(accounts), s.limit)

	var mu sync.Mutex
	tally := Tally{Total: len(accounts)}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(s.limit)

	for _, account := range accounts {
		phone := account.Phone
		group.Go(func() error {
			result, err := s.controller.Check(gctx, phone)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Errorf("Scan of %s failed: %v", phone, err)
				tally.Errors++
				return nil
			}
			switch result.Status {
			case models.StatusActive:
				tally.Active++
			case models.StatusBanned:
				tally.Banned++
			case models.StatusExpired, models.StatusRecoveryNeeded:
				tally.Expired++
			case models.StatusError, models.StatusCodeError:
				tally.Errors++
			default:
				tally.Other++
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return tally, err
	}

	s.logger.Infof("Scan complete: %d active, %d banned, %d expired, %d errors, %d other",
		tally.Active, tally.Banned, tally.Expired, tally.Errors, tally.Other)
	s.alertStale(ctx)
	s.notifySummary(ctx, tally)
	return tally, nil
}

// Stale returns unhealthy accounts whose last successful check is older than
// the staleness window. Accounts never checked count as stale. Terminal
// accounts are skipped; no automatic action can move them.
func (s *Scanner) Stale(ctx context.Context) ([]models.Account, error) {
	accounts, err := s.store.List(ctx, "")
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-s.staleAfter)
	var stale []models.Account
	for _, account := range accounts {
		if models.IsHealthy(account.Status) || models.IsTerminal(account.Status) {
			continue
		}
		if account.LastCheckedAt == nil || account.LastCheckedAt.Before(cutoff) {
			stale = append(stale, account)
		}
	}
	return stale, nil
}

// alertStale notifies the operator about each account that stayed unhealthy
// past the staleness window after the sweep.
func (s *Scanner) alertStale(ctx context.Context) {
	stale, err := s.Stale(ctx)
	if err != nil {
		s.logger.Errorf("Failed to list stale accounts: %v", err)
		return
	}
	hours := int(s.staleAfter.Hours())
	for _, account := range stale {
		s.notifier.Notify(ctx, fmt.Sprintf("Account %s is %s and has not passed a check in over %dh",
			account.Phone, account.Status, hours))
	}
}

// Summary returns the current per-status account counts without touching the
// gateway.
func (s *Scanner) Summary(ctx context.Context) (map[models.AccountStatus]int64, error) {
	return s.store.CountByStatus(ctx)
}

func (s *Scanner) notifySummary(ctx context.Context, tally Tally) {
	message := fmt.Sprintf("Fleet scan finished: %d accounts, %d active, %d banned, %d expired, %d errors",
		tally.Total, tally.Active, tally.Banned, tally.Expired, tally.Errors)
	if tally.Banned > 0 || tally.Expired > 0 {
		message += " - attention needed"
	}
	s.notifier.Notify(ctx, message)
}
