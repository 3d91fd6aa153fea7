// SPDX-License-Identifier: GPL-3.0-only

package vpn

import (
	"context"
	"fmt"
	"math/rand"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"accfleet-server/commons"
	"accfleet-server/models"
	"accfleet-server/store"

	"github.com/labstack/gommon/log"
)

// defaultPool is the Cloudflare DNS edge. The pool is assumed homogeneous, so
// selection is uniform random with no health weighting.
var defaultPool = []string{"1.1.1.1", "1.0.0.1", "2606:4700:4700::1111", "2606:4700:4700::1001"}

// Allocator assigns logical outbound addresses to accounts. The descriptor is
// an address assignment only, not a tunnel.
type Allocator struct {
	pool   []string
	store  *store.Store
	logger *log.Logger
}

func NewAllocator(s *store.Store, logger *log.Logger) *Allocator {
	pool := defaultPool
	if raw := commons.GetEnv("VPN_ADDRESSES"); raw != "" {
		pool = nil
		for _, addr := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(addr); trimmed != "" {
				pool = append(pool, trimmed)
			}
		}
		if len(pool) == 0 {
			pool = defaultPool
		}
	}
	return &Allocator{pool: pool, store: s, logger: logger}
}

// Pool returns the configured address pool.
func (a *Allocator) Pool() []string {
	out := make([]string, len(a.pool))
	copy(out, a.pool)
	return out
}

// Assign picks an outbound address uniformly at random from the pool.
func (a *Allocator) Assign() *models.ProxyConfig {
	addr := a.pool[rand.Intn(len(a.pool))]
	a.logger.Infof("VPN assigned with server %s", addr)
	return &models.ProxyConfig{
		Kind:       "http",
		Address:    addr,
		Port:       80,
		ReverseDNS: true,
	}
}

// Rotate assigns a fresh address to phone, overwrites the stored descriptor
// and records the rotation. Reachability of the new address is advisory and
// never blocks the rotation.
func (a *Allocator) Rotate(ctx context.Context, phone string) (*models.ProxyConfig, error) {
	account, err := a.store.Get(ctx, phone)
	if err != nil {
		return nil, err
	}

	proxy := a.Assign()
	if err := a.store.SetProxy(ctx, phone, proxy); err != nil {
		return nil, err
	}

	detail := fmt.Sprintf("New VPN: %s", proxy.Address)
	if err := a.store.AppendLog(ctx, phone, "rotate_vpn", account.Status, &detail); err != nil {
		return nil, err
	}

	a.logger.Infof("VPN for account %s rotated to %s", phone, proxy.Address)
	return proxy, nil
}

// CheckReachability pings the descriptor's address once. The result is
// advisory only; a false return never blocks assignment.
func (a *Allocator) CheckReachability(ctx context.Context, proxy *models.ProxyConfig) bool {
	if proxy == nil || proxy.Address == "" {
		return false
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(pingCtx, "ping", "-n", "1", "-w", "1000", proxy.Address)
	} else {
		cmd = exec.CommandContext(pingCtx, "ping", "-c", "1", "-W", "1", proxy.Address)
	}

	if err := cmd.Run(); err != nil {
		a.logger.Warnf("Connection to VPN %s failed: %v", proxy.Address, err)
		return false
	}
	a.logger.Debugf("Connection to VPN %s succeeded", proxy.Address)
	return true
}
