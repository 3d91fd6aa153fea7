// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"context"
	"fmt"
	"os"
	"slices"

	"accfleet-server/commons"
	"accfleet-server/crypto"
	"accfleet-server/db"
	"accfleet-server/events"
	"accfleet-server/gateway"
	"accfleet-server/handlers"
	"accfleet-server/lifecycle"
	"accfleet-server/notifications"
	"accfleet-server/recovery"
	"accfleet-server/routes"
	"accfleet-server/scanner"
	"accfleet-server/store"
	"accfleet-server/vpn"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
)

func main() {
	commons.LoadEnvFile()

	e := echo.New()
	e.HideBanner = true

	e.Logger.SetLevel(commons.Logger.Level())
	e.Logger.SetHeader("${time_rfc3339} ${level} ${short_file}:${line} -")

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logMsg := func(format string, args ...any) {
				switch {
				case v.Status >= 500:
					e.Logger.Errorf(format, args...)
				case v.Status >= 400:
					e.Logger.Warnf(format, args...)
				default:
					e.Logger.Infof(format, args...)
				}
			}
			logMsg("%s %s - %d - %.2fms - %s",
				v.Method,
				v.URI,
				v.Status,
				float64(v.Latency.Microseconds())/1000.0,
				v.RemoteIP,
			)
			return nil
		},
	}))
	debugMode := slices.Contains(os.Args[1:], "--debug")
	if debugMode {
		e.Logger.Warn("Debug mode is enabled.")
		e.Debug = true
		e.Logger.SetLevel(log.DEBUG)
		commons.Logger.SetLevel(log.DEBUG)
	}

	e.Use(middleware.Recover())

	db.InitDB()
	if slices.Contains(os.Args[1:], "--migrate-db") {
		commons.Logger.Debug("--migrate-db flag detected, running migrations")
		db.MigrateDB()
	}

	cryptoInstance := crypto.NewCrypto()
	accountStore := store.New(db.Conn, cryptoInstance, commons.Logger)
	sessionGateway, err := gateway.NewClient(gateway.ClientConfig{}, commons.Logger)
	if err != nil {
		commons.Logger.Fatalf("Failed to initialize session gateway client: %v", err)
	}
	allocator := vpn.NewAllocator(accountStore, commons.Logger)
	recoveryManager := recovery.NewManager(accountStore, commons.Logger)

	publisher, pubErr := events.NewPublisher(commons.Logger)
	if pubErr != nil {
		commons.Logger.Warnf("Events publisher unavailable, lifecycle events disabled: %v", pubErr)
		publisher = nil
	} else {
		defer publisher.Close()
	}

	controller := lifecycle.NewController(
		accountStore,
		sessionGateway,
		allocator,
		recoveryManager,
		publisher,
		lifecycle.ConfigFromEnv(),
		commons.Logger,
	)
	notifier := notifications.NewNotifier(commons.Logger)
	fleetScanner := scanner.New(accountStore, controller, notifier, commons.Logger)

	if slices.Contains(os.Args[1:], "--backup") {
		commons.Logger.Info("--backup flag detected, backing up fleet state")
		path, err := recoveryManager.Backup()
		if err != nil {
			commons.Logger.Fatalf("Backup failed: %v", err)
		}
		fmt.Println("backup written to", path)
		return
	}

	if slices.Contains(os.Args[1:], "--scan-all") {
		commons.Logger.Info("--scan-all flag detected, running a one-off fleet scan")
		tally, err := fleetScanner.ScanAll(context.Background())
		if err != nil {
			commons.Logger.Fatalf("Fleet scan failed: %v", err)
		}
		fmt.Printf("scanned %d accounts: %d active, %d banned, %d expired, %d errors, %d other\n",
			tally.Total, tally.Active, tally.Banned, tally.Expired, tally.Errors, tally.Other)
		return
	}

	api := &handlers.API{
		Store:      accountStore,
		Controller: controller,
		Scanner:    fleetScanner,
		Allocator:  allocator,
		Recovery:   recoveryManager,
	}
	routes.RegisterRoutes(e, api)

	port := commons.GetEnv("PORT")
	if port == "" {
		port = ":8080"
	}
	if port[0] != ':' {
		port = ":" + port
	}
	e.Logger.Fatal(e.Start(port))
}
