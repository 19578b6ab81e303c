package main

import (
	"context"
	"fmt"
	"time"

	_ "github.com/nerrad567/quickbars-hub/migrations"

	"github.com/nerrad567/quickbars-hub/internal/api"
	"github.com/nerrad567/quickbars-hub/internal/automation"
	"github.com/nerrad567/quickbars-hub/internal/channel"
	"github.com/nerrad567/quickbars-hub/internal/command"
	"github.com/nerrad567/quickbars-hub/internal/device"
	"github.com/nerrad567/quickbars-hub/internal/discovery"
	"github.com/nerrad567/quickbars-hub/internal/events"
	"github.com/nerrad567/quickbars-hub/internal/infrastructure/config"
	"github.com/nerrad567/quickbars-hub/internal/infrastructure/database"
	"github.com/nerrad567/quickbars-hub/internal/infrastructure/influxdb"
	"github.com/nerrad567/quickbars-hub/internal/infrastructure/logging"
	"github.com/nerrad567/quickbars-hub/internal/infrastructure/mqtt"
	"github.com/nerrad567/quickbars-hub/internal/pairing"
	"github.com/nerrad567/quickbars-hub/internal/session"
)

// shutdownTimeout bounds closing every device channel on exit.
const shutdownTimeout = 10 * time.Second

// serve runs the hub until ctx is cancelled.
//
// Deferred Close() calls run in reverse order on shutdown: API, MQTT
// bridge, device channels, InfluxDB, event bus, database. Discovery stops
// with ctx.
func serve(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting QuickBars hub",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Fail before opening anything if TVs could never reach the hub.
	if err := pairing.CheckHubURL(cfg.Hub.BaseURL); err != nil {
		return fmt.Errorf("hub.base_url: %w", err)
	}

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	bus := events.NewBus()
	defer bus.Close()

	deviceRepo := device.NewSQLiteRepository(db.DB)
	registry := device.NewRegistry(deviceRepo)
	registry.SetLogger(log.With("component", "registry"))
	registry.SetCloseGrace(cfg.Transport.CloseGrace)

	actionStore := events.NewSQLiteActionStore(db.DB)
	router := events.NewRouter(bus, registry, deviceRepo, actionStore)
	router.SetLogger(log.With("component", "router"))

	dispatcher := command.NewDispatcher(registry, cfg.Hub.BaseURL)
	dispatcher.SetLogger(log.With("component", "dispatcher"))
	dispatcher.SetEntityLookup(deviceRepo)
	dispatcher.SetPublisher(bus)
	dispatcher.SetTimeout(cfg.Dispatch.Timeout)
	if cfg.Dispatch.InlineIcons {
		dispatcher.SetIconSource(command.NewIconFetcher(cfg.Dispatch.IconTimeout))
	}

	handshaker := pairing.NewHandshaker(pairing.Config{
		HubID:          cfg.Hub.ID,
		HubName:        cfg.Hub.Name,
		HubURL:         cfg.Hub.BaseURL,
		DefaultPort:    cfg.Pairing.DefaultPort,
		PingTimeout:    cfg.Pairing.PingTimeout,
		RequestTimeout: cfg.Pairing.RequestTimeout,
	})
	handshaker.SetLogger(log.With("component", "pairing"))

	manager := session.NewManager(registry, handshaker, router, channel.FromTransport(cfg.Transport))
	manager.SetLogger(log.With("component", "session"))
	manager.SetPublisher(bus)

	influxClient, err := startInfluxDB(cfg.InfluxDB, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		dispatcher.SetMetrics(influxClient)
		manager.SetMetrics(influxClient)
	}

	restored, err := manager.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restoring paired devices: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		log.Info("closing device channels")
		manager.Close(closeCtx)
	}()
	log.Info("paired devices restored", "devices", restored)

	var scanner *discovery.Scanner
	if cfg.Discovery.Enabled {
		scanner = discovery.NewScanner(discovery.NewZeroconfBrowser(), discovery.FromConfig(cfg.Discovery))
		scanner.SetLogger(log.With("component", "discovery"))
		scanner.OnPresence(func(c discovery.Candidate) {
			manager.HandlePresence(ctx, c)
		})
		go scanner.Run(ctx)
		log.Info("discovery started", "service", cfg.Discovery.Service, "interval", cfg.Discovery.ScanInterval)
	} else {
		log.Info("discovery disabled")
	}

	mqttClient, bridge, err := startAutomationBridge(ctx, cfg.MQTT, dispatcher, bus, log)
	if err != nil {
		return err
	}
	if mqttClient != nil {
		defer func() {
			bridge.Stop()
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	}

	deps := api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Logger:     log,
		Registry:   registry,
		Sessions:   manager,
		Dispatcher: dispatcher,
		Events:     bus,
		Entities:   deviceRepo,
		Actions:    actionStore,
		Version:    version,
	}
	if scanner != nil {
		deps.Discovery = scanner
	}
	apiServer, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// startInfluxDB connects the telemetry client. It returns nil when InfluxDB
// is disabled.
func startInfluxDB(cfg config.InfluxDBConfig, log *logging.Logger) (*influxdb.Client, error) {
	if !cfg.Enabled {
		log.Info("InfluxDB disabled")
		return nil, nil //nolint:nilnil // disabled is not an error
	}

	client, err := influxdb.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.URL,
		"org", cfg.Org,
		"bucket", cfg.Bucket,
	)
	return client, nil
}

// startAutomationBridge connects to the broker and starts relaying service
// calls and events. Both results are nil when MQTT is disabled.
func startAutomationBridge(ctx context.Context, cfg config.MQTTConfig, dispatcher automation.Dispatcher, bus *events.Bus, log *logging.Logger) (*mqtt.Client, *automation.Bridge, error) {
	if !cfg.Enabled {
		log.Info("MQTT disabled")
		return nil, nil, nil
	}

	client, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log.With("component", "mqtt"))
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
	)

	bridge := automation.NewBridge(client, dispatcher, bus)
	bridge.SetLogger(log.With("component", "automation"))
	if err := bridge.Start(ctx); err != nil {
		client.Close() //nolint:errcheck // already failing
		return nil, nil, fmt.Errorf("starting automation bridge: %w", err)
	}
	return client, bridge, nil
}

// healthCheck verifies all infrastructure connections are healthy.
// mqttClient and influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
