// Zigbee Mesh Core - zigbee2mqtt bridge state machine
//
// This is the main entry point for the zigbee mesh core service. It
// connects to the MQTT broker used by a zigbee2mqtt bridge, maintains a
// live model of the mesh (devices, groups, last-seen telemetry), and
// exposes the bridge's command surface as awaitable operations.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/zigbee-mesh-core/internal/bridge"
	"github.com/nerrad567/zigbee-mesh-core/internal/infrastructure/config"
	"github.com/nerrad567/zigbee-mesh-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/zigbee-mesh-core/internal/infrastructure/logging"
	"github.com/nerrad567/zigbee-mesh-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/zigbee-mesh-core/internal/render"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Zigbee Mesh Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional telemetry history)
	var history bridge.History
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled, telemetry history off")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		history = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	// Network map renderer (optional)
	var renderer render.Renderer
	if cfg.Renderer.URL != "" {
		renderer = render.NewHTTPRenderer(cfg.Renderer.URL, cfg.GetRendererTimeout())
		log.Info("network map renderer configured",
			"url", cfg.Renderer.URL,
			"engine", cfg.Renderer.Engine,
		)
	} else {
		log.Info("no renderer configured, network map rendering disabled")
	}

	// Start the bridge state machine
	meshBridge, err := bridge.New(bridge.Options{
		BaseTopic:  cfg.Zigbee.BaseTopic,
		QoS:        byte(cfg.Zigbee.QoS),
		MQTTClient: &mqttAdapter{client: mqttClient},
		Renderer:   renderer,
		RenderOptions: render.Options{
			Engine: cfg.Renderer.Engine,
			Format: cfg.Renderer.Format,
		},
		History:           history,
		Logger:            log.With("component", "bridge"),
		RefreshTimeout:    cfg.GetRefreshTimeout(),
		NetworkMapTimeout: cfg.GetNetworkMapTimeout(),
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	mqttClient.SetOnConnect(meshBridge.OnConnect)
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	if err := meshBridge.Start(); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		meshBridge.Stop()
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal",
		"base_topic", cfg.Zigbee.BaseTopic,
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("Zigbee Mesh Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses ZIGBEECORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ZIGBEECORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies infrastructure connections before the core settles
// into its dispatch loop. The influx client is nil when history is
// disabled; that is healthy.
func healthCheck(ctx context.Context, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// mqttAdapter bridges the infrastructure client's named handler type to the
// plain function signature the bridge consumes.
type mqttAdapter struct {
	client *mqtt.Client
}

func (a *mqttAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

func (a *mqttAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error {
	return a.client.Subscribe(topic, qos, mqtt.MessageHandler(handler))
}

func (a *mqttAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
