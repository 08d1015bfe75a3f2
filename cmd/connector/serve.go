package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sclab-io/sclab-sqlserver-connector/internal/api"
	"github.com/sclab-io/sclab-sqlserver-connector/internal/auth"
	"github.com/sclab-io/sclab-sqlserver-connector/internal/infrastructure/config"
	"github.com/sclab-io/sclab-sqlserver-connector/internal/infrastructure/database"
	"github.com/sclab-io/sclab-sqlserver-connector/internal/infrastructure/influxdb"
	"github.com/sclab-io/sclab-sqlserver-connector/internal/infrastructure/logging"
	"github.com/sclab-io/sclab-sqlserver-connector/internal/infrastructure/mqtt"
	"github.com/sclab-io/sclab-sqlserver-connector/internal/infrastructure/natsclient"
	"github.com/sclab-io/sclab-sqlserver-connector/internal/metrics"
	"github.com/sclab-io/sclab-sqlserver-connector/internal/query"
	"github.com/sclab-io/sclab-sqlserver-connector/internal/telemetry"
)

// newServeCommand creates the serve command.
func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve query endpoints and publish telemetry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

// broker is a connected publish transport.
type broker interface {
	telemetry.Publisher
	api.HealthChecker
	Close() error
}

// runServe is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - opts: Global command options
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func runServe(ctx context.Context, opts *rootOptions) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting connector",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	// Reinitialise logger with config settings
	log, err = logging.New(cfg.Logging, version)
	if err != nil {
		return fmt.Errorf("initialising logger: %w", err)
	}
	defer log.Close()
	log.Info("configuration loaded", cfg.Redacted()...)

	registry, errs := parseQueries(cfg)
	for _, parseErr := range errs {
		log.Error("invalid query definition, skipped", "error", parseErr)
	}
	apiItems := registry.APIItems()
	telemetryItems := registry.TelemetryItems()
	log.Info("query items loaded",
		"api", len(apiItems),
		"telemetry", len(telemetryItems),
		"invalid", len(errs),
	)

	// Open database. Open fails unless SELECT 1 succeeds.
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "driver", db.Driver())

	reg := metrics.NewRegistry()
	if regErr := reg.RegisterDB(db.DB, cfg.Database.Name); regErr != nil {
		log.Warn("database pool metrics unavailable", "error", regErr)
	}
	reg.SetQueryItems(string(query.ModeAPI), len(apiItems))
	reg.SetQueryItems(string(query.ModeTelemetry), len(telemetryItems))

	checks := map[string]api.HealthChecker{"database": db}

	// Connect to broker
	pub, err := connectBroker(ctx, cfg, log, reg)
	if err != nil {
		return err
	}
	if pub != nil {
		defer func() {
			log.Info("disconnecting from broker")
			if closeErr := pub.Close(); closeErr != nil {
				log.Error("error closing broker", "error", closeErr)
			}
		}()
		checks["broker"] = pub
	}

	// Connect to InfluxDB (optional)
	var influxSink *influxdb.Sink
	if cfg.InfluxDB.Enabled {
		influxSink, err = influxdb.Open(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxSink.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxSink.OnWriteError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		checks["influxdb"] = influxSink
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	deps := api.Deps{
		Config:       cfg.API,
		WS:           cfg.WebSocket,
		Security:     cfg.Security,
		Logger:       log,
		Items:        apiItems,
		Executor:     db,
		QueryTimeout: cfg.QueryTimeout(),
		Metrics:      reg,
		Checks:       checks,
		Version:      version,
	}

	if cfg.Security.JWT.Enabled() {
		keys, token, keyErr := issueToken(cfg.Security.JWT)
		if keyErr != nil {
			return keyErr
		}
		deps.Verifier = keys
		log.Info("authorization token issued", "authorization", token)
	} else {
		log.Warn("JWT keys not configured, API authentication disabled")
	}

	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if pub != nil {
		svc := telemetry.NewService(telemetry.Config{
			Publisher:    pub,
			Executor:     db,
			TopicPrefix:  cfg.Broker.TopicPrefix,
			QueryTimeout: cfg.QueryTimeout(),
		})
		svc.SetLogger(log)
		svc.SetRecorder(reg)
		if cfg.WebSocket.Enabled {
			svc.AddSink(server.Hub())
		}
		if influxSink != nil {
			svc.AddSink(influxSink)
		}
		if startErr := svc.Start(ctx, telemetryItems); startErr != nil {
			return fmt.Errorf("starting telemetry: %w", startErr)
		}
		defer func() {
			log.Info("stopping telemetry")
			svc.Stop()
		}()
	} else if len(telemetryItems) > 0 {
		log.Warn("broker disabled, telemetry items will not run", "count", len(telemetryItems))
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. Telemetry loops
	// 2. API server
	// 3. InfluxDB (if enabled)
	// 4. Broker
	// 5. Database

	return nil
}

// connectBroker connects the configured publish transport.
// It returns nil for broker type none.
func connectBroker(ctx context.Context, cfg *config.Config, log *logging.Logger, reg *metrics.Registry) (broker, error) {
	switch cfg.Broker.Type {
	case config.BrokerMQTT:
		client, err := mqtt.Connect(cfg.MQTT, cfg.Broker.TopicPrefix)
		if err != nil {
			return nil, fmt.Errorf("connecting to MQTT: %w", err)
		}
		client.SetLogger(log)
		client.SetOnConnect(func() {
			reg.SetBrokerConnected(true)
		})
		client.SetOnDisconnect(func(error) {
			reg.SetBrokerConnected(false)
		})
		connected := client.IsConnected()
		reg.SetBrokerConnected(connected)
		if connected {
			log.Info("MQTT connected",
				"client_id", cfg.MQTT.Broker.ClientID,
				"status_topic", client.StatusTopic(),
			)
		} else {
			log.Warn("MQTT broker unreachable, retrying in background",
				"client_id", cfg.MQTT.Broker.ClientID,
			)
		}
		return client, nil

	case config.BrokerNATS:
		opts := []natsclient.ClientOption{
			natsclient.WithLogger(log),
			natsclient.WithName(cfg.NATS.Name),
			natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
			natsclient.WithRetryOnFailedConnect(true),
			natsclient.WithConnectionCallbacks(
				func(error) { reg.SetBrokerConnected(false) },
				func() { reg.SetBrokerConnected(true) },
			),
		}
		if cfg.NATS.ReconnectWait > 0 {
			opts = append(opts, natsclient.WithReconnectWait(time.Duration(cfg.NATS.ReconnectWait)*time.Second))
		}
		if cfg.NATS.Username != "" {
			opts = append(opts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
		}
		if cfg.NATS.Token != "" {
			opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
		}

		client, err := natsclient.NewClient(cfg.NATS.URL, opts...)
		if err != nil {
			return nil, fmt.Errorf("creating NATS client: %w", err)
		}
		if err := client.Connect(ctx); err != nil {
			return nil, fmt.Errorf("connecting to NATS: %w", err)
		}
		reg.SetBrokerConnected(client.IsConnected())
		return client, nil

	case config.BrokerNone:
		log.Info("broker disabled")
		return nil, nil

	default:
		return nil, fmt.Errorf("unsupported broker type %q", cfg.Broker.Type)
	}
}

// issueToken loads the key pair and issues a token for the secret key.
func issueToken(cfg config.JWTConfig) (*auth.Keys, string, error) {
	keys, err := auth.Load(cfg)
	if err != nil {
		if errors.Is(err, auth.ErrNotEnabled) {
			return nil, "", fmt.Errorf("JWT key paths are not configured: %w", err)
		}
		return nil, "", fmt.Errorf("loading JWT keys: %w", err)
	}
	token, err := keys.Issue()
	if err != nil {
		return nil, "", fmt.Errorf("issuing token: %w", err)
	}
	return keys, token, nil
}
