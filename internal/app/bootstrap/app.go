package bootstrap

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-intake/internal/api/router"
	"github.com/wolfman30/clinic-intake/internal/booking"
	appconfig "github.com/wolfman30/clinic-intake/internal/config"
	"github.com/wolfman30/clinic-intake/internal/inference"
	"github.com/wolfman30/clinic-intake/internal/intake"
	"github.com/wolfman30/clinic-intake/internal/observability/metrics"
	"github.com/wolfman30/clinic-intake/internal/webchat"
	"github.com/wolfman30/clinic-intake/pkg/logging"
)

// Deps are the process-level resources the API binary owns.
type Deps struct {
	Clients Clients
	Redis   *redis.Client
	// Registry defaults to a fresh Prometheus registry.
	Registry *prometheus.Registry
	// Done stops background middleware work.
	Done <-chan struct{}
}

// App is the assembled intake service.
type App struct {
	Handler  http.Handler
	Sessions *intake.Registry
	Metrics  *metrics.IntakeMetrics
}

// BuildInferenceClient wires the gateway with its retry policy and base inputs.
func BuildInferenceClient(cfg *appconfig.Config, logger *logging.Logger, observer inference.Observer) (*inference.Client, error) {
	baseInputs, err := inference.LoadBaseInputs(cfg.InferenceBaseInputsFile)
	if err != nil {
		return nil, err
	}
	gateway, err := inference.NewGateway(inference.Config{
		Endpoint:       cfg.InferenceEndpoint,
		Token:          cfg.InferenceToken,
		Timeout:        cfg.InferenceTimeout,
		MaxRetries:     cfg.InferenceMaxRetries,
		RetryBaseDelay: cfg.InferenceRetryBaseDelay,
		RetryMaxDelay:  cfg.InferenceRetryMaxDelay,
		BaseInputs:     baseInputs,
	}, logger, observer)
	if err != nil {
		return nil, err
	}
	return inference.NewClient(gateway), nil
}

// BuildApp assembles the registry, controller, finalizer and HTTP surface.
func BuildApp(cfg *appconfig.Config, deps Deps, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	promRegistry := deps.Registry
	if promRegistry == nil {
		promRegistry = prometheus.NewRegistry()
	}
	m := metrics.NewIntakeMetrics(promRegistry)

	client, err := BuildInferenceClient(cfg, logger, m)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: inference: %w", err)
	}

	notifier, err := BuildNotifier(cfg, deps.Clients.SES, logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: notifier: %w", err)
	}
	loc := cfg.Location()
	finalizer := booking.NewFinalizer(booking.Options{
		Ledger:   BuildLedger(cfg, deps.Clients, logger),
		Notifier: notifier,
		Events:   BuildEventPublisher(cfg, deps.Clients.SQS, logger),
		Metrics:  m,
		Logger:   logger,
		Location: loc,
	})

	sessions := intake.NewRegistry(intake.RegistryOptions{
		TTL:      cfg.SessionTTL,
		EndedTTL: cfg.EndedSessionTTL,
		Metrics:  m,
		Logger:   logger,
	})

	opts := intake.Options{
		Inference:           client,
		Finalizer:           finalizer,
		Metrics:             m,
		Logger:              logger,
		EmergencyDepartment: cfg.EmergencyDepartment,
		EmergencyHotline:    cfg.EmergencyHotline,
		BookingWindowDays:   cfg.BookingWindowDays,
		Location:            loc,
	}
	// Assign only a non-nil store so the interfaces stay nil without Redis.
	var reader intake.TranscriptReader
	if store := BuildTranscriptStore(deps.Redis, cfg); store != nil {
		opts.Transcript = store
		reader = store
		logger.Info("transcript mirror enabled", "ttl", cfg.TranscriptTTL.String())
	}
	controller := intake.NewController(sessions, opts)

	handler := router.New(&router.Config{
		Logger:             logger,
		IntakeHandler:      intake.NewHandler(controller, sessions, reader, logger),
		WebChat:            webchat.NewHandler(controller, sessions, reader, logger),
		MetricsHandler:     promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
		Done:               deps.Done,
	})

	logger.Info("intake service assembled",
		"inference_endpoint", cfg.InferenceEndpoint,
		"email_provider", cfg.EmailProvider,
		"clinic_timezone", loc.String(),
	)
	return &App{Handler: handler, Sessions: sessions, Metrics: m}, nil
}
