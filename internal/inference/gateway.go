package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/wolfman30/clinic-intake/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Task names the operation the inference service should run.
type Task string

const (
	TaskFollowupQuestions   Task = "get_followup_questions"
	TaskSummarizeSymptom    Task = "summarize_symptom"
	TaskMapToDepartment     Task = "map_to_department"
	TaskFindNearestBranches Task = "find_nearest_branches"
	TaskValidateDate        Task = "validate_appointment_date"
	TaskRecommendDoctors    Task = "recommend_available_doctors_with_visit_reason_summary"
	TaskMapSimilarCases     Task = "llm_maps_to_similar_cases"
	TaskRankDoctors         Task = "top3_and_blocks"
)

var retryableStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Invoker dispatches a single task to the inference service.
type Invoker interface {
	Invoke(ctx context.Context, task Task, fields map[string]any) (*Result, error)
}

// Observer receives one observation per Invoke call.
type Observer interface {
	ObserveInference(task, outcome string, seconds float64)
}

// Config configures the gateway.
type Config struct {
	Endpoint       string
	Token          string
	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	// BaseInputs are merged beneath every request's task fields.
	BaseInputs map[string]any
}

// Gateway sends task-tagged requests to the inference service with bounded
// retry and jittered exponential backoff.
type Gateway struct {
	client     *resty.Client
	endpoint   string
	baseInputs map[string]any
	logger     *logging.Logger
	observer   Observer
	tracer     trace.Tracer
}

// NewGateway builds a gateway. The endpoint is required.
func NewGateway(cfg Config, logger *logging.Logger, observer Observer) (*Gateway, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("inference: endpoint required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		cfg.RetryMaxDelay = cfg.RetryBaseDelay
	}

	client := resty.New()
	client.SetTimeout(cfg.Timeout)
	client.SetHeader("Content-Type", "application/json")
	client.SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}
	client.SetRetryCount(cfg.MaxRetries)
	client.SetRetryWaitTime(cfg.RetryBaseDelay)
	client.SetRetryMaxWaitTime(cfg.RetryMaxDelay)
	// A retry condition replaces resty's default error check, so transport
	// errors have to be matched here as well.
	client.AddRetryCondition(func(resp *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		return resp != nil && retryableStatuses[resp.StatusCode()]
	})

	return &Gateway{
		client:     client,
		endpoint:   endpoint,
		baseInputs: cfg.BaseInputs,
		logger:     logger,
		observer:   observer,
		tracer:     otel.Tracer("intake.internal.inference"),
	}, nil
}

// LoadBaseInputs reads a JSON object from path. An empty path yields nil.
func LoadBaseInputs(path string) (map[string]any, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("inference: read base inputs: %w", err)
	}
	var inputs map[string]any
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("inference: parse base inputs: %w", err)
	}
	return inputs, nil
}

// Invoke posts {"inputs": base ∪ fields ∪ {task}} and decodes the
// predictions envelope.
func (g *Gateway) Invoke(ctx context.Context, task Task, fields map[string]any) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := g.tracer.Start(ctx, "inference.invoke", trace.WithAttributes(attribute.String("inference.task", string(task))))
	defer span.End()

	start := time.Now()
	result, err := g.invoke(ctx, task, fields)
	elapsed := time.Since(start)

	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNoResponse):
		outcome = "no_response"
	case errors.Is(err, ErrMalformedResponse):
		outcome = "malformed"
	default:
		outcome = "status"
	}
	if g.observer != nil {
		g.observer.ObserveInference(string(task), outcome, elapsed.Seconds())
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		g.logger.Error("inference call failed", "task", task, "outcome", outcome, "detail", Detail(err), "error", err, "duration_ms", elapsed.Milliseconds())
	}
	return result, err
}

func (g *Gateway) invoke(ctx context.Context, task Task, fields map[string]any) (*Result, error) {
	inputs := make(map[string]any, len(g.baseInputs)+len(fields)+1)
	for k, v := range g.baseInputs {
		inputs[k] = v
	}
	for k, v := range fields {
		inputs[k] = v
	}
	inputs["task"] = string(task)

	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"inputs": inputs}).
		Post(g.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: task %s: %v", ErrNoResponse, task, err)
	}

	g.logger.Debug("inference response",
		"task", task,
		"status", resp.StatusCode(),
		"attempts", resp.Request.Attempt,
		"latency_ms", resp.Time().Milliseconds(),
	)

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		return nil, &StatusError{
			Task:       task,
			StatusCode: status,
			Body:       string(resp.Body()),
			Exhausted:  retryableStatuses[status],
		}
	}
	return decodeResult(task, status, resp.Body())
}

func decodeResult(task Task, status int, body []byte) (*Result, error) {
	var envelope struct {
		Predictions map[string]json.RawMessage `json:"predictions"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: task %s: %v", ErrMalformedResponse, task, err)
	}
	if envelope.Predictions == nil {
		envelope.Predictions = map[string]json.RawMessage{}
	}
	return &Result{Task: task, StatusCode: status, Predictions: envelope.Predictions}, nil
}

// Result holds the predictions object of a successful call.
type Result struct {
	Task        Task
	StatusCode  int
	Predictions map[string]json.RawMessage
}

// Decode unmarshals predictions[field] into dst. A missing or null field
// leaves dst untouched and reports false.
func (r *Result) Decode(field string, dst any) (bool, error) {
	if r == nil {
		return false, nil
	}
	raw, ok := r.Predictions[field]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("%w: task %s field %s: %v", ErrMalformedResponse, r.Task, field, err)
	}
	return true, nil
}

var _ Invoker = (*Gateway)(nil)
