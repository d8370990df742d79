package buildcoachingprompt

import (
	"context"
	"fmt"
	"time"

	"deal-coach/internal/common/camunda"
	"deal-coach/internal/common/config"
	"deal-coach/internal/common/errors"
	"deal-coach/internal/common/logger"
	"deal-coach/internal/common/metrics"
	"deal-coach/internal/insights"
	"deal-coach/internal/models"
	"deal-coach/internal/prompt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType   = "deal-coaching.build-coaching-prompt"
	WorkerName = "build-coaching-prompt"

	// reportTimeout bounds the complete/fail call sent after the job's own
	// deadline may already have passed.
	reportTimeout = 10 * time.Second
)

// ContextBuilder is satisfied by *dealcontext.Aggregator.
type ContextBuilder interface {
	GetEnhancedDealContext(ctx context.Context, dealID, tenantID, userID string) *models.EnhancedDealContext
}

// Observer is satisfied by *observability.Observability.
type Observer interface {
	RecordInsights(ctx context.Context, count int)
	RecordJobProcessed(ctx context.Context, taskType, status string)
}

type Handler struct {
	config     *Config
	logger     logger.Logger
	builder    ContextBuilder
	observer   Observer
	errHandler *errors.ErrorHandler
	retry      *camunda.RetryConfig
}

type HandlerOptions struct {
	AppConfig    *config.Config
	CustomConfig *Config
	Builder      ContextBuilder
	Observer     Observer
	Logger       logger.Logger
	Retry        *camunda.RetryConfig
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	workerConfig := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)
	if err := workerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", WorkerName, err)
	}
	if opts.Builder == nil {
		return nil, fmt.Errorf("%s requires a context builder", WorkerName)
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewStructured("info", "json")
	}
	observer := opts.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	retry := opts.Retry
	if retry == nil {
		retry = camunda.DefaultRetryConfig
	}

	return &Handler{
		config:     workerConfig,
		logger:     log,
		builder:    opts.Builder,
		observer:   observer,
		errHandler: errors.NewErrorHandler(log),
		retry:      retry,
	}, nil
}

func (h *Handler) Config() *Config {
	return h.config
}

// Handle is registered as the Zeebe job handler.
func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	log := h.logger.With(map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
		"worker":             TaskType,
	})
	log.Info("Processing coaching prompt request", nil)

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.process(ctx, job)

	reportCtx, cancelReport := context.WithTimeout(context.Background(), reportTimeout)
	defer cancelReport()

	if err != nil {
		code := errors.Normalize(err).Code
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(code)).Inc()
		h.observer.RecordJobProcessed(reportCtx, TaskType, "failed")
		h.errHandler.HandleJobError(reportCtx, client, job, err)
		return
	}

	if err := h.completeJob(reportCtx, client, job, output); err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.Normalize(err).Code)).Inc()
		log.WithError(err).Error("Failed to complete job", nil)
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
	h.observer.RecordJobProcessed(reportCtx, TaskType, "completed")

	log.Info("Coaching prompt built", map[string]interface{}{
		"runId":          output.RunID,
		"failedBranches": len(output.FailedBranches),
		"durationMs":     time.Since(startTime).Milliseconds(),
	})
}

func (h *Handler) process(ctx context.Context, job entities.Job) (*Output, error) {
	input, err := h.parseInput(job)
	if err != nil {
		return nil, err
	}
	return h.Execute(ctx, input)
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("failed to parse job variables: %v", err))
	}

	result := inputSchema.Validate(variables)
	if !result.Valid {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("validation errors: %v", result.GetErrorMessages())).
			WithMetadata("fields", result.Errors)
	}

	input := &Input{
		DealID:   variables["dealId"].(string),
		TenantID: variables["tenantId"].(string),
		UserID:   variables["userId"].(string),
	}
	if msg, ok := variables["userMessage"].(string); ok {
		input.UserMessage = msg
	}
	return input, nil
}

// Execute builds the deal context and every prompt output for one request.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	dc := h.builder.GetEnhancedDealContext(ctx, input.DealID, input.TenantID, input.UserID)
	if dc == nil {
		return nil, errors.NewContextBuildFailedError(fmt.Errorf("no context returned for deal %s", input.DealID))
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.NewTimeoutError("build deal context", err)
	}
	if dc.Deal == nil {
		return nil, missingDealError(input.DealID, dc.Report)
	}

	ins := insights.GenerateContextInsights(dc)
	h.observer.RecordInsights(ctx, ins.Count())

	var opts []prompt.Option
	if h.config.TokenBudget > 0 {
		opts = append(opts, prompt.WithTokenBudget(h.config.TokenBudget))
	}

	output := &Output{
		SystemPrompt:     prompt.GenerateEnhancedSystemPrompt(dc, ins, opts...),
		ContextSummary:   prompt.GenerateContextSummary(dc),
		ToneInstructions: prompt.GenerateToneAwareInstructions(dc),
		Recommendations:  prompt.GeneratePersonalizedRecommendations(dc),
		InsightCounts:    insightCounts(ins),
		FailedBranches:   dc.Report.Failed(),
		RunID:            dc.Report.RunID,
	}
	if input.UserMessage != "" {
		output.EnhancedUserPrompt = prompt.EnhanceUserPrompt(input.UserMessage, dc)
	}
	return output, nil
}

// missingDealError distinguishes a deal that does not exist from one whose
// read failed. Only a transient read failure is worth retrying.
func missingDealError(dealID string, report models.FetchReport) error {
	outcome, ok := report.Branches["deal.record"]
	if ok && outcome.Status == models.BranchFailed {
		e := errors.NewDocumentStoreError("deals", fmt.Errorf("%s", outcome.Error)).
			WithMetadata("dealId", dealID).
			WithMetadata("runId", report.RunID)
		if outcome.Permanent {
			e.Retryable = false
		}
		return e
	}
	return errors.NewDealNotFoundError(dealID)
}

func insightCounts(ins models.ContextInsights) map[string]int {
	return map[string]int{
		"company":     len(ins.CompanyInsights),
		"contact":     len(ins.ContactInsights),
		"salesperson": len(ins.SalespersonInsights),
		"activity":    len(ins.ActivityInsights),
		"tone":        len(ins.ToneInsights),
		"ai":          len(ins.AIInsights),
		"total":       ins.Count(),
	}
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) error {
	return camunda.Retry(ctx, h.retry, "complete job", func(ctx context.Context) error {
		request, err := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromObject(output)
		if err != nil {
			return err
		}
		_, err = request.Send(ctx)
		return err
	})
}

type noopObserver struct{}

func (noopObserver) RecordInsights(context.Context, int) {}

func (noopObserver) RecordJobProcessed(context.Context, string, string) {}
