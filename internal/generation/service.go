package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/ledger"
)

// SubmitRequest is a user's generation order.
type SubmitRequest struct {
	UserID      string         `json:"-" validate:"required"`
	Model       string         `json:"model" validate:"required,max=120"`
	Prompt      string         `json:"prompt" validate:"required,max=4000"`
	Quantity    int            `json:"quantity" validate:"omitempty,min=1,max=4"`
	AspectRatio string         `json:"aspect_ratio" validate:"omitempty,oneof=1:1 16:9 9:16 4:3 3:4"`
	ImageURLs   []string       `json:"image_urls" validate:"omitempty,max=4,dive,url"`
	Options     map[string]any `json:"options"`
}

// ServiceDeps bundles what the submission service needs.
type ServiceDeps struct {
	Jobs       domain.JobRepository
	Ledger     *ledger.Service
	Gateway    Gateway
	Supervisor *Supervisor
	Catalog    *Catalog
	Logger     zerolog.Logger
}

// Service accepts generation orders and exposes job reads.
type Service struct {
	jobs       domain.JobRepository
	ledger     *ledger.Service
	gateway    Gateway
	supervisor *Supervisor
	catalog    *Catalog
	validate   *validator.Validate
	log        zerolog.Logger
	now        func() time.Time
	newID      func() string
}

// NewService wires the submission service.
func NewService(deps ServiceDeps) *Service {
	return &Service{
		jobs:       deps.Jobs,
		ledger:     deps.Ledger,
		gateway:    deps.Gateway,
		supervisor: deps.Supervisor,
		catalog:    deps.Catalog,
		validate:   validator.New(),
		log:        deps.Logger.With().Str("component", "generation").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
}

// Catalog returns the priced models.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// SubmitJob charges the user, records the job and hands it to the provider.
// On ErrProviderSubmit the returned job is the failed, refunded record.
func (s *Service) SubmitJob(ctx context.Context, req SubmitRequest) (*domain.Job, error) {
	req.Model = strings.TrimSpace(req.Model)
	req.Prompt = strings.TrimSpace(req.Prompt)
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidInput, err.Error())
	}
	model, cost, err := s.catalog.Price(req.Model, req.Quantity)
	if err != nil {
		return nil, err
	}
	input, err := buildInput(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidInput, err.Error())
	}

	jobID := s.newID()
	logger := s.log.With().Str("job_id", jobID).Str("user_id", req.UserID).Str("model", model.Name).Logger()

	if cost > 0 {
		if _, err := s.ledger.Deduct(ctx, req.UserID, cost, jobID); err != nil {
			return nil, err
		}
	}

	job := &domain.Job{
		ID:             jobID,
		UserID:         req.UserID,
		Model:          model.Name,
		Kind:           model.Kind,
		Input:          input,
		Status:         domain.JobStatusPending,
		CreditsCharged: cost,
		CreatedAt:      s.now(),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		if cost > 0 {
			if _, rerr := s.ledger.ReverseDeduction(context.WithoutCancel(ctx), req.UserID, cost, jobID); rerr != nil {
				logger.Error().Err(rerr).Msg("reverse deduction failed")
			}
		}
		return nil, fmt.Errorf("generation: create job: %w", err)
	}

	taskID, err := s.gateway.Submit(ctx, ProviderRequest{JobID: jobID, Model: model.Name, Kind: model.Kind, Input: input})
	if err != nil {
		logger.Warn().Err(err).Msg("provider rejected submission")
		return s.failSubmission(context.WithoutCancel(ctx), logger, jobID, err)
	}

	// the provider task is live; a client disconnect must not strand the job
	persistCtx := context.WithoutCancel(ctx)
	processing, err := s.jobs.MarkProcessing(persistCtx, jobID, taskID)
	if err != nil {
		// left pending; the recovery sweep fails and refunds it after the deadline
		logger.Error().Err(err).Str("task_id", taskID).Msg("mark processing failed")
		return nil, fmt.Errorf("generation: mark processing: %w", err)
	}
	if s.supervisor != nil {
		s.supervisor.Start(jobID, taskID, s.now())
	}
	logger.Info().Str("task_id", taskID).Int64("credits", cost).Msg("job submitted")
	return processing, nil
}

func (s *Service) failSubmission(ctx context.Context, logger zerolog.Logger, jobID string, cause error) (*domain.Job, error) {
	detail := "provider rejected submission: " + cause.Error()
	failed, err := s.jobs.MarkSubmitFailed(ctx, jobID, detail, s.now())
	if err != nil {
		logger.Error().Err(err).Msg("mark submit failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderSubmit, cause)
	}
	if failed.CreditsCharged > 0 {
		res, err := s.ledger.Refund(ctx, jobID)
		if err != nil {
			logger.Error().Err(err).Msg("refund after submit failure")
		} else if res.Applied {
			failed.Refunded = true
		}
	}
	return failed, fmt.Errorf("%w: %v", domain.ErrProviderSubmit, cause)
}

// GetJob returns the stored job.
func (s *Service) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	return s.jobs.Get(ctx, jobID)
}

// GetUserJob returns the job only when it belongs to userID.
func (s *Service) GetUserJob(ctx context.Context, userID, jobID string) (*domain.Job, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

// ListJobs returns the user's newest jobs.
func (s *Service) ListJobs(ctx context.Context, userID string, limit int) ([]domain.Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.jobs.ListByUser(ctx, userID, limit)
}

// CancelReconciliationForTesting stops the fallback poller of jobID. The job
// keeps its status; only a webhook or the sweep can finish it afterwards.
func (s *Service) CancelReconciliationForTesting(jobID string) bool {
	if s.supervisor == nil {
		return false
	}
	return s.supervisor.Cancel(jobID)
}

// ActivePollers reports how many fallback pollers are running.
func (s *Service) ActivePollers() int {
	if s.supervisor == nil {
		return 0
	}
	return s.supervisor.Len()
}

func buildInput(req SubmitRequest) (json.RawMessage, error) {
	input := make(map[string]any, len(req.Options)+4)
	for k, v := range req.Options {
		input[k] = v
	}
	input["prompt"] = req.Prompt
	if req.AspectRatio != "" {
		input["aspect_ratio"] = req.AspectRatio
	}
	if req.Quantity > 0 {
		input["num_images"] = req.Quantity
	}
	if len(req.ImageURLs) > 0 {
		input["image_urls"] = req.ImageURLs
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, errors.New("options are not serialisable")
	}
	return raw, nil
}
