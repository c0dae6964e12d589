package bootstrap

import (
	"context"
	"fmt"

	"call-relay/internal/admission"
	"call-relay/internal/calls/handler"
	"call-relay/internal/calls/processor"
	"call-relay/internal/clients/googleai"
	"call-relay/internal/clients/mail"
	"call-relay/internal/clients/openai"
	"call-relay/internal/clients/recordings"
	"call-relay/internal/clients/sheets"
	"call-relay/internal/clients/slack"
	"call-relay/internal/config"
	"call-relay/internal/customers"
	"call-relay/internal/observability"
	"call-relay/internal/roster"
	"call-relay/internal/store"
	"call-relay/internal/workers"
)

// Dependencies holds all initialized application dependencies
type Dependencies struct {
	// Core
	Store  *store.Store
	Logger *observability.Logger

	// Handlers
	CallHandler *handler.Handler

	// Background workers
	Pool              workers.WorkerPool
	RosterRefresher   *roster.Refresher
	CustomerRefresher *customers.Refresher
}

// Initialize sets up all application dependencies
func Initialize(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Logger: logger,
	}

	// Initialize the call record store
	var err error
	deps.Store, err = store.New(cfg.Store.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open call store: %w", err)
	}

	// Initialize clients
	recordingsClient := recordings.New(cfg.Services.RecordingAPIKey, cfg.Services.RecordingAPIToken, logger)
	transcriber := openai.New(cfg.Services.OpenAIAPIKey, logger)
	summarizer := googleai.New(cfg.Services.GoogleAIAPIKey, logger)
	notifier := slack.New(cfg.Services.SlackWebhookURL, logger)

	// Transcript copies by email are optional
	var mailer processor.Mailer
	if cfg.Services.ResendAPIKey != "" {
		mailClient, err := mail.NewResendClient(cfg.Services.ResendAPIKey, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create resend client: %w", err)
		}
		mailer = mailClient
	}

	// Agent roster with periodic reload
	agentRoster := roster.New(cfg.Roster.MappingPath, cfg.Roster.SupportNumber, logger)
	if err := agentRoster.Load(ctx); err != nil {
		logger.InfoWithError(ctx, "agent mapping not loaded, starting with defaults only", err)
	}
	deps.RosterRefresher = roster.NewRefresher(agentRoster, logger, cfg.Roster.RefreshInterval)

	// Customer directory backed by the sheet, refreshed on a timer
	sheetClient := sheets.New(cfg.Customers.SheetID, cfg.Customers.SheetRange, cfg.Customers.APIKey, logger)
	directory := customers.NewDirectory(sheetClient, logger)
	if err := directory.Refresh(ctx); err != nil {
		logger.InfoWithError(ctx, "customer directory not loaded, lookups will miss", err)
	}
	deps.CustomerRefresher = customers.NewRefresher(directory, logger, cfg.Customers.CacheTTL)

	// Pipeline processor running behind the admission gate
	callProcessor := processor.New(processor.Collaborators{
		Store:       deps.Store,
		Recordings:  recordingsClient,
		Transcriber: transcriber,
		Summarizer:  summarizer,
		Notifier:    notifier,
		Customers:   directory,
		Agents:      agentRoster,
		Mailer:      mailer,
	}, processor.Config{
		MinCallDuration: cfg.Pipeline.MinCallDuration,
		EmailSender:     cfg.Services.EmailSender,
	}, logger)

	gate := admission.NewGate(cfg.Admission.MaxConcurrent)
	poolConfig := workers.DefaultWorkerPoolConfig()
	poolConfig.NumWorkers = cfg.Admission.MaxConcurrent
	poolConfig.PacingDelay = cfg.Admission.PacingDelay
	deps.Pool = workers.NewWorkerPool(poolConfig, callProcessor, gate, logger)

	// Ingestion gate handler
	deps.CallHandler = handler.New(deps.Store, deps.Pool, agentRoster, handler.Config{
		ClaimTimeout:    cfg.Pipeline.ClaimTimeout,
		FailureCooldown: cfg.Pipeline.FailureCooldown,
		MaxEventAge:     cfg.Pipeline.MaxEventAge,
		SkipStatuses:    cfg.Pipeline.SkipStatuses,
		SigningSecret:   cfg.Services.WebhookAuthToken,
	}, logger)

	return deps, nil
}

// Cleanup closes all resources that need cleanup
func (d *Dependencies) Cleanup() {
	if d.Store != nil {
		d.Store.Close()
	}
}
