// Package worker provides async scan processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/shadowid-platform/saqr/internal/assess"
	"github.com/shadowid-platform/saqr/internal/domain"
)

// Worker processes scan events asynchronously from the EventBus.
type Worker struct {
	bus     domain.EventBus
	service *assess.Service

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, service *assess.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		service: service,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	// Subscribe using a special "global" tenant ID
	// In production, you'd want to subscribe with wildcards or JetStream
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicScanIngested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts workers for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicScanIngested, func(ctx context.Context, msg *domain.Message) error {
		return w.processScan(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicScanIngested,
	)

	return nil
}

// handleMessage handles messages from global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processScan(ctx, msg.TenantID, msg)
}

// ScanMessage is the message payload for scan processing.
type ScanMessage struct {
	TenantID string           `json:"tenantId,omitempty"`
	TraceID  string           `json:"traceId,omitempty"`
	Event    domain.ScanEvent `json:"event"`
}

// processScan runs the full assessment for one ingested scan. The
// service handles persistence and result publication.
func (w *Worker) processScan(ctx context.Context, tenantID string, msg *domain.Message) error {
	var scanMsg ScanMessage
	if err := json.Unmarshal(msg.Payload, &scanMsg); err != nil {
		slog.Error("failed to parse scan message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if scanMsg.TenantID != "" {
		tenantID = scanMsg.TenantID
	}

	traceID := scanMsg.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing scan",
		"tenant_id", tenantID,
		"trace_id", traceID,
	)

	assessment, err := w.service.AssessScan(ctx, tenantID, traceID, &scanMsg.Event)
	if err != nil {
		slog.Error("scan assessment failed",
			"tenant_id", tenantID,
			"trace_id", traceID,
			"error", err,
		)
		return err
	}

	slog.Info("scan processed",
		"tenant_id", tenantID,
		"assessment_id", assessment.ID,
		"risk_level", assessment.Verdict.RiskLevel,
		"risk_score", assessment.Verdict.RiskScore,
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
