package worker

import (
	"context"
	"encoding/json"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/shadowid-platform/saqr/internal/anomaly"
	"github.com/shadowid-platform/saqr/internal/assess"
	"github.com/shadowid-platform/saqr/internal/bus"
	"github.com/shadowid-platform/saqr/internal/cache"
	"github.com/shadowid-platform/saqr/internal/domain"
	"github.com/shadowid-platform/saqr/internal/features"
	"github.com/shadowid-platform/saqr/internal/model"
	"github.com/shadowid-platform/saqr/internal/observability"
	"github.com/shadowid-platform/saqr/internal/repository"
	"github.com/shadowid-platform/saqr/internal/temporal"
)

func testService(t *testing.T, eventBus domain.EventBus) *assess.Service {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "worker-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	lruCache := cache.NewLRUCache(100)
	t.Cleanup(func() { lruCache.Close() })

	artifacts, err := model.LoadArtifacts("../model/testdata")
	if err != nil {
		t.Fatalf("failed to load model artifacts: %v", err)
	}

	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 4, 10, 5, 0, 0, time.UTC))
	builder := features.NewBuilder(temporal.NewAnalyzer(clock))

	service, err := assess.NewService(assess.ServiceConfig{
		Detector: anomaly.NewDetector(nil, clock, nil),
		Pipeline: assess.NewPipeline(model.NewCascade(artifacts), builder, nil),
		Repo:     repo,
		Cache:    lruCache,
		Bus:      eventBus,
		Metrics:  observability.NewMetricsForTesting(t),
		Clock:    clock,
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service
}

func testScanEvent() domain.ScanEvent {
	return domain.ScanEvent{
		User: domain.UserInfo{NationalID: "1234567890", PersonType: "Citizen", Nationality: "Saudi"},
		ShadowID: domain.ShadowIDInfo{
			CreatedAt:          "2025-06-04T10:00:00Z",
			ExpiresAt:          "2025-06-04T10:03:00Z",
			DeviceFingerprint:  "dev-1",
			GenerationLocation: "24.7136,46.6753",
		},
		Scan: domain.ScanInfo{
			Location:          "24.7136,46.6753",
			Timestamp:         "2025-06-04T10:01:00Z",
			DeviceFingerprint: "dev-1",
		},
	}
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	service := testService(t, eventBus)

	t.Run("StartAndStop", func(t *testing.T) {
		worker := NewWorker(eventBus, service)

		cfg := Config{
			TenantIDs: []string{"tenant-001"},
		}

		err := worker.Start(cfg)
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := worker.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}

		err = worker.Stop()
		if err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = worker.GetStats()
		if stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ProcessScan", func(t *testing.T) {
		w := NewWorker(eventBus, service)

		cfg := Config{
			TenantIDs: []string{"tenant-test"},
		}
		w.Start(cfg)
		defer w.Stop()

		// Track completed assessments
		var resultReceived atomic.Bool
		var resultPayload []byte

		eventBus.Subscribe(context.Background(), "tenant-test", domain.TopicAssessmentCompleted, func(ctx context.Context, msg *domain.Message) error {
			resultPayload = msg.Payload
			resultReceived.Store(true)
			return nil
		})

		// Allow subscriptions to be active
		time.Sleep(50 * time.Millisecond)

		scanMsg := ScanMessage{
			TenantID: "tenant-test",
			TraceID:  "trace-001",
			Event:    testScanEvent(),
		}

		payload, _ := json.Marshal(scanMsg)
		err := eventBus.Publish(context.Background(), "tenant-test", domain.TopicScanIngested, payload)
		if err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		// Wait for processing
		time.Sleep(100 * time.Millisecond)

		if !resultReceived.Load() {
			t.Fatal("expected completed assessment to be published")
		}

		var a domain.Assessment
		if err := json.Unmarshal(resultPayload, &a); err != nil {
			t.Fatalf("failed to parse assessment: %v", err)
		}

		if a.TenantID != "tenant-test" {
			t.Errorf("expected tenantID 'tenant-test', got '%s'", a.TenantID)
		}
		if a.Metadata.TraceID != "trace-001" {
			t.Errorf("expected traceID 'trace-001', got '%s'", a.Metadata.TraceID)
		}
		if a.Verdict.RiskLevel != domain.RiskLow {
			t.Errorf("expected Low verdict, got %s", a.Verdict.RiskLevel)
		}
	})

	t.Run("AlertPublished", func(t *testing.T) {
		w := NewWorker(eventBus, service)

		cfg := Config{
			TenantIDs: []string{"tenant-alert"},
		}
		w.Start(cfg)
		defer w.Stop()

		// Track alerts
		var alertReceived atomic.Bool

		eventBus.Subscribe(context.Background(), "tenant-alert", domain.TopicAlert, func(ctx context.Context, msg *domain.Message) error {
			alertReceived.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		// A reused token escalates to High and must raise an alert.
		ev := testScanEvent()
		ev.ShadowID.Used = true

		payload, _ := json.Marshal(ScanMessage{TenantID: "tenant-alert", Event: ev})
		eventBus.Publish(context.Background(), "tenant-alert", domain.TopicScanIngested, payload)

		time.Sleep(100 * time.Millisecond)

		if !alertReceived.Load() {
			t.Error("expected alert to be published for high-risk scan")
		}
	})

	t.Run("MultiTenant", func(t *testing.T) {
		w := NewWorker(eventBus, service)

		cfg := Config{
			TenantIDs: []string{"tenant-a", "tenant-b"},
		}
		w.Start(cfg)
		defer w.Stop()

		stats := w.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions for 2 tenants, got %d", stats.SubscriptionCount)
		}
	})
}

func TestScanMessageParsing(t *testing.T) {
	msg := ScanMessage{
		TenantID: "tenant-001",
		TraceID:  "trace-456",
		Event:    testScanEvent(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var parsed ScanMessage
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if parsed.TenantID != msg.TenantID {
		t.Errorf("expected TenantID '%s', got '%s'", msg.TenantID, parsed.TenantID)
	}
	if parsed.Event.User.NationalID != "1234567890" {
		t.Errorf("expected NationalID '1234567890', got '%s'", parsed.Event.User.NationalID)
	}
	if parsed.Event.ShadowID.CreatedAt != msg.Event.ShadowID.CreatedAt {
		t.Errorf("createdAt mismatch: %s", parsed.Event.ShadowID.CreatedAt)
	}
}
