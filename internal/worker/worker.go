// Package worker consumes activity events from the EventBus and scores them
// asynchronously.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Detector scores one activity event.
type Detector interface {
	Detect(ctx context.Context, event *domain.ActivityEvent) (*domain.FraudResult, error)
}

// Worker processes activity events asynchronously from the EventBus.
type Worker struct {
	bus      domain.EventBus
	detector Detector

	mu            sync.Mutex
	subscriptions []domain.Subscription
	sem           chan struct{}
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	rejected  atomic.Int64
}

// Config holds worker configuration.
type Config struct {
	// Concurrency bounds how many events are scored at once.
	Concurrency int
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, detector Detector) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		detector: detector,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to the activity topic.
func (w *Worker) Start(cfg Config) error {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	w.sem = make(chan struct{}, cfg.Concurrency)

	sub, err := w.bus.Subscribe(w.ctx, domain.TopicActivityReceived, w.handleMessage)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("worker started",
		"topic", domain.TopicActivityReceived,
		"concurrency", cfg.Concurrency,
	)
	return nil
}

// handleMessage hands the event to a scoring goroutine once a slot is free,
// so the subscription keeps draining while events are scored.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var event domain.ActivityEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		w.rejected.Add(1)
		slog.Error("failed to parse activity message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	select {
	case w.sem <- struct{}{}:
	case <-w.ctx.Done():
		return w.ctx.Err()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { <-w.sem }()
		w.process(msg, &event)
	}()
	return nil
}

func (w *Worker) process(msg *domain.Message, event *domain.ActivityEvent) {
	result, err := w.detector.Detect(w.ctx, event)
	if err != nil {
		w.rejected.Add(1)
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			slog.Warn("invalid activity event dropped",
				"message_id", msg.ID,
				"agent_id", event.AgentID,
				"error", err,
			)
			return
		}
		slog.Error("activity processing failed",
			"message_id", msg.ID,
			"agent_id", event.AgentID,
			"error", err,
		)
		return
	}

	w.processed.Add(1)
	slog.Debug("activity processed",
		"message_id", msg.ID,
		"agent_id", event.AgentID,
		"result_id", result.ID,
		"risk_level", result.RiskLevel,
	)
}

// Stop unsubscribes and waits for in-flight events to finish.
func (w *Worker) Stop() error {
	w.mu.Lock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil
	w.mu.Unlock()

	w.wg.Wait()
	w.cancel()

	slog.Info("worker stopped",
		"processed", w.processed.Load(),
		"rejected", w.rejected.Load(),
	)
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Rejected          int64    `json:"rejected"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Rejected:          w.rejected.Load(),
	}
}
