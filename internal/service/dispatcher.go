package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/josh-kwaku/ledger-ingest/internal/domain"
	"github.com/josh-kwaku/ledger-ingest/internal/metrics"
	"github.com/josh-kwaku/ledger-ingest/internal/queue"
	"github.com/josh-kwaku/ledger-ingest/internal/state"
)

type queueGateway interface {
	ReceiveBatch(ctx context.Context) ([]queue.Envelope, error)
	Acknowledge(ctx context.Context, env queue.Envelope) error
	Defer(ctx context.Context, env queue.Envelope, delay time.Duration) error
}

type eventWriter interface {
	CreateIfNotExists(ctx context.Context, event *domain.Event) (CreateEventOutcome, error)
}

type projector interface {
	Apply(ctx context.Context, event *domain.Event) (ProjectionOutcome, error)
}

type MessageOutcome string

const (
	// MessageProcessed: fact stored (or already known), projection applied,
	// message acknowledged.
	MessageProcessed MessageOutcome = "processed"
	// MessageDeferred: transient store failure; the message was made
	// redeliverable after the retry delay.
	MessageDeferred MessageOutcome = "deferred"
	// MessageRejected: the message can never succeed (undecodable body or
	// validation failure). Not acknowledged and not deferred; the queue's own
	// redelivery and dead-letter policy decides its fate.
	MessageRejected MessageOutcome = "rejected"
	// MessageFailed: stored but not acknowledged (projection or ack error);
	// redelivery will retry it, which is safe because ingestion is idempotent.
	MessageFailed MessageOutcome = "failed"
)

// MessageResult is the outcome of one envelope's processing attempt.
type MessageResult struct {
	QueueMessageID     string
	ResourceExternalID string
	State              state.State
	Projection         ProjectionOutcome
	Outcome            MessageOutcome
	Err                error
}

// BatchReport collects per-message results for one polling cycle, so the
// batch outcome is inspectable as data rather than buried in control flow.
type BatchReport struct {
	Results []MessageResult
}

func (r BatchReport) Count(outcome MessageOutcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == outcome {
			n++
		}
	}
	return n
}

// Dispatcher drives one receive → process → ack/defer round per cycle. Each
// envelope in a batch gets an independent outcome; one message's failure never
// blocks the others.
type Dispatcher struct {
	queue      queueGateway
	writer     eventWriter
	projector  projector
	metrics    *metrics.IngestMetrics
	logger     *slog.Logger
	retryDelay time.Duration

	pollBackoff time.Duration
	now         func() time.Time
}

func NewDispatcher(
	q queueGateway,
	writer eventWriter,
	projector projector,
	m *metrics.IngestMetrics,
	logger *slog.Logger,
	retryDelay time.Duration,
) *Dispatcher {
	return &Dispatcher{
		queue:       q,
		writer:      writer,
		projector:   projector,
		metrics:     m,
		logger:      logger,
		retryDelay:  retryDelay,
		pollBackoff: 5 * time.Second,
		now:         time.Now,
	}
}

// Run polls until ctx is cancelled. A failure to obtain a batch is logged and
// retried after a backoff, never fatal; in-flight messages of the current
// cycle finish before the loop exits.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("dispatcher started")
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopped")
			return
		default:
		}

		report, err := d.RunCycle(ctx)
		if err != nil {
			d.metrics.CountReceiveError()
			d.logger.Error("failed to receive batch", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(d.pollBackoff):
			}
			continue
		}

		if len(report.Results) > 0 {
			d.logger.Debug("batch complete",
				"size", len(report.Results),
				"processed", report.Count(MessageProcessed),
				"deferred", report.Count(MessageDeferred),
				"rejected", report.Count(MessageRejected),
				"failed", report.Count(MessageFailed),
			)
		}
	}
}

// RunCycle pulls one batch and processes every envelope in it independently.
// The only error it returns is a failure to obtain the batch itself.
func (d *Dispatcher) RunCycle(ctx context.Context) (BatchReport, error) {
	envelopes, err := d.queue.ReceiveBatch(ctx)
	if err != nil {
		return BatchReport{}, fmt.Errorf("RunCycle: %w", err)
	}

	report := BatchReport{Results: make([]MessageResult, 0, len(envelopes))}
	for _, env := range envelopes {
		res := d.processEnvelope(ctx, env)
		d.metrics.CountOutcome(string(res.Outcome))
		d.logResult(res)
		report.Results = append(report.Results, res)
	}
	return report, nil
}

func (d *Dispatcher) processEnvelope(ctx context.Context, env queue.Envelope) MessageResult {
	res := MessageResult{QueueMessageID: env.QueueMessageID}

	if env.DecodeErr != nil {
		res.Outcome = MessageRejected
		res.Err = env.DecodeErr
		return res
	}

	event := env.Event
	res.ResourceExternalID = event.ResourceExternalID
	if st, ok := state.FromEventType(event.EventType); ok {
		res.State = st
	}

	outcome, err := d.writer.CreateIfNotExists(ctx, event)
	if outcome == EventRejected {
		res.Outcome = MessageRejected
		res.Err = err
		return res
	}
	if err != nil {
		if deferErr := d.queue.Defer(ctx, env, d.retryDelay); deferErr != nil {
			err = errors.Join(err, deferErr)
		}
		res.Outcome = MessageDeferred
		res.Err = err
		return res
	}

	// The fact is durably stored from here on. Any failure below leaves the
	// message unacknowledged so redelivery retries projection and ack; the
	// ALREADY_EXISTS path makes that retry harmless.
	projection, err := d.projector.Apply(ctx, event)
	if err != nil {
		res.Outcome = MessageFailed
		res.Err = err
		return res
	}
	res.Projection = projection

	if err := d.queue.Acknowledge(ctx, env); err != nil {
		res.Outcome = MessageFailed
		res.Err = err
		return res
	}

	d.metrics.ObserveIngestLag(d.now().Sub(event.EventDate))
	res.Outcome = MessageProcessed
	return res
}

func (d *Dispatcher) logResult(res MessageResult) {
	switch res.Outcome {
	case MessageProcessed:
		d.logger.Info("event message processed",
			"queue_message_id", res.QueueMessageID,
			"resource_external_id", res.ResourceExternalID,
			"state", string(res.State),
			"projection", res.Projection.String(),
			"outcome", string(res.Outcome),
		)
	default:
		d.logger.Warn("event message not processed",
			"queue_message_id", res.QueueMessageID,
			"resource_external_id", res.ResourceExternalID,
			"state", string(res.State),
			"outcome", string(res.Outcome),
			"error", res.Err,
		)
	}
}
