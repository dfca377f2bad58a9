// Command event-generator publishes sample payment lifecycles to the event
// stream, standing in for the upstream connector during local development.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/ledger-ingest/internal/config"
	"github.com/josh-kwaku/ledger-ingest/internal/domain"
	"github.com/josh-kwaku/ledger-ingest/internal/logging"
	"github.com/josh-kwaku/ledger-ingest/internal/queue"
)

func main() {
	payments := flag.Int("payments", 5, "number of payment lifecycles to publish")
	declineEvery := flag.Int("decline-every", 4, "decline every Nth payment (0 disables)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("event-generator", cfg.LogLevel, cfg.AppEnv)

	client, err := queue.Connect(cfg.RedisURL)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	gateway := queue.NewGateway(client, queue.Config{
		Stream: cfg.EventStream,
		MaxLen: cfg.StreamMaxLen,
	}, slog.Default())

	ctx := context.Background()
	published := 0
	for i := range *payments {
		declined := *declineEvery > 0 && (i+1)%*declineEvery == 0
		n, err := publishLifecycle(ctx, gateway, int64(1000+i*250), declined)
		if err != nil {
			slog.Error("failed to publish lifecycle", "error", err)
			os.Exit(1)
		}
		published += n
	}

	slog.Info("done", "payments", *payments, "events", published)
}

func publishLifecycle(ctx context.Context, gateway *queue.Gateway, amount int64, declined bool) (int, error) {
	externalID := uuid.NewString()
	base := time.Now().UTC().Add(-time.Minute)

	payload, err := json.Marshal(map[string]any{
		"amount":             amount,
		"reference":          fmt.Sprintf("ref-%s", externalID[:8]),
		"description":        "generated test payment",
		"gateway_account_id": "1",
		"email":              "payer@example.com",
	})
	if err != nil {
		return 0, err
	}

	type step struct {
		eventType string
		offset    time.Duration
	}
	steps := []step{
		{"PAYMENT_CREATED", 0},
		{"PAYMENT_STARTED", 5 * time.Second},
	}
	if declined {
		steps = append(steps, step{"AUTHORISATION_REJECTED", 10 * time.Second})
	} else {
		steps = append(steps,
			step{"AUTHORISATION_SUCCESSFUL", 10 * time.Second},
			step{"CAPTURE_CONFIRMED", 20 * time.Second},
		)
	}

	for _, step := range steps {
		ev := &domain.Event{
			ResourceType:       domain.ResourceTypePayment,
			ResourceExternalID: externalID,
			EventType:          step.eventType,
			EventDate:          base.Add(step.offset),
			EventData:          payload,
		}
		if _, err := gateway.Publish(ctx, ev, string(domain.ResourceTypePayment)); err != nil {
			return 0, err
		}
	}
	return len(steps), nil
}
