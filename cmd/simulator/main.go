// simulator publishes randomly shaped call.vote.submitted events onto the
// submitted votes topic so a register running with ENABLE_VOTE_INGEST=true
// has traffic to consume.
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	workerapp "istruecaller/contexts/trust-safety/call-vote-register/application/workers"
	"istruecaller/internal/platform/logging"
	"istruecaller/internal/platform/messaging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		brokers  []string
		topic    string
		interval time.Duration
		calls    int
		total    int
		logLevel string
	)

	flagSet := pflag.NewFlagSet("simulator", pflag.ContinueOnError)
	flagSet.StringSliceVar(&brokers, "brokers", []string{"localhost:9092"}, "kafka bootstrap brokers")
	flagSet.StringVar(&topic, "topic", workerapp.DefaultSubmittedVotesTopic, "topic to publish submitted votes on")
	flagSet.DurationVar(&interval, "interval", 200*time.Millisecond, "delay between published votes")
	flagSet.IntVar(&calls, "calls", 8, "number of distinct call ids to spread votes over")
	flagSet.IntVar(&total, "count", 0, "stop after this many votes (0 runs until interrupted)")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if calls <= 0 {
		return fmt.Errorf("--calls must be positive, got %d", calls)
	}
	if interval <= 0 {
		return fmt.Errorf("--interval must be positive, got %s", interval)
	}

	logger := logging.New(logLevel, "text").With("process", "simulator")
	bus, err := messaging.NewKafka(brokers, logger)
	if err != nil {
		return err
	}
	defer bus.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	callIDs := make([]string, calls)
	for i := range callIDs {
		callIDs[i] = fmt.Sprintf("sim-call-%03d", i+1)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	published := 0
	for total == 0 || published < total {
		select {
		case <-ctx.Done():
			logger.Info("simulator stopped", "event", "simulator_stopped", "published", published)
			return nil
		case <-ticker.C:
		}

		payload := workerapp.SubmittedVotePayload{
			CallID:     callIDs[rand.IntN(len(callIDs))],
			Legitimate: rand.IntN(2) == 1,
			Fraudulent: rand.IntN(2) == 1,
		}
		envelope, err := workerapp.NewSubmittedVoteEnvelope(uuid.NewString(), payload, time.Now())
		if err != nil {
			return err
		}
		if err := bus.Publish(ctx, topic, envelope); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("publish vote: %w", err)
		}
		published++
		logger.Debug("vote published",
			"event", "simulator_vote_published",
			"call_id", payload.CallID,
			"legitimate", payload.Legitimate,
			"fraudulent", payload.Fraudulent,
		)
	}
	logger.Info("simulator finished", "event", "simulator_finished", "published", published)
	return nil
}
