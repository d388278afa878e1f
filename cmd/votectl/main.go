// votectl is a command line client for the call vote register HTTP API.
//
//	votectl [--addr host:port] add <call-id> [--legitimate] [--fraudulent]
//	votectl verdict <call-id>
//	votectl votes <call-id>
//	votectl ids
//	votectl clear <call-id>
//	votectl clear-all
//	votectl watch <call-id>
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/spf13/pflag"

	websocketadapter "istruecaller/contexts/trust-safety/call-vote-register/adapters/websocket"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	var (
		addr       string
		timeout    time.Duration
		legitimate bool
		fraudulent bool
	)
	flagSet := pflag.NewFlagSet("votectl", pflag.ContinueOnError)
	flagSet.StringVar(&addr, "addr", envOr("VOTECTL_ADDR", "localhost:8080"), "register HTTP address")
	flagSet.DurationVar(&timeout, "timeout", 10*time.Second, "per request timeout")
	flagSet.BoolVar(&legitimate, "legitimate", false, "mark the ballot legitimate (add)")
	flagSet.BoolVar(&fraudulent, "fraudulent", false, "mark the ballot fraudulent (add)")
	flagSet.SetInterspersed(true)
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		return errors.New("missing subcommand: add, verdict, votes, ids, clear, clear-all or watch")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	c := newClient(addr, timeout)

	command, operands := rest[0], rest[1:]
	var (
		result any
		err    error
	)
	switch command {
	case "ids":
		result, err = c.CallIDs(ctx)
		return emit(stdout, result, err)
	case "clear-all":
		result, err = c.ClearAll(ctx)
		return emit(stdout, result, err)
	}

	if len(operands) != 1 {
		return fmt.Errorf("%s takes exactly one call id", command)
	}
	callID := operands[0]
	switch command {
	case "add":
		result, err = c.AddVote(ctx, callID, legitimate, fraudulent)
	case "verdict":
		result, err = c.Verdict(ctx, callID)
	case "votes":
		result, err = c.Votes(ctx, callID)
	case "clear":
		result, err = c.ClearCall(ctx, callID)
	case "watch":
		return watch(ctx, c, callID, stdout)
	default:
		return fmt.Errorf("unknown subcommand %q", command)
	}
	return emit(stdout, result, err)
}

func emit(w io.Writer, value any, err error) error {
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

// watch prints one JSON line per verdict change until interrupted.
func watch(ctx context.Context, c *client, callID string, w io.Writer) error {
	conn, _, err := websocket.Dial(ctx, c.watchURL(callID), nil)
	if err != nil {
		return fmt.Errorf("dial watch stream: %w", err)
	}
	defer conn.CloseNow()

	encoder := json.NewEncoder(w)
	for {
		var msg websocketadapter.VerdictMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if ctx.Err() != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return nil
			}
			return err
		}
		if err := encoder.Encode(msg); err != nil {
			return err
		}
	}
}

func envOr(key string, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}
