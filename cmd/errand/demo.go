package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/casualjim/errand"
	"github.com/casualjim/errand/internal/demo"
	"github.com/casualjim/errand/isolate"
	"github.com/casualjim/errand/pkg/natsx"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type demoOptions struct {
	useNATS bool
	natsURL string
	host    string
	timeout time.Duration
}

func newDemoCmd() *cobra.Command {
	var o demoOptions
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Call the calculator through a light and a heavy agent",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
			defer cancel()

			spawner, err := demoSpawner(ctx, o)
			if err != nil {
				return err
			}
			return runDemo(ctx, cmd.OutOrStdout(), spawner)
		},
	}
	cmd.Flags().BoolVar(&o.useNATS, "nats", false, "run the heavy agent on a host reachable over NATS instead of in-process")
	cmd.Flags().StringVar(&o.natsURL, "nats-url", natsx.URL(), "NATS server URL")
	cmd.Flags().StringVar(&o.host, "host", envOr("ERRAND_HOST", isolate.DefaultHost), "host name serving heavy agents")
	cmd.Flags().DurationVar(&o.timeout, "timeout", 30*time.Second, "overall deadline")
	return cmd
}

func demoSpawner(ctx context.Context, o demoOptions) (isolate.Spawner, error) {
	if !o.useNATS {
		demo.Register()
		_, spawner, err := isolate.InProcess(ctx, isolate.WithHost(o.host))
		return spawner, err
	}
	nc, err := natsx.NewClient(o.natsURL)
	if err != nil {
		return nil, err
	}
	context.AfterFunc(ctx, nc.Close)
	return isolate.NATSSpawner(nc, isolate.WithHost(o.host)), nil
}

type demoCall struct {
	op  string
	arg any
}

var demoCalls = []demoCall{
	{op: "slow", arg: demo.Delay{Millis: 100, Value: 42}},
	{op: "add", arg: demo.Pair{A: 2, B: 3}},
	{op: "div", arg: demo.Pair{A: 1, B: 0}},
	{op: "echo", arg: "hello"},
}

func runDemo(ctx context.Context, w io.Writer, spawner isolate.Spawner) error {
	calc, err := demo.Calculator(demo.CalculatorConfig{})
	if err != nil {
		return err
	}

	light, err := errand.Light(calc)
	if err != nil {
		return err
	}
	defer light.Fail(nil)

	heavy, err := errand.Heavy(ctx, calc, spawner)
	if err != nil {
		return err
	}
	defer heavy.Fail(nil)

	for _, agent := range []*errand.Agent{light, heavy} {
		if err := exercise(ctx, w, agent); err != nil {
			return err
		}
	}
	return nil
}

func exercise(ctx context.Context, w io.Writer, agent *errand.Agent) error {
	var mu sync.Mutex
	printf := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, format+"\n", args...)
	}

	printf("%s", color.CyanString("%s agent %s", agent.Backend(), agent.ID()))
	send := agent.Send()
	futures := make([]*errand.Future, 0, len(demoCalls))
	for _, c := range demoCalls {
		f := send[c.op](c.arg)
		f.OnResult(func(v any) { printf("  %s %v", color.GreenString("%-5s =", c.op), v) })
		f.OnError(func(err error) { printf("  %s %v", color.RedString("%-5s !", c.op), err) })
		futures = append(futures, f)
	}

	for _, f := range futures {
		select {
		case <-f.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
