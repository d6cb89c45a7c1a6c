// Command undockctl drives an undockd instance from the shell.
//
//	undockctl [-addr URL] trigger|cancel|status|watch [-until-done]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	addr := flag.String("addr", "http://localhost:8090", "undockd request interface")
	timeout := flag.Duration("timeout", 5*time.Second, "Request timeout")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := newClient(*addr, *timeout)
	if err := run(ctx, c, flag.Arg(0), flag.Args()[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "undockctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: undockctl [flags] trigger|cancel|status|watch [-until-done]\n")
	flag.PrintDefaults()
}

func run(ctx context.Context, c *client, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "trigger":
		a, err := c.trigger(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "success=%t message=%q\n", a.Success, a.Message)

	case "cancel":
		a, err := c.cancel(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "success=%t message=%q\n", a.Success, a.Message)

	case "status":
		snap, err := c.status(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)

	case "watch":
		fs := flag.NewFlagSet("watch", flag.ContinueOnError)
		fs.SetOutput(out)
		untilDone := fs.Bool("until-done", false, "Exit after the first terminal report")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return c.watch(ctx, func(r statusReport) bool {
			fmt.Fprintf(out, "%s run=%s state=%s status=%s attempt=%d %s\n",
				r.Time.Format(time.TimeOnly), r.RunID, r.State, r.StatusName, r.Attempt, r.Text)
			return !(*untilDone && r.terminal())
		})

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}
