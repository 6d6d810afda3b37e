package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iprw/revtun/pkg/portprobe"
	"github.com/iprw/revtun/pkg/rlimit"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	var verbosity int

	root := &cobra.Command{
		Use:   "revtun",
		Short: "Reverse TCP tunnel: reverse-connection bridge pool + port-sync channel",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			InitLogging(verbosity)
		},
	}
	root.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (-v, -vv, -vvv)")

	root.AddCommand(serveCmd(), probeCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		Log.Errorf("%v", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the configured role (Inside or Outside) until signaled",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	if err := rlimit.Raise(); err != nil {
		Log.Warnf("failed to raise RLIMIT_NOFILE: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		Log.Infof("received %s, shutting down", sig)
		cancel()
	}()

	switch cfg.Role {
	case RoleInside:
		Log.Infof("starting inside endpoint (pool producer)")
		return NewInsideRuntime(cfg).Run(ctx)
	case RoleOutside:
		Log.Infof("starting outside endpoint (pool consumer)")
		return NewOutsideRuntime(cfg).Run(ctx)
	default:
		return fmt.Errorf("unknown role %q", cfg.Role)
	}
}

func probeCmd() *cobra.Command {
	var filter string
	var exclude string

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Run the backend-port probe once and print the discovered port set",
		RunE: func(cmd *cobra.Command, args []string) error {
			if filter == "" {
				filter = envOr("PROCESS_FILTER", "xray")
			}
			own := parseManualPorts(exclude)
			discovered, err := portprobe.Probe(filter, own...)
			if err != nil {
				return fmt.Errorf("port enumeration failed: %w", err)
			}
			ports := portprobe.Sorted(discovered)
			if len(ports) == 0 {
				fmt.Println("(no matching listeners found)")
				return nil
			}
			strs := make([]string, len(ports))
			for i, p := range ports {
				strs[i] = strconv.Itoa(p)
			}
			fmt.Println(strings.Join(strs, ","))
			return nil
		},
	}
	cmd.Flags().StringVar(&filter, "process-filter", "", "substring to match against the owning process name (default: $PROCESS_FILTER or \"xray\")")
	cmd.Flags().StringVar(&exclude, "exclude-ports", "", "comma-separated ports to exclude from the result (e.g. the tunnel's own ports)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("revtun %s\n", Version)
		},
	}
}
