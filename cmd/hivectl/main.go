package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/meridian/hive/internal/ui"
	"github.com/meridian/hive/pkg/api"
	"github.com/meridian/hive/pkg/client"
	"github.com/meridian/hive/pkg/config"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	Commit    = "unknown"
)

var (
	hiveHost string
	hivePort int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func getClient() *client.Client {
	cfg, _ := config.LoadConfig()
	host := hiveHost
	port := hivePort
	if host == "" {
		host = "localhost"
	}
	if port == 0 {
		port = cfg.Coordinator.Port
	}
	return client.NewClient(host, port, nil)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&hiveHost, "host", "", "coordinator host (default localhost)")
	rootCmd.PersistentFlags().IntVar(&hivePort, "port", 0, "coordinator HTTP port (default from config)")

	pokeCmd.Flags().String("target", "", "battle target URL (required)")
	pokeCmd.Flags().UintP("threads", "t", 0, "number of worker threads")
	pokeCmd.Flags().UintP("connections", "c", 0, "number of connections")
	pokeCmd.Flags().UintP("duration", "d", 0, "battle duration in seconds")
	pokeCmd.Flags().Uint("timeout", 0, "per-request timeout in seconds")
	pokeCmd.Flags().String("method", "", "HTTP method")
	pokeCmd.MarkFlagRequired("target")

	watchCmd.Flags().Duration("interval", 2*time.Second, "refresh interval")

	rootCmd.AddCommand(pokeCmd, statusCmd, ceasefireCmd, torchCmd, listCmd, boopCmd, watchCmd)
}

var rootCmd = &cobra.Command{
	Use:     "hivectl",
	Short:   "Operator CLI for a hive coordinator",
	Long:    `hivectl pokes, watches, and tears down load-generation battles run by a hive coordinator.`,
	Version: fmt.Sprintf("%s (built %s, commit %s)", Version, BuildTime, Commit),
}

var pokeCmd = &cobra.Command{
	Use:   "poke",
	Short: "Start a battle against the online agent roster",
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _ := cmd.Flags().GetString("target")
		threads, _ := cmd.Flags().GetUint("threads")
		conns, _ := cmd.Flags().GetUint("connections")
		duration, _ := cmd.Flags().GetUint("duration")
		timeout, _ := cmd.Flags().GetUint("timeout")
		method, _ := cmd.Flags().GetString("method")

		req := &api.FireRequest{
			Target: target,
			Method: method,
		}
		if threads > 0 {
			req.T = api.FlexUint{Value: threads, Set: true}
		}
		if conns > 0 {
			req.C = api.FlexUint{Value: conns, Set: true}
		}
		if duration > 0 {
			req.D = api.FlexUint{Value: duration, Set: true}
		}
		if timeout > 0 {
			req.Timeout = api.FlexUint{Value: timeout, Set: true}
		}

		c := getClient()
		ctx := context.Background()
		if err := c.Poke(ctx, req); err != nil {
			return err
		}
		color.Green("battle poked at %s", target)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current battle's status",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := getClient()
		ctx := context.Background()
		body, err := c.Status(ctx)
		if err != nil {
			return err
		}

		var s api.StatusResponse
		if err := json.Unmarshal(body, &s); err == nil && s.ETA != "" {
			fmt.Printf("target:  %s\n", s.Running.TargetURL)
			fmt.Printf("percent: %s\n", s.Percent)
			fmt.Printf("eta:     %s\n", s.ETA)
			return nil
		}

		fmt.Println(string(body))
		return nil
	},
}

var ceasefireCmd = &cobra.Command{
	Use:   "ceasefire",
	Short: "Stop the current battle early",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := getClient()
		if err := c.Ceasefire(context.Background()); err != nil {
			return err
		}
		color.Yellow("ceasefire signaled")
		return nil
	},
}

var torchCmd = &cobra.Command{
	Use:   "torch",
	Short: "Shut down every agent and clear the roster",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := getClient()
		if err := c.Torch(context.Background()); err != nil {
			return err
		}
		color.Red("roster torched")
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the registered agent roster",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := getClient()
		agents, err := c.List(context.Background())
		if err != nil {
			return err
		}
		if len(agents) == 0 {
			fmt.Println("no agents registered")
			return nil
		}
		now := time.Now()
		fmt.Println("ID              ADDR                 LAST HEARTBEAT       ONLINE")
		for _, a := range agents {
			online := "no"
			if a.Online(now) {
				online = "yes"
			}
			fmt.Printf("%-15s %-20s %-20s %s\n", a.ID, a.Addr(), a.LastHeartbeat.Format(time.RFC3339), online)
		}
		return nil
	},
}

var boopCmd = &cobra.Command{
	Use:   "boop",
	Short: "Probe every registered agent for liveness",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := getClient()
		if err := c.Boop(context.Background()); err != nil {
			return err
		}
		color.Green("boop complete")
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live-watch the current battle",
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")
		c := getClient()
		model := ui.NewWatchModel(c, interval)
		p := tea.NewProgram(model)
		_, err := p.Run()
		return err
	},
}
