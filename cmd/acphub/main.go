// Command acphub is the CLI entrypoint for the agent orchestration hub
// (spec.md §4.6): a single "run" subcommand that submits one task, and a
// "repl" subcommand that reads tasks interactively, one per line, running
// each through the same spawn -> initialize -> submit -> monitor -> shutdown
// lifecycle as "run" (spec.md §4.6 describes Hub.run_task as one complete
// cycle per task; repl just loops it). Flag and signal-handling conventions
// follow cmd/run-executor/main.go; the interactive loop follows
// internal/repl/repl.go's readline setup.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/acphub/internal/config"
	"github.com/steveyegge/acphub/internal/hub"
)

var rootCmd = &cobra.Command{
	Use:   "acphub",
	Short: "Orchestrate coding agents over ACP-family protocols",
}

var (
	configPath    string
	registryPath  string
	runAgentID    string
	runRouteMode  string
)

var runCmd = &cobra.Command{
	Use:   "run <task>",
	Short: "Spawn the configured agents and submit one task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := buildHub()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			fmt.Fprintln(os.Stderr, "\ninterrupted, shutting down agents...")
			cancel()
		}()

		code := h.RunTask(ctx, args[0], runAgentID, runRouteMode)
		os.Exit(code)
		return nil
	},
}

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Submit tasks to the configured agents interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := buildHub()
		if err != nil {
			return err
		}
		return runREPL(h)
	},
}

func buildHub() (*hub.Hub, error) {
	reg := config.NewRegistry()
	if registryPath != "" {
		if err := reg.LoadOverlay(registryPath); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(configPath, reg)
	if err != nil {
		return nil, err
	}
	return hub.New(cfg), nil
}

func runREPL(h *hub.Hub) error {
	cyan := color.New(color.FgCyan).SprintFunc()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:       cyan("acphub> "),
		HistoryLimit: 1000,
		EOFPrompt:    "exit",
	})
	if err != nil {
		return fmt.Errorf("acphub: creating readline: %w", err)
	}
	defer rl.Close()

	fmt.Println("acphub repl — each line is submitted as a task; Ctrl+D to exit.")
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				fmt.Println("\ngoodbye.")
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		ctx, cancel := context.WithCancel(context.Background())
		code := h.RunTask(ctx, line, runAgentID, runRouteMode)
		cancel()
		if code != 0 {
			red := color.New(color.FgRed).SprintFunc()
			fmt.Printf("%s task exited with code %d\n", red("error:"), code)
		}
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "acphub.json", "path to the hub config file")
	rootCmd.PersistentFlags().StringVar(&registryPath, "registry", "", "optional agent registry overlay (YAML)")
	rootCmd.PersistentFlags().StringVar(&runAgentID, "agent", "", "restrict to a single configured agent id")
	rootCmd.PersistentFlags().StringVar(&runRouteMode, "route", "single", "delivery mode: single, broadcast, round-robin, moderator")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
