package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/goutham-kaluvakolu/MA-System/config"
	core "github.com/goutham-kaluvakolu/MA-System/internal/agent/core"
	"github.com/goutham-kaluvakolu/MA-System/internal/agent/telemetry"
	"github.com/goutham-kaluvakolu/MA-System/internal/capability"
)

func runCMD() *cobra.Command {
	var cfgPath string
	var ceiling int
	var run = &cobra.Command{
		Use:   "run \"<task>\"",
		Short: "Execute a single task and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			tele := telemetry.NewTelemetry(cfg.Telemetry)
			defer tele.Shutdown()
			registry, err := capability.DefaultRegistry(cfg.Capabilities.SigningSecret)
			if err != nil {
				return err
			}
			orchLogger := log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
			orch, err := core.NewOrchestrator(cfg, orchLogger, tele, registry)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			result, err := orch.RunTask(ctx, args[0], ceiling)
			if err != nil {
				return err
			}
			printResult(result)
			if !result.Completed {
				os.Exit(1)
			}
			return nil
		},
	}
	run.Flags().IntVar(&ceiling, "ceiling", 0, "iteration ceiling (defaults to orchestrator.iteration_ceiling)")
	run.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return run
}

func printResult(result core.RunResult) {
	for _, step := range result.History {
		line := fmt.Sprintf("step %d [%s] %s: %s", step.Index, step.Capability, step.Status, step.Instruction)
		fmt.Println(line)
		if step.Error != "" {
			fmt.Printf("  error: %s\n", step.Error)
		} else if step.Result != nil && step.Result.Summary != "" {
			fmt.Printf("  %s\n", step.Result.Summary)
		}
	}
	if result.Completed {
		fmt.Println()
		fmt.Println(result.FinalAnswer)
		return
	}
	fmt.Printf("\nrun aborted: %s\n", result.AbortReason)
}
