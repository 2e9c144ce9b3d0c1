package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"AgentFlow/internal/agent"
	"AgentFlow/internal/config"
)

type runOptions struct {
	asJSON     bool
	quiet      bool
	exportPath string
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <query...>",
		Short: "Execute a single query and print the step narrative",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, root.cfg, strings.Join(args, " "), opts)
		},
	}
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the execution record as JSON")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "do not print steps while they run")
	cmd.Flags().StringVar(&opts.exportPath, "export", "", "write the resulting memory to this file")
	return cmd
}

func runQuery(cmd *cobra.Command, cfg *config.Config, query string, opts *runOptions) error {
	out := cmd.OutOrStdout()

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	var extra []agent.Option
	if !opts.quiet && !opts.asJSON {
		extra = append(extra, agent.WithObserver(progressPrinter(out)))
	}
	ag := buildAgent(cfg, registry, extra...)

	memory := agent.NewMemory()
	exec := ag.ExecuteQuery(cmd.Context(), query, memory)
	memory = memory.Append(exec)

	if opts.exportPath != "" {
		if err := exportMemory(opts.exportPath, memory); err != nil {
			return err
		}
	}

	if opts.asJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(exec); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "\n%s\n", exec.FinalResult)
	}
	if exec.Status == agent.StatusFailed {
		return fmt.Errorf("execution %s failed", exec.ID)
	}
	return nil
}

// progressPrinter 输出步骤的开始与结束。
func progressPrinter(out io.Writer) agent.Observer {
	return func(_ string, step agent.Step) {
		switch {
		case !step.Completed:
			fmt.Fprintf(out, "... %s\n", step.Description)
		case step.Failed():
			fmt.Fprintf(out, "[x] %s\n", step.Description)
		default:
			fmt.Fprintf(out, "[v] %s\n", step.Description)
		}
	}
}

func exportMemory(path string, memory agent.Memory) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if err := memory.Export(file); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
