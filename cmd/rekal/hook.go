package main

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/RolandSherwin/rekal/internal/config"
	"github.com/RolandSherwin/rekal/internal/hook"
	"github.com/RolandSherwin/rekal/internal/install"
)

// newHookCmd groups the capture entry points that the host tools invoke
// with event JSON on stdin. Hidden: users wire these via `rekal install`,
// not by hand.
func newHookCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:    "hook",
		Short:  "Capture hook entry points (invoked by host tools)",
		Hidden: true,
	}

	run := func(fn func(*hook.Handler, context.Context, io.Reader) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(flags.configPath)
			h := hook.NewHandler(cfg, newHookLogger())
			return fn(h, cmd.Context(), os.Stdin)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "turn-complete",
			Short: "Claude Code Stop hook: index the latest turn",
			Args:  cobra.NoArgs,
			RunE:  run((*hook.Handler).TurnComplete),
		},
		&cobra.Command{
			Use:   "prompt-submit",
			Short: "Claude Code UserPromptSubmit hook: register session, early title",
			Args:  cobra.NoArgs,
			RunE:  run((*hook.Handler).PromptSubmit),
		},
		&cobra.Command{
			Use:   "session-end",
			Short: "Claude Code SessionEnd hook: write session recap",
			Args:  cobra.NoArgs,
			RunE:  run((*hook.Handler).SessionEnd),
		},
		&cobra.Command{
			Use:   "codex-turn",
			Short: "Codex notify hook: index a completed turn",
			Args:  cobra.NoArgs,
			RunE:  run((*hook.Handler).CodexTurn),
		},
	)
	return cmd
}

func newInstallCmd() *cobra.Command {
	var claudeHome, codexHome string
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Wire rekal hooks into Claude Code and Codex",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return install.Install(install.Options{
				ClaudeHome: claudeHome,
				CodexHome:  codexHome,
				Out:        cmd.OutOrStdout(),
			})
		},
	}
	cmd.Flags().StringVar(&claudeHome, "claude-home", "", "path to Claude home directory")
	cmd.Flags().StringVar(&codexHome, "codex-home", "", "path to CODEX_HOME")
	return cmd
}

func newUninstallCmd() *cobra.Command {
	var claudeHome, codexHome string
	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove rekal hooks from Claude Code and Codex",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return install.Uninstall(install.Options{
				ClaudeHome: claudeHome,
				CodexHome:  codexHome,
				Out:        cmd.OutOrStdout(),
			})
		},
	}
	cmd.Flags().StringVar(&claudeHome, "claude-home", "", "path to Claude home directory")
	cmd.Flags().StringVar(&codexHome, "codex-home", "", "path to CODEX_HOME")
	return cmd
}
