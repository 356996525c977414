// Command rekal searches your coding-assistant session history. Capture
// happens through hidden hook subcommands that the host tools invoke; the
// visible surface is search, browse, and stats over the indexed turns.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RolandSherwin/rekal/internal/config"
	"github.com/RolandSherwin/rekal/internal/render"
	"github.com/RolandSherwin/rekal/internal/store"
)

type rootFlags struct {
	configPath string
	workspace  string
	limit      int
	plain      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "rekal [query...]",
		Short: "Search your coding session history",
		Long: "Rekal indexes coding-assistant conversations as they happen and\n" +
			"lets you search, browse, and resume context later.",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runRecent(flags, 10)
			}
			return runSearch(flags, strings.Join(args, " "))
		},
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to config file")
	root.PersistentFlags().StringVar(&flags.workspace, "workspace", "", "filter by workspace path")
	root.PersistentFlags().BoolVar(&flags.plain, "plain", false, "plain markdown output, no terminal rendering")
	root.Flags().IntVar(&flags.limit, "limit", 15, "max results")

	root.AddCommand(
		newRecentCmd(flags),
		newShowCmd(flags),
		newStatsCmd(flags),
		newHookCmd(flags),
		newInstallCmd(),
		newUninstallCmd(),
	)
	return root
}

func newRecentCmd(flags *rootFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show recent sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecent(flags, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of sessions")
	return cmd
}

func newShowCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show detail for a session (full id or unique prefix)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(flags)
			if err != nil {
				return err
			}
			defer st.Close()

			detail, err := st.SessionDetail(args[0])
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					fmt.Println(render.Error("Session not found."))
					return nil
				}
				return err
			}
			emit(flags, render.SessionDetail(detail))
			return nil
		},
	}
}

func newStatsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show usage statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(flags)
			if err != nil {
				return err
			}
			defer st.Close()

			stats, err := st.Stats()
			if err != nil {
				return err
			}
			emit(flags, render.Stats(stats))
			return nil
		},
	}
}

func runSearch(flags *rootFlags, query string) error {
	st, err := openStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	results := st.Search(query, flags.workspace, flags.limit)
	emit(flags, render.SearchResults(results))
	return nil
}

func runRecent(flags *rootFlags, limit int) error {
	st, err := openStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	sessions, err := st.RecentSessions(flags.workspace, limit)
	if err != nil {
		return err
	}
	emit(flags, render.RecentSessions(sessions))
	return nil
}

func openStore(flags *rootFlags) (*store.Store, error) {
	cfg := config.Load(flags.configPath)
	return store.Open(cfg.ResolvedDBPath(), newCLILogger())
}

func emit(flags *rootFlags, markdown string) {
	if flags.plain || !stdoutIsTerminal() {
		fmt.Println(markdown)
		return
	}
	fmt.Print(render.Pretty(markdown))
}
