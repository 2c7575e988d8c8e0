package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clipd-io/clipd/internal/clip"
	"github.com/clipd-io/clipd/internal/ui"
	"github.com/clipd-io/clipd/internal/view"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show namespace and sync status",
	Long: `Display the state of the selected namespace.

Shows:
  - Database location
  - Clip counts by type and pinned count
  - Sync state breakdown (pending / acked / failed)
  - Configured teams and server`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		eng, closeEngine := openEngine(cfg)
		defer closeEngine()

		ns := teamFlag
		if ns == "" {
			ns = "personal"
		}

		fmt.Printf("\n%s\n", ui.RenderHeader("clipd status"))
		fmt.Printf("  Namespace: %s\n", ns)
		fmt.Printf("  Database:  %s\n", cfg.DBPath)

		list := eng.List()
		counts := view.Counts(list)

		pinned := 0
		syncStates := map[clip.SyncState]int{}
		for _, c := range list {
			if c.Pinned {
				pinned++
			}
			syncStates[c.SyncState]++
		}

		fmt.Printf("\n  Clips: %d", counts["all"])
		if pinned > 0 {
			fmt.Printf(" (%d pinned)", pinned)
		}
		fmt.Println()
		for _, t := range []string{"text", "url", "code"} {
			if n, ok := counts[t]; ok {
				fmt.Printf("    %s: %d\n", t, n)
			}
		}

		if cfg.ServerURL != "" {
			fmt.Printf("\n  Server: %s\n", cfg.ServerURL)
			fmt.Printf("    pending: %d\n", syncStates[clip.SyncPending])
			fmt.Printf("    acked:   %d\n", syncStates[clip.SyncAcked])
			if n := syncStates[clip.SyncFailed]; n > 0 {
				fmt.Printf("    failed:  %s\n", ui.RenderFail(fmt.Sprintf("%d", n)))
			}
		} else {
			fmt.Printf("\n  Server: %s\n", ui.RenderDim("not configured (local only)"))
		}

		if len(cfg.Teams) > 0 {
			fmt.Printf("  Teams:  %s\n", strings.Join(cfg.Teams, ", "))
		}

		if cfg.Incognito {
			fmt.Printf("\n  %s Incognito mode on\n", ui.RenderWarn("⚠"))
		}

		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
