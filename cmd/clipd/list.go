package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/clipd-io/clipd/internal/clip"
	"github.com/clipd-io/clipd/internal/ui"
	"github.com/clipd-io/clipd/internal/view"
)

var (
	listQuery   string
	listRegex   bool
	listFuzzy   bool
	listType    string
	listExclude []string
	listCode    bool
	listSince   string
	listUntil   string
	listGroup   bool
	listCounts  bool
	listLimit   int
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	GroupID: "clips",
	Short:   "List and search clip history",
	Long: `List the clip history for a namespace, newest first.

Search flags compose: content filter, exclusion terms, type filter and
date range all apply together. Date bounds accept natural language:

  clipd list --since "yesterday" --until "2 hours ago"
  clipd list -q "TODO" --type code
  clipd list --group`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		eng, closeEngine := openEngine(cfg)
		defer closeEngine()

		opts := view.Options{
			Query:    listQuery,
			Type:     listType,
			Exclude:  listExclude,
			CodeOnly: listCode,
		}
		switch {
		case listRegex:
			opts.Mode = view.ModeRegex
		case listFuzzy:
			opts.Mode = view.ModeFuzzy
		}

		if listSince != "" {
			t, err := parseNaturalTime(listSince)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error parsing --since: %v\n", err)
				os.Exit(1)
			}
			opts.Since = t
		}
		if listUntil != "" {
			t, err := parseNaturalTime(listUntil)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error parsing --until: %v\n", err)
				os.Exit(1)
			}
			opts.Until = t
		}

		all := eng.List()
		clips := view.Filtered(all, opts)

		// Counts always reflect the whole namespace, not the active filter
		if listCounts {
			printCounts(view.Counts(all))
			return
		}

		if listLimit > 0 && len(clips) > listLimit {
			clips = clips[:listLimit]
		}

		if len(clips) == 0 {
			fmt.Println("No clips found")
			return
		}

		if listGroup {
			printGrouped(view.Grouped(clips))
			return
		}

		for _, c := range clips {
			printClipLine(c)
		}
	},
}

func init() {
	listCmd.Flags().StringVarP(&listQuery, "query", "q", "", "search query")
	listCmd.Flags().BoolVar(&listRegex, "regex", false, "treat query as a regular expression")
	listCmd.Flags().BoolVar(&listFuzzy, "fuzzy", false, "fuzzy-match the query")
	listCmd.Flags().StringVar(&listType, "type", "", "filter by type (text, url, code)")
	listCmd.Flags().StringSliceVarP(&listExclude, "exclude", "x", nil, "exclude clips containing term (repeatable)")
	listCmd.Flags().BoolVar(&listCode, "code", false, "only code clips")
	listCmd.Flags().StringVar(&listSince, "since", "", "only clips created at or after this time")
	listCmd.Flags().StringVar(&listUntil, "until", "", "only clips created before this time")
	listCmd.Flags().BoolVarP(&listGroup, "group", "g", false, "group by recency (Today, Yesterday, ...)")
	listCmd.Flags().BoolVar(&listCounts, "counts", false, "print per-type counts instead of clips")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "show at most n clips (0 = all)")

	rootCmd.AddCommand(listCmd)
}

// parseNaturalTime accepts RFC3339, a date, or natural language
// ("yesterday", "2 hours ago", "last monday").
func parseNaturalTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	result, err := w.Parse(s, time.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse time %q: %w", s, err)
	}
	if result == nil {
		return time.Time{}, fmt.Errorf("could not understand time %q", s)
	}
	return result.Time, nil
}

// printClipLine renders one clip as a single line.
func printClipLine(c *clip.Clip) {
	pin := "  "
	if c.Pinned {
		pin = ui.RenderPin("📌")
	}

	meta := fmt.Sprintf("%s  %s", c.CreatedAt.Local().Format("Jan 02 15:04"), c.Type)
	if c.CopyCount > 1 {
		meta += fmt.Sprintf("  x%d", c.CopyCount)
	}
	if len(c.Tags) > 0 {
		meta += "  #" + strings.Join(c.Tags, " #")
	}

	fmt.Printf("%s %s  %s  %s\n",
		pin,
		ui.RenderAccent(shortID(c.ID)),
		snippet(c.Content, 60),
		ui.RenderDim(meta))
}

func printGrouped(groups view.Groups) {
	sections := []struct {
		title string
		clips []*clip.Clip
	}{
		{"Today", groups.Today},
		{"Yesterday", groups.Yesterday},
		{"This Week", groups.ThisWeek},
		{"Older", groups.Older},
	}

	for _, s := range sections {
		if len(s.clips) == 0 {
			continue
		}
		fmt.Printf("\n%s\n", ui.RenderHeader(s.title))
		for _, c := range s.clips {
			printClipLine(c)
		}
	}
	fmt.Println()
}

func printCounts(counts map[string]int) {
	fmt.Printf("All: %d\n", counts["all"])
	for _, t := range []string{"text", "url", "code"} {
		if n, ok := counts[t]; ok {
			fmt.Printf("  %s: %d\n", t, n)
		}
	}
	for t, n := range counts {
		switch t {
		case "all", "text", "url", "code":
			continue
		}
		fmt.Printf("  %s: %d\n", t, n)
	}
}

// shortID truncates a UUID for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// snippet collapses content to one line of at most max runes.
func snippet(content string, max int) string {
	s := strings.Join(strings.Fields(content), " ")
	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:max-1]) + "…"
	}
	return s
}
