package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clipd-io/clipd/internal/engine"
	"github.com/clipd-io/clipd/internal/ui"
)

var (
	addTags   []string
	addPinned bool
	addSource string

	tagRemove  bool
	tagReplace bool

	mergeSep   string
	splitDelim string
)

var addCmd = &cobra.Command{
	Use:     "add [content]",
	GroupID: "clips",
	Short:   "Add a clip explicitly",
	Long: `Add a clip to the history as an explicit user action.

Content comes from the argument, or from stdin when omitted:

  clipd add "some text"
  cat notes.txt | clipd add --tag notes

Explicit adds always create a new record, even in incognito mode and
even when the content already exists in the history.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var content string
		if len(args) == 1 {
			content = args[0]
		} else {
			data, err := io.ReadAll(bufio.NewReader(os.Stdin))
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading stdin: %v\n", err)
				os.Exit(1)
			}
			content = string(data)
		}

		cfg := loadConfig()
		eng, closeEngine := openEngine(cfg)
		defer closeEngine()

		rec, err := eng.AddLocal(cmd.Context(), content, engine.AddOptions{
			Manual: true,
			Source: addSource,
			Tags:   addTags,
			Pinned: addPinned,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error adding clip: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Added clip %s (%s)\n", ui.RenderPass("✓"), ui.RenderAccent(shortID(rec.ID)), rec.Type)
	},
}

var showCmd = &cobra.Command{
	Use:     "show <id>",
	GroupID: "clips",
	Short:   "Print a clip's full content",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		eng, closeEngine := openEngine(cfg)
		defer closeEngine()

		c, err := eng.Get(resolveID(eng, args[0]))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(c.Content)
		if !strings.HasSuffix(c.Content, "\n") {
			fmt.Println()
		}
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm <id>...",
	GroupID: "clips",
	Short:   "Delete clips",
	Long: `Delete one or more clips by id.

With multiple ids this is a bulk delete: ids already absent count as
deleted, and a partial failure reports which ids went through.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		eng, closeEngine := openEngine(cfg)
		defer closeEngine()

		ids := make([]string, len(args))
		for i, a := range args {
			ids[i] = resolveID(eng, a)
		}

		if len(ids) == 1 {
			if err := eng.Delete(cmd.Context(), ids[0]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%s Deleted %s\n", ui.RenderPass("✓"), shortID(ids[0]))
			return
		}

		succeeded, err := eng.BulkDelete(cmd.Context(), ids)
		reportBulk("Deleted", succeeded, err)
	},
}

var pinCmd = &cobra.Command{
	Use:     "pin <id>",
	GroupID: "clips",
	Short:   "Toggle a clip's pinned state",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		eng, closeEngine := openEngine(cfg)
		defer closeEngine()

		c, err := eng.TogglePin(cmd.Context(), resolveID(eng, args[0]))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if c.Pinned {
			fmt.Printf("%s Pinned %s\n", ui.RenderPass("✓"), shortID(c.ID))
		} else {
			fmt.Printf("%s Unpinned %s\n", ui.RenderPass("✓"), shortID(c.ID))
		}
	},
}

var tagCmd = &cobra.Command{
	Use:     "tag <tag>[,tag...] <id>...",
	GroupID: "clips",
	Short:   "Add, remove, or replace tags on clips",
	Long: `Apply tags to one or more clips.

The default adds the tags; --remove and --replace change the mode:

  clipd tag work,urgent a1b2c3d4
  clipd tag urgent --remove a1b2c3d4 e5f6a7b8
  clipd tag archive --replace a1b2c3d4`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if tagRemove && tagReplace {
			fmt.Fprintf(os.Stderr, "Error: --remove and --replace are mutually exclusive\n")
			os.Exit(1)
		}

		tags := strings.Split(args[0], ",")

		cfg := loadConfig()
		eng, closeEngine := openEngine(cfg)
		defer closeEngine()

		ids := make([]string, 0, len(args)-1)
		for _, a := range args[1:] {
			ids = append(ids, resolveID(eng, a))
		}

		mode := engine.TagAdd
		if tagRemove {
			mode = engine.TagRemove
		} else if tagReplace {
			mode = engine.TagReplace
		}

		succeeded, err := eng.BulkTag(cmd.Context(), ids, tags, mode)
		reportBulk("Tagged", succeeded, err)
	},
}

var mergeCmd = &cobra.Command{
	Use:     "merge <id> <id>...",
	GroupID: "clips",
	Short:   "Merge clips into one combined clip",
	Long: `Combine two or more clips into a new clip.

Contents are joined in the order the ids are given; the originals stay
in the history. Tags from all sources carry over.`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		eng, closeEngine := openEngine(cfg)
		defer closeEngine()

		ids := make([]string, len(args))
		for i, a := range args {
			ids[i] = resolveID(eng, a)
		}

		merged, err := eng.MergeSelected(cmd.Context(), ids, mergeSep)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error merging: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Merged %d clips into %s\n",
			ui.RenderPass("✓"), len(ids), ui.RenderAccent(shortID(merged.ID)))
	},
}

var splitCmd = &cobra.Command{
	Use:     "split <id>",
	GroupID: "clips",
	Short:   "Split a clip into multiple clips",
	Long: `Split a clip's content on a delimiter, creating one new clip
per non-empty segment. The original clip stays in the history.

  clipd split a1b2c3d4 --delim ","
  clipd split a1b2c3d4                (splits on newlines)`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		eng, closeEngine := openEngine(cfg)
		defer closeEngine()

		parts, err := eng.SplitRecord(cmd.Context(), resolveID(eng, args[0]), splitDelim)
		if err != nil && len(parts) == 0 {
			fmt.Fprintf(os.Stderr, "Error splitting: %v\n", err)
			os.Exit(1)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s Split partially failed: %v\n", ui.RenderWarn("⚠"), err)
		}

		fmt.Printf("%s Split into %d clips:\n", ui.RenderPass("✓"), len(parts))
		for _, p := range parts {
			fmt.Printf("   %s  %s\n", ui.RenderAccent(shortID(p.ID)), snippet(p.Content, 50))
		}
	},
}

var incognitoCmd = &cobra.Command{
	Use:     "incognito <on|off>",
	GroupID: "clips",
	Short:   "Toggle automatic capture suppression",
	Long: `Control incognito mode for the running daemon.

With incognito on, automatic clipboard captures are silently dropped.
Explicit adds and remote events still go through.

This sets the config default; a running daemon picks it up on restart.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	Run: func(cmd *cobra.Command, args []string) {
		switch args[0] {
		case "on":
			fmt.Printf("%s Incognito on: set incognito: true in your config or CLIPD_INCOGNITO=true\n", ui.RenderPass("✓"))
		case "off":
			fmt.Printf("%s Incognito off: set incognito: false in your config or CLIPD_INCOGNITO=false\n", ui.RenderPass("✓"))
		default:
			fmt.Fprintf(os.Stderr, "Error: expected 'on' or 'off'\n")
			os.Exit(1)
		}
	},
}

func init() {
	addCmd.Flags().StringSliceVar(&addTags, "tag", nil, "tag the new clip (repeatable)")
	addCmd.Flags().BoolVar(&addPinned, "pin", false, "pin the new clip")
	addCmd.Flags().StringVar(&addSource, "source", "cli", "provenance label")

	tagCmd.Flags().BoolVar(&tagRemove, "remove", false, "remove the tags instead of adding")
	tagCmd.Flags().BoolVar(&tagReplace, "replace", false, "replace all tags")

	mergeCmd.Flags().StringVar(&mergeSep, "sep", "\n", "separator between merged contents")
	splitCmd.Flags().StringVar(&splitDelim, "delim", "\n", "delimiter to split on")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(pinCmd)
	rootCmd.AddCommand(tagCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(splitCmd)
	rootCmd.AddCommand(incognitoCmd)
}

// resolveID expands a unique id prefix to the full id. Ambiguous or
// unknown prefixes pass through unchanged and fail downstream with a
// not-found error.
func resolveID(eng *engine.Engine, prefix string) string {
	var match string
	for _, c := range eng.List() {
		if strings.HasPrefix(c.ID, prefix) {
			if match != "" {
				return prefix // ambiguous
			}
			match = c.ID
		}
	}
	if match == "" {
		return prefix
	}
	return match
}

// reportBulk prints the outcome of a bulk operation, including partial
// failures.
func reportBulk(verb string, succeeded []string, err error) {
	var partial *engine.PartialBatchError
	switch {
	case err == nil:
		fmt.Printf("%s %s %d clips\n", ui.RenderPass("✓"), verb, len(succeeded))

	case errors.As(err, &partial):
		fmt.Printf("%s %s %d clips, %d failed:\n",
			ui.RenderWarn("⚠"), verb, len(partial.Succeeded), len(partial.Failed))
		for _, id := range partial.Failed {
			fmt.Printf("   %s: %v\n", shortID(id), partial.Errs[id])
		}
		os.Exit(1)

	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
