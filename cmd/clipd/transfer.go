package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clipd-io/clipd/internal/export"
	"github.com/clipd-io/clipd/internal/ui"
)

var (
	importMerge  bool
	importDryRun bool
)

var exportCmd = &cobra.Command{
	Use:     "export <file>",
	GroupID: "clips",
	Short:   "Export the namespace to a JSON file",
	Long: `Write every clip in the namespace to a JSON document.

The document carries content, type, timestamps, pins, copy counts,
sources and tags. Ids and sync state are not exported; importing
always mints fresh records.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		eng, closeEngine := openEngine(cfg)
		defer closeEngine()

		doc := export.Export(eng.List())
		if err := export.WriteFile(args[0], doc); err != nil {
			fmt.Fprintf(os.Stderr, "Error exporting: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Exported %d clips to %s\n", ui.RenderPass("✓"), doc.ClipCount, args[0])
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "clips",
	Short:   "Import clips from a JSON export",
	Long: `Import clips from a document produced by 'clipd export'.

The default replaces the namespace's history. With --merge, imported
clips are added alongside the existing ones instead.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		doc, err := export.ReadFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading import file: %v\n", err)
			os.Exit(1)
		}

		cfg := loadConfig()
		eng, closeEngine := openEngine(cfg)
		defer closeEngine()

		mode := export.ModeReplace
		if importMerge {
			mode = export.ModeMerge
		}

		if importDryRun {
			plan, err := export.Plan(doc, mode, eng)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Would import %d clips", plan.Imported)
			if plan.Cleared > 0 {
				fmt.Printf(", replacing %d", plan.Cleared)
			}
			fmt.Println()
			return
		}

		result, err := export.Import(cmd.Context(), eng, doc, mode)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error importing: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Imported %d clips", ui.RenderPass("✓"), result.Imported)
		if result.Cleared > 0 {
			fmt.Printf(" (replaced %d)", result.Cleared)
		}
		fmt.Println()

		if len(result.Errors) > 0 {
			fmt.Printf("%s %d entries failed:\n", ui.RenderWarn("⚠"), len(result.Errors))
			for _, e := range result.Errors {
				fmt.Printf("   %s\n", e)
			}
			os.Exit(1)
		}
	},
}

func init() {
	importCmd.Flags().BoolVar(&importMerge, "merge", false, "add to existing clips instead of replacing")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "report what would change without importing")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
