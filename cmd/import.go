package cmd

import (
	"fmt"

	"github.com/example/deutschbot/internal/excel"
	"github.com/example/deutschbot/pkg/models"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import vocabulary and grammar topics from an .xlsx or .csv file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		importCfg := excel.DefaultImportConfig(args[0])
		if s, _ := cmd.Flags().GetString("vocab-sheet"); s != "" {
			importCfg.VocabSheet = s
		}
		if s, _ := cmd.Flags().GetString("grammar-sheet"); s != "" {
			importCfg.GrammarSheet = s
		}
		if raw, _ := cmd.Flags().GetString("level"); raw != "" {
			level, ok := models.ParseLevel(raw)
			if !ok {
				return fmt.Errorf("unknown level %q", raw)
			}
			importCfg.DefaultLevel = level
		}

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Importer.Import(cmdContext(cmd), importCfg)
		if err != nil {
			return fmt.Errorf("import %s: %w", args[0], err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Rows processed: %d\n", result.TotalProcessed)
		fmt.Fprintf(out, "Words created:  %d\n", result.Created)
		fmt.Fprintf(out, "Words updated:  %d\n", result.Updated)
		fmt.Fprintf(out, "Topics created: %d\n", result.TopicsCreated)
		fmt.Fprintf(out, "Topics updated: %d\n", result.TopicsUpdated)
		fmt.Fprintf(out, "Skipped:        %d\n", result.Skipped)
		for _, e := range result.Errors {
			fmt.Fprintln(out, "  "+e)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().String("level", "", "Level for rows without one (A1-C1)")
	importCmd.Flags().String("vocab-sheet", "", "Sheet holding vocabulary rows")
	importCmd.Flags().String("grammar-sheet", "", "Sheet holding grammar topics")
}
