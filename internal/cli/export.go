package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/promptlane/promptlane/internal/config"
	"github.com/promptlane/promptlane/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored chat history for offline analysis",
	Long: `Export the chat history to a flat file. Parquet rows are flattened to
one row per request/response pair; JSONL keeps the stored entry shape.

Examples:
  promptlane export -o chats.parquet -f parquet
  promptlane export -o chats.jsonl`,
	RunE: runExport,
}

var (
	exportOutput string
	exportFormat string
)

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file path (required)")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "jsonl", "output format (jsonl, parquet)")
	exportCmd.MarkFlagRequired("output")
}

func runExport(cmd *cobra.Command, args []string) error {
	chats := store.NewChatStore(filepath.Join(cfg.Storage.DataDir, config.ChatsFile))
	count, err := chats.Export(exportOutput, exportFormat)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	cmd.Printf("Exported %d entries to %s (%s)\n", count, exportOutput, exportFormat)
	return nil
}
