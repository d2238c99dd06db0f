package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/glkbridge/pkg/fileref"
)

var flagKeepSession string

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Inspect and sweep the file-reference ledger",
	Long: `Inspect and sweep the file-reference ledger.

The ledger and file store are taken from the context's client.yaml, or
from --ledger and --files.

Examples:
  glkbridge files ls --ledger ./ledger
  glkbridge files sweep --ledger ./ledger --files ./saves`,
}

var filesListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List the resources recorded in the ledger",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadClientConfig()
		if err != nil {
			return err
		}
		store, err := openLedger(cfg.Ledger)
		if err != nil {
			return err
		}
		defer store.Close()

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "LOCATOR\tUSAGE\tTEMP\tSESSION\tCREATED")
		ledger := fileref.NewLedger(store, "")
		for r, err := range ledger.Records(cmd.Context()) {
			if err != nil {
				return err
			}
			temp := ""
			if r.Temporary {
				temp = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				r.Locator, r.Usage, temp, r.Session, r.CreatedAt.Local().Format(time.DateTime))
		}
		return w.Flush()
	},
}

var filesSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove temporary files left by ended sessions",
	Long: `Remove temporary files left by ended sessions.

Every temporary resource in the ledger is removed from the file store,
except those of the session named by --keep. Do not sweep while another
interpreter shares the ledger.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadClientConfig()
		if err != nil {
			return err
		}
		files, where, err := openFileStore(cfg.Files)
		if err != nil {
			return err
		}
		store, err := openLedger(cfg.Ledger)
		if err != nil {
			return err
		}
		defer store.Close()

		removed, err := fileref.NewLedger(store, flagKeepSession).Sweep(cmd.Context(), files)
		for _, loc := range removed {
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", loc)
		}
		status(cmd.ErrOrStderr(), "swept", "%d temporary files from %s", len(removed), where)
		return err
	},
}

func init() {
	filesSweepCmd.Flags().StringVar(&flagKeepSession, "keep", "", "session whose temporary files are kept")
	filesCmd.PersistentFlags().StringVar(&flagFilesDir, "files", "", "directory for file references")
	filesCmd.PersistentFlags().StringVar(&flagLedger, "ledger", "", "ledger directory")
	filesCmd.AddCommand(filesListCmd)
	filesCmd.AddCommand(filesSweepCmd)
	rootCmd.AddCommand(filesCmd)
}
