package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-cli/internal/export"
	"github.com/sells-group/invoice-cli/internal/model"
	"github.com/sells-group/invoice-cli/internal/store"
)

var (
	exportOut    string
	exportSource string
	exportLimit  int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored invoices to an xlsx workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		invoices, err := st.ListInvoices(ctx, store.ListFilter{
			Source: model.TextSource(exportSource),
			Limit:  exportLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list invoices")
		}
		if err := export.Save(exportOut, invoices); err != nil {
			return err
		}

		zap.L().Info("export complete", zap.String("out", exportOut), zap.Int("invoices", len(invoices)))
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d invoices to %s\n", len(invoices), exportOut)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "invoices.xlsx", "output xlsx path")
	exportCmd.Flags().StringVar(&exportSource, "source", "", "filter by text source (text_layer, ocr, none)")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 1000, "maximum invoices to export")
	rootCmd.AddCommand(exportCmd)
}
