package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/invoice-cli/internal/model"
	"github.com/sells-group/invoice-cli/internal/store"
)

var (
	listSource string
	listVendor string
	listSince  time.Duration
	listLimit  int
)

var invoicesCmd = &cobra.Command{
	Use:   "invoices",
	Short: "Inspect stored invoices",
}

var invoicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored invoices, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter := store.ListFilter{
			Source: model.TextSource(listSource),
			Vendor: listVendor,
			Limit:  listLimit,
		}
		if listSince > 0 {
			filter.Since = time.Now().Add(-listSince)
		}

		invoices, err := st.ListInvoices(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "list invoices")
		}
		return printInvoiceTable(cmd.OutOrStdout(), invoices)
	},
}

var invoicesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one stored invoice with per-field confidence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		inv, err := st.GetInvoice(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "get invoice %s", args[0])
		}
		printInvoice(cmd.OutOrStdout(), inv)
		return nil
	},
}

func printInvoiceTable(w io.Writer, invoices []model.Invoice) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFILE\tSOURCE\tNUMBER\tVENDOR\tTOTAL\tAI\tCREATED")
	for _, inv := range invoices {
		rec := inv.Record
		ai := ""
		if rec.IsAIEnhanced {
			ai = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			inv.ID, inv.FileName, inv.Source,
			orDash(rec.InvoiceNumber), orDash(rec.Vendor), orDash(rec.Total),
			ai, inv.CreatedAt.Local().Format("2006-01-02 15:04"),
		)
	}
	return tw.Flush()
}

func printInvoice(w io.Writer, inv *model.Invoice) {
	fmt.Fprintf(w, "Invoice %s (%s, text from %s)\n\n", inv.ID, inv.FileName, inv.Source)
	for _, name := range model.ScalarFields {
		f, _ := inv.Record.Field(name)
		fmt.Fprintf(w, "  %s %-14s %-24s %3d%% %s\n", f.Level().Icon(), name, orDash(f), f.Confidence, f.Level())
	}
	if len(inv.Record.LineItems) > 0 {
		fmt.Fprintf(w, "\n  Line items:\n")
		for _, li := range inv.Record.LineItems {
			fmt.Fprintf(w, "    - %s\n", strings.TrimSpace(li.Description))
		}
	}
	if inv.Record.IsAIEnhanced {
		fmt.Fprintln(w, "\n  AI enhanced")
	}
	if oc := inv.Record.OCRConfidence; oc != nil {
		fmt.Fprintf(w, "  OCR confidence: %.1f\n", *oc)
	}
}

func orDash(f model.ExtractedField) string {
	if !f.IsFound() {
		return "-"
	}
	return f.String()
}

func init() {
	invoicesListCmd.Flags().StringVar(&listSource, "source", "", "filter by text source (text_layer, ocr, none)")
	invoicesListCmd.Flags().StringVar(&listVendor, "vendor", "", "filter by vendor substring")
	invoicesListCmd.Flags().DurationVar(&listSince, "since", 0, "only invoices created within this duration")
	invoicesListCmd.Flags().IntVar(&listLimit, "limit", 50, "maximum invoices to list")
	invoicesCmd.AddCommand(invoicesListCmd, invoicesShowCmd)
	rootCmd.AddCommand(invoicesCmd)
}
