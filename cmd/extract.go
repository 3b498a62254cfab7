package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/invoice-cli/internal/model"
	"github.com/sells-group/invoice-cli/internal/pdf"
	"github.com/sells-group/invoice-cli/internal/pipeline"
)

var (
	extractFormat  string
	extractNoAI    bool
	extractNoStore bool
)

// extractResult is the printed result of one document.
type extractResult struct {
	ID       string              `json:"id"`
	File     string              `json:"file"`
	Source   model.TextSource    `json:"source"`
	Record   model.InvoiceRecord `json:"record"`
	Stored   bool                `json:"stored"`
	Warnings []string            `json:"warnings,omitempty"`
}

func newExtractResult(out *pipeline.Outcome) extractResult {
	res := extractResult{
		ID:     out.Invoice.ID,
		File:   out.Invoice.FileName,
		Source: out.Invoice.Source,
		Record: out.Invoice.Record,
		Stored: out.Stored,
	}
	for _, f := range out.Failures {
		res.Warnings = append(res.Warnings, f.UserMessage())
	}
	return res
}

var extractCmd = &cobra.Command{
	Use:   "extract <path|url>",
	Short: "Extract invoice fields from a PDF",
	Long:  "Reads a PDF from a local path or an http(s):// or ftp:// URL and prints the extracted fields with their confidences.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if extractFormat != "json" && extractFormat != "yaml" {
			return eris.Errorf("unsupported format %q (want json or yaml)", extractFormat)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, envOptions{Mode: "extract", NoAI: extractNoAI, NoStore: extractNoStore})
		if err != nil {
			return err
		}
		defer env.Close()

		name, data, err := env.Loader.Load(ctx, args[0])
		if err != nil {
			return err
		}
		doc, err := pdf.NewDocument(name, data)
		if err != nil {
			return err
		}

		out, err := env.Processor.Process(ctx, "cli", doc)
		if err != nil {
			var f *pipeline.Failure
			if errors.As(err, &f) {
				return eris.New(f.UserMessage())
			}
			return err
		}

		return writeResult(cmd.OutOrStdout(), extractFormat, newExtractResult(out))
	},
}

// writeResult prints v as indented JSON or as YAML with the same keys.
func writeResult(w io.Writer, format string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrap(err, "marshal result")
	}
	if format == "json" {
		_, err = fmt.Fprintln(w, string(b))
		return err
	}

	// JSON is valid YAML; decoding it into a node keeps key order and names.
	var node yaml.Node
	if err := yaml.Unmarshal(b, &node); err != nil {
		return eris.Wrap(err, "convert result to yaml")
	}
	blockStyle(&node)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return eris.Wrap(err, "encode yaml")
	}
	return enc.Close()
}

func blockStyle(n *yaml.Node) {
	if n.Kind == yaml.MappingNode || n.Kind == yaml.SequenceNode {
		n.Style = 0
	}
	for _, c := range n.Content {
		blockStyle(c)
	}
}

func init() {
	extractCmd.Flags().StringVar(&extractFormat, "format", "json", "output format: json or yaml")
	extractCmd.Flags().BoolVar(&extractNoAI, "no-ai", false, "skip the AI reconciliation pass")
	extractCmd.Flags().BoolVar(&extractNoStore, "no-store", false, "do not persist the result")
	rootCmd.AddCommand(extractCmd)
}
