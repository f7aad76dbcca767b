package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/listing-resolver/internal/model"
	"github.com/sells-group/listing-resolver/internal/orchestrator"
)

var (
	categoryName     string
	categoryFields   []string
	categoryContext  string
	categoryDocument string
	categoryStream   bool
)

var categoryCmd = &cobra.Command{
	Use:   "category",
	Short: "Resolve every field of a category",
	Long:  "Resolves the fields of a catalog category and prints the category report, or one JSON event per line with --stream.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		fc, err := readContext(categoryContext)
		if err != nil {
			return err
		}

		env, err := initResolver(ctx, "resolve", categoryDocument != "" || cfg.Similar.Enabled)
		if err != nil {
			return err
		}
		defer env.Close()
		defer env.Cost.Log("usage")

		fields := categoryFields
		if len(fields) == 0 {
			var ok bool
			if fields, ok = env.Catalog.Category(categoryName); !ok {
				return eris.Errorf("unknown category %q (known: %v)", categoryName, env.Catalog.Categories())
			}
		}

		if categoryDocument != "" {
			if fc, err = documentContext(ctx, env.Store, categoryDocument, fc); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		if !categoryStream {
			report, err := env.Orchestrator.ResolveCategory(ctx, categoryName, fields, fc)
			if err != nil {
				return err
			}
			return printJSON(out, report)
		}

		return streamCategory(ctx, out, env.Orchestrator, fields, fc)
	},
}

// streamCategory writes one JSON line per stream event. The stream is
// cancelled and drained before returning, also on write errors.
func streamCategory(ctx context.Context, w io.Writer, o *orchestrator.Orchestrator, fields []string, fc model.FieldContext) error {
	ctx, cancel := context.WithCancel(ctx)
	events := o.ResolveCategoryStream(ctx, fields, fc)
	defer func() {
		cancel()
		for range events {
		}
	}()

	for ev := range events {
		line, err := json.Marshal(ev)
		if err != nil {
			return eris.Wrap(err, "encode event")
		}
		if _, err := fmt.Fprintln(w, string(line)); err != nil {
			return eris.Wrap(err, "write event")
		}
	}
	return ctx.Err()
}

func init() {
	categoryCmd.Flags().StringVar(&categoryName, "name", "", "category name")
	categoryCmd.Flags().StringSliceVar(&categoryFields, "fields", nil, "explicit field list (overrides the catalog category)")
	categoryCmd.Flags().StringVar(&categoryContext, "context", "", "path to a JSON field context")
	categoryCmd.Flags().StringVar(&categoryDocument, "document", "", "stored document ID to resolve against")
	categoryCmd.Flags().BoolVar(&categoryStream, "stream", false, "print one JSON event per field as it resolves")
	_ = categoryCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(categoryCmd)
}
