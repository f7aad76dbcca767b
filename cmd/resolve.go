package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	resolveField    string
	resolveContext  string
	resolveDocument string
	resolveSave     bool
	resolveDebug    bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve a single field",
	Long:  "Resolves one catalog field against a context file or a stored document and prints the resolution as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if resolveSave && resolveDocument == "" {
			return eris.New("--save requires --document")
		}

		fc, err := readContext(resolveContext)
		if err != nil {
			return err
		}

		env, err := initResolver(ctx, "resolve", resolveDocument != "" || cfg.Similar.Enabled)
		if err != nil {
			return err
		}
		defer env.Close()
		defer env.Cost.Log("usage")

		if resolveDocument != "" {
			if fc, err = documentContext(ctx, env.Store, resolveDocument, fc); err != nil {
				return err
			}
		}

		req, known := env.Catalog.Request(resolveField)
		if !known {
			zap.L().Warn("field not in catalog, resolving as free text", zap.String("field", resolveField))
		}

		agentCfg := env.Agent.Config()
		agentCfg.Debug = agentCfg.Debug || resolveDebug
		res, err := env.Agent.ResolveWith(ctx, req, fc, agentCfg)
		if err != nil {
			return err
		}

		if resolveSave {
			if err := env.Store.SaveResolution(ctx, resolveDocument, res.Resolution); err != nil {
				return eris.Wrap(err, "save resolution")
			}
			zap.L().Info("resolution saved",
				zap.String("document_id", resolveDocument),
				zap.String("field", resolveField),
			)
		}

		if agentCfg.Debug {
			return printJSON(cmd.OutOrStdout(), res)
		}
		return printJSON(cmd.OutOrStdout(), res.Resolution)
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveField, "field", "", "field name to resolve")
	resolveCmd.Flags().StringVar(&resolveContext, "context", "", "path to a JSON field context")
	resolveCmd.Flags().StringVar(&resolveDocument, "document", "", "stored document ID to resolve against")
	resolveCmd.Flags().BoolVar(&resolveSave, "save", false, "persist the resolution on the document")
	resolveCmd.Flags().BoolVar(&resolveDebug, "debug", false, "print the full trace including thoughts")
	_ = resolveCmd.MarkFlagRequired("field")
	rootCmd.AddCommand(resolveCmd)
}
