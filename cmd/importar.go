package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/refdata-tools/depara-admin/internal/mapping"
	"github.com/refdata-tools/depara-admin/internal/reconcile"
	"github.com/refdata-tools/depara-admin/internal/sheet"
)

var (
	importProjeto  string
	importEntidade string
	importNoSync   bool
)

var importarCmd = &cobra.Command{
	Use:   "importar <planilha.xlsx>",
	Short: "Import a DePara spreadsheet into a project's mapping table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := newEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		desc, err := env.Registry.Get(importEntidade)
		if err != nil {
			return err
		}
		project, err := env.resolveProject(ctx, importProjeto)
		if err != nil {
			return err
		}

		records, err := sheet.ParseFile(args[0], desc)
		if err != nil {
			return err
		}

		store, err := env.Stores.Mapping(ctx, project, desc)
		if err != nil {
			return err
		}
		result, err := store.Import(ctx, records, mapping.ImportOptions{
			BatchCommitRows: cfg.Import.BatchCommitRows,
			MaxRowErrors:    cfg.Import.MaxRowErrors,
		})
		if err != nil {
			return err
		}

		fmt.Printf("inseridos: %d  atualizados: %d  com erro: %d\n",
			result.Inserted, result.Updated, result.Failed)
		for _, re := range result.Errors {
			fmt.Printf("  linha %d: %s\n", re.RowNumber, re.Message)
		}

		if importNoSync || !desc.HasDescription() {
			return nil
		}

		source, err := env.Stores.Golden(ctx, project, desc)
		if err != nil {
			return eris.Wrap(err, "importar: open golden source")
		}
		rows, err := store.ListAll(ctx)
		if err != nil {
			return err
		}
		synced, err := reconcile.NewSyncer(cfg.Golden.SyncWorkers).
			SyncDescriptions(ctx, desc, rows, store, source)
		if err != nil {
			zap.L().Warn("description sync incomplete", zap.Error(err))
		}
		fmt.Printf("descrições sincronizadas: %d\n", synced)
		return nil
	},
}

func init() {
	importarCmd.Flags().StringVar(&importProjeto, "projeto", "", "project name (required)")
	importarCmd.Flags().StringVar(&importEntidade, "entidade", "", "entity slug (required)")
	importarCmd.Flags().BoolVar(&importNoSync, "no-sync", false, "skip the post-import description sync")
	importarCmd.MarkFlagRequired("projeto")
	importarCmd.MarkFlagRequired("entidade")
	rootCmd.AddCommand(importarCmd)
}
