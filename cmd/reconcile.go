package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/refdata-tools/depara-admin/internal/entity"
	"github.com/refdata-tools/depara-admin/internal/reconcile"
)

var (
	reconcileProjeto  string
	reconcileEntidade string
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Report mapping status counts against the homologation database",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := newEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		project, err := env.resolveProject(ctx, reconcileProjeto)
		if err != nil {
			return err
		}

		descs := env.Registry.All()
		if reconcileEntidade != "" {
			desc, err := env.Registry.Get(reconcileEntidade)
			if err != nil {
				return err
			}
			descs = []*entity.Descriptor{desc}
		}

		var reports []*reconcile.Report
		for _, desc := range descs {
			store, err := env.Stores.Mapping(ctx, project, desc)
			if err != nil {
				return err
			}
			rows, err := store.ListAll(ctx)
			if err != nil {
				return err
			}
			source, err := env.Stores.Golden(ctx, project, desc)
			if err != nil {
				return err
			}
			reports = append(reports, reconcile.BuildReport(ctx, desc, rows, source))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	},
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileProjeto, "projeto", "", "project name (required)")
	reconcileCmd.Flags().StringVar(&reconcileEntidade, "entidade", "", "limit to one entity slug")
	reconcileCmd.MarkFlagRequired("projeto")
	rootCmd.AddCommand(reconcileCmd)
}
