package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"

	"github.com/refdata-tools/depara-admin/internal/directory"
	"github.com/refdata-tools/depara-admin/internal/entity"
	"github.com/refdata-tools/depara-admin/internal/sheet"
)

var (
	exportProjeto  string
	exportEntidade string
	exportOut      string
	exportWF       bool
)

var exportarCmd = &cobra.Command{
	Use:   "exportar",
	Short: "Export a project's DePara table (or the golden table) to a spreadsheet",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := newEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		desc, err := env.Registry.Get(exportEntidade)
		if err != nil {
			return err
		}
		project, err := env.resolveProject(ctx, exportProjeto)
		if err != nil {
			return err
		}

		out := exportOut
		if out == "" {
			suffix := "_DePara.xlsx"
			if exportWF {
				suffix = "_WF.xlsx"
			}
			out = desc.Name + suffix
		}

		f, err := buildExport(cmd, env, project, desc)
		if err != nil {
			return err
		}

		file, err := os.Create(out)
		if err != nil {
			return err
		}
		defer file.Close()
		if err := sheet.Write(f, file); err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

func buildExport(cmd *cobra.Command, env *cmdEnv, project *directory.Project, desc *entity.Descriptor) (*xlsx.File, error) {
	ctx := cmd.Context()

	source, err := env.Stores.Golden(ctx, project, desc)
	if err != nil {
		return nil, err
	}

	if exportWF {
		records, err := source.ListRecords(ctx)
		if err != nil {
			return nil, err
		}
		return sheet.ExportGolden(desc, records)
	}

	store, err := env.Stores.Mapping(ctx, project, desc)
	if err != nil {
		return nil, err
	}
	rows, err := store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return sheet.ExportMapping(desc, rows, source.ListCodes(ctx))
}

func init() {
	exportarCmd.Flags().StringVar(&exportProjeto, "projeto", "", "project name (required)")
	exportarCmd.Flags().StringVar(&exportEntidade, "entidade", "", "entity slug (required)")
	exportarCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default <Entity>_DePara.xlsx)")
	exportarCmd.Flags().BoolVar(&exportWF, "wf", false, "export the homologation table instead of the mapping")
	exportarCmd.MarkFlagRequired("projeto")
	exportarCmd.MarkFlagRequired("entidade")
	rootCmd.AddCommand(exportarCmd)
}
