package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateProjeto string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the directory table and, for a project, every DePara table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := newEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Dir.Migrate(ctx); err != nil {
			return err
		}
		fmt.Println("directory: ok")

		if migrateProjeto == "" {
			return nil
		}

		project, err := env.resolveProject(ctx, migrateProjeto)
		if err != nil {
			return err
		}

		for _, desc := range env.Registry.All() {
			store, err := env.Stores.Mapping(ctx, project, desc)
			if err != nil {
				return err
			}
			if err := store.Migrate(ctx); err != nil {
				return err
			}
			zap.L().Info("migrated", zap.String("projeto", project.Nome), zap.String("entity", desc.Slug))
			fmt.Printf("%s: ok\n", desc.Slug)
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateProjeto, "projeto", "", "also migrate this project's DePara tables")
	rootCmd.AddCommand(migrateCmd)
}
