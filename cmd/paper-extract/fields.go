// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-extract/internal/config"
)

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "Work with the field configuration",
}

var fieldsValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Check the field configuration without running",
	Long: `Validate loads the field configuration (fields_file, or the given
file) and reports the first problem: an empty or duplicate field_name, an
empty description, or an unknown key.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := loaded.Config.FieldsFile
		if len(args) == 1 {
			path = args[0]
		}
		fields, err := config.LoadFields(path)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: %d fields\n", path, len(fields))
		for _, f := range fields {
			if f.Type != "" {
				fmt.Fprintf(out, "  %-24s (%s) %s\n", f.Name, f.Type, f.Description)
			} else {
				fmt.Fprintf(out, "  %-24s %s\n", f.Name, f.Description)
			}
		}
		return nil
	},
}

func init() {
	fieldsCmd.AddCommand(fieldsValidateCmd)
	rootCmd.AddCommand(fieldsCmd)
}
