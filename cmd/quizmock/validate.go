package main

import (
	"fmt"

	"github.com/comfortablynumb/quizmock/internal/validator"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [manifest]",
	Short: "Validate a manifest file (the built-in manifest when omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}

		manifest, err := loadManifest(path)
		if err != nil {
			return err
		}

		v, err := validator.NewValidator()
		if err != nil {
			return err
		}
		result := v.Validate(manifest)
		validator.PrintValidationResult(cmd.OutOrStdout(), result)
		if !result.Valid {
			return fmt.Errorf("manifest has %d errors", len(result.Errors))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
