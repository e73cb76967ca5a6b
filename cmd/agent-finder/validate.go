package main

import (
	"github.com/spf13/cobra"

	"github.com/dispodojo/agent-finder/pkg/input"
)

var validateCmd = &cobra.Command{
	Use:   "validate <input-file>",
	Args:  cobra.ExactArgs(1),
	Short: "Validate an input file without scraping",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := input.Validate(args[0])
		if err != nil {
			return err
		}
		printValidation(v)
		return nil
	},
}
