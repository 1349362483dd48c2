package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jopamo/tfs/pkg/manifest"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the manifest JSON Schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(manifest.Schema())
			return nil
		},
	}
}
