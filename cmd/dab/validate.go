package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the entity configuration",
	Long: `Validate parses the entity configuration and builds the metadata
store. Unsupported column types and malformed relationships fail here, at
load time, never per request.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadStore(cmd.Context())
		if err != nil {
			return err
		}
		entities := store.Entities()
		fmt.Printf("Configuration is valid. %d entities:\n", len(entities))
		for _, e := range entities {
			switch {
			case e.Procedure != nil:
				fmt.Printf("  - %s -> %s (procedure, %d parameters)\n",
					e.Name, e.Object, len(e.Procedure.Parameters))
			default:
				fmt.Printf("  - %s -> %s (%s, %d columns)\n",
					e.Name, e.Object, e.Object.Kind, len(e.Table.Columns))
			}
		}
		return nil
	},
}
