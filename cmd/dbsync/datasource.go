package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var refreshSchema bool

var testCmd = &cobra.Command{
	Use:   "test [datasource-id]",
	Short: "Test a datasource connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := app.datasources.TestConnection(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := printResult(result, func() {
			fmt.Println(result.Message)
			if result.Error != "" {
				fmt.Printf("  error: %s\n", result.Error)
			}
			if result.Suggestion != "" {
				fmt.Printf("  suggestion: %s\n", result.Suggestion)
			}
		}); err != nil {
			return err
		}
		if !result.Success {
			return fmt.Errorf("connection test failed")
		}
		return nil
	},
}

var tablesCmd = &cobra.Command{
	Use:   "tables [datasource-id]",
	Short: "List the tables of a datasource",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tables, err := app.datasources.ListTables(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printResult(tables, func() {
			for _, t := range tables {
				fmt.Println(t)
			}
		})
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema [datasource-id] [table]",
	Short: "Show the columns of a table",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		schema, err := app.datasources.GetSchema(cmd.Context(), args[0], args[1], refreshSchema)
		if err != nil {
			return err
		}
		return printResult(schema, func() {
			for _, col := range schema.Columns {
				flags := ""
				if col.PrimaryKey {
					flags += " pk"
				}
				if col.Nullable {
					flags += " null"
				}
				fmt.Printf("%-30s %-20s%s\n", col.Name, col.Type, flags)
			}
		})
	},
}

func init() {
	schemaCmd.Flags().BoolVar(&refreshSchema, "refresh", false, "bypass the schema cache")
}
