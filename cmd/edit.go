package main

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ctrise/grantmatch/internal/table"
)

var editCmd = &cobra.Command{
	Use:   "edit <title> <field> <value>",
	Short: "Change one field of a stored grant",
	Long: `Change one field of a stored grant, addressed by its exact title.

Editable fields: ` + strings.Join(table.EditableFields, ", ") + `.

Match score, feasibility, and verification are derived values and cannot
be edited directly.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		tab, err := table.Load(cfg.Table.Path)
		if err != nil {
			return err
		}

		title, field, value := args[0], strings.ToLower(args[1]), args[2]
		if err := tab.Edit(title, field, value); err != nil {
			return err
		}

		fmt.Printf("updated %s of %q\n", field, title)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <title>",
	Short: "Remove a stored grant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tab, err := table.Load(cfg.Table.Path)
		if err != nil {
			return err
		}

		title := args[0]
		if _, ok := tab.Find(title); !ok {
			return eris.Errorf("no grant titled %q", title)
		}
		if err := tab.Delete(title); err != nil {
			return err
		}

		fmt.Printf("deleted %q\n", title)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(deleteCmd)
}
