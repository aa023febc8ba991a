package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Hussein-Mazeh/vaultkeeper/internal/vault"
)

func newCategoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "category",
		Aliases: []string{"cat"},
		Short:   "Manage record categories",
	}
	cmd.AddCommand(
		newCategoryListCmd(a),
		newCategoryAddCmd(a),
		newCategoryEditCmd(a),
		newCategoryRemoveCmd(a),
	)
	return cmd
}

func newCategoryListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List categories with their record counts",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.unlocked()
			if err != nil {
				return err
			}
			cats, err := s.ListCategories()
			if err != nil {
				return err
			}
			counts, err := s.CountByCategory()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tRECORDS\tCOLOR\tICON")
			for _, c := range cats {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", c.Name, counts[c.ID], c.Color, c.Icon)
			}
			return tw.Flush()
		},
	}
}

func newCategoryAddCmd(a *app) *cobra.Command {
	var in vault.CategoryInput
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a category",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.unlocked()
			if err != nil {
				return err
			}
			in.Name = args[0]
			c, err := s.AddCategory(in)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "added category %s\n", c.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Color, "color", "", "hex color such as #2196f3")
	cmd.Flags().StringVar(&in.Icon, "icon", "", "icon shown next to the name")
	return cmd
}

func newCategoryEditCmd(a *app) *cobra.Command {
	var in vault.CategoryInput
	cmd := &cobra.Command{
		Use:   "edit <name>",
		Short: "Rename or recolor a category",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.unlocked()
			if err != nil {
				return err
			}
			c, err := findCategory(s, args[0])
			if err != nil {
				return err
			}
			c, err = s.UpdateCategory(c.ID, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "updated category %s\n", c.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "new name")
	cmd.Flags().StringVar(&in.Color, "color", "", "new hex color")
	cmd.Flags().StringVar(&in.Icon, "icon", "", "new icon")
	return cmd
}

func newCategoryRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <name>",
		Short: "Delete a category; its records move to Uncategorized",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.unlocked()
			if err != nil {
				return err
			}
			c, err := findCategory(s, args[0])
			if err != nil {
				return err
			}
			moved, err := s.DeleteCategory(c.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "deleted category %s, %d record(s) moved to Uncategorized\n", c.Name, moved)
			return nil
		},
	}
}
