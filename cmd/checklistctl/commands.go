package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var categoriesCmd = &cobra.Command{
	Use:     "categories",
	Aliases: []string{"cat"},
	Short:   "List, add and remove categories",
}

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "List, add, complete and remove items",
}

var itemAttribution string

func init() {
	categoriesCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List categories",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				c, _, err := newClient()
				if err != nil {
					return err
				}
				categories, err := c.ListCategories(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), renderCategories(categories))
				return nil
			},
		},
		&cobra.Command{
			Use:   "add NAME...",
			Short: "Create a category",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, _, err := newClient()
				if err != nil {
					return err
				}
				category, err := c.CreateCategory(cmd.Context(), strings.Join(args, " "))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("created category %d %q", category.ID, category.Name)))
				return nil
			},
		},
		&cobra.Command{
			Use:   "rm ID",
			Short: "Delete a category and all of its items",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseIDArg(args[0])
				if err != nil {
					return err
				}
				c, _, err := newClient()
				if err != nil {
					return err
				}
				if err := c.DeleteCategory(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("deleted category %d", id)))
				return nil
			},
		},
	)

	addItemCmd := &cobra.Command{
		Use:   "add CATEGORY_ID NAME...",
		Short: "Add an item to a category",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			categoryID, err := parseIDArg(args[0])
			if err != nil {
				return err
			}
			c, _, err := newClient()
			if err != nil {
				return err
			}
			item, err := c.CreateItem(cmd.Context(), strings.Join(args[1:], " "), categoryID, itemAttribution)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("created item %d %q", item.ID, item.Name)))
			return nil
		},
	}
	addItemCmd.Flags().StringVar(&itemAttribution, "by", "", "who added the item")

	itemsCmd.AddCommand(
		&cobra.Command{
			Use:   "list CATEGORY_ID",
			Short: "List the items of a category",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				categoryID, err := parseIDArg(args[0])
				if err != nil {
					return err
				}
				c, _, err := newClient()
				if err != nil {
					return err
				}
				items, err := c.ListItems(cmd.Context(), categoryID)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), renderItems(items))
				return nil
			},
		},
		addItemCmd,
		completionCmd("done", true),
		completionCmd("undo", false),
		&cobra.Command{
			Use:   "rm ID",
			Short: "Delete an item",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseIDArg(args[0])
				if err != nil {
					return err
				}
				c, _, err := newClient()
				if err != nil {
					return err
				}
				if err := c.DeleteItem(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("deleted item %d", id)))
				return nil
			},
		},
	)
}

func completionCmd(use string, completed bool) *cobra.Command {
	short := "Mark an item as done"
	if !completed {
		short = "Mark an item as not done"
	}
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args[0])
			if err != nil {
				return err
			}
			c, _, err := newClient()
			if err != nil {
				return err
			}
			if err := c.SetItemCompletion(cmd.Context(), id, completed); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("item %d %s", id, use)))
			return nil
		},
	}
}
