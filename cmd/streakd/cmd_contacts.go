package main

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// contactsCmd manages the target roster from the terminal
var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "Manage the streak contact roster",
}

var contactsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the configured contacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		roster := store.List()
		if len(roster) == 0 {
			pterm.Info.Println("No contacts configured yet; add one with 'streakd contacts add <nickname>'")
			return nil
		}
		items := make([]pterm.BulletListItem, len(roster))
		for i, nickname := range roster {
			items[i] = pterm.BulletListItem{Level: 0, Text: nickname}
		}
		return pterm.DefaultBulletList.WithItems(items).Render()
	},
}

var contactsAddCmd = &cobra.Command{
	Use:   "add <nickname>",
	Short: "Add a contact to the roster",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		if err := store.Add(args[0]); err != nil {
			return err
		}
		pterm.Success.Printfln("Added %s", args[0])
		return nil
	},
}

var contactsRemoveCmd = &cobra.Command{
	Use:     "remove <nickname>",
	Aliases: []string{"rm"},
	Short:   "Remove a contact from the roster",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		if err := store.Remove(args[0]); err != nil {
			return err
		}
		pterm.Success.Printfln("Removed %s", args[0])
		return nil
	},
}

func init() {
	contactsCmd.AddCommand(contactsListCmd)
	contactsCmd.AddCommand(contactsAddCmd)
	contactsCmd.AddCommand(contactsRemoveCmd)
}
