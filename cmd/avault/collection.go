package main

import (
	"fmt"

	"github.com/franz/asset-vault/internal/store"
	"github.com/franz/asset-vault/internal/util"
	"github.com/spf13/cobra"
)

var collectionCmd = &cobra.Command{
	Use:     "collection",
	Aliases: []string{"col"},
	Short:   "Group assets into named collections",
}

var collectionCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an empty collection and print its ID",
	Args:  cobra.ExactArgs(1),
	RunE:  runCollectionCreate,
}

var collectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all collections",
	Args:  cobra.NoArgs,
	RunE:  runCollectionList,
}

var collectionShowCmd = &cobra.Command{
	Use:   "show <collection-id>",
	Short: "Show a collection and its member assets",
	Args:  cobra.ExactArgs(1),
	RunE:  runCollectionShow,
}

var collectionAddCmd = &cobra.Command{
	Use:   "add <collection-id> <asset-id>...",
	Short: "Add assets to a collection",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runCollectionAdd,
}

var collectionRemoveCmd = &cobra.Command{
	Use:   "remove <collection-id> <asset-id>...",
	Short: "Remove assets from a collection",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runCollectionRemove,
}

var collectionDeleteCmd = &cobra.Command{
	Use:   "delete <collection-id>",
	Short: "Delete a collection; its assets are kept",
	Args:  cobra.ExactArgs(1),
	RunE:  runCollectionDelete,
}

func init() {
	rootCmd.AddCommand(collectionCmd)
	collectionCmd.AddCommand(collectionCreateCmd, collectionListCmd, collectionShowCmd,
		collectionAddCmd, collectionRemoveCmd, collectionDeleteCmd)

	collectionCreateCmd.Flags().String("description", "", "Collection description")
	collectionCreateCmd.Flags().String("type", "custom:General",
		"Project, Level, Character, Environment, UI, Audio or custom:<name>")
	collectionShowCmd.Flags().StringP("format", "f", "yaml", "Output format: yaml or json")
}

func runCollectionCreate(cmd *cobra.Command, args []string) error {
	description, _ := cmd.Flags().GetString("description")
	typeName, _ := cmd.Flags().GetString("type")

	ctype, err := store.ParseCollectionType(typeName)
	if err != nil {
		return err
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	c, err := db.CreateCollection(cmd.Context(), args[0], description, ctype)
	if err != nil {
		return err
	}
	util.SuccessLog("Created collection %s (%s)", c.Name, c.Type)
	fmt.Fprintln(cmd.OutOrStdout(), c.ID)
	return nil
}

func runCollectionList(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	collections, err := db.ListCollections(cmd.Context())
	if err != nil {
		return err
	}
	if len(collections) == 0 {
		util.InfoLog("No collections")
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-36s %-24s %-20s %7s\n", "ID", "NAME", "TYPE", "ASSETS")
	for _, c := range collections {
		fmt.Fprintf(out, "%-36s %-24s %-20s %7d\n", c.ID, c.Name, c.Type, len(c.AssetIDs))
	}
	return nil
}

// collectionView is what show prints
type collectionView struct {
	store.Collection `yaml:",inline"`
	Assets           []*store.Asset `json:"assets" yaml:"assets"`
}

func runCollectionShow(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	c, err := db.GetCollection(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("collection %s not found", args[0])
	}
	assets, err := db.GetCollectionAssets(cmd.Context(), c.ID)
	if err != nil {
		return err
	}
	return writeStructured(cmd.OutOrStdout(), format, collectionView{Collection: *c, Assets: assets})
}

func runCollectionAdd(cmd *cobra.Command, args []string) error {
	return changeCollection(cmd, args, "Added", func(db *store.Store, collectionID, assetID string) error {
		return db.AddToCollection(cmd.Context(), collectionID, assetID)
	})
}

func runCollectionRemove(cmd *cobra.Command, args []string) error {
	return changeCollection(cmd, args, "Removed", func(db *store.Store, collectionID, assetID string) error {
		return db.RemoveFromCollection(cmd.Context(), collectionID, assetID)
	})
}

// changeCollection applies fn to every asset argument and stops at the
// first failure
func changeCollection(cmd *cobra.Command, args []string, verb string, fn func(db *store.Store, collectionID, assetID string) error) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	collectionID := args[0]
	for _, assetID := range args[1:] {
		if err := fn(db, collectionID, assetID); err != nil {
			return err
		}
		util.DebugLog("%s %s", verb, assetID)
	}
	util.SuccessLog("%s %d assets", verb, len(args)-1)
	return nil
}

func runCollectionDelete(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.DeleteCollection(cmd.Context(), args[0]); err != nil {
		return err
	}
	util.SuccessLog("Deleted collection %s", args[0])
	return nil
}
