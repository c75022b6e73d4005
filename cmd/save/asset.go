package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"save-go/internal/app"
	"save-go/internal/model"
	"save-go/internal/upload"

	"github.com/spf13/cobra"
)

// asset command
var assetCmd = &cobra.Command{
	Use:   "asset",
	Short: "Manage assets",
}

var assetAddCmd = &cobra.Command{
	Use:   "add COLLECTION_ID FILE...",
	Short: "Ingest files into a collection",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "IngestFiles", func(a *app.SaveApp) error {
			for _, path := range args[1:] {
				abs, err := filepath.Abs(path)
				if err != nil {
					return fmt.Errorf("resolving path: %w", err)
				}
				asset, err := a.Catalog().Ingest(args[0], abs)
				if err != nil {
					return err
				}
				fmt.Printf("%s  %s\n", asset.ID, asset.Filename)
			}
			return nil
		})
	},
}

var assetImportCmd = &cobra.Command{
	Use:   "import COLLECTION_ID [DIR]",
	Short: "Ingest every file of a directory into a collection",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		recursive, _ := cmd.Flags().GetBool("recursive")

		dir := "."
		if len(args) > 1 {
			dir = args[1]
		}
		absDir, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		return withApp(cmd, "IngestDir", func(a *app.SaveApp) error {
			assets, err := a.Catalog().IngestDir(args[0], absDir, recursive, a.Config().Import.Ignore)
			if err != nil {
				return err
			}
			fmt.Printf("Ingested %d file(s)\n", len(assets))
			return nil
		})
	},
}

var assetListCmd = &cobra.Command{
	Use:   "list COLLECTION_ID",
	Short: "List the assets of a collection, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "ListAssets", func(a *app.SaveApp) error {
			assets, err := a.Catalog().Assets(args[0])
			if err != nil {
				return err
			}
			if len(assets) == 0 {
				fmt.Println("No assets.")
				return nil
			}
			for _, asset := range assets {
				fmt.Println(assetLine(asset))
			}
			return nil
		})
	},
}

var assetShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show an asset and the metadata uploaded with it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "ShowAsset", func(a *app.SaveApp) error {
			asset, _, err := a.Catalog().Asset(args[0])
			if err != nil {
				return err
			}
			metadata, err := a.Catalog().ExportMetadata(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("State:   %s\n", asset.State())
			if asset.PublicURL != "" {
				fmt.Printf("URL:     %s\n", asset.PublicURL)
			}
			if asset.Error != "" {
				fmt.Printf("Error:   %s\n", asset.Error)
			}
			fmt.Printf("File:    %s\n", a.Content().FilePath(asset.ID))
			fmt.Printf("Digest:  %s\n\n", asset.Digest)
			fmt.Println(string(metadata))
			return nil
		})
	},
}

var assetEditCmd = &cobra.Command{
	Use:   "edit ID",
	Short: "Edit an asset's descriptive fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		return withApp(cmd, "EditAsset", func(a *app.SaveApp) error {
			asset, err := a.Catalog().UpdateAsset(args[0], func(asset *model.Asset) error {
				if f.Changed("title") {
					asset.Title, _ = f.GetString("title")
				}
				if f.Changed("desc") {
					asset.Desc, _ = f.GetString("desc")
				}
				if f.Changed("location") {
					asset.Location, _ = f.GetString("location")
				}
				if f.Changed("notes") {
					asset.Notes, _ = f.GetString("notes")
				}
				if f.Changed("tags") {
					tags, _ := f.GetStringSlice("tags")
					flagged := asset.Flagged()
					asset.Tags = nil
					for _, t := range tags {
						if t = strings.TrimSpace(t); t != "" {
							asset.Tags = append(asset.Tags, t)
						}
					}
					asset.SetFlagged(flagged)
				}
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Println(assetLine(*asset))
			return nil
		})
	},
}

var assetFlagCmd = &cobra.Command{
	Use:   "flag ID",
	Short: "Flag an asset as sensitive, or clear the flag with --off",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		off, _ := cmd.Flags().GetBool("off")
		return withApp(cmd, "FlagAsset", func(a *app.SaveApp) error {
			_, err := a.Catalog().SetFlagged(args[0], !off)
			return err
		})
	},
}

var assetRemoveCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Remove an asset and its local files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "RemoveAsset", func(a *app.SaveApp) error {
			return a.RemoveAsset(args[0])
		})
	},
}

// upload command
var uploadCmd = &cobra.Command{
	Use:   "upload ASSET_ID...",
	Short: "Upload assets to their spaces",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "Upload", func(a *app.SaveApp) error {
			var mu sync.Mutex
			reported := make(map[string]bool)
			results, err := a.UploadAssets(cmd.Context(), args, func(ev upload.Event) {
				mu.Lock()
				defer mu.Unlock()
				if ev.Terminal() {
					reported[ev.AssetID] = true
				}
				printEvent(ev)
			})
			if err != nil {
				return err
			}

			var failed int
			for _, r := range results {
				if r.Err == nil {
					continue
				}
				failed++
				if !reported[r.AssetID] {
					fmt.Printf("%s  failed: %v\n", r.AssetID, r.Err)
				}
			}
			fmt.Printf("Uploaded %d of %d asset(s)\n", len(results)-failed, len(results))
			if failed > 0 {
				return fmt.Errorf("%d upload(s) failed", failed)
			}
			return nil
		})
	},
}

func printEvent(ev upload.Event) {
	switch ev.Kind {
	case upload.Progress:
		if ev.BytesTotal > 0 {
			fmt.Printf("%s  %3d%%\n", ev.AssetID, ev.BytesSent*100/ev.BytesTotal)
		}
	case upload.Succeeded:
		fmt.Printf("%s  done  %s\n", ev.AssetID, ev.PublicURL)
	case upload.Failed:
		fmt.Printf("%s  failed: %v\n", ev.AssetID, ev.Err)
	}
}

var unpublishCmd = &cobra.Command{
	Use:   "unpublish ASSET_ID",
	Short: "Remove an uploaded asset from its space",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "Unpublish", func(a *app.SaveApp) error {
			if err := a.Uploads().Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Unpublished %s\n", args[0])
			return nil
		})
	},
}

func assetLine(a model.Asset) string {
	flag := ""
	if a.Flagged() {
		flag = "  [" + model.Flag + "]"
	}
	return fmt.Sprintf("%s  %-9s  %s  %s%s", a.ID, a.State(), a.Created.Format("2006-01-02 15:04:05"), a.Filename, flag)
}

func init() {
	assetCmd.AddCommand(assetAddCmd)
	assetCmd.AddCommand(assetImportCmd)
	assetCmd.AddCommand(assetListCmd)
	assetCmd.AddCommand(assetShowCmd)
	assetCmd.AddCommand(assetEditCmd)
	assetCmd.AddCommand(assetFlagCmd)
	assetCmd.AddCommand(assetRemoveCmd)
	assetImportCmd.Flags().BoolP("recursive", "r", false, "Recurse into subdirectories")
	assetEditCmd.Flags().String("title", "", "Title")
	assetEditCmd.Flags().String("desc", "", "Description")
	assetEditCmd.Flags().String("location", "", "Location")
	assetEditCmd.Flags().String("notes", "", "Notes")
	assetEditCmd.Flags().StringSlice("tags", nil, "Comma separated tags (replaces existing ones)")
	assetFlagCmd.Flags().Bool("off", false, "Clear the flag")
}
