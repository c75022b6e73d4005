package main

import (
	"fmt"

	"save-go/internal/app"
	"save-go/internal/catalog"
	"save-go/internal/model"

	"github.com/spf13/cobra"
)

// space command
var spaceCmd = &cobra.Command{
	Use:   "space",
	Short: "Manage storage spaces",
}

var spaceAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a storage space",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		var in catalog.SpaceInput
		kind, _ := f.GetString("kind")
		in.Kind = model.SpaceKind(kind)
		in.Name, _ = f.GetString("name")
		in.URL, _ = f.GetString("url")
		in.Username, _ = f.GetString("username")
		in.Root, _ = f.GetString("root")
		in.Bucket, _ = f.GetString("bucket")
		in.Prefix, _ = f.GetString("prefix")
		in.Region, _ = f.GetString("region")
		in.Endpoint, _ = f.GetString("endpoint")
		in.AuthorName, _ = f.GetString("author-name")
		in.AuthorRole, _ = f.GetString("author-role")
		in.AuthorOther, _ = f.GetString("author-other")
		askSecret, _ := f.GetBool("secret")
		validate, _ := f.GetBool("validate")

		if askSecret {
			secret, err := readSecret("Space secret: ")
			if err != nil {
				return err
			}
			in.Secret = secret
		}

		return withApp(cmd, "AddSpace", func(a *app.SaveApp) error {
			space, err := a.Catalog().AddSpace(in)
			if err != nil {
				return err
			}
			fmt.Printf("Added space %s (%s)\n", space.PrettyName(), space.ID)

			if validate {
				if err := a.ValidateSpace(cmd.Context(), space.ID); err != nil {
					return err
				}
				fmt.Println("Space is reachable.")
			}
			return nil
		})
	},
}

var spaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List storage spaces",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "ListSpaces", func(a *app.SaveApp) error {
			spaces, err := a.Catalog().Spaces()
			if err != nil {
				return err
			}
			if len(spaces) == 0 {
				fmt.Println("No spaces configured.")
				return nil
			}

			selected := a.Current().SpaceID()
			for _, s := range spaces {
				marker := " "
				if s.ID == selected {
					marker = "*"
				}
				fmt.Printf("%s %s  %-10s  %s\n", marker, s.ID, s.Kind, s.PrettyName())
			}
			return nil
		})
	},
}

var spaceSelectCmd = &cobra.Command{
	Use:   "select ID",
	Short: "Select the space new projects go to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "SelectSpace", func(a *app.SaveApp) error {
			return a.Catalog().SelectSpace(args[0])
		})
	},
}

var spaceRemoveCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Remove a space with its projects, collections and assets",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "RemoveSpace", func(a *app.SaveApp) error {
			return a.Catalog().RemoveSpace(args[0])
		})
	},
}

var spaceLsCmd = &cobra.Command{
	Use:   "ls ID [FOLDER]",
	Short: "List a folder on the space's backend",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		folder := ""
		if len(args) > 1 {
			folder = args[1]
		}
		return withApp(cmd, "ListRemote", func(a *app.SaveApp) error {
			entries, err := a.ListRemote(cmd.Context(), args[0], folder)
			if err != nil {
				return err
			}
			for _, e := range entries {
				if e.IsFolder {
					fmt.Printf("%12s  %s/\n", "-", e.Name)
					continue
				}
				fmt.Printf("%12d  %s\n", e.Size, e.Name)
			}
			return nil
		})
	},
}

// project command
var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var projectAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add a project to a space (the selected one by default)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spaceID, _ := cmd.Flags().GetString("space")
		license, _ := cmd.Flags().GetString("license")

		return withApp(cmd, "AddProject", func(a *app.SaveApp) error {
			p, err := a.Catalog().AddProject(spaceID, args[0], license)
			if err != nil {
				return err
			}
			fmt.Printf("Added project %s (%s)\n", p.Name, p.ID)
			return nil
		})
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the projects of a space",
	RunE: func(cmd *cobra.Command, args []string) error {
		spaceID, _ := cmd.Flags().GetString("space")
		active, _ := cmd.Flags().GetBool("active")

		return withApp(cmd, "ListProjects", func(a *app.SaveApp) error {
			if spaceID == "" {
				spaceID = a.Current().SpaceID()
			}
			projects, err := a.Catalog().Projects(spaceID, active)
			if err != nil {
				return err
			}
			if len(projects) == 0 {
				fmt.Println("No projects.")
				return nil
			}
			for _, p := range projects {
				state := "active"
				if !p.Active {
					state = "archived"
				}
				fmt.Printf("%s  %-8s  %s  %s\n", p.ID, state, p.Created.Format("2006-01-02"), p.Name)
			}
			return nil
		})
	},
}

var projectArchiveCmd = &cobra.Command{
	Use:   "archive ID",
	Short: "Archive a project, or reactivate it with --undo",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		undo, _ := cmd.Flags().GetBool("undo")
		return withApp(cmd, "ArchiveProject", func(a *app.SaveApp) error {
			return a.Catalog().SetProjectActive(args[0], undo)
		})
	},
}

var projectRemoveCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Remove a project with its collections and assets",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "RemoveProject", func(a *app.SaveApp) error {
			return a.Catalog().RemoveProject(args[0])
		})
	},
}

// collection command
var collectionCmd = &cobra.Command{
	Use:   "collection",
	Short: "Manage collections",
}

var collectionAddCmd = &cobra.Command{
	Use:   "add PROJECT_ID [NAME]",
	Short: "Start a collection in a project",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) > 1 {
			name = args[1]
		}
		return withApp(cmd, "AddCollection", func(a *app.SaveApp) error {
			c, err := a.Catalog().AddCollection(args[0], name)
			if err != nil {
				return err
			}
			fmt.Printf("Added collection %s\n", c.ID)
			return nil
		})
	},
}

var collectionListCmd = &cobra.Command{
	Use:   "list PROJECT_ID",
	Short: "List the collections of a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "ListCollections", func(a *app.SaveApp) error {
			collections, err := a.Catalog().Collections(args[0])
			if err != nil {
				return err
			}
			if len(collections) == 0 {
				fmt.Println("No collections.")
				return nil
			}
			for _, c := range collections {
				closed := ""
				if c.Closed != nil {
					closed = "  [closed]"
				}
				fmt.Printf("%s  %s  %s%s\n", c.ID, c.Created.Format("2006-01-02 15:04:05"), c.Name, closed)
			}
			return nil
		})
	},
}

var collectionCloseCmd = &cobra.Command{
	Use:   "close ID",
	Short: "Close a collection to further ingest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "CloseCollection", func(a *app.SaveApp) error {
			return a.Catalog().CloseCollection(args[0])
		})
	},
}

var collectionRemoveCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Remove a collection with its assets",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "RemoveCollection", func(a *app.SaveApp) error {
			return a.Catalog().RemoveCollection(args[0])
		})
	},
}

func init() {
	spaceCmd.AddCommand(spaceAddCmd)
	spaceCmd.AddCommand(spaceListCmd)
	spaceCmd.AddCommand(spaceSelectCmd)
	spaceCmd.AddCommand(spaceRemoveCmd)
	spaceCmd.AddCommand(spaceLsCmd)
	f := spaceAddCmd.Flags()
	f.String("kind", string(model.KindFilesystem), "Space kind: memory, filesystem, s3 or ia")
	f.String("name", "", "Display name")
	f.String("url", "", "Service URL")
	f.String("username", "", "User name or access key")
	f.Bool("secret", false, "Prompt for a password or secret key to store sealed")
	f.String("root", "", "Target directory of a filesystem space")
	f.String("bucket", "", "Bucket, or item identifier for ia")
	f.String("prefix", "", "Key prefix inside the bucket")
	f.String("region", "", "S3 region")
	f.String("endpoint", "", "S3-compatible endpoint URL")
	f.String("author-name", "", "Author name written into metadata")
	f.String("author-role", "", "Author role written into metadata")
	f.String("author-other", "", "Other author information")
	f.Bool("validate", false, "Check that the backend is reachable")

	projectCmd.AddCommand(projectAddCmd)
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectArchiveCmd)
	projectCmd.AddCommand(projectRemoveCmd)
	projectAddCmd.Flags().String("space", "", "Space ID (default: selected space)")
	projectAddCmd.Flags().String("license", "", "License URL or identifier")
	projectListCmd.Flags().String("space", "", "Space ID (default: selected space)")
	projectListCmd.Flags().Bool("active", false, "Only list active projects")
	projectArchiveCmd.Flags().Bool("undo", false, "Reactivate instead")

	collectionCmd.AddCommand(collectionAddCmd)
	collectionCmd.AddCommand(collectionListCmd)
	collectionCmd.AddCommand(collectionCloseCmd)
	collectionCmd.AddCommand(collectionRemoveCmd)
}
