package main

import (
	"fmt"
	"time"

	"save-go/internal/app"
	"save-go/internal/model"
	"save-go/internal/notify"
	"save-go/internal/view"

	"github.com/spf13/cobra"
)

// applyFilters configures the filtered asset views from command flags.
func applyFilters(cmd *cobra.Command, a *app.SaveApp) error {
	f := cmd.Flags()
	if f.Changed("project") {
		id, _ := f.GetString("project")
		if err := a.Catalog().FilterByProject(id); err != nil {
			return err
		}
	}
	if f.Changed("collection") {
		id, _ := f.GetString("collection")
		if err := a.Catalog().FocusCollection(id); err != nil {
			return err
		}
	}
	return nil
}

// view command
var viewCmd = &cobra.Command{
	Use:   "view NAME",
	Short: "Print a view, group by group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "PrintView", func(a *app.SaveApp) error {
			if err := applyFilters(cmd, a); err != nil {
				return err
			}
			p, err := a.Store().Snapshot().View(args[0])
			if err != nil {
				return fmt.Errorf("%w (known views: %v)", err, a.Store().Snapshot().Views())
			}
			if p.Len() == 0 {
				fmt.Println("View is empty.")
				return nil
			}
			for _, g := range p.Groups() {
				fmt.Printf("[%s] %d\n", g, p.Count(g))
				for _, r := range p.Rows(g) {
					fmt.Printf("  %s\n", describe(r))
				}
			}
			return nil
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch NAME",
	Short: "Follow a view and print every change until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")

		return withApp(cmd, "WatchView", func(a *app.SaveApp) error {
			if err := applyFilters(cmd, a); err != nil {
				return err
			}
			r, err := a.Bus().NewReader(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			ctx := cmd.Context()
			watchErr := make(chan error, 1)
			go func() { watchErr <- a.Watch(ctx, interval) }()

			fmt.Printf("Watching %s at snapshot %d (%d groups)\n", r.Name(), r.Snapshot().Number(), len(r.Groups()))
			for {
				select {
				case <-ctx.Done():
					return <-watchErr
				case err := <-watchErr:
					return err
				case _, ok := <-r.Changed():
					if !ok {
						return nil
					}
					printDiff(r, r.Diff())
				}
			}
		})
	},
}

func printDiff(r *notify.Reader, d notify.Diff) {
	if d.Empty() {
		return
	}
	if d.ForceFullReload {
		fmt.Printf("snapshot %d -> %d: reload, %d groups\n", d.From, d.To, len(r.Groups()))
		return
	}
	for _, step := range d.Steps {
		fmt.Printf("snapshot %d\n", step.Snapshot)
		for _, s := range step.Sections {
			fmt.Printf("  section %-6s %s @%d\n", s.Kind, s.Group, s.Index)
		}
		for _, c := range step.Rows {
			switch c.Kind {
			case view.Delete:
				fmt.Printf("  row %-6s %s from %s[%d]\n", c.Kind, c.Key, c.FromGroup, c.FromIndex)
			case view.Insert:
				fmt.Printf("  row %-6s %s to %s[%d]\n", c.Kind, c.Key, c.ToGroup, c.ToIndex)
			default:
				fmt.Printf("  row %-6s %s %s[%d] -> %s[%d]\n", c.Kind, c.Key, c.FromGroup, c.FromIndex, c.ToGroup, c.ToIndex)
			}
		}
	}
}

func describe(r view.Row) string {
	switch rec := r.Record.(type) {
	case model.Space:
		return fmt.Sprintf("%s  %-10s  %s", rec.ID, rec.Kind, rec.PrettyName())
	case model.Project:
		return fmt.Sprintf("%s  %s", rec.ID, rec.Name)
	case model.Collection:
		return fmt.Sprintf("%s  %s  %s", rec.ID, rec.Created.Format("2006-01-02 15:04:05"), rec.Name)
	case model.Asset:
		return assetLine(rec)
	case model.Upload:
		return fmt.Sprintf("%s  %s  %d/%d", rec.ID, rec.AssetID, rec.BytesSent, rec.BytesTotal)
	}
	return r.Key
}

func init() {
	for _, c := range []*cobra.Command{viewCmd, watchCmd} {
		c.Flags().String("project", "", "Limit the filtered asset view to a project")
		c.Flags().String("collection", "", "Limit the single collection asset view to a collection")
	}
	watchCmd.Flags().Duration("interval", time.Second, "How often to check for changes by other processes")
}
