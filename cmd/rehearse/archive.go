package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-rehearse/pkg/archive"
	"github.com/teslashibe/go-rehearse/pkg/exercise"
	"github.com/teslashibe/go-rehearse/pkg/gdocs"
)

var exercisesCmd = &cobra.Command{
	Use:   "exercises",
	Short: "List the available exercises",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		catalog := exercise.NewCatalog(cfg.Agents)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\tTITLE\tPHASES\tAGENT")
		for _, p := range catalog.Profiles() {
			phases := "conversation"
			if p.MultiPhase {
				phases = "declaration, questions"
			}
			agent := "signed URL only"
			if p.HasAgent() {
				agent = "configured"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Kind, p.Title, phases, agent)
		}
		return w.Flush()
	},
}

var reviewKind string

var reviewsCmd = &cobra.Command{
	Use:   "reviews",
	Short: "List archived reviews",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openArchive()
		if err != nil {
			return err
		}
		var kind exercise.Kind
		if reviewKind != "" {
			if kind, err = exercise.ParseKind(reviewKind); err != nil {
				return err
			}
		}
		list, err := store.List(kind)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No reviews yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKIND\tSCORE\tDATE\tSUMMARY")
		for _, r := range list {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
				r.ID, r.Kind, r.Score, r.CreatedAt.Format("2006-01-02 15:04"), truncate(r.Summary, 60))
		}
		return w.Flush()
	},
}

var reviewShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openArchive()
		if err != nil {
			return err
		}
		r, err := store.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Print(gdocs.Format(r))
		if r.DocID != "" {
			fmt.Printf("\nGoogle Doc: %s\n", gdocs.DocURL(r.DocID))
		}
		return nil
	},
}

var reviewDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openArchive()
		if err != nil {
			return err
		}
		if err := store.Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s (%d left)\n", args[0], store.Count())
		return nil
	},
}

func init() {
	reviewsCmd.Flags().StringVar(&reviewKind, "kind", "", "only list one exercise kind")
	reviewsCmd.AddCommand(reviewShowCmd)
	reviewsCmd.AddCommand(reviewDeleteCmd)
}

func openArchive() (*archive.JSONStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return archive.NewJSONStore(cfg.ReviewsPath())
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
