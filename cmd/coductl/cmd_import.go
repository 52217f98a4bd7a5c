package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codu-code/codu/internal/repository"
)

var (
	importOwner  string
	importDrafts bool
)

var importCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Import a directory of markdown posts",
	Long: `Import every .md file in a directory as a post owned by --owner.

Front matter supplies the title, tags, excerpt and date. Files without it
use their name as title and their modification time as date.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importOwner, "owner", "", "Username that will own the posts")
	importCmd.Flags().BoolVar(&importDrafts, "drafts", false, "Import as drafts instead of published posts")
	importCmd.MarkFlagRequired("owner")
}

func runImport(cmd *cobra.Command, args []string) error {
	d, repos, err := openRepos()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := cmd.Context()
	owner, err := repos.Users.GetByUsername(ctx, importOwner)
	if err != nil {
		return fmt.Errorf("owner %q: %w", importOwner, err)
	}

	posts, err := repository.ReadMarkdownDir(args[0], owner.ID, importDrafts)
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	imported := 0
	for i := range posts {
		if err := repos.Posts.Import(ctx, &posts[i]); err != nil {
			log.Error().Err(err).Str("title", posts[i].Title).Msg("Error importing post")
			continue
		}
		imported++
		log.Debug().Str("slug", posts[i].Slug).Msg("Imported post")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "imported %d of %d posts\n", imported, len(posts))
	if imported < len(posts) {
		return fmt.Errorf("%d posts failed to import", len(posts)-imported)
	}
	return nil
}
