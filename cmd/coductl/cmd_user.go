package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codu-code/codu/internal/auth"
	"github.com/codu-code/codu/internal/model"
	"github.com/codu-code/codu/internal/repository"
	"github.com/codu-code/codu/internal/validation"
)

const bannedBy = model.UserID("coductl")

var (
	userKeyFile string
	userName    string
	userAdmin   bool
	banNote     string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Create a user that signs in with an ed25519 key",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserCreate,
}

var userBanCmd = &cobra.Command{
	Use:   "ban <username>",
	Short: "Ban a user and end their sessions",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserBan,
}

var userUnbanCmd = &cobra.Command{
	Use:   "unban <username>",
	Short: "Lift a ban",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserUnban,
}

var userLogoutCmd = &cobra.Command{
	Use:   "logout <username>",
	Short: "End every session of a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserLogout,
}

func init() {
	userCreateCmd.Flags().StringVar(&userKeyFile, "pubkey", "", "PEM encoded ed25519 public key")
	userCreateCmd.Flags().StringVar(&userName, "name", "", "Display name")
	userCreateCmd.Flags().BoolVar(&userAdmin, "admin", false, "Grant the admin role")
	userCreateCmd.MarkFlagRequired("pubkey")

	userBanCmd.Flags().StringVar(&banNote, "note", "", "Reason recorded with the ban")
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	username := args[0]
	if err := validation.Username(username); err != nil {
		return err
	}

	pemKey, err := os.ReadFile(userKeyFile)
	if err != nil {
		return fmt.Errorf("read public key: %w", err)
	}
	if _, err := auth.ParsePublicKeyPEM(string(pemKey)); err != nil {
		return err
	}

	d, repos, err := openRepos()
	if err != nil {
		return err
	}
	defer d.Close()

	u := &model.User{Username: username, Name: userName, PublicKey: string(pemKey)}
	if userAdmin {
		u.Role = model.RoleAdmin
	}
	if err := repos.Users.Create(cmd.Context(), u); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s)\n", u.Username, u.ID)
	return nil
}

func lookupUser(cmd *cobra.Command, repos *repository.Repositories, username string) (*model.User, error) {
	u, err := repos.Users.GetByUsername(cmd.Context(), username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("no user named %q", username)
	}
	return u, err
}

func runUserBan(cmd *cobra.Command, args []string) error {
	d, repos, err := openRepos()
	if err != nil {
		return err
	}
	defer d.Close()

	u, err := lookupUser(cmd, repos, args[0])
	if err != nil {
		return err
	}
	if err := repos.Moderation.Ban(cmd.Context(), u.ID, bannedBy, banNote); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "banned %s\n", u.Username)
	return nil
}

func runUserUnban(cmd *cobra.Command, args []string) error {
	d, repos, err := openRepos()
	if err != nil {
		return err
	}
	defer d.Close()

	u, err := lookupUser(cmd, repos, args[0])
	if err != nil {
		return err
	}
	if err := repos.Moderation.Unban(cmd.Context(), u.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s is not banned", u.Username)
		}
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "unbanned %s\n", u.Username)
	return nil
}

func runUserLogout(cmd *cobra.Command, args []string) error {
	d, repos, err := openRepos()
	if err != nil {
		return err
	}
	defer d.Close()

	u, err := lookupUser(cmd, repos, args[0])
	if err != nil {
		return err
	}
	if err := repos.Users.DeleteSessionsFor(cmd.Context(), u.ID); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "signed out %s\n", u.Username)
	return nil
}
