package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/barolog/barolog/internal/auth"
)

var loginCmd = &cobra.Command{
	Use:     "login",
	GroupID: "account",
	Short:   "Log in as a user and sync",
	Long: `Log in as a user. Readings recorded from now on are owned by the user,
and readings recorded while logged out are claimed by the first upload.

Without --user an interactive form is shown when stdin is a terminal.
A sync cycle runs right after login unless --no-sync is given; a running
dashboard notices the login and syncs on its own.

Example usage:
  barolog login
  barolog login --user u-123 --email me@example.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		email, _ := cmd.Flags().GetString("email")
		noSync, _ := cmd.Flags().GetBool("no-sync")

		if userID == "" {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return fmt.Errorf("--user is required when stdin is not a terminal")
			}
			var err error
			userID, email, err = promptLogin()
			if err != nil {
				return err
			}
		}

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		user := auth.User{ID: strings.TrimSpace(userID), Email: strings.TrimSpace(email)}
		if err := a.session.Login(user); err != nil {
			return err
		}
		fmt.Printf("Logged in as %s\n", okStyle.Render(user.ID))

		if noSync {
			return nil
		}
		if err := a.openSync(ctx); err != nil {
			return err
		}
		res, err := a.engine.Sync(ctx, user.ID)
		printSyncResult(res)
		return err
	},
}

// promptLogin asks for the user id and email.
func promptLogin() (string, string, error) {
	var userID, email string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("User ID").
				Value(&userID).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("user id is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Email").
				Description("Optional, stored with your cloud profile").
				Value(&email),
		),
	)
	if err := form.Run(); err != nil {
		return "", "", fmt.Errorf("login cancelled: %w", err)
	}
	return userID, email, nil
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	GroupID: "account",
	Short:   "Log out",
	Long: `Log out. Local readings are kept; new readings are recorded without an
owner until the next login.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		session := auth.NewSessionFile(cfg.Session)
		user, ok := session.CurrentUser()
		if err := session.Logout(); err != nil {
			return err
		}
		if ok {
			fmt.Printf("Logged out %s\n", user.ID)
		} else {
			fmt.Println("Not logged in")
		}
		return nil
	},
}

func init() {
	loginCmd.Flags().String("user", "", "User id")
	loginCmd.Flags().String("email", "", "User email")
	loginCmd.Flags().Bool("no-sync", false, "Skip the sync after login")

	rootCmd.AddCommand(loginCmd, logoutCmd)
}
