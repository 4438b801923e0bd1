package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/techshop-api/internal/auth"
)

func (c *cli) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := c.api.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			return c.signedIn(res)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (c *cli) registerCmd() *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := c.api.Register(cmd.Context(), name, email, password)
			if err != nil {
				return err
			}
			return c.signedIn(res)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "password, at least 8 characters")
	for _, f := range []string{"name", "email", "password"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if err := c.storage.Remove(sessionKey); err != nil {
				return err
			}
			c.session = session{}
			fmt.Fprintln(c.out, "Signed out.")
			return nil
		},
	}
}

func (c *cli) signedIn(res auth.SessionResponse) error {
	if res.Token == "" {
		return errors.New("server returned no token")
	}
	if err := c.saveSession(session{
		UserID:  res.ID,
		Name:    res.Name,
		Email:   res.Email,
		IsAdmin: res.IsAdmin,
		Token:   res.Token,
	}); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	role := ""
	if res.IsAdmin {
		role = " (admin)"
	}
	fmt.Fprintf(c.out, "Signed in as %s <%s>%s.\n", res.Name, res.Email, role)
	return nil
}
