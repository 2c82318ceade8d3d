package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newLoginCommand(c *cli) *cobra.Command {
	var passwordFile string
	cmd := &cobra.Command{
		Use:   "login <identifier>",
		Short: "Log in and save the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd, passwordFile)
			if err != nil {
				return err
			}

			sess := c.session(cmd.Context())
			s, err := sess.Login(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			name := s.Identity.DisplayName
			if name == "" {
				name = args[0]
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s until %s\n", name, s.ExpiresAt.Local().Format(time.DateTime))
			return nil
		},
	}
	cmd.Flags().StringVar(&passwordFile, "password-file", "", "read the password from this file instead of prompting")
	return cmd
}

func readPassword(cmd *cobra.Command, passwordFile string) (string, error) {
	if passwordFile != "" && passwordFile != "-" {
		data, err := os.ReadFile(passwordFile)
		if err != nil {
			return "", errors.Wrapf(err, "reading %s", passwordFile)
		}
		password := strings.TrimRight(string(data), "\r\n")
		if password == "" {
			return "", errors.Errorf("%s is empty", passwordFile)
		}
		return password, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no terminal available for the password prompt, use --password-file")
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	return string(raw), nil
}

func newLogoutCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess := c.session(cmd.Context())
			sess.Logout()
			sess.Wait()
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newStatusCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := c.session(cmd.Context()).Current()
			out := cmd.OutOrStdout()
			if s == nil {
				fmt.Fprintln(out, "Not logged in")
				return nil
			}
			fmt.Fprintf(out, "User:    %s <%s>\n", s.Identity.DisplayName, s.Identity.Email)
			if s.Identity.Company != "" {
				fmt.Fprintf(out, "Company: %s\n", s.Identity.Company)
			}
			expiry := s.ExpiresAt.Local().Format(time.DateTime)
			if !s.ValidAt(time.Now()) {
				expiry += " (expired)"
			}
			fmt.Fprintf(out, "Expires: %s\n", expiry)
			return nil
		},
	}
}
