package main

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/TheMichaelB/streamfs/internal/client"
	"github.com/TheMichaelB/streamfs/internal/creds"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a session for the Inputs service",
	Long: `Login stores the login and bearer token used by every other command.
The token is read from --token, a session file, an AWS Secrets Manager
secret or, failing those, prompted for.`,
	Example: `  streamfs login --login octocat
  streamfs login --file ./session.json
  streamfs login --secret prod/streamfs/session`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the stored session",
	RunE:  runWhoami,
}

var (
	loginName    string
	loginToken   string
	loginFile    string
	loginSecret  string
	loginExpires time.Duration
)

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)

	loginCmd.Flags().StringVarP(&loginName, "login", "l", "",
		"Account login")
	loginCmd.Flags().StringVarP(&loginToken, "token", "t", "",
		"Bearer token (will prompt if not provided)")
	loginCmd.Flags().StringVar(&loginFile, "file", "",
		"Read the session from a JSON file")
	loginCmd.Flags().StringVar(&loginSecret, "secret", "",
		"Read the session from an AWS Secrets Manager secret")
	loginCmd.Flags().DurationVar(&loginExpires, "expires", 0,
		"Session lifetime (0 never expires)")

	loginCmd.MarkFlagsMutuallyExclusive("file", "secret")
}

func loadSession(ctx context.Context) (*creds.Session, error) {
	switch {
	case loginFile != "":
		return creds.LoadFromFile(loginFile)
	case loginSecret != "":
		return creds.LoadFromSecret(ctx, loginSecret)
	}

	if loginName == "" {
		return nil, fmt.Errorf("--login is required without --file or --secret")
	}
	session := &creds.Session{Login: loginName, Token: loginToken}
	if session.Token == "" {
		token, err := promptSecret("Token: ")
		if err != nil {
			return nil, fmt.Errorf("read token: %w", err)
		}
		session.Token = token
	}
	if loginExpires > 0 {
		session.ExpiresAt = time.Now().Add(loginExpires)
	}
	return session, nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	session, err := loadSession(ctx)
	if err != nil {
		return failure(err, "Login failed")
	}

	c, err := openClient(client.Options{})
	if err != nil {
		return failure(err, "Login failed")
	}
	defer c.Close()

	user, err := c.Login(ctx, session)
	if err != nil {
		return failure(err, "Login failed")
	}

	// Listing the user's Inputs proves the token works.
	entries, err := c.FS.ReadDirectory(ctx, user.URI())
	if err != nil {
		return failure(err, "Login stored but listing %s failed", user.URI())
	}

	result(map[string]interface{}{
		"login":  session.Login,
		"inputs": len(entries),
	}, "Logged in as %s (%d inputs)", session.Login, len(entries))
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	c, err := openClient(client.Options{})
	if err != nil {
		return failure(err, "Logout failed")
	}
	defer c.Close()

	if err := c.Logout(ctx); err != nil {
		return failure(err, "Logout failed")
	}
	result(map[string]interface{}{}, "Logged out")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	session, err := creds.NewStore(cfg.Auth.TokenFile, logger).Load()
	if err != nil {
		return failure(err, "No session")
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"login":      session.Login,
			"expires_at": session.ExpiresAt,
		})
		return nil
	}
	printInfo("Logged in as %s", session.Login)
	if !session.ExpiresAt.IsZero() {
		printInfo("Session expires %s", session.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	// Read without echo
	secret, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)

	if err != nil {
		return "", err
	}
	return string(secret), nil
}
