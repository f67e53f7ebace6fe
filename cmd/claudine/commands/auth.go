package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/claudine-gateway/internal/app"
)

// authCommand returns the 'auth' subcommand for managing the backend API key.
func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the backend API key",
		Commands: []*cli.Command{
			authLoginCommand(),
			authLogoutCommand(),
			authStatusCommand(),
		},
	}
}

// authLoginCommand returns the 'auth login' subcommand.
func authLoginCommand() *cli.Command {
	return &cli.Command{
		Name:   "login",
		Usage:  "Save the backend API key to the configured storage",
		Action: authLoginAction,
	}
}

// authLogoutCommand returns the 'auth logout' subcommand.
func authLogoutCommand() *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Remove the backend API key from the configured storage",
		Action: authLogoutAction,
	}
}

func authStatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show whether a backend API key is configured",
		Action: authStatusAction,
	}
}

// writableKeyStore loads config and opens its key store, rejecting read-only env storage.
func writableKeyStore(cmd *cli.Command, action string) (app.KeyStore, error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Auth.Storage == app.KeyStorageTypeEnv {
		return nil, fmt.Errorf("cannot %s with env storage (read-only). Configure file or keyring storage", action)
	}

	store, err := cfg.Auth.NewKeyStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create key store: %w", err)
	}
	return store, nil
}

// authLoginAction prompts for the backend API key and stores it.
func authLoginAction(ctx context.Context, cmd *cli.Command) error {
	store, err := writableKeyStore(cmd, "login")
	if err != nil {
		return err
	}

	fmt.Println("=== Backend API Key ===")
	fmt.Println()
	fmt.Println("The key is sent as a bearer token (or api-key header on Azure) to the configured backend.")

	key, err := readSecureInput(ctx, "\nEnter API key: ")
	if err != nil {
		return err
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("API key cannot be empty")
	}

	if err := store.Write(ctx, key); err != nil {
		return fmt.Errorf("failed to write API key: %w", err)
	}

	fmt.Println()
	fmt.Println("=== Login Successful ===")
	fmt.Println("API key saved to configured storage")

	return nil
}

// authLogoutAction clears the stored backend API key.
func authLogoutAction(ctx context.Context, cmd *cli.Command) error {
	store, err := writableKeyStore(cmd, "logout")
	if err != nil {
		return err
	}

	// Clear key via empty string write to maintain storage abstraction
	if err := store.Write(ctx, ""); err != nil {
		return fmt.Errorf("failed to clear API key: %w", err)
	}

	fmt.Println()
	fmt.Println("=== Logout Successful ===")
	fmt.Println("API key cleared from configured storage")

	return nil
}

func authStatusAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := cfg.Auth.NewKeyStore()
	if err != nil {
		return fmt.Errorf("failed to create key store: %w", err)
	}

	key, err := store.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read API key: %w", err)
	}

	fmt.Printf("storage: %s\n", cfg.Auth.Storage)
	switch {
	case cfg.UsesEntraID():
		fmt.Println("auth:    Entra ID client credentials")
	case key == "":
		fmt.Println("api key: not configured")
	default:
		fmt.Printf("api key: %s\n", maskKey(key))
	}
	return nil
}

// maskKey keeps only the last four characters of key.
func maskKey(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", 8) + key[len(key)-4:]
}

// readSecureInput reads user input with hidden display and context cancellation support.
// Goroutine+select pattern required because term.ReadPassword has no native context support.
func readSecureInput(ctx context.Context, prompt string) (string, error) {
	fmt.Print(prompt)
	defer fmt.Println()

	type result struct {
		value string
		err   error
	}
	resultCh := make(chan result, 1)

	go func() {
		inputBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		resultCh <- result{value: string(inputBytes), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			return "", fmt.Errorf("failed to read input: %w", res.err)
		}
		return res.value, nil
	}
}
