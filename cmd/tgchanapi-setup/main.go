// Package main contains the one-time interactive setup command that
// authorizes the Telegram session used by the serving process.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tgclient "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/edgard/tgchanapi/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("TELEGRAM_API_ID and TELEGRAM_API_HASH must be set: %w", err)
	}

	client := tgclient.NewClient(cfg.APIID, cfg.APIHash, tgclient.Options{
		SessionStorage: &tgclient.FileSessionStorage{Path: cfg.SessionFile},
	})

	return client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to query auth status: %w", err)
		}

		if !status.Authorized {
			fmt.Println("Not authorized. Starting authentication...")

			phone := cfg.Phone
			if phone == "" {
				phone, err = prompt("Please enter your phone number (with country code, e.g. +1234567890): ")
				if err != nil {
					return err
				}
			} else {
				fmt.Println("Using phone number from configuration:", phone)
			}

			flow := auth.NewFlow(termAuth{phone: phone}, auth.SendCodeOptions{})
			if err := client.Auth().IfNecessary(ctx, flow); err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}
			fmt.Println("Successfully authenticated!")
		} else {
			fmt.Println("Already authorized!")
		}

		self, err := client.Self(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch account info: %w", err)
		}
		username, _ := self.GetUsername()
		if username == "" {
			username = "no username"
		}
		fmt.Printf("Logged in as: %s %s (@%s)\n", self.FirstName, self.LastName, username)
		fmt.Println("Setup complete! You can now run the API server.")
		return nil
	})
}

// termAuth answers the interactive authentication prompts on the
// terminal. The 2FA password is read without echo.
type termAuth struct {
	phone string
}

func (a termAuth) Phone(_ context.Context) (string, error) {
	return a.phone, nil
}

func (a termAuth) Code(_ context.Context, _ *tg.AuthSentCode) (string, error) {
	return prompt("Please enter the code you received: ")
}

func (a termAuth) Password(_ context.Context) (string, error) {
	fmt.Print("Two-step verification is enabled. Please enter your password: ")
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

func (a termAuth) AcceptTermsOfService(_ context.Context, _ tg.HelpTermsOfService) error {
	return nil
}

func (a termAuth) SignUp(_ context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, errors.New("signing up new accounts is not supported")
}

func prompt(label string) (string, error) {
	fmt.Print(label)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
