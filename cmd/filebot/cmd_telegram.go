package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/filebot/config"
	"github.com/shashiranjanraj/filebot/pkg/telegram"
)

var dropPending bool

// filebot webhook:set: point Telegram at <PUBLIC_URL>/telegram/webhook.
var webhookSetCmd = &cobra.Command{
	Use:   "webhook:set",
	Short: "Register the webhook URL with Telegram",
	RunE: func(cmd *cobra.Command, args []string) error {
		tg, err := connect()
		if err != nil {
			return err
		}
		url := config.PublicURL() + "/telegram/webhook"
		if err := tg.SetWebhook(url, config.WebhookSecret(), dropPending); err != nil {
			return err
		}
		fmt.Println("Webhook set:", url)
		return nil
	},
}

// filebot webhook:delete: switch back to polling.
var webhookDeleteCmd = &cobra.Command{
	Use:   "webhook:delete",
	Short: "Remove the webhook registered with Telegram",
	RunE: func(cmd *cobra.Command, args []string) error {
		tg, err := connect()
		if err != nil {
			return err
		}
		if err := tg.DeleteWebhook(dropPending); err != nil {
			return err
		}
		fmt.Println("Webhook deleted.")
		return nil
	},
}

func init() {
	webhookSetCmd.Flags().BoolVar(&dropPending, "drop-pending", false, "discard updates Telegram is still holding")
	webhookDeleteCmd.Flags().BoolVar(&dropPending, "drop-pending", false, "discard updates Telegram is still holding")
}

func connect() (*telegram.Bot, error) {
	token := config.TelegramToken()
	if token == "" {
		return nil, errors.New("TELEGRAM_TOKEN is required")
	}
	return telegram.New(token, config.TelegramAPIEndpoint())
}
