package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/clearsat/atmcorr/internal/properties"
)

type DiscordMessage struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

type DiscordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

// SendDiscordErrorNotification reports a failed scene run to the error
// webhook. A missing webhook URL disables the notification silently.
func SendDiscordErrorNotification(errorMessage string) error {
	url := properties.DiscordErrorNotificationUrl()
	if url == "" {
		return nil
	}

	message := DiscordMessage{
		Embeds: []DiscordEmbed{
			{
				Title:       "🚨 Processing Failed",
				Description: fmt.Sprintf("A scene run failed: %s", errorMessage),
				Color:       16711680, // Red color
			},
		},
	}

	return post(url, message)
}

// SendDiscordSuccessNotification reports a completed scene run to the
// success webhook.
func SendDiscordSuccessNotification(successMessage string) error {
	url := properties.DiscordSuccessNotificationUrl()
	if url == "" {
		return nil
	}

	message := DiscordMessage{
		Embeds: []DiscordEmbed{
			{
				Title:       "✅ Processing Complete",
				Description: successMessage,
				Color:       65280, // Green color
			},
		},
	}

	return post(url, message)
}

func post(url string, message DiscordMessage) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	resp, err := http.Post(url, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to send Discord notification, status code: %d", resp.StatusCode)
	}

	return nil
}
