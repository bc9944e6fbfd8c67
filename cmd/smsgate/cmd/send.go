package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	sendFrom    string
	sendTo      []string
	sendText    string
	sendOptions string
)

func buildSendBody() (map[string]any, error) {
	body := map[string]any{
		"from": sendFrom,
		"to":   sendTo,
		"text": sendText,
	}
	if sendOptions != "" {
		var opts map[string]any
		if err := json.Unmarshal([]byte(sendOptions), &opts); err != nil {
			return nil, fmt.Errorf("parse --options JSON: %w", err)
		}
		body["options"] = opts
	}
	return body, nil
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send an SMS to multiple recipients inline",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := buildSendBody()
		if err != nil {
			return err
		}
		return callAPI(http.MethodPost, "/sms", body)
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Queue an SMS for deferred delivery by the background worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := buildSendBody()
		if err != nil {
			return err
		}
		return callAPI(http.MethodPost, "/sms/queue", body)
	},
}

func addSendFlags(c *cobra.Command) {
	c.Flags().StringVarP(&sendFrom, "from", "f", "", "Sender id")
	c.Flags().StringArrayVarP(&sendTo, "to", "t", nil, "Recipient phone number (repeatable)")
	c.Flags().StringVar(&sendText, "text", "", "Message text")
	c.Flags().StringVar(&sendOptions, "options", "", "Extra gateway options as raw JSON")
	c.MarkFlagRequired("from")
	c.MarkFlagRequired("to")
	c.MarkFlagRequired("text")
}

func init() {
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(queueCmd)
	addSendFlags(sendCmd)
	addSendFlags(queueCmd)
}
