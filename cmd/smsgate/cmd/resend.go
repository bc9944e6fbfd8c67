package cmd

import (
	"net/http"

	"github.com/spf13/cobra"
)

var (
	retryIDs  []string
	retryFrom string
)

func retryBody() map[string]any {
	body := map[string]any{}
	if len(retryIDs) > 0 {
		body["ids"] = retryIDs
	}
	if retryFrom != "" {
		body["from"] = retryFrom
	}
	return body
}

var resendCmd = &cobra.Command{
	Use:   "resend",
	Short: "Re-dispatch unsent SMS inline",
	Long: `Re-dispatch every SMS that is still unsent, immediately and
concurrently. Narrow the set with --id or --from; with no flags all
unsent SMS are retried.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return callAPI(http.MethodPost, "/sms/resend", retryBody())
	},
}

var requeueCmd = &cobra.Command{
	Use:   "requeue",
	Short: "Hand unsent SMS back to the background worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		return callAPI(http.MethodPost, "/sms/requeue", retryBody())
	},
}

func addRetryFlags(c *cobra.Command) {
	c.Flags().StringArrayVar(&retryIDs, "id", nil, "SMS id to retry (repeatable)")
	c.Flags().StringVar(&retryFrom, "from", "", "Only retry SMS with this sender id")
}

func init() {
	rootCmd.AddCommand(resendCmd)
	rootCmd.AddCommand(requeueCmd)
	addRetryFlags(resendCmd)
	addRetryFlags(requeueCmd)
}
