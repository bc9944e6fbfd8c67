package main

import (
	"os"

	"github.com/nyotafm/smsgate/cmd/smsgate/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
