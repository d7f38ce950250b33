// Package main is the entry point for the chatbot-flow service.
package main

import (
	"os"

	"github.com/wbt-web-support/chatbot-flow/cmd/chatbot-flow/app"
)

func main() {
	if err := app.NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
