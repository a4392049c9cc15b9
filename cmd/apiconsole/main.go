// Package main provides the entry point for the apiconsole CLI.
package main

import (
	"fmt"
	"os"

	"github.com/vitalvas/apiconsole/internal/cli"
	"go.uber.org/zap"
)

func main() {
	log, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	app := cli.New(log)
	if err := app.Execute(); err != nil {
		log.Error("command failed", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}
