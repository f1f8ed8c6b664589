package main

import (
	"os"

	appLog "tripcal/internal/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		appLog.Error("tripcal failed", err)
		os.Exit(1)
	}
}
