// Command netwallfa runs the firewall syslog ingestion and analytics
// pipeline: live UDP/tail ingest, batch file import, retention cleanup,
// firewall purge, and the operational HTTP surface, all as one process.
package main

import (
	"flag"
	"fmt"
	"os"

	"netwallfa/internal/app"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "", "Path to configuration file")
	flag.Parse()

	if configFile == "" {
		if v := os.Getenv("NETWALLFA_CONFIG_FILE"); v != "" {
			configFile = v
		}
	}

	application, err := app.New(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "netwallfa: failed to initialize: %v\n", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "netwallfa: exited with error: %v\n", err)
		os.Exit(1)
	}
}
