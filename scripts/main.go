package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/flexprice/flexbill/scripts/internal"
)

// Command represents a script that can be run
type Command struct {
	Name        string
	Description string
	Run         func() error
}

var commands = []Command{
	{
		Name:        "onboard-app",
		Description: "Create an app with its webhook endpoint, payment connection and API key",
		Run:         internal.OnboardApp,
	},
	{
		Name:        "run-job",
		Description: "Run a scheduled job now, for every app or one tenant",
		Run:         internal.RunJob,
	},
	{
		Name:        "kafka-test-connection",
		Description: "Check the configured kafka brokers are reachable",
		Run:         internal.TestKafkaConnection,
	},
}

func main() {
	// Define command line flags
	var (
		listCommands bool
		cmdName      string
		tenantID     string
		userID       string
		job          string
		webhookURL   string
		provider     string
	)

	flag.BoolVar(&listCommands, "list", false, "List all available commands")
	flag.StringVar(&cmdName, "cmd", "", "Command to run")
	flag.StringVar(&tenantID, "tenant-id", "", "Tenant (app) ID for operations")
	flag.StringVar(&userID, "user-id", "", "User ID for operations")
	flag.StringVar(&job, "job", "", "Job name for run-job")
	flag.StringVar(&webhookURL, "webhook-url", "", "Client webhook endpoint for onboard-app")
	flag.StringVar(&provider, "provider", "", "Payment provider for onboard-app, credentials come from PROVIDER_* env vars")

	flag.Parse()

	if listCommands {
		fmt.Println("Available commands:")
		for _, cmd := range commands {
			fmt.Printf("  %-24s %s\n", cmd.Name, cmd.Description)
		}
		return
	}

	if cmdName == "" {
		log.Fatal("Please specify a command to run using -cmd flag. Use -list to see available commands.")
	}

	// Set command-specific environment variables
	for name, value := range map[string]string{
		"TENANT_ID":   tenantID,
		"USER_ID":     userID,
		"JOB":         job,
		"WEBHOOK_URL": webhookURL,
		"PROVIDER":    provider,
	} {
		if value != "" {
			os.Setenv(name, value)
		}
	}

	// Find and run the command
	for _, cmd := range commands {
		if cmd.Name == cmdName {
			if err := cmd.Run(); err != nil {
				log.Fatalf("Error running command %s: %v", cmdName, err)
			}
			return
		}
	}

	log.Fatalf("Unknown command: %s. Use -list to see available commands.", cmdName)
}
