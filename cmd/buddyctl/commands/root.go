package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/satriahrh/buddy/adapters/searchapi"
)

var (
	verbose    bool
	jsonOutput bool
	searchURL  string
	timeout    time.Duration

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "buddyctl",
	Short: "Command line companion of the buddy search assistant",
	Long: `Command line companion of the buddy search assistant.

Ask the search service questions, grow its corpus and talk to a running
buddy server over its WebSocket protocol.

Environment:
  SEARCH_API_BASE_URL   search service address (default http://localhost:8000)
  ELEVEN_LABS_API_KEY   required by the voices command`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envErr := godotenv.Load()
		if verbose {
			l, err := zap.NewDevelopment()
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			logger = l
		}
		if envErr != nil {
			logger.Debug("No .env file loaded", zap.Error(envErr))
		}
		return nil
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log adapter activity to stderr")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
	rootCmd.PersistentFlags().StringVar(&searchURL, "search-url", "", "search service address, overrides SEARCH_API_BASE_URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")
}

// newSearchClient creates the search service client from the environment and flags
func newSearchClient() (*searchapi.Client, error) {
	config := searchapi.NewSearchAPIConfigFromEnv()
	if searchURL != "" {
		config.BaseURL = searchURL
	}
	config.Timeout = timeout
	return searchapi.NewClient(config, logger)
}

// printJSON writes v as indented JSON to stdout
func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
