// Command emergency runs the emergency coordination server and its tools.
//
// Usage:
//
//	emergency serve              - run the HTTP and websocket server
//	emergency drill <category>   - rehearse a handoff against in-process adapters
//	emergency monitor            - tail coordinator events as a dispatch console
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "emergency",
	Short: "Emergency coordination engine",
	Long: `Coordinates the handoff of a live emergency from on-device guidance
to a human dispatcher: audio override, dispatcher context and handoff timing.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newLogger builds the production logger at the given level
func newLogger(level zapcore.Level) (*zap.Logger, error) {
	if verbose {
		level = zapcore.DebugLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}
