// garnerd ingests files into a content-addressed store, computing their
// digests and content type in a single streaming pass.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var verbose int

var rootCmd = &cobra.Command{
	Use:   "garnerd",
	Short: "Content-addressed file ingestion engine",
	Long: `garnerd computes cryptographic fingerprints and descriptive metadata
over a file's bytes in a single pass and places the file into a
deterministic, hash-sharded directory store.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		switch {
		case verbose >= 2:
			logrus.SetLevel(logrus.TraceLevel)
		case verbose == 1:
			logrus.SetLevel(logrus.DebugLevel)
		default:
			logrus.SetLevel(logrus.InfoLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "Print lots more stuff (repeat for more)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}
