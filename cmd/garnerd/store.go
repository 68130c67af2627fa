package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/stumpinator/garnerd/filestore"
)

var (
	storeRoot        string
	storeDepth       int
	storeMaxFiles    int64
	storeMinFree     float64
	storeMaxFileSize int64
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage the content-addressed directory store",
}

func openStore() (*filestore.Store, error) {
	if storeRoot == "" {
		return nil, errors.New("--root is required")
	}
	return filestore.New(storeRoot,
		filestore.WithDepth(storeDepth),
		filestore.WithMaxFiles(storeMaxFiles),
		filestore.WithMinFree(storeMinFree),
		filestore.WithMaxFileSize(storeMaxFileSize),
	)
}

var storeInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the store's directory tree",
	Long: `Create every leaf directory of the store (16^depth of them) and count
files already present.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		created, found, err := s.Init()
		if err != nil {
			return err
		}
		fmt.Printf("directories created: %d\nfiles found: %d\n", created, found)
		return nil
	},
}

var storeCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Count files in the store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		count, err := s.CountStored()
		if err != nil {
			return err
		}
		fmt.Println(count)
		return nil
	},
}

var storeRmCmd = &cobra.Command{
	Use:   "rm <key> <size>",
	Short: "Remove a file from the store",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		var size int64
		if _, err = fmt.Sscanf(args[1], "%d", &size); err != nil {
			return fmt.Errorf("size %q: %w", args[1], err)
		}
		gone, err := s.RemoveFile(args[0], size)
		if err != nil {
			return err
		}
		if !gone {
			return fmt.Errorf("could not remove %s.%s", args[0], args[1])
		}
		return nil
	},
}

var storeHasCmd = &cobra.Command{
	Use:   "has <key> <size>",
	Short: "Check whether a file is in the store",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		var size int64
		if _, err = fmt.Sscanf(args[1], "%d", &size); err != nil {
			return fmt.Errorf("size %q: %w", args[1], err)
		}
		has, err := s.HasFile(args[0], size)
		if err != nil {
			return err
		}
		fmt.Println(has)
		return nil
	},
}

// registerStoreFlags binds the store policy flags onto a flag set. The
// store and ingest commands share one destination configuration.
func registerStoreFlags(pf *pflag.FlagSet) {
	pf.StringVar(&storeRoot, "root", "", "Store root directory")
	pf.IntVar(&storeDepth, "depth", filestore.DefaultDepth, "Directory shard levels")
	pf.Int64Var(&storeMaxFiles, "max-files", filestore.DefaultMaxFiles, "Maximum files to admit")
	pf.Float64Var(&storeMinFree, "min-free", filestore.DefaultMinFree, "Minimum free space percentage to keep")
	pf.Int64Var(&storeMaxFileSize, "max-file-size", filestore.DefaultMaxFileSize, "Maximum size of a single file")
}

func init() {
	registerStoreFlags(storeCmd.PersistentFlags())
	storeCmd.AddCommand(storeInitCmd, storeCountCmd, storeRmCmd, storeHasCmd)
	rootCmd.AddCommand(storeCmd)
}
