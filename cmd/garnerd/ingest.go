package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stumpinator/garnerd/hash"
	"github.com/stumpinator/garnerd/hasher"
)

var (
	ingestKeyHash string
	ingestLabels  []string
	ingestMagic   bool
	ingestMime    bool
	ingestBuffers int
	ingestBufSize int
	ingestTimeout time.Duration
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [flags] <file>...",
	Short: "Hash files through the fan-out and commit them to the store",
	Long: `Stream each file through the shared-memory fan-out pipeline, then move
it into the content-addressed store under its digest. Re-ingesting
content the store already holds deduplicates against the existing copy
and deletes the source.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keyType, err := hash.TypeFromString(ingestKeyHash)
		if err != nil {
			return err
		}
		set, dropped := hash.ParseSet(ingestLabels)
		if dropped > 0 {
			logrus.Debugf("ignored %d unsupported hash labels", dropped)
		}
		set = set.Add(keyType)

		store, err := openStore()
		if err != nil {
			return err
		}

		pipeline, err := hasher.NewPipeline(
			hasher.WithBufferCount(ingestBuffers),
			hasher.WithBufferCapacity(ingestBufSize),
			hasher.WithTimeout(ingestTimeout),
		)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := pipeline.Close(); cerr != nil {
				logrus.Errorf("pipeline teardown: %v", cerr)
			}
		}()

		for _, path := range args {
			report, err := pipeline.HashFile(cmd.Context(), path, set, ingestMagic, ingestMime)
			if err != nil {
				return err
			}
			key, ok := report.Sum(keyType)
			if !ok {
				return fmt.Errorf("report for %q is missing the %s key digest", path, keyType)
			}
			if !store.CanStore(report.Size) {
				return fmt.Errorf("store cannot admit %q (%d bytes)", path, report.Size)
			}
			if _, err = store.AddFile(path, key, report.Size); err != nil {
				return err
			}
			dst, err := store.FilePath(key, report.Size)
			if err != nil {
				return err
			}
			fmt.Printf("%s -> %s\n", path, dst)
			printReport(report)
		}
		return nil
	},
}

func init() {
	flags := ingestCmd.Flags()
	flags.StringVar(&ingestKeyHash, "key-hash", "sha256", "Hash used as the store identifier")
	flags.StringSliceVar(&ingestLabels, "hash", []string{"md5", "sha1", "sha256"}, "Additional hash labels to compute")
	flags.BoolVar(&ingestMagic, "magic", true, "Include a content description")
	flags.BoolVar(&ingestMime, "mime", true, "Include the MIME type")
	flags.IntVar(&ingestBuffers, "buffers", hasher.DefaultBufferCount, "Fan-out buffer pool size")
	flags.IntVar(&ingestBufSize, "buffer-size", 0, "Fan-out buffer payload capacity in bytes")
	flags.DurationVar(&ingestTimeout, "timeout", hasher.DefaultTimeout, "Fan-out barrier timeout")
	registerStoreFlags(flags)
	rootCmd.AddCommand(ingestCmd)
}
