package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stumpinator/garnerd/hash"
	"github.com/stumpinator/garnerd/hasher"
)

var (
	hashLabels  []string
	hashMagic   bool
	hashMime    bool
	hashFanout  bool
	hashBuffers int
	hashBufSize int
	hashTimeout time.Duration
	hashJSON    bool
)

var hashCmd = &cobra.Command{
	Use:   "hash [flags] <file>...",
	Short: "Compute digests and content metadata for files",
	Long: `Compute the requested digests over each file in a single pass.

With --fanout the bytes are streamed through shared-memory buffers to
one consumer per digest plus an optional content classifier, so every
consumer sees each chunk exactly once without rereading the file.
Unsupported hash labels are ignored.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		set, dropped := hash.ParseSet(hashLabels)
		if dropped > 0 {
			logrus.Debugf("ignored %d unsupported hash labels", dropped)
		}
		if hashFanout {
			return hashWithFanout(cmd.Context(), args, set)
		}
		simple := hasher.NewSimple(set)
		for _, path := range args {
			report, err := simple.HashFile(path)
			if err != nil {
				return err
			}
			printReport(report)
		}
		return nil
	},
}

func hashWithFanout(ctx context.Context, paths []string, set hash.Set) error {
	pipeline, err := hasher.NewPipeline(
		hasher.WithBufferCount(hashBuffers),
		hasher.WithBufferCapacity(hashBufSize),
		hasher.WithTimeout(hashTimeout),
	)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := pipeline.Close(); cerr != nil {
			logrus.Errorf("pipeline teardown: %v", cerr)
		}
	}()
	for _, path := range paths {
		report, err := pipeline.HashFile(ctx, path, set, hashMagic, hashMime)
		if err != nil {
			return err
		}
		printReport(report)
	}
	return nil
}

func printReport(r hasher.Report) {
	if hashJSON {
		out := map[string]any{"path": r.Path, "size": r.Size}
		for k, v := range r.Labels {
			out[k] = v
		}
		enc := json.NewEncoder(os.Stdout)
		if err := enc.Encode(out); err != nil {
			logrus.Errorf("encode report: %v", err)
		}
		return
	}
	fmt.Printf("%s:\n", r.Path)
	fmt.Printf("  size: %d\n", r.Size)
	keys := make([]string, 0, len(r.Labels))
	for k := range r.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s: %s\n", k, r.Labels[k])
	}
}

func init() {
	flags := hashCmd.Flags()
	flags.StringSliceVar(&hashLabels, "hash", []string{"md5", "sha1", "sha256"}, "Hash labels to compute")
	flags.BoolVar(&hashMagic, "magic", false, "Include a content description (fanout only)")
	flags.BoolVar(&hashMime, "mime", false, "Include the MIME type (fanout only)")
	flags.BoolVar(&hashFanout, "fanout", false, "Stream through the shared-memory fan-out pipeline")
	flags.IntVar(&hashBuffers, "buffers", hasher.DefaultBufferCount, "Fan-out buffer pool size")
	flags.IntVar(&hashBufSize, "buffer-size", 0, "Fan-out buffer payload capacity in bytes")
	flags.DurationVar(&hashTimeout, "timeout", hasher.DefaultTimeout, "Fan-out barrier timeout")
	flags.BoolVar(&hashJSON, "json", false, "Output reports as JSON, one object per line")
	rootCmd.AddCommand(hashCmd)
}
