package cmd

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/dendrascience/pkg2sqfs/config"
	"github.com/dendrascience/pkg2sqfs/util"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type seedOptions struct {
	files    int
	buckets  int
	maxSize  int64
	symlinks bool
	verbose  bool
}

type seedResult struct {
	files    int
	symlinks int
	dirs     map[string]int
	bytes    int64
}

// NewSeedCmd creates and returns the seed subcommand.
// It generates a source tree for exercising builds.
func NewSeedCmd() *cobra.Command {
	var (
		outputPath string
		maxSize    string
		opts       seedOptions
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Generate a source tree for test builds",
		Long: `Generate a directory tree to build images from.

Files are named by UUID and spread over bucket directories (b000, b001, ...)
chosen by hashing the name. Most files repeat their UUID and compress well;
about one in four holds random bytes so that some blocks are stored
uncompressed. Sizes vary from empty up to --max-size, so builds produce full
blocks, tail fragments and empty files.`,
		Run: func(cmd *cobra.Command, args []string) {
			size, err := config.ParseSize(maxSize)
			if err != nil {
				logrus.Fatalf("Invalid --max-size: %v", err)
			}
			opts.maxSize = int64(size)
			if _, err := seedTree(outputPath, opts, os.Stdout); err != nil {
				logrus.Fatalf("Seeding failed: %v", err)
			}
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Path to output directory (required)")
	cmd.Flags().IntVarP(&opts.files, "count", "c", 1000, "Number of files to generate")
	cmd.Flags().IntVar(&opts.buckets, "buckets", 16, "Number of bucket directories")
	cmd.Flags().StringVar(&maxSize, "max-size", "256K", "Largest file to generate")
	cmd.Flags().BoolVar(&opts.symlinks, "symlinks", true, "Add a symlink to each bucket's first file")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose output")

	cmd.MarkFlagRequired("output")

	return cmd
}

func randInt(n int64) (int64, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return 0, err
	}
	return v.Int64(), nil
}

func seedContent(id string, size int64) ([]byte, error) {
	kind, err := randInt(4)
	if err != nil {
		return nil, err
	}
	if kind == 0 {
		buf := make([]byte, size)
		_, err := rand.Read(buf)
		return buf, err
	}
	line := id + "\n"
	content := bytes.Repeat([]byte(line), int(size)/len(line)+1)
	return content[:size], nil
}

func seedTree(outputPath string, opts seedOptions, out io.Writer) (*seedResult, error) {
	if opts.files < 0 || opts.maxSize < 0 {
		return nil, errors.New("count and size must not be negative")
	}
	if opts.verbose {
		raiseLogLevel(logrus.InfoLevel)
		fmt.Fprintf(out, "Generating %d files in %d buckets under %s\n", opts.files, opts.buckets, outputPath)
	}
	if err := os.MkdirAll(outputPath, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating output directory")
	}

	res := &seedResult{dirs: make(map[string]int)}
	for res.files < opts.files {
		id := uuid.New().String()
		bucket, err := util.BucketName(id, opts.buckets)
		if err != nil {
			return nil, err
		}
		dir := filepath.Join(outputPath, bucket)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}

		size, err := randInt(opts.maxSize + 1)
		if err != nil {
			return nil, err
		}
		content, err := seedContent(id, size)
		if err != nil {
			return nil, err
		}
		name := id + ".dat"
		if err := os.WriteFile(filepath.Join(dir, name), content, 0o644); err != nil {
			return nil, err
		}

		if opts.symlinks && res.dirs[bucket] == 0 {
			link := filepath.Join(dir, "first")
			if err := os.Symlink(name, link); err != nil {
				logrus.WithError(err).Warnf("creating symlink %s", link)
			} else {
				res.symlinks++
			}
		}

		res.dirs[bucket]++
		res.files++
		res.bytes += size

		if opts.verbose && res.files%1000 == 0 {
			fmt.Fprintf(out, "Created %d/%d files...\n", res.files, opts.files)
		}
	}

	if opts.verbose {
		fmt.Fprintf(out, "Successfully created %d files (%d bytes)\n", res.files, res.bytes)
		counts := make([]string, 0, len(res.dirs))
		for dir, n := range res.dirs {
			counts = append(counts, fmt.Sprintf("%s=%d", dir, n))
		}
		fmt.Fprintf(out, "Files distributed across %d buckets: %s\n", len(res.dirs), strings.Join(counts, " "))
	}
	return res, nil
}
