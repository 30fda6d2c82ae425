package cmd

import (
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/dendrascience/pkg2sqfs/config"
	"github.com/dendrascience/pkg2sqfs/source"
	"github.com/dendrascience/pkg2sqfs/sqfs"
	"github.com/dendrascience/pkg2sqfs/util"
	"github.com/docker/go-units"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type buildOptions struct {
	force     bool
	printTree bool
	verify    bool
	verbose   bool
}

// NewBuildCmd creates and returns the build subcommand.
// It packs a directory or archive into a squashfs image.
func NewBuildCmd() *cobra.Command {
	var (
		configPath   string
		blockSize    string
		devBlockSize string
		compressor   string
		defaultMode  string
		tempDir      string
		defaultUID   uint32
		defaultGID   uint32
		timestamp    int64
		opts         buildOptions
	)

	cmd := &cobra.Command{
		Use:   "build SOURCE IMAGE",
		Short: "Build a squashfs image from a directory or archive",
		Long: `Build a SquashFS 4.0 image from a package source.

SOURCE is a directory, a tar archive (optionally gzip, zstd or lz4
compressed) or a zip archive. IMAGE is the file to create.

Settings are read from the --config file first; flags given on the command
line take precedence.`,
		Args: cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load(configPath)
			if err != nil {
				logrus.Fatalf("Failed to load config: %v", err)
			}

			flags := cmd.Flags()
			if flags.Changed("block-size") {
				cfg.BlockSize = blockSize
			}
			if flags.Changed("dev-block-size") {
				cfg.DevBlockSize = devBlockSize
			}
			if flags.Changed("compressor") {
				cfg.Compressor = compressor
			}
			if flags.Changed("default-mode") {
				cfg.DefaultMode = defaultMode
			}
			if flags.Changed("default-uid") {
				cfg.DefaultUID = defaultUID
			}
			if flags.Changed("default-gid") {
				cfg.DefaultGID = defaultGID
			}
			if flags.Changed("timestamp") {
				cfg.Timestamp = timestamp
			}
			if flags.Changed("temp-dir") {
				cfg.TempDir = tempDir
			}

			if _, err := buildImage(args[0], args[1], cfg, opts, os.Stdout); err != nil {
				logrus.Fatalf("Build failed: %v", err)
			}
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to a TOML config file")
	cmd.Flags().StringVarP(&blockSize, "block-size", "b", "128K", "Data block size (power of two, 4K to 8M)")
	cmd.Flags().StringVarP(&devBlockSize, "dev-block-size", "B", "4K", "Pad the image to a multiple of this size")
	cmd.Flags().StringVarP(&compressor, "compressor", "c", "gzip", "Compressor: gzip, zstd or lz4")
	cmd.Flags().StringVarP(&defaultMode, "default-mode", "m", "0755", "Permissions of the root directory (octal)")
	cmd.Flags().Uint32VarP(&defaultUID, "default-uid", "u", 0, "Owner of the root directory")
	cmd.Flags().Uint32VarP(&defaultGID, "default-gid", "g", 0, "Group of the root directory")
	cmd.Flags().Int64Var(&timestamp, "timestamp", 0, "Modification time recorded for every inode (unix seconds)")
	cmd.Flags().StringVar(&tempDir, "temp-dir", "", "Directory for the directory table spool file")
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "Overwrite IMAGE if it exists")
	cmd.Flags().BoolVar(&opts.printTree, "print-tree", false, "Print the numbered tree after building")
	cmd.Flags().BoolVar(&opts.verify, "verify", false, "Read the image back and check it after building")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log build progress and print extra detail")

	return cmd
}

// buildImage writes an image for src to dst and reports what it wrote to out.
// A partially written image is removed on failure.
func buildImage(src, dst string, cfg *config.Config, opts buildOptions, out io.Writer) (*sqfs.Stats, error) {
	if opts.verbose {
		raiseLogLevel(logrus.InfoLevel)
	}
	log := logrus.WithFields(logrus.Fields{"source": src, "image": dst})

	sqOpts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	sqOpts = append(sqOpts, sqfs.WithLogger(log))

	pkg, err := source.Open(src, log)
	if err != nil {
		return nil, errors.Wrapf(err, "opening source %s", src)
	}
	defer pkg.Close()

	if opts.verbose {
		fmt.Fprintf(out, "Building %s from %s (%s, block size %s)\n", dst, src, cfg.Compressor, cfg.BlockSize)
	}

	flag := os.O_RDWR | os.O_CREATE | os.O_EXCL
	if opts.force {
		flag = os.O_RDWR | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(dst, flag, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return nil, errors.Errorf("%s already exists (use --force to overwrite)", dst)
	}
	if err != nil {
		return nil, err
	}

	st, err := sqfs.Build(f, pkg, sqOpts...)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if rerr := os.Remove(dst); rerr != nil {
			log.WithError(rerr).Warn("removing partial image")
		}
		return nil, err
	}

	if opts.verify {
		if err := checkImage(dst); err != nil {
			return nil, errors.Wrap(err, "verifying image")
		}
		if opts.verbose {
			fmt.Fprintln(out, "Verified image structure and contents")
		}
	}

	if opts.printTree {
		if err := st.Tree.Print(out); err != nil {
			return nil, err
		}
	}

	sum, err := util.GetFileHash(dst)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "Created %s: %d inodes, %d ids, %d data blocks, %d fragments\n",
		dst, st.Inodes, st.IDs, st.DataBlocks, st.Fragments)
	fmt.Fprintf(out, "Size: %s (%d bytes used, %s, block size %s)\n",
		units.BytesSize(float64(st.ImageSize)), st.BytesUsed, st.Compressor, units.BytesSize(float64(st.BlockSize)))
	fmt.Fprintf(out, "SHA-256: %s\n", sum)
	return st, nil
}
