package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewInspectCmd creates and returns the inspect subcommand. It prints the
// superblock of an image and checks the image for structural problems.
func NewInspectCmd() *cobra.Command {
	var (
		readData bool
		quiet    bool
	)

	cmd := &cobra.Command{
		Use:   "inspect IMAGE",
		Short: "Show the superblock of an image and verify its structure",
		Long: `Inspect a squashfs image.

Prints the superblock fields, then walks every directory and inode to check
that the tables are ordered, that directory listings agree with the inodes
they reference and that inode numbers and link counts are consistent.
With --data every file is read back as well.

Exits with status 1 when problems are found.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			out := io.Writer(os.Stdout)
			if quiet {
				out = io.Discard
			}
			problems, err := inspectImage(out, args[0], readData)
			if err != nil {
				logrus.Fatalf("Failed to inspect %s: %v", args[0], err)
			}
			for _, p := range problems {
				logrus.Error(p)
			}
			if len(problems) > 0 {
				logrus.Errorf("%s: %d problems found", args[0], len(problems))
				os.Exit(1)
			}
		},
	}

	cmd.Flags().BoolVar(&readData, "data", false, "Also read back every file")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only report problems")

	return cmd
}

func inspectImage(w io.Writer, imagePath string, readData bool) ([]error, error) {
	img, f, err := openImage(imagePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s := &img.Super
	fmt.Fprintf(w, "Image:        %s\n", imagePath)
	fmt.Fprintf(w, "Version:      %d.%d\n", s.VersionMajor, s.VersionMinor)
	fmt.Fprintf(w, "Compressor:   %s\n", s.Compressor)
	fmt.Fprintf(w, "Block size:   %s\n", units.BytesSize(float64(s.BlockSize)))
	fmt.Fprintf(w, "Modified:     %s\n", time.Unix(int64(s.ModTime), 0).UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "Flags:        %s\n", s.Flags)
	fmt.Fprintf(w, "Inodes:       %d\n", s.InodeCount)
	fmt.Fprintf(w, "Ids:          %d\n", s.IDCount)
	fmt.Fprintf(w, "Fragments:    %d\n", s.FragmentCount)
	fmt.Fprintf(w, "Bytes used:   %d (%s)\n", s.BytesUsed, units.HumanSize(float64(s.BytesUsed)))
	fmt.Fprintf(w, "Root inode:   %#x\n", s.RootInode)
	fmt.Fprintf(w, "Inode table:  %d\n", s.InodeTableStart)
	fmt.Fprintf(w, "Dir table:    %d\n", s.DirTableStart)
	if s.HasFragments() {
		fmt.Fprintf(w, "Frag table:   %d\n", s.FragmentTableStart)
	}
	fmt.Fprintf(w, "Id table:     %d\n", s.IDTableStart)

	problems := img.Verify(readData)
	if len(problems) == 0 {
		fmt.Fprintln(w, "OK")
	}
	return problems, nil
}

// checkImage reads back a freshly built image and returns the first problem.
func checkImage(imagePath string) error {
	problems, err := inspectImage(io.Discard, imagePath, true)
	if err != nil {
		return err
	}
	if len(problems) > 0 {
		return problems[0]
	}
	return nil
}
