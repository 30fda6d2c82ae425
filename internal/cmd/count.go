package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/dendrascience/pkg2sqfs/source"
	"github.com/docker/go-units"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewCountCmd creates and returns the count subcommand.
// It summarizes the entries a source would contribute to an image.
func NewCountCmd() *cobra.Command {
	var (
		path     string
		payloads bool
	)

	cmd := &cobra.Command{
		Use:   "count [SOURCE]",
		Short: "Count the entries of a package source",
		Long: `Count the entries of a directory or archive by type.

This is a utility command that reports how many directories, files, symlinks
and devices a build would pack, plus the total file size. With --payloads the
file contents are read through once and checked against the recorded sizes.`,
		Args: cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) > 0 {
				path = args[0]
			}
			if err := countSource(os.Stdout, path, payloads); err != nil {
				logrus.Fatalf("Error counting %s: %v", path, err)
			}
		},
	}

	cmd.Flags().StringVarP(&path, "path", "p", "./", "Source to count")
	cmd.Flags().BoolVar(&payloads, "payloads", false, "Read every file and check its size")

	return cmd
}

func countSource(w io.Writer, path string, payloads bool) error {
	pkg, err := source.Open(path, nil)
	if err != nil {
		return err
	}
	defer pkg.Close()

	st, err := source.Count(pkg)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Directories: %d\n", st.Dirs)
	fmt.Fprintf(w, "Files:       %d (%s)\n", st.Files, units.HumanSize(float64(st.Bytes)))
	fmt.Fprintf(w, "Symlinks:    %d\n", st.Symlinks)
	fmt.Fprintf(w, "Devices:     %d\n", st.Devices)
	if st.Other > 0 {
		fmt.Fprintf(w, "Other:       %d\n", st.Other)
	}
	fmt.Fprintf(w, "Total:       %d\n", st.Total())

	if !payloads {
		return nil
	}
	sizes, err := source.Payloads(pkg)
	if err != nil {
		return err
	}
	entries, err := pkg.Entries()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.Mode.IsRegular() {
			continue
		}
		if got, ok := sizes[e.ID]; ok && got != e.Size {
			return errors.Errorf("%s: payload is %d bytes, entry says %d", e.Path, got, e.Size)
		}
	}
	fmt.Fprintf(w, "Payloads:    %d checked\n", len(sizes))
	return nil
}
