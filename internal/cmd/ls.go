package cmd

import (
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/dendrascience/pkg2sqfs/sqfs"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewLsCmd creates and returns the ls subcommand, which lists the contents
// of an image.
func NewLsCmd() *cobra.Command {
	var long bool

	cmd := &cobra.Command{
		Use:   "ls IMAGE [PATH]",
		Short: "List the contents of an image",
		Long: `List every entry of a squashfs image below PATH (default: the root).

With --long each line shows the mode, owner, group, size and inode number.`,
		Args: cobra.RangeArgs(1, 2),
		Run: func(cmd *cobra.Command, args []string) {
			prefix := "/"
			if len(args) > 1 {
				prefix = args[1]
			}
			if err := listImage(os.Stdout, args[0], prefix, long); err != nil {
				logrus.Fatalf("Failed to list %s: %v", args[0], err)
			}
		},
	}

	cmd.Flags().BoolVarP(&long, "long", "l", false, "Show inode details")

	return cmd
}

func openImage(p string) (*sqfs.Image, *os.File, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, nil, err
	}
	img, err := sqfs.Open(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return img, f, nil
}

func listImage(w io.Writer, imagePath, prefix string, long bool) error {
	img, f, err := openImage(imagePath)
	if err != nil {
		return err
	}
	defer f.Close()

	prefix = path.Join("/", prefix)
	if _, err := img.Lookup(prefix); err != nil {
		return err
	}

	return img.Walk(func(p string, ino *sqfs.Inode) error {
		if p != prefix && prefix != "/" && !strings.HasPrefix(p, prefix+"/") {
			return nil
		}
		name := p
		if ino.Type.Basic() == sqfs.InodeSymlink {
			name += " -> " + ino.Target
		}
		if !long {
			_, err := fmt.Fprintln(w, name)
			return err
		}
		_, err := fmt.Fprintf(w, "%-11s %5d %5d %10d %6d %s\n",
			ino.FileMode(), ino.UID, ino.GID, ino.Size, ino.Number, name)
		return err
	})
}
