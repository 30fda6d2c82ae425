package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dendrascience/pkg2sqfs/fusefs"
	"github.com/dendrascience/pkg2sqfs/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewMountCmd creates and returns the mount subcommand.
// It serves an image read-only over FUSE until interrupted.
func NewMountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mount IMAGE MOUNTPOINT",
		Short: "Mount an image read-only",
		Long: `Mount a squashfs image read-only at the specified mountpoint.

IMAGE is the image file to serve.
MOUNTPOINT is the directory where the filesystem will be mounted.

The filesystem is unmounted on interrupt or SIGTERM.`,
		Args: cobra.ExactArgs(2),
		Run:  runMount,
	}
}

func runMount(cmd *cobra.Command, args []string) {
	fmt.Printf("pkg2sqfs %s starting...\n", version.GetFullVersion())

	imagePath := args[0]
	mountpoint := args[1]

	if pathsOverlap(imagePath, mountpoint) {
		logrus.Fatalf("Image %s lies inside mountpoint %s", imagePath, mountpoint)
	}
	if info, err := os.Stat(mountpoint); err != nil {
		logrus.Fatalf("Mountpoint unavailable: %v", err)
	} else if !info.IsDir() {
		logrus.Fatalf("Mountpoint %s is not a directory", mountpoint)
	}

	img, f, err := openImage(imagePath)
	if err != nil {
		logrus.Fatalf("Failed to open image: %v", err)
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logrus.WithFields(logrus.Fields{"image": imagePath})
	log.Infof("pkg2sqfs %s mounting at %s", version.GetVersion(), mountpoint)
	if err := fusefs.Mount(ctx, img, mountpoint, log); err != nil {
		logrus.Fatalf("Mount failed: %v", err)
	}
	log.Info("Shutdown complete")
}

// pathsOverlap reports whether one path is the other or lies below it.
// Symlinks are resolved so a linked mountpoint cannot hide the image.
func pathsOverlap(path1, path2 string) bool {
	p1, p2 := resolvePath(path1), resolvePath(path2)
	return within(p1, p2) || within(p2, p1)
}

// resolvePath returns an absolute, symlink-free form of p. Parts of p that
// do not exist yet are kept as given below the nearest existing ancestor.
func resolvePath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	rest := ""
	for dir := abs; ; dir = filepath.Dir(dir) {
		if real, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(real, rest)
		}
		if filepath.Dir(dir) == dir {
			return abs
		}
		rest = filepath.Join(filepath.Base(dir), rest)
	}
}

func within(p, dir string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
