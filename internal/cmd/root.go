package cmd

import (
	"github.com/dendrascience/pkg2sqfs/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewRootCmd creates and returns the root cobra command for the pkg2sqfs CLI.
// It sets up all subcommands, command groups and the shared logging flag.
func NewRootCmd() *cobra.Command {
	var debug bool

	rootCmd := &cobra.Command{
		Use:   "pkg2sqfs",
		Short: "pkg2sqfs - Build SquashFS images from package trees",
		Long: `pkg2sqfs builds SquashFS 4.0 filesystem images from directories,
tar archives and zip archives.

Images are reproducible: the same source and settings always produce the
same bytes. Use subcommands to perform different operations:
  - build: Pack a source into an image
  - ls: List the contents of an image
  - inspect: Show the superblock and verify an image
  - mount: Serve an image read-only over FUSE
  - count: Count the entries of a source
  - seed: Generate a source tree for test builds`,
		Version: version.GetFullVersion(),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := logrus.WarnLevel
			if debug {
				level = logrus.DebugLevel
			}
			logrus.SetLevel(level)
		},
	}

	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	groupImage := "image"
	groupUtilities := "utilities"

	rootCmd.AddGroup(&cobra.Group{
		ID:    groupImage,
		Title: "Image Operations",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    groupUtilities,
		Title: "Utility Commands",
	})

	buildCmd := NewBuildCmd()
	lsCmd := NewLsCmd()
	inspectCmd := NewInspectCmd()
	mountCmd := NewMountCmd()
	countCmd := NewCountCmd()
	seedCmd := NewSeedCmd()
	versionCmd := NewVersionCmd()

	buildCmd.GroupID = groupImage
	lsCmd.GroupID = groupImage
	inspectCmd.GroupID = groupImage
	mountCmd.GroupID = groupImage
	countCmd.GroupID = groupUtilities
	seedCmd.GroupID = groupUtilities
	versionCmd.GroupID = groupUtilities

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(mountCmd)
	rootCmd.AddCommand(countCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(versionCmd)

	return rootCmd
}

// raiseLogLevel makes logging at least as verbose as level. It never
// lowers a level set by --debug.
func raiseLogLevel(level logrus.Level) {
	if logrus.GetLevel() < level {
		logrus.SetLevel(level)
	}
}
