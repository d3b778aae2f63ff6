package main

import (
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/glog"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/aligator/fat2minix"
	"github.com/aligator/fat2minix/fat"
	"github.com/aligator/fat2minix/minix"
)

func main() {
	osFs := afero.NewOsFs()
	uid, gid := defaultOwner()

	app := &cli.App{
		Name:  "fat2minix",
		Usage: "copy the content of a FAT16 image into a Minix image",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log verbosity, 1 logs every entry, 2 every disk access",
			},
		},
		Before: func(c *cli.Context) error {
			// glog only knows the standard flag package.
			if err := flag.Set("logtostderr", "true"); err != nil {
				return err
			}
			return flag.Set("v", strconv.Itoa(c.Int("verbose")))
		},
		After: func(c *cli.Context) error {
			glog.Flush()
			return nil
		},

		Commands: []*cli.Command{
			{
				Name:      "copy",
				Aliases:   []string{"cp"},
				Usage:     "copy all directories and files of the FAT image into the Minix image",
				ArgsUsage: "<fat image> <minix image>",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "uid", Value: uint(uid), Usage: "owner of the new inodes"},
					&cli.UintFlag{Name: "gid", Value: uint(gid), Usage: "group of the new inodes"},
					&cli.BoolFlag{Name: "utc", Usage: "the FAT timestamps are UTC instead of local time"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() != 2 {
						return cli.Exit("copy needs a FAT and a Minix image", 2)
					}
					loc := time.Local
					if c.Bool("utc") {
						loc = time.UTC
					}
					opts := fat2minix.Options{
						UID:      uint16(c.Uint("uid")),
						GID:      uint8(c.Uint("gid")),
						Location: loc,
					}
					return copyImage(osFs, c.Args().Get(0), c.Args().Get(1), opts)
				},
			},
			{
				Name:      "mkfs",
				Usage:     "create an empty Minix image",
				ArgsUsage: "<minix image>",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "blocks", Value: 1440, Usage: "size in blocks of 1 KiB"},
					&cli.UintFlag{Name: "inodes", Usage: "number of inodes, default a third of the blocks"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return cli.Exit("mkfs needs the image to create", 2)
					}
					if c.Uint("blocks") > 0xFFFF || c.Uint("inodes") > 0xFFFF {
						return cli.Exit("at most 65535 blocks and inodes are possible", 2)
					}
					opts := minix.FormatOptions{
						Zones:  uint16(c.Uint("blocks")),
						Inodes: uint16(c.Uint("inodes")),
						UID:    uid,
						GID:    gid,
						Time:   time.Now(),
					}
					return format(osFs, c.Args().Get(0), opts)
				},
			},
			{
				Name:      "ls",
				Usage:     "list a directory of a Minix image, or of a FAT image with --fat",
				ArgsUsage: "<image> [path]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "fat", Usage: "the image is a FAT image"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() < 1 {
						return cli.Exit("ls needs an image", 2)
					}
					dir := c.Args().Get(1)
					if c.Bool("fat") {
						return listFAT(osFs, c.Args().Get(0), dir)
					}
					return listMinix(osFs, c.Args().Get(0), dir)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		glog.Errorf("%v", err)
		glog.Flush()
		os.Exit(1)
	}
}

func copyImage(osFs afero.Fs, fatPath, minixPath string, opts fat2minix.Options) (err error) {
	fatFile, err := osFs.Open(fatPath)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, fatFile.Close())
	}()

	minixFile, err := osFs.OpenFile(minixPath, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, minixFile.Close())
	}()

	src, err := fat.Open(fatFile)
	if err != nil {
		return err
	}
	dst, err := minix.Open(minixFile)
	if err != nil {
		return err
	}

	stats, runErr := fat2minix.New(src, dst, opts).Run()
	// The bitmaps are written even if the run failed, so the volume matches
	// what has been written so far.
	if err := multierr.Append(runErr, dst.Close()); err != nil {
		return err
	}

	fmt.Printf("copied %s in %s and %s from %q (%s) to %q",
		humanize.IBytes(uint64(stats.Bytes)),
		plural(stats.Files, "file"), plural(stats.Directories, "directory"),
		fatPath, src.Label(), minixPath)
	if stats.Skipped > 0 {
		fmt.Printf(", skipped %s", plural(stats.Skipped, "entry"))
	}
	fmt.Println()
	return nil
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	if strings.HasSuffix(word, "y") {
		word = strings.TrimSuffix(word, "y") + "ie"
	}
	return humanize.Comma(int64(n)) + " " + word + "s"
}

func format(osFs afero.Fs, name string, opts minix.FormatOptions) (err error) {
	f, err := osFs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	if err := minix.Format(f, opts); err != nil {
		return err
	}
	fmt.Printf("created %q with %s\n", name, humanize.IBytes(uint64(opts.Zones)*minix.BlockSize))
	return nil
}

func listMinix(osFs afero.Fs, name, dir string) (err error) {
	f, err := osFs.Open(name)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	v, err := minix.Open(f)
	if err != nil {
		return err
	}

	dir = strings.Trim(path.Clean("/"+dir), "/")
	if dir == "" {
		dir = "."
	}
	entries, err := fs.ReadDir(minix.NewFS(v), dir)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 1, ' ', 0)
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return err
		}
		ino := info.Sys().(minix.Inode)
		fmt.Fprintf(w, "%v\t%d\t%d\t%s\t%s\t%s\n", info.Mode(), ino.UID, ino.GID,
			humanize.Bytes(uint64(info.Size())), info.ModTime().Format(time.Stamp), info.Name())
	}
	return w.Flush()
}

func listFAT(osFs afero.Fs, name, dir string) (err error) {
	f, err := osFs.Open(name)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	v, err := fat.Open(f)
	if err != nil {
		return err
	}
	if dir == "" {
		dir = "/"
	}
	d, err := v.OpenDirectory(dir)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 1, ' ', 0)
	for _, e := range d.Entries {
		if e.IsFree() || e.IsLongName() || e.IsVolumeLabel() {
			continue
		}
		info := e.FileInfo(time.Local)
		fmt.Fprintf(w, "%v\t%d\t%s\t%s\t%s\n", info.Mode(), e.Start,
			humanize.Bytes(uint64(info.Size())), info.ModTime().Format(time.Stamp), e.ShortName())
	}
	return w.Flush()
}
