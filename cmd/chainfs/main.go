package main

import (
	"fmt"
	"io"
	"os"

	"github.com/kr/pretty"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/chainfs/chainfs/pkg/disk"
	"github.com/chainfs/chainfs/pkg/fat"
	"github.com/chainfs/chainfs/pkg/inode"
	. "github.com/chainfs/chainfs/pkg/types"
)

func main() {
	config, err := LoadConfig()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	level, err := log.ParseLevel(config.LogLevel)
	if err != nil {
		log.Fatalf("parsing log level `%s`: %v", config.LogLevel, err)
	}
	log.SetLevel(level)

	imageFlag := &cli.StringFlag{
		Name:  "image",
		Usage: "path to the disk image",
		Value: config.Image,
	}
	sectorFlag := &cli.Uint64Flag{
		Name:     "sector",
		Usage:    "root sector of the file",
		Required: true,
	}
	offsetFlag := &cli.Int64Flag{
		Name:  "offset",
		Usage: "byte offset within the file",
	}

	app := &cli.App{
		Name:  appName,
		Usage: "inspect and modify chainfs disk images",
		Commands: []*cli.Command{
			{
				Name:  "mkfs",
				Usage: "create and format a disk image",
				Flags: []cli.Flag{
					imageFlag,
					&cli.Uint64Flag{
						Name:  "sectors",
						Usage: "image size in sectors",
						Value: 4096,
					},
					&cli.Uint64Flag{
						Name:  "sectors-per-cluster",
						Usage: "allocation unit size in sectors",
						Value: 1,
					},
					&cli.StringFlag{
						Name:  "geometry",
						Usage: "YAML geometry file (overrides flags)",
					},
				},
				Action: mkfs,
			},
			{
				Name:  "mkfile",
				Usage: "create a file; prints its root sector",
				Flags: []cli.Flag{
					imageFlag,
					&cli.Int64Flag{
						Name:  "length",
						Usage: "initial file length in bytes",
					},
				},
				Action: mkfile,
			},
			{
				Name:  "write",
				Usage: "write stdin (or --input) into a file",
				Flags: []cli.Flag{
					imageFlag,
					sectorFlag,
					offsetFlag,
					&cli.StringFlag{
						Name:  "input",
						Usage: "input file (`-` for stdin)",
						Value: "-",
					},
				},
				Action: write,
			},
			{
				Name:  "read",
				Usage: "dump part of a file to stdout",
				Flags: []cli.Flag{
					imageFlag,
					sectorFlag,
					offsetFlag,
					&cli.Int64Flag{
						Name:  "size",
						Usage: "bytes to read (default: to end of file)",
						Value: -1,
					},
				},
				Action: read,
			},
			{
				Name:   "stat",
				Usage:  "print a file's root sector and length",
				Flags:  []cli.Flag{imageFlag, sectorFlag},
				Action: stat,
			},
			{
				Name:   "rm",
				Usage:  "remove a file and release its storage",
				Flags:  []cli.Flag{imageFlag, sectorFlag},
				Action: rm,
			},
			{
				Name:   "info",
				Usage:  "dump the boot record and allocator usage",
				Flags:  []cli.Flag{imageFlag},
				Action: info,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func mkfs(ctx *cli.Context) error {
	sectors := Sector(ctx.Uint64("sectors"))
	spc := Sector(ctx.Uint64("sectors-per-cluster"))
	if path := ctx.String("geometry"); path != "" {
		g, err := LoadGeometry(path)
		if err != nil {
			return err
		}
		sectors = g.Sectors
		spc = g.SectorsPerCluster
	}

	device, err := disk.CreateImage(ctx.String("image"), sectors)
	if err != nil {
		return err
	}
	defer device.Close()

	table, err := fat.Format(device, &fat.FormatParams{
		SectorsPerCluster: spc,
	})
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"image":    ctx.String("image"),
		"volumeID": table.Boot().VolumeID,
		"sectors":  sectors,
		"clusters": table.Boot().Clusters,
	}).Info("formatted volume")
	return nil
}

func mkfile(ctx *cli.Context) error {
	device, fs, err := openFS(ctx.String("image"))
	if err != nil {
		return err
	}
	defer device.Close()

	// the directory layer would hand out record sectors; without
	// one, the record lives in a cluster of its own.
	recordCluster, ok := fs.FAT.CreateChain(ClusterNil)
	if !ok {
		return fmt.Errorf("creating file: %w", inode.OutOfClustersErr)
	}
	sector := fs.FAT.ClusterToSector(recordCluster)

	if err := inode.Create(fs, sector, Byte(ctx.Int64("length"))); err != nil {
		fs.FAT.RemoveChain(recordCluster)
		return err
	}
	if err := fs.FAT.Flush(); err != nil {
		return err
	}

	log.WithField("sector", sector).Debug("created file")
	fmt.Println(sector)
	return nil
}

func write(ctx *cli.Context) error {
	input := os.Stdin
	if path := ctx.String("input"); path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		input = f
	}
	data, err := io.ReadAll(input)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	device, fs, err := openFS(ctx.String("image"))
	if err != nil {
		return err
	}
	defer device.Close()

	handle, err := inode.Open(fs, Sector(ctx.Uint64("sector")))
	if err != nil {
		return err
	}

	n, err := inode.WriteAt(fs, handle, data, Byte(ctx.Int64("offset")))
	if err != nil {
		return err
	}
	if err := inode.Close(fs, handle); err != nil {
		return err
	}
	if err := fs.FAT.Flush(); err != nil {
		return err
	}

	if n < Byte(len(data)) {
		log.WithFields(log.Fields{
			"requested": len(data),
			"written":   n,
		}).Warn("short write: volume out of clusters")
	}
	log.WithField("bytes", n).Debug("wrote file")
	return nil
}

func read(ctx *cli.Context) error {
	device, fs, err := openFS(ctx.String("image"))
	if err != nil {
		return err
	}
	defer device.Close()

	handle, err := inode.Open(fs, Sector(ctx.Uint64("sector")))
	if err != nil {
		return err
	}
	defer inode.Close(fs, handle)

	offset := Byte(ctx.Int64("offset"))
	size := Byte(ctx.Int64("size"))
	if size < 0 {
		size = handle.Length() - offset
		if size < 0 {
			size = 0
		}
	}

	buf := make([]byte, size)
	n, err := inode.ReadAt(fs, handle, buf, offset)
	if err != nil {
		return err
	}
	if _, err := os.Stdout.Write(buf[:n]); err != nil {
		return fmt.Errorf("writing to stdout: %w", err)
	}
	return nil
}

func stat(ctx *cli.Context) error {
	device, fs, err := openFS(ctx.String("image"))
	if err != nil {
		return err
	}
	defer device.Close()

	handle, err := inode.Open(fs, Sector(ctx.Uint64("sector")))
	if err != nil {
		return err
	}
	defer inode.Close(fs, handle)

	fmt.Printf("sector: %d\nlength: %d\n", handle.Inumber(), handle.Length())
	return nil
}

func rm(ctx *cli.Context) error {
	device, fs, err := openFS(ctx.String("image"))
	if err != nil {
		return err
	}
	defer device.Close()

	handle, err := inode.Open(fs, Sector(ctx.Uint64("sector")))
	if err != nil {
		return err
	}
	inode.Remove(handle)
	if err := inode.Close(fs, handle); err != nil {
		return err
	}
	if err := fs.FAT.Flush(); err != nil {
		return err
	}

	log.WithField("sector", ctx.Uint64("sector")).Debug("removed file")
	return nil
}

func info(ctx *cli.Context) error {
	device, fs, err := openFS(ctx.String("image"))
	if err != nil {
		return err
	}
	defer device.Close()

	pretty.Printf("boot: %# v\n", fs.FAT.Boot())
	fmt.Printf(
		"free clusters: %d / %d\n",
		fs.FAT.FreeClusters(),
		fs.FAT.Boot().Clusters,
	)
	return nil
}

func openFS(image string) (*disk.ImageDevice, *inode.FileSystem, error) {
	if image == "" {
		return nil, nil, fmt.Errorf(
			"no image given: pass --image or set %s_IMAGE",
			envVarPrefix,
		)
	}
	device, err := disk.OpenImage(image)
	if err != nil {
		return nil, nil, err
	}
	table, err := fat.Load(device)
	if err != nil {
		device.Close()
		return nil, nil, err
	}
	return device, inode.NewFileSystem(device, table), nil
}
