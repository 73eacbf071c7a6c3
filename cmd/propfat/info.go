package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	fat "github.com/parallaxinc/PropWare-sub000"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// volumeInfo is what info prints.
type volumeInfo struct {
	fat.Geometry `yaml:",inline"`

	VolumeLabel  string `yaml:"volumeLabel" json:"volumeLabel"`
	ClusterSize  uint32 `yaml:"clusterSize" json:"clusterSize"`
	FreeClusters uint32 `yaml:"freeClusters" json:"freeClusters"`
	FreeBytes    uint64 `yaml:"freeBytes" json:"freeBytes"`
}

func infoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "show the geometry of the volume",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := mount(settings)
			if err != nil {
				return err
			}
			info, err := describe(s.vol)
			if cerr := s.close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			return printInfo(cmd.OutOrStdout(), info, settings.Output)
		},
	}
	cmd.Flags().StringP("output", "o", "", "Output format: text, yaml or json (default text)")
	return cmd
}

func describe(vol *fat.Volume) (volumeInfo, error) {
	g := vol.Geometry()
	label, err := vol.Label()
	if err != nil {
		return volumeInfo{}, err
	}
	free, err := vol.FreeClusters()
	if err != nil {
		return volumeInfo{}, err
	}
	return volumeInfo{
		Geometry:     g,
		VolumeLabel:  label,
		ClusterSize:  g.ClusterSize(),
		FreeClusters: free,
		FreeBytes:    uint64(free) * uint64(g.ClusterSize()),
	}, nil
}

func printInfo(w io.Writer, info volumeInfo, output string) error {
	switch output {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(info); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	g := info.Geometry
	tw := tabwriter.NewWriter(w, 0, 8, 1, ' ', 0)
	fmt.Fprintf(tw, "Type:\t%v\n", g.Type)
	fmt.Fprintf(tw, "Label:\t%s\n", info.VolumeLabel)
	fmt.Fprintf(tw, "Volume ID:\t%04X-%04X\n", g.VolumeID>>16, g.VolumeID&0xFFFF)
	fmt.Fprintf(tw, "Partition start:\t%d\n", g.PartitionStart)
	fmt.Fprintf(tw, "Size:\t%s (%d sectors)\n", humanize.IBytes(uint64(g.TotalSectors)*fat.SectorSize), g.TotalSectors)
	fmt.Fprintf(tw, "Cluster size:\t%s\n", humanize.IBytes(uint64(info.ClusterSize)))
	fmt.Fprintf(tw, "Clusters:\t%d\n", g.ClusterCount)
	fmt.Fprintf(tw, "FATs:\t%d x %d sectors at %d\n", g.NumFATs, g.FATSize, g.FATStart)
	if g.Type == fat.FAT16 {
		fmt.Fprintf(tw, "Root directory:\t%d sectors at %d\n", g.RootDirSectors, g.RootDirSector)
	} else {
		fmt.Fprintf(tw, "Root directory:\tcluster %d\n", g.RootCluster)
	}
	fmt.Fprintf(tw, "Data start:\t%d\n", g.FirstDataSector)
	fmt.Fprintf(tw, "Free:\t%s (%d clusters)\n", humanize.IBytes(info.FreeBytes), info.FreeClusters)
	return tw.Flush()
}
