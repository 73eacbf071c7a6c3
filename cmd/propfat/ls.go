package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	fat "github.com/parallaxinc/PropWare-sub000"
	"github.com/spf13/cobra"
)

func lsCmd() *cobra.Command {
	var (
		all   bool
		human bool
	)
	cmd := &cobra.Command{
		Use:   "ls [DIR]",
		Short: "list a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := mount(settings)
			if err != nil {
				return err
			}
			dir := ""
			if len(args) > 0 {
				dir = args[0]
			}
			err = list(cmd.OutOrStdout(), s.vol, dir, all, human)
			if cerr := s.close(); err == nil {
				err = cerr
			}
			return err
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include hidden and system entries")
	cmd.Flags().BoolVarP(&human, "human-readable", "H", false, "Print sizes like 1.2 KiB")
	return cmd
}

func list(w io.Writer, vol *fat.Volume, dir string, all, human bool) error {
	last, err := enter(vol, dir)
	if err != nil {
		return err
	}
	if last != "" {
		if err := vol.Chdir(last); err != nil {
			return fmt.Errorf("%s: %w", dir, err)
		}
	}

	d, err := vol.OpenDirectory()
	if err != nil {
		return err
	}
	d.SkipHidden = !all

	tw := tabwriter.NewWriter(w, 0, 8, 1, ' ', tabwriter.AlignRight)
	for {
		e, err := d.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		size := fmt.Sprint(e.Size)
		if human {
			size = humanize.IBytes(uint64(e.Size))
		}
		if e.IsDir() {
			size = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t %s\n",
			e.FileInfo().Mode(), size, e.Modified.Format("2006-01-02 15:04"), e.Name)
	}
	return tw.Flush()
}
