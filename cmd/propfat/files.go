package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	fat "github.com/parallaxinc/PropWare-sub000"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func catCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat FILE...",
		Short: "print files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := mount(settings)
			if err != nil {
				return err
			}
			for _, p := range args {
				if err = cat(cmd.OutOrStdout(), s.vol, p); err != nil {
					break
				}
			}
			if cerr := s.close(); err == nil {
				err = cerr
			}
			return err
		},
	}
}

func cat(w io.Writer, vol *fat.Volume, p string) error {
	name, err := enter(vol, p)
	if err != nil {
		return err
	}
	f, err := vol.Open(name, fat.ModeRead)
	if err != nil {
		return fmt.Errorf("%s: %w", p, err)
	}
	defer f.Close()

	_, err = io.Copy(w, f)
	return err
}

func putCmd() *cobra.Command {
	var appendTo bool
	cmd := &cobra.Command{
		Use:   "put FILE [SOURCE]",
		Short: "write a file from SOURCE or standard input",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var src io.Reader = cmd.InOrStdin()
			if len(args) == 2 {
				f, err := osFs.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				src = f
			}

			s, err := mount(settings)
			if err != nil {
				return err
			}
			n, err := put(s.vol, args[0], src, appendTo)
			if cerr := s.close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			log.WithField("bytes", n).Debugf("%s written", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVarP(&appendTo, "append", "A", false, "Append instead of replacing the content")
	return cmd
}

func put(vol *fat.Volume, p string, src io.Reader, appendTo bool) (int64, error) {
	name, err := enter(vol, p)
	if err != nil {
		return 0, err
	}
	mode := fat.ModeReadWrite
	if appendTo {
		mode = fat.ModeAppend
	}
	f, err := vol.Open(name, mode)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", p, err)
	}
	if !appendTo {
		if err := f.Truncate(0); err != nil {
			_ = f.Close()
			return 0, err
		}
	}

	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

func rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm PATH...",
		Short: "remove files and empty directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return eachPath(args, func(vol *fat.Volume, name string) error {
				return vol.Remove(name)
			})
		},
	}
}

func mkdirCmd() *cobra.Command {
	var parents bool
	cmd := &cobra.Command{
		Use:   "mkdir DIR...",
		Short: "create directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if parents {
				return mkdirAll(args)
			}
			return eachPath(args, func(vol *fat.Volume, name string) error {
				return vol.Mkdir(name)
			})
		},
	}
	cmd.Flags().BoolVarP(&parents, "parents", "p", false, "Create missing parents, no error if existing")
	return cmd
}

// eachPath mounts the volume once and applies op to the last element of every path.
func eachPath(paths []string, op func(vol *fat.Volume, name string) error) error {
	s, err := mount(settings)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err = applyTo(s.vol, p, op); err != nil {
			break
		}
	}
	if cerr := s.close(); err == nil {
		err = cerr
	}
	return err
}

func applyTo(vol *fat.Volume, p string, op func(vol *fat.Volume, name string) error) error {
	name, err := enter(vol, p)
	if err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("%s: %w", p, fat.ErrInvalidName)
	}
	if err := op(vol, name); err != nil {
		return fmt.Errorf("%s: %w", p, err)
	}
	return nil
}

func mkdirAll(paths []string) error {
	s, err := mount(settings)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err = makeParents(s.vol, p); err != nil {
			break
		}
	}
	if cerr := s.close(); err == nil {
		err = cerr
	}
	return err
}

func makeParents(vol *fat.Volume, p string) error {
	if err := vol.Chdir("/"); err != nil {
		return err
	}
	for _, dir := range splitPath(p) {
		err := vol.Mkdir(dir)
		if err != nil && !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s: %w", p, err)
		}
		if err := vol.Chdir(dir); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}
