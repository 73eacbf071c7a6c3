// Package fat reads and writes FAT16 and FAT32 volumes on a sector addressed block device,
// such as an SD card, while keeping only two sectors in memory.
//
// A Volume is mounted from a BlockDevice. Files are opened by their 8.3 name in the
// current directory and offer independent read and write cursors:
//
//	vol, err := fat.Mount(dev)
//	f, err := vol.Open("LOG.TXT", fat.ModeAppend)
//	_, err = f.WriteString("started\n")
//	err = f.Close()
//	err = vol.Unmount()
//
// A Volume and its files are not safe for concurrent use.
package fat

import (
	"errors"
	"io"
	"sort"
	"time"

	"github.com/parallaxinc/PropWare-sub000/checkpoint"
	"github.com/sirupsen/logrus"
)

// Volume is a mounted FAT16 or FAT32 file system.
type Volume struct {
	geo   Geometry
	cache sectorCache
	log   logrus.FieldLogger

	verbose  bool
	readOnly bool
	now      func() time.Time

	mounted bool
	// cwd is the first cluster of the current directory, 0 for the root directory.
	cwd       uint32
	allocHint uint32
	nextID    uint32
	files     map[uint32]*File
}

// Option configures a Volume on Mount.
type Option func(v *Volume)

// WithLogger sets the logger. The default is logrus.StandardLogger().
func WithLogger(log logrus.FieldLogger) Option {
	return func(v *Volume) {
		v.log = log
	}
}

// WithVerbose logs every failed operation at error level.
func WithVerbose(verbose bool) Option {
	return func(v *Volume) {
		v.verbose = verbose
	}
}

// ReadOnly mounts the volume without write access.
// Volumes with a single FAT can only be mounted this way.
func ReadOnly() Option {
	return func(v *Volume) {
		v.readOnly = true
	}
}

// WithClock sets the time source for directory entry time stamps.
func WithClock(now func() time.Time) Option {
	return func(v *Volume) {
		v.now = now
	}
}

// Mount reads the geometry of the volume on dev. Sector 0 may be the boot sector itself
// or a master boot record whose first partition holds the volume.
func Mount(dev BlockDevice, opts ...Option) (_ *Volume, err error) {
	v := &Volume{
		log:    logrus.StandardLogger(),
		now:    time.Now,
		nextID: ownerFirstFile,
		files:  make(map[uint32]*File),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.cache.dev = dev
	v.cache.log = v.log

	defer v.report("mount", "", &err)
	if err := v.mount(); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Volume) mount() error {
	c := &v.cache
	if err := c.fetch(&c.content, 0, ownerVolume); err != nil {
		return err
	}

	var start uint32
	if lba, ok := partitionStart(c.content.buffer[:]); ok {
		start = lba
		if err := c.fetch(&c.content, start, ownerVolume); err != nil {
			return err
		}
	}

	geo, err := parseBootSector(c.content.buffer[:], start, !v.readOnly)
	if err != nil {
		return err
	}
	v.geo = geo
	c.fatSize = geo.FATSize
	c.fatCopies = geo.NumFATs

	v.log.WithFields(logrus.Fields{
		"type":              geo.Type,
		"partitionStart":    geo.PartitionStart,
		"sectorsPerCluster": geo.SectorsPerCluster(),
		"clusters":          geo.ClusterCount,
		"fatStart":          geo.FATStart,
		"firstDataSector":   geo.FirstDataSector,
	}).Debug("volume mounted")

	// Prime both buffers with the first FAT sector and the first root directory sector.
	if err := c.fetch(&c.fat, geo.FATStart, ownerVolume); err != nil {
		return err
	}
	root := geo.RootDirSector
	if geo.Type == FAT32 {
		root = geo.clusterSector(geo.RootCluster)
	}
	if err := c.fetch(&c.content, root, ownerVolume); err != nil {
		return err
	}

	v.allocHint = geo.RootCluster
	v.mounted = true
	return nil
}

// Geometry returns the layout of the volume.
func (v *Volume) Geometry() Geometry {
	return v.geo
}

// Flush writes all pending changes of the volume and its open files to the device.
func (v *Volume) Flush() (err error) {
	defer v.report("flush", "", &err)
	if err := v.ready(); err != nil {
		return err
	}

	for _, f := range v.openFiles() {
		if err := f.commit(); err != nil {
			return err
		}
	}
	return v.cache.flushAll()
}

// Unmount closes all open files, writes back both buffers and detaches the volume from its device.
func (v *Volume) Unmount() (err error) {
	defer v.report("unmount", "", &err)
	if err := v.ready(); err != nil {
		return err
	}

	for _, f := range v.openFiles() {
		if err := f.Close(); err != nil {
			return err
		}
	}
	if err := v.cache.flushAll(); err != nil {
		return err
	}

	v.cache.invalidate()
	v.mounted = false
	v.log.Debug("volume unmounted")
	return nil
}

// openFiles returns the open files ordered by handle id.
func (v *Volume) openFiles() []*File {
	files := make([]*File, 0, len(v.files))
	for _, f := range v.files {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].id < files[j].id
	})
	return files
}

func (v *Volume) ready() error {
	if !v.mounted {
		return checkpoint.From(ErrNotMounted)
	}
	return nil
}

func (v *Volume) writable() error {
	if err := v.ready(); err != nil {
		return err
	}
	if v.readOnly {
		return checkpoint.From(ErrReadOnly)
	}
	return nil
}

// report logs a failed operation in verbose mode. io.EOF is not a failure.
func (v *Volume) report(op, name string, errp *error) {
	err := *errp
	if err == nil || !v.verbose || errors.Is(err, io.EOF) {
		return
	}

	fields := logrus.Fields{
		"op":    op,
		"trace": checkpoint.Trace(err),
	}
	if name != "" {
		fields["name"] = name
	}
	v.log.WithFields(fields).Error(err.Error())
}
