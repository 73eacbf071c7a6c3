package fat

import (
	"encoding/binary"

	"github.com/parallaxinc/PropWare-sub000/checkpoint"
	"github.com/sirupsen/logrus"
)

// chainPosition is a cursor into a cluster chain.
type chainPosition struct {
	// start is the first cluster of the chain, 0 for an empty file.
	start uint32
	// current is the cluster with index clusterIndex within the chain.
	current      uint32
	clusterIndex uint32
}

func newChainPosition(start uint32) chainPosition {
	return chainPosition{start: start, current: start}
}

// fatEntry returns the allocation table entry of cluster c.
func (v *Volume) fatEntry(c uint32) (uint32, error) {
	g := &v.geo
	addr := g.FATStart + c>>g.EntriesPerFATSectorShift
	if err := v.cache.fetch(&v.cache.fat, addr, ownerVolume); err != nil {
		return 0, err
	}

	i := c & (1<<g.EntriesPerFATSectorShift - 1)
	b := v.cache.fat.buffer[:]
	if g.Type == FAT16 {
		return uint32(binary.LittleEndian.Uint16(b[i*2:])), nil
	}
	return binary.LittleEndian.Uint32(b[i*4:]) & fat32Mask, nil
}

// setFATEntry changes the allocation table entry of cluster c.
// The reserved upper four bits of a FAT32 entry are preserved.
func (v *Volume) setFATEntry(c, value uint32) error {
	g := &v.geo
	addr := g.FATStart + c>>g.EntriesPerFATSectorShift
	if err := v.cache.fetch(&v.cache.fat, addr, ownerVolume); err != nil {
		return err
	}

	i := c & (1<<g.EntriesPerFATSectorShift - 1)
	b := v.cache.fat.buffer[:]
	if g.Type == FAT16 {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(value))
	} else {
		old := binary.LittleEndian.Uint32(b[i*4:])
		binary.LittleEndian.PutUint32(b[i*4:], old&^fat32Mask|value&fat32Mask)
	}
	v.cache.markDirty(&v.cache.fat)
	return nil
}

// nextCluster returns the successor of c. It fails with ErrReadingPastEOC if c is the last
// cluster and with ErrCorruptChain if the entry is neither a cluster nor an end marker.
func (v *Volume) nextCluster(c uint32) (uint32, error) {
	next, err := v.fatEntry(c)
	if err != nil {
		return 0, err
	}
	if v.geo.isEOC(next) {
		return 0, checkpoint.Wrapf(ErrReadingPastEOC, "cluster %d", c)
	}
	if !v.geo.validCluster(next) {
		return 0, checkpoint.Wrapf(ErrCorruptChain, "cluster %d links to %#x", c, next)
	}
	return next, nil
}

// seekCluster moves pos to the cluster with the given index. Moving backwards restarts from
// the first cluster. If the chain ends early, pos stays on its last cluster.
func (v *Volume) seekCluster(pos *chainPosition, index uint32) error {
	if !v.geo.validCluster(pos.start) {
		return checkpoint.Wrapf(ErrCorruptChain, "chain starts at %#x", pos.start)
	}

	if index < pos.clusterIndex {
		pos.current = pos.start
		pos.clusterIndex = 0
	}
	for pos.clusterIndex < index {
		next, err := v.nextCluster(pos.current)
		if err != nil {
			return err
		}
		pos.current = next
		pos.clusterIndex++
	}
	return nil
}

// extend links a new cluster behind pos.current, which must end its chain, and moves pos onto it.
func (v *Volume) extend(pos *chainPosition) (uint32, error) {
	entry, err := v.fatEntry(pos.current)
	if err != nil {
		return 0, err
	}
	if !v.geo.isEOC(entry) {
		return 0, checkpoint.Wrapf(ErrChainNotAtEnd, "cluster %d links to %#x", pos.current, entry)
	}

	c, err := v.allocate(pos.current)
	if err != nil {
		return 0, err
	}
	if err := v.setFATEntry(pos.current, c); err != nil {
		return 0, err
	}

	pos.current = c
	pos.clusterIndex++
	return c, nil
}

// allocate reserves the first free cluster at or after the FAT sector holding hint and marks
// it as the end of a chain. The search wraps around once before giving up.
func (v *Volume) allocate(hint uint32) (uint32, error) {
	g := &v.geo
	first := uint32(firstCluster)
	if g.Type == FAT32 {
		first = fat32FirstFree
	}
	last := g.ClusterCount + firstCluster - 1

	c := hint &^ (1<<g.EntriesPerFATSectorShift - 1)
	if c < first || c > last {
		c = first
	}

	for n := first; n <= last; n++ {
		entry, err := v.fatEntry(c)
		if err != nil {
			return 0, err
		}
		if entry == 0 {
			if err := v.setFATEntry(c, g.eocMarker()); err != nil {
				return 0, err
			}
			v.allocHint = c
			v.log.WithFields(logrus.Fields{
				"cluster": c,
				"hint":    hint,
			}).Debug("cluster allocated")
			return c, nil
		}

		c++
		if c > last {
			c = first
		}
	}
	return 0, checkpoint.Wrapf(ErrNoSpace, "%d clusters in use", last-first+1)
}

// freeChain releases every cluster of the chain starting at c.
func (v *Volume) freeChain(c uint32) error {
	for n := uint32(0); ; n++ {
		if n > v.geo.ClusterCount {
			return checkpoint.Wrapf(ErrCorruptChain, "chain at %d loops", c)
		}
		if !v.geo.validCluster(c) {
			return checkpoint.Wrapf(ErrCorruptChain, "chain links to %#x", c)
		}

		next, err := v.fatEntry(c)
		if err != nil {
			return err
		}
		if err := v.setFATEntry(c, 0); err != nil {
			return err
		}
		if v.geo.isEOC(next) {
			return nil
		}
		c = next
	}
}

// truncateChain keeps the first keep clusters of the chain at pos and frees the rest.
// keep must be at least one.
func (v *Volume) truncateChain(pos *chainPosition, keep uint32) error {
	if err := v.seekCluster(pos, keep-1); err != nil {
		return err
	}

	next, err := v.fatEntry(pos.current)
	if err != nil {
		return err
	}
	if v.geo.isEOC(next) {
		return nil
	}
	if err := v.setFATEntry(pos.current, v.geo.eocMarker()); err != nil {
		return err
	}
	return v.freeChain(next)
}

// FreeClusters counts the clusters allocate can still hand out. On FAT32 the
// clusters below fat32FirstFree are never allocated and never counted.
func (v *Volume) FreeClusters() (free uint32, err error) {
	defer v.report("free clusters", "", &err)
	if err := v.ready(); err != nil {
		return 0, err
	}

	first := uint32(firstCluster)
	if v.geo.Type == FAT32 {
		first = fat32FirstFree
	}
	for c := first; c < v.geo.ClusterCount+firstCluster; c++ {
		entry, err := v.fatEntry(c)
		if err != nil {
			return 0, err
		}
		if entry == 0 {
			free++
		}
	}
	return free, nil
}
