package fat

import (
	"github.com/parallaxinc/PropWare-sub000/checkpoint"
	"github.com/sirupsen/logrus"
)

// Owner tags of the content buffer. Files use their handle id, starting at ownerFirstFile.
const (
	ownerVolume    uint32 = 0
	ownerFirstFile uint32 = 1
)

// sector is one cached sector together with its state.
type sector struct {
	current uint32
	valid   bool
	dirty   bool
	owner   uint32
	buffer  [SectorSize]byte
}

// sectorCache holds the only two sectors a volume keeps in memory:
// content for directory and file data, fat for allocation table lookups.
// A dirty sector is written back before its buffer is reused for another address.
type sectorCache struct {
	dev BlockDevice
	log logrus.FieldLogger

	content sector
	fat     sector

	// Set once the geometry is known. FAT sectors are written to every copy.
	fatSize   uint32
	fatCopies uint8
}

// fetch makes the sector at addr current in s and tags it with owner.
func (c *sectorCache) fetch(s *sector, addr uint32, owner uint32) error {
	if s.valid && s.current == addr {
		s.owner = owner
		return nil
	}

	if err := c.flush(s); err != nil {
		return err
	}

	if err := c.dev.ReadSector(addr, s.buffer[:]); err != nil {
		s.valid = false
		return checkpoint.Wrapf(err, "read sector %d", addr)
	}
	s.current = addr
	s.valid = true
	s.owner = owner
	return nil
}

// blank makes a zeroed sector at addr current in s without reading it and marks it dirty.
func (c *sectorCache) blank(s *sector, addr uint32, owner uint32) error {
	if s.valid && s.current != addr {
		if err := c.flush(s); err != nil {
			return err
		}
	}

	clear(s.buffer[:])
	s.current = addr
	s.valid = true
	s.dirty = true
	s.owner = owner
	return nil
}

func (c *sectorCache) markDirty(s *sector) {
	s.dirty = true
}

// owns reports whether s currently holds data of owner.
func (c *sectorCache) owns(s *sector, owner uint32) bool {
	return s.valid && s.owner == owner
}

// flush writes s back if it is dirty. FAT sectors go to every FAT copy.
func (c *sectorCache) flush(s *sector) error {
	if !s.valid || !s.dirty {
		return nil
	}

	copies := uint32(1)
	if s == &c.fat && c.fatCopies > 1 {
		copies = uint32(c.fatCopies)
	}
	for i := uint32(0); i < copies; i++ {
		addr := s.current + i*c.fatSize
		if err := c.dev.WriteSector(addr, s.buffer[:]); err != nil {
			return checkpoint.Wrapf(err, "write sector %d", addr)
		}
	}

	c.log.WithFields(logrus.Fields{
		"sector": s.current,
		"copies": copies,
	}).Trace("sector written back")

	s.dirty = false
	return nil
}

// flushAll writes back both buffers.
func (c *sectorCache) flushAll() error {
	if err := c.flush(&c.content); err != nil {
		return err
	}
	return c.flush(&c.fat)
}

// invalidate forgets both buffers without writing them.
func (c *sectorCache) invalidate() {
	c.content = sector{}
	c.fat = sector{}
}
