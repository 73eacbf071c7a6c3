package fat

import (
	"fmt"
	"io"
	"sort"
	"testing"

	"github.com/parallaxinc/PropWare-sub000/format"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// names enumerates d and returns the entry names in directory order.
func names(t *testing.T, d *Dir) []string {
	t.Helper()

	var got []string
	for {
		entry, err := d.Next()
		if err == io.EOF {
			return got
		}
		require.NoError(t, err)
		got = append(got, entry.Name)
	}
}

func TestDir_RootGrows(t *testing.T) {
	vol, dev := newVolume(t, format.FAT32)

	var want []string
	for i := 0; i < dirEntriesPerSector+1; i++ {
		name := fmt.Sprintf("FILE%02d.TXT", i)
		writeFile(t, vol, name, []byte(name))
		want = append(want, name)
	}
	assert.Len(t, chain(t, vol, vol.geo.RootCluster), 2)
	require.NoError(t, vol.Unmount())

	vol = mountDevice(t, dev)
	d, err := vol.OpenRootDirectory()
	require.NoError(t, err)
	got := names(t, d)
	sort.Strings(got)
	assert.Equal(t, want, got)

	assert.Equal(t, []byte("FILE16.TXT"), readFile(t, vol, "FILE16.TXT"))
}

func TestDir_SubdirectoryGrows(t *testing.T) {
	vol, _ := newVolume(t, format.FAT16)
	require.NoError(t, vol.Mkdir("LOGS"))
	require.NoError(t, vol.Chdir("LOGS"))

	for i := 0; i < 40; i++ {
		writeFile(t, vol, fmt.Sprintf("L%d", i), nil)
	}

	d, err := vol.OpenDirectory()
	require.NoError(t, err)
	assert.Len(t, names(t, d), 40)

	require.NoError(t, vol.Chdir(".."))
	stat, err := vol.Stat("LOGS")
	require.NoError(t, err)
	// 42 entries including "." and ".." need three sectors.
	assert.Len(t, chain(t, vol, stat.Cluster), 3)
}

func TestDir_FixedRootFull(t *testing.T) {
	dev := formatDevice(t, format.FAT16, fat16Sectors, format.Options{RootEntries: 16})
	vol := mountDevice(t, dev)
	require.Equal(t, uint32(1), vol.geo.RootDirSectors)

	for i := 0; i < 16; i++ {
		writeFile(t, vol, fmt.Sprintf("F%d", i), nil)
	}
	_, err := vol.Open("ONEMORE", ModeReadWrite)
	assert.ErrorIs(t, err, ErrDirectoryFull)
	assert.ErrorIs(t, vol.Mkdir("DIR"), ErrDirectoryFull)

	free, err := vol.FreeClusters()
	require.NoError(t, err)
	assert.Equal(t, vol.geo.ClusterCount, free, "the failed mkdir released its cluster")
}

func TestDir_DeleteAndReuse(t *testing.T) {
	for _, typ := range volumeTypes {
		t.Run(typ.String(), func(t *testing.T) {
			vol, _ := newVolume(t, typ)
			for _, name := range []string{"A.TXT", "B.TXT", "C.TXT"} {
				writeFile(t, vol, name, []byte(name))
			}
			before, err := vol.FreeClusters()
			require.NoError(t, err)

			require.NoError(t, vol.Remove("B.TXT"))
			ok, err := vol.Exists("B.TXT")
			require.NoError(t, err)
			assert.False(t, ok)
			_, err = vol.Open("B.TXT", ModeRead)
			assert.ErrorIs(t, err, ErrFileNotFound)
			assert.ErrorIs(t, vol.Remove("B.TXT"), ErrFileNotFound)

			after, err := vol.FreeClusters()
			require.NoError(t, err)
			assert.Equal(t, before+1, after)

			writeFile(t, vol, "D.TXT", nil)
			d, err := vol.OpenRootDirectory()
			require.NoError(t, err)
			assert.Equal(t, []string{"A.TXT", "D.TXT", "C.TXT"}, names(t, d))
		})
	}
}

func TestDir_OEMNames(t *testing.T) {
	vol, dev := newVolume(t, format.FAT16)
	writeFile(t, vol, "σta.txt", []byte("sigma"))
	writeFile(t, vol, "über", []byte("umlaut"))

	require.NoError(t, vol.Flush())
	raw := make([]byte, SectorSize)
	require.NoError(t, dev.ReadSector(vol.geo.RootDirSector, raw))
	assert.Equal(t, byte(entryEscapedE5), raw[0], "a leading 0xE5 is stored escaped")

	d, err := vol.OpenRootDirectory()
	require.NoError(t, err)
	listed := names(t, d)
	require.Equal(t, []string{"σTA.TXT", "üBER"}, listed)

	// Listed names open and remove the entries they came from.
	assert.Equal(t, "sigma", string(readFile(t, vol, listed[0])))
	assert.Equal(t, "umlaut", string(readFile(t, vol, listed[1])))
	for _, name := range listed {
		require.NoError(t, vol.Remove(name))
	}
	d.Rewind()
	assert.Empty(t, names(t, d))
}

func TestDir_FindIsExact(t *testing.T) {
	vol, _ := newVolume(t, format.FAT16)
	writeFile(t, vol, "AA.TXT", nil)
	writeFile(t, vol, "A.TXX", nil)
	writeFile(t, vol, "A", nil)

	ok, err := vol.Exists("A.TXT")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = vol.Exists("a.txx")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = vol.Exists("A.TOOLONG")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestDir_Label(t *testing.T) {
	tests := []struct {
		name  string
		typ   format.Type
		label string
	}{
		{name: "FAT16 labelled", typ: format.FAT16, label: "PROPWARE"},
		{name: "FAT32 labelled", typ: format.FAT32, label: "SD CARD"},
		{name: "FAT16 unlabelled", typ: format.FAT16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := formatDevice(t, tt.typ, sectorsFor(tt.typ), format.Options{Label: tt.label})
			vol := mountDevice(t, dev)
			writeFile(t, vol, "AFTER.TXT", nil)

			label, err := vol.Label()
			require.NoError(t, err)
			assert.Equal(t, tt.label, label)

			d, err := vol.OpenRootDirectory()
			require.NoError(t, err)
			assert.Equal(t, []string{"AFTER.TXT"}, names(t, d))
		})
	}
}

func TestDir_SkipsLongNames(t *testing.T) {
	vol, dev := newVolume(t, format.FAT16)
	writeFile(t, vol, "A.TXT", nil)
	require.NoError(t, vol.Unmount())

	g := vol.Geometry()
	patchSector(t, dev, g.RootDirSector, func(b []byte) {
		lfn := b[dirEntrySize : 2*dirEntrySize]
		lfn[0] = 0x41
		copy(lfn[1:], "l\x00o\x00n\x00g\x00")
		lfn[11] = byte(AttrLongName)

		short := b[2*dirEntrySize : 3*dirEntrySize]
		copy(short, "LONG~1  TXT")
		short[11] = byte(AttrArchive)
	})

	vol = mountDevice(t, dev)
	d, err := vol.OpenRootDirectory()
	require.NoError(t, err)
	assert.Equal(t, []string{"A.TXT", "LONG~1.TXT"}, names(t, d))

	ok, err := vol.Exists("LONG~1.TXT")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDir_SkipHidden(t *testing.T) {
	vol, _ := newVolume(t, format.FAT32)
	writeFile(t, vol, "SHOWN.TXT", nil)
	writeFile(t, vol, "HIDDEN.TXT", nil)

	_, loc, err := vol.lookup("HIDDEN.TXT")
	require.NoError(t, err)
	raw, err := vol.entryAt(loc)
	require.NoError(t, err)
	raw[11] |= byte(AttrHidden)
	vol.cache.markDirty(&vol.cache.content)

	d, err := vol.OpenRootDirectory()
	require.NoError(t, err)
	assert.Equal(t, []string{"SHOWN.TXT", "HIDDEN.TXT"}, names(t, d))

	_, err = d.Next()
	assert.ErrorIs(t, err, io.EOF, "stays at the end")

	d.Rewind()
	d.SkipHidden = true
	assert.Equal(t, []string{"SHOWN.TXT"}, names(t, d))
}

func TestDir_EntryFields(t *testing.T) {
	vol, _ := newVolume(t, format.FAT16)
	writeFile(t, vol, "SIZE.BIN", pattern(1000))

	d, err := vol.OpenRootDirectory()
	require.NoError(t, err)
	entry, err := d.Next()
	require.NoError(t, err)

	assert.Equal(t, "SIZE.BIN", entry.Name)
	assert.Equal(t, uint32(1000), entry.Size)
	assert.Equal(t, uint32(2), entry.Cluster)
	assert.Equal(t, AttrArchive, entry.Attr)
	assert.Equal(t, testTime, entry.Modified)
	assert.False(t, entry.IsDir())
}

func TestDir_Subdirectories(t *testing.T) {
	for _, typ := range volumeTypes {
		t.Run(typ.String(), func(t *testing.T) {
			vol, _ := newVolume(t, typ)
			before, err := vol.FreeClusters()
			require.NoError(t, err)

			require.NoError(t, vol.Mkdir("sub"))
			assert.ErrorIs(t, vol.Mkdir("SUB"), ErrExists)
			assert.ErrorIs(t, vol.Mkdir(".."), ErrExists)

			stat, err := vol.Stat("SUB")
			require.NoError(t, err)
			assert.True(t, stat.IsDir())
			assert.NotZero(t, stat.Cluster)

			// The new cluster starts with "." and "..".
			dot, _, err := vol.find(stat.Cluster, [11]byte{'.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '})
			require.NoError(t, err)
			assert.Equal(t, stat.Cluster, dot.cluster())
			dotdot, _, err := vol.find(stat.Cluster, [11]byte{'.', '.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '})
			require.NoError(t, err)
			assert.Zero(t, dotdot.cluster())

			require.NoError(t, vol.Chdir("SUB"))
			writeFile(t, vol, "IN.TXT", []byte("inside"))
			d, err := vol.OpenDirectory()
			require.NoError(t, err)
			assert.Equal(t, []string{"IN.TXT"}, names(t, d))

			require.NoError(t, vol.Chdir(".."))
			ok, err := vol.Exists("IN.TXT")
			require.NoError(t, err)
			assert.False(t, ok)
			assert.ErrorIs(t, vol.Remove("SUB"), ErrDirectoryNotEmpty)

			require.NoError(t, vol.Chdir("SUB"))
			assert.Equal(t, "inside", string(readFile(t, vol, "IN.TXT")))
			require.NoError(t, vol.Remove("IN.TXT"))
			require.NoError(t, vol.Chdir("/"))
			require.NoError(t, vol.Remove("SUB"))

			after, err := vol.FreeClusters()
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestDir_Chdir(t *testing.T) {
	vol, _ := newVolume(t, format.FAT16)
	writeFile(t, vol, "FILE.TXT", nil)

	tests := []struct {
		name    string
		wantErr error
	}{
		{name: "/"},
		{name: "."},
		{name: ".."},
		{name: "FILE.TXT", wantErr: ErrEntryNotDir},
		{name: "NONE", wantErr: ErrFileNotFound},
		{name: "A/B", wantErr: ErrInvalidName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := vol.Chdir(tt.name)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Zero(t, vol.cwd)
		})
	}
}

func TestDir_Rename(t *testing.T) {
	vol, _ := newVolume(t, format.FAT16)
	writeFile(t, vol, "OLD.TXT", []byte("content"))
	writeFile(t, vol, "OTHER.TXT", nil)

	f, err := vol.Open("OLD.TXT", ModeRead)
	require.NoError(t, err)

	assert.ErrorIs(t, vol.Rename("OLD.TXT", "OTHER.TXT"), ErrExists)
	assert.ErrorIs(t, vol.Rename("OLD.TXT", ".."), ErrInvalidName)
	assert.ErrorIs(t, vol.Rename("GONE.TXT", "NEW.TXT"), ErrFileNotFound)

	require.NoError(t, vol.Rename("OLD.TXT", "new.txt"))
	assert.Equal(t, "NEW.TXT", f.Name())
	require.NoError(t, f.Close())

	ok, err := vol.Exists("OLD.TXT")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "content", string(readFile(t, vol, "NEW.TXT")))
}

func TestDir_RemoveBusy(t *testing.T) {
	vol, _ := newVolume(t, format.FAT16)

	f, err := vol.Open("BUSY.TXT", ModeReadWrite)
	require.NoError(t, err)
	assert.ErrorIs(t, vol.Remove("BUSY.TXT"), ErrBusy)
	assert.ErrorIs(t, vol.Remove(".."), ErrInvalidName)

	require.NoError(t, f.Close())
	assert.NoError(t, vol.Remove("BUSY.TXT"))
}

func TestDir_StatRoot(t *testing.T) {
	vol, _ := newVolume(t, format.FAT32)

	for _, name := range []string{"", "/"} {
		entry, err := vol.Stat(name)
		require.NoError(t, err)
		assert.True(t, entry.IsDir())
		assert.Equal(t, "/", entry.Name)
	}
}
