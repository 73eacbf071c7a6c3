package fat

import (
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/parallaxinc/PropWare-sub000/format"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMount(t *testing.T) {
	tests := []struct {
		name    string
		typ     format.Type
		sectors uint32
		opts    format.Options
		want    Geometry
	}{
		{
			name:    "FAT16",
			typ:     format.FAT16,
			sectors: fat16Sectors,
			want: Geometry{
				Type:                     FAT16,
				TotalSectors:             fat16Sectors,
				ReservedSectors:          1,
				NumFATs:                  2,
				FATSize:                  32,
				FATStart:                 1,
				RootDirSector:            65,
				RootDirSectors:           32,
				FirstDataSector:          97,
				ClusterCount:             fat16Sectors - 97,
				EntriesPerFATSectorShift: 8,
				EOCBegin:                 0xFFF8,
				EOCEnd:                   0xFFFF,
				VolumeID:                 0xC0FFEE,
			},
		},
		{
			name:    "FAT32",
			typ:     format.FAT32,
			sectors: fat32Sectors,
			want: Geometry{
				Type:                     FAT32,
				TotalSectors:             fat32Sectors,
				ReservedSectors:          32,
				NumFATs:                  2,
				FATSize:                  543,
				FATStart:                 32,
				RootCluster:              2,
				FirstDataSector:          32 + 2*543,
				ClusterCount:             fat32Sectors - (32 + 2*543),
				EntriesPerFATSectorShift: 7,
				EOCBegin:                 0x0FFFFFF8,
				EOCEnd:                   0x0FFFFFFF,
				VolumeID:                 0xC0FFEE,
			},
		},
		{
			name:    "FAT16 behind a master boot record",
			typ:     format.FAT16,
			sectors: 2048 + fat16Sectors,
			opts:    format.Options{PartitionStart: 2048, Label: "propware"},
			want: Geometry{
				Type:                     FAT16,
				PartitionStart:           2048,
				TotalSectors:             fat16Sectors,
				ReservedSectors:          1,
				NumFATs:                  2,
				FATSize:                  32,
				FATStart:                 2049,
				RootDirSector:            2048 + 65,
				RootDirSectors:           32,
				FirstDataSector:          2048 + 97,
				ClusterCount:             fat16Sectors - 97,
				EntriesPerFATSectorShift: 8,
				EOCBegin:                 0xFFF8,
				EOCEnd:                   0xFFFF,
				VolumeID:                 0xC0FFEE,
				Label:                    "PROPWARE",
			},
		},
		{
			name:    "FAT32 with four sectors per cluster behind a master boot record",
			typ:     format.FAT32,
			sectors: 63 + 300000,
			opts:    format.Options{PartitionStart: 63, SectorsPerCluster: 4},
			want: Geometry{
				Type:                     FAT32,
				PartitionStart:           63,
				TotalSectors:             300000,
				SectorsPerClusterShift:   2,
				ReservedSectors:          32,
				NumFATs:                  2,
				FATSize:                  585,
				FATStart:                 63 + 32,
				RootCluster:              2,
				FirstDataSector:          63 + 32 + 2*585,
				ClusterCount:             (300000 - (32 + 2*585)) / 4,
				EntriesPerFATSectorShift: 7,
				EOCBegin:                 0x0FFFFFF8,
				EOCEnd:                   0x0FFFFFFF,
				VolumeID:                 0xC0FFEE,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := formatDevice(t, tt.typ, tt.sectors, tt.opts)
			vol := mountDevice(t, dev)

			assert.Equal(t, tt.want, vol.Geometry())
			assert.Equal(t, uint32(1)<<tt.want.SectorsPerClusterShift, vol.Geometry().SectorsPerCluster())
			assert.NoError(t, vol.Unmount())
		})
	}
}

func TestMount_Errors(t *testing.T) {
	tests := []struct {
		name     string
		patch    func(b []byte)
		readOnly bool
		wantErr  error
	}{
		{
			name:    "missing signature",
			patch:   func(b []byte) { b[510] = 0 },
			wantErr: ErrBadBootSignature,
		},
		{
			name:    "no jump instruction and no partition",
			patch:   func(b []byte) { b[0] = 0 },
			wantErr: ErrBadBootSignature,
		},
		{
			name:    "1024 byte sectors",
			patch:   func(b []byte) { putUint16(b, 11, 1024) },
			wantErr: ErrInvalidSectorSize,
		},
		{
			name:    "three sectors per cluster",
			patch:   func(b []byte) { b[13] = 3 },
			wantErr: ErrClusterSizeNotPowerOfTwo,
		},
		{
			name:    "zero sectors per cluster",
			patch:   func(b []byte) { b[13] = 0 },
			wantErr: ErrClusterSizeNotPowerOfTwo,
		},
		{
			name:    "one FAT",
			patch:   func(b []byte) { b[16] = 1 },
			wantErr: ErrTooManyFATs,
		},
		{
			name:    "three FATs",
			patch:   func(b []byte) { b[16] = 3 },
			wantErr: ErrTooManyFATs,
		},
		{
			name:     "one FAT read-only",
			patch:    func(b []byte) { b[16] = 1 },
			readOnly: true,
		},
		{
			name:    "too few clusters",
			patch:   func(b []byte) { putUint16(b, 19, 4000) },
			wantErr: ErrUnsupportedFAT12,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := formatDevice(t, format.FAT16, fat16Sectors, format.Options{})
			patchSector(t, dev, 0, tt.patch)

			opts := []Option{WithLogger(quietLogger())}
			if tt.readOnly {
				opts = append(opts, ReadOnly())
			}
			vol, err := Mount(dev, opts...)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.NotNil(t, vol)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, vol)
		})
	}
}

func TestMount_EmptyDevice(t *testing.T) {
	_, err := Mount(NewMemDevice(100), WithLogger(quietLogger()))
	assert.ErrorIs(t, err, ErrBadBootSignature)
}

func TestMount_PartitionWithoutBootSector(t *testing.T) {
	dev := NewMemDevice(4096)
	patchSector(t, dev, 0, func(b []byte) {
		putUint32(b, mbrPartitionLBA, 2048)
		b[510], b[511] = 0x55, 0xAA
	})

	_, err := Mount(dev, WithLogger(quietLogger()))
	assert.ErrorIs(t, err, ErrBadBootSignature)
}

func TestMount_TransportError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	dev := NewMockBlockDevice(ctrl)
	dev.EXPECT().ReadSector(uint32(0), gomock.Any()).Return(errTransport).Times(1)

	_, err := Mount(dev, WithLogger(quietLogger()))
	assert.ErrorIs(t, err, errTransport)
}

func TestParseBootSector_Classification(t *testing.T) {
	tests := []struct {
		name     string
		clusters uint32
		want     FATType
		wantErr  error
	}{
		{name: "largest FAT12", clusters: 4084, wantErr: ErrUnsupportedFAT12},
		{name: "smallest FAT16", clusters: 4085, want: FAT16},
		{name: "largest FAT16", clusters: 65524, want: FAT16},
		{name: "smallest FAT32", clusters: 65525, want: FAT32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// One reserved sector, two FATs large enough for any count used here, no root directory area.
			const fatSize = 600
			b := make([]byte, SectorSize)
			b[0], b[1], b[2] = 0xEB, 0x58, 0x90
			putUint16(b, 11, SectorSize)
			b[13] = 1
			putUint16(b, 14, 1)
			b[16] = 2
			putUint32(b, 32, 1+2*fatSize+tt.clusters)
			putUint16(b, 22, fatSize)
			putUint32(b, 36, fatSize)
			putUint32(b, 44, 2)
			b[510], b[511] = 0x55, 0xAA

			g, err := parseBootSector(b, 0, true)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, g.Type)
			assert.Equal(t, tt.clusters, g.ClusterCount)
		})
	}
}

func TestFATType_MarshalText(t *testing.T) {
	got, err := FAT32.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "FAT32", string(got))
	assert.Equal(t, "FAT16", FAT16.String())
}
