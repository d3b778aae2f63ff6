package minix

import (
	"bytes"
	"errors"
	"testing"

	"github.com/aligator/fat2minix/diskerr"
)

func TestVolume_WriteDataBlock_indirect(t *testing.T) {
	v, _ := newVolume(t)

	ino := Inode{Mode: ModeRegular | 0644, Size: 8 * BlockSize}
	for i := 0; i < 8; i++ {
		if err := v.WriteDataBlock(i, &ino, bytes.Repeat([]byte{byte(i + 1)}, BlockSize)); err != nil {
			t.Fatalf("Volume.WriteDataBlock(%d) error = %v", i, err)
		}
	}

	// Zones are handed out in order: 7-13 for the direct blocks, 14 for the
	// indirect block and 15 for block 7.
	for i := 0; i < DirectZones; i++ {
		if want := uint16(7 + i); ino.Zone[i] != want {
			t.Errorf("Zone[%d] = %d, want %d", i, ino.Zone[i], want)
		}
	}
	if ino.Zone[IndirectZone] != 14 {
		t.Errorf("Zone[%d] = %d, want 14", IndirectZone, ino.Zone[IndirectZone])
	}
	if ino.Zone[DoubleIndirectZone] != 0 {
		t.Errorf("Zone[%d] = %d, want 0", DoubleIndirectZone, ino.Zone[DoubleIndirectZone])
	}

	zone, err := v.zoneFor(7, &ino, false)
	if err != nil {
		t.Fatalf("zoneFor(7) error = %v", err)
	}
	if zone != 15 {
		t.Errorf("zoneFor(7) = %d, want 15", zone)
	}
	for i := 0; i <= IndirectZone; i++ {
		if ino.Zone[i] == zone {
			t.Errorf("block 7 shares zone %d with Zone[%d]", zone, i)
		}
	}

	for i := 0; i < 8; i++ {
		got, err := v.ReadDataBlock(i, &ino)
		if err != nil {
			t.Fatalf("Volume.ReadDataBlock(%d) error = %v", i, err)
		}
		if want := bytes.Repeat([]byte{byte(i + 1)}, BlockSize); !bytes.Equal(got, want) {
			t.Errorf("Volume.ReadDataBlock(%d) = %v..., want all %d", i, got[:4], i+1)
		}
	}
}

func TestVolume_WriteDataBlock_lastAddressable(t *testing.T) {
	v, _ := newVolume(t)

	ino := Inode{Mode: ModeRegular | 0644}
	if err := v.WriteDataBlock(MaxFileBlocks-1, &ino, []byte("last")); err != nil {
		t.Fatalf("Volume.WriteDataBlock(%d) error = %v", MaxFileBlocks-1, err)
	}
	for i := 0; i < DirectZones; i++ {
		if ino.Zone[i] != 0 {
			t.Errorf("Zone[%d] = %d, want 0", i, ino.Zone[i])
		}
	}

	got, err := v.ReadDataBlock(MaxFileBlocks-1, &ino)
	if err != nil {
		t.Fatalf("Volume.ReadDataBlock(%d) error = %v", MaxFileBlocks-1, err)
	}
	if !bytes.HasPrefix(got, []byte("last")) {
		t.Errorf("Volume.ReadDataBlock(%d) = %q..., want prefix %q", MaxFileBlocks-1, got[:8], "last")
	}
}

func TestVolume_DataBlock_errors(t *testing.T) {
	direct := Inode{Mode: ModeRegular}
	direct.Zone[0] = 6

	tests := []struct {
		name    string
		index   int
		ino     Inode
		write   bool
		buf     []byte
		wantErr error
	}{
		{name: "read double indirect", index: MaxFileBlocks, wantErr: diskerr.ErrUnsupportedIndirection},
		{name: "write double indirect", index: MaxFileBlocks, write: true, wantErr: diskerr.ErrUnsupportedIndirection},
		{name: "read negative", index: -1, wantErr: diskerr.ErrSeek},
		{name: "read direct hole", index: 0, wantErr: diskerr.ErrHole},
		{name: "read without indirect block", index: 7, ino: direct, wantErr: diskerr.ErrHole},
		{name: "write too much", index: 0, write: true, buf: make([]byte, BlockSize+1), wantErr: diskerr.ErrShortWrite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _ := newVolume(t)
			ino := tt.ino

			var err error
			if tt.write {
				err = v.WriteDataBlock(tt.index, &ino, tt.buf)
			} else {
				_, err = v.ReadDataBlock(tt.index, &ino)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if ino != tt.ino {
				t.Errorf("inode changed to %+v", ino)
			}
		})
	}
}

func TestVolume_ReadDataBlock_holeInIndirect(t *testing.T) {
	v, _ := newVolume(t)

	ino := Inode{Mode: ModeRegular}
	if err := v.WriteDataBlock(8, &ino, []byte{1}); err != nil {
		t.Fatal(err)
	}
	if _, err := v.ReadDataBlock(7, &ino); !errors.Is(err, diskerr.ErrHole) {
		t.Errorf("Volume.ReadDataBlock(7) error = %v, want %v", err, diskerr.ErrHole)
	}
}

func TestVolume_WriteDataBlock_padding(t *testing.T) {
	v, _ := newVolume(t)

	ino := Inode{Mode: ModeRegular}
	if err := v.WriteDataBlock(0, &ino, bytes.Repeat([]byte{0xAA}, BlockSize)); err != nil {
		t.Fatal(err)
	}
	if err := v.WriteDataBlock(0, &ino, []byte("short")); err != nil {
		t.Fatal(err)
	}

	got, err := v.ReadDataBlock(0, &ino)
	if err != nil {
		t.Fatal(err)
	}
	want := make([]byte, BlockSize)
	copy(want, "short")
	if !bytes.Equal(got, want) {
		t.Errorf("Volume.ReadDataBlock(0) is not zero padded: %v", got[:16])
	}
}
