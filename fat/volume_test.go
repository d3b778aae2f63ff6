package fat_test

import (
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"github.com/aligator/fat2minix/diskerr"
	"github.com/aligator/fat2minix/diskio"
	"github.com/aligator/fat2minix/fat"
	"github.com/aligator/fat2minix/internal/fatimage"
)

// recordingDevice records the offset of every seek, so tests can check which
// clusters were read.
type recordingDevice struct {
	diskio.Device
	seeks []int64
}

func (d *recordingDevice) Seek(offset int64, whence int) (int64, error) {
	d.seeks = append(d.seeks, offset)
	return d.Device.Seek(offset, whence)
}

func writeImage(t *testing.T, b *fatimage.Builder) afero.File {
	t.Helper()
	f, err := b.Write(afero.NewMemMapFs(), "fat.img")
	if err != nil {
		t.Fatalf("could not build image: %v", err)
	}
	return f
}

func openVolume(t *testing.T, b *fatimage.Builder) (*fat.Volume, *recordingDevice) {
	t.Helper()
	dev := &recordingDevice{Device: writeImage(t, b)}
	v, err := fat.Open(dev)
	if err != nil {
		t.Fatalf("fat.Open() error = %v", err)
	}
	dev.seeks = nil
	return v, dev
}

func patchImage(t *testing.T, b *fatimage.Builder, patch func(image []byte)) diskio.Device {
	t.Helper()
	image, err := b.Image()
	if err != nil {
		t.Fatalf("could not build image: %v", err)
	}
	patch(image)

	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "fat.img", image, 0644); err != nil {
		t.Fatal(err)
	}
	f, err := fs.Open("fat.img")
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestOpen(t *testing.T) {
	b := fatimage.New()
	b.Label = "testvol"
	v, _ := openVolume(t, b)

	want := fat.Geometry{
		SectorSize:   512,
		ClusterSize:  512,
		NumFATs:      2,
		FATOffset:    512,
		FATSize:      512,
		RootOffset:   1536,
		RootSize:     2048,
		DataOffset:   3584,
		TotalSectors: 1 + 2 + 4 + 128,
	}
	if diff := cmp.Diff(want, v.Geometry()); diff != "" {
		t.Errorf("Volume.Geometry() mismatch (-want +got):\n%s", diff)
	}
	if got := v.EndOfChain(); got != 0xFFFF {
		t.Errorf("Volume.EndOfChain() = %#x, want 0xffff", got)
	}
	if got := v.Label(); got != "TESTVOL" {
		t.Errorf("Volume.Label() = %q, want %q", got, "TESTVOL")
	}
	if got := v.BootSector().RootEntryCount; got != 64 {
		t.Errorf("BootSector().RootEntryCount = %v, want 64", got)
	}
}

func TestOpen_validation(t *testing.T) {
	tests := []struct {
		name          string
		patch         func(image []byte)
		wantErr       error
		wantSkipError error
	}{
		{
			name:  "valid",
			patch: func(image []byte) {},
		},
		{
			name:    "invalid jump instruction",
			patch:   func(image []byte) { image[0] = 0 },
			wantErr: diskerr.ErrInvalidGeometry,
		},
		{
			name:    "invalid sector size",
			patch:   func(image []byte) { image[11], image[12] = 0x01, 0x02 },
			wantErr: diskerr.ErrInvalidGeometry,
		},
		{
			name:    "sectors per cluster not a power of two",
			patch:   func(image []byte) { image[13] = 3 },
			wantErr: diskerr.ErrInvalidGeometry,
		},
		{
			name:    "no FAT",
			patch:   func(image []byte) { image[16] = 0 },
			wantErr: diskerr.ErrInvalidGeometry,
		},
		{
			name:          "FAT size 0",
			patch:         func(image []byte) { image[22], image[23] = 0, 0 },
			wantErr:       diskerr.ErrInvalidGeometry,
			wantSkipError: diskerr.ErrAllocation,
		},
		{
			name:          "no root entries",
			patch:         func(image []byte) { image[17], image[18] = 0, 0 },
			wantErr:       diskerr.ErrInvalidGeometry,
			wantSkipError: diskerr.ErrAllocation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := patchImage(t, fatimage.New(), tt.patch)
			if _, err := fat.Open(dev); !errors.Is(err, tt.wantErr) {
				t.Errorf("fat.Open() error = %v, wantErr %v", err, tt.wantErr)
			}
			if _, err := fat.OpenSkipChecks(dev); !errors.Is(err, tt.wantSkipError) {
				t.Errorf("fat.OpenSkipChecks() error = %v, wantErr %v", err, tt.wantSkipError)
			}
		})
	}
}

func TestOpen_truncated(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{name: "boot sector", size: 40},
		{name: "FAT", size: 600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			image, err := fatimage.New().Image()
			if err != nil {
				t.Fatal(err)
			}
			fs := afero.NewMemMapFs()
			if err := afero.WriteFile(fs, "fat.img", image[:tt.size], 0644); err != nil {
				t.Fatal(err)
			}
			f, err := fs.Open("fat.img")
			if err != nil {
				t.Fatal(err)
			}

			if _, err := fat.Open(f); !errors.Is(err, diskerr.ErrShortRead) {
				t.Errorf("fat.Open() error = %v, want %v", err, diskerr.ErrShortRead)
			}
		})
	}
}

func TestOpen_endOfChainFromTable(t *testing.T) {
	b := fatimage.New()
	b.EndOfChain = 0xFFF8
	if err := b.File("a.txt", make([]byte, 1500)); err != nil {
		t.Fatal(err)
	}
	v, _ := openVolume(t, b)

	if got := v.EndOfChain(); got != 0xFFF8 {
		t.Fatalf("Volume.EndOfChain() = %#x, want 0xfff8", got)
	}

	clusters, err := v.Clusters(b.Chain("a.txt")[0])
	if err != nil {
		t.Fatalf("Volume.Clusters() error = %v", err)
	}
	if diff := cmp.Diff(b.Chain("a.txt"), clusters); diff != "" {
		t.Errorf("Volume.Clusters() mismatch (-want +got):\n%s", diff)
	}
}

func TestVolume_ReadCluster(t *testing.T) {
	b := fatimage.New()
	content := make([]byte, 700)
	for i := range content {
		content[i] = byte(i)
	}
	if err := b.File("a.bin", content); err != nil {
		t.Fatal(err)
	}
	v, dev := openVolume(t, b)
	chain := b.Chain("a.bin")

	got, err := v.ReadCluster(chain[1])
	if err != nil {
		t.Fatalf("Volume.ReadCluster() error = %v", err)
	}
	want := make([]byte, 512)
	copy(want, content[512:])
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Volume.ReadCluster() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{3584 + int64(chain[1]-2)*512}, dev.seeks); diff != "" {
		t.Errorf("Volume.ReadCluster() seeks mismatch (-want +got):\n%s", diff)
	}

	root, err := v.ReadCluster(0)
	if err != nil {
		t.Fatalf("Volume.ReadCluster(0) error = %v", err)
	}
	if len(root) != 2048 {
		t.Errorf("Volume.ReadCluster(0) returned %d bytes, want 2048", len(root))
	}

	for _, cluster := range []uint16{1, 0xFFF0} {
		if _, err := v.ReadCluster(cluster); !errors.Is(err, diskerr.ErrBadChain) {
			t.Errorf("Volume.ReadCluster(%d) error = %v, want %v", cluster, err, diskerr.ErrBadChain)
		}
	}
}

func TestVolume_WriteCluster(t *testing.T) {
	b := fatimage.New()
	if err := b.File("a.bin", []byte("abc")); err != nil {
		t.Fatal(err)
	}
	v, _ := openVolume(t, b)
	cluster := b.Chain("a.bin")[0]

	if err := v.WriteCluster(cluster, []byte("too short")); !errors.Is(err, diskerr.ErrShortWrite) {
		t.Errorf("Volume.WriteCluster() error = %v, want %v", err, diskerr.ErrShortWrite)
	}

	data := make([]byte, 512)
	copy(data, "changed")
	if err := v.WriteCluster(cluster, data); err != nil {
		t.Fatalf("Volume.WriteCluster() error = %v", err)
	}

	got, err := v.ReadCluster(cluster)
	if err != nil {
		t.Fatalf("Volume.ReadCluster() error = %v", err)
	}
	if diff := cmp.Diff(data, got); diff != "" {
		t.Errorf("cluster content mismatch (-want +got):\n%s", diff)
	}
}

func TestVolume_PersistTable(t *testing.T) {
	b := fatimage.New()
	if err := b.File("a.bin", make([]byte, 2000)); err != nil {
		t.Fatal(err)
	}
	dev := writeImage(t, b)
	v, err := fat.Open(dev)
	if err != nil {
		t.Fatal(err)
	}

	// Destroy the second FAT copy; persisting must restore it from memory.
	g := v.Geometry()
	if _, err := dev.WriteAt(make([]byte, g.FATSize), g.FATOffset+g.FATSize); err != nil {
		t.Fatal(err)
	}

	if err := v.PersistTable(); err != nil {
		t.Fatalf("Volume.PersistTable() error = %v", err)
	}

	copies := make([]byte, 2*g.FATSize)
	if _, err := dev.Seek(g.FATOffset, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	if _, err := io.ReadFull(dev, copies); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(copies[:g.FATSize], copies[g.FATSize:]); diff != "" {
		t.Errorf("FAT copies differ (-first +second):\n%s", diff)
	}

	chain := b.Chain("a.bin")
	for i, cluster := range chain {
		next, err := v.Next(cluster)
		if err != nil {
			t.Fatal(err)
		}
		want := v.EndOfChain()
		if i+1 < len(chain) {
			want = chain[i+1]
		}
		if next != want {
			t.Errorf("Volume.Next(%d) = %d, want %d", cluster, next, want)
		}
	}
}
