package util

import (
	"strings"
	"testing"
)

const sampleMounts = `sysfs /sys sysfs rw,nosuid 0 0
/dev/sda1 / ext4 rw,relatime 0 0
/dev/sdb1 /mnt ext4 rw 0 0
nas:/volume1 /mnt/nas1 nfs4 rw,vers=4.1 0 0
//nas2/media /mnt/nas2\040media cifs rw 0 0
user@host:/data /mnt/nas10 fuse.sshfs rw 0 0
`

func TestLongestMount(t *testing.T) {
	mounts, err := parseMounts(strings.NewReader(sampleMounts))
	if err != nil {
		t.Fatalf("parseMounts failed: %v", err)
	}

	tests := []struct {
		path    string
		mount   string
		fsType  string
		network bool
	}{
		{"/home/franz", "/", "ext4", false},
		{"/mnt/nas1/Filmy/a.mkv", "/mnt/nas1", "nfs4", true},
		{"/mnt/nas1", "/mnt/nas1", "nfs4", true},
		{"/mnt/nas2 media/Filmy", "/mnt/nas2 media", "cifs", true},
		{"/mnt/nas10/x", "/mnt/nas10", "fuse.sshfs", true},
		{"/mnt/nas100", "/mnt", "ext4", false},
		{"/sys/kernel", "/sys", "sysfs", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			m, ok := longestMount(tt.path, mounts)
			if !ok {
				t.Fatal("no mount found")
			}
			if m.Path != tt.mount || m.FSType != tt.fsType || m.Network != tt.network {
				t.Errorf("longestMount(%q) = %+v, want %s %s network=%t", tt.path, m, tt.mount, tt.fsType, tt.network)
			}
		})
	}
}

func TestIsNetworkFSType(t *testing.T) {
	tests := []struct {
		fsType string
		want   bool
	}{
		{"nfs", true},
		{"NFS4", true},
		{"smbfs", true},
		{"cifs", true},
		{"fuse.rclone", true},
		{"ext4", false},
		{"apfs", false},
		{"fuse.gvfsd-fuse", false},
	}
	for _, tt := range tests {
		if got := IsNetworkFSType(tt.fsType); got != tt.want {
			t.Errorf("IsNetworkFSType(%q) = %t, want %t", tt.fsType, got, tt.want)
		}
	}
}

func TestMountForLocalDir(t *testing.T) {
	m, err := MountFor(t.TempDir())
	if err != nil {
		t.Fatalf("MountFor failed: %v", err)
	}
	if m.FSType == "" {
		t.Error("expected a filesystem type")
	}
}

func TestTuneForPaths(t *testing.T) {
	yes, no := true, false

	tests := []struct {
		name        string
		base        int
		forced      *bool
		wantConc    int
		wantBuffer  int
		wantNetwork bool
	}{
		{"forced local", 16, &no, 16, 0, false},
		{"forced network caps", 16, &yes, 4, networkBufferSize, true},
		{"forced network keeps low", 3, &yes, 3, networkBufferSize, true},
		{"forced network default", 0, &yes, 2, networkBufferSize, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TuneForPaths(tt.base, tt.forced, "/mnt/nas1")
			if got.Concurrency != tt.wantConc || got.BufferSize != tt.wantBuffer {
				t.Errorf("got concurrency %d buffer %d, want %d %d", got.Concurrency, got.BufferSize, tt.wantConc, tt.wantBuffer)
			}
			if (got.Retry != nil) != tt.wantNetwork {
				t.Errorf("retry config set = %t, want %t", got.Retry != nil, tt.wantNetwork)
			}
		})
	}
}
