package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/franz/stagehop/internal/store"
	"github.com/franz/stagehop/internal/util"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "datasets.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

func TestLoadDatasetFile(t *testing.T) {
	path := writeFile(t, `
[[dataset]]
name = "nas1"
location = "primary"
roots = ["Filmy", "Serialy"]
base_path = "/mnt/nas1"

[[dataset]]
name = "nas2"
location = "secondary"
roots = ["Media/Filmy"]
base_path = "/volume1"
scan_adapter = "sftp"
transfer_adapter = "ssh"

[dataset.scan_config]
host = "nas2.local"
user = "admin"

[dataset.transfer_config]
host = "nas2.local"
port = "2222"
`)

	datasets, err := loadDatasetFile(path)
	if err != nil {
		t.Fatalf("loadDatasetFile failed: %v", err)
	}
	if len(datasets) != 2 {
		t.Fatalf("expected 2 datasets, got %d", len(datasets))
	}

	nas1, nas2 := datasets[0], datasets[1]
	if nas1.Name != "nas1" || nas1.Location != store.LocationPrimary || len(nas1.Roots) != 2 {
		t.Errorf("unexpected first dataset: %+v", nas1)
	}
	if nas2.ScanAdapter != "sftp" || nas2.ScanConfig["host"] != "nas2.local" || nas2.TransferConfig["port"] != "2222" {
		t.Errorf("unexpected second dataset: %+v", nas2)
	}
}

func TestLoadDatasetFile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "bad location",
			content: "[[dataset]]\nname = \"x\"\nlocation = \"attic\"\nbase_path = \"/x\"\n",
			wantErr: "unknown location",
		},
		{
			name:    "missing name",
			content: "[[dataset]]\nlocation = \"primary\"\nbase_path = \"/x\"\n",
			wantErr: "name is required",
		},
		{
			name:    "missing base path",
			content: "[[dataset]]\nname = \"x\"\nlocation = \"primary\"\n",
			wantErr: "base_path is required",
		},
		{
			name:    "duplicate",
			content: "[[dataset]]\nname = \"x\"\nlocation = \"primary\"\nbase_path = \"/x\"\n[[dataset]]\nname = \"x\"\nlocation = \"staging\"\nbase_path = \"/y\"\n",
			wantErr: "defined twice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadDatasetFile(writeFile(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
			if !errors.Is(err, util.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoadDatasetFile_Malformed(t *testing.T) {
	if _, err := loadDatasetFile(writeFile(t, "[[dataset]\nname=")); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidateDatasetS3WithoutBase(t *testing.T) {
	d := &store.Dataset{Name: "bucket", Location: store.LocationSecondary, ScanAdapter: "s3"}
	if err := validateDataset(d); err != nil {
		t.Errorf("s3 datasets may omit base_path: %v", err)
	}
}

func TestFormatConfigHidesSecrets(t *testing.T) {
	got := formatConfig(store.JSONMap{"user": "admin", "password": "hunter2", "secret_key": "abc", "host": "nas"})
	want := "host=nas\npassword=********\nsecret_key=********\nuser=admin"
	if got != want {
		t.Errorf("formatConfig = %q, want %q", got, want)
	}
}

func TestFirstLine(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"first\nsecond", 10, "first"},
		{"abcdefghijkl", 8, "abcde..."},
	}
	for _, tt := range tests {
		if got := firstLine(tt.in, tt.max); got != tt.want {
			t.Errorf("firstLine(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
