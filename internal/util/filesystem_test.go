package util

import "testing"

func TestGetDiskUsage(t *testing.T) {
	usage, err := GetDiskUsage(t.TempDir())
	if err != nil {
		t.Fatalf("GetDiskUsage failed: %v", err)
	}

	if usage.Total == 0 {
		t.Error("expected non-zero total capacity")
	}
	if usage.Free > usage.Total {
		t.Errorf("free (%d) exceeds total (%d)", usage.Free, usage.Total)
	}
}

func TestGetDiskUsageMissingPath(t *testing.T) {
	if _, err := GetDiskUsage("/definitely/not/a/real/path"); err == nil {
		t.Error("expected error for missing path")
	}
}
