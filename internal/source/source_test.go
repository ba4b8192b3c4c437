package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/spf13/afero"

	"github.com/franz/stagehop/internal/store"
	"github.com/franz/stagehop/internal/util"
)

func collect(t *testing.T, src ScanSource, roots []string) ([]store.FileRecord, []string) {
	t.Helper()
	var records []store.FileRecord
	var logs []string
	err := src.List(context.Background(), roots, func(r store.FileRecord) error {
		records = append(records, r)
		return nil
	}, func(format string, args ...any) {
		logs = append(logs, fmt.Sprintf(format, args...))
	})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].RelPath < records[j].RelPath })
	return records, logs
}

func TestLocalList(t *testing.T) {
	fs := afero.NewMemMapFs()
	mtime := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	files := map[string]string{
		"/Filmy/a.mkv":       "aaaa",
		"/Filmy/sub/b.mkv":   "bb",
		"/Other/ignored.mkv": "x",
	}
	for p, content := range files {
		if err := afero.WriteFile(fs, p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		fs.Chtimes(p, mtime, mtime)
	}

	records, _ := collect(t, NewLocalFs(fs), []string{"/Filmy/"})
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d: %+v", len(records), records)
	}

	want := store.FileRecord{RelPath: "Filmy/a.mkv", Size: 4, Mtime: float64(mtime.Unix()), RootLabel: "Filmy"}
	if records[0] != want {
		t.Errorf("got %+v, want %+v", records[0], want)
	}
	if records[1].RelPath != "Filmy/sub/b.mkv" || records[1].Size != 2 {
		t.Errorf("unexpected nested record: %+v", records[1])
	}
}

func TestLocalListMissingRoot(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/Filmy/a.mkv", []byte("a"), 0644)

	records, logs := collect(t, NewLocalFs(fs), []string{"Missing", "Filmy"})
	if len(records) != 1 {
		t.Errorf("expected the existing root to be scanned, got %d records", len(records))
	}
	if len(logs) == 0 || logs[0] != "Warning: root path does not exist: /Missing" {
		t.Errorf("expected missing root warning, got %v", logs)
	}
}

func TestLocalListWholeBase(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/x/a", []byte("a"), 0644)
	afero.WriteFile(fs, "/b", []byte("b"), 0644)

	records, _ := collect(t, NewLocalFs(fs), nil)
	if len(records) != 2 || records[0].RelPath != "b" || records[1].RelPath != "x/a" {
		t.Errorf("unexpected records: %+v", records)
	}
	if records[0].RootLabel != "" {
		t.Errorf("expected empty root label, got %q", records[0].RootLabel)
	}
}

func TestLocalListYieldErrorStops(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/r/a", []byte("a"), 0644)
	afero.WriteFile(fs, "/r/b", []byte("b"), 0644)

	stop := errors.New("stop")
	calls := 0
	err := NewLocalFs(fs).List(context.Background(), []string{"r"}, func(store.FileRecord) error {
		calls++
		return stop
	}, func(string, ...any) {})

	if !errors.Is(err, stop) {
		t.Errorf("expected yield error to propagate, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected listing to stop after first record, got %d calls", calls)
	}
}

func TestNewLocalRequiresDirectory(t *testing.T) {
	if _, err := NewLocal(""); err == nil {
		t.Error("expected error for empty base path")
	}
	if _, err := NewLocal(t.TempDir() + "/missing"); err == nil {
		t.Error("expected error for missing base path")
	}
	if _, err := NewLocal(t.TempDir()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewUnknownAdapter(t *testing.T) {
	_, err := New(context.Background(), &store.Dataset{ScanAdapter: "ftp"})
	if !errors.Is(err, util.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestSFTPConfigFrom(t *testing.T) {
	d := &store.Dataset{
		BasePath: "/volume1",
		ScanConfig: store.JSONMap{
			"host":              "nas.local",
			"port":              "2222",
			"user":              "media",
			"insecure_host_key": "true",
			"timeout_seconds":   "bogus",
		},
	}
	cfg := sftpConfigFrom(d)
	if cfg.Host != "nas.local" || cfg.Port != 2222 || cfg.User != "media" || !cfg.InsecureHostKey {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("expected default timeout, got %v", cfg.Timeout)
	}
	if _, err := cfg.clientConfig(); err == nil {
		t.Error("expected error without password or key")
	}

	cfg.Password = "secret"
	cc, err := cfg.clientConfig()
	if err != nil {
		t.Fatalf("clientConfig failed: %v", err)
	}
	if cc.User != "media" || len(cc.Auth) != 1 {
		t.Errorf("unexpected client config: %+v", cc)
	}
}

type fakeS3 struct {
	pages map[string]*s3.ListObjectsV2Output
	calls []string
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	token := aws.ToString(in.ContinuationToken)
	f.calls = append(f.calls, aws.ToString(in.Prefix)+"#"+token)
	out, ok := f.pages[token]
	if !ok {
		return nil, errors.New("unexpected token")
	}
	return out, nil
}

func object(key string, size int64, mtime time.Time) types.Object {
	return types.Object{Key: aws.String(key), Size: aws.Int64(size), LastModified: aws.Time(mtime)}
}

func TestS3ListPaginates(t *testing.T) {
	mtime := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)
	client := &fakeS3{pages: map[string]*s3.ListObjectsV2Output{
		"": {
			Contents: []types.Object{
				object("media/Filmy/", 0, mtime),
				object("media/Filmy/a.mkv", 10, mtime),
			},
			IsTruncated:           aws.Bool(true),
			NextContinuationToken: aws.String("p2"),
		},
		"p2": {
			Contents:    []types.Object{object("media/Filmy/b.mkv", 20, mtime)},
			IsTruncated: aws.Bool(false),
		},
	}}

	records, _ := collect(t, NewS3WithClient(client, "bucket", "/media/"), []string{"Filmy"})
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %+v", records)
	}
	if records[0].RelPath != "Filmy/a.mkv" || records[0].Size != 10 || records[0].Mtime != float64(mtime.Unix()) {
		t.Errorf("unexpected record: %+v", records[0])
	}
	if records[1].RootLabel != "Filmy" {
		t.Errorf("unexpected root label: %q", records[1].RootLabel)
	}
	if len(client.calls) != 2 || client.calls[0] != "media/Filmy/#" || client.calls[1] != "media/Filmy/#p2" {
		t.Errorf("unexpected calls: %v", client.calls)
	}
}

func TestS3ListEmptyPrefixWarns(t *testing.T) {
	client := &fakeS3{pages: map[string]*s3.ListObjectsV2Output{"": {IsTruncated: aws.Bool(false)}}}

	records, logs := collect(t, NewS3WithClient(client, "bucket", ""), []string{"none"})
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
	if len(logs) != 2 {
		t.Errorf("expected scanning + warning logs, got %v", logs)
	}
}

func TestJoinKey(t *testing.T) {
	tests := []struct {
		parts []string
		want  string
	}{
		{[]string{"", ""}, ""},
		{[]string{"media", ""}, "media"},
		{[]string{"/media/", "/Filmy/"}, "media/Filmy"},
		{[]string{"", "Filmy"}, "Filmy"},
	}
	for _, tt := range tests {
		if got := joinKey(tt.parts...); got != tt.want {
			t.Errorf("joinKey(%q) = %q, want %q", tt.parts, got, tt.want)
		}
	}
}
