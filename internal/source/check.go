package source

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/franz/stagehop/internal/store"
)

// RootStatus is the outcome of checking one dataset root
type RootStatus struct {
	Root     string
	Location string
	Err      error
}

// RootChecker is implemented by sources that can check roots without
// listing them
type RootChecker interface {
	CheckRoots(ctx context.Context, roots []string) []RootStatus
}

var errStopListing = errors.New("stop listing")

// Check connects to a dataset through factory and checks each of its roots.
// The returned error means the dataset could not be reached at all.
func Check(ctx context.Context, factory Factory, d *store.Dataset) ([]RootStatus, error) {
	src, err := factory(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", d.Name, err)
	}
	if c, ok := src.(Closer); ok {
		defer c.Close()
	}

	roots := []string(d.Roots)
	if len(roots) == 0 {
		roots = []string{""}
	}

	if rc, ok := src.(RootChecker); ok {
		return rc.CheckRoots(ctx, roots), nil
	}

	// fall back to listing until the first file shows up
	statuses := make([]RootStatus, 0, len(roots))
	for _, root := range roots {
		st := RootStatus{Root: root, Location: root}
		err := src.List(ctx, []string{root}, func(store.FileRecord) error {
			return errStopListing
		}, func(string, ...any) {})
		if err != nil && !errors.Is(err, errStopListing) {
			st.Err = err
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

// CheckRoots implements RootChecker
func (l *Local) CheckRoots(_ context.Context, roots []string) []RootStatus {
	statuses := make([]RootStatus, 0, len(roots))
	for _, root := range roots {
		dir := "/" + cleanRoot(root)
		st := RootStatus{Root: root, Location: dir}
		info, err := l.fs.Stat(dir)
		switch {
		case err != nil:
			st.Err = err
		case !info.IsDir():
			st.Err = fmt.Errorf("%s is not a directory", dir)
		}
		statuses = append(statuses, st)
	}
	return statuses
}

// CheckRoots implements RootChecker
func (s *SFTP) CheckRoots(_ context.Context, roots []string) []RootStatus {
	statuses := make([]RootStatus, 0, len(roots))
	for _, root := range roots {
		dir := path.Join(s.basePath, cleanRoot(root))
		st := RootStatus{Root: root, Location: dir}
		info, err := s.client.Stat(dir)
		switch {
		case err != nil:
			st.Err = err
		case !info.IsDir():
			st.Err = fmt.Errorf("%s is not a directory", dir)
		}
		statuses = append(statuses, st)
	}
	return statuses
}

// CheckRoots implements RootChecker. A root holding no objects is reported
// as an error since S3 has no empty directories.
func (s *S3) CheckRoots(ctx context.Context, roots []string) []RootStatus {
	statuses := make([]RootStatus, 0, len(roots))
	for _, root := range roots {
		prefix := joinKey(s.prefix, cleanRoot(root))
		if prefix != "" {
			prefix += "/"
		}
		st := RootStatus{Root: root, Location: fmt.Sprintf("s3://%s/%s", s.bucket, prefix)}
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:  aws.String(s.bucket),
			Prefix:  aws.String(prefix),
			MaxKeys: aws.Int32(1),
		})
		switch {
		case err != nil:
			st.Err = err
		case len(out.Contents) == 0:
			st.Err = fmt.Errorf("no objects under %s", st.Location)
		}
		statuses = append(statuses, st)
	}
	return statuses
}
