package transfer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/franz/stagehop/internal/store"
	"github.com/franz/stagehop/internal/util"
)

// Remote describes the ssh end of an rsync transfer
type Remote struct {
	Host    string
	Port    int
	User    string
	KeyFile string
}

func remoteFrom(d *store.Dataset) (*Remote, error) {
	cfg := d.TransferConfig
	if cfg["host"] == "" {
		return nil, fmt.Errorf("ssh transfer for dataset %q needs a host: %w", d.Name, util.ErrInvalidConfig)
	}
	port := 22
	if p := cfg["port"]; p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid ssh port %q: %w", p, util.ErrInvalidConfig)
		}
		port = n
	}
	return &Remote{Host: cfg["host"], Port: port, User: cfg["user"], KeyFile: cfg["key_file"]}, nil
}

func (r *Remote) shell() string {
	cmd := fmt.Sprintf("ssh -p %d", r.Port)
	if r.KeyFile != "" {
		cmd += " -i " + r.KeyFile
	}
	return cmd
}

func (r *Remote) prefix(base string) string {
	if r.User != "" {
		return fmt.Sprintf("%s@%s:%s", r.User, r.Host, base)
	}
	return fmt.Sprintf("%s:%s", r.Host, base)
}

// rsyncInfoPrefixes are summary lines of rsync -v output that never name a file
var rsyncInfoPrefixes = []string{
	"building",
	"sending",
	"total size is",
	"speedup is",
	"sent ",
	"received ",
}

// Rsync runs rsync with a --files-from list, locally or over ssh
type Rsync struct {
	Binary         string
	Remote         *Remote
	SourceIsRemote bool
	Logf           func(string, ...any)
}

func (r *Rsync) logf(format string, args ...any) {
	if r.Logf != nil {
		r.Logf(format, args...)
		return
	}
	util.DebugLog(format, args...)
}

// Args returns the rsync arguments for a transfer using the given list file
func (r *Rsync) Args(listPath, sourceBase, targetBase string, dryRun bool) []string {
	src := strings.TrimRight(sourceBase, "/") + "/"
	dst := strings.TrimRight(targetBase, "/") + "/"

	args := []string{"-av", "--partial"}
	if r.Remote != nil {
		args = append(args, "-e", r.Remote.shell())
		if r.SourceIsRemote {
			src = r.Remote.prefix(src)
		} else {
			dst = r.Remote.prefix(dst)
		}
	}
	args = append(args, "--files-from", listPath, src, dst)
	if dryRun {
		args = append(args, "--dry-run")
	}
	return args
}

// Copy implements Transfer. Files named on rsync's stdout are reported as
// copied as they appear. After a clean exit the remaining files are already
// up to date at the target; after a failed exit they are reported as failed.
func (r *Rsync) Copy(ctx context.Context, files []store.FileRecord, sourceBase, targetBase string, dryRun bool, onFile FileFunc) (*Result, error) {
	binary := r.Binary
	if binary == "" {
		binary = "rsync"
	}
	if _, err := exec.LookPath(binary); err != nil {
		return nil, fmt.Errorf("%s: %w", binary, util.ErrToolMissing)
	}

	list, err := os.CreateTemp("", "stagehop-files-*.txt")
	if err != nil {
		return nil, fmt.Errorf("failed to create file list: %w", err)
	}
	defer os.Remove(list.Name())

	byPath := make(map[string]store.FileRecord, len(files))
	w := bufio.NewWriter(list)
	for _, f := range files {
		byPath[f.RelPath] = f
		fmt.Fprintln(w, f.RelPath)
	}
	if err := w.Flush(); err != nil {
		list.Close()
		return nil, fmt.Errorf("failed to write file list: %w", err)
	}
	list.Close()

	args := r.Args(list.Name(), sourceBase, targetBase, dryRun)
	r.logf("Running: %s %s", binary, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open rsync output: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start rsync: %w", err)
	}

	reported := make(map[string]bool, len(files))
	index := 0
	report := func(f store.FileRecord, success bool, err error) {
		index++
		reported[f.RelPath] = true
		if onFile != nil {
			onFile(index, f.RelPath, f.Size, success, err)
		}
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	copied := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasSuffix(line, "/") || hasInfoPrefix(line) {
			continue
		}
		r.logf("%s", line)
		f, ok := byPath[line]
		if !ok || reported[line] {
			continue
		}
		copied++
		report(f, true, nil)
	}

	waitErr := cmd.Wait()
	result := &Result{Success: waitErr == nil}
	if waitErr != nil {
		msg := strings.TrimSpace(stderr.String())
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.Error = fmt.Sprintf("rsync failed with code %d: %s", exitErr.ExitCode(), msg)
		} else {
			result.Error = fmt.Sprintf("rsync failed: %v: %s", waitErr, msg)
		}
	}

	for _, f := range files {
		if reported[f.RelPath] {
			continue
		}
		if result.Success {
			copied++
			report(f, true, nil)
		} else {
			report(f, false, errors.New(result.Error))
		}
	}

	result.FilesCopied = copied
	return result, nil
}

func hasInfoPrefix(line string) bool {
	for _, p := range rsyncInfoPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}
