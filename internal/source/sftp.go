package source

import (
	"context"
	"fmt"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/franz/stagehop/internal/store"
)

// SFTPConfig holds connection settings for an SFTP scan source
type SFTPConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	KeyFile         string
	KnownHosts      string
	InsecureHostKey bool
	BasePath        string
	Timeout         time.Duration
}

func sftpConfigFrom(d *store.Dataset) *SFTPConfig {
	cfg := d.ScanConfig
	home, _ := os.UserHomeDir()
	return &SFTPConfig{
		Host:            cfg["host"],
		Port:            configInt(cfg, "port", 22),
		User:            configString(cfg, "user", os.Getenv("USER")),
		Password:        cfg["password"],
		KeyFile:         cfg["key_file"],
		KnownHosts:      configString(cfg, "known_hosts", filepath.Join(home, ".ssh", "known_hosts")),
		InsecureHostKey: configBool(cfg, "insecure_host_key"),
		BasePath:        d.BasePath,
		Timeout:         time.Duration(configInt(cfg, "timeout_seconds", 30)) * time.Second,
	}
}

// SFTP lists files on a remote host over SSH
type SFTP struct {
	conn     *ssh.Client
	client   *sftp.Client
	basePath string
}

// NewSFTP dials the host and opens an SFTP session
func NewSFTP(ctx context.Context, cfg *SFTPConfig) (*SFTP, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("sftp scan source needs a host")
	}

	clientCfg, err := cfg.clientConfig()
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	dialer := net.Dialer{Timeout: cfg.Timeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, clientCfg)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}
	conn := ssh.NewClient(sshConn, chans, reqs)

	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to start sftp session: %w", err)
	}

	return &SFTP{
		conn:     conn,
		client:   client,
		basePath: path.Clean("/" + strings.Trim(cfg.BasePath, "/")),
	}, nil
}

func (c *SFTPConfig) clientConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if c.KeyFile != "" {
		key, err := os.ReadFile(c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse key file: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if c.Password != "" {
		auth = append(auth, ssh.Password(c.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("sftp scan source needs a password or key_file")
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if !c.InsecureHostKey {
		cb, err := knownhosts.New(c.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
		hostKey = cb
	}

	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         c.Timeout,
	}, nil
}

// List implements ScanSource. RelPath is relative to the base path.
func (s *SFTP) List(ctx context.Context, roots []string, yield func(store.FileRecord) error, logf func(string, ...any)) error {
	if len(roots) == 0 {
		roots = []string{""}
	}

	for _, root := range roots {
		root = cleanRoot(root)
		dir := path.Join(s.basePath, root)

		if _, err := s.client.Stat(dir); err != nil {
			logf("Warning: root path does not exist: %s", dir)
			continue
		}

		logf("Scanning: %s", dir)
		walker := s.client.Walk(dir)
		for walker.Step() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := walker.Err(); err != nil {
				logf("Error accessing %s: %v", walker.Path(), err)
				if info := walker.Stat(); info != nil && info.IsDir() {
					walker.SkipDir()
				}
				continue
			}

			info := walker.Stat()
			if info.IsDir() || !info.Mode().IsRegular() {
				continue
			}

			rel := strings.TrimPrefix(strings.TrimPrefix(walker.Path(), s.basePath), "/")
			err := yield(store.FileRecord{
				RelPath:   rel,
				Size:      uint64(info.Size()),
				Mtime:     float64(info.ModTime().UnixNano()) / 1e9,
				RootLabel: root,
			})
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// Close ends the SFTP session and the SSH connection
func (s *SFTP) Close() error {
	s.client.Close()
	return s.conn.Close()
}
