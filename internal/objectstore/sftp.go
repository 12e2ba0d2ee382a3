package objectstore

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/memberbridge/memberbridge/internal/errors"
	"github.com/memberbridge/memberbridge/internal/logger"
)

// SFTPConfig configures the SFTP backend.
type SFTPConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	KeyFile        string
	KnownHostsFile string
	BasePath       string
	Timeout        time.Duration
	PublicBaseURL  string
}

// SFTPStore uploads objects over SFTP. One SSH session is opened lazily and
// reused for the whole run.
type SFTPStore struct {
	cfg SFTPConfig
	log logger.Logger
	// dial opens a session; transport is closed together with the client.
	dial func(ctx context.Context) (client *sftp.Client, transport io.Closer, err error)

	mu        sync.Mutex
	transport io.Closer
	client    *sftp.Client
}

// NewSFTPStore validates the configuration. It does not connect.
func NewSFTPStore(cfg SFTPConfig, log logger.Logger) (*SFTPStore, error) {
	if cfg.Host == "" {
		return nil, errors.New(fmt.Errorf("sftp: host is required")).
			Component("objectstore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultSSHPort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.BasePath = strings.TrimRight(cfg.BasePath, "/")
	s := &SFTPStore{cfg: cfg, log: log}
	s.dial = s.dialSSH
	return s, nil
}

// Name returns the backend name.
func (s *SFTPStore) Name() string { return "sftp" }

func (s *SFTPStore) clientConfig() (*ssh.ClientConfig, error) {
	config := &ssh.ClientConfig{
		User:    s.cfg.Username,
		Timeout: s.cfg.Timeout,
	}

	if s.cfg.KnownHostsFile != "" {
		callback, err := knownhosts.New(s.cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("sftp: failed to load known hosts: %w", err)
		}
		config.HostKeyCallback = callback
	} else {
		s.log.Warn("sftp host key verification disabled, set storage.sftp.knownhostsfile",
			logger.String("host", s.cfg.Host))
		config.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // opt-in via missing known hosts file
	}

	switch {
	case s.cfg.KeyFile != "":
		key, err := os.ReadFile(s.cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("sftp: failed to read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("sftp: failed to parse private key: %w", err)
		}
		config.Auth = []ssh.AuthMethod{ssh.PublicKeys(signer)}
	case s.cfg.Password != "":
		config.Auth = []ssh.AuthMethod{ssh.Password(s.cfg.Password)}
	default:
		return nil, fmt.Errorf("sftp: no authentication method provided")
	}
	return config, nil
}

// connect returns the shared client, dialing on first use.
func (s *SFTPStore) connect(ctx context.Context) (*sftp.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}
	client, transport, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	s.client, s.transport = client, transport
	return client, nil
}

// dialSSH connects over SSH, giving up when ctx ends.
func (s *SFTPStore) dialSSH(ctx context.Context) (*sftp.Client, io.Closer, error) {
	config, err := s.clientConfig()
	if err != nil {
		return nil, nil, errors.New(err).
			Component("objectstore").
			Category(errors.CategoryConfiguration).
			Build()
	}

	type connResult struct {
		ssh    *ssh.Client
		client *sftp.Client
		err    error
	}
	resultChan := make(chan connResult, 1)

	go func() {
		addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
		sshConn, err := ssh.Dial("tcp", addr, config)
		if err != nil {
			resultChan <- connResult{err: fmt.Errorf("sftp: failed to connect: %w", err)}
			return
		}
		client, err := sftp.NewClient(sshConn)
		if err != nil {
			_ = sshConn.Close()
			resultChan <- connResult{err: fmt.Errorf("sftp: failed to create client: %w", err)}
			return
		}
		resultChan <- connResult{ssh: sshConn, client: client}
	}()

	select {
	case <-ctx.Done():
		// Drain in the background so a late connection is not leaked.
		go func() {
			if r := <-resultChan; r.client != nil {
				_ = r.client.Close()
				_ = r.ssh.Close()
			}
		}()
		return nil, nil, ctx.Err()
	case r := <-resultChan:
		if r.err != nil {
			return nil, nil, uploadError(r.err, s.Name(), s.cfg.Host)
		}
		return r.client, r.ssh, nil
	}
}

// reset drops a broken session so the next call reconnects.
func (s *SFTPStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		_ = s.client.Close()
		if s.transport != nil {
			_ = s.transport.Close()
		}
		s.client, s.transport = nil, nil
	}
}

func (s *SFTPStore) remotePath(key string) string {
	if s.cfg.BasePath == "" {
		return key
	}
	return path.Join(s.cfg.BasePath, key)
}

// Upload writes data to a temporary file and renames it over the target.
func (s *SFTPStore) Upload(ctx context.Context, key string, data []byte, opts UploadOptions) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	client, err := s.connect(ctx)
	if err != nil {
		return err
	}

	target := s.remotePath(key)
	if !opts.Overwrite {
		if _, err := client.Stat(target); err == nil {
			return ErrObjectExists
		}
	}

	if err := client.MkdirAll(path.Dir(target)); err != nil {
		s.reset()
		return uploadError(fmt.Errorf("sftp: failed to create directory: %w", err), s.Name(), key)
	}

	tmp := target + ".tmp"
	f, err := client.Create(tmp)
	if err != nil {
		s.reset()
		return uploadError(fmt.Errorf("sftp: failed to create file: %w", err), s.Name(), key)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = client.Remove(tmp)
		s.reset()
		return uploadError(fmt.Errorf("sftp: failed to write file: %w", err), s.Name(), key)
	}
	if err := f.Close(); err != nil {
		_ = client.Remove(tmp)
		return uploadError(fmt.Errorf("sftp: failed to close file: %w", err), s.Name(), key)
	}
	if err := client.PosixRename(tmp, target); err != nil {
		_ = client.Remove(tmp)
		return uploadError(fmt.Errorf("sftp: failed to rename file: %w", err), s.Name(), key)
	}

	s.log.Debug("object stored", logger.String("key", key), logger.Int("bytes", len(data)))
	return nil
}

// Exists stats the remote file.
func (s *SFTPStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	client, err := s.connect(ctx)
	if err != nil {
		return false, err
	}
	info, err := client.Stat(s.remotePath(key))
	switch {
	case err == nil:
		return info.Mode().IsRegular(), nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, uploadError(err, s.Name(), key)
	}
}

// PublicURL joins the public base URL and key.
func (s *SFTPStore) PublicURL(key string) string {
	return joinPublicURL(s.cfg.PublicBaseURL, key)
}

// Validate connects and makes sure the base path exists.
func (s *SFTPStore) Validate(ctx context.Context) error {
	client, err := s.connect(ctx)
	if err != nil {
		return err
	}
	if s.cfg.BasePath == "" {
		return nil
	}
	if err := client.MkdirAll(s.cfg.BasePath); err != nil {
		return uploadError(fmt.Errorf("sftp: base path is not usable: %w", err), s.Name(), s.cfg.BasePath)
	}
	return nil
}

// Close ends the session.
func (s *SFTPStore) Close() error {
	s.reset()
	return nil
}
