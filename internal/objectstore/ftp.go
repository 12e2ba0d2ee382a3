package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/memberbridge/memberbridge/internal/errors"
	"github.com/memberbridge/memberbridge/internal/logger"
)

// FTPConfig configures the FTP backend.
type FTPConfig struct {
	Host          string
	Port          int
	Username      string
	Password      string
	BasePath      string
	Timeout       time.Duration
	PublicBaseURL string
}

// ftpConn is the part of *ftp.ServerConn the store uses.
type ftpConn interface {
	Login(user, password string) error
	NoOp() error
	Quit() error
	MakeDir(path string) error
	FileSize(path string) (int64, error)
	Stor(path string, r io.Reader) error
	Rename(from, to string) error
	Delete(path string) error
}

// FTPStore uploads objects over a single reused FTP control connection.
type FTPStore struct {
	cfg  FTPConfig
	log  logger.Logger
	dial func(ctx context.Context, addr string) (ftpConn, error)

	mu   sync.Mutex
	conn ftpConn
}

// NewFTPStore validates the configuration. It does not connect.
func NewFTPStore(cfg FTPConfig, log logger.Logger) (*FTPStore, error) {
	if cfg.Host == "" {
		return nil, errors.New(fmt.Errorf("ftp: host is required")).
			Component("objectstore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultFTPPort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.BasePath = strings.TrimRight(cfg.BasePath, "/")
	s := &FTPStore{cfg: cfg, log: log}
	s.dial = s.dialServer
	return s, nil
}

func (s *FTPStore) dialServer(ctx context.Context, addr string) (ftpConn, error) {
	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(s.cfg.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Name returns the backend name.
func (s *FTPStore) Name() string { return "ftp" }

// connection returns a live connection, redialing when NOOP fails.
// Callers must hold s.mu.
func (s *FTPStore) connection(ctx context.Context) (ftpConn, error) {
	if s.conn != nil {
		if s.conn.NoOp() == nil {
			return s.conn, nil
		}
		_ = s.conn.Quit()
		s.conn = nil
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	conn, err := s.dial(ctx, addr)
	if err != nil {
		return nil, uploadError(fmt.Errorf("ftp: connection failed: %w", err), s.Name(), addr)
	}
	if s.cfg.Username != "" {
		if err := conn.Login(s.cfg.Username, s.cfg.Password); err != nil {
			_ = conn.Quit()
			return nil, errors.New(fmt.Errorf("ftp: login failed: %w", err)).
				Component("objectstore").
				Category(errors.CategoryConfiguration).
				Context("backend", s.Name()).
				Build()
		}
	}
	s.conn = conn
	return conn, nil
}

func (s *FTPStore) remotePath(key string) string {
	if s.cfg.BasePath == "" {
		return key
	}
	return path.Join(s.cfg.BasePath, key)
}

// makeDirs creates every component of dir, ignoring "already exists" replies.
func makeDirs(conn ftpConn, dir string) error {
	if dir == "" || dir == "." || dir == "/" {
		return nil
	}
	current := ""
	if strings.HasPrefix(dir, "/") {
		current = "/"
	}
	for part := range strings.SplitSeq(strings.Trim(dir, "/"), "/") {
		current = path.Join(current, part)
		if err := conn.MakeDir(current); err != nil && !isExistsReply(err) {
			return err
		}
	}
	return nil
}

func isExistsReply(err error) bool {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) && protoErr.Code == ftp.StatusFileUnavailable {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "exists") || strings.Contains(msg, "550")
}

// Upload stores data under a temporary name and renames it into place.
func (s *FTPStore) Upload(ctx context.Context, key string, data []byte, opts UploadOptions) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := s.connection(ctx)
	if err != nil {
		return err
	}

	target := s.remotePath(key)
	if !opts.Overwrite {
		if _, err := conn.FileSize(target); err == nil {
			return ErrObjectExists
		}
	}

	if err := makeDirs(conn, path.Dir(target)); err != nil {
		return uploadError(fmt.Errorf("ftp: failed to create directory: %w", err), s.Name(), key)
	}

	tmp := path.Join(path.Dir(target), fmt.Sprintf("tmp-%d", time.Now().UnixNano()))
	if err := conn.Stor(tmp, bytes.NewReader(data)); err != nil {
		_ = conn.Delete(tmp)
		return uploadError(fmt.Errorf("ftp: failed to store file: %w", err), s.Name(), key)
	}
	if err := conn.Rename(tmp, target); err != nil {
		_ = conn.Delete(tmp)
		return uploadError(fmt.Errorf("ftp: failed to rename temporary file: %w", err), s.Name(), key)
	}

	s.log.Debug("object stored", logger.String("key", key), logger.Int("bytes", len(data)))
	return nil
}

// Exists asks the server for the file size; a 550 reply means absent.
func (s *FTPStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := s.connection(ctx)
	if err != nil {
		return false, err
	}
	if _, err := conn.FileSize(s.remotePath(key)); err != nil {
		var protoErr *textproto.Error
		if errors.As(err, &protoErr) && protoErr.Code == ftp.StatusFileUnavailable {
			return false, nil
		}
		return false, uploadError(err, s.Name(), key)
	}
	return true, nil
}

// PublicURL joins the public base URL and key.
func (s *FTPStore) PublicURL(key string) string {
	return joinPublicURL(s.cfg.PublicBaseURL, key)
}

// Validate connects and ensures the base path exists.
func (s *FTPStore) Validate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := s.connection(ctx)
	if err != nil {
		return err
	}
	if err := makeDirs(conn, s.cfg.BasePath); err != nil {
		return uploadError(fmt.Errorf("ftp: base path is not usable: %w", err), s.Name(), s.cfg.BasePath)
	}
	return nil
}

// Close quits the control connection.
func (s *FTPStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Quit()
	s.conn = nil
	return err
}
