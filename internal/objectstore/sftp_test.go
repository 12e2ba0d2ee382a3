package objectstore

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memberbridge/memberbridge/internal/errors"
)

// memSFTP backs an SFTPStore with the in-memory request server of pkg/sftp.
// The file tree survives reconnects.
type memSFTP struct {
	store    *SFTPStore
	handlers sftp.Handlers
	dials    int
}

func newMemSFTP(t *testing.T, basePath string) *memSFTP {
	t.Helper()
	store, err := NewSFTPStore(SFTPConfig{
		Host:          "sftp.example.org",
		Username:      "uploader",
		Password:      "secret",
		BasePath:      basePath,
		PublicBaseURL: "https://files.example.org/members",
	}, testLogger())
	require.NoError(t, err)

	m := &memSFTP{store: store, handlers: sftp.InMemHandler()}
	store.dial = func(context.Context) (*sftp.Client, io.Closer, error) {
		m.dials++
		serverConn, clientConn := net.Pipe()
		server := sftp.NewRequestServer(serverConn, m.handlers)
		go func() { _ = server.Serve() }()

		client, err := sftp.NewClientPipe(clientConn, clientConn)
		if err != nil {
			_ = server.Close()
			return nil, nil, err
		}
		return client, server, nil
	}
	t.Cleanup(func() { _ = store.Close() })
	return m
}

func (m *memSFTP) read(t *testing.T, remote string) []byte {
	t.Helper()
	client, err := m.store.connect(t.Context())
	require.NoError(t, err)
	f, err := client.Open(remote)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	return data
}

func TestNewSFTPStore(t *testing.T) {
	t.Parallel()

	store, err := NewSFTPStore(SFTPConfig{Host: "sftp.example.org", BasePath: "/srv/members/"}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, DefaultSSHPort, store.cfg.Port)
	assert.Equal(t, DefaultTimeout, store.cfg.Timeout)
	assert.Equal(t, "/srv/members/resumes/1/a.pdf", store.remotePath("resumes/1/a.pdf"))

	_, err = NewSFTPStore(SFTPConfig{}, testLogger())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestSFTPStore_UploadAndExists(t *testing.T) {
	t.Parallel()
	m := newMemSFTP(t, "/members")
	key := "resumes/42/0123456789abcdef.pdf"

	exists, err := m.store.Exists(t.Context(), key)
	require.NoError(t, err)
	assert.False(t, exists)

	data := []byte("%PDF-1.4 resume")
	require.NoError(t, m.store.Upload(t.Context(), key, data, UploadOptions{ContentType: "application/pdf", Overwrite: true}))

	exists, err = m.store.Exists(t.Context(), key)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, data, m.read(t, "/members/"+key))

	client, err := m.store.connect(t.Context())
	require.NoError(t, err)
	_, err = client.Stat("/members/" + key + ".tmp")
	assert.Error(t, err, "temporary file must be renamed away")

	assert.Equal(t, "https://files.example.org/members/resumes/42/0123456789abcdef.pdf", m.store.PublicURL(key))
	assert.Equal(t, 1, m.dials, "session is reused")
}

func TestSFTPStore_NoOverwrite(t *testing.T) {
	t.Parallel()
	m := newMemSFTP(t, "/members")
	key := "profile-images/7/aaaaaaaaaaaaaaaa.jpg"

	require.NoError(t, m.store.Upload(t.Context(), key, []byte("first"), UploadOptions{Overwrite: true}))
	err := m.store.Upload(t.Context(), key, []byte("second"), UploadOptions{})
	require.ErrorIs(t, err, ErrObjectExists)
	assert.Equal(t, []byte("first"), m.read(t, "/members/"+key))
}

func TestSFTPStore_RejectsInvalidKeyWithoutConnecting(t *testing.T) {
	t.Parallel()
	m := newMemSFTP(t, "/members")

	err := m.store.Upload(t.Context(), "../outside.pdf", []byte("x"), UploadOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	_, err = m.store.Exists(t.Context(), "/abs/key.pdf")
	require.Error(t, err)
	assert.Zero(t, m.dials)
}

func TestSFTPStore_ValidateCreatesBasePath(t *testing.T) {
	t.Parallel()
	m := newMemSFTP(t, "/srv/members")

	require.NoError(t, m.store.Validate(t.Context()))

	client, err := m.store.connect(t.Context())
	require.NoError(t, err)
	info, err := client.Stat("/srv/members")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSFTPStore_ReconnectsAfterClose(t *testing.T) {
	t.Parallel()
	m := newMemSFTP(t, "/members")
	key := "resumes/9/bbbbbbbbbbbbbbbb.pdf"

	require.NoError(t, m.store.Upload(t.Context(), key, []byte("cv"), UploadOptions{Overwrite: true}))
	require.NoError(t, m.store.Close())

	exists, err := m.store.Exists(t.Context(), key)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, 2, m.dials)
}

func TestSFTPStore_DialFailureIsUploadError(t *testing.T) {
	t.Parallel()
	m := newMemSFTP(t, "/members")
	m.store.dial = func(context.Context) (*sftp.Client, io.Closer, error) {
		return nil, nil, uploadError(errors.NewStd("sftp: failed to connect: connection refused"), "sftp", "sftp.example.org")
	}

	err := m.store.Upload(t.Context(), "resumes/1/cccccccccccccccc.pdf", []byte("x"), UploadOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryAssetUpload))
	assert.True(t, IsTransientError(err))
}
