package objectstore

import (
	"context"
	"fmt"
	"io"
	"net/textproto"
	"testing"

	"github.com/jlaffaye/ftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memberbridge/memberbridge/internal/errors"
)

// fakeFTPServer keeps the remote tree shared by every connection dialed to it.
type fakeFTPServer struct {
	files map[string][]byte
	dirs  map[string]bool
	conns []*fakeFTPConn

	loginErr error
	storErr  error
	sizeErr  error
}

func newFakeFTPServer() *fakeFTPServer {
	return &fakeFTPServer{files: map[string][]byte{}, dirs: map[string]bool{}}
}

func unavailable(msg string) error {
	return &textproto.Error{Code: ftp.StatusFileUnavailable, Msg: msg}
}

type fakeFTPConn struct {
	srv     *fakeFTPServer
	user    string
	noopErr error
	quit    bool
}

func (c *fakeFTPConn) Login(user, _ string) error {
	if c.srv.loginErr != nil {
		return c.srv.loginErr
	}
	c.user = user
	return nil
}

func (c *fakeFTPConn) NoOp() error { return c.noopErr }

func (c *fakeFTPConn) Quit() error {
	c.quit = true
	return nil
}

func (c *fakeFTPConn) MakeDir(path string) error {
	if c.srv.dirs[path] {
		return unavailable("Directory already exists")
	}
	c.srv.dirs[path] = true
	return nil
}

func (c *fakeFTPConn) FileSize(path string) (int64, error) {
	if c.srv.sizeErr != nil {
		return 0, c.srv.sizeErr
	}
	data, ok := c.srv.files[path]
	if !ok {
		return 0, unavailable("No such file")
	}
	return int64(len(data)), nil
}

func (c *fakeFTPConn) Stor(path string, r io.Reader) error {
	if c.srv.storErr != nil {
		return c.srv.storErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	c.srv.files[path] = data
	return nil
}

func (c *fakeFTPConn) Rename(from, to string) error {
	data, ok := c.srv.files[from]
	if !ok {
		return unavailable("No such file")
	}
	delete(c.srv.files, from)
	c.srv.files[to] = data
	return nil
}

func (c *fakeFTPConn) Delete(path string) error {
	delete(c.srv.files, path)
	return nil
}

func newFakeFTPStore(t *testing.T, cfg FTPConfig) (*FTPStore, *fakeFTPServer) {
	t.Helper()
	if cfg.Host == "" {
		cfg.Host = "ftp.example.org"
	}
	store, err := NewFTPStore(cfg, testLogger())
	require.NoError(t, err)

	srv := newFakeFTPServer()
	store.dial = func(_ context.Context, addr string) (ftpConn, error) {
		if addr != "ftp.example.org:21" {
			return nil, fmt.Errorf("unexpected address %s", addr)
		}
		conn := &fakeFTPConn{srv: srv}
		srv.conns = append(srv.conns, conn)
		return conn, nil
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, srv
}

func TestFTPStore_UploadAndExists(t *testing.T) {
	t.Parallel()
	store, srv := newFakeFTPStore(t, FTPConfig{
		Username:      "uploader",
		Password:      "secret",
		BasePath:      "/members/",
		PublicBaseURL: "https://files.example.org/members",
	})
	key := "resumes/42/0123456789abcdef.pdf"

	exists, err := store.Exists(t.Context(), key)
	require.NoError(t, err)
	assert.False(t, exists)

	data := []byte("%PDF-1.4 resume")
	require.NoError(t, store.Upload(t.Context(), key, data, UploadOptions{Overwrite: true}))

	exists, err = store.Exists(t.Context(), key)
	require.NoError(t, err)
	assert.True(t, exists)

	assert.Equal(t, data, srv.files["/members/"+key])
	assert.Len(t, srv.files, 1, "temporary upload must be renamed away")
	assert.True(t, srv.dirs["/members"])
	assert.True(t, srv.dirs["/members/resumes"])
	assert.True(t, srv.dirs["/members/resumes/42"])

	require.Len(t, srv.conns, 1, "control connection is reused")
	assert.Equal(t, "uploader", srv.conns[0].user)
	assert.Equal(t, "https://files.example.org/members/resumes/42/0123456789abcdef.pdf", store.PublicURL(key))
}

func TestFTPStore_NoOverwrite(t *testing.T) {
	t.Parallel()
	store, srv := newFakeFTPStore(t, FTPConfig{})
	key := "profile-images/7/aaaaaaaaaaaaaaaa.jpg"

	require.NoError(t, store.Upload(t.Context(), key, []byte("first"), UploadOptions{Overwrite: true}))
	err := store.Upload(t.Context(), key, []byte("second"), UploadOptions{})
	require.ErrorIs(t, err, ErrObjectExists)
	assert.Equal(t, []byte("first"), srv.files[key])
	assert.True(t, srv.dirs["profile-images/7"], "relative base creates relative directories")
}

func TestFTPStore_RedialsWhenConnectionIsStale(t *testing.T) {
	t.Parallel()
	store, srv := newFakeFTPStore(t, FTPConfig{})
	key := "resumes/1/bbbbbbbbbbbbbbbb.pdf"

	require.NoError(t, store.Upload(t.Context(), key, []byte("cv"), UploadOptions{Overwrite: true}))
	srv.conns[0].noopErr = io.EOF

	exists, err := store.Exists(t.Context(), key)
	require.NoError(t, err)
	assert.True(t, exists)
	require.Len(t, srv.conns, 2)
	assert.True(t, srv.conns[0].quit)
}

func TestFTPStore_StoreFailureCleansUp(t *testing.T) {
	t.Parallel()
	store, srv := newFakeFTPStore(t, FTPConfig{})
	srv.storErr = &textproto.Error{Code: ftp.StatusTransfertAborted, Msg: "Transfer aborted, data connection closed"}

	err := store.Upload(t.Context(), "resumes/1/cccccccccccccccc.pdf", []byte("cv"), UploadOptions{Overwrite: true})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryAssetUpload))
	assert.True(t, IsTransientError(err))
	assert.Empty(t, srv.files)
}

func TestFTPStore_ExistsReportsServerErrors(t *testing.T) {
	t.Parallel()
	store, srv := newFakeFTPStore(t, FTPConfig{})
	srv.sizeErr = &textproto.Error{Code: ftp.StatusNotLoggedIn, Msg: "Not logged in"}

	_, err := store.Exists(t.Context(), "resumes/1/dddddddddddddddd.pdf")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryAssetUpload))
}

func TestFTPStore_LoginFailureIsConfiguration(t *testing.T) {
	t.Parallel()
	store, srv := newFakeFTPStore(t, FTPConfig{Username: "uploader", Password: "wrong"})
	srv.loginErr = &textproto.Error{Code: ftp.StatusNotLoggedIn, Msg: "Login incorrect"}

	err := store.Validate(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	assert.True(t, srv.conns[0].quit)
	assert.NotContains(t, err.Error(), "wrong")
}

func TestFTPStore_RejectsInvalidKeyWithoutConnecting(t *testing.T) {
	t.Parallel()
	store, srv := newFakeFTPStore(t, FTPConfig{})

	err := store.Upload(t.Context(), "resumes/../../etc/passwd", []byte("x"), UploadOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	assert.Empty(t, srv.conns)
}

func TestIsExistsReply(t *testing.T) {
	t.Parallel()

	assert.True(t, isExistsReply(unavailable("Directory already exists")))
	assert.True(t, isExistsReply(fmt.Errorf("550 Create directory operation failed")))
	assert.True(t, isExistsReply(fmt.Errorf("521 %q directory exists", "/members")))
	assert.False(t, isExistsReply(fmt.Errorf("530 permission denied")))
}
