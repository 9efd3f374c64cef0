package storage_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/d9705996/clientportal/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDisk(t *testing.T) (*storage.DiskStore, string) {
	t.Helper()
	root := t.TempDir()
	d, err := storage.NewDisk(root, "http://portal.test/files", "test-signing-key")
	require.NoError(t, err)
	return d, root
}

func TestDiskStore_PutAndDelete(t *testing.T) {
	d, root := newDisk(t)
	ctx := context.Background()
	key := "owner/dossier/1700000000000-Report (final).PDF"

	require.NoError(t, d.Put(ctx, key, strings.NewReader("hello"), 5, "application/pdf"))
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(key)))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, d.Delete(ctx, key))
	_, err = os.Stat(filepath.Join(root, filepath.FromSlash(key)))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, d.Delete(ctx, key), "deleting a missing object succeeds")
}

func TestDiskStore_PutShortBodyLeavesNothing(t *testing.T) {
	d, root := newDisk(t)
	err := d.Put(context.Background(), "o/d/file.pdf", strings.NewReader("abc"), 10, "application/pdf")
	require.Error(t, err)

	entries, err := os.ReadDir(filepath.Join(root, "o", "d"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDiskStore_RejectsEscapingKeys(t *testing.T) {
	d, _ := newDisk(t)
	ctx := context.Background()
	for _, key := range []string{"", "/etc/passwd", "../x", "a/../../x", "a//b"} {
		err := d.Put(ctx, key, strings.NewReader("x"), 1, "")
		assert.ErrorIs(t, err, storage.ErrInvalidKey, key)
	}
}

func TestDiskStore_SignedURLServesObject(t *testing.T) {
	d, _ := newDisk(t)
	ctx := context.Background()
	key := "o/d/1-Report (final).PDF"
	require.NoError(t, d.Put(ctx, key, strings.NewReader("%PDF-1.7"), 8, "application/pdf"))

	signed, err := d.SignedURL(ctx, key, 10*time.Minute)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(signed, "http://portal.test/files/o/d/"))

	u, err := url.Parse(signed)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	d.ServeHTTP(w, httptest.NewRequest(http.MethodGet, u.RequestURI(), nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%PDF-1.7", w.Body.String())

	q := u.Query()
	q.Set("sig", strings.Repeat("0", 64))
	u.RawQuery = q.Encode()
	w = httptest.NewRecorder()
	d.ServeHTTP(w, httptest.NewRequest(http.MethodGet, u.RequestURI(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDiskStore_ExpiredURL(t *testing.T) {
	d, _ := newDisk(t)
	ctx := context.Background()
	require.NoError(t, d.Put(ctx, "o/d/a.png", strings.NewReader("png"), 3, "image/png"))

	signed, err := d.SignedURL(ctx, "o/d/a.png", -time.Minute)
	require.NoError(t, err)
	u, err := url.Parse(signed)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	d.ServeHTTP(w, httptest.NewRequest(http.MethodGet, u.RequestURI(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func staticCredentials() aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{AccessKeyID: "AKIDTEST", SecretAccessKey: "secret"}, nil
	})
}

func TestS3Store_SignedURL(t *testing.T) {
	client := s3.New(s3.Options{
		Region:       "us-east-1",
		Credentials:  staticCredentials(),
		BaseEndpoint: aws.String("http://localhost:9000"),
		UsePathStyle: true,
	})
	st := storage.NewS3FromClient(client, "documents")

	signed, err := st.SignedURL(context.Background(), "o/d/1-a.pdf", 10*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, signed, "/documents/o/d/1-a.pdf")
	assert.Contains(t, signed, "X-Amz-Signature=")
	assert.Contains(t, signed, "X-Amz-Expires=600")
}

func TestS3Store_Put(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		Credentials:  staticCredentials(),
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
	})
	st := storage.NewS3FromClient(client, "documents")

	err := st.Put(context.Background(), "o/d/1-a.pdf", bytes.NewReader([]byte("pdf")), 3, "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/documents/o/d/1-a.pdf", gotPath)
	assert.Contains(t, string(gotBody), "pdf")
}
