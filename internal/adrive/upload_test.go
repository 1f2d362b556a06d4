package adrive

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadPart_RawBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Equal(t, "hello part", string(body))

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := newTestClient(t, "http://unused")
	require.NoError(t, client.UploadPart(context.Background(), srv.URL+"/oss/part1?sig=x", 1, []byte("hello part")))
}

func TestUploadPart_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, int64(0), r.ContentLength)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := newTestClient(t, "http://unused")
	require.NoError(t, client.UploadPart(context.Background(), srv.URL, 1, nil))
}

func TestUploadPart_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`<Error><Code>SignatureDoesNotMatch</Code></Error>`))
	}))
	defer srv.Close()

	client := newTestClient(t, "http://unused")
	err := client.UploadPart(context.Background(), srv.URL, 2, []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Contains(t, err.Error(), "part 2")
	assert.NotContains(t, err.Error(), srv.URL)
}

func TestUploadPart_NoURL(t *testing.T) {
	client := newTestClient(t, "http://unused")
	assert.Error(t, client.UploadPart(context.Background(), "", 1, []byte("x")))
}
