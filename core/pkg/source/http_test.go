package source

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ValidManifest = `[
  {"name": "Dark Mode", "slug": "dark-mode", "isEnabled": true, "segments": []},
  {"name": "Trial", "slug": "trial-only", "isEnabled": true, "segments": [{"key": "license", "value": "trial"}]},
  {"name": "Legacy", "slug": "legacy", "isEnabled": false, "segments": null}
]`

const InvalidManifest = `[{"title": "missing slug"}]`

const scopedIdentifier = "Installations-1:Projects-2:Environments-3"

var contentHash = []byte{0xde, 0xad, 0xbe, 0xef}

func newTransport(t *testing.T, srv *httptest.Server, identifier string) *HTTPTransport {
	t.Helper()
	tr, err := NewHTTPTransport(HTTPConfig{
		ServerURL:        srv.URL,
		ClientIdentifier: identifier,
		Product:          ProductMetadata{Name: "octo-app", Version: "2024.1.0"},
		Client:           srv.Client(),
	})
	require.NoError(t, err)
	return tr
}

func TestHTTPTransport_Fetch_ScopedIdentifier(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set(ContentHashHeader, base64.StdEncoding.EncodeToString(contentHash))
		_, _ = w.Write([]byte(ValidManifest))
	}))
	defer srv.Close()

	snapshot, err := newTransport(t, srv, scopedIdentifier).Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "/api/featuretoggles/v2/"+scopedIdentifier, got.URL.Path)
	assert.Equal(t, "octo-app/2024.1.0", got.Header.Get("User-Agent"))
	assert.Equal(t, "2024.1.0", got.Header.Get(ReleaseVersionHeader))
	assert.Empty(t, got.Header.Get("Authorization"))

	assert.Equal(t, contentHash, snapshot.Fingerprint())
	assert.Equal(t, 3, snapshot.Len())
	toggle, ok := snapshot.Get("TRIAL-ONLY")
	require.True(t, ok)
	assert.Equal(t, "trial", toggle.Segments[0].Value)
}

func TestHTTPTransport_Fetch_TokenIdentifier(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set(ContentHashHeader, base64.StdEncoding.EncodeToString(contentHash))
		_, _ = w.Write([]byte(ValidManifest))
	}))
	defer srv.Close()

	_, err := newTransport(t, srv, "an-api-token").Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "/api/featuretoggles/v3/", got.URL.Path)
	assert.Equal(t, "Bearer an-api-token", got.Header.Get("Authorization"))
}

func TestHTTPTransport_Fetch_Failures(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		want      error
		permanent bool
	}{
		{
			name: "not found",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			want:      ErrNotFound,
			permanent: true,
		},
		{
			name: "missing content hash",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(ValidManifest))
			},
			want:      ErrMissingFingerprint,
			permanent: true,
		},
		{
			name: "schema violation",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set(ContentHashHeader, base64.StdEncoding.EncodeToString(contentHash))
				_, _ = w.Write([]byte(InvalidManifest))
			},
			want:      ErrUndecodable,
			permanent: true,
		},
		{
			name: "empty body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set(ContentHashHeader, base64.StdEncoding.EncodeToString(contentHash))
			},
			want:      ErrUndecodable,
			permanent: true,
		},
		{
			name: "bad content hash",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set(ContentHashHeader, "%%%")
				_, _ = w.Write([]byte(ValidManifest))
			},
			want:      ErrUndecodable,
			permanent: true,
		},
		{
			name: "forbidden",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			},
			want:      ErrUnexpectedStatus,
			permanent: true,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			permanent: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			snapshot, err := newTransport(t, srv, scopedIdentifier).Fetch(context.Background())

			assert.Nil(t, snapshot)
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
			assert.Equal(t, tt.permanent, IsPermanent(err))
		})
	}
}

func TestHTTPTransport_Check(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		_, _ = w.Write([]byte(`{"contentHash": "` + base64.StdEncoding.EncodeToString(contentHash) + `"}`))
	}))
	defer srv.Close()

	fp, err := newTransport(t, srv, scopedIdentifier).Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, contentHash, fp)
	assert.Equal(t, "/api/featuretoggles/"+scopedIdentifier+"/check", got.URL.Path)

	_, err = newTransport(t, srv, "an-api-token").Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/api/featuretoggles/check/v3/", got.URL.Path)
}

func TestHTTPTransport_Check_NullHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"contentHash": null}`))
	}))
	defer srv.Close()

	_, err := newTransport(t, srv, scopedIdentifier).Check(context.Background())
	assert.ErrorIs(t, err, ErrMissingFingerprint)
}

func TestNewHTTPTransport_Validation(t *testing.T) {
	_, err := NewHTTPTransport(HTTPConfig{ServerURL: "https://example.com"})
	assert.Error(t, err)

	_, err = NewHTTPTransport(HTTPConfig{ServerURL: "ftp://example.com", ClientIdentifier: "x"})
	assert.Error(t, err)
}

func TestIsScopedIdentifier(t *testing.T) {
	assert.True(t, IsScopedIdentifier("a:b:c"))
	assert.True(t, IsScopedIdentifier("a:b:c:d"))
	assert.False(t, IsScopedIdentifier("a:b"))
	assert.False(t, IsScopedIdentifier("token"))
}

func TestProductMetadata_UserAgent(t *testing.T) {
	assert.Equal(t, "togglecache", ProductMetadata{}.UserAgent())
	assert.Equal(t, "app", ProductMetadata{Name: "app"}.UserAgent())
	assert.Equal(t, "app/1.0.0", ProductMetadata{Name: "app", Version: "1.0.0"}.UserAgent())
}
