package gdrive

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"renderhub/internal/ports"
)

// fakeDrive serves the subset of the Drive v3 API the adapter uses. Files
// are keyed by name; the id is "id-" + name.
type fakeDrive struct {
	files   map[string]string
	deleted []string
	lastQ   string
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/files":
		f.lastQ = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/json")
		for name := range f.files {
			if strings.Contains(f.lastQ, "name = '"+name+"'") {
				io.WriteString(w, `{"files":[{"id":"id-`+name+`","name":"`+name+`"}]}`)
				return
			}
		}
		io.WriteString(w, `{"files":[]}`)

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/files/id-"):
		name := strings.TrimPrefix(r.URL.Path, "/files/id-")
		body, ok := f.files[name]
		if !ok {
			http.Error(w, `{"error":{"code":404}}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		io.WriteString(w, body)

	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/files/id-"):
		name := strings.TrimPrefix(r.URL.Path, "/files/id-")
		delete(f.files, name)
		f.deleted = append(f.deleted, name)
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusTeapot)
	}
}

func newTestClient(t *testing.T, fake *fakeDrive) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := drive.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return NewClient(svc, "folder-1")
}

func TestExistsAndGet(t *testing.T) {
	fake := &fakeDrive{files: map[string]string{"thumbnails/a.png": "png-bytes"}}
	c := newTestClient(t, fake)
	ctx := context.Background()

	ok, err := c.Exists(ctx, "thumbnails/a.png")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, fake.lastQ, "'folder-1' in parents")

	rc, ct, _, err := c.GetObject(ctx, "thumbnails/a.png")
	require.NoError(t, err)
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	assert.Equal(t, "png-bytes", string(b))
	assert.Equal(t, "image/png", ct)
}

func TestGetMissing(t *testing.T) {
	c := newTestClient(t, &fakeDrive{files: map[string]string{}})

	_, _, _, err := c.GetObject(context.Background(), "thumbnails/none.png")
	assert.ErrorIs(t, err, ports.ErrObjectNotFound)
}

func TestDeleteIsIdempotent(t *testing.T) {
	fake := &fakeDrive{files: map[string]string{"uploads/p.obj": "v"}}
	c := newTestClient(t, fake)
	ctx := context.Background()

	require.NoError(t, c.DeleteObject(ctx, "uploads/p.obj"))
	require.NoError(t, c.DeleteObject(ctx, "uploads/p.obj"))
	assert.Equal(t, []string{"uploads/p.obj"}, fake.deleted)
}

func TestEscapeQuery(t *testing.T) {
	assert.Equal(t, `it\'s`, escapeQuery("it's"))
	assert.Equal(t, `a\\b`, escapeQuery(`a\b`))
}
