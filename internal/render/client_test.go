package render

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contract "renderhub/internal/contracts/renderer/v0"
	"renderhub/internal/pkg/errors"
)

func TestInvokeSendsQueryAndAccessKey(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Write([]byte("rendered"))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/render?v=1", "secret", time.Second)
	out := c.Invoke(context.Background(), Params{"RenderType": "item", "item": "42"})

	require.True(t, out.OK(), "outcome: %+v", out)
	assert.NoError(t, out.AsError())
	assert.Equal(t, http.MethodGet, got.Method)
	assert.Equal(t, "/render", got.URL.Path)
	assert.Equal(t, "secret", got.Header.Get(contract.AccessKeyHeader))
	assert.Equal(t, "item", got.URL.Query().Get("RenderType"))
	assert.Equal(t, "42", got.URL.Query().Get("item"))
	assert.Equal(t, "1", got.URL.Query().Get("v"))
}

func TestPreviewPostsJSON(t *testing.T) {
	var body contract.PreviewBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "k", r.Header.Get(contract.AccessKeyHeader))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "k", time.Second)
	out := c.Preview(context.Background(), contract.PreviewBody{RenderType: "item", Item: "preview_x", ItemType: "hat"})

	assert.True(t, out.OK())
	assert.Equal(t, "preview_x", body.Item)
	assert.Equal(t, "hat", body.ItemType)
}

func TestServiceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	out := NewHTTPClient(srv.URL, "", time.Second).Invoke(context.Background(), Params{})

	assert.Equal(t, OutcomeServiceFailure, out.Kind)
	assert.Equal(t, 500, out.StatusCode)
	assert.Contains(t, out.Body, "boom")

	err := out.AsError()
	assert.True(t, errors.IsCode(err, errors.CodeRenderFailed))
	assert.Equal(t, 500, errors.GetFields(err)["status"])
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	out := NewHTTPClient(url, "", time.Second).Invoke(context.Background(), Params{})

	assert.Equal(t, OutcomeTransportFailure, out.Kind)
	assert.Error(t, out.Err)
	assert.True(t, errors.IsCode(out.AsError(), errors.CodeRenderFailed))
}

func TestTimeoutIsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	out := NewHTTPClient(srv.URL, "", 20*time.Millisecond).Invoke(context.Background(), Params{})
	assert.Equal(t, OutcomeTransportFailure, out.Kind)
}

func TestNotConfigured(t *testing.T) {
	c := NewHTTPClient("  ", "k", 0)
	assert.False(t, c.Configured())

	out := c.Preview(context.Background(), contract.PreviewBody{})
	assert.Equal(t, OutcomeTransportFailure, out.Kind)
	assert.True(t, errors.IsCode(out.AsError(), errors.CodeMissingConfig))
}

func TestOutcomeKindString(t *testing.T) {
	assert.Equal(t, "success", OutcomeSuccess.String())
	assert.Equal(t, "service_failure", OutcomeServiceFailure.String())
	assert.Equal(t, "transport_failure", OutcomeTransportFailure.String())
}
