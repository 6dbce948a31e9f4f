package preview

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"renderhub/internal/adapters/storage/localfs"
	contract "renderhub/internal/contracts/renderer/v0"
	"renderhub/internal/pkg/errors"
	"renderhub/internal/ports"
	"renderhub/internal/render"
)

// fakeRenderer writes a 64x32 image for the requested hash, as the real
// renderer does against the shared store.
type fakeRenderer struct {
	store      ports.StorageProvider
	configured bool
	outcome    render.Outcome
	skipWrite  bool
	bodies     []contract.PreviewBody
	sawTexture bool
}

func (f *fakeRenderer) Configured() bool { return f.configured }

func (f *fakeRenderer) Invoke(context.Context, render.Params) render.Outcome {
	return render.Outcome{Kind: render.OutcomeSuccess}
}

func (f *fakeRenderer) Preview(ctx context.Context, body contract.PreviewBody) render.Outcome {
	f.bodies = append(f.bodies, body)
	f.sawTexture, _ = f.store.Exists(ctx, contract.TextureKey(body.Item))
	if !f.outcome.OK() || f.skipWrite {
		return f.outcome
	}
	_, err := f.store.PutObject(ctx, ports.PutObjectInput{
		ObjectKey: contract.ThumbnailKey(body.Item),
		Reader:    bytes.NewReader(testPNG(64, 32)),
	})
	if err != nil {
		return render.Outcome{Kind: render.OutcomeTransportFailure, Err: err}
	}
	return f.outcome
}

func testPNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

const testHash = "preview_test"

func newTestSession(t *testing.T) (*Session, *fakeRenderer, ports.StorageProvider) {
	t.Helper()
	store := localfs.New(t.TempDir())
	r := &fakeRenderer{
		store:      store,
		configured: true,
		outcome:    render.Outcome{Kind: render.OutcomeSuccess, StatusCode: 200},
	}
	s := New(Deps{Client: r, Store: store, NewHash: func() string { return testHash }})
	return s, r, store
}

func assertCleanedUp(t *testing.T, store ports.StorageProvider) {
	t.Helper()
	ctx := context.Background()
	for _, key := range []string{contract.TextureKey(testHash), contract.MeshKey(testHash), contract.ThumbnailKey(testHash)} {
		ok, err := store.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, "%s should be removed", key)
	}
}

func TestRunReturnsResizedDataURL(t *testing.T) {
	s, r, store := newTestSession(t)

	res, err := s.Run(context.Background(), Input{
		Texture:  bytes.NewReader(testPNG(8, 8)),
		Mesh:     strings.NewReader("v 0 0 0\n"),
		ItemType: "Hat",
	})
	require.NoError(t, err)
	assert.Equal(t, testHash, res.Hash)

	require.Len(t, r.bodies, 1)
	assert.Equal(t, contract.PreviewBody{RenderType: "item", Item: testHash, ItemType: "hat"}, r.bodies[0])
	assert.True(t, r.sawTexture, "texture is uploaded before the renderer runs")

	const prefix = "data:image/png;base64,"
	require.True(t, strings.HasPrefix(res.DataURL, prefix))
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(res.DataURL, prefix))
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 256, 256), img.Bounds())

	assertCleanedUp(t, store)
}

func TestRunRendererFailure(t *testing.T) {
	s, r, store := newTestSession(t)
	r.outcome = render.Outcome{Kind: render.OutcomeServiceFailure, StatusCode: 500, Body: "boom"}

	_, err := s.Run(context.Background(), Input{Texture: bytes.NewReader(testPNG(4, 4)), ItemType: "face"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeRenderFailed))
	assertCleanedUp(t, store)
}

func TestRunOutputMissing(t *testing.T) {
	s, r, store := newTestSession(t)
	r.skipWrite = true

	_, err := s.Run(context.Background(), Input{Mesh: strings.NewReader("v 1 1 1\n"), ItemType: "tool"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeOutputMissing))
	assertCleanedUp(t, store)
}

func TestRunRejectsBadInput(t *testing.T) {
	s, r, store := newTestSession(t)

	_, err := s.Run(context.Background(), Input{ItemType: "cape"})
	assert.True(t, errors.IsCode(err, errors.CodeValidation))

	_, err = s.Run(context.Background(), Input{Texture: strings.NewReader("not an image"), ItemType: "shirt"})
	assert.True(t, errors.IsCode(err, errors.CodeValidation))

	assert.Empty(t, r.bodies)
	assertCleanedUp(t, store)
}

func TestRunRequiresRendererURL(t *testing.T) {
	s, r, _ := newTestSession(t)
	r.configured = false

	_, err := s.Run(context.Background(), Input{ItemType: "pants"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeMissingConfig))
	assert.Equal(t, 500, errors.GetHTTPStatus(err))
}

// oversizedPNG is a valid 1x1 PNG whose header claims w x h.
func oversizedPNG(w, h uint32) []byte {
	b := testPNG(1, 1)
	// IHDR data starts after the 8-byte signature, length and type.
	binary.BigEndian.PutUint32(b[16:20], w)
	binary.BigEndian.PutUint32(b[20:24], h)
	binary.BigEndian.PutUint32(b[29:33], crc32.ChecksumIEEE(b[12:29]))
	return b
}

func TestRunRejectsOversizedTexture(t *testing.T) {
	s, r, store := newTestSession(t)

	for _, dims := range [][2]uint32{{8000, 8000}, {60000, 60000}, {4097, 1}} {
		_, err := s.Run(context.Background(), Input{
			Texture:  bytes.NewReader(oversizedPNG(dims[0], dims[1])),
			ItemType: "hat",
		})
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeValidation), "%v: %v", dims, err)
		assert.Equal(t, "texture", errors.GetFields(err)["field"])
	}

	assert.Empty(t, r.bodies)
	assertCleanedUp(t, store)
}

func TestRunAcceptsBMPTexture(t *testing.T) {
	s, r, store := newTestSession(t)

	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))

	_, err := s.Run(context.Background(), Input{Texture: &buf, ItemType: "shirt"})
	require.NoError(t, err)
	assert.True(t, r.sawTexture)
	assertCleanedUp(t, store)
}
