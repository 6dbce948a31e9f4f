// Package preview renders a one-off item preview from uploaded assets and
// returns it inline. Nothing it writes to the shared store outlives Run.
package preview

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"strings"

	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	contract "renderhub/internal/contracts/renderer/v0"
	"renderhub/internal/pkg/errors"
	"renderhub/internal/pkg/logger"
	"renderhub/internal/ports"
	"renderhub/internal/render"
)

const DefaultSize = 256

// MaxTextureEdge caps either side of an uploaded texture. Decoders allocate
// the full pixel buffer from the header, so larger claims are rejected before
// decoding.
const MaxTextureEdge = 4096

// Input is one preview request. Texture and Mesh may be nil; the renderer
// then falls back to its own defaults for the item type.
type Input struct {
	Texture  io.Reader
	Mesh     io.Reader
	ItemType string
}

type Result struct {
	Hash    string
	DataURL string
}

type Deps struct {
	Client render.Client
	Store  ports.StorageProvider
	Log    *logger.Logger
	// Size is the edge of the square output image.
	Size    int
	NewHash func() string
}

type Session struct {
	client  render.Client
	store   ports.StorageProvider
	log     *logger.Logger
	size    int
	newHash func() string
}

func New(d Deps) *Session {
	s := &Session{
		client:  d.Client,
		store:   d.Store,
		log:     d.Log,
		size:    d.Size,
		newHash: d.NewHash,
	}
	if s.log == nil {
		s.log = logger.Discard()
	}
	s.log = s.log.WithComponent("preview")
	if s.size <= 0 {
		s.size = DefaultSize
	}
	if s.newHash == nil {
		s.newHash = func() string { return "preview_" + uuid.NewString() }
	}
	return s
}

// Run uploads the inputs under a fresh session hash, asks the renderer for a
// preview and returns it as a PNG data URL. The three session keys are
// deleted on every exit path.
func (s *Session) Run(ctx context.Context, in Input) (*Result, error) {
	itemType := strings.ToLower(strings.TrimSpace(in.ItemType))
	if !contract.ValidItemType(itemType) {
		return nil, errors.ValidationField("type", "unknown item type").WithField("value", in.ItemType)
	}
	if !s.client.Configured() {
		return nil, errors.MissingConfig("RENDER_SERVER_URL")
	}

	hash := s.newHash()
	log := s.log.WithFields(map[string]any{"hash": hash, "item_type": itemType})
	defer s.cleanup(context.WithoutCancel(ctx), hash, log)

	if in.Texture != nil {
		if err := s.putTexture(ctx, hash, in.Texture); err != nil {
			return nil, err
		}
	}
	if in.Mesh != nil {
		if _, err := s.store.PutObject(ctx, ports.PutObjectInput{
			ObjectKey:   contract.MeshKey(hash),
			ContentType: "text/plain",
			Reader:      in.Mesh,
		}); err != nil {
			return nil, errors.Wrap(err, "preview.upload", "store mesh")
		}
	}

	out := s.client.Preview(ctx, contract.PreviewBody{
		RenderType: contract.RenderTypeItem,
		Item:       hash,
		ItemType:   itemType,
	})
	if !out.OK() {
		err := out.AsError()
		log.WithError(err).Error("preview render failed", "outcome", out.Kind.String(), "status", out.StatusCode)
		return nil, err
	}

	img, err := s.readOutput(ctx, hash)
	if err != nil {
		log.WithError(err).Error("preview output unreadable")
		return nil, err
	}

	url, err := s.encode(img)
	if err != nil {
		return nil, err
	}
	log.Info("preview rendered")
	return &Result{Hash: hash, DataURL: url}, nil
}

func (s *Session) putTexture(ctx context.Context, hash string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeValidation, "preview.texture", "read texture").
			WithField("field", "texture")
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeValidation, "preview.texture", "texture is not a supported image").
			WithField("field", "texture")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > MaxTextureEdge || cfg.Height > MaxTextureEdge {
		return errors.ValidationField("texture", "texture dimensions out of range").
			WithFields(map[string]any{"width": cfg.Width, "height": cfg.Height, "max": MaxTextureEdge})
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeValidation, "preview.texture", "texture is not a supported image").
			WithField("field", "texture")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return errors.Wrap(err, "preview.texture", "encode texture")
	}
	size := int64(buf.Len())
	if _, err := s.store.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   contract.TextureKey(hash),
		ContentType: "image/png",
		Reader:      &buf,
		Size:        size,
	}); err != nil {
		return errors.Wrap(err, "preview.upload", "store texture")
	}
	return nil
}

func (s *Session) readOutput(ctx context.Context, hash string) (image.Image, error) {
	key := contract.ThumbnailKey(hash)
	rc, _, _, err := s.store.GetObject(ctx, key)
	if err != nil {
		if errors.IsCode(err, errors.CodeNotFound) {
			return nil, errors.WrapWithCode(err, errors.CodeOutputMissing, "preview.read", "renderer reported success but wrote no image").
				WithField("key", key)
		}
		return nil, errors.Wrap(err, "preview.read", "read preview image")
	}
	defer rc.Close()

	img, _, err := image.Decode(rc)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeRenderFailed, "preview.read", "renderer wrote an undecodable image").
			WithField("key", key)
	}
	return img, nil
}

func (s *Session) encode(src image.Image) (string, error) {
	dst := image.NewRGBA(image.Rect(0, 0, s.size, s.size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return "", errors.Wrap(err, "preview.encode", "encode preview")
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (s *Session) cleanup(ctx context.Context, hash string, log *logger.Logger) {
	for _, key := range []string{contract.TextureKey(hash), contract.MeshKey(hash), contract.ThumbnailKey(hash)} {
		if err := s.store.DeleteObject(ctx, key); err != nil {
			log.WithError(err).Warn("preview cleanup failed", "key", key)
		}
	}
}
