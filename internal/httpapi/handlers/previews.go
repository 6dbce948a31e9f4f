package handlers

import (
	stderrors "errors"
	"mime/multipart"
	"net/http"

	"renderhub/internal/httpkit"
	"renderhub/internal/pkg/errors"
	"renderhub/internal/preview"
)

// PostPreview renders an item preview from a multipart upload with optional
// "texture" and "mesh" files and a required "type" field. The body of a
// successful response is the PNG data URL.
func (h *Handler) PostPreview(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return errors.ValidationField("body", "upload too large").WithField("limit", h.maxUploadBytes)
		}
		return errors.WrapWithCode(err, errors.CodeValidation, "previews.create", "invalid multipart body")
	}
	defer r.MultipartForm.RemoveAll()

	texture, err := formFile(r, "texture")
	if err != nil {
		return err
	}
	if texture != nil {
		defer texture.Close()
	}
	mesh, err := formFile(r, "mesh")
	if err != nil {
		return err
	}
	if mesh != nil {
		defer mesh.Close()
	}

	in := preview.Input{ItemType: r.FormValue("type")}
	if texture != nil {
		in.Texture = texture
	}
	if mesh != nil {
		in.Mesh = mesh
	}

	res, err := h.preview.Run(r.Context(), in)
	if err != nil {
		return err
	}

	httpkit.WriteText(w, http.StatusOK, res.DataURL)
	return nil
}

// formFile returns nil when the part is absent.
func formFile(r *http.Request, name string) (multipart.File, error) {
	f, _, err := r.FormFile(name)
	if stderrors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "previews.create", "invalid upload").WithField("field", name)
	}
	return f, nil
}
