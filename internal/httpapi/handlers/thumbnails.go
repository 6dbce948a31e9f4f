package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	contract "renderhub/internal/contracts/renderer/v0"
	"renderhub/internal/httpkit"
	"renderhub/internal/pkg/errors"
	"renderhub/internal/render"
	"renderhub/internal/thumbnail"
	"renderhub/internal/worker"
)

// CreateThumbnailRequest carries the target snapshot in the same envelope the
// job transport uses: {"kind":"item","item":{"id":42,"item_type":"hat"}}.
type CreateThumbnailRequest struct {
	Target json.RawMessage `json:"target"`
	Type   string          `json:"type"`
}

// PostThumbnail enqueues a render. The response never waits for the render.
func (h *Handler) PostThumbnail(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	var req CreateThumbnailRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		return errors.WrapWithCode(err, errors.CodeValidation, "thumbnails.create", "invalid json body")
	}
	if len(req.Target) == 0 {
		return errors.ValidationField("target", "target is required")
	}

	typ, err := thumbnail.ParseType(req.Type)
	if err != nil {
		return err
	}
	target, err := render.DecodeTarget(req.Target)
	if err != nil {
		return err
	}

	status, job, err := h.jobs.Enqueue(ctx, target, typ)
	if err != nil {
		return err
	}

	body := map[string]any{
		"status":    status,
		"dedup_key": render.DedupKey(target, string(typ)),
	}
	code := http.StatusOK
	if status == worker.EnqueueAccepted && job != nil {
		body["job_id"] = job.ID
		body["enqueued_at"] = job.EnqueuedAt
		code = http.StatusAccepted
	}
	httpkit.WriteJSON(w, code, body)
	return nil
}

// GetThumbnail returns the record currently attached to (kind, id, type).
func (h *Handler) GetThumbnail(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	kind := chi.URLParam(r, "kind")
	if kind != string(render.KindUser) && kind != string(render.KindItem) {
		return errors.ValidationField("kind", "kind must be user or item").WithField("value", kind)
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return errors.ValidationField("id", "id must be a positive integer")
	}
	typ, err := thumbnail.ParseType(chi.URLParam(r, "type"))
	if err != nil {
		return err
	}

	rec, err := h.ledger.Current(ctx, thumbnail.TargetRef{Kind: kind, ID: id}, typ)
	if err != nil {
		return err
	}

	httpkit.WriteJSON(w, http.StatusOK, map[string]any{
		"thumbnail": rec,
		"path":      contract.ThumbnailKey(rec.ContentsUUID),
	})
	return nil
}
