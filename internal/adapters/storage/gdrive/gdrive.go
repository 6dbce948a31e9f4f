package gdrive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"renderhub/internal/pkg/errors"
	"renderhub/internal/ports"
)

// Client is a ports.StorageProvider backed by one Google Drive folder. The
// object key is used as the Drive file name and looked up on every access,
// so callers keep using renderer paths like thumbnails/{uuid}.png.
type Client struct {
	srv      *drive.Service
	folderID string
}

func NewClient(srv *drive.Service, folderID string) *Client {
	return &Client{srv: srv, folderID: folderID}
}

func (c *Client) Provider() string { return "gdrive" }

// lookup returns the id of the newest file named key, or "" when none exists.
func (c *Client) lookup(ctx context.Context, key string) (string, error) {
	q := fmt.Sprintf("name = '%s' and trashed = false", escapeQuery(key))
	if c.folderID != "" {
		q += fmt.Sprintf(" and '%s' in parents", escapeQuery(c.folderID))
	}

	res, err := c.srv.Files.List().
		Q(q).
		Fields("files(id, name)").
		OrderBy("modifiedTime desc").
		PageSize(1).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeUnavailable, "gdrive.lookup", "list files")
	}
	if len(res.Files) == 0 {
		return "", nil
	}
	return res.Files[0].Id, nil
}

func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, errors.ValidationField("object_key", "object key is required")
	}

	var opts []googleapi.MediaOption
	if in.ContentType != "" {
		opts = append(opts, googleapi.ContentType(in.ContentType))
	}

	existing, err := c.lookup(ctx, in.ObjectKey)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}

	if existing != "" {
		_, err = c.srv.Files.Update(existing, &drive.File{}).
			Media(in.Reader, opts...).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
	} else {
		file := &drive.File{Name: in.ObjectKey}
		if c.folderID != "" {
			file.Parents = []string{c.folderID}
		}
		_, err = c.srv.Files.Create(file).
			Media(in.Reader, opts...).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
	}
	if err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeUnavailable, "gdrive.put", "upload failed").
			WithField("key", in.ObjectKey)
	}

	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: in.Size}, nil
}

func (c *Client) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	id, err := c.lookup(ctx, objectKey)
	if err != nil {
		return nil, "", 0, err
	}
	if id == "" {
		return nil, "", 0, ports.NotFound(c.Provider(), objectKey)
	}

	resp, err := c.srv.Files.Get(id).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		if isNotFound(err) {
			return nil, "", 0, ports.NotFound(c.Provider(), objectKey)
		}
		return nil, "", 0, errors.WrapWithCode(err, errors.CodeUnavailable, "gdrive.get", "download failed")
	}

	return resp.Body, resp.Header.Get("Content-Type"), resp.ContentLength, nil
}

func (c *Client) Exists(ctx context.Context, objectKey string) (bool, error) {
	id, err := c.lookup(ctx, objectKey)
	if err != nil {
		return false, err
	}
	return id != "", nil
}

func (c *Client) DeleteObject(ctx context.Context, objectKey string) error {
	id, err := c.lookup(ctx, objectKey)
	if err != nil {
		return err
	}
	if id == "" {
		return nil
	}

	err = c.srv.Files.Delete(id).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil && !isNotFound(err) {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "gdrive.delete", "delete failed").
			WithField("key", objectKey)
	}
	return nil
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
