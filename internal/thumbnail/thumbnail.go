// Package thumbnail defines thumbnail records and the ledger that attaches
// exactly one current record per (target, type).
package thumbnail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"renderhub/internal/pkg/errors"
)

type Type string

const (
	Avatar   Type = "avatar"
	Headshot Type = "headshot"
	ItemIcon Type = "item_icon"
)

var types = []Type{Avatar, Headshot, ItemIcon}

func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range types {
		if t == known {
			return t, nil
		}
	}
	return "", errors.ValidationField("type", "unknown thumbnail type").WithField("value", s)
}

// TargetRef is the identity of a thumbnailable entity.
type TargetRef struct {
	Kind string `json:"kind"`
	ID   int64  `json:"id"`
}

func (r TargetRef) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// Record is an immutable rendered thumbnail. The renderer wrote the image
// under thumbnails/{UUID}.png.
type Record struct {
	UUID         string    `json:"uuid"`
	ContentsUUID string    `json:"contents_uuid"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewRecord uses id for both UUID and ContentsUUID.
func NewRecord(id string, now time.Time, ttl time.Duration) Record {
	now = now.UTC()
	return Record{
		UUID:         id,
		ContentsUUID: id,
		ExpiresAt:    now.Add(ttl),
		CreatedAt:    now,
	}
}

// Ledger stores records and the (target, type) -> record edges.
//
// Commit creates rec, removes the previous edge for exactly (ref, typ) and
// adds the new one as a single atomic step. Commits for the same pair are
// serialized; edges of other types on the same target are left alone.
type Ledger interface {
	Commit(ctx context.Context, ref TargetRef, typ Type, rec Record) error
	// Current returns the attached record or a NOT_FOUND error.
	Current(ctx context.Context, ref TargetRef, typ Type) (*Record, error)
}

func edgeKey(ref TargetRef, typ Type) string {
	return ref.String() + ":" + string(typ)
}
