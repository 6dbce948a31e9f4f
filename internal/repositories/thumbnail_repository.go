package repositories

import (
	"context"
	_ "embed"
	stderrors "errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"renderhub/internal/httpkit"
	"renderhub/internal/pkg/errors"
	"renderhub/internal/thumbnail"
)

//go:embed schema.sql
var schemaSQL string

// ThumbnailRepository is the PostgreSQL thumbnail.Ledger.
type ThumbnailRepository struct {
	db *pgxpool.Pool
}

func NewThumbnailRepository(db *pgxpool.Pool) *ThumbnailRepository {
	return &ThumbnailRepository{db: db}
}

// EnsureSchema creates the ledger tables when missing.
func (r *ThumbnailRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaSQL); err != nil {
		return errors.Wrap(err, "ledger.ensure_schema", "create ledger tables")
	}
	return nil
}

// Commit inserts rec and moves the (ref, typ) edge onto it in one
// transaction. A transaction-scoped advisory lock on the edge key serializes
// commits for the same pair only.
func (r *ThumbnailRepository) Commit(ctx context.Context, ref thumbnail.TargetRef, typ thumbnail.Type, rec thumbnail.Record) error {
	const op = "ledger.commit"

	id, err := uuid.Parse(rec.UUID)
	if err != nil {
		return errors.ValidationField("uuid", "record uuid is not a uuid").WithField("value", rec.UUID)
	}
	contentsID, err := uuid.Parse(rec.ContentsUUID)
	if err != nil {
		return errors.ValidationField("contents_uuid", "contents uuid is not a uuid").WithField("value", rec.ContentsUUID)
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, op, "begin transaction")
	}
	defer tx.Rollback(ctx)

	key := ref.String() + ":" + string(typ)
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return errors.Wrap(err, op, "lock edge")
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO thumbnails (uuid, contents_uuid, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
	`, id, contentsID, rec.ExpiresAt, rec.CreatedAt)
	if err != nil {
		if httpkit.IsUniqueViolation(err) {
			return errors.WrapWithCode(err, errors.CodeConflict, op, "thumbnail record already exists").
				WithField("uuid", rec.UUID)
		}
		return errors.Wrap(err, op, "insert thumbnail")
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM thumbnailables
		WHERE target_kind=$1 AND target_id=$2 AND thumbnail_type=$3
	`, ref.Kind, ref.ID, string(typ))
	if err != nil {
		return errors.Wrap(err, op, "detach previous thumbnail")
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO thumbnailables (target_kind, target_id, thumbnail_type, thumbnail_uuid)
		VALUES ($1, $2, $3, $4)
	`, ref.Kind, ref.ID, string(typ), id)
	if err != nil {
		return errors.Wrap(err, op, "attach thumbnail")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, op, "commit transaction")
	}
	return nil
}

func (r *ThumbnailRepository) Current(ctx context.Context, ref thumbnail.TargetRef, typ thumbnail.Type) (*thumbnail.Record, error) {
	var rec thumbnail.Record
	err := r.db.QueryRow(ctx, `
		SELECT t.uuid::text, t.contents_uuid::text, t.expires_at, t.created_at
		FROM thumbnailables e
		JOIN thumbnails t ON t.uuid = e.thumbnail_uuid
		WHERE e.target_kind=$1 AND e.target_id=$2 AND e.thumbnail_type=$3
	`, ref.Kind, ref.ID, string(typ)).Scan(
		&rec.UUID,
		&rec.ContentsUUID,
		&rec.ExpiresAt,
		&rec.CreatedAt,
	)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NotFound("thumbnail", ref.String()+":"+string(typ))
		}
		if httpkit.IsUndefinedTable(err) {
			return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "ledger.current", "ledger schema not applied")
		}
		return nil, errors.Wrap(err, "ledger.current", "query thumbnail")
	}
	return &rec, nil
}

// Ping reports database reachability for health checks.
func (r *ThumbnailRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
