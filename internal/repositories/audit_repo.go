package repositories

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/surprise-envelope/backend/internal/models"
)

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

func (r *AuditRepo) Log(ctx context.Context, entry models.AuditLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_log (actor_type, action, entity_type, entity_ref, request_id, meta)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ActorType, entry.Action, entry.EntityType, entry.EntityRef, entry.RequestID, entry.Meta)
	return err
}
