package repository

import (
	"context"

	"receiptlens/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type ReceiptRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewReceiptRepository(db *pgxpool.Pool, logger *zap.Logger) *ReceiptRepository {
	return &ReceiptRepository{
		db:     db,
		logger: logger,
	}
}

func (r *ReceiptRepository) Create(ctx context.Context, rec *models.Receipt) error {
	query := squirrel.Insert("receipts").
		Columns("id", "source_type", "file_name", "file_size", "data", "tokens_used", "created_at").
		Values(rec.ID, rec.SourceType, rec.FileName, rec.FileSize, rec.Data, rec.TokensUsed, rec.CreatedAt).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

func (r *ReceiptRepository) List(ctx context.Context, limit int) ([]*models.Receipt, error) {
	query := squirrel.Select("id", "source_type", "file_name", "file_size", "data", "tokens_used", "created_at").
		From("receipts").
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var receipts []*models.Receipt
	for rows.Next() {
		var rec models.Receipt
		if err := rows.Scan(
			&rec.ID, &rec.SourceType, &rec.FileName, &rec.FileSize, &rec.Data, &rec.TokensUsed, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		receipts = append(receipts, &rec)
	}

	return receipts, rows.Err()
}
