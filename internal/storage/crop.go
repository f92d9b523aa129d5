package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/linemk/farmsync/internal/domain/models"
	"github.com/linemk/farmsync/internal/lib/listquery"
)

var ErrCropNotFound = errors.New("crop not found")

// CropStorage описывает методы для работы с таблицей crops.
type CropStorage interface {
	CreateCrop(ctx context.Context, crop *models.Crop) (*models.Crop, error)
	GetCropByID(ctx context.Context, id int64) (*models.Crop, error)
	// UpdateCropTx пишет строку целиком, вызывается только под LockCropByIDTx
	UpdateCropTx(ctx context.Context, tx *sql.Tx, crop *models.Crop) error
	DeleteCrop(ctx context.Context, id int64) error
	// ListCrops возвращает страницу культур и общее количество подходящих под фильтр
	ListCrops(ctx context.Context, q listquery.Query) ([]*models.Crop, int, error)
	// LockCropByIDTx блокирует строку культуры до конца транзакции, конкурирующие заказы ждут
	LockCropByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Crop, error)
	// AdjustQuantityTx меняет остаток на delta (отрицательное - списание)
	AdjustQuantityTx(ctx context.Context, tx *sql.Tx, id int64, delta int) error
}

type cropRepository struct {
	db *sql.DB
}

func NewCropRepository(db *sql.DB) CropStorage {
	return &cropRepository{db: db}
}

const cropColumns = `c.id, c.name, c.category, c.quantity, c.price, c.description, c.harvest_date, c.image,
	c.min_order, c.available_until, c.published_to_marketplace, c.farmer_id, c.created_at`

// cropFields поля, по которым разрешены фильтры и сортировка
var cropFields = columnSet{
	"id":                     {expr: "c.id", sqlType: "bigint"},
	"name":                   {expr: "c.name", sqlType: "text"},
	"category":               {expr: "c.category", sqlType: "text"},
	"quantity":               {expr: "c.quantity", sqlType: "integer"},
	"price":                  {expr: "c.price", sqlType: "numeric"},
	"harvestDate":            {expr: "c.harvest_date", sqlType: "timestamptz"},
	"minOrder":               {expr: "c.min_order", sqlType: "integer"},
	"availableUntil":         {expr: "c.available_until", sqlType: "timestamptz"},
	"publishedToMarketplace": {expr: "c.published_to_marketplace", sqlType: "boolean"},
	"farmer":                 {expr: "c.farmer_id", sqlType: "bigint"},
	"createdAt":              {expr: "c.created_at", sqlType: "timestamptz"},
}

func scanCrop(row interface{ Scan(...any) error }) (*models.Crop, error) {
	c := &models.Crop{}
	err := row.Scan(&c.ID, &c.Name, &c.Category, &c.Quantity, &c.Price, &c.Description, &c.HarvestDate, &c.Image,
		&c.MinOrder, &c.AvailableUntil, &c.PublishedToMarketplace, &c.FarmerID, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCropNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *cropRepository) CreateCrop(ctx context.Context, crop *models.Crop) (*models.Crop, error) {
	query := `INSERT INTO crops (name, category, quantity, price, description, harvest_date, image, min_order,
	          available_until, published_to_marketplace, farmer_id)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query,
		crop.Name, crop.Category, crop.Quantity, crop.Price, crop.Description, crop.HarvestDate, crop.Image,
		crop.MinOrder, crop.AvailableUntil, crop.PublishedToMarketplace, crop.FarmerID,
	).Scan(&crop.ID, &crop.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create crop: %w", err)
	}
	return crop, nil
}

func (r *cropRepository) GetCropByID(ctx context.Context, id int64) (*models.Crop, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+cropColumns+" FROM crops c WHERE c.id = $1", id)
	return scanCrop(row)
}

func (r *cropRepository) UpdateCropTx(ctx context.Context, tx *sql.Tx, crop *models.Crop) error {
	query := `UPDATE crops SET name = $1, category = $2, quantity = $3, price = $4, description = $5,
	          harvest_date = $6, image = $7, min_order = $8, available_until = $9, published_to_marketplace = $10
	          WHERE id = $11`
	res, err := tx.ExecContext(ctx, query,
		crop.Name, crop.Category, crop.Quantity, crop.Price, crop.Description,
		crop.HarvestDate, crop.Image, crop.MinOrder, crop.AvailableUntil, crop.PublishedToMarketplace,
		crop.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update crop: %w", err)
	}
	return expectAffected(res, ErrCropNotFound)
}

func (r *cropRepository) DeleteCrop(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM crops WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete crop: %w", err)
	}
	return expectAffected(res, ErrCropNotFound)
}

func (r *cropRepository) ListCrops(ctx context.Context, q listquery.Query) ([]*models.Crop, int, error) {
	var where whereBuilder
	if err := where.applyFilters(cropFields, q.Filters); err != nil {
		return nil, 0, err
	}
	order, err := orderBy(cropFields, q.Sort, "c.created_at DESC")
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM crops c"+where.sql(), where.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count crops: %w", err)
	}

	args := append(where.args, q.Limit, q.Offset())
	query := fmt.Sprintf("SELECT %s FROM crops c%s%s LIMIT $%d OFFSET $%d",
		cropColumns, where.sql(), order, len(where.args)+1, len(where.args)+2)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query crops: %w", err)
	}
	defer rows.Close()

	crops := make([]*models.Crop, 0, q.Limit)
	for rows.Next() {
		c, err := scanCrop(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan crop: %w", err)
		}
		crops = append(crops, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return crops, total, nil
}

func (r *cropRepository) LockCropByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Crop, error) {
	row := tx.QueryRowContext(ctx, "SELECT "+cropColumns+" FROM crops c WHERE c.id = $1 FOR UPDATE", id)
	return scanCrop(row)
}

// AdjustQuantityTx не даёт остатку уйти в минус: условие quantity + delta >= 0 проверяется в том же UPDATE
func (r *cropRepository) AdjustQuantityTx(ctx context.Context, tx *sql.Tx, id int64, delta int) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE crops SET quantity = quantity + $1 WHERE id = $2 AND quantity + $1 >= 0", delta, id)
	if err != nil {
		return fmt.Errorf("failed to adjust crop quantity: %w", err)
	}
	return expectAffected(res, ErrCropNotFound)
}

func expectAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound
	}
	return nil
}
