package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/linemk/farmsync/internal/domain/models"
	"github.com/linemk/farmsync/internal/lib/listquery"
)

var (
	ErrReviewNotFound = errors.New("review not found")
	// ErrReviewExists нарушен уникальный индекс (reviewer_id, farmer_id, order_id)
	ErrReviewExists = errors.New("review already exists")
)

// ReviewStorage описывает методы для работы с отзывами и рейтингом фермеров.
type ReviewStorage interface {
	CreateReviewTx(ctx context.Context, tx *sql.Tx, review *models.Review) (*models.Review, error)
	GetReviewByID(ctx context.Context, id int64) (*models.Review, error)
	// FindReview ищет отзыв по тройке (автор, фермер, заказ)
	FindReview(ctx context.Context, reviewerID, farmerID, orderID int64) (*models.Review, error)
	UpdateReviewTx(ctx context.Context, tx *sql.Tx, review *models.Review) error
	DeleteReviewTx(ctx context.Context, tx *sql.Tx, id int64) error
	ListReviews(ctx context.Context, q listquery.Query) ([]*models.Review, int, error)
	// GetRatingsByFarmer все оценки фермера
	GetRatingsByFarmer(ctx context.Context, farmerID int64) ([]int, error)
	// RecalculateFarmerRatingTx пересчитывает и сохраняет агрегат рейтинга фермера
	RecalculateFarmerRatingTx(ctx context.Context, tx *sql.Tx, farmerID int64) (*models.FarmerRating, error)
	GetFarmerRating(ctx context.Context, farmerID int64) (*models.FarmerRating, error)
}

type reviewRepository struct {
	db *sql.DB
}

func NewReviewRepository(db *sql.DB) ReviewStorage {
	return &reviewRepository{db: db}
}

const reviewColumns = "r.id, r.reviewer_id, r.farmer_id, r.order_id, r.rating, r.comment, r.created_at, r.updated_at"

var reviewFields = columnSet{
	"id":        {expr: "r.id", sqlType: "bigint"},
	"reviewer":  {expr: "r.reviewer_id", sqlType: "bigint"},
	"farmer":    {expr: "r.farmer_id", sqlType: "bigint"},
	"order":     {expr: "r.order_id", sqlType: "bigint"},
	"rating":    {expr: "r.rating", sqlType: "integer"},
	"createdAt": {expr: "r.created_at", sqlType: "timestamptz"},
}

func scanReview(row interface{ Scan(...any) error }) (*models.Review, error) {
	rv := &models.Review{}
	if err := row.Scan(&rv.ID, &rv.ReviewerID, &rv.FarmerID, &rv.OrderID, &rv.Rating, &rv.Comment, &rv.CreatedAt, &rv.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReviewNotFound
		}
		return nil, err
	}
	return rv, nil
}

func (r *reviewRepository) CreateReviewTx(ctx context.Context, tx *sql.Tx, review *models.Review) (*models.Review, error) {
	err := tx.QueryRowContext(ctx,
		`INSERT INTO reviews (reviewer_id, farmer_id, order_id, rating, comment)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at, updated_at`,
		review.ReviewerID, review.FarmerID, review.OrderID, review.Rating, review.Comment,
	).Scan(&review.ID, &review.CreatedAt, &review.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrReviewExists
		}
		return nil, fmt.Errorf("failed to create review: %w", err)
	}
	return review, nil
}

func (r *reviewRepository) GetReviewByID(ctx context.Context, id int64) (*models.Review, error) {
	return scanReview(r.db.QueryRowContext(ctx, "SELECT "+reviewColumns+" FROM reviews r WHERE r.id = $1", id))
}

func (r *reviewRepository) FindReview(ctx context.Context, reviewerID, farmerID, orderID int64) (*models.Review, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+reviewColumns+" FROM reviews r WHERE r.reviewer_id = $1 AND r.farmer_id = $2 AND r.order_id = $3",
		reviewerID, farmerID, orderID)
	return scanReview(row)
}

func (r *reviewRepository) UpdateReviewTx(ctx context.Context, tx *sql.Tx, review *models.Review) error {
	err := tx.QueryRowContext(ctx,
		"UPDATE reviews SET rating = $1, comment = $2, updated_at = NOW() WHERE id = $3 RETURNING updated_at",
		review.Rating, review.Comment, review.ID,
	).Scan(&review.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrReviewNotFound
		}
		return fmt.Errorf("failed to update review: %w", err)
	}
	return nil
}

func (r *reviewRepository) DeleteReviewTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, "DELETE FROM reviews WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete review: %w", err)
	}
	return expectAffected(res, ErrReviewNotFound)
}

func (r *reviewRepository) ListReviews(ctx context.Context, q listquery.Query) ([]*models.Review, int, error) {
	var where whereBuilder
	if err := where.applyFilters(reviewFields, q.Filters); err != nil {
		return nil, 0, err
	}
	order, err := orderBy(reviewFields, q.Sort, "r.created_at DESC")
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reviews r"+where.sql(), where.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count reviews: %w", err)
	}

	args := append(where.args, q.Limit, q.Offset())
	query := fmt.Sprintf("SELECT %s FROM reviews r%s%s LIMIT $%d OFFSET $%d",
		reviewColumns, where.sql(), order, len(where.args)+1, len(where.args)+2)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()

	reviews := make([]*models.Review, 0, q.Limit)
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return reviews, total, nil
}

func (r *reviewRepository) GetRatingsByFarmer(ctx context.Context, farmerID int64) ([]int, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT rating FROM reviews WHERE farmer_id = $1", farmerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ratings: %w", err)
	}
	defer rows.Close()

	ratings := []int{}
	for rows.Next() {
		var rating int
		if err := rows.Scan(&rating); err != nil {
			return nil, err
		}
		ratings = append(ratings, rating)
	}
	return ratings, rows.Err()
}

// RecalculateFarmerRatingTx считает среднее прямо в БД, чтобы учесть только что записанный отзыв
func (r *reviewRepository) RecalculateFarmerRatingTx(ctx context.Context, tx *sql.Tx, farmerID int64) (*models.FarmerRating, error) {
	query := `
		INSERT INTO farmer_ratings (farmer_id, average_rating, total_reviews, updated_at)
		SELECT $1, COALESCE(ROUND(AVG(rating)::numeric, 1), 0), COUNT(*), NOW()
		FROM reviews WHERE farmer_id = $1
		ON CONFLICT (farmer_id) DO UPDATE
		SET average_rating = EXCLUDED.average_rating, total_reviews = EXCLUDED.total_reviews, updated_at = EXCLUDED.updated_at
		RETURNING average_rating, total_reviews`
	rating := &models.FarmerRating{FarmerID: farmerID}
	if err := tx.QueryRowContext(ctx, query, farmerID).Scan(&rating.AverageRating, &rating.TotalReviews); err != nil {
		return nil, fmt.Errorf("failed to recalculate farmer rating: %w", err)
	}
	return rating, nil
}

// GetFarmerRating - у фермера без отзывов возвращается нулевой рейтинг
func (r *reviewRepository) GetFarmerRating(ctx context.Context, farmerID int64) (*models.FarmerRating, error) {
	rating := &models.FarmerRating{FarmerID: farmerID}
	err := r.db.QueryRowContext(ctx,
		"SELECT average_rating, total_reviews FROM farmer_ratings WHERE farmer_id = $1", farmerID,
	).Scan(&rating.AverageRating, &rating.TotalReviews)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get farmer rating: %w", err)
	}
	return rating, nil
}
