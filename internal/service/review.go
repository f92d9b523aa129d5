package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/linemk/farmsync/internal/domain/models"
	"github.com/linemk/farmsync/internal/lib/listquery"
	"github.com/linemk/farmsync/internal/storage"
	"github.com/shopspring/decimal"
)

const maxCommentLen = 500

type ReviewService interface {
	Create(ctx context.Context, actor Actor, in ReviewInput) (*models.Review, error)
	Update(ctx context.Context, actor Actor, id int64, patch ReviewPatch) (*models.Review, error)
	Delete(ctx context.Context, actor Actor, id int64) error
	Get(ctx context.Context, id int64) (*models.Review, error)
	List(ctx context.Context, q listquery.Query) ([]*models.Review, int, error)
	FarmerStats(ctx context.Context, farmerID int64) (*RatingStats, error)
}

type ReviewInput struct {
	FarmerID int64
	OrderID  int64
	Rating   int
	Comment  string
}

type ReviewPatch struct {
	Rating  *int
	Comment *string
}

// RatingStats сводка оценок фермера
type RatingStats struct {
	FarmerID           int64           `json:"farmerId"`
	AverageRating      decimal.Decimal `json:"averageRating"`
	TotalReviews       int             `json:"totalReviews"`
	RatingDistribution map[int]int     `json:"ratingDistribution"`
}

type reviewService struct {
	log        *slog.Logger
	db         *sql.DB
	reviewRepo storage.ReviewStorage
	orderRepo  storage.OrderStorage
	userRepo   storage.UserStorage
}

func NewReviewService(log *slog.Logger, db *sql.DB, reviewRepo storage.ReviewStorage, orderRepo storage.OrderStorage, userRepo storage.UserStorage) ReviewService {
	return &reviewService{
		log:        log,
		db:         db,
		reviewRepo: reviewRepo,
		orderRepo:  orderRepo,
		userRepo:   userRepo,
	}
}

// Create сохраняет отзыв о фермере по доставленному заказу.
// Проверки идут строго по порядку, у каждой своя ошибка.
// Вместе с отзывом заказ помечается как оценённый и пересчитывается рейтинг фермера.
func (s *reviewService) Create(ctx context.Context, actor Actor, in ReviewInput) (*models.Review, error) {
	const op = "service.ReviewService.Create"
	logger := s.log.With(
		slog.String("op", op),
		slog.Int64("reviewerID", actor.ID),
		slog.Int64("farmerID", in.FarmerID),
		slog.Int64("orderID", in.OrderID),
	)

	comment := strings.TrimSpace(in.Comment)
	if in.FarmerID == 0 || in.OrderID == 0 || comment == "" {
		return nil, newError(ErrValidation, "Please provide farmer, rating, comment, and orderId")
	}
	if !models.ValidRating(in.Rating) {
		return nil, newError(ErrValidation, "Rating must be between 1 and 5")
	}
	if utf8.RuneCountInString(comment) > maxCommentLen {
		return nil, newError(ErrValidation, "Comment can not be more than %d characters", maxCommentLen)
	}

	if err := ensureFarmer(ctx, s.log, s.userRepo, op, in.FarmerID); err != nil {
		return nil, err
	}

	order, err := s.orderRepo.GetOrderByID(ctx, in.OrderID)
	if err != nil {
		if errors.Is(err, storage.ErrOrderNotFound) {
			return nil, newError(ErrNotFound, "Order not found")
		}
		logger.Error("failed to get order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get order: %w", op, err)
	}
	if order.BuyerID != actor.ID {
		return nil, newError(ErrForbidden, "You are not authorized to review this order")
	}
	if !order.HasFarmer(in.FarmerID) {
		return nil, newError(ErrInvalidState, "You can only review farmers from whom you have purchased items")
	}
	if order.Status != models.StatusDelivered {
		return nil, newError(ErrInvalidState, "You can only review completed orders")
	}

	_, err = s.reviewRepo.FindReview(ctx, actor.ID, in.FarmerID, in.OrderID)
	switch {
	case err == nil:
		return nil, errAlreadyReviewed()
	case !errors.Is(err, storage.ErrReviewNotFound):
		logger.Error("failed to look up review", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to look up review: %w", op, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	review, err := s.reviewRepo.CreateReviewTx(ctx, tx, &models.Review{
		ReviewerID: actor.ID,
		FarmerID:   in.FarmerID,
		OrderID:    in.OrderID,
		Rating:     in.Rating,
		Comment:    comment,
	})
	if err != nil {
		rollback(tx, logger)
		// параллельный отзыв упирается в уникальный индекс
		if errors.Is(err, storage.ErrReviewExists) {
			return nil, errAlreadyReviewed()
		}
		logger.Error("failed to create review", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to create review: %w", op, err)
	}

	if err := s.orderRepo.MarkReviewedTx(ctx, tx, in.OrderID); err != nil {
		rollback(tx, logger)
		logger.Error("failed to mark order reviewed", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to mark order reviewed: %w", op, err)
	}

	rating, err := s.reviewRepo.RecalculateFarmerRatingTx(ctx, tx, in.FarmerID)
	if err != nil {
		rollback(tx, logger)
		logger.Error("failed to recalculate rating", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to recalculate rating: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	logger.Info("review created",
		slog.Int64("reviewID", review.ID),
		slog.String("averageRating", rating.AverageRating.String()),
		slog.Int("totalReviews", rating.TotalReviews),
	)
	return review, nil
}

func errAlreadyReviewed() error {
	return newError(ErrInvalidState, "You have already reviewed this farmer for this order")
}

// Update меняет оценку и/или текст отзыва; доступно автору и администратору
func (s *reviewService) Update(ctx context.Context, actor Actor, id int64, patch ReviewPatch) (*models.Review, error) {
	const op = "service.ReviewService.Update"
	logger := s.log.With(slog.String("op", op), slog.Int64("reviewID", id), slog.Int64("userID", actor.ID))

	review, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if review.ReviewerID != actor.ID && !actor.IsAdmin() {
		logger.Warn("not an author")
		return nil, newError(ErrForbidden, "You are not authorized to update this review")
	}
	if patch.Rating != nil {
		if !models.ValidRating(*patch.Rating) {
			return nil, newError(ErrValidation, "Rating must be between 1 and 5")
		}
		review.Rating = *patch.Rating
	}
	if patch.Comment != nil {
		comment := strings.TrimSpace(*patch.Comment)
		if comment == "" || utf8.RuneCountInString(comment) > maxCommentLen {
			return nil, newError(ErrValidation, "Comment must be between 1 and %d characters", maxCommentLen)
		}
		review.Comment = comment
	}

	err = s.inTx(ctx, logger, op, func(tx *sql.Tx) error {
		if err := s.reviewRepo.UpdateReviewTx(ctx, tx, review); err != nil {
			return err
		}
		_, err := s.reviewRepo.RecalculateFarmerRatingTx(ctx, tx, review.FarmerID)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Info("review updated")
	return review, nil
}

func (s *reviewService) Delete(ctx context.Context, actor Actor, id int64) error {
	const op = "service.ReviewService.Delete"
	logger := s.log.With(slog.String("op", op), slog.Int64("reviewID", id), slog.Int64("userID", actor.ID))

	review, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if review.ReviewerID != actor.ID && !actor.IsAdmin() {
		logger.Warn("not an author")
		return newError(ErrForbidden, "You are not authorized to delete this review")
	}

	err = s.inTx(ctx, logger, op, func(tx *sql.Tx) error {
		if err := s.reviewRepo.DeleteReviewTx(ctx, tx, id); err != nil {
			return err
		}
		_, err := s.reviewRepo.RecalculateFarmerRatingTx(ctx, tx, review.FarmerID)
		return err
	})
	if err != nil {
		return err
	}

	logger.Info("review deleted")
	return nil
}

// inTx выполняет fn в транзакции; ErrReviewNotFound из fn превращается в NotFound
func (s *reviewService) inTx(ctx context.Context, logger *slog.Logger, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}
	if err := fn(tx); err != nil {
		rollback(tx, logger)
		if errors.Is(err, storage.ErrReviewNotFound) {
			return newError(ErrNotFound, "Review not found")
		}
		logger.Error("review transaction failed", slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}
	return nil
}

func (s *reviewService) Get(ctx context.Context, id int64) (*models.Review, error) {
	const op = "service.ReviewService.Get"

	review, err := s.reviewRepo.GetReviewByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrReviewNotFound) {
			return nil, newError(ErrNotFound, "Review not found")
		}
		s.log.Error("failed to get review", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get review: %w", op, err)
	}
	return review, nil
}

func (s *reviewService) List(ctx context.Context, q listquery.Query) ([]*models.Review, int, error) {
	const op = "service.ReviewService.List"

	reviews, total, err := s.reviewRepo.ListReviews(ctx, q)
	if err != nil {
		if msg, ok := queryError(err); ok {
			return nil, 0, newError(ErrValidation, "%s", msg)
		}
		s.log.Error("failed to list reviews", slog.String("op", op), slog.Any("error", err))
		return nil, 0, fmt.Errorf("%s: failed to list reviews: %w", op, err)
	}
	return reviews, total, nil
}

// FarmerStats средняя оценка и распределение оценок 1..5
func (s *reviewService) FarmerStats(ctx context.Context, farmerID int64) (*RatingStats, error) {
	const op = "service.ReviewService.FarmerStats"

	if err := ensureFarmer(ctx, s.log, s.userRepo, op, farmerID); err != nil {
		return nil, err
	}

	ratings, err := s.reviewRepo.GetRatingsByFarmer(ctx, farmerID)
	if err != nil {
		s.log.Error("failed to get ratings", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get ratings: %w", op, err)
	}

	stats := &RatingStats{
		FarmerID:           farmerID,
		AverageRating:      averageRating(ratings),
		TotalReviews:       len(ratings),
		RatingDistribution: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0},
	}
	for _, r := range ratings {
		stats.RatingDistribution[r]++
	}
	return stats, nil
}

// averageRating среднее, округлённое до одного знака; 0 без отзывов
func averageRating(ratings []int) decimal.Decimal {
	if len(ratings) == 0 {
		return decimal.Zero
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	return decimal.NewFromInt(int64(sum)).Div(decimal.NewFromInt(int64(len(ratings)))).Round(1)
}

// ensureFarmer проверяет, что пользователь существует и является фермером
func ensureFarmer(ctx context.Context, log *slog.Logger, userRepo storage.UserStorage, op string, farmerID int64) error {
	user, err := userRepo.GetUserByID(ctx, farmerID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return newError(ErrNotFound, "Farmer not found")
		}
		log.Error("failed to get farmer", slog.String("op", op), slog.Any("error", err))
		return fmt.Errorf("%s: failed to get farmer: %w", op, err)
	}
	if user.Role != models.RoleFarmer {
		return newError(ErrNotFound, "Farmer not found")
	}
	return nil
}
