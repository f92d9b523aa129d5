package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/linemk/farmsync/internal/domain/models"
	"github.com/linemk/farmsync/internal/lib/listquery"
	"github.com/linemk/farmsync/internal/storage"
	"github.com/shopspring/decimal"
)

type CropService interface {
	List(ctx context.Context, q listquery.Query) ([]*models.Crop, int, error)
	// ListMarketplace только опубликованные культуры
	ListMarketplace(ctx context.Context, q listquery.Query) ([]*models.Crop, int, error)
	ListByFarmer(ctx context.Context, farmerID int64, q listquery.Query) ([]*models.Crop, int, error)
	Get(ctx context.Context, id int64) (*models.Crop, error)
	Create(ctx context.Context, actor Actor, in CropInput) (*models.Crop, error)
	Update(ctx context.Context, actor Actor, id int64, patch CropPatch) (*models.Crop, error)
	Delete(ctx context.Context, actor Actor, id int64) error
}

type CropInput struct {
	Name                   string
	Category               models.Category
	Quantity               int
	Price                  decimal.Decimal
	Description            string
	HarvestDate            time.Time
	Image                  string
	MinOrder               int
	AvailableUntil         time.Time
	PublishedToMarketplace bool
}

// CropPatch частичное обновление, nil-поля не меняются
type CropPatch struct {
	Name                   *string
	Category               *models.Category
	Quantity               *int
	Price                  *decimal.Decimal
	Description            *string
	HarvestDate            *time.Time
	Image                  *string
	MinOrder               *int
	AvailableUntil         *time.Time
	PublishedToMarketplace *bool
}

type cropService struct {
	log      *slog.Logger
	db       *sql.DB
	cropRepo storage.CropStorage
	userRepo storage.UserStorage
}

func NewCropService(log *slog.Logger, db *sql.DB, cropRepo storage.CropStorage, userRepo storage.UserStorage) CropService {
	return &cropService{
		log:      log,
		db:       db,
		cropRepo: cropRepo,
		userRepo: userRepo,
	}
}

func (s *cropService) List(ctx context.Context, q listquery.Query) ([]*models.Crop, int, error) {
	const op = "service.CropService.List"

	crops, total, err := s.cropRepo.ListCrops(ctx, q)
	if err != nil {
		return nil, 0, s.listError(op, err)
	}
	return crops, total, nil
}

func (s *cropService) ListMarketplace(ctx context.Context, q listquery.Query) ([]*models.Crop, int, error) {
	q.Where("publishedToMarketplace", "true")
	return s.List(ctx, q)
}

func (s *cropService) ListByFarmer(ctx context.Context, farmerID int64, q listquery.Query) ([]*models.Crop, int, error) {
	const op = "service.CropService.ListByFarmer"

	if err := ensureFarmer(ctx, s.log, s.userRepo, op, farmerID); err != nil {
		return nil, 0, err
	}
	q.Where("farmer", strconv.FormatInt(farmerID, 10))
	return s.List(ctx, q)
}

func (s *cropService) Get(ctx context.Context, id int64) (*models.Crop, error) {
	const op = "service.CropService.Get"

	crop, err := s.cropRepo.GetCropByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrCropNotFound) {
			return nil, newError(ErrNotFound, "Crop not found")
		}
		s.log.Error("failed to get crop", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get crop: %w", op, err)
	}
	return crop, nil
}

// Create добавляет культуру от имени фермера
func (s *cropService) Create(ctx context.Context, actor Actor, in CropInput) (*models.Crop, error) {
	const op = "service.CropService.Create"
	logger := s.log.With(slog.String("op", op), slog.Int64("farmerID", actor.ID))

	if actor.Role != models.RoleFarmer {
		return nil, newError(ErrForbidden, "Only farmers can add crops")
	}

	crop := &models.Crop{
		Name:                   strings.TrimSpace(in.Name),
		Category:               in.Category,
		Quantity:               in.Quantity,
		Price:                  in.Price,
		Description:            in.Description,
		HarvestDate:            in.HarvestDate,
		Image:                  in.Image,
		MinOrder:               in.MinOrder,
		AvailableUntil:         in.AvailableUntil,
		PublishedToMarketplace: in.PublishedToMarketplace,
		FarmerID:               actor.ID,
	}
	if crop.Image == "" {
		crop.Image = models.DefaultCropImage
	}
	if crop.MinOrder == 0 {
		crop.MinOrder = 1
	}
	if crop.Quantity < 1 {
		return nil, newError(ErrValidation, "Quantity must be at least 1")
	}
	if err := validateCrop(crop); err != nil {
		return nil, err
	}

	created, err := s.cropRepo.CreateCrop(ctx, crop)
	if err != nil {
		logger.Error("failed to create crop", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to create crop: %w", op, err)
	}

	logger.Info("crop created", slog.Int64("cropID", created.ID))
	return created, nil
}

// Update меняет культуру; доступно владельцу и администратору.
// Строка читается под блокировкой, иначе запись затёрла бы остаток, списанный параллельным заказом.
func (s *cropService) Update(ctx context.Context, actor Actor, id int64, patch CropPatch) (*models.Crop, error) {
	const op = "service.CropService.Update"
	logger := s.log.With(slog.String("op", op), slog.Int64("cropID", id), slog.Int64("userID", actor.ID))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	crop, err := s.cropRepo.LockCropByIDTx(ctx, tx, id)
	if err != nil {
		rollback(tx, logger)
		if errors.Is(err, storage.ErrCropNotFound) {
			return nil, newError(ErrNotFound, "Crop not found")
		}
		logger.Error("failed to lock crop", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to lock crop: %w", op, err)
	}
	if crop.FarmerID != actor.ID && !actor.IsAdmin() {
		rollback(tx, logger)
		logger.Warn("not an owner")
		return nil, newError(ErrForbidden, "You are not authorized to update this crop")
	}

	patch.apply(crop)
	if err := validateCrop(crop); err != nil {
		rollback(tx, logger)
		return nil, err
	}

	if err := s.cropRepo.UpdateCropTx(ctx, tx, crop); err != nil {
		rollback(tx, logger)
		if errors.Is(err, storage.ErrCropNotFound) {
			return nil, newError(ErrNotFound, "Crop not found")
		}
		logger.Error("failed to update crop", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to update crop: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	logger.Info("crop updated")
	return crop, nil
}

func (s *cropService) Delete(ctx context.Context, actor Actor, id int64) error {
	const op = "service.CropService.Delete"
	logger := s.log.With(slog.String("op", op), slog.Int64("cropID", id), slog.Int64("userID", actor.ID))

	crop, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if crop.FarmerID != actor.ID && !actor.IsAdmin() {
		logger.Warn("not an owner")
		return newError(ErrForbidden, "You are not authorized to delete this crop")
	}

	// позиции заказов сохраняют снимок цены, ссылка на культуру обнуляется внешним ключом
	if err := s.cropRepo.DeleteCrop(ctx, id); err != nil {
		if errors.Is(err, storage.ErrCropNotFound) {
			return newError(ErrNotFound, "Crop not found")
		}
		logger.Error("failed to delete crop", slog.Any("error", err))
		return fmt.Errorf("%s: failed to delete crop: %w", op, err)
	}

	logger.Info("crop deleted")
	return nil
}

func (s *cropService) listError(op string, err error) error {
	if msg, ok := queryError(err); ok {
		return newError(ErrValidation, "%s", msg)
	}
	s.log.Error("failed to list crops", slog.String("op", op), slog.Any("error", err))
	return fmt.Errorf("%s: failed to list crops: %w", op, err)
}

// queryError распознаёт ошибки фильтров и сортировки из слоя хранения
func queryError(err error) (string, bool) {
	if errors.Is(err, storage.ErrUnknownField) || errors.Is(err, storage.ErrInvalidFilterValue) {
		return err.Error(), true
	}
	return "", false
}

func (p CropPatch) apply(c *models.Crop) {
	if p.Name != nil {
		c.Name = strings.TrimSpace(*p.Name)
	}
	if p.Category != nil {
		c.Category = *p.Category
	}
	if p.Quantity != nil {
		c.Quantity = *p.Quantity
	}
	if p.Price != nil {
		c.Price = *p.Price
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.HarvestDate != nil {
		c.HarvestDate = *p.HarvestDate
	}
	if p.Image != nil {
		c.Image = *p.Image
	}
	if p.MinOrder != nil {
		c.MinOrder = *p.MinOrder
	}
	if p.AvailableUntil != nil {
		c.AvailableUntil = *p.AvailableUntil
	}
	if p.PublishedToMarketplace != nil {
		c.PublishedToMarketplace = *p.PublishedToMarketplace
	}
}

var minPrice = decimal.NewFromInt(1)

func validateCrop(c *models.Crop) error {
	switch {
	case c.Name == "":
		return newError(ErrValidation, "Please add a crop name")
	case utf8.RuneCountInString(c.Name) > 100:
		return newError(ErrValidation, "Name can not be more than 100 characters")
	case !c.Category.Valid():
		return newError(ErrValidation, "Invalid category %q", c.Category)
	case c.Quantity < 0:
		return newError(ErrValidation, "Quantity can not be negative")
	case c.Price.LessThan(minPrice):
		return newError(ErrValidation, "Price must be at least 1")
	case c.Description == "":
		return newError(ErrValidation, "Please add a description")
	case utf8.RuneCountInString(c.Description) > 1000:
		return newError(ErrValidation, "Description can not be more than 1000 characters")
	case c.MinOrder < 1:
		return newError(ErrValidation, "Minimum order must be at least 1")
	case c.HarvestDate.IsZero():
		return newError(ErrValidation, "Please add a harvest date")
	case c.AvailableUntil.IsZero():
		return newError(ErrValidation, "Please add availability date")
	}
	return nil
}
