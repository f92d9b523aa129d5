package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/linemk/farmsync/internal/domain/models"
	"github.com/linemk/farmsync/internal/lib/listquery"
	"github.com/linemk/farmsync/internal/storage"
)

type OrderService interface {
	Place(ctx context.Context, actor Actor, in PlaceOrderInput) (*models.Order, error)
	Get(ctx context.Context, actor Actor, id int64) (*models.Order, error)
	ListMine(ctx context.Context, actor Actor, q listquery.Query) ([]*models.Order, int, error)
	ListForFarmer(ctx context.Context, actor Actor, q listquery.Query) ([]*models.Order, int, error)
	UpdateStatus(ctx context.Context, actor Actor, id int64, in StatusInput) (*models.Order, error)
	Cancel(ctx context.Context, actor Actor, id int64, comment string) (*models.Order, error)
}

type PlaceItem struct {
	CropID   int64
	Quantity int
}

type PlaceOrderInput struct {
	Items           []PlaceItem
	ShippingAddress models.ShippingAddress
	PaymentMethod   models.PaymentMethod
}

type StatusInput struct {
	Status  models.OrderStatus
	Comment string
	IsPaid  bool
}

type orderService struct {
	log       *slog.Logger
	db        *sql.DB
	cropRepo  storage.CropStorage
	orderRepo storage.OrderStorage
}

func NewOrderService(log *slog.Logger, db *sql.DB, cropRepo storage.CropStorage, orderRepo storage.OrderStorage) OrderService {
	return &orderService{
		log:       log,
		db:        db,
		cropRepo:  cropRepo,
		orderRepo: orderRepo,
	}
}

// Place оформляет заказ целиком в одной транзакции.
// Все позиции проверяются до первого списания остатка; любая ошибка откатывает всё.
func (s *orderService) Place(ctx context.Context, actor Actor, in PlaceOrderInput) (*models.Order, error) {
	const op = "service.OrderService.Place"
	logger := s.log.With(slog.String("op", op), slog.Int64("buyerID", actor.ID))

	if len(in.Items) == 0 {
		return nil, newError(ErrValidation, "No order items")
	}
	for _, item := range in.Items {
		if item.Quantity < 1 {
			return nil, newError(ErrValidation, "Quantity must be at least 1")
		}
	}
	if !in.PaymentMethod.Valid() {
		return nil, newError(ErrValidation, "Invalid payment method %q", in.PaymentMethod)
	}
	address := in.ShippingAddress
	if address.Country == "" {
		address.Country = models.DefaultCountry
	}

	logger.Info("starting order transaction", slog.Int("items", len(in.Items)))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	crops, err := s.lockCrops(ctx, tx, in.Items)
	if err != nil {
		rollback(tx, logger)
		logger.Error("failed to lock crops", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to lock crops: %w", op, err)
	}

	// requested накапливает количество по культуре, если она встречается в заказе несколько раз
	requested := make(map[int64]int, len(crops))
	items := make([]models.OrderItem, 0, len(in.Items))
	for _, item := range in.Items {
		crop := crops[item.CropID]
		if crop == nil {
			rollback(tx, logger)
			return nil, newError(ErrNotFound, "Crop not found with id %d", item.CropID)
		}
		if !crop.PublishedToMarketplace {
			rollback(tx, logger)
			return nil, newError(ErrInvalidState, "Crop %s is not available in the marketplace", crop.Name)
		}
		requested[crop.ID] += item.Quantity
		if requested[crop.ID] > crop.Quantity {
			rollback(tx, logger)
			logger.Warn("insufficient quantity", slog.Int64("cropID", crop.ID),
				slog.Int("available", crop.Quantity), slog.Int("requested", requested[crop.ID]))
			return nil, newError(ErrInsufficientQuantity, "Not enough quantity available for %s", crop.Name)
		}
		if item.Quantity < crop.MinOrder {
			rollback(tx, logger)
			return nil, newError(ErrBelowMinimumOrder, "Minimum order quantity for %s is %d", crop.Name, crop.MinOrder)
		}

		// цена фиксируется на момент заказа
		items = append(items, models.OrderItem{
			CropID:   crop.ID,
			CropName: crop.Name,
			FarmerID: crop.FarmerID,
			Quantity: item.Quantity,
			Price:    crop.Price,
		})
	}

	now := time.Now()
	order := &models.Order{
		BuyerID:         actor.ID,
		BuyerRole:       actor.Role,
		Items:           items,
		ShippingAddress: address,
		PaymentMethod:   in.PaymentMethod,
		TotalPrice:      models.ComputeTotal(items),
		Status:          models.StatusPending,
		StatusUpdates: []models.StatusUpdate{
			{Status: models.StatusPending, Comment: "Order placed", UpdatedAt: now},
		},
	}

	if err := s.orderRepo.CreateOrderTx(ctx, tx, order); err != nil {
		rollback(tx, logger)
		logger.Error("failed to create order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to create order: %w", op, err)
	}

	for _, item := range items {
		if err := s.cropRepo.AdjustQuantityTx(ctx, tx, item.CropID, -item.Quantity); err != nil {
			rollback(tx, logger)
			logger.Error("failed to decrement crop quantity", slog.Int64("cropID", item.CropID), slog.Any("error", err))
			return nil, fmt.Errorf("%s: failed to decrement crop quantity: %w", op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	logger.Info("order placed", slog.Int64("orderID", order.ID), slog.String("total", order.TotalPrice.String()))
	return order, nil
}

// lockCrops блокирует культуры заказа по возрастанию id, чтобы параллельные заказы не взаимоблокировались.
// Отсутствующая культура попадает в результат как nil.
func (s *orderService) lockCrops(ctx context.Context, tx *sql.Tx, items []PlaceItem) (map[int64]*models.Crop, error) {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.CropID)
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	crops := make(map[int64]*models.Crop, len(ids))
	for _, id := range ids {
		crop, err := s.cropRepo.LockCropByIDTx(ctx, tx, id)
		if err != nil {
			if errors.Is(err, storage.ErrCropNotFound) {
				crops[id] = nil
				continue
			}
			return nil, err
		}
		crops[id] = crop
	}
	return crops, nil
}

func (s *orderService) Get(ctx context.Context, actor Actor, id int64) (*models.Order, error) {
	const op = "service.OrderService.Get"

	order, err := s.orderRepo.GetOrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrOrderNotFound) {
			return nil, newError(ErrNotFound, "Order not found")
		}
		s.log.Error("failed to get order", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get order: %w", op, err)
	}
	if order.BuyerID != actor.ID && !order.HasFarmer(actor.ID) && !actor.IsAdmin() {
		return nil, newError(ErrForbidden, "You are not authorized to view this order")
	}
	return order, nil
}

func (s *orderService) ListMine(ctx context.Context, actor Actor, q listquery.Query) ([]*models.Order, int, error) {
	return s.list(ctx, "service.OrderService.ListMine", storage.OrderScope{BuyerID: actor.ID}, q)
}

func (s *orderService) ListForFarmer(ctx context.Context, actor Actor, q listquery.Query) ([]*models.Order, int, error) {
	if actor.Role != models.RoleFarmer {
		return nil, 0, newError(ErrForbidden, "Only farmers can access this route")
	}
	return s.list(ctx, "service.OrderService.ListForFarmer", storage.OrderScope{FarmerID: actor.ID}, q)
}

func (s *orderService) list(ctx context.Context, op string, scope storage.OrderScope, q listquery.Query) ([]*models.Order, int, error) {
	orders, total, err := s.orderRepo.ListOrders(ctx, scope, q)
	if err != nil {
		if msg, ok := queryError(err); ok {
			return nil, 0, newError(ErrValidation, "%s", msg)
		}
		s.log.Error("failed to list orders", slog.String("op", op), slog.Any("error", err))
		return nil, 0, fmt.Errorf("%s: failed to list orders: %w", op, err)
	}
	if orders == nil {
		orders = []*models.Order{}
	}
	return orders, total, nil
}

// UpdateStatus переводит заказ в новый статус. Доступно фермеру из позиций заказа и администратору.
// Переход в Cancelled возвращает остатки на склад так же, как Cancel.
// Тот же статус с isPaid только отмечает оплату, если она ещё не отмечена.
func (s *orderService) UpdateStatus(ctx context.Context, actor Actor, id int64, in StatusInput) (*models.Order, error) {
	const op = "service.OrderService.UpdateStatus"
	logger := s.log.With(slog.String("op", op), slog.Int64("orderID", id), slog.Int64("userID", actor.ID))

	if in.Status == "" {
		return nil, newError(ErrValidation, "Please provide a status")
	}
	if !in.Status.Valid() {
		return nil, newError(ErrValidation, "Invalid status %q", in.Status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	order, err := s.lockOrder(ctx, tx, op, id)
	if err != nil {
		rollback(tx, logger)
		return nil, err
	}
	if !order.HasFarmer(actor.ID) && !actor.IsAdmin() {
		rollback(tx, logger)
		logger.Warn("not a farmer of this order")
		return nil, newError(ErrForbidden, "You are not authorized to update this order")
	}
	// отметка об оплате без смены статуса, в том числе после доставки
	paymentOnly := in.Status == order.Status && in.IsPaid && !order.IsPaid && order.Status != models.StatusCancelled
	if !paymentOnly && !order.Status.CanTransitionTo(in.Status) {
		rollback(tx, logger)
		return nil, newError(ErrInvalidState, "Cannot change order status from %s to %s", order.Status, in.Status)
	}

	now := time.Now()
	comment := strings.TrimSpace(in.Comment)
	switch {
	case comment != "":
	case paymentOnly:
		comment = "Payment received"
	default:
		comment = fmt.Sprintf("Order status updated to %s", in.Status)
	}

	order.Status = in.Status
	if in.Status == models.StatusDelivered && !order.IsDelivered {
		order.IsDelivered = true
		order.DeliveredAt = &now
	}
	if in.IsPaid && !order.IsPaid {
		order.IsPaid = true
		order.PaidAt = &now
	}
	if in.Status == models.StatusCancelled {
		if err := s.restoreStock(ctx, tx, order); err != nil {
			rollback(tx, logger)
			logger.Error("failed to restore stock", slog.Any("error", err))
			return nil, fmt.Errorf("%s: failed to restore stock: %w", op, err)
		}
	}

	update := models.StatusUpdate{Status: in.Status, Comment: comment, UpdatedAt: now}
	if err := s.orderRepo.UpdateOrderStatusTx(ctx, tx, order, update); err != nil {
		rollback(tx, logger)
		logger.Error("failed to update order status", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to update order status: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	order.StatusUpdates = append(order.StatusUpdates, update)
	logger.Info("order status updated", slog.String("status", string(order.Status)))
	return order, nil
}

// Cancel отменяет заказ в статусе Pending и возвращает остатки на склад.
// Отменить может покупатель, фермер из позиций заказа или администратор.
func (s *orderService) Cancel(ctx context.Context, actor Actor, id int64, comment string) (*models.Order, error) {
	const op = "service.OrderService.Cancel"
	logger := s.log.With(slog.String("op", op), slog.Int64("orderID", id), slog.Int64("userID", actor.ID))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	order, err := s.lockOrder(ctx, tx, op, id)
	if err != nil {
		rollback(tx, logger)
		return nil, err
	}
	if order.BuyerID != actor.ID && !order.HasFarmer(actor.ID) && !actor.IsAdmin() {
		rollback(tx, logger)
		logger.Warn("not allowed to cancel")
		return nil, newError(ErrForbidden, "You are not authorized to cancel this order")
	}
	if order.Status != models.StatusPending {
		rollback(tx, logger)
		return nil, newError(ErrInvalidState, "Order cannot be cancelled as it is already being processed")
	}

	if err := s.restoreStock(ctx, tx, order); err != nil {
		rollback(tx, logger)
		logger.Error("failed to restore stock", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to restore stock: %w", op, err)
	}

	comment = strings.TrimSpace(comment)
	if comment == "" {
		comment = "Order cancelled by user"
	}
	order.Status = models.StatusCancelled
	update := models.StatusUpdate{Status: models.StatusCancelled, Comment: comment, UpdatedAt: time.Now()}
	if err := s.orderRepo.UpdateOrderStatusTx(ctx, tx, order, update); err != nil {
		rollback(tx, logger)
		logger.Error("failed to cancel order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to cancel order: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	order.StatusUpdates = append(order.StatusUpdates, update)
	logger.Info("order cancelled")
	return order, nil
}

func (s *orderService) lockOrder(ctx context.Context, tx *sql.Tx, op string, id int64) (*models.Order, error) {
	order, err := s.orderRepo.LockOrderByIDTx(ctx, tx, id)
	if err != nil {
		if errors.Is(err, storage.ErrOrderNotFound) {
			return nil, newError(ErrNotFound, "Order not found")
		}
		s.log.Error("failed to lock order", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to lock order: %w", op, err)
	}
	return order, nil
}

// restoreStock возвращает количество каждой позиции на культуру; позиции удалённых культур пропускаются
func (s *orderService) restoreStock(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	for _, item := range order.Items {
		if item.CropID == 0 {
			continue
		}
		err := s.cropRepo.AdjustQuantityTx(ctx, tx, item.CropID, item.Quantity)
		if errors.Is(err, storage.ErrCropNotFound) {
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// rollback откатывает транзакцию и логирует неудачный откат
func rollback(tx *sql.Tx, logger *slog.Logger) {
	if rbErr := tx.Rollback(); rbErr != nil {
		logger.Error("transaction rollback failed", slog.Any("error", rbErr))
	}
}
