package handlers

import (
	"log/slog"
	"net/http"

	"github.com/linemk/farmsync/internal/domain/models"
	"github.com/linemk/farmsync/internal/service"
)

type OrderItemRequest struct {
	Crop     int64 `json:"crop" validate:"required"`
	Quantity int   `json:"quantity" validate:"required,gte=1"`
}

type AddressRequest struct {
	Street     string `json:"street" validate:"required"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state" validate:"required"`
	PostalCode string `json:"postalCode" validate:"required"`
	Country    string `json:"country"`
}

// OrderRequest тело POST /api/orders; пустой список позиций отклоняет сервис
type OrderRequest struct {
	OrderItems      []OrderItemRequest `json:"orderItems" validate:"dive"`
	ShippingAddress AddressRequest     `json:"shippingAddress"`
	PaymentMethod   string             `json:"paymentMethod" validate:"required,oneof=COD UPI NetBanking CreditCard"`
}

type StatusRequest struct {
	Status  string `json:"status"`
	Comment string `json:"comment" validate:"max=500"`
	IsPaid  bool   `json:"isPaid"`
}

type CancelRequest struct {
	Comment string `json:"comment" validate:"max=500"`
}

// CreateOrderHandler POST /api/orders
func CreateOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CreateOrderHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := actorFrom(w, r, logger)
		if !ok {
			return
		}
		var req OrderRequest
		if !decodeAndValidate(w, r, logger, &req) {
			return
		}

		items := make([]service.PlaceItem, 0, len(req.OrderItems))
		for _, item := range req.OrderItems {
			items = append(items, service.PlaceItem{CropID: item.Crop, Quantity: item.Quantity})
		}
		order, err := orderService.Place(r.Context(), actor, service.PlaceOrderInput{
			Items: items,
			ShippingAddress: models.ShippingAddress{
				Street:     req.ShippingAddress.Street,
				City:       req.ShippingAddress.City,
				State:      req.ShippingAddress.State,
				PostalCode: req.ShippingAddress.PostalCode,
				Country:    req.ShippingAddress.Country,
			},
			PaymentMethod: models.PaymentMethod(req.PaymentMethod),
		})
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeOK(w, logger, http.StatusCreated, order)
	}
}

// GetOrderHandler GET /api/orders/{id}
func GetOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.GetOrderHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := actorFrom(w, r, logger)
		if !ok {
			return
		}
		id, ok := idParam(w, r, logger, "id")
		if !ok {
			return
		}
		order, err := orderService.Get(r.Context(), actor, id)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeOK(w, logger, http.StatusOK, order)
	}
}

// MyOrdersHandler GET /api/orders/myorders
func MyOrdersHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.MyOrdersHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := actorFrom(w, r, logger)
		if !ok {
			return
		}
		q, ok := parseQuery(w, r, logger)
		if !ok {
			return
		}
		orders, total, err := orderService.ListMine(r.Context(), actor, q)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writePage(w, logger, q, orders, total)
	}
}

// FarmerOrdersHandler GET /api/orders/farmer
func FarmerOrdersHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.FarmerOrdersHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := actorFrom(w, r, logger)
		if !ok {
			return
		}
		q, ok := parseQuery(w, r, logger)
		if !ok {
			return
		}
		orders, total, err := orderService.ListForFarmer(r.Context(), actor, q)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writePage(w, logger, q, orders, total)
	}
}

// UpdateOrderStatusHandler PUT /api/orders/{id}/status
func UpdateOrderStatusHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.UpdateOrderStatusHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := actorFrom(w, r, logger)
		if !ok {
			return
		}
		id, ok := idParam(w, r, logger, "id")
		if !ok {
			return
		}
		var req StatusRequest
		if !decodeAndValidate(w, r, logger, &req) {
			return
		}

		order, err := orderService.UpdateStatus(r.Context(), actor, id, service.StatusInput{
			Status:  models.OrderStatus(req.Status),
			Comment: req.Comment,
			IsPaid:  req.IsPaid,
		})
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeOK(w, logger, http.StatusOK, order)
	}
}

// CancelOrderHandler PUT /api/orders/{id}/cancel, тело с комментарием необязательно
func CancelOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CancelOrderHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := actorFrom(w, r, logger)
		if !ok {
			return
		}
		id, ok := idParam(w, r, logger, "id")
		if !ok {
			return
		}
		var req CancelRequest
		if !decodeOptional(w, r, logger, &req) {
			return
		}

		order, err := orderService.Cancel(r.Context(), actor, id, req.Comment)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeOK(w, logger, http.StatusOK, order)
	}
}
