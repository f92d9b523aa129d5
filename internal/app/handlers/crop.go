package handlers

import (
	"log/slog"
	"net/http"

	"github.com/linemk/farmsync/internal/domain/models"
	"github.com/linemk/farmsync/internal/service"
	"github.com/shopspring/decimal"
)

type CropRequest struct {
	Name                   string          `json:"name" validate:"required,max=100"`
	Category               string          `json:"category" validate:"required"`
	Quantity               int             `json:"quantity" validate:"required,gte=1"`
	Price                  decimal.Decimal `json:"price" validate:"required,gte=1"`
	Description            string          `json:"description" validate:"required,max=1000"`
	HarvestDate            Date            `json:"harvestDate"`
	Image                  string          `json:"image"`
	MinOrder               int             `json:"minOrder" validate:"omitempty,gte=1"`
	AvailableUntil         Date            `json:"availableUntil"`
	PublishedToMarketplace bool            `json:"publishedToMarketplace"`
}

// CropUpdateRequest частичное обновление; отсутствующие поля не меняются
type CropUpdateRequest struct {
	Name                   *string          `json:"name" validate:"omitempty,max=100"`
	Category               *string          `json:"category"`
	Quantity               *int             `json:"quantity" validate:"omitempty,gte=0"`
	Price                  *decimal.Decimal `json:"price" validate:"omitempty,gte=1"`
	Description            *string          `json:"description" validate:"omitempty,max=1000"`
	HarvestDate            *Date            `json:"harvestDate"`
	Image                  *string          `json:"image"`
	MinOrder               *int             `json:"minOrder" validate:"omitempty,gte=1"`
	AvailableUntil         *Date            `json:"availableUntil"`
	PublishedToMarketplace *bool            `json:"publishedToMarketplace"`
}

func (req CropUpdateRequest) patch() service.CropPatch {
	p := service.CropPatch{
		Name:                   req.Name,
		Quantity:               req.Quantity,
		Price:                  req.Price,
		Description:            req.Description,
		Image:                  req.Image,
		MinOrder:               req.MinOrder,
		PublishedToMarketplace: req.PublishedToMarketplace,
	}
	if req.Category != nil {
		category := models.Category(*req.Category)
		p.Category = &category
	}
	if req.HarvestDate != nil {
		p.HarvestDate = &req.HarvestDate.Time
	}
	if req.AvailableUntil != nil {
		p.AvailableUntil = &req.AvailableUntil.Time
	}
	return p
}

// ListCropsHandler GET /api/crops
func ListCropsHandler(log *slog.Logger, cropService service.CropService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListCropsHandler"
		logger := log.With(slog.String("op", op))

		q, ok := parseQuery(w, r, logger)
		if !ok {
			return
		}
		crops, total, err := cropService.List(r.Context(), q)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writePage(w, logger, q, crops, total)
	}
}

// MarketplaceCropsHandler GET /api/crops/marketplace
func MarketplaceCropsHandler(log *slog.Logger, cropService service.CropService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.MarketplaceCropsHandler"
		logger := log.With(slog.String("op", op))

		q, ok := parseQuery(w, r, logger)
		if !ok {
			return
		}
		crops, total, err := cropService.ListMarketplace(r.Context(), q)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writePage(w, logger, q, crops, total)
	}
}

// FarmerCropsHandler GET /api/crops/farmer/{farmerId}
func FarmerCropsHandler(log *slog.Logger, cropService service.CropService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.FarmerCropsHandler"
		logger := log.With(slog.String("op", op))

		farmerID, ok := idParam(w, r, logger, "farmerId")
		if !ok {
			return
		}
		q, ok := parseQuery(w, r, logger)
		if !ok {
			return
		}
		crops, total, err := cropService.ListByFarmer(r.Context(), farmerID, q)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writePage(w, logger, q, crops, total)
	}
}

// GetCropHandler GET /api/crops/{id}
func GetCropHandler(log *slog.Logger, cropService service.CropService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.GetCropHandler"
		logger := log.With(slog.String("op", op))

		id, ok := idParam(w, r, logger, "id")
		if !ok {
			return
		}
		crop, err := cropService.Get(r.Context(), id)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeOK(w, logger, http.StatusOK, crop)
	}
}

// CreateCropHandler POST /api/crops
func CreateCropHandler(log *slog.Logger, cropService service.CropService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CreateCropHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := actorFrom(w, r, logger)
		if !ok {
			return
		}
		var req CropRequest
		if !decodeAndValidate(w, r, logger, &req) {
			return
		}

		crop, err := cropService.Create(r.Context(), actor, service.CropInput{
			Name:                   req.Name,
			Category:               models.Category(req.Category),
			Quantity:               req.Quantity,
			Price:                  req.Price,
			Description:            req.Description,
			HarvestDate:            req.HarvestDate.Time,
			Image:                  req.Image,
			MinOrder:               req.MinOrder,
			AvailableUntil:         req.AvailableUntil.Time,
			PublishedToMarketplace: req.PublishedToMarketplace,
		})
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeOK(w, logger, http.StatusCreated, crop)
	}
}

// UpdateCropHandler PUT /api/crops/{id}
func UpdateCropHandler(log *slog.Logger, cropService service.CropService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.UpdateCropHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := actorFrom(w, r, logger)
		if !ok {
			return
		}
		id, ok := idParam(w, r, logger, "id")
		if !ok {
			return
		}
		var req CropUpdateRequest
		if !decodeAndValidate(w, r, logger, &req) {
			return
		}

		crop, err := cropService.Update(r.Context(), actor, id, req.patch())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeOK(w, logger, http.StatusOK, crop)
	}
}

// DeleteCropHandler DELETE /api/crops/{id}
func DeleteCropHandler(log *slog.Logger, cropService service.CropService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.DeleteCropHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := actorFrom(w, r, logger)
		if !ok {
			return
		}
		id, ok := idParam(w, r, logger, "id")
		if !ok {
			return
		}
		if err := cropService.Delete(r.Context(), actor, id); err != nil {
			writeError(w, logger, err)
			return
		}
		writeOK(w, logger, http.StatusOK, struct{}{})
	}
}
