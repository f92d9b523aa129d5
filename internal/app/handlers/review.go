package handlers

import (
	"log/slog"
	"net/http"

	"github.com/linemk/farmsync/internal/service"
)

// ReviewRequest обязательность полей и диапазон оценки проверяет сервис
type ReviewRequest struct {
	Farmer  int64  `json:"farmer"`
	OrderID int64  `json:"orderId"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type ReviewUpdateRequest struct {
	Rating  *int    `json:"rating"`
	Comment *string `json:"comment"`
}

// ListReviewsHandler GET /api/reviews
func ListReviewsHandler(log *slog.Logger, reviewService service.ReviewService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListReviewsHandler"
		logger := log.With(slog.String("op", op))

		q, ok := parseQuery(w, r, logger)
		if !ok {
			return
		}
		reviews, total, err := reviewService.List(r.Context(), q)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writePage(w, logger, q, reviews, total)
	}
}

// GetReviewHandler GET /api/reviews/{id}
func GetReviewHandler(log *slog.Logger, reviewService service.ReviewService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.GetReviewHandler"
		logger := log.With(slog.String("op", op))

		id, ok := idParam(w, r, logger, "id")
		if !ok {
			return
		}
		review, err := reviewService.Get(r.Context(), id)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeOK(w, logger, http.StatusOK, review)
	}
}

// FarmerRatingStatsHandler GET /api/reviews/stats/{farmerId}
func FarmerRatingStatsHandler(log *slog.Logger, reviewService service.ReviewService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.FarmerRatingStatsHandler"
		logger := log.With(slog.String("op", op))

		farmerID, ok := idParam(w, r, logger, "farmerId")
		if !ok {
			return
		}
		stats, err := reviewService.FarmerStats(r.Context(), farmerID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeOK(w, logger, http.StatusOK, stats)
	}
}

// CreateReviewHandler POST /api/reviews
func CreateReviewHandler(log *slog.Logger, reviewService service.ReviewService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CreateReviewHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := actorFrom(w, r, logger)
		if !ok {
			return
		}
		var req ReviewRequest
		if !decodeAndValidate(w, r, logger, &req) {
			return
		}

		review, err := reviewService.Create(r.Context(), actor, service.ReviewInput{
			FarmerID: req.Farmer,
			OrderID:  req.OrderID,
			Rating:   req.Rating,
			Comment:  req.Comment,
		})
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeOK(w, logger, http.StatusCreated, review)
	}
}

// UpdateReviewHandler PUT /api/reviews/{id}
func UpdateReviewHandler(log *slog.Logger, reviewService service.ReviewService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.UpdateReviewHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := actorFrom(w, r, logger)
		if !ok {
			return
		}
		id, ok := idParam(w, r, logger, "id")
		if !ok {
			return
		}
		var req ReviewUpdateRequest
		if !decodeAndValidate(w, r, logger, &req) {
			return
		}

		review, err := reviewService.Update(r.Context(), actor, id, service.ReviewPatch{Rating: req.Rating, Comment: req.Comment})
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeOK(w, logger, http.StatusOK, review)
	}
}

// DeleteReviewHandler DELETE /api/reviews/{id}
func DeleteReviewHandler(log *slog.Logger, reviewService service.ReviewService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.DeleteReviewHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := actorFrom(w, r, logger)
		if !ok {
			return
		}
		id, ok := idParam(w, r, logger, "id")
		if !ok {
			return
		}
		if err := reviewService.Delete(r.Context(), actor, id); err != nil {
			writeError(w, logger, err)
			return
		}
		writeOK(w, logger, http.StatusOK, struct{}{})
	}
}
