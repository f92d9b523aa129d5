package handlers

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/linemk/farmsync/internal/lib/api/response"
	"github.com/linemk/farmsync/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// FarmerDashboardHandler GET /api/dashboard/farmer
func FarmerDashboardHandler(log *slog.Logger, dashboardService service.DashboardService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.FarmerDashboardHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := actorFrom(w, r, logger)
		if !ok {
			return
		}
		dashboard, err := dashboardService.FarmerStats(r.Context(), actor.ID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeOK(w, logger, http.StatusOK, dashboard)
	}
}

// MonthlySalesHandler GET /api/dashboard/farmer/monthly-sales?year=
func MonthlySalesHandler(log *slog.Logger, dashboardService service.DashboardService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.MonthlySalesHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := actorFrom(w, r, logger)
		if !ok {
			return
		}
		monthly, err := dashboardService.MonthlySales(r.Context(), actor.ID, yearParam(r))
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeOK(w, logger, http.StatusOK, monthly)
	}
}

type salesByCropResponse struct {
	Success bool                `json:"success"`
	Period  string              `json:"period"`
	Data    []service.CropSales `json:"data"`
}

// SalesByCropHandler GET /api/dashboard/farmer/sales-by-crop?period=week|month|year
func SalesByCropHandler(log *slog.Logger, dashboardService service.DashboardService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.SalesByCropHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := actorFrom(w, r, logger)
		if !ok {
			return
		}
		period, sales, err := dashboardService.SalesByCrop(r.Context(), actor.ID, r.URL.Query().Get("period"))
		if err != nil {
			writeError(w, logger, err)
			return
		}
		if err := response.JSON(w, http.StatusOK, salesByCropResponse{Success: true, Period: period, Data: sales}); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
		}
	}
}

type customerRevenueResponse struct {
	Success bool `json:"success"`
	*service.CustomerRevenueReport
}

// RevenueByCustomerHandler GET /api/dashboard/farmer/revenue-by-customer?year=
func RevenueByCustomerHandler(log *slog.Logger, dashboardService service.DashboardService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.RevenueByCustomerHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := actorFrom(w, r, logger)
		if !ok {
			return
		}
		report, err := dashboardService.RevenueByCustomer(r.Context(), actor.ID, yearParam(r))
		if err != nil {
			writeError(w, logger, err)
			return
		}
		if err := response.JSON(w, http.StatusOK, customerRevenueResponse{Success: true, CustomerRevenueReport: report}); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
		}
	}
}

// ExportSalesHandler GET /api/dashboard/farmer/export?year= отдаёт xlsx-файл.
// Книга собирается в буфер, чтобы ошибка сборки вернулась обычным JSON-ответом.
func ExportSalesHandler(log *slog.Logger, dashboardService service.DashboardService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ExportSalesHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := actorFrom(w, r, logger)
		if !ok {
			return
		}
		year := yearParam(r)
		if year == 0 {
			year = time.Now().Year()
		}

		var buf bytes.Buffer
		if err := dashboardService.ExportSales(r.Context(), actor.ID, year, &buf); err != nil {
			writeError(w, logger, err)
			return
		}

		w.Header().Set("Content-Type", xlsxContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="sales-%d.xlsx"`, year))
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		w.WriteHeader(http.StatusOK)
		if _, err := buf.WriteTo(w); err != nil {
			logger.Error("failed to write workbook", slog.Any("error", err))
		}
	}
}
