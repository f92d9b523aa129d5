package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/linemk/farmsync/internal/domain/models"
	"github.com/tealeg/xlsx"
)

const (
	SalesSheet   = "Sales"
	MonthlySheet = "Monthly"
)

var salesHeaders = []string{"Order", "Date", "Crop", "Quantity", "Unit Price", "Subtotal", "Status", "Customer Type"}

// ExportSales выгружает неотменённые продажи фермера за год: лист Sales по позициям и лист Monthly по месяцам
func (s *dashboardService) ExportSales(ctx context.Context, farmerID int64, year int, w io.Writer) error {
	const op = "service.DashboardService.ExportSales"
	logger := s.log.With(slog.String("op", op), slog.Int64("farmerID", farmerID))

	year = s.year(year)
	loc := s.now().Location()
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, loc)
	to := from.AddDate(1, 0, 0).Add(-time.Nanosecond)

	orders, err := s.orderRepo.ListFarmerOrdersBetween(ctx, farmerID, from, to)
	if err != nil {
		logger.Error("failed to load orders", slog.Any("error", err))
		return fmt.Errorf("%s: failed to load orders: %w", op, err)
	}

	file := xlsx.NewFile()
	sheet, err := file.AddSheet(SalesSheet)
	if err != nil {
		return fmt.Errorf("%s: failed to create sheet: %w", op, err)
	}
	addHeader(sheet, salesHeaders)

	monthly := make([]sales, 12)
	for _, order := range orders {
		created := order.CreatedAt.In(loc)
		customer := models.CustomerTypeOf(order.BuyerRole)
		for _, item := range order.ItemsOf(farmerID) {
			monthly[created.Month()-1].add(item)

			row := sheet.AddRow()
			row.AddCell().SetString(orderNumber(order.ID))
			row.AddCell().SetString(created.Format(time.DateOnly))
			row.AddCell().SetString(item.CropName)
			row.AddCell().SetInt(item.Quantity)
			row.AddCell().SetFloat(item.Price.InexactFloat64())
			row.AddCell().SetFloat(item.Subtotal().InexactFloat64())
			row.AddCell().SetString(string(order.Status))
			row.AddCell().SetString(string(customer))
		}
	}

	monthSheet, err := file.AddSheet(MonthlySheet)
	if err != nil {
		return fmt.Errorf("%s: failed to create sheet: %w", op, err)
	}
	addHeader(monthSheet, []string{"Month", "Revenue", "Quantity"})
	for i, m := range monthly {
		row := monthSheet.AddRow()
		row.AddCell().SetString(monthLabels[i])
		row.AddCell().SetFloat(m.revenue.InexactFloat64())
		row.AddCell().SetInt(m.quantity)
	}

	if err := file.Write(w); err != nil {
		logger.Error("failed to write workbook", slog.Any("error", err))
		return fmt.Errorf("%s: failed to write workbook: %w", op, err)
	}

	logger.Info("sales exported", slog.Int("year", year), slog.Int("orders", len(orders)))
	return nil
}

func addHeader(sheet *xlsx.Sheet, headers []string) {
	row := sheet.AddRow()
	for _, h := range headers {
		row.AddCell().SetString(h)
	}
}
