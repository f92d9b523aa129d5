package service_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/linemk/farmsync/internal/domain/models"
	"github.com/linemk/farmsync/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func item(cropID int64, name string, farmerID int64, quantity, price int64) models.OrderItem {
	return models.OrderItem{
		CropID:   cropID,
		CropName: name,
		FarmerID: farmerID,
		Quantity: int(quantity),
		Price:    decimal.NewFromInt(price),
	}
}

func day(month time.Month, d int) time.Time {
	return time.Date(2024, month, d, 10, 0, 0, 0, time.UTC)
}

// seedSales четыре заказа фермера 1 за первый квартал 2024 года
func seedSales(orders *fakeOrderRepo) {
	orders.put(&models.Order{
		ID: 1, BuyerID: 10, BuyerRole: models.RoleBuyer, Status: models.StatusPending, CreatedAt: day(time.January, 20),
		Items: []models.OrderItem{item(11, "Rice", 1, 20, 10)},
	})
	orders.put(&models.Order{
		ID: 2, BuyerID: 11, BuyerRole: models.RoleRestaurant, Status: models.StatusProcessing, CreatedAt: day(time.February, 10),
		Items: []models.OrderItem{item(12, "Tomato", 1, 100, 10), item(13, "Onion", 9, 5, 20)},
	})
	orders.put(&models.Order{
		ID: 3, BuyerID: 12, BuyerRole: models.RoleIndividual, Status: models.StatusDelivered, CreatedAt: day(time.March, 12),
		Items: []models.OrderItem{item(14, "Wheat", 1, 50, 32)},
	})
	orders.put(&models.Order{
		ID: 4, BuyerID: 12, BuyerRole: models.RoleIndividual, Status: models.StatusCancelled, CreatedAt: day(time.March, 13),
		Items: []models.OrderItem{item(14, "Wheat", 1, 10, 32)},
	})
}

func newDashboard(now time.Time) (service.DashboardService, *fakeOrderRepo, *fakeReviewRepo) {
	orders := newFakeOrderRepo()
	reviews := newFakeReviewRepo()
	svc := service.NewDashboardService(newTestLogger(), orders, reviews, fixedClock(now))
	return svc, orders, reviews
}

var march15 = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

func TestDashboardService_FarmerStats(t *testing.T) {
	svc, orders, reviews := newDashboard(march15)
	seedSales(orders)
	reviews.ratings[1] = &models.FarmerRating{FarmerID: 1, AverageRating: decimal.RequireFromString("4.5"), TotalReviews: 2}

	d, err := svc.FarmerStats(context.Background(), 1)
	require.NoError(t, err)

	summary := d.Summary
	assertDecimal(t, "2800", summary.TotalRevenue.Value)
	assertDecimal(t, "60", summary.TotalRevenue.Growth)
	assert.Equal(t, 170, summary.TotalSales.Value)
	assertDecimal(t, "-50", summary.TotalSales.Growth)
	assert.Equal(t, service.PendingOrders{Value: 1, Processing: 1}, summary.PendingOrders)
	assertDecimal(t, "4.5", summary.Rating.Value)
	assert.Equal(t, 2, summary.Rating.TotalReviews)

	chart := d.Charts.MonthlyRevenue
	require.Len(t, chart.Labels, 12)
	require.Len(t, chart.Revenue, 12)
	assert.Equal(t, "Jan", chart.Labels[0])
	assertDecimal(t, "200", chart.Revenue[0])
	assertDecimal(t, "1000", chart.Revenue[1])
	assertDecimal(t, "1600", chart.Revenue[2])
	assert.Equal(t, []int{20, 100, 50, 0, 0, 0, 0, 0, 0, 0, 0, 0}, chart.Quantity)

	require.Len(t, d.TopSellingCrops, 3)
	names := []string{d.TopSellingCrops[0].Name, d.TopSellingCrops[1].Name, d.TopSellingCrops[2].Name}
	assert.Equal(t, []string{"Wheat", "Tomato", "Rice"}, names)
	assertDecimal(t, "100", d.TopSellingCrops[0].Growth)
	assertDecimal(t, "-100", d.TopSellingCrops[1].Growth)
	assertDecimal(t, "100", d.TopSellingCrops[2].Growth)
	assert.Equal(t, []service.CropQuantity{
		{Name: "Wheat", Quantity: 50},
		{Name: "Tomato", Quantity: 100},
		{Name: "Rice", Quantity: 20},
	}, d.Charts.CropDistribution)

	buckets := d.Charts.CustomerRevenue
	require.Len(t, buckets, 3)
	assert.Equal(t, "Restaurants", buckets[0].Type)
	assertDecimal(t, "1000", buckets[0].Value)
	assert.Equal(t, "Individual Buyers", buckets[1].Type)
	assertDecimal(t, "1600", buckets[1].Value)
	assert.Equal(t, "Wholesalers", buckets[2].Type)
	assertDecimal(t, "200", buckets[2].Value)
	assert.Nil(t, buckets[0].Percentage)

	require.Len(t, d.RecentSoldCrops, 1)
	recent := d.RecentSoldCrops[0]
	assert.Equal(t, "#ORD-000003", recent.OrderNumber)
	assert.Equal(t, "Wheat", recent.Crop)
	assertDecimal(t, "1600", recent.Total)
	assert.Equal(t, models.StatusDelivered, recent.Status)
	assert.Equal(t, int64(1), orders.lastScope.FarmerID)
}

func TestDashboardService_FarmerStats_Empty(t *testing.T) {
	svc, _, _ := newDashboard(march15)

	d, err := svc.FarmerStats(context.Background(), 1)
	require.NoError(t, err)

	assert.True(t, d.Summary.TotalRevenue.Value.IsZero())
	assertDecimal(t, "100", d.Summary.TotalRevenue.Growth)
	assert.Equal(t, 0, d.Summary.Rating.TotalReviews)
	assert.NotNil(t, d.RecentSoldCrops)
	assert.Empty(t, d.TopSellingCrops)
	assert.Len(t, d.Charts.CustomerRevenue, 3)
}

func TestDashboardService_FarmerStats_GrowthAcrossYearBoundary(t *testing.T) {
	svc, orders, _ := newDashboard(time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC))
	orders.put(&models.Order{
		BuyerID: 10, Status: models.StatusDelivered, CreatedAt: time.Date(2023, time.December, 20, 0, 0, 0, 0, time.UTC),
		Items: []models.OrderItem{item(14, "Wheat", 1, 100, 10)},
	})
	orders.put(&models.Order{
		BuyerID: 10, Status: models.StatusDelivered, CreatedAt: time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC),
		Items: []models.OrderItem{item(14, "Wheat", 1, 150, 10)},
	})

	d, err := svc.FarmerStats(context.Background(), 1)
	require.NoError(t, err)

	// декабрьский заказ участвует только в росте, но не в годовых суммах
	assert.Equal(t, 150, d.Summary.TotalSales.Value)
	assertDecimal(t, "1500", d.Summary.TotalRevenue.Value)
	assertDecimal(t, "50", d.Summary.TotalSales.Growth)
	assertDecimal(t, "50", d.Summary.TotalRevenue.Growth)
	require.Len(t, d.TopSellingCrops, 1)
	assertDecimal(t, "50", d.TopSellingCrops[0].Growth)
}

func TestDashboardService_MonthlySales(t *testing.T) {
	svc, orders, _ := newDashboard(march15)
	seedSales(orders)
	ctx := context.Background()

	months, err := svc.MonthlySales(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, months, 12)
	assert.Equal(t, 2, months[1].Month)
	assertDecimal(t, "1000", months[1].Revenue)
	assert.Equal(t, 50, months[2].Quantity)

	empty, err := svc.MonthlySales(ctx, 1, 2019)
	require.NoError(t, err)
	require.Len(t, empty, 12)
	for i, m := range empty {
		assert.Equal(t, i+1, m.Month)
		assert.Zero(t, m.Quantity)
		assert.True(t, m.Revenue.IsZero())
	}
}

func TestDashboardService_SalesByCrop(t *testing.T) {
	svc, orders, _ := newDashboard(march15)
	seedSales(orders)
	// позиция удалённой культуры
	orders.put(&models.Order{
		BuyerID: 10, Status: models.StatusDelivered, CreatedAt: day(time.March, 14),
		Items: []models.OrderItem{item(0, "Barley", 1, 500, 5)},
	})
	ctx := context.Background()

	tests := []struct {
		period     string
		wantPeriod string
		want       []string
	}{
		{period: service.PeriodWeek, wantPeriod: "week", want: []string{"Wheat"}},
		{period: service.PeriodMonth, wantPeriod: "month", want: []string{"Wheat"}},
		{period: service.PeriodYear, wantPeriod: "year", want: []string{"Tomato", "Wheat", "Rice"}},
		{period: "decade", wantPeriod: "year", want: []string{"Tomato", "Wheat", "Rice"}},
	}
	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			period, out, err := svc.SalesByCrop(ctx, 1, tt.period)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPeriod, period)
			names := make([]string, 0, len(out))
			for _, c := range out {
				names = append(names, c.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestDashboardService_RevenueByCustomer(t *testing.T) {
	svc, orders, _ := newDashboard(march15)
	seedSales(orders)

	report, err := svc.RevenueByCustomer(context.Background(), 1, 2024)
	require.NoError(t, err)

	assertDecimal(t, "2800", report.TotalRevenue)
	require.Len(t, report.Data, 3)
	percentages := make([]int, 0, 3)
	for _, b := range report.Data {
		require.NotNil(t, b.Percentage)
		percentages = append(percentages, *b.Percentage)
	}
	assert.Equal(t, []int{36, 57, 7}, percentages)

	empty, err := svc.RevenueByCustomer(context.Background(), 1, 2019)
	require.NoError(t, err)
	assert.True(t, empty.TotalRevenue.IsZero())
	for _, b := range empty.Data {
		assert.Equal(t, 0, *b.Percentage)
	}
}

func TestDashboardService_ExportSales(t *testing.T) {
	svc, orders, _ := newDashboard(march15)
	seedSales(orders)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportSales(context.Background(), 1, 2024, &buf))

	file, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)

	salesSheet, ok := file.Sheet[service.SalesSheet]
	require.True(t, ok)
	// заголовок и три неотменённых заказа
	require.Len(t, salesSheet.Rows, 4)
	assert.Equal(t, "Order", salesSheet.Rows[0].Cells[0].Value)
	wheat := salesSheet.Rows[3].Cells
	assert.Equal(t, "#ORD-000003", wheat[0].Value)
	assert.Equal(t, "2024-03-12", wheat[1].Value)
	assert.Equal(t, "Wheat", wheat[2].Value)
	qty, err := wheat[3].Int()
	require.NoError(t, err)
	assert.Equal(t, 50, qty)
	subtotal, err := wheat[5].Float()
	require.NoError(t, err)
	assert.InDelta(t, 1600.0, subtotal, 0.001)
	assert.Equal(t, "individual", wheat[7].Value)

	monthSheet, ok := file.Sheet[service.MonthlySheet]
	require.True(t, ok)
	require.Len(t, monthSheet.Rows, 13)
	assert.Equal(t, "Feb", monthSheet.Rows[2].Cells[0].Value)
	revenue, err := monthSheet.Rows[2].Cells[1].Float()
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, revenue, 0.001)
}
