package service

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/linemk/farmsync/internal/domain/models"
	"github.com/linemk/farmsync/internal/lib/listquery"
	"github.com/linemk/farmsync/internal/storage"
	"github.com/shopspring/decimal"
)

const (
	topCropsLimit    = 5
	recentOrdersSize = 5
	unknownCropName  = "Unknown Crop"
)

var monthLabels = []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

var hundred = decimal.NewFromInt(100)

// Периоды для SalesByCrop
const (
	PeriodWeek  = "week"
	PeriodMonth = "month"
	PeriodYear  = "year"
)

type DashboardService interface {
	FarmerStats(ctx context.Context, farmerID int64) (*FarmerDashboard, error)
	MonthlySales(ctx context.Context, farmerID int64, year int) ([]MonthlySales, error)
	SalesByCrop(ctx context.Context, farmerID int64, period string) (string, []CropSales, error)
	RevenueByCustomer(ctx context.Context, farmerID int64, year int) (*CustomerRevenueReport, error)
	// ExportSales пишет в w xlsx-книгу с продажами фермера за год
	ExportSales(ctx context.Context, farmerID int64, year int, w io.Writer) error
}

type FarmerDashboard struct {
	Summary         Summary          `json:"summary"`
	Charts          Charts           `json:"charts"`
	RecentSoldCrops []RecentSoldCrop `json:"recentSoldCrops"`
	TopSellingCrops []TopCrop        `json:"topSellingCrops"`
}

type Summary struct {
	TotalRevenue  GrowthValue[decimal.Decimal] `json:"totalRevenue"`
	TotalSales    GrowthValue[int]             `json:"totalSales"`
	PendingOrders PendingOrders                `json:"pendingOrders"`
	Rating        RatingSummary                `json:"rating"`
}

type GrowthValue[T any] struct {
	Value  T               `json:"value"`
	Growth decimal.Decimal `json:"growth"`
}

type PendingOrders struct {
	Value      int `json:"value"`
	Processing int `json:"processing"`
}

type RatingSummary struct {
	Value        decimal.Decimal `json:"value"`
	TotalReviews int             `json:"totalReviews"`
}

type Charts struct {
	MonthlyRevenue   MonthlyChart      `json:"monthlyRevenue"`
	CropDistribution []CropQuantity    `json:"cropDistribution"`
	CustomerRevenue  []CustomerRevenue `json:"customerRevenue"`
}

type MonthlyChart struct {
	Labels   []string          `json:"labels"`
	Revenue  []decimal.Decimal `json:"revenue"`
	Quantity []int             `json:"quantity"`
}

type CropQuantity struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type CustomerRevenue struct {
	Type       string          `json:"type"`
	Value      decimal.Decimal `json:"value"`
	Percentage *int            `json:"percentage,omitempty"`
}

type RecentSoldCrop struct {
	OrderID      int64              `json:"orderId"`
	OrderNumber  string             `json:"orderNumber"`
	Crop         string             `json:"crop"`
	Quantity     int                `json:"quantity"`
	PricePerUnit decimal.Decimal    `json:"pricePerUnit"`
	Total        decimal.Decimal    `json:"total"`
	Date         time.Time          `json:"date"`
	Status       models.OrderStatus `json:"status"`
}

type TopCrop struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Revenue  decimal.Decimal `json:"revenue"`
	Growth   decimal.Decimal `json:"growth"`
}

type MonthlySales struct {
	Month    int             `json:"month"`
	Revenue  decimal.Decimal `json:"revenue"`
	Quantity int             `json:"quantity"`
}

type CropSales struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Revenue  decimal.Decimal `json:"revenue"`
}

type CustomerRevenueReport struct {
	Data         []CustomerRevenue `json:"data"`
	TotalRevenue decimal.Decimal   `json:"totalRevenue"`
}

type dashboardService struct {
	log        *slog.Logger
	orderRepo  storage.OrderStorage
	reviewRepo storage.ReviewStorage
	now        func() time.Time
}

// NewDashboardService создаёт сервис статистики. now задаёт часы; nil - time.Now.
func NewDashboardService(log *slog.Logger, orderRepo storage.OrderStorage, reviewRepo storage.ReviewStorage, now func() time.Time) DashboardService {
	if now == nil {
		now = time.Now
	}
	return &dashboardService{
		log:        log,
		orderRepo:  orderRepo,
		reviewRepo: reviewRepo,
		now:        now,
	}
}

// sales накопитель выручки и количества
type sales struct {
	revenue  decimal.Decimal
	quantity int
}

func (s *sales) add(item models.OrderItem) {
	s.revenue = s.revenue.Add(item.Subtotal())
	s.quantity += item.Quantity
}

// cropAgg продажи культуры за год и за текущий/прошлый месяц
type cropAgg struct {
	name             string
	total, cur, prev sales
}

// FarmerStats собирает сводку для дашборда фермера.
// Заказы читаются одним запросом с начала года или начала прошлого месяца, если он раньше.
func (s *dashboardService) FarmerStats(ctx context.Context, farmerID int64) (*FarmerDashboard, error) {
	const op = "service.DashboardService.FarmerStats"
	logger := s.log.With(slog.String("op", op), slog.Int64("farmerID", farmerID))

	now := s.now()
	loc := now.Location()
	yearStart := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, loc)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	lastMonthStart := monthStart.AddDate(0, -1, 0)
	from := yearStart
	if lastMonthStart.Before(from) {
		from = lastMonthStart
	}

	orders, err := s.orderRepo.ListFarmerOrdersBetween(ctx, farmerID, from, now)
	if err != nil {
		logger.Error("failed to load orders", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to load orders: %w", op, err)
	}

	counts, err := s.orderRepo.CountFarmerOrdersByStatus(ctx, farmerID)
	if err != nil {
		logger.Error("failed to count orders", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to count orders: %w", op, err)
	}

	rating, err := s.reviewRepo.GetFarmerRating(ctx, farmerID)
	if err != nil {
		logger.Error("failed to get rating", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get rating: %w", op, err)
	}

	recentQuery := listquery.New()
	recentQuery.Limit = recentOrdersSize
	recentQuery.Where("status", string(models.StatusDelivered))
	recent, _, err := s.orderRepo.ListOrders(ctx, storage.OrderScope{FarmerID: farmerID}, recentQuery)
	if err != nil {
		logger.Error("failed to load recent orders", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to load recent orders: %w", op, err)
	}

	monthly := make([]sales, 12)
	var total, cur, prev sales
	byCustomer := make(map[models.CustomerType]decimal.Decimal, 3)
	crops := make(map[string]*cropAgg)

	for _, order := range orders {
		created := order.CreatedAt.In(loc)
		inYear := !created.Before(yearStart)
		inCur := !created.Before(monthStart)
		inPrev := !inCur && !created.Before(lastMonthStart)
		customer := models.CustomerTypeOf(order.BuyerRole)

		for _, item := range order.ItemsOf(farmerID) {
			name := item.CropName
			if name == "" {
				name = unknownCropName
			}
			agg, ok := crops[name]
			if !ok {
				agg = &cropAgg{name: name}
				crops[name] = agg
			}

			if inYear {
				monthly[created.Month()-1].add(item)
				total.add(item)
				agg.total.add(item)
				byCustomer[customer] = byCustomer[customer].Add(item.Subtotal())
			}
			if inCur {
				cur.add(item)
				agg.cur.add(item)
			}
			if inPrev {
				prev.add(item)
				agg.prev.add(item)
			}
		}
	}

	top := topCrops(crops)

	dashboard := &FarmerDashboard{
		Summary: Summary{
			TotalRevenue: GrowthValue[decimal.Decimal]{
				Value:  total.revenue.Round(0),
				Growth: growth(cur.revenue, prev.revenue),
			},
			TotalSales: GrowthValue[int]{
				Value:  total.quantity,
				Growth: growth(decimal.NewFromInt(int64(cur.quantity)), decimal.NewFromInt(int64(prev.quantity))),
			},
			PendingOrders: PendingOrders{
				Value:      counts[models.StatusPending],
				Processing: counts[models.StatusProcessing],
			},
			Rating: RatingSummary{
				Value:        rating.AverageRating,
				TotalReviews: rating.TotalReviews,
			},
		},
		Charts: Charts{
			MonthlyRevenue:   monthlyChart(monthly),
			CropDistribution: make([]CropQuantity, 0, len(top)),
			CustomerRevenue:  customerBuckets(byCustomer, true, false),
		},
		RecentSoldCrops: recentSoldCrops(recent, farmerID),
		TopSellingCrops: top,
	}
	for _, c := range top {
		dashboard.Charts.CropDistribution = append(dashboard.Charts.CropDistribution, CropQuantity{Name: c.Name, Quantity: c.Quantity})
	}

	logger.Debug("dashboard built", slog.Int("orders", len(orders)))
	return dashboard, nil
}

// MonthlySales выручка и количество по месяцам года; всегда 12 записей
func (s *dashboardService) MonthlySales(ctx context.Context, farmerID int64, year int) ([]MonthlySales, error) {
	const op = "service.DashboardService.MonthlySales"

	monthly, err := s.monthlyTotals(ctx, op, farmerID, s.year(year))
	if err != nil {
		return nil, err
	}
	out := make([]MonthlySales, 12)
	for i, m := range monthly {
		out[i] = MonthlySales{Month: i + 1, Revenue: m.revenue, Quantity: m.quantity}
	}
	return out, nil
}

func (s *dashboardService) monthlyTotals(ctx context.Context, op string, farmerID int64, year int) ([]sales, error) {
	loc := s.now().Location()
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, loc)
	to := from.AddDate(1, 0, 0).Add(-time.Nanosecond)

	orders, err := s.orderRepo.ListFarmerOrdersBetween(ctx, farmerID, from, to)
	if err != nil {
		s.log.Error("failed to load orders", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to load orders: %w", op, err)
	}

	monthly := make([]sales, 12)
	for _, order := range orders {
		month := order.CreatedAt.In(loc).Month()
		for _, item := range order.ItemsOf(farmerID) {
			monthly[month-1].add(item)
		}
	}
	return monthly, nil
}

// SalesByCrop продажи по культурам за неделю, 30 дней или текущий год, по убыванию количества.
// Позиции удалённых культур не учитываются.
func (s *dashboardService) SalesByCrop(ctx context.Context, farmerID int64, period string) (string, []CropSales, error) {
	const op = "service.DashboardService.SalesByCrop"

	now := s.now()
	var from time.Time
	switch period {
	case PeriodWeek:
		from = now.AddDate(0, 0, -7)
	case PeriodMonth:
		from = now.AddDate(0, 0, -30)
	default:
		period = PeriodYear
		from = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
	}

	orders, err := s.orderRepo.ListFarmerOrdersBetween(ctx, farmerID, from, now)
	if err != nil {
		s.log.Error("failed to load orders", slog.String("op", op), slog.Any("error", err))
		return "", nil, fmt.Errorf("%s: failed to load orders: %w", op, err)
	}

	byName := make(map[string]*sales)
	for _, order := range orders {
		for _, item := range order.ItemsOf(farmerID) {
			if item.CropID == 0 {
				continue
			}
			agg, ok := byName[item.CropName]
			if !ok {
				agg = &sales{}
				byName[item.CropName] = agg
			}
			agg.add(item)
		}
	}

	out := make([]CropSales, 0, len(byName))
	for name, agg := range byName {
		out = append(out, CropSales{Name: name, Quantity: agg.quantity, Revenue: agg.revenue})
	}
	slices.SortFunc(out, func(a, b CropSales) int {
		if c := cmp.Compare(b.Quantity, a.Quantity); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return period, out, nil
}

// RevenueByCustomer выручка за год по трём группам покупателей с долями в процентах
func (s *dashboardService) RevenueByCustomer(ctx context.Context, farmerID int64, year int) (*CustomerRevenueReport, error) {
	const op = "service.DashboardService.RevenueByCustomer"

	loc := s.now().Location()
	from := time.Date(s.year(year), time.January, 1, 0, 0, 0, 0, loc)
	to := from.AddDate(1, 0, 0).Add(-time.Nanosecond)

	orders, err := s.orderRepo.ListFarmerOrdersBetween(ctx, farmerID, from, to)
	if err != nil {
		s.log.Error("failed to load orders", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to load orders: %w", op, err)
	}

	byCustomer := make(map[models.CustomerType]decimal.Decimal, 3)
	total := decimal.Zero
	for _, order := range orders {
		customer := models.CustomerTypeOf(order.BuyerRole)
		for _, item := range order.ItemsOf(farmerID) {
			byCustomer[customer] = byCustomer[customer].Add(item.Subtotal())
			total = total.Add(item.Subtotal())
		}
	}

	return &CustomerRevenueReport{
		Data:         customerBuckets(byCustomer, false, true),
		TotalRevenue: total,
	}, nil
}

func (s *dashboardService) year(year int) int {
	if year <= 0 {
		return s.now().Year()
	}
	return year
}

// growth рост в процентах с одним знаком; при нулевом прошлом периоде ровно 100
func growth(cur, prev decimal.Decimal) decimal.Decimal {
	if !prev.IsPositive() {
		return hundred
	}
	return cur.Sub(prev).Div(prev).Mul(hundred).Round(1)
}

func topCrops(crops map[string]*cropAgg) []TopCrop {
	out := make([]TopCrop, 0, len(crops))
	for _, agg := range crops {
		if agg.total.quantity == 0 {
			continue
		}
		out = append(out, TopCrop{
			Name:     agg.name,
			Quantity: agg.total.quantity,
			Revenue:  agg.total.revenue,
			Growth:   growth(agg.cur.revenue, agg.prev.revenue),
		})
	}
	slices.SortFunc(out, func(a, b TopCrop) int {
		if c := b.Revenue.Cmp(a.Revenue); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	if len(out) > topCropsLimit {
		out = out[:topCropsLimit]
	}
	return out
}

func monthlyChart(monthly []sales) MonthlyChart {
	chart := MonthlyChart{
		Labels:   monthLabels,
		Revenue:  make([]decimal.Decimal, len(monthly)),
		Quantity: make([]int, len(monthly)),
	}
	for i, m := range monthly {
		chart.Revenue[i] = m.revenue
		chart.Quantity[i] = m.quantity
	}
	return chart
}

var customerOrder = []struct {
	kind  models.CustomerType
	label string
}{
	{models.CustomerRestaurant, "Restaurants"},
	{models.CustomerIndividual, "Individual Buyers"},
	{models.CustomerWholesaler, "Wholesalers"},
}

// customerBuckets ровно три группы в фиксированном порядке
func customerBuckets(byCustomer map[models.CustomerType]decimal.Decimal, round, withPercentage bool) []CustomerRevenue {
	total := decimal.Zero
	for _, v := range byCustomer {
		total = total.Add(v)
	}

	out := make([]CustomerRevenue, 0, len(customerOrder))
	for _, c := range customerOrder {
		value := byCustomer[c.kind]
		bucket := CustomerRevenue{Type: c.label, Value: value}
		if round {
			bucket.Value = value.Round(0)
		}
		if withPercentage {
			pct := 0
			if total.IsPositive() {
				pct = int(value.Div(total).Mul(hundred).Round(0).IntPart())
			}
			bucket.Percentage = &pct
		}
		out = append(out, bucket)
	}
	return out
}

func recentSoldCrops(orders []*models.Order, farmerID int64) []RecentSoldCrop {
	out := []RecentSoldCrop{}
	for _, order := range orders {
		for _, item := range order.ItemsOf(farmerID) {
			out = append(out, RecentSoldCrop{
				OrderID:      order.ID,
				OrderNumber:  orderNumber(order.ID),
				Crop:         item.CropName,
				Quantity:     item.Quantity,
				PricePerUnit: item.Price,
				Total:        item.Subtotal(),
				Date:         order.CreatedAt,
				Status:       order.Status,
			})
		}
	}
	return out
}

func orderNumber(id int64) string {
	return fmt.Sprintf("#ORD-%06d", id)
}
