package service_test

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"testing"
	"time"

	"github.com/linemk/farmsync/internal/domain/models"
	"github.com/linemk/farmsync/internal/lib/listquery"
	"github.com/linemk/farmsync/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

type fakeUserRepo struct {
	users map[string]*models.User // ключ email
}

var _ storage.UserStorage = (*fakeUserRepo)(nil)

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*models.User)}
}

func (f *fakeUserRepo) add(id int64, role models.Role) *models.User {
	email := fmt.Sprintf("%s%d@example.com", role, id)
	u := &models.User{ID: id, Name: string(role), Email: email, Role: role}
	f.users[email] = u
	return u
}

func (f *fakeUserRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, ok := f.users[email]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeUserRepo) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	if _, ok := f.users[user.Email]; ok {
		return nil, storage.ErrUserExists
	}
	user.ID = int64(len(f.users) + 1)
	f.users[user.Email] = user
	return user, nil
}

func (f *fakeUserRepo) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, storage.ErrUserNotFound
}

type fakeCropRepo struct {
	crops     map[int64]*models.Crop
	nextID    int64
	lastQuery listquery.Query
}

var _ storage.CropStorage = (*fakeCropRepo)(nil)

func newFakeCropRepo() *fakeCropRepo {
	return &fakeCropRepo{crops: make(map[int64]*models.Crop), nextID: 1}
}

// wheat - культура из сквозного сценария: 500 кг по 32, минимальный заказ 10
func (f *fakeCropRepo) wheat(farmerID int64) *models.Crop {
	c, _ := f.CreateCrop(context.Background(), &models.Crop{
		Name:                   "Wheat",
		Category:               models.CategoryGrains,
		Quantity:               500,
		Price:                  decimal.NewFromInt(32),
		Description:            "Sharbati wheat",
		MinOrder:               10,
		PublishedToMarketplace: true,
		FarmerID:               farmerID,
	})
	return c
}

func (f *fakeCropRepo) CreateCrop(ctx context.Context, crop *models.Crop) (*models.Crop, error) {
	crop.ID = f.nextID
	crop.CreatedAt = time.Now()
	f.nextID++
	f.crops[crop.ID] = crop
	return crop, nil
}

func (f *fakeCropRepo) GetCropByID(ctx context.Context, id int64) (*models.Crop, error) {
	c, ok := f.crops[id]
	if !ok {
		return nil, storage.ErrCropNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCropRepo) UpdateCropTx(ctx context.Context, tx *sql.Tx, crop *models.Crop) error {
	if _, ok := f.crops[crop.ID]; !ok {
		return storage.ErrCropNotFound
	}
	cp := *crop
	f.crops[crop.ID] = &cp
	return nil
}

func (f *fakeCropRepo) DeleteCrop(ctx context.Context, id int64) error {
	if _, ok := f.crops[id]; !ok {
		return storage.ErrCropNotFound
	}
	delete(f.crops, id)
	return nil
}

func (f *fakeCropRepo) ListCrops(ctx context.Context, q listquery.Query) ([]*models.Crop, int, error) {
	f.lastQuery = q
	for _, flt := range q.Filters {
		if flt.Field == "secret" {
			return nil, 0, storage.ErrUnknownField
		}
	}
	out := make([]*models.Crop, 0, len(f.crops))
	for _, c := range f.crops {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (f *fakeCropRepo) LockCropByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Crop, error) {
	return f.GetCropByID(ctx, id)
}

func (f *fakeCropRepo) AdjustQuantityTx(ctx context.Context, tx *sql.Tx, id int64, delta int) error {
	c, ok := f.crops[id]
	if !ok || c.Quantity+delta < 0 {
		return storage.ErrCropNotFound
	}
	c.Quantity += delta
	return nil
}

type fakeOrderRepo struct {
	orders    map[int64]*models.Order
	nextID    int64
	lastScope storage.OrderScope
}

var _ storage.OrderStorage = (*fakeOrderRepo)(nil)

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[int64]*models.Order), nextID: 1}
}

func cloneOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Items = slices.Clone(o.Items)
	cp.StatusUpdates = slices.Clone(o.StatusUpdates)
	return &cp
}

// put кладёт готовый заказ, используется в тестах дашборда
func (f *fakeOrderRepo) put(o *models.Order) {
	if o.ID == 0 {
		o.ID = f.nextID
	}
	f.nextID = max(f.nextID, o.ID) + 1
	f.orders[o.ID] = o
}

func (f *fakeOrderRepo) CreateOrderTx(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	order.ID = f.nextID
	f.nextID++
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	for i := range order.Items {
		order.Items[i].ID = order.ID*100 + int64(i)
	}
	f.orders[order.ID] = cloneOrder(order)
	return nil
}

func (f *fakeOrderRepo) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, storage.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (f *fakeOrderRepo) LockOrderByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	return f.GetOrderByID(ctx, id)
}

func (f *fakeOrderRepo) UpdateOrderStatusTx(ctx context.Context, tx *sql.Tx, order *models.Order, update models.StatusUpdate) error {
	stored, ok := f.orders[order.ID]
	if !ok {
		return storage.ErrOrderNotFound
	}
	stored.Status = order.Status
	stored.IsPaid, stored.PaidAt = order.IsPaid, order.PaidAt
	stored.IsDelivered, stored.DeliveredAt = order.IsDelivered, order.DeliveredAt
	stored.StatusUpdates = append(stored.StatusUpdates, update)
	return nil
}

func (f *fakeOrderRepo) MarkReviewedTx(ctx context.Context, tx *sql.Tx, id int64) error {
	if o, ok := f.orders[id]; ok {
		o.Reviewed = true
	}
	return nil
}

func (f *fakeOrderRepo) ListOrders(ctx context.Context, scope storage.OrderScope, q listquery.Query) ([]*models.Order, int, error) {
	f.lastScope = scope
	var status string
	for _, flt := range q.Filters {
		if flt.Field == "status" {
			status = flt.Values[0]
		}
	}

	var out []*models.Order
	for _, o := range f.orders {
		if scope.BuyerID != 0 && o.BuyerID != scope.BuyerID {
			continue
		}
		if scope.FarmerID != 0 && !o.HasFarmer(scope.FarmerID) {
			continue
		}
		if status != "" && string(o.Status) != status {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, total, nil
}

func (f *fakeOrderRepo) ListFarmerOrdersBetween(ctx context.Context, farmerID int64, from, to time.Time) ([]*models.Order, error) {
	var out []*models.Order
	for _, o := range f.orders {
		if !o.HasFarmer(farmerID) || o.Status == models.StatusCancelled {
			continue
		}
		if o.CreatedAt.Before(from) || o.CreatedAt.After(to) {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeOrderRepo) CountFarmerOrdersByStatus(ctx context.Context, farmerID int64) (map[models.OrderStatus]int, error) {
	counts := make(map[models.OrderStatus]int)
	for _, o := range f.orders {
		if o.HasFarmer(farmerID) {
			counts[o.Status]++
		}
	}
	return counts, nil
}

type fakeReviewRepo struct {
	reviews map[int64]*models.Review
	ratings map[int64]*models.FarmerRating
	nextID  int64
	// hideExisting эмулирует гонку: FindReview не видит отзыв, а вставка упирается в уникальный индекс
	hideExisting bool
}

var _ storage.ReviewStorage = (*fakeReviewRepo)(nil)

func newFakeReviewRepo() *fakeReviewRepo {
	return &fakeReviewRepo{
		reviews: make(map[int64]*models.Review),
		ratings: make(map[int64]*models.FarmerRating),
		nextID:  1,
	}
}

func (f *fakeReviewRepo) CreateReviewTx(ctx context.Context, tx *sql.Tx, review *models.Review) (*models.Review, error) {
	for _, r := range f.reviews {
		if r.ReviewerID == review.ReviewerID && r.FarmerID == review.FarmerID && r.OrderID == review.OrderID {
			return nil, storage.ErrReviewExists
		}
	}
	review.ID = f.nextID
	f.nextID++
	review.CreatedAt = time.Now()
	review.UpdatedAt = review.CreatedAt
	cp := *review
	f.reviews[review.ID] = &cp
	return review, nil
}

func (f *fakeReviewRepo) GetReviewByID(ctx context.Context, id int64) (*models.Review, error) {
	r, ok := f.reviews[id]
	if !ok {
		return nil, storage.ErrReviewNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeReviewRepo) FindReview(ctx context.Context, reviewerID, farmerID, orderID int64) (*models.Review, error) {
	if f.hideExisting {
		return nil, storage.ErrReviewNotFound
	}
	for _, r := range f.reviews {
		if r.ReviewerID == reviewerID && r.FarmerID == farmerID && r.OrderID == orderID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, storage.ErrReviewNotFound
}

func (f *fakeReviewRepo) UpdateReviewTx(ctx context.Context, tx *sql.Tx, review *models.Review) error {
	if _, ok := f.reviews[review.ID]; !ok {
		return storage.ErrReviewNotFound
	}
	cp := *review
	f.reviews[review.ID] = &cp
	return nil
}

func (f *fakeReviewRepo) DeleteReviewTx(ctx context.Context, tx *sql.Tx, id int64) error {
	if _, ok := f.reviews[id]; !ok {
		return storage.ErrReviewNotFound
	}
	delete(f.reviews, id)
	return nil
}

func (f *fakeReviewRepo) ListReviews(ctx context.Context, q listquery.Query) ([]*models.Review, int, error) {
	out := make([]*models.Review, 0, len(f.reviews))
	for _, r := range f.reviews {
		out = append(out, r)
	}
	return out, len(out), nil
}

func (f *fakeReviewRepo) GetRatingsByFarmer(ctx context.Context, farmerID int64) ([]int, error) {
	ratings := []int{}
	for _, r := range f.reviews {
		if r.FarmerID == farmerID {
			ratings = append(ratings, r.Rating)
		}
	}
	return ratings, nil
}

func (f *fakeReviewRepo) RecalculateFarmerRatingTx(ctx context.Context, tx *sql.Tx, farmerID int64) (*models.FarmerRating, error) {
	ratings, _ := f.GetRatingsByFarmer(ctx, farmerID)
	rating := &models.FarmerRating{FarmerID: farmerID, TotalReviews: len(ratings)}
	if len(ratings) > 0 {
		sum := 0
		for _, r := range ratings {
			sum += r
		}
		rating.AverageRating = decimal.NewFromInt(int64(sum)).Div(decimal.NewFromInt(int64(len(ratings)))).Round(1)
	}
	f.ratings[farmerID] = rating
	return rating, nil
}

func (f *fakeReviewRepo) GetFarmerRating(ctx context.Context, farmerID int64) (*models.FarmerRating, error) {
	if r, ok := f.ratings[farmerID]; ok {
		cp := *r
		return &cp, nil
	}
	return &models.FarmerRating{FarmerID: farmerID}, nil
}
