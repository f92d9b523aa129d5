package service_test

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/linemk/farmsync/internal/domain/models"
	"github.com/linemk/farmsync/internal/lib/listquery"
	"github.com/linemk/farmsync/internal/service"
	"github.com/linemk/farmsync/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCropService(t *testing.T) (service.CropService, *fakeCropRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	crops := newFakeCropRepo()
	users := newFakeUserRepo()
	users.add(farmerActor.ID, models.RoleFarmer)
	users.add(buyerActor.ID, models.RoleBuyer)
	return service.NewCropService(newTestLogger(), db, crops, users), crops, mock
}

func tomatoInput() service.CropInput {
	harvest := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return service.CropInput{
		Name:           " Tomato ",
		Category:       models.CategoryVegetables,
		Quantity:       200,
		Price:          decimal.NewFromInt(20),
		Description:    "Fresh tomatoes",
		HarvestDate:    harvest,
		AvailableUntil: harvest.AddDate(0, 1, 0),
	}
}

func TestCropService_Create(t *testing.T) {
	svc, _, _ := newCropService(t)

	crop, err := svc.Create(context.Background(), farmerActor, tomatoInput())
	require.NoError(t, err)

	assert.NotZero(t, crop.ID)
	assert.Equal(t, "Tomato", crop.Name)
	assert.Equal(t, farmerActor.ID, crop.FarmerID)
	assert.Equal(t, models.DefaultCropImage, crop.Image)
	assert.Equal(t, 1, crop.MinOrder)
	assert.False(t, crop.PublishedToMarketplace)
}

func TestCropService_Create_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		actor  service.Actor
		mutate func(in *service.CropInput)
		kind   error
	}{
		{name: "buyer", actor: buyerActor, kind: service.ErrForbidden},
		{name: "admin", actor: adminActor, kind: service.ErrForbidden},
		{name: "no name", actor: farmerActor, mutate: func(in *service.CropInput) { in.Name = "" }, kind: service.ErrValidation},
		{name: "bad category", actor: farmerActor, mutate: func(in *service.CropInput) { in.Category = "spices" }, kind: service.ErrValidation},
		{name: "zero quantity", actor: farmerActor, mutate: func(in *service.CropInput) { in.Quantity = 0 }, kind: service.ErrValidation},
		{name: "price below one", actor: farmerActor, mutate: func(in *service.CropInput) { in.Price = decimal.RequireFromString("0.5") }, kind: service.ErrValidation},
		{name: "no harvest date", actor: farmerActor, mutate: func(in *service.CropInput) { in.HarvestDate = time.Time{} }, kind: service.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, crops, _ := newCropService(t)
			in := tomatoInput()
			if tt.mutate != nil {
				tt.mutate(&in)
			}

			_, err := svc.Create(context.Background(), tt.actor, in)

			assert.ErrorIs(t, err, tt.kind)
			assert.Empty(t, crops.crops)
		})
	}
}

func TestCropService_UpdateAndDelete(t *testing.T) {
	svc, crops, mock := newCropService(t)
	ctx := context.Background()
	crop, err := svc.Create(ctx, farmerActor, tomatoInput())
	require.NoError(t, err)

	price := decimal.NewFromInt(25)
	published := true
	mock.ExpectBegin()
	mock.ExpectRollback()
	_, err = svc.Update(ctx, otherFarmer, crop.ID, service.CropPatch{Price: &price})
	assert.ErrorIs(t, err, service.ErrForbidden)

	mock.ExpectBegin()
	mock.ExpectCommit()
	updated, err := svc.Update(ctx, farmerActor, crop.ID, service.CropPatch{Price: &price, PublishedToMarketplace: &published})
	require.NoError(t, err)
	assertDecimal(t, "25", updated.Price)
	assert.True(t, updated.PublishedToMarketplace)
	assert.Equal(t, "Tomato", updated.Name)
	assertDecimal(t, "25", crops.crops[crop.ID].Price)

	negative := -1
	mock.ExpectBegin()
	mock.ExpectRollback()
	_, err = svc.Update(ctx, adminActor, crop.ID, service.CropPatch{Quantity: &negative})
	assert.ErrorIs(t, err, service.ErrValidation)

	mock.ExpectBegin()
	mock.ExpectRollback()
	_, err = svc.Update(ctx, farmerActor, 999, service.CropPatch{Price: &price})
	assert.ErrorIs(t, err, service.ErrNotFound)

	assert.ErrorIs(t, svc.Delete(ctx, buyerActor, crop.ID), service.ErrForbidden)
	require.NoError(t, svc.Delete(ctx, adminActor, crop.ID))
	_, err = svc.Get(ctx, crop.ID)
	assert.ErrorIs(t, err, service.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// правка цены пишет остаток, прочитанный под блокировкой, а не устаревший
func TestCropService_Update_KeepsLockedQuantity(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := service.NewCropService(newTestLogger(), db, storage.NewCropRepository(db), newFakeUserRepo())
	harvest := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	cols := []string{"id", "name", "category", "quantity", "price", "description", "harvest_date", "image",
		"min_order", "available_until", "published_to_marketplace", "farmer_id", "created_at"}

	// остаток уже списан заказом: 500 -> 450
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM crops c WHERE c.id = \$1 FOR UPDATE`).
		WithArgs(int64(6)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(6, "Wheat", "grains", 450, "32", "Sharbati", harvest, "default-crop.jpg", 10, harvest.AddDate(0, 3, 0), true, farmerActor.ID, harvest))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE crops SET")).
		WithArgs("Wheat", "grains", 450, "35", "Sharbati", harvest, "default-crop.jpg", 10, harvest.AddDate(0, 3, 0), true, int64(6)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	price := decimal.NewFromInt(35)
	updated, err := svc.Update(context.Background(), farmerActor, 6, service.CropPatch{Price: &price})
	require.NoError(t, err)
	assert.Equal(t, 450, updated.Quantity)
	assertDecimal(t, "35", updated.Price)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCropService_LimitsCountCharacters(t *testing.T) {
	svc, _, _ := newCropService(t)

	in := tomatoInput()
	in.Name = strings.Repeat("т", 100)
	in.Description = strings.Repeat("ü", 1000)
	crop, err := svc.Create(context.Background(), farmerActor, in)
	require.NoError(t, err)
	assert.Equal(t, in.Name, crop.Name)

	in.Name = strings.Repeat("т", 101)
	_, err = svc.Create(context.Background(), farmerActor, in)
	assert.ErrorIs(t, err, service.ErrValidation)
}

func TestCropService_ListMarketplaceForcesPublished(t *testing.T) {
	svc, crops, _ := newCropService(t)
	q := listquery.New()
	q.Filters = []listquery.Filter{{Field: "publishedToMarketplace", Op: listquery.OpEq, Values: []string{"false"}}}

	_, _, err := svc.ListMarketplace(context.Background(), q)
	require.NoError(t, err)

	require.Len(t, crops.lastQuery.Filters, 1)
	assert.Equal(t, []string{"true"}, crops.lastQuery.Filters[0].Values)
}

func TestCropService_ListByFarmer(t *testing.T) {
	svc, crops, _ := newCropService(t)
	ctx := context.Background()

	_, _, err := svc.ListByFarmer(ctx, farmerActor.ID, listquery.New())
	require.NoError(t, err)
	require.Len(t, crops.lastQuery.Filters, 1)
	assert.Equal(t, "farmer", crops.lastQuery.Filters[0].Field)
	assert.Equal(t, []string{"1"}, crops.lastQuery.Filters[0].Values)

	_, _, err = svc.ListByFarmer(ctx, buyerActor.ID, listquery.New())
	assert.ErrorIs(t, err, service.ErrNotFound)
	_, _, err = svc.ListByFarmer(ctx, 999, listquery.New())
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestCropService_List_UnknownFieldIsValidationError(t *testing.T) {
	svc, _, _ := newCropService(t)
	q := listquery.New()
	q.Filters = []listquery.Filter{{Field: "secret", Op: listquery.OpEq, Values: []string{"x"}}}

	_, _, err := svc.List(context.Background(), q)
	assert.ErrorIs(t, err, service.ErrValidation)
}
