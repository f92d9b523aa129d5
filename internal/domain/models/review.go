package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	MinRating = 1
	MaxRating = 5
)

// ValidRating - оценка целое от 1 до 5
func ValidRating(r int) bool {
	return r >= MinRating && r <= MaxRating
}

// Review отзыв покупателя о фермере по конкретному заказу
type Review struct {
	ID         int64     `json:"id"`
	ReviewerID int64     `json:"reviewer"`
	FarmerID   int64     `json:"farmer"`
	OrderID    int64     `json:"order"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// FarmerRating агрегированный рейтинг фермера, пересчитывается при каждой записи отзыва
type FarmerRating struct {
	FarmerID      int64           `json:"farmer"`
	AverageRating decimal.Decimal `json:"averageRating"`
	TotalReviews  int             `json:"totalReviews"`
}
