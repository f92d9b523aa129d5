package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category категория культуры
type Category string

const (
	CategoryGrains     Category = "grains"
	CategoryVegetables Category = "vegetables"
	CategoryFruits     Category = "fruits"
	CategoryPulses     Category = "pulses"
	CategoryOther      Category = "other"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryGrains, CategoryVegetables, CategoryFruits, CategoryPulses, CategoryOther:
		return true
	}
	return false
}

const DefaultCropImage = "default-crop.jpg"

// Crop представляет партию урожая, выставленную фермером
type Crop struct {
	ID                     int64           `json:"id"`
	Name                   string          `json:"name"`
	Category               Category        `json:"category"`
	Quantity               int             `json:"quantity"`
	Price                  decimal.Decimal `json:"price"`
	Description            string          `json:"description"`
	HarvestDate            time.Time       `json:"harvestDate"`
	Image                  string          `json:"image"`
	MinOrder               int             `json:"minOrder"`
	AvailableUntil         time.Time       `json:"availableUntil"`
	PublishedToMarketplace bool            `json:"publishedToMarketplace"`
	FarmerID               int64           `json:"farmer"`
	CreatedAt              time.Time       `json:"createdAt"`
}
