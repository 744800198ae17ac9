package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"reparaturbonus/internal/domain"
)

type ShopCategory string

const (
	CategoryElectronics ShopCategory = "ELECTRONICS"
	CategoryClothing    ShopCategory = "CLOTHING"
	CategoryShoes       ShopCategory = "SHOES"
	CategoryBikes       ShopCategory = "BIKES"
	CategoryFurniture   ShopCategory = "FURNITURE"
	CategoryAppliances  ShopCategory = "APPLIANCES"
	CategoryCars        ShopCategory = "CARS"
	CategoryOther       ShopCategory = "OTHER"
)

var knownCategories = map[ShopCategory]struct{}{
	CategoryElectronics: {}, CategoryClothing: {}, CategoryShoes: {}, CategoryBikes: {},
	CategoryFurniture: {}, CategoryAppliances: {}, CategoryCars: {}, CategoryOther: {},
}

// ParseShopCategory rejects values outside the known set instead of casting.
func ParseShopCategory(s string) (ShopCategory, error) {
	c := ShopCategory(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := knownCategories[c]; !ok {
		return "", domain.ErrInvalidArgument
	}
	return c, nil
}

// Shop is a repair shop taking part in the program.
type Shop struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Category  ShopCategory `json:"category"`
	Address   string       `json:"address"`
	Email     string       `json:"email"`
	Latitude  float64      `json:"latitude"`
	Longitude float64      `json:"longitude"`
	Active    bool         `json:"active"`
	CreatedAt time.Time    `json:"createdAt"`
}

func NewShop(id, name string, category ShopCategory, address string) (*Shop, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if strings.TrimSpace(name) == "" {
		return nil, domain.ErrInvalidArgument
	}
	if _, ok := knownCategories[category]; !ok {
		return nil, domain.ErrInvalidArgument
	}
	return &Shop{
		ID:        id,
		Name:      strings.TrimSpace(name),
		Category:  category,
		Address:   address,
		Active:    true,
		CreatedAt: time.Now(),
	}, nil
}
