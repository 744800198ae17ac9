package sqlite

// Times are stored as Unix milliseconds so range predicates compare integers.

type UserModel struct {
	ID        string `gorm:"primaryKey"`
	Name      string
	Email     string `gorm:"uniqueIndex;not null"`
	Role      string `gorm:"not null;default:USER"`
	CreatedAt int64  `gorm:"autoCreateTime:false"`
}

func (UserModel) TableName() string { return "users" }

type ShopModel struct {
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	Category  string `gorm:"not null"`
	Address   string
	Email     string
	Latitude  float64
	Longitude float64
	Active    bool  `gorm:"not null"`
	CreatedAt int64 `gorm:"autoCreateTime:false"`
}

func (ShopModel) TableName() string { return "shops" }

type OrderModel struct {
	ID          string `gorm:"primaryKey"`
	UserID      string `gorm:"not null;index"`
	ShopID      string `gorm:"not null"`
	Status      string `gorm:"not null"`
	Amount      int64  `gorm:"not null"`
	Description string
	CreatedAt   int64 `gorm:"autoCreateTime:false"`
}

func (OrderModel) TableName() string { return "orders" }

type BonusCodeModel struct {
	ID                string `gorm:"primaryKey"`
	Code              string `gorm:"uniqueIndex:bonus_codes_code_key;not null"`
	Amount            int64  `gorm:"not null"`
	Currency          string `gorm:"not null"`
	IssuedAt          int64  `gorm:"not null;index:bonus_codes_owner_idx,priority:2"`
	ExpiresAt         int64  `gorm:"not null"`
	IsUsed            bool   `gorm:"not null;default:false"`
	UsedAt            *int64
	ResidenceProofRef *string
	RedemptionMode    *string
	RedeemedBy        *string
	OwnerUserID       string `gorm:"not null;index:bonus_codes_owner_idx,priority:1"`
	ShopID            string `gorm:"not null"`
	OrderID           *string
}

func (BonusCodeModel) TableName() string { return "bonus_codes" }
