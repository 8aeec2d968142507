package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Account struct {
	ID        string
	UserID    string
	Amount    decimal.Decimal
	CreatedAt time.Time
}
