package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// LevelSample is one persisted tick outcome: the resolved peak levels and the
// price at that moment. Nil prices mean the pass produced no level.
type LevelSample struct {
	Bucket     time.Time
	Symbol     string
	Interval   string
	MinPrice   *decimal.Decimal
	MinSupport int
	MaxPrice   *decimal.Decimal
	MaxSupport int
	LastClose  *decimal.Decimal
	Balance    *decimal.Decimal
	Status     string
	Error      *string
	CreatedAt  time.Time
}

// AlertRecord captures an emitted alert signature for auditing.
type AlertRecord struct {
	ID         int64
	SampleTS   time.Time
	Symbol     string
	MinPrice   decimal.Decimal
	MinSupport int
	MaxPrice   decimal.Decimal
	MaxSupport int
	NearMin    bool
	NearMax    bool
	CreatedAt  time.Time
}
