package ticketing

import (
	"time"

	"github.com/holiman/uint256"
)

const (
	MaxNameLength     = 100
	MaxURLLength      = 200
	MaxDetailsLength  = 1000
	MaxLocationLength = 150
	MaxAttendees      = 5000

	MinEventDuration = int64(time.Hour / time.Second)
	RefundBuffer     = int64(5 * time.Hour / time.Second)

	FeeBasisPoints = 100
	BasisPoints    = 10000
)

// MaxTicketPrice is 1e24 base units.
var MaxTicketPrice = new(uint256.Int).Mul(uint256.NewInt(1_000_000_000_000), uint256.NewInt(1_000_000_000_000))
