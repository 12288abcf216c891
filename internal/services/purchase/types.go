package purchase

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/fastprodman/topupledger/internal/providers/fulfillment"
	"github.com/fastprodman/topupledger/internal/repos/entries"
	"github.com/fastprodman/topupledger/internal/services/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	ProductAirtime = "airtime"
	ProductData    = "data"
)

var (
	ErrProviderRejected    = errors.New("provider rejected the purchase")
	ErrProviderUnavailable = errors.New("provider outcome unknown, purchase left pending")
	ErrReservationExpired  = errors.New("reservation expired before fulfillment")
	ErrInsufficientFunds   = ledger.ErrInsufficientFunds
	ErrReferenceConflict   = ledger.ErrReferenceConflict
	ErrUnknownPlan         = errors.New("unknown data plan")
	ErrInvalidNetwork      = errors.New("unsupported network")
	ErrInvalidRecipient    = errors.New("invalid recipient phone number")
	ErrInvalidAirtime      = errors.New("airtime amount must be whole naira")

	ErrDepositNeedsVerification = errors.New("deposits are credited through payment verification only")
)

var networks = map[string]struct{}{
	"mtn":     {},
	"glo":     {},
	"airtel":  {},
	"9mobile": {},
}

var phonePattern = regexp.MustCompile(`^(?:\+?234|0)([789][01]\d{8})$`)

// Providers maps each product kind to the provider that fulfils it.
type Providers struct {
	Airtime fulfillment.Provider
	Data    fulfillment.Provider
}

func (p Providers) forProduct(productCode string) fulfillment.Provider {
	kind, _, _ := strings.Cut(productCode, ":")

	switch kind {
	case ProductAirtime:
		return p.Airtime
	case ProductData:
		return p.Data
	default:
		return nil
	}
}

type AirtimeRequest struct {
	UserID    uuid.UUID
	Reference string
	Network   string
	Phone     string
	Amount    decimal.Decimal
}

type DataRequest struct {
	UserID    uuid.UUID
	Reference string
	PlanCode  string
	Phone     string
}

// Request is a priced purchase ready for reservation. Price is what the
// wallet is charged; it is always computed server side.
type Request struct {
	UserID      uuid.UUID
	Reference   string
	ProductCode string
	Price       decimal.Decimal
	Order       fulfillment.Order
	Provider    fulfillment.Provider
}

type Result struct {
	Entry entries.Entry
	// Replayed is true when the reference was already in use by the same
	// user and no new provider call was made.
	Replayed bool
}

// NormalizePhone returns the local 11-digit form of a Nigerian mobile number.
func NormalizePhone(phone string) (string, error) {
	cleaned := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(phone))

	m := phonePattern.FindStringSubmatch(cleaned)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidRecipient, phone)
	}

	return "0" + m[1], nil
}

func normalizeNetwork(network string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(network))
	if _, ok := networks[n]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidNetwork, network)
	}

	return n, nil
}
