// Package quote implements the cost-estimation value types (spec.md §5
// supplemented features), grounded on weaver.datatype.Quote/Bill: a Quote
// is produced before execution, a Bill is recorded against the Job that
// consumed it.
package quote

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

var isoCurrency = regexp.MustCompile(`^[A-Z]{3}$`)

// Quote is a cost/time estimate for running a process with given
// parameters, optionally decomposed into per-step sub-quotes for a
// workflow (spec.md's Quote.steps).
type Quote struct {
	ID          uuid.UUID
	Process     string
	User        string
	Price       float64
	Currency    string
	Title       string
	Description string
	Details     string
	Location    string
	Created     time.Time
	Expire      time.Time

	EstimatedTime     time.Duration
	ProcessParameters map[string]interface{}

	Steps []uuid.UUID
}

// New builds a Quote, validating the ISO-4217 currency shape and applying
// the teacher's defaults (created=now, expire=created+24h) when unset.
func New(process, user string, price float64, currency string) (*Quote, error) {
	if process == "" {
		return nil, fmt.Errorf("%w: process is required", ErrInvalidQuote)
	}
	if user == "" {
		return nil, fmt.Errorf("%w: user is required", ErrInvalidQuote)
	}
	if !isoCurrency.MatchString(currency) {
		return nil, fmt.Errorf("%w: currency %q must be an ISO-4217 three-letter code", ErrInvalidQuote, currency)
	}
	now := time.Now()
	return &Quote{
		ID:       uuid.New(),
		Process:  process,
		User:     user,
		Price:    price,
		Currency: currency,
		Created:  now,
		Expire:   now.Add(24 * time.Hour),
	}, nil
}

// Expired reports whether the quote can no longer be executed against.
func (q *Quote) Expired() bool {
	return time.Now().After(q.Expire)
}

// Bill is a record of a Quote actually consumed by a Job.
type Bill struct {
	ID       uuid.UUID
	User     string
	Quote    uuid.UUID
	Job      uuid.UUID
	Price    float64
	Currency string
	Created  time.Time
}

// NewBill builds a Bill tying a completed job to the quote it consumed.
func NewBill(user string, quoteID, jobID uuid.UUID, price float64, currency string) (*Bill, error) {
	if user == "" {
		return nil, fmt.Errorf("%w: user is required", ErrInvalidBill)
	}
	if !isoCurrency.MatchString(currency) {
		return nil, fmt.Errorf("%w: currency %q must be an ISO-4217 three-letter code", ErrInvalidBill, currency)
	}
	return &Bill{
		ID:       uuid.New(),
		User:     user,
		Quote:    quoteID,
		Job:      jobID,
		Price:    price,
		Currency: currency,
		Created:  time.Now(),
	}, nil
}
