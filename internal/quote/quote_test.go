package quote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsBadCurrencyCode(t *testing.T) {
	_, err := New("echo", "alice", 1.5, "dollars")
	assert.True(t, errors.Is(err, ErrInvalidQuote))
}

func TestNew_RejectsMissingProcessOrUser(t *testing.T) {
	_, err := New("", "alice", 1.5, "USD")
	assert.True(t, errors.Is(err, ErrInvalidQuote))

	_, err = New("echo", "", 1.5, "USD")
	assert.True(t, errors.Is(err, ErrInvalidQuote))
}

func TestNew_DefaultsExpireTo24HoursAfterCreated(t *testing.T) {
	q, err := New("echo", "alice", 1.5, "USD")
	require.NoError(t, err)
	assert.WithinDuration(t, q.Created.Add(24*time.Hour), q.Expire, time.Second)
}

func TestQuote_ExpiredReportsPastExpiry(t *testing.T) {
	q, err := New("echo", "alice", 1.5, "USD")
	require.NoError(t, err)
	assert.False(t, q.Expired())

	q.Expire = q.Created
	assert.True(t, q.Expired())
}

func TestNewBill_RejectsBadCurrencyCode(t *testing.T) {
	_, err := NewBill("alice", uuid.New(), uuid.New(), 2.0, "usd")
	assert.True(t, errors.Is(err, ErrInvalidBill))
}

func TestMemoryStore_QuoteRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	q, err := New("echo", "alice", 1.5, "USD")
	require.NoError(t, err)
	require.NoError(t, s.SaveQuote(ctx, q))

	got, err := s.FetchQuote(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, q.Process, got.Process)

	_, err = s.FetchQuote(ctx, uuid.New())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStore_BillRoundTripAndFindByJob(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	jobID := uuid.New()
	b, err := NewBill("alice", uuid.New(), jobID, 2.0, "USD")
	require.NoError(t, err)
	require.NoError(t, s.SaveBill(ctx, b))

	got, err := s.FetchBill(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, jobID, got.Job)

	found, err := s.FindBillsByJob(ctx, jobID)
	require.NoError(t, err)
	assert.Len(t, found, 1)
}
