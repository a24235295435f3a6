package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-admin/internal/domain"
)

// TransactionRow is one mirrored transaction in <dataset>.transactions.
type TransactionRow struct {
	Reference string `bigquery:"reference"` // REQUIRED

	UserID bigquery.NullString `bigquery:"user_id"` // NULLABLE

	Amount   *big.Rat `bigquery:"amount"`   // REQUIRED BIGNUMERIC
	Currency string   `bigquery:"currency"` // REQUIRED STRING, may be empty
	Message  string   `bigquery:"message"`

	OccurredAt   time.Time  `bigquery:"occurred_at"`   // REQUIRED
	OccurredDate civil.Date `bigquery:"occurred_date"` // partition column

	ImportID   bigquery.NullString `bigquery:"import_id"`
	MirroredAt time.Time           `bigquery:"mirrored_ts"`
}

// NewTransactionRow converts a stored transaction into a mirror row.
func NewTransactionRow(t *domain.Transaction, importID string, now time.Time) *TransactionRow {
	return &TransactionRow{
		Reference:    t.Reference,
		UserID:       bigquery.NullString{StringVal: t.UserID, Valid: t.UserID != ""},
		Amount:       t.Amount.Rat(),
		Currency:     t.Currency,
		Message:      t.Message,
		OccurredAt:   t.Timestamp.UTC(),
		OccurredDate: civil.DateOf(t.Timestamp.UTC()),
		ImportID:     bigquery.NullString{StringVal: importID, Valid: importID != ""},
		MirroredAt:   now.UTC(),
	}
}

// transactionsSchema is the table schema. Amount is BIGNUMERIC so any decimal
// accepted at import fits.
var transactionsSchema = bigquery.Schema{
	{Name: "reference", Type: bigquery.StringFieldType, Required: true},
	{Name: "user_id", Type: bigquery.StringFieldType},
	{Name: "amount", Type: bigquery.BigNumericFieldType, Required: true},
	{Name: "currency", Type: bigquery.StringFieldType, Required: true},
	{Name: "message", Type: bigquery.StringFieldType},
	{Name: "occurred_at", Type: bigquery.TimestampFieldType, Required: true},
	{Name: "occurred_date", Type: bigquery.DateFieldType, Required: true},
	{Name: "import_id", Type: bigquery.StringFieldType},
	{Name: "mirrored_ts", Type: bigquery.TimestampFieldType, Required: true},
}
