package googlesheets

import (
	"time"

	sheetstore "github.com/opsledger/go-sheetstore"
)

// Config identifies the backing spreadsheet. Each registered table maps to
// one sheet (tab) of this document.
type Config struct {
	SpreadsheetID string
}

// DefaultStoreConfig returns retry settings tuned for the Sheets API quota
// behavior: the per-minute quota refills slowly, so the backoff base is
// generous.
func DefaultStoreConfig() *sheetstore.Config {
	return &sheetstore.Config{
		MaxRetries:       3,
		RetryInterval:    2 * time.Second,
		MaxRetryInterval: 30 * time.Second,
	}
}
