// Package google mirrors ledger data to a Google Spreadsheet through the
// Sheets API, authenticated with a service account.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"tally/internal/core"
	ports "tally/internal/sheets"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// transactionsSheet receives one row per ledger entry.
	transactionsSheet string
	// snapshotsSheet receives one row per verified aggregate.
	snapshotsSheet string
}

var _ ports.LedgerMirror = (*Client)(nil)

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID plus service account credentials via
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or
// GOOGLE_APPLICATION_CREDENTIALS.
// Optional sheet names: GOOGLE_TRANSACTIONS_SHEET_NAME (default
// "Transactions"), GOOGLE_SNAPSHOTS_SHEET_NAME (default "Snapshots").
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	transactions := strings.TrimSpace(os.Getenv("GOOGLE_TRANSACTIONS_SHEET_NAME"))
	if transactions == "" {
		transactions = "Transactions"
	}
	snapshots := strings.TrimSpace(os.Getenv("GOOGLE_SNAPSHOTS_SHEET_NAME"))
	if snapshots == "" {
		snapshots = "Snapshots"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:               svc,
		spreadsheetID:     spreadsheetID,
		transactionsSheet: transactions,
		snapshotsSheet:    snapshots,
	}, nil
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// AppendTransaction writes the entry to the next free row of the
// transactions sheet.
func (c *Client) AppendTransaction(ctx context.Context, tx core.Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	row := []any{
		tx.ID,
		tx.UserID,
		tx.Name,
		tx.Amount.Units(),
		string(tx.Type),
		tx.Notes,
		tx.Date.Format("2006-01-02"),
		tx.IsSettlement,
		tx.RelatedTransactionID,
	}
	return c.appendRow(ctx, c.transactionsSheet, row)
}

// AppendSnapshot writes the account totals with a timestamp.
func (c *Client) AppendSnapshot(ctx context.Context, userID string, state core.AggregateState) (string, error) {
	row := []any{
		time.Now().UTC().Format(time.RFC3339),
		userID,
		state.Balance.Units(),
		state.TotalIncome.Units(),
		state.TotalExpense.Units(),
		state.TotalPayable.Units(),
		state.TotalReceivable.Units(),
	}
	return c.appendRow(ctx, c.snapshotsSheet, row)
}

func (c *Client) appendRow(ctx context.Context, sheetName string, row []any) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	// Find the next empty row from the sheet's current dimensions.
	rng := fmt.Sprintf("%s!A:A", sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get sheet dimensions for %s: %w", sheetName, err)
	}
	nextRow := len(resp.Values) + 1

	dataRange := fmt.Sprintf("%s!A%d", sheetName, nextRow)
	vr := &gsheet.ValueRange{Values: [][]any{row}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, dataRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update sheet %s: %w", sheetName, err)
	}

	return fmt.Sprintf("%s!A%d", sheetName, nextRow), nil
}
