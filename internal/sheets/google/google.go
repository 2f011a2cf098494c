// Package google mirrors ledger events to a Google Sheet, one row per event.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"finbot/internal/events"
)

// Header is the first row written to a new yearly sheet.
var Header = []any{"Date", "User", "Event", "Kind", "Amount", "Counterparty", "Transaction", "Settled"}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base name without year (e.g. "Ledger"); rows go to "<year> <base>".
	sheetBase string
}

var _ events.Publisher = (*Client)(nil)

// Credentials selects how the client authenticates. A service account
// (JSON, then File) wins; otherwise an OAuth client plus the token saved by
// cmd/sheets-auth is used; with neither, GOOGLE_APPLICATION_CREDENTIALS.
type Credentials struct {
	JSON string
	File string

	OAuthClientFile string
	OAuthTokenFile  string
}

// NewClient creates a mirror client for the given spreadsheet and base sheet name.
func NewClient(ctx context.Context, spreadsheetID, sheetBase string, creds Credentials, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := newSheetsService(ctx, creds, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, spreadsheetID, sheetBase), nil
}

// NewWithService wraps an already configured Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetBase string) *Client {
	sheetBase = strings.TrimSpace(sheetBase)
	if sheetBase == "" {
		sheetBase = "Ledger"
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetBase: sheetBase}
}

// newSheetsService initializes a Sheets Service from creds.
func newSheetsService(ctx context.Context, creds Credentials, opts ...goption.ClientOption) (*gsheet.Service, error) {
	auth, err := authOption(ctx, creds)
	if err != nil {
		return nil, err
	}
	opts = append([]goption.ClientOption{auth, goption.WithScopes(gsheet.SpreadsheetsScope)}, opts...)
	service, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func authOption(ctx context.Context, creds Credentials) (goption.ClientOption, error) {
	serviceAccountJSON := strings.TrimSpace(creds.JSON)
	serviceAccountFile := strings.TrimSpace(creds.File)
	tokenFile := strings.TrimSpace(creds.OAuthTokenFile)
	if serviceAccountJSON == "" && serviceAccountFile == "" && tokenFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using service account credentials", "source", "json")
		return goption.WithCredentialsJSON([]byte(serviceAccountJSON)), nil
	case serviceAccountFile != "":
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		slog.InfoContext(ctx, "Using service account credentials", "source", "file")
		return goption.WithCredentialsJSON(b), nil
	case tokenFile != "":
		ts, err := OAuthTokenSource(ctx, creds.OAuthClientFile, tokenFile)
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "Using OAuth user credentials", "token_file", tokenFile)
		return goption.WithTokenSource(ts), nil
	}
	return nil, errors.New("missing credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, GOOGLE_OAUTH_TOKEN_FILE or GOOGLE_APPLICATION_CREDENTIALS)")
}

// OAuthConfig reads an OAuth client definition scoped to spreadsheets.
func OAuthConfig(clientFile string) (*oauth2.Config, error) {
	clientFile = strings.TrimSpace(clientFile)
	if clientFile == "" {
		return nil, errors.New("missing OAuth client file")
	}
	b, err := os.ReadFile(clientFile)
	if err != nil {
		return nil, fmt.Errorf("read OAuth client file: %w", err)
	}
	cfg, err := googleoauth.ConfigFromJSON(b, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse OAuth client file: %w", err)
	}
	return cfg, nil
}

// OAuthTokenSource returns a refreshing token source for a saved token.
func OAuthTokenSource(ctx context.Context, clientFile, tokenFile string) (oauth2.TokenSource, error) {
	cfg, err := OAuthConfig(clientFile)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("open OAuth token file: %w", err)
	}
	defer f.Close()

	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, fmt.Errorf("decode OAuth token file: %w", err)
	}
	return cfg.TokenSource(ctx, &tok), nil
}

// SaveToken writes tok to path readable only by the owner.
func SaveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		_ = f.Close()
		return fmt.Errorf("write token: %w", err)
	}
	return f.Close()
}

// SheetName returns the sheet rows for year are written to.
func (c *Client) SheetName(year int) string {
	return yearPrefixedName(c.sheetBase, year)
}

// Publish appends one row describing ev to the sheet of the event's year.
func (c *Client) Publish(ctx context.Context, ev events.Event) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	sheet := c.SheetName(ev.OccurredAt.Year())
	rng := fmt.Sprintf("%s!A:H", sheet)
	vr := &gsheet.ValueRange{Values: [][]any{eventRow(ev)}}

	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append row to %s: %w", sheet, err)
	}
	return nil
}

// EnsureHeader writes the header row when the sheet for year is empty.
func (c *Client) EnsureHeader(ctx context.Context, year int) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	sheet := c.SheetName(year)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, sheet+"!A1:H1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header of %s: %w", sheet, err)
	}
	if len(resp.Values) > 0 {
		return nil
	}
	vr := &gsheet.ValueRange{Values: [][]any{Header}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, sheet+"!A1:H1", vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header of %s: %w", sheet, err)
	}
	return nil
}

// Rows reads back the mirrored rows of year, header excluded.
func (c *Client) Rows(ctx context.Context, year int) ([][]string, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:H", c.SheetName(year))
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	var out [][]string
	for i, row := range resp.Values {
		cols := toStrings(row)
		if i == 0 && len(cols) > 0 && cols[0] == Header[0] {
			continue
		}
		if len(cols) == 0 {
			continue
		}
		out = append(out, cols)
	}
	return out, nil
}

func eventRow(ev events.Event) []any {
	return []any{
		ev.OccurredAt.Format("2006-01-02 15:04:05"),
		ev.UserID,
		string(ev.Type),
		string(ev.Kind),
		ev.Amount.StringFixed(2),
		ev.Counterparty,
		ev.TransactionID,
		strconv.FormatBool(ev.Settled),
	}
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
