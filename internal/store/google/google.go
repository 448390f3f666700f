package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"cassa/internal/snapshot"
	"cassa/internal/store"
)

// Sheets refuses cells longer than 50000 characters.
const cellLimit = 45000

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	prefix        string
}

// Ensure interface conformance
var _ store.Store = (*Client)(nil)

// Options selects the spreadsheet and the OAuth material used to reach it.
type Options struct {
	SpreadsheetID string
	Prefix        string
	ClientFile    string
	ClientJSON    string
	TokenFile     string
	TokenJSON     string
}

// New creates a Sheets client authorised with an OAuth client and a stored
// token (see cmd/cassa-oauth).
func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet ID")
	}
	svc, err := newSheetsService(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, opts.SpreadsheetID, opts.Prefix), nil
}

// NewWithService wraps an already configured service.
func NewWithService(svc *gsheet.Service, spreadsheetID, prefix string) *Client {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "cassa"
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, prefix: prefix}
}

func newSheetsService(ctx context.Context, opts Options) (*gsheet.Service, error) {
	clientJSON, err := material(opts.ClientJSON, opts.ClientFile)
	if err != nil {
		return nil, fmt.Errorf("oauth client: %w", err)
	}
	tokenJSON, err := material(opts.TokenJSON, opts.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("oauth token: %w", err)
	}

	cfg, err := googleoauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("oauth token: %w", err)
	}

	base := context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
	httpClient := cfg.Client(base, &tok)

	slog.InfoContext(ctx, "Creating Google Sheets service", "scope", gsheet.SpreadsheetsScope)
	service, err := gsheet.NewService(ctx, goption.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// material returns inline JSON when set, else the contents of file.
func material(inline, file string) ([]byte, error) {
	switch {
	case strings.TrimSpace(inline) != "":
		return []byte(inline), nil
	case strings.TrimSpace(file) != "":
		return os.ReadFile(file)
	default:
		return nil, errors.New("neither inline JSON nor file provided")
	}
}

// newHTTPClientWithPooling creates an HTTP client with pooled keep-alive
// connections and bounded timeouts for the Sheets API.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

func (c *Client) snapshotSheet() string { return c.prefix + " snapshot" }

func (c *Client) balancesSheet(household string) string {
	return fmt.Sprintf("%s %s balances", c.prefix, household)
}

func (c *Client) logSheet(household string) string {
	return fmt.Sprintf("%s %s log", c.prefix, household)
}

// Load implements store.SnapshotReader
func (c *Client) Load(ctx context.Context, household string) (store.Snapshot, error) {
	if c.svc == nil {
		return store.Snapshot{}, errors.New("sheets service not initialized")
	}
	rows, err := c.readSnapshotRows(ctx)
	if err != nil {
		return store.Snapshot{}, err
	}
	for _, row := range rows {
		h, rev, updated, doc, err := parseSnapshotRow(row)
		if err != nil || h != household {
			continue
		}
		t, _ := time.Parse(time.RFC3339, updated)
		return store.Snapshot{Household: h, Revision: rev, Document: doc, UpdatedAt: t}, nil
	}
	return store.Snapshot{}, store.ErrNotFound
}

// Save implements store.SnapshotWriter. The revision is one more than the
// one currently on the sheet.
func (c *Client) Save(ctx context.Context, household string, document []byte) (int64, error) {
	current, err := c.Load(ctx, household)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return 0, err
	}
	snap := store.Snapshot{
		Household: household,
		Revision:  current.Revision + 1,
		Document:  document,
		UpdatedAt: time.Now().UTC(),
	}
	if err := c.Mirror(ctx, snap); err != nil {
		return 0, err
	}
	return snap.Revision, nil
}

// Mirror writes snap as is: the raw document on the snapshot tab and the
// decoded balances and log on the household's own tabs.
func (c *Client) Mirror(ctx context.Context, snap store.Snapshot) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	book, err := snapshot.Decode(snap.Document)
	if err != nil {
		return fmt.Errorf("decode snapshot %s@%d: %w", snap.Household, snap.Revision, err)
	}

	balances, logTab := c.balancesSheet(snap.Household), c.logSheet(snap.Household)
	if err := c.ensureSheets(ctx, c.snapshotSheet(), balances, logTab); err != nil {
		return err
	}

	rows, err := c.readSnapshotRows(ctx)
	if err != nil {
		return err
	}
	target := len(rows) + 1
	for i, row := range rows {
		if len(row) > 0 && fmt.Sprint(row[0]) == snap.Household {
			target = i + 1
			break
		}
	}
	row := snapshotRow(snap.Household, snap.Revision, snap.UpdatedAt.UTC().Format(time.RFC3339), snap.Document)
	rng := fmt.Sprintf("%s!A%d", c.snapshotSheet(), target)
	if err := c.overwrite(ctx, rng, [][]any{row}, false); err != nil {
		return err
	}

	if err := c.overwrite(ctx, balances+"!A1", balanceRows(book.Accounts), true); err != nil {
		return err
	}
	if err := c.overwrite(ctx, logTab+"!A1", logRows(book.Log), true); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Snapshot mirrored to Google Sheets",
		"household", snap.Household,
		"revision", snap.Revision,
		"entries", book.Log.Len())
	return nil
}

func (c *Client) readSnapshotRows(ctx context.Context) ([][]any, error) {
	rng := c.snapshotSheet() + "!A:ZZ"
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		if isMissingSheet(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

// overwrite writes values at rng; with clear the whole tab is emptied first
// so shorter tables leave no stale rows behind.
func (c *Client) overwrite(ctx context.Context, rng string, values [][]any, clear bool) error {
	if clear {
		sheet, _, _ := strings.Cut(rng, "!")
		if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, sheet, &gsheet.ClearValuesRequest{}).
			Context(ctx).Do(); err != nil {
			return fmt.Errorf("clear %s: %w", sheet, err)
		}
	}
	vr := &gsheet.ValueRange{Values: values}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

// ensureSheets adds the tabs that do not exist yet.
func (c *Client) ensureSheets(ctx context.Context, titles ...string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	existing := make([]string, 0, len(ss.Sheets))
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			existing = append(existing, s.Properties.Title)
		}
	}
	var reqs []*gsheet.Request
	for _, t := range titles {
		if slices.Contains(existing, t) {
			continue
		}
		reqs = append(reqs, &gsheet.Request{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: t}},
		})
	}
	if len(reqs) == 0 {
		return nil
	}
	_, err = c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{Requests: reqs}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("add sheets: %w", err)
	}
	return nil
}

func isMissingSheet(err error) bool {
	return strings.Contains(err.Error(), "Unable to parse range")
}
