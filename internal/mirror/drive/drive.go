// Package drive mirrors the ledger to a JSON file in the user's Google
// Drive. The file lives in a dedicated application folder and is named
// after the local part of the account's email address, so several people
// can point the app at the same folder without clobbering each other.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	goauth "google.golang.org/api/oauth2/v2"
	goption "google.golang.org/api/option"

	"billsplit/internal/core"
	"billsplit/internal/mirror"
)

const (
	defaultFolderName = "SibiWiFiTracker"
	ledgerFileSuffix  = "_bill_record.json"
	folderMimeType    = "application/vnd.google-apps.folder"
	ledgerMimeType    = "application/json"
)

// Scopes required by the mirror: file-level Drive access plus the email
// address used to derive the ledger file name.
var Scopes = []string{gdrive.DriveFileScope, goauth.UserinfoEmailScope}

type Client struct {
	svc         *gdrive.Service
	folderName  string
	emailPrefix string

	mu       sync.Mutex
	folderID string // cached after first lookup
}

// Ensure interface conformance
var _ mirror.Store = (*Client)(nil)

// Options configure the Drive client. Credentials come from the OAuth client
// secret plus a token previously minted by the oauth-init command.
type Options struct {
	ClientSecretFile string
	ClientSecretJSON string
	TokenFile        string
	FolderName       string
}

// New builds a Drive mirror from stored OAuth credentials. It verifies the
// token by fetching the account's email, so a revoked token fails here
// rather than on the first push.
func New(ctx context.Context, opts Options) (*Client, error) {
	conf, err := oauthConfig(opts)
	if err != nil {
		return nil, err
	}

	tok, err := readToken(opts.TokenFile)
	if err != nil {
		return nil, err
	}
	ts := conf.TokenSource(ctx, tok)

	userSvc, err := goauth.NewService(ctx, goption.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create userinfo service: %w", err)
	}
	info, err := userSvc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, classify("fetch account email", err)
	}
	prefix, _, _ := strings.Cut(info.Email, "@")
	if prefix == "" {
		return nil, fmt.Errorf("fetch account email: %w (empty address)", mirror.ErrAuth)
	}

	svc, err := gdrive.NewService(ctx, goption.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	folderName := strings.TrimSpace(opts.FolderName)
	if folderName == "" {
		folderName = defaultFolderName
	}

	slog.InfoContext(ctx, "Google Drive mirror ready",
		"account", info.Email,
		"folder", folderName)

	return &Client{
		svc:         svc,
		folderName:  folderName,
		emailPrefix: prefix,
	}, nil
}

func oauthConfig(opts Options) (*oauth2.Config, error) {
	var secret []byte
	switch {
	case strings.TrimSpace(opts.ClientSecretJSON) != "":
		secret = []byte(opts.ClientSecretJSON)
	case strings.TrimSpace(opts.ClientSecretFile) != "":
		b, err := os.ReadFile(opts.ClientSecretFile)
		if err != nil {
			return nil, fmt.Errorf("read oauth client secret: %w", err)
		}
		secret = b
	default:
		return nil, errors.New("missing oauth client secret (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)")
	}

	conf, err := google.ConfigFromJSON(secret, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse oauth client secret: %w", err)
	}
	return conf, nil
}

func readToken(path string) (*oauth2.Token, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("missing oauth token file (run oauth-init first)")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}
	return &tok, nil
}

func (c *Client) fileName() string {
	return c.emailPrefix + ledgerFileSuffix
}

// folderID finds or creates the application folder, caching the ID for the
// lifetime of the client.
func (c *Client) getFolderID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.folderID != "" {
		return c.folderID, nil
	}

	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false", c.folderName, folderMimeType)
	list, err := c.svc.Files.List().Q(q).Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", classify("find app folder", err)
	}
	if len(list.Files) > 0 {
		c.folderID = list.Files[0].Id
		return c.folderID, nil
	}

	folder, err := c.svc.Files.Create(&gdrive.File{
		Name:     c.folderName,
		MimeType: folderMimeType,
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", classify("create app folder", err)
	}

	slog.InfoContext(ctx, "Created Drive app folder", "folder", c.folderName, "id", folder.Id)
	c.folderID = folder.Id
	return c.folderID, nil
}

// FindLedgerFile implements mirror.Store.
func (c *Client) FindLedgerFile(ctx context.Context) (*mirror.LedgerFile, error) {
	folderID, err := c.getFolderID(ctx)
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf("'%s' in parents and name = '%s' and trashed = false", folderID, c.fileName())
	list, err := c.svc.Files.List().Q(q).Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return nil, classify("find ledger file", err)
	}
	if len(list.Files) == 0 {
		return nil, nil
	}
	fileID := list.Files[0].Id

	resp, err := c.svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, classify("download ledger file", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read ledger file: %w (%v)", mirror.ErrSync, err)
	}

	var records []core.MonthlyRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("parse ledger file %s: %w (%v)", fileID, mirror.ErrSync, err)
	}

	return &mirror.LedgerFile{ID: fileID, Records: records}, nil
}

// CreateLedgerFile implements mirror.Store.
func (c *Client) CreateLedgerFile(ctx context.Context, records []core.MonthlyRecord) (string, error) {
	folderID, err := c.getFolderID(ctx)
	if err != nil {
		return "", err
	}

	body, err := encodeRecords(records)
	if err != nil {
		return "", err
	}

	file, err := c.svc.Files.Create(&gdrive.File{
		Name:     c.fileName(),
		MimeType: ledgerMimeType,
		Parents:  []string{folderID},
	}).Media(bytes.NewReader(body)).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", classify("create ledger file", err)
	}

	slog.InfoContext(ctx, "Created Drive ledger file", "name", c.fileName(), "id", file.Id)
	return file.Id, nil
}

// UpdateLedgerFile implements mirror.Store.
func (c *Client) UpdateLedgerFile(ctx context.Context, fileID string, records []core.MonthlyRecord) error {
	body, err := encodeRecords(records)
	if err != nil {
		return err
	}

	_, err = c.svc.Files.Update(fileID, &gdrive.File{}).
		Media(bytes.NewReader(body)).Context(ctx).Do()
	if err != nil {
		return classify("update ledger file", err)
	}
	return nil
}

func encodeRecords(records []core.MonthlyRecord) ([]byte, error) {
	if records == nil {
		records = []core.MonthlyRecord{}
	}
	body, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode ledger: %w", err)
	}
	return body, nil
}

// classify maps Google API failures onto the mirror sentinels: credential
// problems become ErrAuth, everything else ErrSync.
func classify(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%s: %w (%v)", op, mirror.ErrAuth, err)
		}
	}
	return fmt.Errorf("%s: %w (%v)", op, mirror.ErrSync, err)
}
