// Package gdocs exports reviews to Google Docs on behalf of the user.
package gdocs

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/option"

	"github.com/teslashibe/go-rehearse/pkg/review"
)

var (
	// ErrNotConfigured is returned when OAuth credentials are missing.
	ErrNotConfigured = errors.New("gdocs: GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required")

	// ErrNotAuthenticated is returned before the user connected an account.
	ErrNotAuthenticated = errors.New("gdocs: not authenticated")

	// ErrInvalidState is returned when the OAuth callback state does not
	// match the one issued.
	ErrInvalidState = errors.New("gdocs: invalid oauth state")
)

// Config configures the exporter.
type Config struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`

	// TokenPath stores the OAuth token between runs.
	// Default: ~/.rehearse/google_token.json
	TokenPath string `yaml:"token_path"`

	// Endpoint overrides the Docs API root.
	Endpoint string `yaml:"-"`

	// TokenURL overrides the OAuth token endpoint.
	TokenURL string `yaml:"-"`
}

// Status is the account connection state.
type Status struct {
	Connected bool   `json:"connected"`
	AuthURL   string `json:"auth_url,omitempty"`
}

// Client holds the OAuth token and the Docs service.
type Client struct {
	oauth     *oauth2.Config
	tokenPath string
	endpoint  string
	logger    *slog.Logger

	mu      sync.RWMutex
	token   *oauth2.Token
	service *docs.Service
	state   string
}

// New creates a client and loads a previously saved token, if any.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrNotConfigured
	}
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = "http://localhost:8080/api/google/callback"
	}
	if cfg.TokenPath == "" {
		home, _ := os.UserHomeDir()
		cfg.TokenPath = filepath.Join(home, ".rehearse", "google_token.json")
	}
	if logger == nil {
		logger = slog.Default()
	}

	endpoint := google.Endpoint
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}

	c := &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes: []string{
				docs.DocumentsScope,
				"https://www.googleapis.com/auth/drive.file",
			},
			Endpoint: endpoint,
		},
		tokenPath: cfg.TokenPath,
		endpoint:  cfg.Endpoint,
		logger:    logger.With("component", "gdocs.client"),
	}

	if tok, err := c.loadToken(); err == nil {
		if err := c.setToken(context.Background(), tok); err != nil {
			c.logger.Warn("stored token unusable", "error", err)
		}
	}
	return c, nil
}

// IsAuthenticated reports whether a usable token is held.
func (c *Client) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != nil && (c.token.Valid() || c.token.RefreshToken != "")
}

// AuthURL returns the consent URL. Each call issues a new state.
func (c *Client) AuthURL() string {
	state := uuid.New().String()
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Status returns the connection state, with a consent URL when
// disconnected.
func (c *Client) Status() Status {
	if c.IsAuthenticated() {
		return Status{Connected: true}
	}
	return Status{AuthURL: c.AuthURL()}
}

// Exchange completes the OAuth flow.
func (c *Client) Exchange(ctx context.Context, state, code string) error {
	c.mu.Lock()
	want := c.state
	c.state = ""
	c.mu.Unlock()
	if want == "" || subtle.ConstantTimeCompare([]byte(want), []byte(state)) != 1 {
		return ErrInvalidState
	}

	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("gdocs: exchange code: %w", err)
	}
	if err := c.setToken(ctx, tok); err != nil {
		return err
	}
	if err := c.saveToken(tok); err != nil {
		c.logger.Warn("failed to save token", "error", err)
	}
	c.logger.Info("google account connected")
	return nil
}

// Disconnect forgets the token and removes it from disk.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = nil
	c.service = nil
	if err := os.Remove(c.tokenPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("gdocs: remove token: %w", err)
	}
	return nil
}

// Export writes r to a document and returns its ID. A review that was
// exported before has its document rewritten.
func (c *Client) Export(ctx context.Context, r *review.Review) (string, error) {
	c.mu.RLock()
	service := c.service
	c.mu.RUnlock()
	if service == nil {
		return "", ErrNotAuthenticated
	}

	content := Format(r)
	if r.DocID != "" {
		if err := c.rewrite(ctx, service, r.DocID, content); err != nil {
			return "", err
		}
		return r.DocID, nil
	}

	doc, err := service.Documents.Create(&docs.Document{Title: Title(r)}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("gdocs: create document: %w", err)
	}
	_, err = service.Documents.BatchUpdate(doc.DocumentId, &docs.BatchUpdateDocumentRequest{
		Requests: []*docs.Request{insert(content)},
	}).Context(ctx).Do()
	if err != nil {
		return doc.DocumentId, fmt.Errorf("gdocs: created document but failed to add content: %w", err)
	}

	c.logger.Info("review exported", "review_id", r.ID, "doc_id", doc.DocumentId)
	return doc.DocumentId, nil
}

func (c *Client) rewrite(ctx context.Context, service *docs.Service, docID, content string) error {
	doc, err := service.Documents.Get(docID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gdocs: get document: %w", err)
	}

	var requests []*docs.Request
	if doc.Body != nil && len(doc.Body.Content) > 0 {
		// The body always ends with a newline that cannot be deleted.
		end := doc.Body.Content[len(doc.Body.Content)-1].EndIndex - 1
		if end > 1 {
			requests = append(requests, &docs.Request{
				DeleteContentRange: &docs.DeleteContentRangeRequest{
					Range: &docs.Range{StartIndex: 1, EndIndex: end},
				},
			})
		}
	}
	requests = append(requests, insert(content))

	_, err = service.Documents.BatchUpdate(docID, &docs.BatchUpdateDocumentRequest{
		Requests: requests,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gdocs: update document: %w", err)
	}
	return nil
}

func insert(text string) *docs.Request {
	return &docs.Request{
		InsertText: &docs.InsertTextRequest{
			Location: &docs.Location{Index: 1},
			Text:     text,
		},
	}
}

// DocURL returns the edit URL of a document.
func DocURL(docID string) string {
	return fmt.Sprintf("https://docs.google.com/document/d/%s/edit", docID)
}

func (c *Client) setToken(ctx context.Context, tok *oauth2.Token) error {
	opts := []option.ClientOption{
		option.WithHTTPClient(c.oauth.Client(context.WithoutCancel(ctx), tok)),
	}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	service, err := docs.NewService(ctx, opts...)
	if err != nil {
		return fmt.Errorf("gdocs: create docs service: %w", err)
	}

	c.mu.Lock()
	c.token = tok
	c.service = service
	c.mu.Unlock()
	return nil
}

func (c *Client) loadToken() (*oauth2.Token, error) {
	data, err := os.ReadFile(c.tokenPath)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

func (c *Client) saveToken(tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(c.tokenPath), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.tokenPath, data, 0o600)
}

// Title names the document of r.
func Title(r *review.Review) string {
	return fmt.Sprintf("Répétition %s du %s", r.Kind, r.CreatedAt.Format("02/01/2006 15:04"))
}

// Format renders r as plain document text.
func Format(r *review.Review) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", Title(r))
	fmt.Fprintf(&b, "Score : %d/100\n\n", r.Score)
	fmt.Fprintf(&b, "Synthèse\n%s\n\n", r.Summary)

	if len(r.Strengths) > 0 {
		b.WriteString("Points forts\n")
		for _, s := range r.Strengths {
			fmt.Fprintf(&b, "• %s\n", s)
		}
		b.WriteString("\n")
	}
	if len(r.Improvements) > 0 {
		b.WriteString("Axes d'amélioration\n")
		for _, s := range r.Improvements {
			fmt.Fprintf(&b, "• %s\n", s)
		}
		b.WriteString("\n")
	}
	if !r.Transcript.Empty() {
		b.WriteString("Transcription\n")
		b.WriteString(r.Transcript.Dialogue(review.UserLabel, review.AgentLabel))
	}
	return b.String()
}
