package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/Growth-Sheriff/dernekv1-sub000/internal/journal"
)

// DefaultBatchSize caps how many journal entries one push delivers.
const DefaultBatchSize = 50

// Config holds the remote endpoint settings for a client.
type Config struct {
	// BaseURL is the remote sync service root, e.g. "https://sync.example.com".
	BaseURL string

	// Token is the bearer credential sent on every request.
	Token string

	// BatchSize caps entries per push (default DefaultBatchSize).
	BatchSize int

	// HTTPTimeout bounds each remote call (default 30s).
	HTTPTimeout time.Duration

	// Logger for sync activity. If nil, a default logger writing to stderr
	// is used.
	Logger *log.Logger
}

// client implements the Syncer interface.
type client struct {
	journal  *journal.Journal
	registry *Registry
	http     *http.Client
	baseURL  string
	token    string
	batch    int
	logger   *log.Logger
}

// New creates a Syncer over the given journal and applier registry.
//
// The journal must be backed by an initialized store. The registry decides
// which domain tables pull results can be applied to; push does not consult
// it.
func New(j *journal.Journal, reg *Registry, cfg Config) Syncer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &client{
		journal:  j,
		registry: reg,
		http:     &http.Client{Timeout: cfg.HTTPTimeout},
		baseURL:  cfg.BaseURL,
		token:    cfg.Token,
		batch:    cfg.BatchSize,
		logger:   cfg.Logger,
	}
}

// pushBody is the JSON body of one outbound write request.
type pushBody struct {
	ID        string          `json:"id"`
	Operation string          `json:"operation"`
	Data      json.RawMessage `json:"data"`
}

// Push implements Syncer.Push.
//
// The candidate entries are read locally first; no database connection is
// held across the remote calls. Entries are marked synced one at a time so
// a crash mid-batch loses at most the mark for entries already acknowledged
// - those are redelivered on the next push (at-least-once).
func (c *client) Push(ctx context.Context, tenantID string) (*PushResult, error) {
	entries, err := c.journal.Pending(ctx, tenantID, c.batch)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending entries: %w", err)
	}

	result := &PushResult{}
	if len(entries) == 0 {
		return result, nil
	}

	// Once an entry for a record fails, later entries for the same record
	// are held back so UPDATE/DELETE cannot arrive out of order.
	failedRecords := make(map[string]bool)

	for _, e := range entries {
		key := e.TableName + "/" + e.RecordID

		if failedRecords[key] {
			result.Failed++
			result.Errors = append(result.Errors,
				fmt.Sprintf("entry %s: held back, earlier change for %s failed", e.ID, key))
			continue
		}

		if err := c.sendEntry(ctx, e); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("entry %s: %v", e.ID, err))
			failedRecords[key] = true
			c.logger.Printf("WARNING: push failed for %s (%s %s): %v", e.ID, e.Operation, key, err)
			continue
		}

		if err := c.journal.MarkSynced(ctx, e.ID); err != nil {
			// The remote has the change; the local flag update failed. The
			// entry will be redelivered, which the remote must tolerate.
			return result, fmt.Errorf("failed to mark entry %s synced: %w", e.ID, err)
		}
		result.Synced++
	}

	c.logger.Printf("Push complete for tenant %s: synced=%d failed=%d", tenantID, result.Synced, result.Failed)
	return result, nil
}

// sendEntry issues one remote write request for a journal entry.
func (c *client) sendEntry(ctx context.Context, e *journal.Entry) error {
	body, err := json.Marshal(pushBody{
		ID:        e.RecordID,
		Operation: string(e.Operation),
		Data:      e.Payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal push body: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/sync/%s", c.baseURL, url.PathEscape(e.TableName))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("transport error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return &RemoteError{Status: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// pullResponse is the JSON body of a pull response.
type pullResponse struct {
	Changes       []RemoteChange `json:"changes"`
	LatestVersion int64          `json:"latest_version"`
}

// Pull implements Syncer.Pull.
func (c *client) Pull(ctx context.Context, tenantID string, sinceVersion int64) (*PullResult, error) {
	endpoint := fmt.Sprintf("%s/api/v1/sync/pull?since_version=%s",
		c.baseURL, strconv.FormatInt(sinceVersion, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build pull request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pull transport error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, &RemoteError{Status: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}

	var parsed pullResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode pull response: %w", err)
	}

	c.logger.Printf("Pull complete for tenant %s: %d changes since version %d",
		tenantID, len(parsed.Changes), sinceVersion)
	return &PullResult{
		Changes:       parsed.Changes,
		LatestVersion: parsed.LatestVersion,
	}, nil
}
