// Package pinner talks to the remote pinning service (Pinata-compatible API).
// Verification is deliberately conservative: an unreachable or erroring
// service reports pinned=true so that outages never trigger repin storms.
package pinner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/verdikta/verdikta-applications-sub002/internal/core"
	apperrors "github.com/verdikta/verdikta-applications-sub002/internal/errors"
)

// Client implements core.Pinner against a Pinata-style HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

var _ core.Pinner = (*Client)(nil)

// Options groups dependencies for Client.
type Options struct {
	BaseURL    string        // Required: pin service endpoint
	Token      string        // Optional: bearer token; empty disables writes
	Timeout    time.Duration // Optional: per-request bound, default 20s
	HTTPClient *http.Client  // Optional: overrides Timeout (tests)
	Logger     *slog.Logger  // Optional: structured logger
}

// New builds the pinning client.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, apperrors.Validation("pin service url is required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "pinner")
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		http:    httpClient,
		logger:  logger,
	}, nil
}

type pinListResponse struct {
	Count int `json:"count"`
	Rows  []struct {
		IPFSPinHash  string `json:"ipfs_pin_hash"`
		DatePinned   string `json:"date_pinned"`
		DateUnpinned string `json:"date_unpinned"`
	} `json:"rows"`
}

// VerifyPin checks whether the CID is currently pinned. Only a successful
// response with an empty (or fully unpinned) result set yields pinned=false;
// every failure mode yields pinned=true plus an informational error.
func (c *Client) VerifyPin(ctx context.Context, cid string) (bool, error) {
	endpoint := fmt.Sprintf("%s/data/pinList?hashContains=%s&status=pinned", c.baseURL, url.QueryEscape(cid))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return true, apperrors.Wrap(err, apperrors.ErrCodePermanent, "build pin list request")
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return true, apperrors.Wrap(err, apperrors.ErrCodeTransient, "pin service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return true, apperrors.Transientf("pin list returned status %d", resp.StatusCode)
	}

	var list pinListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return true, apperrors.Wrap(err, apperrors.ErrCodeTransient, "decode pin list")
	}

	for _, row := range list.Rows {
		if row.IPFSPinHash == cid && row.DateUnpinned == "" {
			return true, nil
		}
	}
	return false, nil
}

type pinByHashRequest struct {
	HashToPin  string            `json:"hashToPin"`
	PinataMeta map[string]string `json:"pinataMetadata,omitempty"`
}

// PinByHash asks the service to pin existing IPFS content by CID.
func (c *Client) PinByHash(ctx context.Context, cid string, meta core.PinMetadata) (bool, error) {
	if c.token == "" {
		return false, apperrors.InvalidState("pin service token not configured")
	}

	payload := pinByHashRequest{
		HashToPin: cid,
		PinataMeta: map[string]string{
			"name":         meta.Name,
			"jobId":        strconv.FormatInt(meta.JobID, 10),
			"submissionId": strconv.FormatInt(meta.SubmissionID, 10),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrCodePermanent, "marshal pin request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/pinning/pinByHash", bytes.NewReader(body))
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrCodePermanent, "build pin request")
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrCodeTransient, "pin service unreachable")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if c.logger != nil {
			c.logger.InfoContext(ctx, "pin request accepted", "cid", cid, "job_id", meta.JobID)
		}
		return true, nil
	}
	return false, apperrors.Transientf("pin by hash returned status %d", resp.StatusCode)
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
