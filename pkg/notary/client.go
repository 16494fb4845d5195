// Package notary is a client for the App Store Connect Notary API v2.
package notary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/renkit/renotize/pkg/credential"
	"golang.org/x/oauth2"
)

// DefaultBaseURL is the production notary service.
const DefaultBaseURL = "https://appstoreconnect.apple.com/notary/v2"

// Service states reported in a submission's status attribute.
const (
	StatusInProgress = "In Progress"
	StatusAccepted   = "Accepted"
	StatusInvalid    = "Invalid"
	StatusRejected   = "Rejected"
)

const maxResponseSize = 1 << 20

// Submission is a notarization request as reported by the service.
type Submission struct {
	ID          string
	Name        string
	Status      string
	CreatedDate time.Time
}

// UploadTarget holds the temporary S3 credentials and location returned
// when a submission is created.
type UploadTarget struct {
	AccessKeyID     string `json:"awsAccessKeyId"`
	SecretAccessKey string `json:"awsSecretAccessKey"`
	SessionToken    string `json:"awsSessionToken"`
	Bucket          string `json:"bucket"`
	Object          string `json:"object"`
}

// Client talks to the notary service. It is safe for concurrent use.
type Client struct {
	baseURL  string
	http     *http.Client
	uploader Uploader
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another service root.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithUploader replaces the S3 uploader.
func WithUploader(u Uploader) Option {
	return func(c *Client) { c.uploader = u }
}

// NewClient creates a client authenticated with key.
func NewClient(key *credential.APIKey, opts ...Option) (*Client, error) {
	if key == nil || key.PrivateKey == nil {
		return nil, fmt.Errorf("an API key is required")
	}
	httpClient := oauth2.NewClient(context.Background(), NewTokenSource(key))
	httpClient.Timeout = 2 * time.Minute

	c := &Client{
		baseURL:  DefaultBaseURL,
		http:     httpClient,
		uploader: S3Uploader{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type newSubmissionRequest struct {
	SHA256         string `json:"sha256"`
	SubmissionName string `json:"submissionName"`
}

type newSubmissionResponse struct {
	Data struct {
		ID         string       `json:"id"`
		Attributes UploadTarget `json:"attributes"`
	} `json:"data"`
}

type submissionResponse struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Status      string `json:"status"`
			Name        string `json:"name"`
			CreatedDate string `json:"createdDate"`
		} `json:"attributes"`
	} `json:"data"`
}

type logsResponse struct {
	Data struct {
		Attributes struct {
			DeveloperLogURL string `json:"developerLogUrl"`
		} `json:"attributes"`
	} `json:"data"`
}

// CreateSubmission registers a new submission and returns its ID with the
// upload target for the file contents.
func (c *Client) CreateSubmission(ctx context.Context, name, sha256 string) (string, UploadTarget, error) {
	var resp newSubmissionResponse
	err := c.do(ctx, http.MethodPost, "/submissions", newSubmissionRequest{SHA256: sha256, SubmissionName: name}, &resp)
	if err != nil {
		return "", UploadTarget{}, err
	}
	if resp.Data.ID == "" {
		return "", UploadTarget{}, fmt.Errorf("notary service returned no submission ID")
	}
	return resp.Data.ID, resp.Data.Attributes, nil
}

// Submit creates a submission for the file at path and uploads it.
func (c *Client) Submit(ctx context.Context, path, name, sha256 string) (string, error) {
	id, target, err := c.CreateSubmission(ctx, name, sha256)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return id, err
	}
	if err := c.uploader.Upload(ctx, target, path); err != nil {
		return id, fmt.Errorf("failed to upload %s: %w", name, err)
	}
	return id, nil
}

// Status fetches the current state of a submission.
func (c *Client) Status(ctx context.Context, id string) (*Submission, error) {
	var resp submissionResponse
	if err := c.do(ctx, http.MethodGet, "/submissions/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	sub := &Submission{
		ID:     resp.Data.ID,
		Name:   resp.Data.Attributes.Name,
		Status: resp.Data.Attributes.Status,
	}
	if sub.ID == "" {
		sub.ID = id
	}
	if created, err := time.Parse(time.RFC3339, resp.Data.Attributes.CreatedDate); err == nil {
		sub.CreatedDate = created
	}
	return sub, nil
}

// LogURL returns the developer log URL of a finished submission.
func (c *Client) LogURL(ctx context.Context, id string) (string, error) {
	var resp logsResponse
	if err := c.do(ctx, http.MethodGet, "/submissions/"+url.PathEscape(id)+"/logs", nil, &resp); err != nil {
		return "", err
	}
	return resp.Data.Attributes.DeveloperLogURL, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}
