// Package notarytest runs an in-memory notary service for tests.
package notarytest

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/renkit/renotize/pkg/credential"
	"github.com/renkit/renotize/pkg/notary"
)

// Record is a submission held by the fake service.
type Record struct {
	ID       string
	Name     string
	SHA256   string
	Created  time.Time
	Queries  int
	Uploaded bool
}

// Server is an httptest server speaking the Notary API v2.
type Server struct {
	*httptest.Server

	key *credential.APIKey

	mu      sync.Mutex
	records map[string]*Record
	order   []string

	verdict      func(r Record, query int) string
	failStatus   int
	createStatus int
}

// SetVerdict decides the status reported for a submission on its n-th
// status query (starting at 1). The default is Accepted.
func (s *Server) SetVerdict(f func(r Record, query int) string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verdict = f
}

// FailStatus makes the next n status queries answer 503.
func (s *Server) FailStatus(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStatus = n
}

// FailCreate makes submission creation answer status; 0 restores it.
func (s *Server) FailCreate(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createStatus = status
}

// NewServer starts a fake service that accepts tokens signed by key.
func NewServer(t testing.TB, key *credential.APIKey) *Server {
	t.Helper()
	s := &Server{key: key, records: map[string]*Record{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/notary/v2/submissions", s.handleCreate)
	mux.HandleFunc("/notary/v2/submissions/", s.handleSubmission)
	s.Server = httptest.NewServer(s.authenticate(mux))
	t.Cleanup(s.Close)
	return s
}

// BaseURL is the service root to pass to notary.WithBaseURL.
func (s *Server) BaseURL() string {
	return s.URL + "/notary/v2"
}

// NewClient returns a client for the fake with its in-memory uploader.
func (s *Server) NewClient(t testing.TB) *notary.Client {
	t.Helper()
	c, err := notary.NewClient(s.key, notary.WithBaseURL(s.BaseURL()), notary.WithUploader(s.Uploader()))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

// Records returns copies of all submissions in creation order.
func (s *Server) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.records[id])
	}
	return out
}

// Add registers an existing submission, as if created by an earlier run.
func (s *Server) Add(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.records[id] = &Record{ID: id, Name: name, Created: time.Now(), Uploaded: true}
	s.order = append(s.order, id)
	return id
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		token, err := jwt.Parse(raw, func(tok *jwt.Token) (interface{}, error) {
			if tok.Header["kid"] != s.key.KeyID {
				return nil, fmt.Errorf("unexpected kid %v", tok.Header["kid"])
			}
			return &s.key.PrivateKey.PublicKey, nil
		}, jwt.WithValidMethods([]string{"ES256"}))
		if err != nil || !token.Valid {
			writeError(w, http.StatusUnauthorized, "NOT_AUTHORIZED", "Authentication credentials are missing or invalid.")
			return
		}
		claims, _ := token.Claims.(jwt.MapClaims)
		if claims["iss"] != s.key.IssuerID || !claims.VerifyAudience("appstoreconnect-v1", true) {
			writeError(w, http.StatusUnauthorized, "NOT_AUTHORIZED", "Invalid issuer or audience.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", r.Method)
		return
	}
	s.mu.Lock()
	createStatus := s.createStatus
	s.mu.Unlock()
	if createStatus != 0 {
		writeError(w, createStatus, "FORCED", "forced failure")
		return
	}
	var req struct {
		SHA256         string `json:"sha256"`
		SubmissionName string `json:"submissionName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SHA256 == "" || req.SubmissionName == "" {
		writeError(w, http.StatusBadRequest, "PARAMETER_ERROR", "sha256 and submissionName are required")
		return
	}

	s.mu.Lock()
	id := uuid.NewString()
	s.records[id] = &Record{ID: id, Name: req.SubmissionName, SHA256: req.SHA256, Created: time.Now()}
	s.order = append(s.order, id)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"id":   id,
			"type": "newSubmissions",
			"attributes": map[string]string{
				"awsAccessKeyId":     "ASIAEXAMPLE",
				"awsSecretAccessKey": "secret",
				"awsSessionToken":    "session",
				"bucket":             "notary-submissions-prod",
				"object":             "prod/" + id,
			},
		},
	})
}

func (s *Server) handleSubmission(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/notary/v2/submissions/")
	id, logs := strings.TrimSuffix(rest, "/logs"), strings.HasSuffix(rest, "/logs")

	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "NOT_FOUND", "There is no resource of type 'submissions' with id '"+id+"'")
		return
	}
	if logs {
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"data": map[string]interface{}{
				"id":         id,
				"type":       "submissionsLog",
				"attributes": map[string]string{"developerLogUrl": "https://logs.example.com/" + id},
			},
		})
		return
	}
	if s.failStatus > 0 {
		s.failStatus--
		s.mu.Unlock()
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "try again later")
		return
	}
	rec.Queries++
	snapshot := *rec
	verdict := s.verdict
	s.mu.Unlock()

	status := notary.StatusAccepted
	if !snapshot.Uploaded {
		status = notary.StatusInProgress
	} else if verdict != nil {
		status = verdict(snapshot, snapshot.Queries)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"id":   id,
			"type": "submissions",
			"attributes": map[string]string{
				"status":      status,
				"name":        snapshot.Name,
				"createdDate": snapshot.Created.UTC().Format(time.RFC3339),
			},
		},
	})
}

// Uploader returns an uploader that checks the file against the digest
// the submission was created with.
func (s *Server) Uploader() notary.Uploader {
	return uploader{s}
}

type uploader struct{ s *Server }

func (u uploader) Upload(ctx context.Context, target notary.UploadTarget, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	id := strings.TrimPrefix(target.Object, "prod/")

	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	rec, ok := u.s.records[id]
	if !ok {
		return fmt.Errorf("unknown object %s", target.Object)
	}
	if sum := fmt.Sprintf("%x", sha256.Sum256(data)); sum != rec.SHA256 {
		return fmt.Errorf("digest mismatch for %s: got %s, want %s", id, sum, rec.SHA256)
	}
	rec.Uploaded = true
	return nil
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]interface{}{
		"errors": []map[string]string{{
			"status": fmt.Sprint(status),
			"code":   code,
			"title":  http.StatusText(status),
			"detail": detail,
		}},
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
