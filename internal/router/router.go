// Package router coordinates incoming research requests: validation,
// duplicate suppression, SERP-result caching and job lifecycle. Duplicate
// in-flight executions for one query hash collapse onto a single call via
// singleflight.
package router

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"planforge/internal/cache"
	"planforge/internal/core"
	"planforge/internal/logging"
	"planforge/internal/types"
)

const (
	maxQueryLength = 1000
	cachePrefix    = "serp:"
)

var injectionMarkers = []string{"<script", "javascript:", "onerror=", "onload=", "</script"}

// Result is the router's answer to a route call.
type Result struct {
	RequestID string      `json:"request_id"`
	Valid     bool        `json:"valid"`
	Cached    bool        `json:"cached"`
	Duplicate bool        `json:"duplicate"`
	JobID     string      `json:"job_id,omitempty"`
	QueryHash string      `json:"query_hash,omitempty"`
	Value     interface{} `json:"result,omitempty"`
	Err       string      `json:"error,omitempty"`
}

// Router tracks active jobs and caches completed results.
type Router struct {
	mu       sync.Mutex
	active   map[string]*types.Job // query_hash -> job
	all      map[string]*types.Job // job_id -> job
	cache    *cache.Manager
	cacheTTL time.Duration
	group    singleflight.Group
}

// New returns a Router backed by the given cache. ttl <= 0 defaults to 3h.
func New(c *cache.Manager, ttl time.Duration) *Router {
	if ttl <= 0 {
		ttl = 3 * time.Hour
	}
	return &Router{
		active:   make(map[string]*types.Job),
		all:      make(map[string]*types.Job),
		cache:    c,
		cacheTTL: ttl,
	}
}

// Hash fingerprints a research request for dedup and cache keying.
func Hash(query, company, userID string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(query) + ":" + company + ":" + userID))
	return hex.EncodeToString(sum[:])
}

// Route validates the request, then answers from cache, an active duplicate
// job, or a freshly created job, in that order of preference.
func (r *Router) Route(query, userID, company string) Result {
	res := Result{RequestID: uuid.NewString()}

	if err := validateQuery(query); err != nil {
		res.Err = err.Error()
		logging.Router("rejected query from %s: %v", userID, err)
		return res
	}
	res.Valid = true
	hash := Hash(query, company, userID)
	res.QueryHash = hash

	r.mu.Lock()
	if job, ok := r.active[hash]; ok {
		r.mu.Unlock()
		res.Duplicate = true
		res.JobID = job.ID
		logging.Router("duplicate request for hash %s -> job %s", hash[:12], job.ID)
		return res
	}
	r.mu.Unlock()

	if v, ok := r.cache.Get(cachePrefix + hash); ok {
		res.Cached = true
		res.Value = v
		logging.Router("cache hit for hash %s", hash[:12])
		return res
	}

	job := &types.Job{
		ID:        uuid.NewString(),
		Query:     query,
		QueryHash: hash,
		UserID:    userID,
		Company:   company,
		Status:    types.JobQueued,
		CreatedAt: time.Now(),
	}
	r.mu.Lock()
	// Re-check under the lock: a racing call may have registered first.
	if existing, ok := r.active[hash]; ok {
		r.mu.Unlock()
		res.Duplicate = true
		res.JobID = existing.ID
		return res
	}
	r.active[hash] = job
	r.all[job.ID] = job
	r.mu.Unlock()

	res.JobID = job.ID
	logging.Router("created job %s for hash %s", job.ID, hash[:12])
	return res
}

// Execute runs fn once per query hash even under concurrent callers; all
// callers receive the same result. The job transitions to processing for the
// duration of the call.
func (r *Router) Execute(hash string, fn func() (interface{}, error)) (interface{}, error) {
	v, err, _ := r.group.Do(hash, func() (interface{}, error) {
		r.setStatus(hash, types.JobProcessing)
		return fn()
	})
	return v, err
}

// MarkComplete finishes the job for hash, caches its result and removes it
// from the active set.
func (r *Router) MarkComplete(hash string, result interface{}) {
	now := time.Now()
	r.mu.Lock()
	job, ok := r.active[hash]
	if ok {
		job.Status = types.JobCompleted
		job.CompletedAt = &now
		job.Result = result
		delete(r.active, hash)
	}
	r.mu.Unlock()

	r.cache.Set(cachePrefix+hash, result, r.cacheTTL)
	if ok {
		logging.Router("job %s completed", job.ID)
	}
}

// MarkFailed finishes the job with an error; nothing is cached.
func (r *Router) MarkFailed(hash string, err error) {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.active[hash]; ok {
		job.Status = types.JobFailed
		job.CompletedAt = &now
		if err != nil {
			job.Error = err.Error()
		}
		delete(r.active, hash)
		logging.Router("job %s failed: %v", job.ID, err)
	}
}

// Job returns a job by id, or nil.
func (r *Router) Job(id string) *types.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.all[id]
}

// CleanupOldJobs removes finished jobs older than maxAge and returns how many
// were dropped.
func (r *Router) CleanupOldJobs(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, job := range r.all {
		done := job.Status == types.JobCompleted || job.Status == types.JobFailed
		if done && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(r.all, id)
			removed++
		}
	}
	if removed > 0 {
		logging.Router("cleaned up %d old jobs", removed)
	}
	return removed
}

// ActiveCount returns how many jobs are currently in flight.
func (r *Router) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

func (r *Router) setStatus(hash string, status types.JobStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.active[hash]; ok {
		job.Status = status
	}
}

func validateQuery(query string) error {
	q := strings.TrimSpace(query)
	if q == "" {
		return fmt.Errorf("empty query: %w", core.ErrInvalidInput)
	}
	if len(q) > maxQueryLength {
		return fmt.Errorf("query exceeds %d characters: %w", maxQueryLength, core.ErrInvalidInput)
	}
	lower := strings.ToLower(q)
	for _, marker := range injectionMarkers {
		if strings.Contains(lower, marker) {
			return fmt.Errorf("query contains disallowed content: %w", core.ErrInvalidInput)
		}
	}
	return nil
}
