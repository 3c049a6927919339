// Package testutils provides shared test infrastructure.
package testutils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"
)

// Test account accepted by FakeCDS.
const (
	FakeUID    = "12345"
	FakeAPIKey = "00000000-1111-2222-3333-444444444444"
	FakeKey    = FakeUID + ":" + FakeAPIKey
)

// FakeCDSOptions configures a FakeCDS server.
type FakeCDSOptions struct {
	// Archives maps a requested year to the bytes served for it.
	// Years without an entry get GenerateArchive(year).
	Archives map[string][]byte

	// Fail maps a year to the failure message the task reports.
	Fail map[string]string

	// Polls is how many status checks report "running" before the task
	// reaches its final state. Zero completes on submit.
	Polls int

	// Truncate serves half of each archive while announcing the full size.
	Truncate bool

	// Delay is slept before the result body is served.
	Delay time.Duration
}

// FakeCDS is an in-process CDS API.
type FakeCDS struct {
	Server *httptest.Server

	opts FakeCDSOptions

	mu        sync.Mutex
	nextID    int
	tasks     map[string]*fakeTask
	submitted []map[string]any
	deleted   []string
	statusHit int
}

type fakeTask struct {
	id       string
	year     string
	dataset  string
	pollsRem int
}

// GenerateArchive returns deterministic content for a year.
func GenerateArchive(year string) []byte {
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte((i + len(year)*31) % 251)
	}
	copy(data, "archive-"+year)
	return data
}

// StartFakeCDS starts a FakeCDS server. It is closed by t.Cleanup.
func StartFakeCDS(t *testing.T, opts FakeCDSOptions) *FakeCDS {
	t.Helper()

	f := &FakeCDS{
		opts:  opts,
		tasks: make(map[string]*fakeTask),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /resources/{dataset}", f.handleSubmit)
	mux.HandleFunc("GET /tasks/{id}", f.handleStatus)
	mux.HandleFunc("DELETE /tasks/{id}", f.handleDelete)
	mux.HandleFunc("GET /download/{id}", f.handleDownload)

	f.Server = httptest.NewServer(f.authenticate(mux))
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the API root to use in credentials.
func (f *FakeCDS) URL() string {
	return f.Server.URL
}

// Submitted returns the decoded request bodies in arrival order.
func (f *FakeCDS) Submitted() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.submitted...)
}

// Deleted returns the request IDs released by clients.
func (f *FakeCDS) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

// StatusChecks returns how many task status requests were served.
func (f *FakeCDS) StatusChecks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusHit
}

// Archive returns the bytes served for a year.
func (f *FakeCDS) Archive(year string) []byte {
	if data, ok := f.opts.Archives[year]; ok {
		return data
	}
	return GenerateArchive(year)
}

func (f *FakeCDS) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, password, ok := r.BasicAuth()
		if !ok || user != FakeUID || password != FakeAPIKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"message": "Authentication failed",
				"reason":  "invalid key",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeCDS) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid json"})
		return
	}
	year, _ := body["year"].(string)

	f.mu.Lock()
	f.nextID++
	task := &fakeTask{
		id:       "task-" + strconv.Itoa(f.nextID),
		year:     year,
		dataset:  r.PathValue("dataset"),
		pollsRem: f.opts.Polls,
	}
	f.tasks[task.id] = task
	f.submitted = append(f.submitted, body)
	reply := f.replyLocked(task)
	f.mu.Unlock()

	writeJSON(w, http.StatusAccepted, reply)
}

func (f *FakeCDS) handleStatus(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.statusHit++
	task, ok := f.tasks[r.PathValue("id")]
	if !ok {
		f.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "no such task"})
		return
	}
	if task.pollsRem > 0 {
		task.pollsRem--
	}
	reply := f.replyLocked(task)
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, reply)
}

func (f *FakeCDS) handleDelete(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.deleted = append(f.deleted, r.PathValue("id"))
	f.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeCDS) handleDownload(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	task, ok := f.tasks[r.PathValue("id")]
	f.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	if f.opts.Delay > 0 {
		select {
		case <-time.After(f.opts.Delay):
		case <-r.Context().Done():
			return
		}
	}

	data := f.Archive(task.year)
	if f.opts.Truncate {
		data = data[:len(data)/2]
	}
	w.Header().Set("Content-Type", "application/x-tar")
	w.Write(data)
}

// replyLocked builds the task reply. f.mu must be held.
func (f *FakeCDS) replyLocked(task *fakeTask) map[string]any {
	if task.pollsRem > 0 {
		return map[string]any{"state": "running", "request_id": task.id}
	}

	if msg, failed := f.opts.Fail[task.year]; failed {
		return map[string]any{
			"state":      "failed",
			"request_id": task.id,
			"error": map[string]string{
				"message": msg,
				"reason":  fmt.Sprintf("year %s rejected", task.year),
			},
		}
	}

	return map[string]any{
		"state":          "completed",
		"request_id":     task.id,
		"location":       f.Server.URL + "/download/" + task.id,
		"content_length": len(f.Archive(task.year)),
		"content_type":   "application/x-tar",
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
