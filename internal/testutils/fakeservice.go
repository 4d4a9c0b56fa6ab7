// Package testutils provides shared test infrastructure: a scripted fake of
// the export API and, behind the integration build tag, a Minio environment.
package testutils

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Step is one scripted HTTP response. Body may contain {id} and {location},
// replaced by the export id and its download URL.
type Step struct {
	Status int
	Header map[string]string
	Body   string
}

// DownloadStep is one scripted artifact response.
type DownloadStep struct {
	Status int
	Header map[string]string
	Data   []byte
}

// FakeService is an httptest server speaking the export API.
//
// Submit steps are consumed across all submissions; poll and download steps
// are consumed per export. The last step of each script repeats.
type FakeService struct {
	Server *httptest.Server

	SubmitSteps   []Step
	PollSteps     []Step
	DownloadSteps []DownloadStep

	// Latency delays every response.
	Latency time.Duration

	mu        sync.Mutex
	submitPos int
	pollPos   map[string]int
	dlPos     map[string]int
	paths     []string
	auth      []string
	bodies    []string
	nextID    int

	submits     atomic.Int32
	polls       atomic.Int32
	downloads   atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

// DefaultPollSteps reports Running once, then Succeeded.
func DefaultPollSteps() []Step {
	return []Step{
		{Status: http.StatusAccepted, Body: `{"id":"{id}","status":"Running","percentComplete":40}`},
		{Status: http.StatusOK, Body: `{"id":"{id}","status":"Succeeded","percentComplete":100,"resourceLocation":"{location}"}`},
	}
}

// NewFakeService starts a fake serving data as every artifact.
func NewFakeService(data []byte) *FakeService {
	f := &FakeService{
		SubmitSteps:   []Step{{Status: http.StatusAccepted, Body: `{"id":"{id}"}`}},
		PollSteps:     DefaultPollSteps(),
		DownloadSteps: []DownloadStep{{Status: http.StatusOK, Data: data}},
		pollPos:       make(map[string]int),
		dlPos:         make(map[string]int),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	return f
}

// URL is the base URL of the fake.
func (f *FakeService) URL() string { return f.Server.URL }

// Close shuts the server down.
func (f *FakeService) Close() { f.Server.Close() }

// Submits returns the number of ExportTo calls.
func (f *FakeService) Submits() int { return int(f.submits.Load()) }

// Polls returns the number of status calls.
func (f *FakeService) Polls() int { return int(f.polls.Load()) }

// Downloads returns the number of file calls.
func (f *FakeService) Downloads() int { return int(f.downloads.Load()) }

// MaxInFlight returns the highest number of concurrently served requests.
func (f *FakeService) MaxInFlight() int { return int(f.maxInFlight.Load()) }

// Paths returns the request paths seen, in arrival order.
func (f *FakeService) Paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

// Authorizations returns the Authorization headers seen.
func (f *FakeService) Authorizations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.auth...)
}

// SubmitBodies returns the request bodies of ExportTo calls.
func (f *FakeService) SubmitBodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.bodies...)
}

func (f *FakeService) serve(w http.ResponseWriter, r *http.Request) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	if f.Latency > 0 {
		time.Sleep(f.Latency)
	}

	f.mu.Lock()
	f.paths = append(f.paths, r.URL.Path)
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	f.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/ExportTo"):
		f.submits.Add(1)
		f.handleSubmit(w, r)
	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/exports/"):
		f.polls.Add(1)
		id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		f.handlePoll(w, id)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/files/"):
		f.downloads.Add(1)
		f.handleDownload(w, strings.TrimPrefix(r.URL.Path, "/files/"))
	default:
		http.NotFound(w, r)
	}
}

func (f *FakeService) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.bodies = append(f.bodies, string(body))
	step := f.SubmitSteps[min(f.submitPos, len(f.SubmitSteps)-1)]
	f.submitPos++
	id := ""
	if step.Status == http.StatusAccepted {
		f.nextID++
		id = fmt.Sprintf("exp-%d", f.nextID)
	}
	f.mu.Unlock()

	f.write(w, step, id)
}

func (f *FakeService) handlePoll(w http.ResponseWriter, id string) {
	f.mu.Lock()
	pos := f.pollPos[id]
	f.pollPos[id] = pos + 1
	step := f.PollSteps[min(pos, len(f.PollSteps)-1)]
	f.mu.Unlock()

	f.write(w, step, id)
}

func (f *FakeService) handleDownload(w http.ResponseWriter, id string) {
	f.mu.Lock()
	pos := f.dlPos[id]
	f.dlPos[id] = pos + 1
	step := f.DownloadSteps[min(pos, len(f.DownloadSteps)-1)]
	f.mu.Unlock()

	for k, v := range step.Header {
		w.Header().Set(k, v)
	}
	w.Header().Set("RequestId", "rid-dl-"+id)
	w.WriteHeader(step.Status)
	w.Write(step.Data)
}

func (f *FakeService) write(w http.ResponseWriter, step Step, id string) {
	for k, v := range step.Header {
		w.Header().Set(k, v)
	}
	if w.Header().Get("RequestId") == "" {
		w.Header().Set("RequestId", "rid-"+id)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(step.Status)

	body := strings.ReplaceAll(step.Body, "{id}", id)
	body = strings.ReplaceAll(body, "{location}", f.Server.URL+"/files/"+id)
	w.Write([]byte(body))
}
