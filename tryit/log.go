package tryit

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// StatusNetworkError is the status text of records for requests that never
// got a response.
const StatusNetworkError = "Network Error"

// Record is one executed request and its outcome. Records are immutable
// once appended to a Log.
type Record struct {
	ID              string        `json:"id"`
	Method          string        `json:"method"`
	Path            string        `json:"path"`
	URL             string        `json:"url"`
	RequestBody     any           `json:"requestBody"`
	RequestHeaders  http.Header   `json:"requestHeaders"`
	Status          int           `json:"status"`
	StatusText      string        `json:"statusText"`
	ResponseHeaders http.Header   `json:"responseHeaders"`
	ResponseBody    any           `json:"responseBody"`
	Timestamp       time.Time     `json:"timestamp"`
	Duration        time.Duration `json:"duration"`
}

// NetworkError reports whether the request failed before a response arrived.
func (r Record) NetworkError() bool {
	return r.Status == 0
}

// Log is an append-only sequence of records. Every append publishes a new
// slice, so a snapshot returned by Records never changes afterwards.
type Log struct {
	mu      sync.Mutex
	records atomic.Pointer[[]Record]
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{}
}

// Append adds r to the end of the log.
func (l *Log) Append(r Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var next []Record
	if cur := l.records.Load(); cur != nil {
		next = make([]Record, len(*cur), len(*cur)+1)
		copy(next, *cur)
	}
	next = append(next, r)

	l.records.Store(&next)
}

// Records returns the current snapshot in append order. The returned slice
// is shared and must not be modified.
func (l *Log) Records() []Record {
	if cur := l.records.Load(); cur != nil {
		return *cur
	}
	return nil
}

// Len returns the number of records.
func (l *Log) Len() int {
	return len(l.Records())
}

// Clear removes every record.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records.Store(nil)
}

// Logs keeps one Log per key, typically an endpoint's "METHOD path".
type Logs struct {
	mu   sync.Mutex
	logs map[string]*Log
}

// For returns the log for key, creating it on first use.
func (ls *Logs) For(key string) *Log {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.logs == nil {
		ls.logs = map[string]*Log{}
	}

	l, ok := ls.logs[key]
	if !ok {
		l = NewLog()
		ls.logs[key] = l
	}
	return l
}

// Clear empties the log for key.
func (ls *Logs) Clear(key string) {
	ls.For(key).Clear()
}
