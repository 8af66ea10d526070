// Package network implements NetworkWatcher: accumulates filtered
// request/response entries for an agent to retrieve with GetAndClear,
// redacting sensitive headers and truncating bodies.
//
// Grounded on stabilize.NetworkIdleTracker's CDP.On subscription and
// generation/mark_navigation idiom (same Network.* event family, same
// drop-stale-generation behavior on navigation), adapted from a pure
// counter into a full entry accumulator.
package network

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"

	"github.com/hazyhaar/domstate/cdp"
)

// DefaultMaxBodySize is the default response-body truncation threshold.
const DefaultMaxBodySize = 10 * 1024

// State is the CapturedNetworkEntry.state enum.
type State string

const (
	StatePending   State = "pending"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Entry is one captured network request/response pair.
type Entry struct {
	Seq             string            `json:"seq"`
	Method          string            `json:"method"`
	URL             string            `json:"url"`
	ResourceType    string            `json:"resource_type"`
	Timestamp       float64           `json:"timestamp"`
	RequestHeaders  map[string]string `json:"request_headers,omitempty"`
	RequestBody     string            `json:"request_body,omitempty"`
	Status          int               `json:"status,omitempty"`
	StatusText      string            `json:"status_text,omitempty"`
	DurationMs      float64           `json:"duration_ms,omitempty"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	ResponseBody    string            `json:"response_body,omitempty"`
	BodyTruncated   bool              `json:"body_truncated,omitempty"`
	FailureReason   string            `json:"failure_reason,omitempty"`
	State           State             `json:"state"`
}

var sensitiveHeaders = map[string]bool{
	"authorization":       true,
	"cookie":              true,
	"set-cookie":          true,
	"x-api-key":           true,
	"x-auth-token":        true,
	"proxy-authorization": true,
}

const redacted = "***"

// Config configures a Watcher.
type Config struct {
	// ResourceTypes is the filter attach() applies; only requests whose
	// CDP resource type matches one of these are accumulated. Defaults
	// to []string{"XHR"}.
	ResourceTypes []string
	MaxBodySize   int
}

func (c *Config) defaults() {
	if len(c.ResourceTypes) == 0 {
		c.ResourceTypes = []string{"XHR"}
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = DefaultMaxBodySize
	}
}

// Watcher is NetworkWatcher. One per page, attached at most once; created
// already attached since there is no teardown short of Close.
type Watcher struct {
	cfg    Config
	client cdp.Client
	allow  map[string]bool

	mu         sync.Mutex
	generation uint64
	nextSeq    uint64
	byRequest  map[string]*trackedRequest
	entries    []*Entry

	unsubSent     func()
	unsubResponse func()
	unsubFinished func()
	unsubFailed   func()
}

type trackedRequest struct {
	generation          uint64
	entry               *Entry
	responseContentType string
}

// Attach subscribes to CDP network events and begins accumulating entries
// for requests whose resource type passes the filter.
func Attach(client cdp.Client, cfg Config) *Watcher {
	cfg.defaults()
	allow := make(map[string]bool, len(cfg.ResourceTypes))
	for _, rt := range cfg.ResourceTypes {
		allow[strings.ToLower(rt)] = true
	}

	w := &Watcher{cfg: cfg, client: client, allow: allow, byRequest: make(map[string]*trackedRequest)}
	w.register(client)
	return w
}

func (w *Watcher) register(client cdp.Client) {
	w.unsubSent = client.On("Network.requestWillBeSent", w.onRequestWillBeSent)
	w.unsubResponse = client.On("Network.responseReceived", w.onResponseReceived)
	w.unsubFinished = client.On("Network.loadingFinished", w.onLoadingFinished)
	w.unsubFailed = client.On("Network.loadingFailed", w.onLoadingFailed)
}

type requestWillBeSentEvent struct {
	RequestID string  `json:"requestId"`
	Timestamp float64 `json:"timestamp"`
	Type      string  `json:"type"`
	Request   struct {
		URL      string            `json:"url"`
		Method   string            `json:"method"`
		Headers  map[string]string `json:"headers"`
		PostData string            `json:"postData"`
	} `json:"request"`
}

func (w *Watcher) onRequestWillBeSent(raw json.RawMessage) {
	var e requestWillBeSentEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return
	}
	if !w.allow[strings.ToLower(e.Type)] {
		return
	}

	entry := &Entry{
		Method:         e.Request.Method,
		URL:            e.Request.URL,
		ResourceType:   e.Type,
		Timestamp:      e.Timestamp,
		RequestHeaders: redactHeaders(e.Request.Headers),
		State:          StatePending,
	}
	entry.RequestBody, _ = captureBody(e.Request.PostData, e.Request.Headers, w.cfg.MaxBodySize)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextSeq++
	entry.Seq = strconv.FormatUint(w.nextSeq, 10)
	tr := &trackedRequest{generation: w.generation, entry: entry}
	w.byRequest[e.RequestID] = tr
	w.entries = append(w.entries, entry)
}

type responseReceivedEvent struct {
	RequestID string `json:"requestId"`
	Response  struct {
		Status     int               `json:"status"`
		StatusText string            `json:"statusText"`
		Headers    map[string]string `json:"headers"`
	} `json:"response"`
}

func (w *Watcher) onResponseReceived(raw json.RawMessage) {
	var e responseReceivedEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	tr, ok := w.current(e.RequestID)
	if !ok {
		return
	}
	tr.entry.Status = e.Response.Status
	tr.entry.StatusText = e.Response.StatusText
	tr.entry.ResponseHeaders = redactHeaders(e.Response.Headers)
	tr.responseContentType = contentType(e.Response.Headers)
}

type loadingFinishedEvent struct {
	RequestID string  `json:"requestId"`
	Timestamp float64 `json:"timestamp"`
}

func (w *Watcher) onLoadingFinished(raw json.RawMessage) {
	var e loadingFinishedEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return
	}

	w.mu.Lock()
	tr, ok := w.current(e.RequestID)
	if !ok {
		w.mu.Unlock()
		return
	}
	tr.entry.State = StateCompleted
	tr.entry.DurationMs = (e.Timestamp - tr.entry.Timestamp) * 1000
	textLike := isTextLike(tr.responseContentType)
	entry := tr.entry
	maxSize := w.cfg.MaxBodySize
	delete(w.byRequest, e.RequestID)
	w.mu.Unlock()

	if !textLike {
		return
	}
	body, ok := w.fetchResponseBody(e.RequestID)
	if !ok {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(body) > maxSize {
		entry.ResponseBody = body[:maxSize]
		entry.BodyTruncated = true
	} else {
		entry.ResponseBody = body
	}
}

type getResponseBodyResult struct {
	Body          string `json:"body"`
	Base64Encoded bool   `json:"base64Encoded"`
}

// fetchResponseBody issues Network.getResponseBody. Base64-encoded bodies
// (binary responses CDP couldn't deliver as text) are skipped: the
// content-type gate already filters for text-like responses, so a
// base64-encoded result here means CDP disagreed with the content-type
// header, and there is nothing useful to display either way.
func (w *Watcher) fetchResponseBody(requestID string) (string, bool) {
	raw, err := w.client.Send(context.Background(), "Network.getResponseBody", map[string]string{"requestId": requestID})
	if err != nil {
		return "", false
	}
	var res getResponseBodyResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", false
	}
	if res.Base64Encoded {
		return "", false
	}
	return res.Body, true
}

type loadingFailedEvent struct {
	RequestID string `json:"requestId"`
	ErrorText string `json:"errorText"`
}

func (w *Watcher) onLoadingFailed(raw json.RawMessage) {
	var e loadingFailedEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	tr, ok := w.current(e.RequestID)
	if !ok {
		return
	}
	tr.entry.State = StateFailed
	tr.entry.FailureReason = e.ErrorText
	delete(w.byRequest, e.RequestID)
}

// current looks up a tracked request, discarding (and not returning) one
// from a superseded generation so a stale requestfinished/requestfailed
// from before the last mark_navigation never mutates a live entry.
func (w *Watcher) current(requestID string) (*trackedRequest, bool) {
	tr, ok := w.byRequest[requestID]
	if !ok {
		return nil, false
	}
	if tr.generation != w.generation {
		delete(w.byRequest, requestID)
		return nil, false
	}
	return tr, true
}

// MarkNavigation bumps the generation counter; in-flight requests from
// prior generations stop receiving finished/failed updates. Handlers stay
// registered, so the resource-type filter keeps applying across the
// navigation.
func (w *Watcher) MarkNavigation() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.generation++
	w.byRequest = make(map[string]*trackedRequest)
}

// GetAndClear returns the accumulated entries, finalizing any still
// pending as state=pending, and resets the buffer to empty.
func (w *Watcher) GetAndClear() []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]Entry, len(w.entries))
	for i, e := range w.entries {
		out[i] = *e
	}
	w.entries = nil
	w.byRequest = make(map[string]*trackedRequest)
	return out
}

// Close unsubscribes from network events.
func (w *Watcher) Close() {
	for _, unsub := range []func(){w.unsubSent, w.unsubResponse, w.unsubFinished, w.unsubFailed} {
		if unsub != nil {
			unsub()
		}
	}
}

func redactHeaders(headers map[string]string) map[string]string {
	if headers == nil {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if sensitiveHeaders[strings.ToLower(k)] {
			out[k] = redacted
			continue
		}
		out[k] = v
	}
	return out
}

// isTextLike implements the text-like content-type heuristic used to
// decide whether a body is worth capturing.
func isTextLike(contentType string) bool {
	ct := strings.ToLower(contentType)
	if semi := strings.IndexByte(ct, ';'); semi >= 0 {
		ct = ct[:semi]
	}
	ct = strings.TrimSpace(ct)

	if strings.HasPrefix(ct, "text/") {
		return true
	}
	if strings.HasSuffix(ct, "+json") || strings.HasSuffix(ct, "+xml") {
		return true
	}
	switch ct {
	case "application/json", "application/xml", "application/javascript",
		"application/x-www-form-urlencoded", "application/graphql",
		"application/ld+json", "application/hal+json", "application/vnd.api+json":
		return true
	}
	return false
}

func contentType(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, "content-type") {
			return v
		}
	}
	return ""
}

// captureBody applies the text-like content-type gate and the body-size
// truncation limit. Returns ("", false) for non-text-like or empty bodies.
func captureBody(body string, headers map[string]string, maxSize int) (string, bool) {
	if body == "" || !isTextLike(contentType(headers)) {
		return "", false
	}
	if len(body) > maxSize {
		return body[:maxSize], true
	}
	return body, false
}
