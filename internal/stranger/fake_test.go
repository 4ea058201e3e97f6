package stranger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeService stands in for the remote chat service.
type fakeService struct {
	srv  *httptest.Server
	quit chan struct{}

	sessionID string
	events    chan string

	mu          sync.Mutex
	paths       []string
	randIDs     []string
	userAgents  []string
	sends       []url.Values
	commands    []string
	recaptchas  []url.Values
	disconnects []url.Values
	sendReply   string
	sendDelay   time.Duration
	failEvents  bool

	inFlight    int32
	maxInFlight int32
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()

	f := &fakeService{
		quit:      make(chan struct{}),
		sessionID: "ABC123",
		events:    make(chan string, 16),
		sendReply: "win",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/start", f.handleStart)
	mux.HandleFunc("/events", f.handleEvents)
	mux.HandleFunc("/send", f.handleSend)
	mux.HandleFunc("/typing", f.handleCommand)
	mux.HandleFunc("/stoppedtyping", f.handleCommand)
	mux.HandleFunc("/recaptcha", f.handleRecaptcha)
	mux.HandleFunc("/disconnect", f.handleDisconnect)

	f.srv = httptest.NewServer(f.record(mux))
	t.Cleanup(func() {
		close(f.quit)
		f.srv.Close()
	})

	return f
}

func (f *fakeService) base() string {
	return f.srv.URL + "/"
}

func (f *fakeService) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.paths = append(f.paths, r.URL.Path)
		f.userAgents = append(f.userAgents, r.UserAgent())
		f.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (f *fakeService) handleStart(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.randIDs = append(f.randIDs, r.URL.Query().Get("randid"))
	id := f.sessionID
	f.mu.Unlock()

	w.Write([]byte(`"` + id + `"`))
}

func (f *fakeService) handleEvents(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	fail := f.failEvents
	f.mu.Unlock()

	if fail {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}

	select {
	case body := <-f.events:
		w.Write([]byte(body))
	case <-r.Context().Done():
	case <-f.quit:
	}
}

func (f *fakeService) handleSend(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()

	n := atomic.AddInt32(&f.inFlight, 1)
	for {
		peak := atomic.LoadInt32(&f.maxInFlight)
		if n <= peak || atomic.CompareAndSwapInt32(&f.maxInFlight, peak, n) {
			break
		}
	}

	f.mu.Lock()
	f.sends = append(f.sends, r.PostForm)
	reply, delay := f.sendReply, f.sendDelay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	// leave before answering so the next queued send never overlaps
	atomic.AddInt32(&f.inFlight, -1)
	w.Write([]byte(reply))
}

func (f *fakeService) handleCommand(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()

	f.mu.Lock()
	f.commands = append(f.commands, r.URL.Path+"?"+r.PostForm.Encode())
	f.mu.Unlock()

	w.Write([]byte("win"))
}

func (f *fakeService) handleRecaptcha(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()

	f.mu.Lock()
	f.recaptchas = append(f.recaptchas, r.PostForm)
	f.mu.Unlock()

	w.Write([]byte("win"))
}

func (f *fakeService) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()

	f.mu.Lock()
	f.disconnects = append(f.disconnects, r.PostForm)
	f.mu.Unlock()

	w.Write([]byte("win"))
}

func (f *fakeService) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, p := range f.paths {
		if p == path {
			n++
		}
	}
	return n
}

func (f *fakeService) sent() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.sends...)
}

// recorder collects callback invocations.
type recorder struct {
	mu           sync.Mutex
	waiting      int
	connected    int
	disconnected int
	typing       int
	stopped      int
	messages     []string
	challenges   []string
	rejections   []string
	lookups      []*ImageLookup
	errs         []error
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		Waiting:       func(*Client) { r.inc(&r.waiting) },
		Connected:     func(*Client) { r.inc(&r.connected) },
		Disconnected:  func(*Client) { r.inc(&r.disconnected) },
		Typing:        func(*Client) { r.inc(&r.typing) },
		StoppedTyping: func(*Client) { r.inc(&r.stopped) },
		Message: func(_ *Client, text string) {
			r.mu.Lock()
			r.messages = append(r.messages, text)
			r.mu.Unlock()
		},
		ChallengeRequired: func(_ *Client, token string, lookup *ImageLookup) {
			r.mu.Lock()
			r.challenges = append(r.challenges, token)
			r.lookups = append(r.lookups, lookup)
			r.mu.Unlock()
		},
		ChallengeRejected: func(_ *Client, token string, lookup *ImageLookup) {
			r.mu.Lock()
			r.rejections = append(r.rejections, token)
			r.lookups = append(r.lookups, lookup)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) sink(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *recorder) inc(n *int) {
	r.mu.Lock()
	*n++
	r.mu.Unlock()
}

func (r *recorder) get(n *int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *n
}

func (r *recorder) reported() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) gotMessages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

// staticResolver answers every lookup with a fixed result.
type staticResolver struct {
	ref string
	err error
}

func (s staticResolver) ResolveImage(ctx context.Context, req ChallengeRequest) (string, error) {
	return s.ref, s.err
}

var errLookup = errors.New("lookup failed")

func newTestClient(t *testing.T, f *fakeService, rec *recorder, resolver ImageResolver) *Client {
	c := New(Options{
		Server:    f.base(),
		Resolver:  resolver,
		ErrorSink: rec.sink,
	}, rec.handlers())
	t.Cleanup(c.Disconnect)
	return c
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// connectAndPair connects and feeds a connected event.
func connectAndPair(t *testing.T, c *Client, f *fakeService) {
	t.Helper()

	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	f.events <- `[["connected"]]`
	waitFor(t, "connected status", func() bool { return c.Status() == Connected })
}
