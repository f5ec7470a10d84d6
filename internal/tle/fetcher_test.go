package tle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

const (
	issTLE      = "ISS (ZARYA)\n" + issLine1 + "\n" + issLine2 + "\n"
	starlinkTLE = "STARLINK-1007\n" +
		"1 44713U 19074A   24100.50000000  .00001000  00000-0  10000-4 0  9995\n" +
		"2 44713  53.0000 200.0000 0001500  90.0000 270.0000 15.06000000    05\n"
)

// fill is an endless reader of one byte value.
type fill byte

func (f fill) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(f)
	}
	return len(p), nil
}

func serveText(body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, body)
	}))
}

func TestFetcherBodyLimitBoundary(t *testing.T) {
	tests := []struct {
		name    string
		size    int64
		wantErr bool
	}{
		{"at limit", maxBodyBytes, false},
		{"one over", maxBodyBytes + 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.CopyN(w, fill('A'), tt.size)
			}))
			defer server.Close()

			data, err := NewFetcher(server.URL, testLogger).Fetch(context.Background())
			if tt.wantErr {
				if err == nil || !strings.Contains(err.Error(), "byte limit") {
					t.Fatalf("err = %v, want byte limit error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if int64(len(data)) != tt.size {
				t.Errorf("body = %d bytes, want %d", len(data), tt.size)
			}
		})
	}
}

func TestFetcherHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewFetcher(server.URL, testLogger).Fetch(context.Background())
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("err = %v, want status 502 error", err)
	}
}

func TestFetcherContextCancel(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-entered
		cancel()
	}()

	done := make(chan error, 1)
	go func() {
		_, err := NewFetcher(server.URL, testLogger).Fetch(ctx)
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Fetch did not return after cancel")
	}
}

// A cancelled context skips the extra sources as well as the primary.
func TestFetcherCancelledBeforeStart(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		io.WriteString(w, issTLE)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewFetcher(server.URL, testLogger, server.URL).Fetch(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if n := hits.Load(); n != 0 {
		t.Errorf("server hits = %d, want 0", n)
	}
}

// The primary body ends mid-line; the extra catalogue must still start on
// its own line so both parse.
func TestFetcherJoinsExtraWithoutTrailingNewline(t *testing.T) {
	primary := serveText(strings.TrimSuffix(starlinkTLE, "\n"))
	defer primary.Close()
	extra := serveText(issTLE)
	defer extra.Close()
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	data, err := NewFetcher(primary.URL, testLogger, failing.URL, extra.URL).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.Contains(string(data), "    05\nISS (ZARYA)\n") {
		t.Errorf("joined body = %q", data)
	}

	entries, err := Parse(strings.NewReader(string(data)), testLogger)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(entries) != 2 || entries[0].NORADID != 44713 || entries[1].NORADID != 25544 {
		t.Fatalf("entries = %+v, want 44713 then 25544", entries)
	}
}

// A refetched catalogue replaces the dataset and drops every parsed
// element set computed from the previous one.
func TestFetchParseSetInvalidatesElements(t *testing.T) {
	var body atomic.Value
	body.Store(issTLE)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, body.Load().(string))
	}))
	defer server.Close()

	store := NewStore()
	cache := NewElementCache()
	store.AddInvalidator(cache)
	fetcher := NewFetcher(server.URL, testLogger)

	load := func() *TLEDataset {
		t.Helper()
		data, err := fetcher.Fetch(context.Background())
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		entries, err := Parse(strings.NewReader(string(data)), testLogger)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		ds := NewDataset(fetcher.SourceURL(), time.Now(), entries)
		store.Set(ds)
		return ds
	}

	first := load()
	before := cache.Get(first.Satellites[0])
	if got := cache.Stats().Entries; got != 1 {
		t.Fatalf("element cache entries = %d, want 1", got)
	}

	body.Store(strings.Replace(issTLE, issLine2, issLine2[:8]+" 97.0000"+issLine2[16:], 1))
	second := load()
	if got := cache.Stats().Entries; got != 0 {
		t.Errorf("element cache entries after refetch = %d, want 0", got)
	}
	after := cache.Get(second.Satellites[0])
	if before.Inclination == after.Inclination || after.Inclination != 97 {
		t.Errorf("inclination before %v after %v, want refetched 97", before.Inclination, after.Inclination)
	}
}
