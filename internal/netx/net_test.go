package netx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dmitrijs2005/carekeeper/internal/common"
)

func TestFetchNoCache(t *testing.T) {
	t.Run("sends cache-busting headers", func(t *testing.T) {
		var gotCC, gotPragma string
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotCC = r.Header.Get("Cache-Control")
			gotPragma = r.Header.Get("Pragma")
			_, _ = w.Write([]byte("payload"))
		}))
		defer ts.Close()

		got, err := FetchNoCache(context.Background(), ts.Client(), ts.URL+"/k?X-Amz-Signature=abc")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(got) != "payload" {
			t.Fatalf("body = %q, want payload", got)
		}
		if !strings.Contains(gotCC, "no-cache") {
			t.Fatalf("Cache-Control = %q, want no-cache", gotCC)
		}
		if gotPragma != "no-cache" {
			t.Fatalf("Pragma = %q, want no-cache", gotPragma)
		}
	})

	t.Run("404 -> ErrorNotFound", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer ts.Close()

		_, err := FetchNoCache(context.Background(), ts.Client(), ts.URL)
		if !errors.Is(err, common.ErrorNotFound) {
			t.Fatalf("err = %v, want ErrorNotFound", err)
		}
	})

	t.Run("non-200 -> error", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte("denied"))
		}))
		defer ts.Close()

		_, err := FetchNoCache(context.Background(), ts.Client(), ts.URL)
		if err == nil || !strings.Contains(err.Error(), "download failed: 403") {
			t.Fatalf("error = %v, want download failed: 403", err)
		}
	})

	t.Run("bad URL", func(t *testing.T) {
		if _, err := FetchNoCache(context.Background(), http.DefaultClient, "://bad"); err == nil {
			t.Fatal("expected error for malformed URL")
		}
	})
}
