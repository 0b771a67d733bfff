package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func get(t *testing.T, c *Client, ctx context.Context, url string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := c.Do(ctx, req)
	if resp != nil {
		t.Cleanup(func() { resp.Body.Close() })
	}
	return resp, err
}

func TestClient_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	defer ts.Close()

	client, err := New(Config{Timeout: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := get(t, client, context.Background(), ts.URL); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestClient_Redirects(t *testing.T) {
	// /1 -> /2 -> /3
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/1":
			http.Redirect(w, r, "/2", http.StatusFound)
		case "/2":
			http.Redirect(w, r, "/3", http.StatusFound)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer ts.Close()

	tests := []struct {
		name       string
		max        int
		wantErr    bool
		wantStatus int
	}{
		{"limit exceeded", 1, true, 0},
		{"within limit", 3, false, http.StatusOK},
		{"no follow", -1, false, http.StatusFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(Config{MaxRedirects: tt.max})
			if err != nil {
				t.Fatal(err)
			}
			resp, err := get(t, client, context.Background(), ts.URL+"/1")
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestClient_Cookies(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/set" {
			http.SetCookie(w, &http.Cookie{Name: "serpdiff", Value: "test"})
			return
		}
		if c, err := r.Cookie("serpdiff"); err != nil || c.Value != "test" {
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer ts.Close()

	for _, jar := range []bool{true, false} {
		client, err := New(Config{UseCookieJar: jar})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := get(t, client, context.Background(), ts.URL+"/set"); err != nil {
			t.Fatalf("unexpected error on /set: %v", err)
		}
		resp, err := get(t, client, context.Background(), ts.URL+"/check")
		if err != nil {
			t.Fatalf("unexpected error on /check: %v", err)
		}

		want := http.StatusUnauthorized
		if jar {
			want = http.StatusOK
		}
		if resp.StatusCode != want {
			t.Errorf("jar=%v: expected %d from /check, got %d", jar, want, resp.StatusCode)
		}
	}
}

func TestClient_Context(t *testing.T) {
	client, _ := New(Config{})

	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	//lint:ignore SA1012 exercising the nil guard
	if _, err := client.Do(nil, req); err == nil || err.Error() != "nil context" {
		t.Errorf("expected nil context error, got %v", err)
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := get(t, client, ctx, ts.URL); err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestClient_DefaultHeaders(t *testing.T) {
	var gotLang, gotAccept string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLang = r.Header.Get("Accept-Language")
		gotAccept = r.Header.Get("Accept")
	}))
	defer ts.Close()

	client, err := New(Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
	req.Header.Set("Accept", "text/html")
	resp, err := client.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if gotLang != "en-US,en;q=0.9" {
		t.Errorf("expected default Accept-Language, got %q", gotLang)
	}
	if gotAccept != "text/html" {
		t.Errorf("expected request Accept to win, got %q", gotAccept)
	}

	custom, _ := New(Config{Headers: http.Header{"Accept-Language": {"de-DE"}}})
	if _, err := get(t, custom, context.Background(), ts.URL); err != nil {
		t.Fatal(err)
	}
	if gotLang != "de-DE" {
		t.Errorf("expected configured Accept-Language, got %q", gotLang)
	}
}
