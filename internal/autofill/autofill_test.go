package autofill

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"jobscout/internal/profile"
)

func TestIsFormURL(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"https://docs.google.com/forms/d/e/abc/viewform", true},
		{"https://forms.gle/abc123", true},
		{"https://forms.office.com/r/abc", true},
		{"https://docs.google.com/spreadsheets/d/abc", false},
		{"https://example.com/careers", false},
		{"not a url at all ://", false},
		{"", false},
	}

	for _, tc := range cases {
		if got := IsFormURL(tc.url); got != tc.want {
			t.Errorf("IsFormURL(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}

const formPage = `<html><body>
<form action="/submit">
  <input type="hidden" name="token" value="abc123">
  <label for="f1">Full name</label>
  <input type="text" id="f1" name="entry.1">
  <label for="f2">Email address</label>
  <input type="email" id="f2" name="entry.2">
  <label for="f3">Years of experience</label>
  <input type="text" id="f3" name="entry.3">
</form>
</body></html>`

func testFiller(t *testing.T, client *http.Client) *Filler {
	t.Helper()
	f := NewFiller(&profile.Profile{
		Name:  "Jane Doe",
		Email: "jane@example.com",
		Links: []string{"https://janedoe.dev"},
	}, zap.NewNop())
	if client != nil {
		f.client = client
	}
	return f
}

func TestFillSubmitsMatchedFields(t *testing.T) {
	var submitted map[string][]string

	mux := http.NewServeMux()
	mux.HandleFunc("/form", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(formPage))
	})
	mux.HandleFunc("/submit", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		submitted = r.PostForm
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := testFiller(t, srv.Client())

	// The test server host is not a known form host, so bypass the URL gate
	// by calling the internals the way Fill does after the gate.
	doc, base, ok := f.fetchForm(context.Background(), srv.URL+"/form")
	if !ok {
		t.Fatal("expected the form to fetch")
	}
	action, values := f.matchFields(doc, base)
	if action != srv.URL+"/submit" {
		t.Fatalf("unexpected action: %q", action)
	}
	if got := values.Get("entry.1"); got != "Jane Doe" {
		t.Fatalf("name field = %q", got)
	}
	if got := values.Get("entry.2"); got != "jane@example.com" {
		t.Fatalf("email field = %q", got)
	}
	if values.Has("entry.3") {
		t.Fatal("unmatched label must not be filled")
	}
	if got := values.Get("token"); got != "abc123" {
		t.Fatalf("hidden token = %q", got)
	}

	resp, err := srv.Client().PostForm(action, values)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	resp.Body.Close()

	if got := submitted["entry.1"]; len(got) != 1 || got[0] != "Jane Doe" {
		t.Fatalf("server saw name %v", got)
	}
}

func TestFillUnknownHostDeclines(t *testing.T) {
	f := testFiller(t, nil)

	if f.Fill(context.Background(), "https://example.com/careers") {
		t.Fatal("non-form URL must not be filled")
	}
}

func TestFillSwallowsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := testFiller(t, srv.Client())

	if _, _, ok := f.fetchForm(context.Background(), srv.URL); ok {
		t.Fatal("expected fetch to fail on 500")
	}
}

func TestFillNoMatchableFields(t *testing.T) {
	page := `<html><body><form action="/s"><input type="text" name="q"></form></body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(page))
	}))
	defer srv.Close()

	f := testFiller(t, srv.Client())

	doc, base, ok := f.fetchForm(context.Background(), srv.URL)
	if !ok {
		t.Fatal("expected fetch to succeed")
	}
	_, values := f.matchFields(doc, base)
	if len(values) != 0 {
		t.Fatalf("expected no matched fields, got %v", values)
	}
}
