package cli

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

const testRecord = `{"created_at":"Wed Oct 10 20:19:24 +0000 2018","text":"hello bay","user":{"screen_name":"alice"}}`

func lengthDelimited(record string) string {
	body := record + "\r\n"
	return fmt.Sprintf("%d\r\n%s", len(body), body)
}

func streamingServer(t *testing.T) (*httptest.Server, func() []string) {
	t.Helper()
	var (
		mu        sync.Mutex
		locations []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		mu.Lock()
		locations = append(locations, r.PostForm.Get("locations"))
		mu.Unlock()

		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, lengthDelimited(testRecord))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)
	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), locations...)
	}
}

func TestConsoleStreamsFilteredStatuses(t *testing.T) {
	srv, requests := streamingServer(t)

	home := createTestHome(t)
	writeTestConfig(t, home, fmt.Sprintf(`
[credentials]
consumer_key = "ck"
consumer_secret = "cs"
access_token = "at"
access_secret = "as"

[stream]
host = %q
autostart = true

[filters]
locations = [[-122.75, 36.8, -121.75, 37.8]]

[outputs.console]
enabled = true
raw = true
`, srv.URL))

	stdin, stdinWriter := io.Pipe()
	out := &syncBuffer{}
	cmd := NewRootCmd()
	cmd.SetIn(stdin)
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"console"})

	done := make(chan error, 1)
	go func() { done <- cmd.Execute() }()

	waitForOutput(t, out, "screen_name> alice\n")
	waitForOutput(t, out, "text> hello bay\n")
	waitForOutput(t, out, "created_at> Wed Oct 10 20:19:24 +0000 2018\n")
	waitForOutput(t, out, "raw> "+testRecord+"\n")

	_, _ = io.WriteString(stdinWriter, "status\n")
	waitForOutput(t, out, "control> State: running")

	_, _ = io.WriteString(stdinWriter, "quit\n")
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("execute console: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("console did not exit after quit")
	}
	_ = stdinWriter.Close()

	if locations := requests(); len(locations) != 1 || locations[0] != "-122.75,36.8,-121.75,37.8" {
		t.Fatalf("expected one request with configured locations, got %v", requests())
	}
}

func TestConsoleReportsRejectedCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	home := createTestHome(t)
	writeTestConfig(t, home, fmt.Sprintf(`
[stream]
host = %q
autostart = false

[filters]
locations = [[-74, 40, -73, 41]]
`, srv.URL))

	out := &syncBuffer{}
	cmd := NewRootCmd()
	cmd.SetIn(strings.NewReader("1\nstatus\n"))
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"console"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute console: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "control> error: ") || !strings.Contains(got, "http 401") {
		t.Fatalf("expected 401 reported on the console, got %q", got)
	}
	if !strings.Contains(got, "control> State: idle") {
		t.Fatalf("expected controller back to idle, got %q", got)
	}
}
