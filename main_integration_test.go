package main

import (
	"net"
	"net/http"
	"os"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap"
)

// The server must drain an in-flight verification request before exiting on
// SIGTERM. A handler blocks mid-request while the signal arrives, then the
// response and the server exit are both checked.
func TestShutdownDrainsInFlightRequest(t *testing.T) {
	inHandler := make(chan struct{})
	release := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("/api/verification/sessions", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-inHandler:
		default:
			close(inHandler)
		}
		<-release
		w.WriteHeader(http.StatusOK)
	})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}

	signalCh := make(chan os.Signal, 1)
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- serveHTTPServerWithOptions(&http.Server{Handler: mux}, 2*time.Second, zap.NewNop(), listener, signalCh)
	}()

	addr := listener.Addr().String()
	waitForListener(t, addr)

	requestDone := make(chan error, 1)
	go func() {
		client := &http.Client{Timeout: 2 * time.Second}
		resp, err := client.Get("http://" + addr + "/api/verification/sessions")
		if err != nil {
			requestDone <- err
			return
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			requestDone <- &net.AddrError{Err: "unexpected status", Addr: resp.Status}
			return
		}
		requestDone <- nil
	}()

	select {
	case <-inHandler:
	case <-time.After(2 * time.Second):
		close(release)
		t.Fatal("request never reached the handler")
	}

	// Signal while the request is still blocked, then let it finish.
	signalCh <- syscall.SIGTERM
	time.Sleep(50 * time.Millisecond)
	close(release)

	select {
	case err := <-requestDone:
		if err != nil {
			t.Fatalf("in-flight request failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight request did not complete")
	}

	select {
	case err := <-serverDone:
		if err != nil {
			t.Fatalf("server did not shut down cleanly: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not exit after the drain")
	}
}

func waitForListener(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server %s did not become ready", addr)
}
