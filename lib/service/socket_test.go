// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/console/lib/codec"
	"github.com/bureau-foundation/console/lib/testutil"
)

func testSocketPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(testutil.SocketDir(t), "service.sock")
}

// startServer runs server until the test ends. done closes when
// Serve returns.
func startServer(t *testing.T, server *SocketServer) (cancel func(), done <-chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan struct{})
	go func() {
		defer close(serveDone)
		if err := server.Serve(ctx); err != nil {
			t.Errorf("Serve: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		testutil.RequireClosed(t, serveDone, 5*time.Second, "Serve did not return")
	})
	waitForSocket(t, server.socketPath)
	return cancel, serveDone
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second) //nolint:realclock test hang prevention
	for time.Now().Before(deadline) {
		if conn, err := net.Dial("unix", path); err == nil {
			conn.Close()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("socket %s never became ready", path)
}

func TestCallRoundTrip(t *testing.T) {
	server := NewSocketServer(testSocketPath(t), nil)
	server.Handle("echo", func(ctx context.Context, raw []byte) (any, error) {
		var request struct {
			Message string `cbor:"message"`
		}
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, err
		}
		return map[string]any{"echo": strings.ToUpper(request.Message)}, nil
	})
	server.Handle("noop", func(ctx context.Context, raw []byte) (any, error) { return nil, nil })
	startServer(t, server)

	client := NewServiceClient(server.socketPath)
	var result struct {
		Echo string `cbor:"echo"`
	}
	if err := client.Call(context.Background(), "echo", map[string]any{"message": "hello"}, &result); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result.Echo != "HELLO" {
		t.Errorf("echo = %q, want HELLO", result.Echo)
	}
	if err := client.Call(context.Background(), "noop", nil, nil); err != nil {
		t.Errorf("noop: %v", err)
	}
}

func TestCallErrors(t *testing.T) {
	server := NewSocketServer(testSocketPath(t), nil)
	server.Handle("fail", func(ctx context.Context, raw []byte) (any, error) {
		return nil, errors.New("no such collection")
	})
	server.Handle("coded", func(ctx context.Context, raw []byte) (any, error) {
		return nil, fmt.Errorf("batch rejected: %w", WithCode("not_found", errors.New("req-9 missing")))
	})
	startServer(t, server)
	client := NewServiceClient(server.socketPath)

	var serviceError *ServiceError
	err := client.Call(context.Background(), "fail", nil, nil)
	if !errors.As(err, &serviceError) || serviceError.Message != "no such collection" {
		t.Errorf("fail: error = %v, want ServiceError with handler message", err)
	}
	if serviceError != nil && serviceError.Code != "" {
		t.Errorf("fail: code = %q, want empty", serviceError.Code)
	}

	err = client.Call(context.Background(), "coded", nil, nil)
	if !errors.As(err, &serviceError) || serviceError.Code != "not_found" || serviceError.Message != "batch rejected: req-9 missing" {
		t.Errorf("coded: error = %#v, want not_found code with full message", err)
	}

	err = client.Call(context.Background(), "missing", nil, nil)
	if !errors.As(err, &serviceError) || !strings.Contains(serviceError.Message, "unknown action") {
		t.Errorf("missing: error = %v, want unknown action", err)
	}

	unreachable := NewServiceClient(filepath.Join(t.TempDir(), "absent.sock"))
	err = unreachable.Call(context.Background(), "fail", nil, nil)
	if err == nil || errors.As(err, &serviceError) {
		t.Errorf("unreachable socket: error = %v, want transport error", err)
	}
}

func TestMissingActionRejected(t *testing.T) {
	server := NewSocketServer(testSocketPath(t), nil)
	startServer(t, server)

	conn, err := net.Dial("unix", server.socketPath)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	codec.NewEncoder(conn).Encode(map[string]any{"collection": "travel"})

	var response Response
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		t.Fatal(err)
	}
	if response.OK || !strings.Contains(response.Error, "action") {
		t.Errorf("response = %+v, want missing action error", response)
	}
}

func TestStream(t *testing.T) {
	server := NewSocketServer(testSocketPath(t), nil)
	server.HandleStream("count", func(ctx context.Context, raw []byte, conn net.Conn) {
		var request struct {
			Limit int `cbor:"limit"`
		}
		codec.Unmarshal(raw, &request)
		encoder := codec.NewEncoder(conn)
		for index := range request.Limit {
			if err := encoder.Encode(map[string]any{"sequence": index}); err != nil {
				return
			}
		}
	})
	startServer(t, server)

	conn, err := NewServiceClient(server.socketPath).OpenStream(context.Background(), "count", map[string]any{"limit": 3})
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer conn.Close()

	decoder := codec.NewDecoder(conn)
	for index := range 3 {
		var frame map[string]any
		if err := decoder.Decode(&frame); err != nil {
			t.Fatalf("frame %d: %v", index, err)
		}
		if frame["sequence"] != uint64(index) {
			t.Errorf("frame %d sequence = %v", index, frame["sequence"])
		}
	}
}

func TestStreamEndsOnShutdown(t *testing.T) {
	server := NewSocketServer(testSocketPath(t), nil)
	started := make(chan struct{})
	server.HandleStream("follow", func(ctx context.Context, raw []byte, conn net.Conn) {
		close(started)
		<-ctx.Done()
		codec.NewEncoder(conn).Encode(map[string]any{"type": "shutdown"})
	})
	cancel, done := startServer(t, server)

	conn, err := NewServiceClient(server.socketPath).OpenStream(context.Background(), "follow", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	testutil.RequireClosed(t, started, 5*time.Second, "stream handler did not start")

	cancel()
	var frame map[string]any
	if err := codec.NewDecoder(conn).Decode(&frame); err != nil {
		t.Fatalf("reading final frame: %v", err)
	}
	if frame["type"] != "shutdown" {
		t.Errorf("final frame = %v", frame)
	}
	testutil.RequireClosed(t, done, 5*time.Second, "Serve did not return after cancellation")
}

func TestStreamAndRequestCoexist(t *testing.T) {
	server := NewSocketServer(testSocketPath(t), nil)
	release := make(chan struct{})
	server.HandleStream("follow", func(ctx context.Context, raw []byte, conn net.Conn) {
		select {
		case <-release:
		case <-ctx.Done():
		}
	})
	server.Handle("status", func(ctx context.Context, raw []byte) (any, error) {
		return map[string]any{"healthy": true}, nil
	})
	startServer(t, server)
	client := NewServiceClient(server.socketPath)

	stream, err := client.OpenStream(context.Background(), "follow", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer stream.Close()

	var status map[string]any
	if err := client.Call(context.Background(), "status", nil, &status); err != nil {
		t.Fatalf("status while a stream is open: %v", err)
	}
	if status["healthy"] != true {
		t.Errorf("status = %v", status)
	}
	close(release)
}

func TestDuplicateActionPanics(t *testing.T) {
	tests := []struct {
		name     string
		register func(*SocketServer)
	}{
		{"handle twice", func(s *SocketServer) {
			s.Handle("x", func(context.Context, []byte) (any, error) { return nil, nil })
			s.Handle("x", func(context.Context, []byte) (any, error) { return nil, nil })
		}},
		{"stream then handle", func(s *SocketServer) {
			s.HandleStream("x", func(context.Context, []byte, net.Conn) {})
			s.Handle("x", func(context.Context, []byte) (any, error) { return nil, nil })
		}},
		{"handle then stream", func(s *SocketServer) {
			s.Handle("x", func(context.Context, []byte) (any, error) { return nil, nil })
			s.HandleStream("x", func(context.Context, []byte, net.Conn) {})
		}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			test.register(NewSocketServer("/nonexistent.sock", nil))
		})
	}
}

func TestConcurrentCalls(t *testing.T) {
	server := NewSocketServer(testSocketPath(t), nil)
	server.Handle("echo", func(ctx context.Context, raw []byte) (any, error) {
		var request map[string]any
		codec.Unmarshal(raw, &request)
		return request["n"], nil
	})
	startServer(t, server)
	client := NewServiceClient(server.socketPath)

	var waitGroup sync.WaitGroup
	for index := range 16 {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			var n int
			if err := client.Call(context.Background(), "echo", map[string]any{"n": index}, &n); err != nil {
				t.Errorf("call %d: %v", index, err)
				return
			}
			if n != index {
				t.Errorf("call %d echoed %d", index, n)
			}
		}()
	}
	waitGroup.Wait()
}
