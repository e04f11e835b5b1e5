package ipc

import (
	"context"
	"testing"
	"time"
)

func TestAuthRejectsWrongToken(t *testing.T) {
	called := false
	srv := NewServer(58321, "correct-token", func(ctx context.Context, req Request) Response {
		called = true
		return OK()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = srv.ListenAndServe(ctx)
	}()
	time.Sleep(50 * time.Millisecond)

	client := NewClient(58321, "wrong-token")
	resp, err := client.Command("STATUS", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != StatusAuthError {
		t.Fatalf("expected AUTH_ERROR, got %v", resp.Status)
	}
	if called {
		t.Fatalf("handler must not run for a bad token")
	}
}

func TestCommandRoundTrip(t *testing.T) {
	srv := NewServer(58322, "tok", func(ctx context.Context, req Request) Response {
		if req.Command != "STATUS" {
			return UnknownCommand()
		}
		return WithData(map[string]string{"hello": "world"})
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.ListenAndServe(ctx) }()
	time.Sleep(50 * time.Millisecond)

	client := NewClient(58322, "tok")
	resp, err := client.Command("STATUS", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != StatusOK {
		t.Fatalf("expected OK, got %v: %v", resp.Status, resp.Error)
	}
}

func TestCheckTokenConstantTime(t *testing.T) {
	if !CheckToken("abc", "abc") {
		t.Fatal("equal tokens should match")
	}
	if CheckToken("abc", "abd") {
		t.Fatal("different tokens should not match")
	}
	if CheckToken("abc", "ab") {
		t.Fatal("different-length tokens should not match")
	}
	if CheckToken("", "") {
		t.Fatal("empty configured token should never match")
	}
}
