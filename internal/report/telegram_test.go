package report

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestTelegramDispatcher_Send(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path != "/bot123:tok/sendMessage" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
			return
		}
		if r.PostForm.Get("chat_id") != "42" || r.PostForm.Get("text") != "hello & bye" || r.PostForm.Get("disable_web_page_preview") != "true" {
			t.Errorf("form = %v", r.PostForm)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	d := NewTelegramDispatcher(func() (TelegramCredentials, error) {
		return TelegramCredentials{BotToken: "123:tok", ChatID: "42"}, nil
	})
	d.BaseURL = srv.URL
	if err := d.Send(context.Background(), "hello & bye"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("hits = %d", hits)
	}
}

func TestTelegramDispatcher_NoRetryOnError(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewTelegramDispatcher(func() (TelegramCredentials, error) {
		return TelegramCredentials{BotToken: "t", ChatID: "c"}, nil
	})
	d.BaseURL = srv.URL
	if err := d.Send(context.Background(), "x"); err == nil {
		t.Fatal("expected error for 502")
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("hits = %d, want exactly one attempt", hits)
	}
}

func TestTelegramDispatcher_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	d := NewTelegramDispatcher(func() (TelegramCredentials, error) {
		return TelegramCredentials{BotToken: "t", ChatID: "c"}, nil
	})
	d.BaseURL = srv.URL
	d.Timeout = 50 * time.Millisecond

	start := time.Now()
	if err := d.Send(context.Background(), "x"); err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("timeout not enforced")
	}
}

func TestTelegramDispatcher_CredentialErrors(t *testing.T) {
	tests := []struct {
		name string
		src  CredentialSource
		want error
	}{
		{"nil source", nil, ErrMissingCredentials},
		{"config error", func() (TelegramCredentials, error) { return TelegramCredentials{}, errors.New("bad json") }, ErrConfigRead},
		{"no token", func() (TelegramCredentials, error) { return TelegramCredentials{ChatID: "1"}, nil }, ErrMissingCredentials},
		{"no chat", func() (TelegramCredentials, error) { return TelegramCredentials{BotToken: "t"}, nil }, ErrMissingCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewTelegramDispatcher(tt.src)
			d.BaseURL = "http://127.0.0.1:1"
			if err := d.Send(context.Background(), "x"); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
