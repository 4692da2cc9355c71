package zapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"zapsend/pkg/logx"
)

type memSettings struct {
	mu sync.Mutex
	kv map[string]string
}

func (m *memSettings) Setting(ctx context.Context, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.kv[key]
	return v, ok
}

func TestSendSuccess(t *testing.T) {
	t.Parallel()
	var gotBody map[string]string
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("Client-Token")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"zaapId":"z1","messageId":"m-123"}`))
	}))
	defer srv.Close()

	c := New(Config{SendTextURL: srv.URL, ClientToken: "tok"}, nil, logx.Nop())
	id, err := c.Send(context.Background(), "5511999990001", "hello")
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if id != "m-123" {
		t.Fatalf("provider id = %q", id)
	}
	if gotToken != "tok" {
		t.Fatalf("Client-Token = %q", gotToken)
	}
	if gotBody["phone"] != "5511999990001" || gotBody["message"] != "hello" {
		t.Fatalf("body = %+v", gotBody)
	}
}

func TestSendProviderRejection(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid phone"}`))
	}))
	defer srv.Close()

	c := New(Config{SendTextURL: srv.URL}, nil, logx.Nop())
	_, err := c.Send(context.Background(), "123", "hello")

	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want *DeliveryError", err)
	}
	if de.HTTPStatus != http.StatusBadRequest || de.Reason != "invalid phone" {
		t.Fatalf("delivery error: %+v", de)
	}
}

func TestSendServerErrorWithoutBody(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Config{SendTextURL: srv.URL}, nil, logx.Nop())
	_, err := c.Send(context.Background(), "5511999990001", "hello")

	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want *DeliveryError", err)
	}
	if de.HTTPStatus != http.StatusBadGateway || de.Reason != "provider returned 502" {
		t.Fatalf("delivery error: %+v", de)
	}
}

func TestSendTimeoutIsDeliveryError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(Config{SendTextURL: srv.URL, Timeout: 20 * time.Millisecond}, nil, logx.Nop())
	_, err := c.Send(context.Background(), "5511999990001", "hello")

	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want *DeliveryError", err)
	}
	if de.HTTPStatus != 0 || de.Reason != "request timeout" {
		t.Fatalf("delivery error: %+v", de)
	}
}

func TestSendNotConfigured(t *testing.T) {
	t.Parallel()
	c := New(Config{}, nil, logx.Nop())
	if _, err := c.Send(context.Background(), "5511999990001", "hello"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestSettingsOverrideConfig(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"messageId":"m-1"}`))
	}))
	defer srv.Close()

	// Static config points nowhere usable; the stored setting wins.
	settings := &memSettings{kv: map[string]string{
		SettingSendTextURL: srv.URL,
	}}
	c := New(Config{SendTextURL: "http://127.0.0.1:1/unreachable"}, settings, logx.Nop())

	id, err := c.Send(context.Background(), "5511999990001", "hello")
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if id != "m-1" {
		t.Fatalf("provider id = %q", id)
	}
}

func TestURLDerivedFromInstanceCredentials(t *testing.T) {
	t.Parallel()
	c := New(Config{InstanceID: "inst", InstanceToken: "tok"}, nil, logx.Nop())
	url, _ := c.effective(context.Background())
	want := "https://api.z-api.io/instances/inst/token/tok/send-text"
	if url != want {
		t.Fatalf("url = %q, want %q", url, want)
	}
}

func TestMaskPhone(t *testing.T) {
	t.Parallel()
	if got := maskPhone("5511999990001"); got != "5511...0001" {
		t.Fatalf("maskPhone = %q", got)
	}
	if got := maskPhone("1234"); got != "1234" {
		t.Fatalf("short number changed: %q", got)
	}
}
