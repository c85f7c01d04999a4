package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDo_SendsHeaders(t *testing.T) {
	var gotAuth, gotDevice, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotDevice = r.Header.Get("X-Device-ID")
		gotKey = r.Header.Get("Idempotency-Key")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"srv-42"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "key-123", "device-abc")
	resp, err := c.Do(context.Background(), "POST", srv.URL+"/v1/sites", []byte(`{"site_number":1}`), "idem-1")
	if err != nil {
		t.Fatalf("do: %v", err)
	}

	if resp.Status != http.StatusCreated {
		t.Errorf("status: got %d, want 201", resp.Status)
	}
	if gotAuth != "Bearer key-123" {
		t.Errorf("authorization: got %q", gotAuth)
	}
	if gotDevice != "device-abc" {
		t.Errorf("device id: got %q", gotDevice)
	}
	if gotKey != "idem-1" {
		t.Errorf("idempotency key: got %q", gotKey)
	}
}

func TestDo_ServerErrorIsNotTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"code":"validation","message":"river_width must be positive"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "", "")
	resp, err := c.Do(context.Background(), "POST", srv.URL+"/v1/sites", []byte(`{}`), "")
	if err != nil {
		t.Fatalf("4xx should not be a transport error: %v", err)
	}
	if resp.Status != http.StatusUnprocessableEntity {
		t.Errorf("status: got %d, want 422", resp.Status)
	}

	respErr := ResponseError(resp)
	var apiErr *APIError
	if !errors.As(respErr, &apiErr) {
		t.Fatalf("want *APIError, got %T: %v", respErr, respErr)
	}
	if apiErr.Code != "validation" {
		t.Errorf("code: got %q", apiErr.Code)
	}
	if !IsServerRejection(respErr) {
		t.Error("validation error should count as server rejection")
	}
}

func TestDo_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse all connections

	c := New(srv.URL, "", "")
	_, err := c.Do(context.Background(), "GET", srv.URL+"/v1/walks", nil, "")
	if err == nil {
		t.Fatal("expected transport error")
	}
	if IsServerRejection(err) {
		t.Error("connection refusal is not a server rejection")
	}
}

func TestResponseError_Sentinels(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusNotFound, ErrNotFound},
	}
	for _, tt := range tests {
		err := ResponseError(&Response{Status: tt.status, Body: []byte(`{"code":"x"}`)})
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: got %v, want %v", tt.status, err, tt.want)
		}
	}
	if err := ResponseError(&Response{Status: 200}); err != nil {
		t.Errorf("2xx: got %v, want nil", err)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "", "")
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}
