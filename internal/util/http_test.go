package util

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, 409, "conflict", "already reviewed", "rid-1")
	if rec.Code != 409 || rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected response: %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	var body APIError
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body != (APIError{Code: "conflict", Message: "already reviewed", RequestID: "rid-1"}) {
		t.Fatalf("unexpected envelope: %+v", body)
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"Lan"}`))
	if err := DecodeJSON(httptest.NewRecorder(), r, &v); err != nil || v.Name != "Lan" {
		t.Fatalf("unexpected decode: %v %+v", err, v)
	}
	r = httptest.NewRequest("POST", "/", strings.NewReader(""))
	if err := DecodeJSON(httptest.NewRecorder(), r, &v); err != nil {
		t.Fatalf("empty body must be accepted: %v", err)
	}
	r = httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"a"} {"name":"b"}`))
	if err := DecodeJSON(httptest.NewRecorder(), r, &v); err == nil {
		t.Fatalf("expected trailing data error")
	}
	r = httptest.NewRequest("POST", "/", strings.NewReader(`{"name":`))
	if err := DecodeJSON(httptest.NewRecorder(), r, &v); err == nil {
		t.Fatalf("expected syntax error")
	}
}
