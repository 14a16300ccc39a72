package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"geoattend/internal/attendance"
	"geoattend/internal/config"
	internalhttp "geoattend/internal/http"
	"geoattend/internal/qr"
	"geoattend/internal/store"
)

func testConfig(validity time.Duration, radius float64) config.Config {
	return config.Config{
		HTTPAddr:             ":0",
		SessionValidity:      validity,
		GeofenceRadiusMeters: radius,
		FrontendURL:          "http://localhost:3000",
		CORSAllowedOrigins:   []string{"*"},
	}
}

func newRouter(validity time.Duration, radius float64) http.Handler {
	cfg := testConfig(validity, radius)
	service := attendance.NewService(store.NewSessionStore(cfg.SessionValidity), store.NewLedger(), cfg.GeofenceRadiusMeters)
	return internalhttp.NewServer(cfg, service, qr.NewPNGEncoder()).Router()
}

func doJSON(t *testing.T, router http.Handler, method, path, deviceID string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if deviceID != "" {
		req.Header.Set("X-Device-ID", deviceID)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func createSession(t *testing.T, router http.Handler, lat, lng float64) string {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/generate-qr", "", map[string]any{
		"className":   "Physics 101",
		"teacherName": "Dr. Rao",
		"latitude":    lat,
		"longitude":   lng,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("generate-qr status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		SessionID string `json:"sessionId"`
		QRCode    string `json:"qrCode"`
		ExpiresAt string `json:"expiresAt"`
	}
	decodeBody(t, rec, &resp)
	if resp.SessionID == "" {
		t.Fatalf("expected a session id")
	}
	if !strings.HasPrefix(resp.QRCode, "data:image/png;base64,") {
		t.Fatalf("expected a PNG data URL qr code")
	}
	if _, err := time.Parse(time.RFC3339, resp.ExpiresAt); err != nil {
		t.Fatalf("expiresAt not RFC3339: %v", err)
	}
	return resp.SessionID
}

func markPayload(sessionID, rollNo string, lat, lng float64) map[string]any {
	return map[string]any{
		"sessionId":   sessionID,
		"studentName": "Asha",
		"rollNo":      rollNo,
		"course":      "CS101",
		"latitude":    lat,
		"longitude":   lng,
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error string `json:"error"`
	}
	decodeBody(t, rec, &resp)
	return resp.Error
}

func TestGenerateQRRejectsInvalidInput(t *testing.T) {
	router := newRouter(10*time.Minute, 50)
	cases := []struct {
		name    string
		payload map[string]any
	}{
		{"empty class name", map[string]any{"className": "", "teacherName": "t", "latitude": 1.0, "longitude": 1.0}},
		{"whitespace teacher name", map[string]any{"className": "c", "teacherName": "   ", "latitude": 1.0, "longitude": 1.0}},
		{"latitude out of range", map[string]any{"className": "c", "teacherName": "t", "latitude": 90.5, "longitude": 1.0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/generate-qr", "", tc.payload)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if code := errorCode(t, rec); code != "invalid_input" {
				t.Fatalf("expected invalid_input, got %s", code)
			}
		})
	}
}

func TestGenerateQRRejectsUnknownFields(t *testing.T) {
	router := newRouter(10*time.Minute, 50)
	rec := doJSON(t, router, http.MethodPost, "/api/generate-qr", "", map[string]any{
		"className": "c", "teacherName": "t", "latitude": 1.0, "longitude": 1.0, "bogus": true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "invalid_request" {
		t.Fatalf("expected invalid_request, got %s", code)
	}
}

func TestGetSession(t *testing.T) {
	router := newRouter(10*time.Minute, 50)
	sessionID := createSession(t, router, 12.9716, 77.5946)

	rec := doJSON(t, router, http.MethodGet, "/api/session/"+sessionID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		ClassName   string `json:"className"`
		TeacherName string `json:"teacherName"`
	}
	decodeBody(t, rec, &resp)
	if resp.ClassName != "Physics 101" || resp.TeacherName != "Dr. Rao" {
		t.Fatalf("unexpected session info: %+v", resp)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/session/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown id, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "session_not_found" {
		t.Fatalf("expected session_not_found, got %s", code)
	}
}

func TestGetSessionExpired(t *testing.T) {
	router := newRouter(-time.Minute, 50)
	sessionID := createSession(t, router, 12.9716, 77.5946)

	rec := doJSON(t, router, http.MethodGet, "/api/session/"+sessionID, "", nil)
	if rec.Code != http.StatusGone {
		t.Fatalf("expected 410 for expired session, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "session_expired" {
		t.Fatalf("expected session_expired, got %s", code)
	}
}

func TestMarkAttendanceFlow(t *testing.T) {
	router := newRouter(10*time.Minute, 100)
	sessionID := createSession(t, router, 12.9716, 77.5946)

	rec := doJSON(t, router, http.MethodPost, "/api/mark-attendance", "device-1", markPayload(sessionID, "7", 12.9716, 77.5946))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var marked struct {
		Message        string  `json:"message"`
		DistanceMeters float64 `json:"distanceMeters"`
	}
	decodeBody(t, rec, &marked)
	if marked.DistanceMeters != 0 {
		t.Fatalf("expected zero distance at origin, got %f", marked.DistanceMeters)
	}

	// Same roll number again, from another device.
	rec = doJSON(t, router, http.MethodPost, "/api/mark-attendance", "device-2", markPayload(sessionID, "7", 12.9716, 77.5946))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate roll, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "already_marked" {
		t.Fatalf("expected already_marked, got %s", code)
	}

	// New roll number, same device as the accepted check-in.
	rec = doJSON(t, router, http.MethodPost, "/api/mark-attendance", "device-1", markPayload(sessionID, "8", 12.9716, 77.5946))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for device reuse, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "device_already_used" {
		t.Fatalf("expected device_already_used, got %s", code)
	}

	// New roll number from ~1.1km away.
	rec = doJSON(t, router, http.MethodPost, "/api/mark-attendance", "device-3", markPayload(sessionID, "9", 12.9816, 77.5946))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for too far, got %d", rec.Code)
	}
	var tooFar struct {
		Error          string  `json:"error"`
		DistanceMeters float64 `json:"distanceMeters"`
	}
	decodeBody(t, rec, &tooFar)
	if tooFar.Error != "too_far" {
		t.Fatalf("expected too_far, got %s", tooFar.Error)
	}
	if tooFar.DistanceMeters < 1000 || tooFar.DistanceMeters > 1250 {
		t.Fatalf("expected reported distance ~1.1km, got %f", tooFar.DistanceMeters)
	}

	// Only the accepted check-in is on the ledger, in arrival order.
	rec = doJSON(t, router, http.MethodGet, "/api/attendance/"+sessionID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var records []struct {
		StudentName string `json:"studentName"`
		RollNo      string `json:"rollNo"`
	}
	decodeBody(t, rec, &records)
	if len(records) != 1 || records[0].RollNo != "7" {
		t.Fatalf("expected one record for roll 7, got %+v", records)
	}
}

func TestMarkAttendanceSessionErrors(t *testing.T) {
	router := newRouter(10*time.Minute, 100)
	rec := doJSON(t, router, http.MethodPost, "/api/mark-attendance", "d", markPayload("unknown-session", "1", 0, 0))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	expiredRouter := newRouter(-time.Minute, 100)
	sessionID := createSession(t, expiredRouter, 0, 0)
	rec = doJSON(t, expiredRouter, http.MethodPost, "/api/mark-attendance", "d", markPayload(sessionID, "1", 0, 0))
	if rec.Code != http.StatusGone {
		t.Fatalf("expected 410, got %d", rec.Code)
	}
}

func TestListAttendanceEmptySession(t *testing.T) {
	router := newRouter(10*time.Minute, 100)
	sessionID := createSession(t, router, 0, 0)

	rec := doJSON(t, router, http.MethodGet, "/api/attendance/"+sessionID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var records []any
	decodeBody(t, rec, &records)
	if len(records) != 0 {
		t.Fatalf("expected empty list, got %d", len(records))
	}

	rec = doJSON(t, router, http.MethodGet, "/api/attendance/unknown", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", rec.Code)
	}
}

func TestExportAttendanceCSV(t *testing.T) {
	router := newRouter(10*time.Minute, 100)
	sessionID := createSession(t, router, 12.9716, 77.5946)
	rec := doJSON(t, router, http.MethodPost, "/api/mark-attendance", "device-1", markPayload(sessionID, "7", 12.9716, 77.5946))
	if rec.Code != http.StatusOK {
		t.Fatalf("mark failed: %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/attendance/"+sessionID+"/export", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("expected text/csv, got %s", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "attendance_Physics_101.csv") {
		t.Fatalf("unexpected content disposition %q", cd)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus one row, got %d lines", len(lines))
	}
	if lines[0] != "rollNo,studentName,course,className,teacherName,timestamp,distance" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "7,Asha,CS101,Physics 101,Dr. Rao,") {
		t.Fatalf("unexpected row %q", lines[1])
	}
}

func TestHealth(t *testing.T) {
	router := newRouter(10*time.Minute, 100)
	rec := doJSON(t, router, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestDeviceKeyFallback(t *testing.T) {
	// Without X-Device-ID, two submissions from the same agent and address
	// share a derived key and the second is rejected.
	router := newRouter(10*time.Minute, 100)
	sessionID := createSession(t, router, 0, 0)

	rec := doJSON(t, router, http.MethodPost, "/api/mark-attendance", "", markPayload(sessionID, "1", 0, 0))
	if rec.Code != http.StatusOK {
		t.Fatalf("first mark failed: %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodPost, "/api/mark-attendance", "", markPayload(sessionID, "2", 0, 0))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for same derived device key, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "device_already_used" {
		t.Fatalf("expected device_already_used, got %s", code)
	}
}
