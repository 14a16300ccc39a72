// Package http exposes the attendance service over HTTP/JSON to the browser
// clients: the teacher dashboard creating sessions and the student page
// marking attendance from a scanned link.
package http

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"geoattend/internal/attendance"
	"geoattend/internal/config"
	"geoattend/internal/qr"
)

type Server struct {
	cfg     config.Config
	service *attendance.Service
	encoder qr.Encoder
}

func NewServer(cfg config.Config, service *attendance.Service, encoder qr.Encoder) *Server {
	return &Server{cfg: cfg, service: service, encoder: encoder}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Device-ID"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/api/generate-qr", s.handleGenerateQR)
	r.Post("/api/mark-attendance", s.handleMarkAttendance)
	r.Get("/api/session/{sessionId}", s.handleGetSession)
	r.Get("/api/attendance/{sessionId}", s.handleListAttendance)
	r.Get("/api/attendance/{sessionId}/export", s.handleExportAttendance)

	return r
}

// Models

type generateQRRequest struct {
	ClassName   string  `json:"className"`
	TeacherName string  `json:"teacherName"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

type generateQRResponse struct {
	SessionID string `json:"sessionId"`
	QRCode    string `json:"qrCode"`
	ExpiresAt string `json:"expiresAt"`
}

type markAttendanceRequest struct {
	SessionID   string  `json:"sessionId"`
	StudentName string  `json:"studentName"`
	RollNo      string  `json:"rollNo"`
	Course      string  `json:"course"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

type markAttendanceResponse struct {
	Message        string  `json:"message"`
	DistanceMeters float64 `json:"distanceMeters"`
}

type sessionInfoResponse struct {
	ClassName   string `json:"className"`
	TeacherName string `json:"teacherName"`
	ExpiresAt   string `json:"expiresAt"`
}

type attendanceRecordResponse struct {
	StudentName    string  `json:"studentName"`
	RollNo         string  `json:"rollNo"`
	Course         string  `json:"course"`
	DistanceMeters float64 `json:"distanceMeters"`
	Timestamp      string  `json:"timestamp"`
}

// Handlers

func (s *Server) handleGenerateQR(w http.ResponseWriter, r *http.Request) {
	var req generateQRRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	session, err := s.service.CreateSession(attendance.CreateSessionInput{
		ClassName:   strings.TrimSpace(req.ClassName),
		TeacherName: strings.TrimSpace(req.TeacherName),
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	sessionsCreated.Inc()

	// The QR payload is the attend link carrying the session id; the
	// encoder has no say in what it carries.
	dataURL, err := s.encoder.DataURL(attendURL(s.cfg.FrontendURL, session.ID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, generateQRResponse{
		SessionID: session.ID,
		QRCode:    dataURL,
		ExpiresAt: session.ExpiresAt.Format(time.RFC3339),
	})
}

func (s *Server) handleMarkAttendance(w http.ResponseWriter, r *http.Request) {
	var req markAttendanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	record, err := s.service.MarkAttendance(attendance.MarkAttendanceInput{
		SessionID:   strings.TrimSpace(req.SessionID),
		StudentName: strings.TrimSpace(req.StudentName),
		RollNo:      strings.TrimSpace(req.RollNo),
		Course:      strings.TrimSpace(req.Course),
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		DeviceKey:   deviceKey(r),
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	checkIns.WithLabelValues("accepted").Inc()

	writeJSON(w, http.StatusOK, markAttendanceResponse{
		Message:        "Attendance marked successfully",
		DistanceMeters: round1(record.DistanceMeters),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.service.GetSessionInfo(chi.URLParam(r, "sessionId"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionInfoResponse{
		ClassName:   session.ClassName,
		TeacherName: session.TeacherName,
		ExpiresAt:   session.ExpiresAt.Format(time.RFC3339),
	})
}

func (s *Server) handleListAttendance(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.ListAttendance(chi.URLParam(r, "sessionId"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	resp := make([]attendanceRecordResponse, 0, len(records))
	for _, record := range records {
		resp = append(resp, attendanceRecordResponse{
			StudentName:    record.StudentName,
			RollNo:         record.RollNo,
			Course:         record.Course,
			DistanceMeters: round1(record.DistanceMeters),
			Timestamp:      record.Timestamp.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExportAttendance(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	records, err := s.service.ListAttendance(sessionID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	className, teacherName := "", ""
	if session, infoErr := s.service.Session(sessionID); infoErr == nil {
		className, teacherName = session.ClassName, session.TeacherName
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename(className)))
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"rollNo", "studentName", "course", "className", "teacherName", "timestamp", "distance"})
	for _, record := range records {
		_ = writer.Write([]string{
			record.RollNo,
			record.StudentName,
			record.Course,
			className,
			teacherName,
			record.Timestamp.Format(time.RFC3339),
			fmt.Sprintf("%.1f", record.DistanceMeters),
		})
	}
	writer.Flush()
}

func exportFilename(className string) string {
	name := strings.ReplaceAll(strings.TrimSpace(className), " ", "_")
	if name == "" {
		name = "session"
	}
	return "attendance_" + name + ".csv"
}

// Error mapping

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var invalid *attendance.InvalidInputError
	var tooFar *attendance.TooFarError
	switch {
	case errors.As(err, &invalid):
		checkIns.WithLabelValues("invalid_input").Inc()
		writeError(w, http.StatusBadRequest, "invalid_input")
	case errors.Is(err, attendance.ErrSessionNotFound):
		checkIns.WithLabelValues("not_found").Inc()
		writeError(w, http.StatusNotFound, "session_not_found")
	case errors.Is(err, attendance.ErrSessionExpired):
		checkIns.WithLabelValues("expired").Inc()
		writeError(w, http.StatusGone, "session_expired")
	case errors.As(err, &tooFar):
		checkIns.WithLabelValues("too_far").Inc()
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":          "too_far",
			"distanceMeters": round1(tooFar.DistanceMeters),
			"radiusMeters":   tooFar.RadiusMeters,
		})
	case errors.Is(err, attendance.ErrDuplicateCheckIn):
		checkIns.WithLabelValues("duplicate").Inc()
		writeError(w, http.StatusConflict, "already_marked")
	case errors.Is(err, attendance.ErrDeviceUsed):
		checkIns.WithLabelValues("device_used").Inc()
		writeError(w, http.StatusConflict, "device_already_used")
	default:
		writeError(w, http.StatusInternalServerError, "server_error")
	}
}

// deviceKey identifies the submitting device for per-session reuse
// suppression. Clients may send X-Device-ID; otherwise the key falls back to
// a hash of user agent and client address, which is weak but matches what a
// browser can offer without registration.
func deviceKey(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Device-ID")); id != "" {
		return id
	}
	sum := sha256.Sum256([]byte(r.UserAgent() + "|" + r.RemoteAddr))
	return hex.EncodeToString(sum[:])
}

func attendURL(frontendURL, sessionID string) string {
	return strings.TrimRight(frontendURL, "/") + "/attend/" + sessionID
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Utilities

func decodeJSON(r *http.Request, out any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
