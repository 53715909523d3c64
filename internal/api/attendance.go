package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/notify"
)

// Attendance marking methods
const (
	MethodAuto   = "auto"
	MethodManual = "manual"
)

// AttendanceRequest is the body of POST /api/manual-attendance
type AttendanceRequest struct {
	StudentID  string   `json:"student_id"`
	CourseID   string   `json:"course_id"`
	Method     string   `json:"method"`
	Confidence *float64 `json:"confidence"`
}

// AttendanceRecord is the backend's confirmation of a marked student
type AttendanceRecord struct {
	Success     bool   `json:"success"`
	StudentName string `json:"student_name"`
	StudentID   string `json:"student_id"`
	Timestamp   string `json:"timestamp"`
}

// CourseStats is the body of GET /api/course-stats/{courseId}
type CourseStats struct {
	TotalStudents  int     `json:"total_students"`
	TodayPresent   int     `json:"today_present"`
	AvgAttendance  float64 `json:"avg_attendance"`
	AttendanceRate float64 `json:"attendance_rate"`
}

// LiveStats is the body of GET /api/live-attendance-stats/{courseId}.
// The gateway does not validate it; consumers must.
type LiveStats struct {
	PresentCount  int `json:"present_count"`
	TotalStudents int `json:"total_students"`
}

// RecognizedFace is one student matched by the backend
type RecognizedFace struct {
	UserID       string  `json:"user_id"`
	Name         string  `json:"name"`
	StudentID    string  `json:"student_id"`
	Confidence   float64 `json:"confidence"`
	EyesDetected int     `json:"eyes_detected"`
	Timestamp    string  `json:"timestamp"`
}

// RecognitionResult is the body of POST /api/recognize-face
type RecognitionResult struct {
	RecognizedFaces []RecognizedFace `json:"recognized_faces"`
}

// Confidence returns a pointer for AttendanceRequest.Confidence
func Confidence(v float64) *float64 {
	return &v
}

// MarkAttendance records a student as present. An empty method means
// MethodAuto; a nil confidence is sent as null.
func (g *Gateway) MarkAttendance(ctx context.Context, studentID, courseID, method string, confidence *float64) (*AttendanceRecord, error) {
	if method == "" {
		method = MethodAuto
	}

	body, err := g.Call(ctx, RequestSpec{
		Route:    "manual-attendance",
		Endpoint: "/api/manual-attendance",
		Method:   http.MethodPost,
		Payload: AttendanceRequest{
			StudentID:  studentID,
			CourseID:   courseID,
			Method:     method,
			Confidence: confidence,
		},
	})
	if err != nil {
		g.notifier.Notify(notify.Message{Text: "Failed to mark attendance", Severity: notify.Danger})
		return nil, fmt.Errorf("mark attendance for student %s: %w", studentID, err)
	}

	var record AttendanceRecord
	// The confirmation body is informational; an unexpected shape is not a failure
	_ = json.Unmarshal(body, &record)

	g.notifier.Notify(notify.Message{Text: "Attendance marked for student", Severity: notify.Success})
	return &record, nil
}

// MarkAbsent records a student as absent
func (g *Gateway) MarkAbsent(ctx context.Context, studentID, courseID string) error {
	_, err := g.Call(ctx, RequestSpec{
		Route:    "mark-absent",
		Endpoint: "/api/mark-absent",
		Method:   http.MethodPost,
		Payload: map[string]string{
			"student_id": studentID,
			"course_id":  courseID,
		},
	})
	if err != nil {
		return fmt.Errorf("mark absent for student %s: %w", studentID, err)
	}

	g.notifier.Notify(notify.Message{Text: "Student marked as absent", Severity: notify.Warning})
	return nil
}

// FetchCourseStats returns the statistics shown in the stats modal
func (g *Gateway) FetchCourseStats(ctx context.Context, courseID string) (*CourseStats, error) {
	body, err := g.Call(ctx, RequestSpec{
		Route:    "course-stats",
		Endpoint: "/api/course-stats/" + url.PathEscape(courseID),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch course stats %s: %w", courseID, err)
	}

	var stats CourseStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, fmt.Errorf("decode course stats %s: %w", courseID, err)
	}
	return &stats, nil
}

// FetchLiveStats returns the live counters for a course. Failures are
// returned without a notification; the live poller logs them instead.
func (g *Gateway) FetchLiveStats(ctx context.Context, courseID string) (*LiveStats, error) {
	body, err := g.Fetch(ctx, RequestSpec{
		Route:    "live-attendance-stats",
		Endpoint: "/api/live-attendance-stats/" + url.PathEscape(courseID),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch live stats %s: %w", courseID, err)
	}

	var stats LiveStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, fmt.Errorf("decode live stats %s: %w", courseID, err)
	}
	return &stats, nil
}

// RecognizeFaces submits a captured frame for face-based check-in
func (g *Gateway) RecognizeFaces(ctx context.Context, courseID, imageDataURI string) (*RecognitionResult, error) {
	body, err := g.Call(ctx, RequestSpec{
		Route:    "recognize-face",
		Endpoint: "/api/recognize-face",
		Method:   http.MethodPost,
		Payload: map[string]string{
			"image":     imageDataURI,
			"course_id": courseID,
		},
	})
	if err != nil {
		g.notifier.Notify(notify.Message{Text: "Face check-in failed", Severity: notify.Danger})
		return nil, fmt.Errorf("recognize faces for course %s: %w", courseID, err)
	}

	var result RecognitionResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode recognition result: %w", err)
	}
	return &result, nil
}
