package core

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/api"
	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/dispatch"
	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/display"
)

// Action identifiers declared by data-action
const (
	ActionExportData  = "export-data"
	ActionMarkPresent = "mark-present"
	ActionMarkAbsent  = "mark-absent"
	ActionViewDetails = "view-details"
	ActionQuickStats  = "quick-stats"
)

// QuickSaveMessage is shown by the Ctrl/Cmd+S shortcut
const QuickSaveMessage = "Changes saved successfully"

type exportParams struct {
	CourseID  string `attr:"course-id" validate:"required"`
	Format    string `attr:"format"`
	StartDate string `attr:"start-date"`
	EndDate   string `attr:"end-date"`
}

type studentParams struct {
	StudentID string `attr:"student-id" validate:"required"`
	CourseID  string `attr:"course-id" validate:"required"`
}

type detailParams struct {
	ItemID   string `attr:"item-id" validate:"required"`
	ItemType string `attr:"item-type" validate:"required"`
}

type courseParams struct {
	CourseID string `attr:"course-id" validate:"required"`
}

func (c *Controller) actionHandlers() map[string]dispatch.Handler {
	return map[string]dispatch.Handler{
		ActionExportData:  c.handleExport,
		ActionMarkPresent: c.handleMarkPresent,
		ActionMarkAbsent:  c.handleMarkAbsent,
		ActionViewDetails: c.handleViewDetails,
		ActionQuickStats:  c.handleQuickStats,
	}
}

func (c *Controller) shortcuts() []dispatch.Shortcut {
	return []dispatch.Shortcut{
		{
			Combo:          "mod+s",
			PreventDefault: true,
			Run: func(ctx context.Context) error {
				c.notifier.Success(QuickSaveMessage)
				return nil
			},
		},
		{
			Combo: "escape",
			Run: func(ctx context.Context) error {
				if n := c.board.CloseAllModals(); n > 0 {
					slog.Debug("modals closed", "count", n)
				}
				return nil
			},
		},
	}
}

func (c *Controller) handleExport(ctx context.Context, req dispatch.ActionRequest) error {
	var p exportParams
	if err := dispatch.Bind(req, &p); err != nil {
		return err
	}
	return c.gateway.ExportAttendance(p.CourseID, api.ExportOptions{
		Format:    p.Format,
		StartDate: p.StartDate,
		EndDate:   p.EndDate,
	})
}

func (c *Controller) handleMarkPresent(ctx context.Context, req dispatch.ActionRequest) error {
	var p studentParams
	if err := dispatch.Bind(req, &p); err != nil {
		return err
	}
	_, err := c.gateway.MarkAttendance(ctx, p.StudentID, p.CourseID, api.MethodManual, api.Confidence(100))
	return err
}

func (c *Controller) handleMarkAbsent(ctx context.Context, req dispatch.ActionRequest) error {
	var p studentParams
	if err := dispatch.Bind(req, &p); err != nil {
		return err
	}
	return c.gateway.MarkAbsent(ctx, p.StudentID, p.CourseID)
}

// handleViewDetails only records the request; the detail view belongs to
// the front end
func (c *Controller) handleViewDetails(ctx context.Context, req dispatch.ActionRequest) error {
	var p detailParams
	if err := dispatch.Bind(req, &p); err != nil {
		return err
	}
	slog.Info("view details requested", "item_id", p.ItemID, "item_type", p.ItemType)
	return nil
}

func (c *Controller) handleQuickStats(ctx context.Context, req dispatch.ActionRequest) error {
	var p courseParams
	if err := dispatch.Bind(req, &p); err != nil {
		return err
	}

	stats, err := c.gateway.FetchCourseStats(ctx, p.CourseID)
	if err != nil {
		return err
	}

	c.board.ShowModal(statsModal(stats))
	return nil
}

// statsModal renders course statistics; ShowModal replaces any previous one
func statsModal(s *api.CourseStats) display.Modal {
	return display.Modal{
		ID:    display.StatsModalID,
		Title: "Course Statistics",
		Fields: []display.Field{
			{Label: "Total Students", Value: strconv.Itoa(s.TotalStudents)},
			{Label: "Today Present", Value: strconv.Itoa(s.TodayPresent)},
			{Label: "Average Attendance", Value: formatNumber(s.AvgAttendance)},
			{Label: "Attendance Rate", Value: fmt.Sprintf("%s%%", formatNumber(s.AttendanceRate))},
		},
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
