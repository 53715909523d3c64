package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/RAVEESHMK/Enhancing-Attendence-Systems-with-Face-Recognition-An-HCI-Driven-Redesign/internal/notify"
)

// Navigator starts a navigation-style download of target. It returns once
// the download is initiated; completion is not reported back.
type Navigator interface {
	Navigate(target *url.URL, filename string) error
}

// ExportOptions selects the exported range. Empty fields are omitted.
type ExportOptions struct {
	Format    string // defaults to "csv"
	StartDate string
	EndDate   string
}

// ExportURL builds the export URL. Only non-empty parameters are added,
// always in the order format, start_date, end_date.
func (g *Gateway) ExportURL(courseID string, opts ExportOptions) (*url.URL, error) {
	if opts.Format == "" {
		opts.Format = "csv"
	}

	query := []Param{{Key: "format", Value: opts.Format}}
	if opts.StartDate != "" {
		query = append(query, Param{Key: "start_date", Value: opts.StartDate})
	}
	if opts.EndDate != "" {
		query = append(query, Param{Key: "end_date", Value: opts.EndDate})
	}

	return g.resolve("/api/export-attendance/"+url.PathEscape(courseID), query)
}

// ExportAttendance hands the export URL to the navigator so the file
// streams to disk instead of being buffered. The success notification is
// shown as soon as the download starts.
func (g *Gateway) ExportAttendance(courseID string, opts ExportOptions) error {
	if opts.Format == "" {
		opts.Format = "csv"
	}

	err := g.startExport(courseID, opts)
	if err != nil {
		g.notifier.Notify(notify.Message{Text: "Export failed", Severity: notify.Danger})
		return fmt.Errorf("export attendance for course %s: %w", courseID, err)
	}

	g.notifier.Notify(notify.Message{Text: "Export started successfully", Severity: notify.Success})
	return nil
}

func (g *Gateway) startExport(courseID string, opts ExportOptions) error {
	if g.navigator == nil {
		return fmt.Errorf("no navigator configured")
	}

	target, err := g.ExportURL(courseID, opts)
	if err != nil {
		return err
	}

	filename := fmt.Sprintf("attendance_%s_%s.%s", courseID, g.now().Format("2006-01-02"), opts.Format)

	slog.Info("export started",
		"course_id", courseID,
		"url", target.String(),
		"filename", filename,
	)

	return g.navigator.Navigate(target, filename)
}

// FileDownloader is a Navigator that streams downloads into a directory
type FileDownloader struct {
	client *http.Client
	dir    string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFileDownloader creates a downloader sharing client's cookies
func NewFileDownloader(client *http.Client, dir string) *FileDownloader {
	ctx, cancel := context.WithCancel(context.Background())
	return &FileDownloader{
		client: client,
		dir:    dir,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Navigate creates the destination file and streams into it in the
// background.
func (d *FileDownloader) Navigate(target *url.URL, filename string) error {
	if err := d.ctx.Err(); err != nil {
		return fmt.Errorf("downloader closed: %w", err)
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create export dir: %w", err)
	}

	path := filepath.Join(d.dir, filepath.Base(filename))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}

	req, err := http.NewRequestWithContext(d.ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to build download request: %w", err)
	}

	d.wg.Add(1)
	go d.stream(req, f, path)

	return nil
}

func (d *FileDownloader) stream(req *http.Request, f *os.File, path string) {
	defer d.wg.Done()

	start := time.Now()
	n, err := d.copy(req, f)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}

	if err != nil {
		os.Remove(path)
		slog.Error("export download failed",
			"path", path,
			"error", err,
		)
		return
	}

	slog.Info("export download finished",
		"path", path,
		"bytes", n,
		"duration", time.Since(start),
	)
}

func (d *FileDownloader) copy(req *http.Request, f *os.File) (int64, error) {
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("HTTP error! status: %d", resp.StatusCode)
	}

	return io.Copy(f, resp.Body)
}

// Wait blocks until every started download has finished
func (d *FileDownloader) Wait() {
	d.wg.Wait()
}

// Close aborts running downloads and waits for them
func (d *FileDownloader) Close() {
	d.cancel()
	d.wg.Wait()
}
