// Package eventlog writes the append-only per-day CSV audit trail:
// <dir>/<YYYY-MM-DD>/serial.csv for raw frames and events.csv for captures.
package eventlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"scalebridge/internal/config"
	"scalebridge/internal/logger"
	"scalebridge/internal/models"
)

const (
	dayLayout = "2006-01-02"

	SerialFile = "serial.csv"
	EventsFile = "events.csv"
)

var (
	serialHeader = []string{"timestamp", "raw", "weight"}
	eventsHeader = []string{"timestamp", "action", "weight", "unit", "order_id", "photo_url"}
)

// dayFile is one open CSV file bound to a calendar day.
type dayFile struct {
	day string
	f   *os.File
	w   *csv.Writer
}

func (d *dayFile) close() error {
	if d == nil || d.f == nil {
		return nil
	}
	d.w.Flush()
	werr := d.w.Error()
	cerr := d.f.Close()
	d.f = nil
	if werr != nil {
		return werr
	}
	return cerr
}

// Logger never returns errors to callers: disk problems degrade to warnings.
type Logger struct {
	mu     sync.Mutex
	cfg    config.LoggingConfig
	log    *logger.Logger
	now    func() time.Time
	loc    *time.Location // calendar used for day-directories
	serial *dayFile
	events *dayFile
}

// New returns a logger for cfg. Nothing is opened until first use.
func New(cfg config.LoggingConfig, log *logger.Logger) *Logger {
	return &Logger{cfg: cfg, log: log, now: time.Now, loc: time.Local}
}

// dayOf names the day-directory for t, whatever zone t carries.
func (l *Logger) dayOf(t time.Time) string {
	return t.In(l.loc).Format(dayLayout)
}

// SetConfig swaps the logging parameters and closes open files so the next
// write lands in the new location.
func (l *Logger) SetConfig(cfg config.LoggingConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeLocked()
	l.cfg = cfg
}

// OpenSerial opens today's serial log and prunes expired day-directories.
// Called by the device session when the connection comes up.
func (l *Logger) OpenSerial() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.cfg.Enabled {
		return
	}
	day := l.dayOf(l.now())
	if l.serial != nil && l.serial.day == day && l.serial.f != nil {
		return
	}
	l.reopenLocked(&l.serial, SerialFile, serialHeader, day)
}

// CloseSerial closes the serial log. Called on disconnect.
func (l *Logger) CloseSerial() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.serial.close(); err != nil {
		l.warn("eventlog_close_failed", err, "file", SerialFile)
	}
	l.serial = nil
}

// Frame appends one raw frame. A nil weight marks an undecoded frame.
func (l *Logger) Frame(frame models.RawFrame, weight *float64) {
	decoded := ""
	if weight != nil {
		decoded = strconv.FormatFloat(*weight, 'f', 1, 64)
	}
	ts := frame.ReceivedAt
	if ts.IsZero() {
		ts = l.now()
	}
	l.append(&l.serial, SerialFile, serialHeader, ts, []string{
		ts.UTC().Format(time.RFC3339Nano), frame.Raw, decoded,
	})
}

// Capture appends one capture command row to events.csv.
func (l *Logger) Capture(res models.CaptureResult) {
	orderID := ""
	if res.OrderID != nil {
		orderID = strconv.Itoa(*res.OrderID)
	}
	photo := ""
	if res.PhotoURL != nil {
		photo = *res.PhotoURL
	}
	ts := res.Timestamp
	if ts.IsZero() {
		ts = l.now()
	}
	l.append(&l.events, EventsFile, eventsHeader, ts, []string{
		ts.UTC().Format(time.RFC3339Nano),
		res.Action,
		strconv.FormatFloat(res.Weight, 'f', 1, 64),
		res.Unit,
		orderID,
		photo,
	})
}

// Close flushes and closes every open file.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeLocked()
}

// Prune deletes day-directories older than the retention window.
func (l *Logger) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked()
}

func (l *Logger) append(slot **dayFile, name string, header []string, ts time.Time, row []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.cfg.Enabled {
		return
	}
	day := l.dayOf(ts)
	if *slot == nil || (*slot).f == nil || (*slot).day != day {
		if !l.reopenLocked(slot, name, header, day) {
			return
		}
	}
	df := *slot
	if err := df.w.Write(row); err != nil {
		l.warn("eventlog_write_failed", err, "file", name)
		return
	}
	df.w.Flush()
	if err := df.w.Error(); err != nil {
		l.warn("eventlog_flush_failed", err, "file", name)
	}
}

// reopenLocked closes the file held in slot and opens <dir>/<day>/<name>,
// writing the header when the file is new.
func (l *Logger) reopenLocked(slot **dayFile, name string, header []string, day string) bool {
	if err := (*slot).close(); err != nil {
		l.warn("eventlog_close_failed", err, "file", name)
	}
	*slot = nil

	l.pruneLocked()

	dir := filepath.Join(l.cfg.Dir, day)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		l.warn("eventlog_mkdir_failed", err, "dir", dir)
		return false
	}
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		l.warn("eventlog_open_failed", err, "path", path)
		return false
	}
	w := csv.NewWriter(f)
	if st, err := f.Stat(); err == nil && st.Size() == 0 {
		if err := w.Write(header); err != nil {
			l.warn("eventlog_header_failed", err, "path", path)
		}
		w.Flush()
	}
	*slot = &dayFile{day: day, f: f, w: w}
	return true
}

func (l *Logger) pruneLocked() {
	if l.cfg.RetentionDays <= 0 || l.cfg.Dir == "" {
		return
	}
	entries, err := os.ReadDir(l.cfg.Dir)
	if err != nil {
		if !os.IsNotExist(err) {
			l.warn("eventlog_prune_failed", err, "dir", l.cfg.Dir)
		}
		return
	}
	now := l.now().In(l.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, l.loc)
	cutoff := today.AddDate(0, 0, -l.cfg.RetentionDays)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		day, err := time.ParseInLocation(dayLayout, e.Name(), l.loc)
		if err != nil || !day.Before(cutoff) {
			continue
		}
		path := filepath.Join(l.cfg.Dir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			l.warn("eventlog_prune_failed", err, "dir", path)
			continue
		}
		if l.log != nil {
			l.log.Infow("eventlog_pruned", "dir", path)
		}
	}
}

func (l *Logger) closeLocked() {
	for _, slot := range []**dayFile{&l.serial, &l.events} {
		if err := (*slot).close(); err != nil {
			l.warn("eventlog_close_failed", err)
		}
		*slot = nil
	}
}

func (l *Logger) warn(event string, err error, kv ...interface{}) {
	if l.log == nil {
		return
	}
	l.log.Warnw(event, append([]interface{}{"err", fmt.Sprint(err)}, kv...)...)
}
