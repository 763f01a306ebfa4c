package camera

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"scalebridge/internal/config"
	"scalebridge/internal/logger"
)

// fakeRunner writes a file at the last argument unless the input matches fail.
func fakeRunner(fail string, calls *[]string) runner {
	return func(ctx context.Context, bin string, args ...string) error {
		*calls = append(*calls, strings.Join(args, " "))
		for _, a := range args {
			if fail != "" && a == fail {
				return errors.New("device not found")
			}
		}
		return os.WriteFile(args[len(args)-1], []byte("jpeg"), 0o644)
	}
}

func newTestProvider(t *testing.T, cfg config.CameraConfig, run runner) *FFmpegProvider {
	t.Helper()
	cfg.PhotoDir = t.TempDir()
	p := NewFFmpegProvider(cfg, logger.Nop())
	p.run = run
	p.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return p
}

func TestCapturePhoto_DisabledReturnsErrNoCamera(t *testing.T) {
	p := newTestProvider(t, config.CameraConfig{Enabled: false, Devices: []int{0}}, nil)
	if _, err := p.CapturePhoto(context.Background(), "x"); !errors.Is(err, ErrNoCamera) {
		t.Fatalf("err=%v, want ErrNoCamera", err)
	}
}

func TestCapturePhoto_SingleDevice(t *testing.T) {
	var calls []string
	p := newTestProvider(t, config.CameraConfig{Enabled: true, Devices: []int{0}}, fakeRunner("", &calls))

	paths, err := p.CapturePhoto(context.Background(), "order 17/brutto.jpg")
	if err != nil {
		t.Fatalf("CapturePhoto: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("paths=%v", paths)
	}
	if got := filepath.Base(paths[0]); got != "order_17_brutto.jpg" {
		t.Fatalf("file=%q", got)
	}
	if len(calls) != 1 || !strings.Contains(calls[0], "-frames:v 1") {
		t.Fatalf("unexpected ffmpeg args: %v", calls)
	}
}

func TestCapturePhoto_MultiDeviceKeepsSuccessfulSources(t *testing.T) {
	var calls []string
	p := newTestProvider(t, config.CameraConfig{Enabled: true, Devices: []int{0, 1, 2}}, fakeRunner("", &calls))

	paths, err := p.CapturePhoto(context.Background(), "")
	if err != nil {
		t.Fatalf("CapturePhoto: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("want 3 photos, got %v", paths)
	}
	if !strings.HasPrefix(filepath.Base(paths[0]), "capture_20250601_120000") || !strings.HasSuffix(paths[2], "_cam2.jpg") {
		t.Fatalf("unexpected names: %v", paths)
	}
}

func TestCapturePhoto_RTSPFailureIsError(t *testing.T) {
	var calls []string
	url := "rtsp://10.0.0.5/stream"
	p := newTestProvider(t, config.CameraConfig{Enabled: true, RTSPURL: url}, fakeRunner(url, &calls))

	if _, err := p.CapturePhoto(context.Background(), "x"); err == nil {
		t.Fatalf("expected error when the only source fails")
	}
	if len(calls) != 1 || !strings.Contains(calls[0], "-rtsp_transport tcp") {
		t.Fatalf("unexpected args: %v", calls)
	}
}

func TestURLFor(t *testing.T) {
	if got := URLFor("/photos/", "/var/lib/bridge/photos/a.jpg"); got != "/photos/a.jpg" {
		t.Fatalf("got %q", got)
	}
}

func TestSetConfig_AppliesToNextCapture(t *testing.T) {
	var calls []string
	p := newTestProvider(t, config.CameraConfig{Enabled: false}, fakeRunner("", &calls))
	dir := p.config().PhotoDir

	p.SetConfig(config.CameraConfig{Enabled: true, Devices: []int{3}, PhotoDir: dir, BaseURL: "/shots"})
	paths, err := p.CapturePhoto(context.Background(), "after")
	if err != nil {
		t.Fatalf("CapturePhoto: %v", err)
	}
	if got := p.URLFor(paths[0]); got != "/shots/after.jpg" {
		t.Fatalf("url=%q", got)
	}
}
