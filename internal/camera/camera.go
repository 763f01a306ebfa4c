// Package camera grabs still photos through an external ffmpeg process,
// either from local capture devices or from an RTSP stream.
package camera

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"scalebridge/internal/config"
	"scalebridge/internal/logger"
)

var (
	ErrNoCamera = errors.New("camera: disabled or not configured")

	nameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)
)

// Provider produces photo files. The result is always a list, one entry per
// source that succeeded.
type Provider interface {
	CapturePhoto(ctx context.Context, name string) ([]string, error)
}

// runner executes an external command; swapped in tests.
type runner func(ctx context.Context, bin string, args ...string) error

func execRunner(ctx context.Context, bin string, args ...string) error {
	out, err := exec.CommandContext(ctx, bin, args...).CombinedOutput()
	if err != nil {
		tail := strings.TrimSpace(string(out))
		if len(tail) > 300 {
			tail = tail[len(tail)-300:]
		}
		return fmt.Errorf("%s: %w: %s", bin, err, tail)
	}
	return nil
}

// FFmpegProvider captures one frame per configured source.
type FFmpegProvider struct {
	mu  sync.RWMutex
	cfg config.CameraConfig
	log *logger.Logger
	run runner
	now func() time.Time
}

func NewFFmpegProvider(cfg config.CameraConfig, log *logger.Logger) *FFmpegProvider {
	return &FFmpegProvider{cfg: cfg, log: log, run: execRunner, now: time.Now}
}

// SetConfig applies to the next capture.
func (p *FFmpegProvider) SetConfig(cfg config.CameraConfig) {
	cfg.Devices = append([]int(nil), cfg.Devices...)
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
}

func (p *FFmpegProvider) config() config.CameraConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// CapturePhoto grabs a frame from every source. It fails only when no source
// produced a file.
func (p *FFmpegProvider) CapturePhoto(ctx context.Context, name string) ([]string, error) {
	cfg := p.config()
	if !cfg.Enabled || (cfg.RTSPURL == "" && len(cfg.Devices) == 0) {
		return nil, ErrNoCamera
	}
	if err := os.MkdirAll(cfg.PhotoDir, 0o755); err != nil {
		return nil, fmt.Errorf("create photo dir %q: %w", cfg.PhotoDir, err)
	}
	base := p.baseName(name)

	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sources := sourcesFor(cfg)
	var (
		paths   []string
		lastErr error
	)
	for i, src := range sources {
		file := base + ".jpg"
		if len(sources) > 1 {
			file = base + "_cam" + strconv.Itoa(i) + ".jpg"
		}
		path := filepath.Join(cfg.PhotoDir, file)
		if err := p.grab(ctx, cfg.FFmpeg, src, path); err != nil {
			lastErr = err
			if p.log != nil {
				p.log.Warnw("camera_capture_failed", "source", src.label, "err", err)
			}
			continue
		}
		paths = append(paths, path)
	}
	if len(paths) == 0 {
		if lastErr == nil {
			lastErr = ErrNoCamera
		}
		return nil, lastErr
	}
	return paths, nil
}

// URLFor maps a photo path to the URL it is served under.
func (p *FFmpegProvider) URLFor(path string) string {
	return URLFor(p.config().BaseURL, path)
}

// URLFor joins baseURL and the file name of path.
func URLFor(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + "/" + filepath.Base(path)
}

type source struct {
	label string
	input []string
}

func sourcesFor(cfg config.CameraConfig) []source {
	if cfg.RTSPURL != "" {
		return []source{{
			label: "rtsp",
			input: []string{"-rtsp_transport", "tcp", "-i", cfg.RTSPURL},
		}}
	}
	out := make([]source, 0, len(cfg.Devices))
	for _, idx := range cfg.Devices {
		out = append(out, source{label: "device" + strconv.Itoa(idx), input: localInput(idx)})
	}
	return out
}

func localInput(idx int) []string {
	switch runtime.GOOS {
	case "windows":
		return []string{"-f", "dshow", "-i", "video=" + strconv.Itoa(idx)}
	case "darwin":
		return []string{"-f", "avfoundation", "-i", strconv.Itoa(idx)}
	default:
		return []string{"-f", "v4l2", "-i", "/dev/video" + strconv.Itoa(idx)}
	}
}

func (p *FFmpegProvider) grab(ctx context.Context, bin string, src source, path string) error {
	args := append([]string{"-y", "-loglevel", "error"}, src.input...)
	args = append(args, "-frames:v", "1", "-q:v", "2", path)
	if bin == "" {
		bin = "ffmpeg"
	}
	if err := p.run(ctx, bin, args...); err != nil {
		return err
	}
	st, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("no photo at %s: %w", path, err)
	}
	if st.Size() == 0 {
		return fmt.Errorf("empty photo at %s", path)
	}
	return nil
}

func (p *FFmpegProvider) baseName(name string) string {
	name = strings.TrimSuffix(strings.TrimSpace(name), filepath.Ext(name))
	name = strings.Trim(nameSanitizer.ReplaceAllString(name, "_"), "._-")
	if name == "" {
		name = "capture_" + p.now().Format("20060102_150405.000")
	}
	return name
}
