package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"scalebridge/internal/logger"
	"scalebridge/internal/models"
	"scalebridge/internal/relay"
	"scalebridge/internal/repository"
)

var ErrInvalidAction = errors.New("invalid action: expected BRUTTO, TARA or NETTO")

const relayTimeout = 10 * time.Second

// WeightSource is satisfied by device.Session.
type WeightSource interface {
	CurrentWeight() models.Reading
}

// Camera takes photos and maps their paths to public URLs.
type Camera interface {
	CapturePhoto(ctx context.Context, name string) ([]string, error)
	URLFor(path string) string
}

// EventRecorder appends capture rows to the day log.
type EventRecorder interface {
	Capture(res models.CaptureResult)
}

// CaptureService coordinates one capture: weight snapshot, photos, event
// log, history row. Relay runs separately so that a slow collector never
// delays the response.
type CaptureService struct {
	weights  WeightSource
	camera   Camera
	events   EventRecorder
	captures repository.CaptureRepo
	relay    relay.Pusher
	log      *logger.Logger

	now      func() time.Time
	relayTTL time.Duration
	wg       sync.WaitGroup
}

func NewCaptureService(
	weights WeightSource,
	camera Camera,
	events EventRecorder,
	captures repository.CaptureRepo,
	pusher relay.Pusher,
	log *logger.Logger,
) *CaptureService {
	return &CaptureService{
		weights:  weights,
		camera:   camera,
		events:   events,
		captures: captures,
		relay:    pusher,
		log:      log,
		now:      time.Now,
		relayTTL: relayTimeout,
	}
}

// Capture never fails because of the camera, the logs or the database; those
// degrade to warnings. Only an unknown action is rejected.
func (s *CaptureService) Capture(ctx context.Context, p CaptureParams) (models.CaptureResult, error) {
	action, ok := models.NormalizeAction(p.Action)
	if !ok {
		return models.CaptureResult{}, ErrInvalidAction
	}
	if s.weights == nil {
		return models.CaptureResult{}, errors.New("no weight source")
	}

	r := s.weights.CurrentWeight()
	now := s.now().UTC()
	res := models.CaptureResult{
		ID:        uuid.NewString(),
		Success:   true,
		Weight:    r.Weight,
		Unit:      r.Unit,
		Action:    action,
		OrderID:   p.OrderID,
		Photos:    []string{},
		Timestamp: now,
	}

	photos, err := s.takePhotos(ctx, photoName(action, p.OrderID, now))
	if err != nil {
		s.warn("capture_photo_failed", err, "action", action)
		res.NoCamera = true
	} else {
		res.Photos = photos
		res.PhotoURL = &photos[0]
	}

	if s.events != nil {
		s.events.Capture(res)
	}
	if s.captures != nil {
		if err := s.captures.Append(ctx, res); err != nil {
			s.warn("capture_persist_failed", err, "capture_id", res.ID)
		}
	}

	if s.log != nil {
		s.log.Infow("capture_taken",
			"capture_id", res.ID,
			"action", res.Action,
			"weight", res.Weight,
			"unit", res.Unit,
			"connected", r.Connected,
			"photos", len(res.Photos),
		)
	}
	return res, nil
}

// PhotoOnly takes photos without touching the weight or the logs.
func (s *CaptureService) PhotoOnly(ctx context.Context, filename string) (PhotoResult, error) {
	photos, err := s.takePhotos(ctx, filename)
	if err != nil {
		s.warn("photo_capture_failed", err, "filename", filename)
		return PhotoResult{Success: false, Photos: []string{}, NoCamera: true}, nil
	}
	return PhotoResult{Success: true, Photos: photos, PhotoURL: &photos[0]}, nil
}

// RelayAsync pushes res with its own deadline, detached from the request.
func (s *CaptureService) RelayAsync(res models.CaptureResult) {
	if s.relay == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.relayTTL)
		defer cancel()
		if err := s.relay.Push(ctx, res); err != nil && s.log != nil {
			s.log.Debugw("capture_relay_incomplete", "capture_id", res.ID, "err", err)
		}
	}()
}

// Wait blocks until every in-flight relay has finished.
func (s *CaptureService) Wait() {
	s.wg.Wait()
}

// takePhotos returns public URLs, at least one on success.
func (s *CaptureService) takePhotos(ctx context.Context, name string) ([]string, error) {
	if s.camera == nil {
		return nil, errors.New("no camera provider")
	}
	paths, err := s.camera.CapturePhoto(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, errors.New("camera returned no photos")
	}
	urls := make([]string, 0, len(paths))
	for _, p := range paths {
		urls = append(urls, s.camera.URLFor(p))
	}
	return urls, nil
}

func (s *CaptureService) warn(event string, err error, kv ...interface{}) {
	if s.log == nil {
		return
	}
	s.log.Warnw(event, append([]interface{}{"err", err}, kv...)...)
}

func photoName(action string, orderID *int, at time.Time) string {
	name := action + "_" + at.Format("20060102_150405")
	if orderID != nil {
		name = "order" + strconv.Itoa(*orderID) + "_" + name
	}
	return name
}
