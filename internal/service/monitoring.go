package service

import (
	"scalebridge/internal/device"
	"scalebridge/internal/models"
)

const statusOK = "ok"

type MonitoringService struct {
	session device.Session
}

func NewMonitoringService(session device.Session) *MonitoringService {
	return &MonitoringService{session: session}
}

// CurrentWeight returns the latest reading without touching the device.
func (s *MonitoringService) CurrentWeight() models.Reading {
	return s.session.CurrentWeight()
}

func (s *MonitoringService) Health() Health {
	r := s.session.CurrentWeight()
	return Health{
		Status:    statusOK,
		Connected: r.Connected,
		State:     s.session.State(),
		Reading:   r,
		Simulated: s.session.Simulated(),
	}
}
