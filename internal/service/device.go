package service

import (
	"scalebridge/internal/device"
)

type DeviceService struct {
	session  device.Session
	listPort func(simulated bool) ([]string, error)
}

func NewDeviceService(session device.Session) *DeviceService {
	return &DeviceService{session: session, listPort: device.ListPorts}
}

// Reconnect returns immediately; the session reopens in the background.
func (s *DeviceService) Reconnect() {
	s.session.Reconnect()
}

func (s *DeviceService) Ports() (PortList, error) {
	sim := s.session.Simulated()
	ports, err := s.listPort(sim)
	if err != nil {
		return PortList{}, err
	}
	if ports == nil {
		ports = []string{}
	}
	return PortList{Ports: ports, Simulated: sim}, nil
}
