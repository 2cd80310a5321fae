package audio

import (
	"fmt"
	"io"
	"sort"

	"github.com/gordonklaus/portaudio"
)

// Device describes a PortAudio device in a Go-friendly way.
type Device struct {
	Name            string
	MaxInput        int
	MaxOutput       int
	DefaultSampleHz float64
	HostAPI         string
	IsDefaultInput  bool
}

// ListDevices returns every device across host APIs sorted by host and name.
func ListDevices() ([]Device, error) {
	if err := Initialize(); err != nil {
		return nil, fmt.Errorf("init portaudio: %w", err)
	}
	defer Terminate()

	hosts, err := portaudio.HostApis()
	if err != nil {
		return nil, fmt.Errorf("host apis: %w", err)
	}

	defaultIndex := defaultInputIndex()
	devices := make([]Device, 0, len(hosts)*4)
	for _, host := range hosts {
		for _, d := range host.Devices {
			devices = append(devices, Device{
				Name:            d.Name,
				MaxInput:        d.MaxInputChannels,
				MaxOutput:       d.MaxOutputChannels,
				DefaultSampleHz: d.DefaultSampleRate,
				HostAPI:         host.Name,
				IsDefaultInput:  d.Index == defaultIndex,
			})
		}
	}
	sortDevices(devices)
	return devices, nil
}

// WriteDevices prints capture-capable devices, one per line. The default
// input is marked with '*'.
func WriteDevices(w io.Writer, devices []Device) error {
	for _, d := range devices {
		if d.MaxInput == 0 {
			continue
		}
		mark := " "
		if d.IsDefaultInput {
			mark = "*"
		}
		if _, err := fmt.Fprintf(w, "%s %-40s %-12s in=%d %.0fHz\n", mark, d.Name, d.HostAPI, d.MaxInput, d.DefaultSampleHz); err != nil {
			return err
		}
	}
	return nil
}

func sortDevices(devices []Device) {
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].HostAPI == devices[j].HostAPI {
			return devices[i].Name < devices[j].Name
		}
		return devices[i].HostAPI < devices[j].HostAPI
	})
}
