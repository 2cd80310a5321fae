package audio

import (
	"sync"

	"github.com/gordonklaus/portaudio"
)

var (
	paMu    sync.Mutex
	paUsers int
)

// Initialize starts PortAudio for one user. Every successful call must be
// balanced by Terminate; the library is shut down with the last user.
func Initialize() error {
	paMu.Lock()
	defer paMu.Unlock()
	if paUsers == 0 {
		if err := portaudio.Initialize(); err != nil {
			return err
		}
	}
	paUsers++
	return nil
}

// Terminate releases one Initialize.
func Terminate() {
	paMu.Lock()
	defer paMu.Unlock()
	if paUsers == 0 {
		return
	}
	paUsers--
	if paUsers == 0 {
		_ = portaudio.Terminate()
	}
}
