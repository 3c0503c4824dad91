// +build windows

package control

import (
	"net"
	"time"

	"github.com/Microsoft/go-winio"
)

// Listen opens the control socket at pipePath (e.g. `\\.\pipe\blemsg-ctl`),
// adapted from the teacher's common/socket/socket_windows.go AgentListen.
func Listen(pipePath string) (net.Listener, error) {
	return winio.ListenPipe(pipePath, nil)
}

// Dial connects to a named pipe previously opened with Listen.
func Dial(pipePath string) (net.Conn, error) {
	return winio.DialPipe(pipePath, durationPtr(5*time.Second))
}

func durationPtr(d time.Duration) *time.Duration {
	return &d
}
