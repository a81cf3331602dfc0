package host

import (
	"fmt"
	"strings"

	"github.com/soul-sense/desktop/pkg/schema"
)

// SidecarInfo is the payload of the sidecar:// events.
type SidecarInfo struct {
	PID      int    `json:"pid"`
	Path     string `json:"path,omitempty"`
	Line     string `json:"line,omitempty"`
	ExitCode int    `json:"exit_code"`
	Signal   string `json:"signal,omitempty"`
	Error    string `json:"error,omitempty"`
}

// DeepLinkInfo is the payload of deep-link://new-url. URL has its query
// stripped.
type DeepLinkInfo struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Action string `json:"action"`
	Source string `json:"source"`
}

// Describe maps an event to a status topic and a one-line summary.
func Describe(ev Event) (topic, text string) {
	topic, _, _ = strings.Cut(ev.Name, "://")

	switch p := ev.Payload.(type) {
	case SidecarInfo:
		switch ev.Name {
		case EventSidecarSpawned:
			return topic, fmt.Sprintf("Running (pid %d)", p.PID)
		case EventSidecarReady:
			return topic, fmt.Sprintf("Ready (pid %d)", p.PID)
		case EventSidecarUnready:
			return topic, "Not responding: " + p.Error
		case EventSidecarOutput:
			return topic, p.Line
		case EventSidecarTerminated:
			if p.Signal != "" {
				return topic, "Stopped by " + p.Signal
			}
			return topic, fmt.Sprintf("Exited (code %d)", p.ExitCode)
		}
	case DeepLinkInfo:
		return topic, fmt.Sprintf("%s via %s", p.URL, p.Source)
	case schema.ServerMessage:
		if p.Message != "" {
			return topic, fmt.Sprintf("%s: %s", p.Type, p.Message)
		}
		return topic, fmt.Sprintf("%s %s %s", p.Type, p.Action, p.Status)
	case fmt.Stringer:
		return topic, p.String()
	case string:
		return topic, p
	case nil:
		return topic, ev.Name
	}
	return topic, fmt.Sprintf("%v", ev.Payload)
}
