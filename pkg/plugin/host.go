package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mythwright/nexus-config-backup/pkg/config"
	"github.com/mythwright/nexus-config-backup/pkg/plog"
)

// Level is a log level understood by the host.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelCritical:
		return "CRITICAL"
	default:
		return "INFO"
	}
}

// Host is the application the add-on runs inside.
type Host interface {
	// SourceDirectory returns the absolute path of the host's add-on folder.
	SourceDirectory() string
	// Log writes one line to the host's log.
	Log(level Level, msg string)
	// RegisterUIAction adds a button to the host's UI.
	RegisterUIAction(label string, onClick func())
}

// ConfigStore loads and saves the add-on's settings.
type ConfigStore interface {
	Load() (config.Config, error)
	Save(config.Config) error
}

var _ ConfigStore = (*config.FileStore)(nil)

// HostHandler is a slog.Handler that forwards records to a Host. Notice and
// Debug map to the host's debug level, Info and Warn to info, and Error and
// above to critical.
type HostHandler struct {
	host   Host
	attrs  []slog.Attr
	groups []string
}

// NewHostHandler returns a handler writing to host.
func NewHostHandler(host Host) *HostHandler {
	return &HostHandler{host: host}
}

func hostLevel(l slog.Level) Level {
	switch {
	case l >= plog.LevelError:
		return LevelCritical
	case l >= plog.LevelInfo:
		return LevelInfo
	default:
		return LevelDebug
	}
}

// Enabled always reports true; plog applies the level.
func (h *HostHandler) Enabled(context.Context, slog.Level) bool { return true }

// Handle formats r as "msg key=value ..." and hands it to the host.
func (h *HostHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(r.Message)
	for _, a := range h.attrs {
		writeAttr(&sb, "", a)
	}
	prefix := groupPrefix(h.groups)
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&sb, prefix, a)
		return true
	})

	h.host.Log(hostLevel(r.Level), sb.String())
	return nil
}

func groupPrefix(groups []string) string {
	if len(groups) == 0 {
		return ""
	}
	return strings.Join(groups, ".") + "."
}

func writeAttr(sb *strings.Builder, prefix string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	fmt.Fprintf(sb, " %s%s=%v", prefix, a.Key, a.Value.Resolve())
}

// WithAttrs records attrs under the groups opened so far.
func (h *HostHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := groupPrefix(h.groups)
	merged := append([]slog.Attr{}, h.attrs...)
	for _, a := range attrs {
		merged = append(merged, slog.Attr{Key: prefix + a.Key, Value: a.Value})
	}
	return &HostHandler{host: h.host, attrs: merged, groups: h.groups}
}

func (h *HostHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &HostHandler{host: h.host, attrs: h.attrs, groups: append(append([]string{}, h.groups...), name)}
}

var _ slog.Handler = (*HostHandler)(nil)
