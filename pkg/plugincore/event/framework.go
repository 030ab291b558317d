package event

// Well-known event types emitted by the host framework. The manager treats
// them like any other type.
const (
	PluginLoaded       = "plugin:loaded"
	PluginRegistered   = "plugin:registered"
	PluginUnregistered = "plugin:unregistered"
	PluginStatus       = "plugin:status"

	AppStarting = "app:starting"
	AppStarted  = "app:started"
	AppStopping = "app:stopping"
	AppStopped  = "app:stopped"

	ErrorUnhandled = "error:unhandled"
)

// FrameworkEvents lists every well-known event type.
var FrameworkEvents = []string{
	PluginLoaded,
	PluginRegistered,
	PluginUnregistered,
	PluginStatus,
	AppStarting,
	AppStarted,
	AppStopping,
	AppStopped,
	ErrorUnhandled,
}

// IsFrameworkEvent reports whether eventType is one of FrameworkEvents.
func IsFrameworkEvent(eventType string) bool {
	for _, t := range FrameworkEvents {
		if t == eventType {
			return true
		}
	}
	return false
}
