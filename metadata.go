package guard

import (
	"context"
	"strings"

	"github.com/mileusna/useragent"
)

// UnknownSentinel is the value used for device fields we could not parse
const UnknownSentinel = "Unknown"

// DeviceInfo is a best effort descriptor parsed from the user agent string.
// Display data only, never an authorization input.
type DeviceInfo struct {
	Browser string `json:"browser"`
	OS      string `json:"os"`
	Type    string `json:"type"`
}

// LocationInfo is a best effort descriptor derived from the source IP
type LocationInfo struct {
	Country   string  `json:"country"`
	City      string  `json:"city"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// SessionMetadata describes the device and approximate location a session
// was created from. Derived once at session creation and immutable after.
type SessionMetadata struct {
	Location LocationInfo `json:"location"`
	Device   DeviceInfo   `json:"device"`
	IP       string       `json:"ip"`
}

// LocationResolver maps a source IP to an approximate location. Lookup
// failure is advisory: implementations return the zero LocationInfo, never
// an error that would fail the surrounding request.
type LocationResolver interface {
	Resolve(ctx context.Context, ip string) LocationInfo
}

// UnknownLocationResolver is the default resolver, it reports no location
type UnknownLocationResolver struct{}

func (UnknownLocationResolver) Resolve(context.Context, string) LocationInfo {
	return LocationInfo{}
}

// MetadataResolver derives session metadata from raw request attributes
type MetadataResolver struct {
	locations LocationResolver
}

// NewMetadataResolver will create a resolver, defaulting to no geolocation
func NewMetadataResolver(locations LocationResolver) *MetadataResolver {
	if locations == nil {
		locations = UnknownLocationResolver{}
	}
	return &MetadataResolver{locations: locations}
}

// Resolve parses the user agent and looks up the source IP. It never fails:
// unparseable agents yield Unknown sentinels and lookup errors yield a
// zeroed location.
func (r *MetadataResolver) Resolve(ctx context.Context, rawUserAgent, sourceIP string) SessionMetadata {
	return SessionMetadata{
		Device:   parseDevice(rawUserAgent),
		Location: r.locations.Resolve(ctx, sourceIP),
		IP:       sourceIP,
	}
}

func parseDevice(rawUserAgent string) DeviceInfo {
	if strings.TrimSpace(rawUserAgent) == "" {
		return DeviceInfo{Browser: UnknownSentinel, OS: UnknownSentinel, Type: UnknownSentinel}
	}

	ua := useragent.Parse(rawUserAgent)

	info := DeviceInfo{
		Browser: ua.Name,
		OS:      ua.OS,
		Type:    deviceType(ua),
	}

	if info.Browser == "" {
		info.Browser = UnknownSentinel
	}
	if info.OS == "" {
		info.OS = UnknownSentinel
	}

	return info
}

func deviceType(ua useragent.UserAgent) string {
	switch {
	case ua.Bot:
		return "Bot"
	case ua.Mobile:
		return "Mobile"
	case ua.Tablet:
		return "Tablet"
	case ua.Desktop:
		return "Desktop"
	}
	return UnknownSentinel
}

// Summary is a single line rendering used in mail handoffs
func (m SessionMetadata) Summary() string {
	parts := []string{}
	if m.Device.Browser != "" && m.Device.Browser != UnknownSentinel {
		parts = append(parts, m.Device.Browser)
	}
	if m.Device.OS != "" && m.Device.OS != UnknownSentinel {
		parts = append(parts, m.Device.OS)
	}
	if m.Location.City != "" {
		parts = append(parts, m.Location.City)
	}
	if m.Location.Country != "" {
		parts = append(parts, m.Location.Country)
	}
	if m.IP != "" {
		parts = append(parts, m.IP)
	}
	if len(parts) == 0 {
		return UnknownSentinel
	}
	return strings.Join(parts, ", ")
}
