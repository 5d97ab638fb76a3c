package internal

import "github.com/mileusna/useragent"

// DeviceClass is the coarse description of a client derived from its
// User-Agent header.
type DeviceClass struct {
	Device  string
	Browser string
	OS      string
}

const unknownDevice = "Unknown"

// ParseUserAgent reduces ua to the three labels shown in the session list.
// Anything the parser cannot name is reported as "Unknown".
func ParseUserAgent(ua string) DeviceClass {
	if ua == "" {
		return DeviceClass{Device: unknownDevice, Browser: unknownDevice, OS: unknownDevice}
	}
	parsed := useragent.Parse(ua)

	return DeviceClass{
		Device:  deviceKind(parsed),
		Browser: orUnknown(parsed.Name),
		OS:      orUnknown(parsed.OS),
	}
}

func deviceKind(ua useragent.UserAgent) string {
	switch {
	case ua.Bot:
		return "Bot"
	case ua.Tablet:
		return "Tablet"
	case ua.Mobile:
		return "Mobile"
	case ua.Desktop:
		return "Desktop"
	}
	return unknownDevice
}

func orUnknown(s string) string {
	if s == "" {
		return unknownDevice
	}
	return s
}
