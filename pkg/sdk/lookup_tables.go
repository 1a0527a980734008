package sdk

// UnknownLocation is reported when every location tier fails.
const UnknownLocation = "Unknown"

// operatingSystemNames maps runtime.GOOS values to display names.
var operatingSystemNames = map[string]string{
	"aix":       "AIX",
	"android":   "Android",
	"darwin":    "macOS",
	"dragonfly": "DragonFly BSD",
	"freebsd":   "FreeBSD",
	"illumos":   "illumos",
	"ios":       "iOS",
	"linux":     "Linux",
	"netbsd":    "NetBSD",
	"openbsd":   "OpenBSD",
	"plan9":     "Plan 9",
	"solaris":   "Solaris",
	"windows":   "Windows",
}

// OperatingSystemName returns the display name for goos, or goos itself when
// it is not in the table.
func OperatingSystemName(goos string) string {
	if name, ok := operatingSystemNames[goos]; ok {
		return name
	}
	return goos
}

// timezoneCountries maps IANA zone names to the country they mostly cover.
// It is the last tier before UnknownLocation, so it only needs to be coarse.
var timezoneCountries = map[string]string{
	"Africa/Cairo":                   "Egypt",
	"Africa/Johannesburg":            "South Africa",
	"Africa/Lagos":                   "Nigeria",
	"Africa/Nairobi":                 "Kenya",
	"America/Argentina/Buenos_Aires": "Argentina",
	"America/Bogota":                 "Colombia",
	"America/Chicago":                "United States",
	"America/Denver":                 "United States",
	"America/Los_Angeles":            "United States",
	"America/Mexico_City":            "Mexico",
	"America/New_York":               "United States",
	"America/Phoenix":                "United States",
	"America/Sao_Paulo":              "Brazil",
	"America/Toronto":                "Canada",
	"America/Vancouver":              "Canada",
	"Asia/Bangkok":                   "Thailand",
	"Asia/Dhaka":                     "Bangladesh",
	"Asia/Dubai":                     "United Arab Emirates",
	"Asia/Hong_Kong":                 "Hong Kong",
	"Asia/Jakarta":                   "Indonesia",
	"Asia/Jerusalem":                 "Israel",
	"Asia/Karachi":                   "Pakistan",
	"Asia/Kolkata":                   "India",
	"Asia/Calcutta":                  "India",
	"Asia/Manila":                    "Philippines",
	"Asia/Riyadh":                    "Saudi Arabia",
	"Asia/Seoul":                     "South Korea",
	"Asia/Shanghai":                  "China",
	"Asia/Singapore":                 "Singapore",
	"Asia/Taipei":                    "Taiwan",
	"Asia/Tokyo":                     "Japan",
	"Australia/Melbourne":            "Australia",
	"Australia/Sydney":               "Australia",
	"Europe/Amsterdam":               "Netherlands",
	"Europe/Berlin":                  "Germany",
	"Europe/Brussels":                "Belgium",
	"Europe/Dublin":                  "Ireland",
	"Europe/Istanbul":                "Turkey",
	"Europe/Lisbon":                  "Portugal",
	"Europe/London":                  "United Kingdom",
	"Europe/Madrid":                  "Spain",
	"Europe/Moscow":                  "Russia",
	"Europe/Oslo":                    "Norway",
	"Europe/Paris":                   "France",
	"Europe/Rome":                    "Italy",
	"Europe/Stockholm":               "Sweden",
	"Europe/Warsaw":                  "Poland",
	"Europe/Zurich":                  "Switzerland",
	"Pacific/Auckland":               "New Zealand",
}

// TimezoneCountry returns the country for an IANA zone name. ok is false for
// unmapped zones.
func TimezoneCountry(zone string) (country string, ok bool) {
	country, ok = timezoneCountries[zone]
	return country, ok
}
