package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const (
	// DefaultIPLookupURL returns the caller's public address as {"ip": "..."}.
	DefaultIPLookupURL = "https://api.ipify.org?format=json"
	// DefaultGeoPrimaryURL is formatted with the IP address.
	DefaultGeoPrimaryURL = "https://ipapi.co/%s/json/"
	// DefaultGeoSecondaryURL is formatted with the IP address.
	DefaultGeoSecondaryURL = "http://ip-api.com/json/%s"

	// LoopbackFallbackIP is used when no non-loopback IPv4 interface exists.
	LoopbackFallbackIP = "127.0.0.1"
	// LookupFailureIP is used when local interfaces cannot be listed at all.
	LookupFailureIP = "126.0.0.0"
)

// SystemFingerprint describes the machine and user requesting a credential.
// It is built fresh for every acquisition attempt; no lookup result is reused.
type SystemFingerprint struct {
	Username            string `json:"username"`
	MachineID           string `json:"machineId"`
	UserLocation        string `json:"userLocation"`
	OperatingSystemName string `json:"operatingSystemName"`
	IPAddress           string `json:"ipAddress"`
	AppName             string `json:"appName"`
	EnableLoginPage     bool   `json:"enableLoginPage"`
}

// FingerprintSource produces the request body for a credential acquisition.
type FingerprintSource interface {
	Fingerprint(ctx context.Context) (*SystemFingerprint, error)
}

// FingerprintResolver resolves a SystemFingerprint from the local system and
// a set of external lookup services. Every external lookup is optional: a
// failure degrades to the next tier instead of failing the fingerprint.
type FingerprintResolver struct {
	appName         string
	ipLookupURL     string
	geoPrimaryURL   string
	geoSecondaryURL string
	httpClient      *http.Client
	logger          *slog.Logger

	currentUser    func() (string, error)
	hostname       func() (string, error)
	interfaceAddrs func() ([]net.Addr, error)
	timezone       func() string
	goos           string
}

// Ensure FingerprintResolver implements FingerprintSource at compile time.
var _ FingerprintSource = (*FingerprintResolver)(nil)

// ResolverOption mutates a FingerprintResolver.
type ResolverOption func(*FingerprintResolver)

// WithIPLookupURL overrides the public IP lookup service.
func WithIPLookupURL(u string) ResolverOption {
	return func(r *FingerprintResolver) {
		if u != "" {
			r.ipLookupURL = u
		}
	}
}

// WithGeoURLs overrides the primary and secondary geolocation services. Both
// are fmt templates receiving the IP address.
func WithGeoURLs(primary, secondary string) ResolverOption {
	return func(r *FingerprintResolver) {
		if primary != "" {
			r.geoPrimaryURL = primary
		}
		if secondary != "" {
			r.geoSecondaryURL = secondary
		}
	}
}

// WithResolverHTTPClient overrides the HTTP client used for lookups.
func WithResolverHTTPClient(client *http.Client) ResolverOption {
	return func(r *FingerprintResolver) {
		if client != nil {
			r.httpClient = client
		}
	}
}

// WithResolverLogger sets the logger for degraded lookups.
func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(r *FingerprintResolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewFingerprintResolver creates a resolver reporting appName.
func NewFingerprintResolver(appName string, opts ...ResolverOption) *FingerprintResolver {
	r := &FingerprintResolver{
		appName:         appName,
		ipLookupURL:     DefaultIPLookupURL,
		geoPrimaryURL:   DefaultGeoPrimaryURL,
		geoSecondaryURL: DefaultGeoSecondaryURL,
		httpClient:      &http.Client{Timeout: 5 * time.Second},
		logger:          discardLogger(),
		currentUser:     currentUsername,
		hostname:        os.Hostname,
		interfaceAddrs:  net.InterfaceAddrs,
		timezone:        localTimezone,
		goos:            runtime.GOOS,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fingerprint resolves all fields. It only fails when ctx is done.
func (r *FingerprintResolver) Fingerprint(ctx context.Context) (*SystemFingerprint, error) {
	username, err := r.currentUser()
	if err != nil || username == "" {
		r.logger.Debug("unable to resolve username", "error", err)
		username = "unknown"
	}
	machineID, err := r.hostname()
	if err != nil || machineID == "" {
		r.logger.Debug("unable to resolve hostname", "error", err)
		machineID = "unknown-host"
	}

	ip := r.ResolveIP(ctx)
	location := r.ResolveLocation(ctx, ip)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &SystemFingerprint{
		Username:            username,
		MachineID:           machineID,
		UserLocation:        location,
		OperatingSystemName: OperatingSystemName(r.goos),
		IPAddress:           ip,
		AppName:             r.appName,
		EnableLoginPage:     false,
	}, nil
}

// ResolveIP returns the public-facing address, falling back to the first
// local non-loopback IPv4 address.
func (r *FingerprintResolver) ResolveIP(ctx context.Context) string {
	ip, err := r.lookupPublicIP(ctx)
	if err == nil {
		return ip
	}
	r.logger.Warn("public IP lookup failed, using local address", "url", r.ipLookupURL, "error", err)
	return r.localIPv4()
}

func (r *FingerprintResolver) lookupPublicIP(ctx context.Context) (string, error) {
	body, err := r.get(ctx, r.ipLookupURL)
	if err != nil {
		return "", err
	}
	var payload struct {
		IP string `json:"ip"`
	}
	candidate := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &payload) == nil && payload.IP != "" {
		candidate = payload.IP
	}
	if net.ParseIP(candidate) == nil {
		return "", fmt.Errorf("lookup returned %q, not an IP address", candidate)
	}
	return candidate, nil
}

func (r *FingerprintResolver) localIPv4() string {
	addrs, err := r.interfaceAddrs()
	if err != nil {
		r.logger.Warn("listing interface addresses failed", "error", err)
		return LookupFailureIP
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			return v4.String()
		}
	}
	return LoopbackFallbackIP
}

type locationTier struct {
	name    string
	resolve func(ctx context.Context, ip string) (string, error)
}

// ResolveLocation walks the location tiers in order: primary geolocation,
// secondary geolocation, local timezone, then UnknownLocation.
func (r *FingerprintResolver) ResolveLocation(ctx context.Context, ip string) string {
	tiers := []locationTier{
		{name: "geo-primary", resolve: r.geoPrimary},
		{name: "geo-secondary", resolve: r.geoSecondary},
	}
	for _, tier := range tiers {
		loc, err := tier.resolve(ctx, ip)
		if err == nil && loc != "" {
			return loc
		}
		r.logger.Debug("location tier failed", "tier", tier.name, "ip", ip, "error", err)
	}

	zone := r.timezone()
	if country, ok := TimezoneCountry(zone); ok {
		return country
	}
	r.logger.Debug("timezone not mapped", "timezone", zone)
	return UnknownLocation
}

func (r *FingerprintResolver) geoPrimary(ctx context.Context, ip string) (string, error) {
	body, err := r.get(ctx, fmt.Sprintf(r.geoPrimaryURL, ip))
	if err != nil {
		return "", err
	}
	var payload struct {
		Error       bool   `json:"error"`
		Reason      string `json:"reason"`
		City        string `json:"city"`
		Region      string `json:"region"`
		CountryName string `json:"country_name"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode geolocation response: %w", err)
	}
	if payload.Error {
		return "", fmt.Errorf("geolocation error: %s", payload.Reason)
	}
	return joinLocation(payload.City, payload.Region, payload.CountryName), nil
}

func (r *FingerprintResolver) geoSecondary(ctx context.Context, ip string) (string, error) {
	body, err := r.get(ctx, fmt.Sprintf(r.geoSecondaryURL, ip))
	if err != nil {
		return "", err
	}
	var payload struct {
		Status     string `json:"status"`
		Message    string `json:"message"`
		City       string `json:"city"`
		RegionName string `json:"regionName"`
		Country    string `json:"country"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode geolocation response: %w", err)
	}
	if payload.Status != "" && payload.Status != "success" {
		return "", fmt.Errorf("geolocation status %s: %s", payload.Status, payload.Message)
	}
	return joinLocation(payload.City, payload.RegionName, payload.Country), nil
}

func (r *FingerprintResolver) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s returned %s", url, resp.Status)
	}
	return body, nil
}

func joinLocation(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ", ")
}

func currentUsername() (string, error) {
	u, err := user.Current()
	if err == nil && u.Username != "" {
		name := u.Username
		// Windows reports DOMAIN\user.
		if i := strings.LastIndex(name, `\`); i >= 0 {
			name = name[i+1:]
		}
		return name, nil
	}
	for _, key := range []string{"USER", "USERNAME"} {
		if v := os.Getenv(key); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("resolve current user: %w", err)
}

// localTimezone returns the IANA name of the local zone from TZ or the
// /etc/localtime symlink. Empty when neither is available.
func localTimezone() string {
	if tz := strings.TrimPrefix(os.Getenv("TZ"), ":"); tz != "" {
		return tz
	}
	target, err := os.Readlink("/etc/localtime")
	if err != nil {
		return ""
	}
	if i := strings.Index(target, "zoneinfo/"); i >= 0 {
		return target[i+len("zoneinfo/"):]
	}
	return filepath.Base(target)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
