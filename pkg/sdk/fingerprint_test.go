package sdk

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lookupServer struct {
	*httptest.Server
	ipFails      atomic.Bool
	primaryFails atomic.Bool
	secondFails  atomic.Bool
	ipHits       atomic.Int32
	primaryHits  atomic.Int32
}

func newLookupServer(t *testing.T) *lookupServer {
	t.Helper()
	ls := &lookupServer{}
	r := chi.NewRouter()
	r.Get("/ip", func(w http.ResponseWriter, _ *http.Request) {
		ls.ipHits.Add(1)
		if ls.ipFails.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ip":"203.0.113.7"}`))
	})
	r.Get("/primary/{ip}", func(w http.ResponseWriter, req *http.Request) {
		ls.primaryHits.Add(1)
		if ls.primaryFails.Load() {
			_, _ = w.Write([]byte(`{"error":true,"reason":"RateLimited"}`))
			return
		}
		_, _ = w.Write([]byte(`{"city":"Lisbon","region":"Lisbon","country_name":"Portugal","ip":"` + chi.URLParam(req, "ip") + `"}`))
	})
	r.Get("/secondary/{ip}", func(w http.ResponseWriter, _ *http.Request) {
		if ls.secondFails.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"status":"success","city":"Porto","regionName":"Porto","country":"Portugal"}`))
	})
	ls.Server = httptest.NewServer(r)
	t.Cleanup(ls.Close)
	return ls
}

func (ls *lookupServer) resolver() *FingerprintResolver {
	r := NewFingerprintResolver("svcgate-test",
		WithIPLookupURL(ls.URL+"/ip"),
		WithGeoURLs(ls.URL+"/primary/%s", ls.URL+"/secondary/%s"),
		WithResolverHTTPClient(ls.Client()),
	)
	r.currentUser = func() (string, error) { return "alice", nil }
	r.hostname = func() (string, error) { return "build-host-01", nil }
	r.timezone = func() string { return "Europe/Berlin" }
	r.goos = "darwin"
	return r
}

func ipNet(s string) net.Addr {
	return &net.IPNet{IP: net.ParseIP(s), Mask: net.CIDRMask(24, 32)}
}

func TestFingerprint(t *testing.T) {
	ls := newLookupServer(t)
	fp, err := ls.resolver().Fingerprint(context.Background())
	require.NoError(t, err)

	assert.Equal(t, &SystemFingerprint{
		Username:            "alice",
		MachineID:           "build-host-01",
		UserLocation:        "Lisbon, Lisbon, Portugal",
		OperatingSystemName: "macOS",
		IPAddress:           "203.0.113.7",
		AppName:             "svcgate-test",
		EnableLoginPage:     false,
	}, fp)
}

func TestFingerprint_CancelledContext(t *testing.T) {
	ls := newLookupServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ls.resolver().Fingerprint(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFingerprint_UnresolvableIdentity(t *testing.T) {
	ls := newLookupServer(t)
	r := ls.resolver()
	r.currentUser = func() (string, error) { return "", errors.New("no passwd entry") }
	r.hostname = func() (string, error) { return "", errors.New("uts failure") }
	r.goos = "haiku"

	fp, err := r.Fingerprint(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "unknown", fp.Username)
	assert.Equal(t, "unknown-host", fp.MachineID)
	assert.Equal(t, "haiku", fp.OperatingSystemName)
}

func TestResolveLocation_Tiers(t *testing.T) {
	tests := []struct {
		name         string
		primaryFails bool
		secondFails  bool
		timezone     string
		wantLocation string
	}{
		{"primary", false, false, "Europe/Berlin", "Lisbon, Lisbon, Portugal"},
		{"secondary", true, false, "Europe/Berlin", "Porto, Porto, Portugal"},
		{"timezone", true, true, "Europe/Berlin", "Germany"},
		{"unknown", true, true, "Mars/Olympus_Mons", UnknownLocation},
		{"no timezone", true, true, "", UnknownLocation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ls := newLookupServer(t)
			ls.primaryFails.Store(tt.primaryFails)
			ls.secondFails.Store(tt.secondFails)
			r := ls.resolver()
			r.timezone = func() string { return tt.timezone }

			assert.Equal(t, tt.wantLocation, r.ResolveLocation(context.Background(), "203.0.113.7"))
		})
	}
}

func TestResolveLocation_Unreachable(t *testing.T) {
	r := NewFingerprintResolver("svcgate-test",
		WithGeoURLs("http://127.0.0.1:1/%s", "http://127.0.0.1:1/%s"),
	)
	r.timezone = func() string { return "Asia/Tokyo" }
	assert.Equal(t, "Japan", r.ResolveLocation(context.Background(), "198.51.100.1"))
}

func TestFingerprint_ResolvedFreshEachCall(t *testing.T) {
	ls := newLookupServer(t)
	r := ls.resolver()

	first, err := r.Fingerprint(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", first.IPAddress)

	// The network changes between two acquisitions in the same process.
	ls.ipFails.Store(true)
	r.interfaceAddrs = func() ([]net.Addr, error) { return []net.Addr{ipNet("10.20.30.40")}, nil }

	second, err := r.Fingerprint(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "10.20.30.40", second.IPAddress)
	assert.EqualValues(t, 2, ls.ipHits.Load())
	assert.EqualValues(t, 2, ls.primaryHits.Load())
}

func TestResolveIP(t *testing.T) {
	t.Run("public lookup", func(t *testing.T) {
		ls := newLookupServer(t)
		r := ls.resolver()
		assert.Equal(t, "203.0.113.7", r.ResolveIP(context.Background()))
		assert.Equal(t, "203.0.113.7", r.ResolveIP(context.Background()))
		assert.EqualValues(t, 2, ls.ipHits.Load())
	})

	t.Run("plain text response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("198.51.100.20\n"))
		}))
		defer srv.Close()
		r := NewFingerprintResolver("x", WithIPLookupURL(srv.URL))
		assert.Equal(t, "198.51.100.20", r.ResolveIP(context.Background()))
	})

	t.Run("garbage response falls back", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("<html>captive portal</html>"))
		}))
		defer srv.Close()
		r := NewFingerprintResolver("x", WithIPLookupURL(srv.URL))
		r.interfaceAddrs = func() ([]net.Addr, error) { return []net.Addr{ipNet("10.1.2.3")}, nil }
		assert.Equal(t, "10.1.2.3", r.ResolveIP(context.Background()))
	})

	fallbacks := []struct {
		name  string
		addrs []net.Addr
		err   error
		want  string
	}{
		{"first non-loopback ipv4", []net.Addr{ipNet("127.0.0.1"), ipNet("fe80::1"), ipNet("192.168.1.20"), ipNet("10.0.0.5")}, nil, "192.168.1.20"},
		{"loopback only", []net.Addr{ipNet("127.0.0.1"), ipNet("::1")}, nil, LoopbackFallbackIP},
		{"no interfaces", nil, nil, LoopbackFallbackIP},
		{"non ipnet addrs skipped", []net.Addr{&net.TCPAddr{IP: net.ParseIP("10.9.9.9")}}, nil, LoopbackFallbackIP},
		{"listing fails", nil, errors.New("netlink denied"), LookupFailureIP},
	}
	for _, tt := range fallbacks {
		t.Run(tt.name, func(t *testing.T) {
			ls := newLookupServer(t)
			ls.ipFails.Store(true)
			r := ls.resolver()
			r.interfaceAddrs = func() ([]net.Addr, error) { return tt.addrs, tt.err }
			assert.Equal(t, tt.want, r.ResolveIP(context.Background()))
		})
	}
}

func TestOperatingSystemName(t *testing.T) {
	assert.Equal(t, "Windows", OperatingSystemName("windows"))
	assert.Equal(t, "Linux", OperatingSystemName("linux"))
	assert.Equal(t, "zos", OperatingSystemName("zos"))
}

func TestTimezoneCountry(t *testing.T) {
	country, ok := TimezoneCountry("Europe/London")
	assert.True(t, ok)
	assert.Equal(t, "United Kingdom", country)

	_, ok = TimezoneCountry("Etc/Nowhere")
	assert.False(t, ok)
}
