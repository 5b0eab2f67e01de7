package session

import (
	"errors"
	"testing"
	"time"
)

const (
	chromeLinuxUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	iPhoneUA      = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
)

func TestFingerprintDeterministic(t *testing.T) {
	f := NewFingerprinter()
	now := time.Unix(1700000000, 0)

	a, err := f.Fingerprint("203.0.113.7", chromeLinuxUA, now)
	if err != nil {
		t.Fatalf("Fingerprint error: %v", err)
	}
	b, err := f.Fingerprint("203.0.113.7", chromeLinuxUA, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Fingerprint error: %v", err)
	}
	if a.Hash == "" || a.Hash != b.Hash {
		t.Fatalf("expected identical hashes, got %q and %q", a.Hash, b.Hash)
	}
	if a.Browser != "Chrome" || a.OS != "Linux" {
		t.Fatalf("unexpected parse: browser=%q os=%q", a.Browser, a.OS)
	}
	if !a.CreatedAt.Equal(now) || !a.LastUsedAt.Equal(now) {
		t.Fatal("expected timestamps to be set to now")
	}
}

func TestFingerprintDistinguishesNetworkAndDevice(t *testing.T) {
	f := NewFingerprinter()
	now := time.Now()

	base, err := f.Fingerprint("203.0.113.7", chromeLinuxUA, now)
	if err != nil {
		t.Fatalf("Fingerprint error: %v", err)
	}
	otherIP, err := f.Fingerprint("203.0.113.8", chromeLinuxUA, now)
	if err != nil {
		t.Fatalf("Fingerprint error: %v", err)
	}
	phone, err := f.Fingerprint("203.0.113.7", iPhoneUA, now)
	if err != nil {
		t.Fatalf("Fingerprint error: %v", err)
	}

	if base.Hash == otherIP.Hash || base.Hash == phone.Hash {
		t.Fatal("expected different fingerprints for different ip or device")
	}
	if phone.DeviceVendor != "Apple" || phone.DeviceType != "mobile" {
		t.Fatalf("unexpected phone attributes: vendor=%q type=%q", phone.DeviceVendor, phone.DeviceType)
	}
}

func TestFingerprintRejectsUnparseableUserAgent(t *testing.T) {
	f := NewFingerprinter()
	for _, ua := range []string{"", "   ", "!!!"} {
		if _, err := f.Fingerprint("203.0.113.7", ua, time.Now()); !errors.Is(err, ErrInvalidUserAgent) {
			t.Fatalf("expected ErrInvalidUserAgent for %q, got %v", ua, err)
		}
	}
}

func TestHashUsesFieldBoundaries(t *testing.T) {
	// Shifting characters between adjacent fields must change the hash.
	a := Hash("1.2.3.4", "ab", "c", "", "", "os")
	b := Hash("1.2.3.4", "a", "bc", "", "", "os")
	if a == b {
		t.Fatal("expected length-prefixed fields to produce distinct hashes")
	}
	if Hash("ip", "b", "m", "t", "v", "o") != Hash("ip", "b", "m", "t", "v", "o") {
		t.Fatal("expected Hash to be deterministic")
	}
}

func TestFingerprinterCachesParsedAgents(t *testing.T) {
	f := NewFingerprinter()

	first := f.parse(chromeLinuxUA)
	if second := f.parse(chromeLinuxUA); second != first {
		t.Fatal("expected repeated user agent to reuse the cached parse")
	}
	if n := f.parsed.ItemCount(); n != 1 {
		t.Fatalf("expected 1 cached agent, got %d", n)
	}

	f.maxCached = 1
	other := f.parse(iPhoneUA)
	if other.UserAgent == nil || other.UserAgent.Family == "" {
		t.Fatal("agents beyond the cache bound must still be parsed")
	}
	if n := f.parsed.ItemCount(); n != 1 {
		t.Fatalf("cache must stay bounded, got %d entries", n)
	}
	if again := f.parse(iPhoneUA); again == other {
		t.Fatal("uncached agent must be parsed afresh")
	}
}
