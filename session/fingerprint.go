package session

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/ua-parser/uap-go/uaparser"
)

// ErrInvalidUserAgent is returned when neither a browser nor a device vendor can be
// extracted from the user-agent header.
var ErrInvalidUserAgent = errors.New("session: invalid user agent")

const unknownFamily = "Other"

// Parsed user agents are kept for parseCacheTTL. Once parseCacheMax entries
// are cached, new agents are parsed without being stored.
const (
	parseCacheTTL = 10 * time.Minute
	parseCacheMax = 10_000
)

// Fingerprinter parses user-agent strings into session attributes. Parse
// results are cached per user-agent string, since every strict GetUser
// re-fingerprints the request.
type Fingerprinter struct {
	parser    *uaparser.Parser
	parsed    *cache.Cache
	maxCached int
}

// NewFingerprinter returns a Fingerprinter using the regex set bundled with uap-go.
func NewFingerprinter() *Fingerprinter {
	return &Fingerprinter{
		parser:    uaparser.NewFromSaved(),
		parsed:    cache.New(parseCacheTTL, 2*parseCacheTTL),
		maxCached: parseCacheMax,
	}
}

// parse returns the cached client for userAgent. Cached clients are shared and
// must not be modified.
func (f *Fingerprinter) parse(userAgent string) *uaparser.Client {
	if v, ok := f.parsed.Get(userAgent); ok {
		return v.(*uaparser.Client)
	}
	client := f.parser.Parse(userAgent)
	if f.parsed.ItemCount() < f.maxCached {
		f.parsed.SetDefault(userAgent, client)
	}
	return client
}

// Fingerprint builds an unsaved Session for the request source. CreatedAt and
// LastUsedAt are set to now; RefreshToken is left empty.
func (f *Fingerprinter) Fingerprint(ip, userAgent string, now time.Time) (Session, error) {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return Session{}, ErrInvalidUserAgent
	}

	client := f.parse(userAgent)

	s := Session{
		IP:         strings.TrimSpace(ip),
		CreatedAt:  now,
		LastUsedAt: now,
	}
	if client.UserAgent != nil {
		s.Browser = known(client.UserAgent.Family)
	}
	if client.Os != nil {
		s.OS = known(client.Os.Family)
	}
	if client.Device != nil {
		s.DeviceModel = client.Device.Model
		s.DeviceVendor = client.Device.Brand
	}
	s.DeviceType = deviceType(client, userAgent)

	if s.Browser == "" && s.DeviceVendor == "" {
		return Session{}, ErrInvalidUserAgent
	}

	s.Hash = Hash(s.IP, s.Browser, s.DeviceModel, s.DeviceType, s.DeviceVendor, s.OS)
	return s, nil
}

// Hash returns the hex SHA-256 of the length-prefixed fields in a fixed order, so the
// result does not depend on how any caller serializes them.
func Hash(ip, browser, deviceModel, deviceType, deviceVendor, os string) string {
	h := sha256.New()
	var prefix [4]byte
	for _, field := range [...]string{ip, browser, deviceModel, deviceType, deviceVendor, os} {
		binary.BigEndian.PutUint32(prefix[:], uint32(len(field)))
		h.Write(prefix[:])
		h.Write([]byte(field))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func known(family string) string {
	if family == unknownFamily {
		return ""
	}
	return family
}

func deviceType(client *uaparser.Client, userAgent string) string {
	if client.Device != nil && client.Device.Family == "Spider" {
		return "bot"
	}
	osFamily := ""
	if client.Os != nil {
		osFamily = client.Os.Family
	}
	switch {
	case strings.Contains(userAgent, "iPad"), strings.Contains(userAgent, "Tablet"):
		return "tablet"
	case osFamily == "Android" && !strings.Contains(userAgent, "Mobile"):
		return "tablet"
	case strings.Contains(userAgent, "Mobi"), osFamily == "iOS":
		return "mobile"
	case strings.Contains(userAgent, "SmartTV"), strings.Contains(userAgent, "SMART-TV"):
		return "smarttv"
	}
	return ""
}
