package session

import "time"

// Session is one authenticated device/network context of a user.
type Session struct {
	Hash         string    `json:"hash"`
	IP           string    `json:"ip"`
	Browser      string    `json:"browser,omitempty"`
	OS           string    `json:"os,omitempty"`
	DeviceModel  string    `json:"device_model,omitempty"`
	DeviceType   string    `json:"device_type,omitempty"`
	DeviceVendor string    `json:"device_vendor,omitempty"`
	RefreshToken string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	LastUsedAt   time.Time `json:"last_used_at"`
}

// Touch returns s marked as used at. Times never move backwards, so the LRU
// order of eviction survives a skewed or replayed clock.
func (s Session) Touch(at time.Time) Session {
	if at.After(s.LastUsedAt) {
		s.LastUsedAt = at
	}
	return s
}
