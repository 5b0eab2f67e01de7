package session

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
	"time"
)

func TestEncodeDecodeCurrentVersion(t *testing.T) {
	in := &Session{
		Hash:         "abc",
		IP:           "192.0.2.1",
		Browser:      "Firefox",
		OS:           "Windows",
		DeviceModel:  "",
		DeviceType:   "mobile",
		DeviceVendor: "Apple",
		RefreshToken: "rt",
		CreatedAt:    time.Unix(1700000000, 5).UTC(),
		LastUsedAt:   time.Unix(1700000100, 7).UTC(),
	}

	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	if data[0] != sessionFormatVersionCurrent {
		t.Fatalf("expected version %d, got %d", sessionFormatVersionCurrent, data[0])
	}

	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if *out != *in {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", *out, *in)
	}
}

func TestDecodeVersionOne(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(sessionFormatVersionV1)
	for _, v := range []string{"h", "ip", "Safari", "iOS", "iPhone", "Apple", "rt"} {
		buf.WriteByte(byte(len(v)))
		buf.WriteString(v)
	}
	_ = binary.Write(&buf, binary.BigEndian, int64(10))
	_ = binary.Write(&buf, binary.BigEndian, int64(20))

	s, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode v1 error: %v", err)
	}
	if s.DeviceType != "" || s.DeviceModel != "iPhone" || s.RefreshToken != "rt" {
		t.Fatalf("unexpected v1 decode: %+v", s)
	}
	if s.LastUsedAt.UnixNano() != 20 {
		t.Fatalf("unexpected LastUsedAt: %v", s.LastUsedAt)
	}
}

func TestEncodeRejectsOversizedField(t *testing.T) {
	if _, err := Encode(&Session{Browser: strings.Repeat("x", 256)}); err == nil {
		t.Fatal("expected oversized field to be rejected")
	}
}

func TestDecodeRejectsUnknownVersionAndTrailingBytes(t *testing.T) {
	if _, err := Decode([]byte{9}); err == nil {
		t.Fatal("expected unknown version to fail")
	}

	data, err := Encode(&Session{Hash: "h"})
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	if _, err := Decode(append(data, 0)); err == nil {
		t.Fatal("expected trailing bytes to fail")
	}
}
