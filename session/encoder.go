package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

const (
	sessionFormatVersionCurrent = 2
	sessionFormatVersionV1      = 1
)

// Encode serializes s into the current binary format.
func Encode(s *Session) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil session")
	}

	var buf bytes.Buffer
	buf.WriteByte(sessionFormatVersionCurrent)

	fields := []struct {
		name  string
		value string
	}{
		{"hash", s.Hash},
		{"ip", s.IP},
		{"browser", s.Browser},
		{"os", s.OS},
		{"device model", s.DeviceModel},
		{"device vendor", s.DeviceVendor},
		{"refresh token", s.RefreshToken},
		{"device type", s.DeviceType},
	}
	for _, f := range fields {
		if len(f.value) > 255 {
			return nil, errors.New(f.name + " too long")
		}
		buf.WriteByte(byte(len(f.value)))
		buf.WriteString(f.value)
	}

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt.UnixNano()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.LastUsedAt.UnixNano()); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses data produced by Encode. Version 1 blobs (no device type) are accepted.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersionCurrent && version != sessionFormatVersionV1 {
		return nil, errors.New("invalid session version")
	}

	s := &Session{}
	targets := []*string{
		&s.Hash,
		&s.IP,
		&s.Browser,
		&s.OS,
		&s.DeviceModel,
		&s.DeviceVendor,
		&s.RefreshToken,
	}
	if version == sessionFormatVersionCurrent {
		targets = append(targets, &s.DeviceType)
	}
	for _, target := range targets {
		v, err := readString(reader)
		if err != nil {
			return nil, err
		}
		*target = v
	}

	var createdAt, lastUsedAt int64
	if err := binary.Read(reader, binary.BigEndian, &createdAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &lastUsedAt); err != nil {
		return nil, err
	}
	s.CreatedAt = time.Unix(0, createdAt).UTC()
	s.LastUsedAt = time.Unix(0, lastUsedAt).UTC()

	if reader.Len() != 0 {
		return nil, errors.New("trailing session bytes")
	}

	return s, nil
}

func readString(reader *bytes.Reader) (string, error) {
	n, err := reader.ReadByte()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(reader, b); err != nil {
		return "", err
	}
	return string(b), nil
}
