package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const sessionFormatVersion1 = 1

// Encode serializes a session into the versioned binary record stored in
// Redis. Short identifier fields carry a one-byte length; the user agent
// carries two bytes because real-world values exceed 255 bytes.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersion1)

	if err := writeString8(&buf, s.UserID, "userID"); err != nil {
		return nil, err
	}
	if err := writeString8(&buf, s.DeviceID, "deviceID"); err != nil {
		return nil, err
	}
	if err := writeString8(&buf, s.IPAddress, "ipAddress"); err != nil {
		return nil, err
	}
	if err := writeString16(&buf, s.UserAgent, "userAgent"); err != nil {
		return nil, err
	}
	if err := writeString8(&buf, s.TokenFamily, "tokenFamily"); err != nil {
		return nil, err
	}

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a record produced by [Encode]. SessionID is not part of the
// record; the caller sets it from the Redis key.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersion1 {
		return nil, errors.New("invalid session version")
	}

	s := &Session{}

	if s.UserID, err = readString8(reader); err != nil {
		return nil, err
	}
	if s.DeviceID, err = readString8(reader); err != nil {
		return nil, err
	}
	if s.IPAddress, err = readString8(reader); err != nil {
		return nil, err
	}
	if s.UserAgent, err = readString16(reader); err != nil {
		return nil, err
	}
	if s.TokenFamily, err = readString8(reader); err != nil {
		return nil, err
	}

	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, err
	}

	return s, nil
}

func writeString8(buf *bytes.Buffer, v, field string) error {
	if len(v) > 255 {
		return errors.New(field + " too long")
	}
	buf.WriteByte(byte(len(v)))
	buf.WriteString(v)
	return nil
}

func writeString16(buf *bytes.Buffer, v, field string) error {
	if len(v) > 65535 {
		return errors.New(field + " too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(v))); err != nil {
		return err
	}
	buf.WriteString(v)
	return nil
}

func readString8(reader *bytes.Reader) (string, error) {
	n, err := reader.ReadByte()
	if err != nil {
		return "", err
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}

func readString16(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", err
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
