package devicetrust

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const recordFormatVersion1 = 1

// Encode serializes a trust record into the versioned binary value stored in
// Redis. The record ID is the Redis key and is not part of the value.
func Encode(r *Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordFormatVersion1)

	if err := writeString8(&buf, r.UserID, "userID"); err != nil {
		return nil, err
	}
	buf.Write(r.FingerprintHash[:])
	if err := writeString16(&buf, r.UserAgent, "userAgent"); err != nil {
		return nil, err
	}
	if err := writeString8(&buf, r.IPAddress, "ipAddress"); err != nil {
		return nil, err
	}

	for _, v := range []int64{r.CreatedAt, r.ExpiresAt, r.LastUsedAt} {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// Decode parses a value produced by [Encode].
func Decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordFormatVersion1 {
		return nil, errors.New("invalid trust record version")
	}

	r := &Record{}

	if r.UserID, err = readString8(reader); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, r.FingerprintHash[:]); err != nil {
		return nil, err
	}
	if r.UserAgent, err = readString16(reader); err != nil {
		return nil, err
	}
	if r.IPAddress, err = readString8(reader); err != nil {
		return nil, err
	}

	for _, p := range []*int64{&r.CreatedAt, &r.ExpiresAt, &r.LastUsedAt} {
		if err := binary.Read(reader, binary.BigEndian, p); err != nil {
			return nil, err
		}
	}

	return r, nil
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
