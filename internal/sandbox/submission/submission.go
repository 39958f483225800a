// Package submission decodes raw submissions from their transport encoding.
package submission

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"

	appErr "execbox/pkg/errors"
)

// Encoding is the declared transport encoding of a submission.
type Encoding string

const (
	EncodingPlain  Encoding = "plain"
	EncodingBase64 Encoding = "base64"
	// EncodingZstd is base64 text carrying one zstd frame.
	EncodingZstd Encoding = "zstd"
)

// DefaultLimit caps decoded submissions when the caller passes no limit.
const DefaultLimit = 64 * 1024

// Submission is one untrusted snippet as received. Never persisted.
type Submission struct {
	Code     string
	Encoding Encoding
	// Stdin is forwarded verbatim to the program. Nil means empty input.
	Stdin []byte
}

// ParseEncoding maps a user-supplied name onto an Encoding. Empty means plain.
func ParseEncoding(name string) (Encoding, error) {
	switch Encoding(strings.ToLower(strings.TrimSpace(name))) {
	case "", EncodingPlain:
		return EncodingPlain, nil
	case EncodingBase64:
		return EncodingBase64, nil
	case EncodingZstd:
		return EncodingZstd, nil
	default:
		return "", appErr.Newf(appErr.EncodingInvalid, "unsupported encoding %q", name)
	}
}

// Decode returns the submitted source bytes. The result never exceeds limit.
func Decode(sub Submission, limit int) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	enc, err := ParseEncoding(string(sub.Encoding))
	if err != nil {
		return nil, err
	}

	switch enc {
	case EncodingPlain:
		code := strings.TrimRight(sub.Code, "\r\n")
		if len(code) > limit {
			return nil, tooLarge(limit)
		}
		return []byte(code), nil
	case EncodingBase64:
		raw, err := decodeBase64(sub.Code, limit)
		if err != nil {
			return nil, err
		}
		return raw, nil
	default:
		// A frame can legitimately be larger than its payload for tiny inputs.
		frame, err := decodeBase64(sub.Code, limit+zstdOverhead)
		if err != nil {
			return nil, err
		}
		return decompress(frame, limit)
	}
}

const zstdOverhead = 64

func decodeBase64(text string, limit int) ([]byte, error) {
	text = strings.TrimSpace(text)
	if base64.StdEncoding.DecodedLen(len(text)) > limit+3 {
		return nil, tooLarge(limit)
	}
	enc := base64.StdEncoding
	if !strings.HasSuffix(text, "=") && len(text)%4 != 0 {
		enc = base64.RawStdEncoding
	}
	raw, err := enc.DecodeString(text)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.EncodingInvalid, "submission is not valid base64")
	}
	if len(raw) > limit {
		return nil, tooLarge(limit)
	}
	return raw, nil
}

func decompress(frame []byte, limit int) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(frame),
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(uint64(limit)*4),
	)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.EncodingInvalid, "submission is not a valid zstd frame")
	}
	defer dec.Close()

	var out bytes.Buffer
	n, err := io.Copy(&out, io.LimitReader(dec, int64(limit)+1))
	if oversized(err) {
		return nil, tooLarge(limit)
	}
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.EncodingInvalid, "submission is not a valid zstd frame")
	}
	if n > int64(limit) {
		return nil, tooLarge(limit)
	}
	return out.Bytes(), nil
}

func oversized(err error) bool {
	return errors.Is(err, zstd.ErrDecoderSizeExceeded) ||
		errors.Is(err, zstd.ErrWindowSizeExceeded) ||
		errors.Is(err, zstd.ErrFrameSizeExceeded)
}

func tooLarge(limit int) error {
	return appErr.Newf(appErr.SubmissionTooLarge, "submission exceeds %d bytes", limit)
}
