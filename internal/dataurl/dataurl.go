// Package dataurl converts images to and from "data:<mime>;base64,<data>" URIs.
package dataurl

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strings"

	apperrors "github.com/flynn-ai/critic/internal/errors"
)

// DefaultMaxBytes caps decoded image size.
const DefaultMaxBytes = 8 << 20

const prefix = "data:"

// Image is a decoded data URI.
type Image struct {
	MIMEType string
	Data     []byte
}

// Encode builds a data URI for data, sniffing the MIME type when mimeType is empty.
func Encode(data []byte, mimeType string) string {
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
		if i := strings.IndexByte(mimeType, ';'); i >= 0 {
			mimeType = mimeType[:i]
		}
	}
	return prefix + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// FromFile reads an image file into a data URI. Only image/* content is accepted.
func FromFile(path string, maxBytes int64) (string, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", apperrors.NewBuilder(apperrors.CodeImageInvalid, "cannot read image").
			User().
			Wrap(err).
			WithContext("path", path).
			Build()
	}
	if info.Size() > maxBytes {
		return "", apperrors.NewBuilder(apperrors.CodeImageTooLarge, fmt.Sprintf("image is %d bytes, limit is %d", info.Size(), maxBytes)).
			User().
			WithSuggestion("Resize or compress the image before uploading").
			Build()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeImageInvalid, "cannot read image", apperrors.CategoryUser)
	}

	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return "", apperrors.NewBuilder(apperrors.CodeImageInvalid, fmt.Sprintf("%s is not an image (%s)", path, mimeType)).
			User().
			WithSuggestion("Upload a PNG, JPEG, GIF or WebP file").
			Build()
	}
	return Encode(data, mimeType), nil
}

// Parse decodes a base64 data URI.
func Parse(uri string) (Image, error) {
	if !strings.HasPrefix(uri, prefix) {
		return Image{}, apperrors.User(apperrors.CodeImageInvalid, "image must be a data URI")
	}
	meta, payload, ok := strings.Cut(uri[len(prefix):], ",")
	if !ok {
		return Image{}, apperrors.User(apperrors.CodeImageInvalid, "data URI has no payload")
	}
	mimeType, encoding, _ := strings.Cut(meta, ";")
	if encoding != "base64" {
		return Image{}, apperrors.User(apperrors.CodeImageInvalid, "data URI must be base64 encoded")
	}
	if mimeType == "" {
		return Image{}, apperrors.User(apperrors.CodeImageInvalid, "data URI has no MIME type")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, apperrors.Wrap(err, apperrors.CodeImageInvalid, "data URI payload is not valid base64", apperrors.CategoryUser)
	}
	return Image{MIMEType: mimeType, Data: data}, nil
}
