// Package extract turns BMS screenshot images into structured readings via a
// vision-capable model.
package extract

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/batteryview/batteryview/pkg/types"
)

// Service defines the interface for the screenshot extraction collaborator.
type Service interface {
	// Validate reports whether the service is ready to take work (e.g. a
	// credential is configured). Called before any batch is accepted.
	Validate() error

	// Extract returns the reading visible in one screenshot payload. It must
	// fail with a non-nil error when the image cannot be processed rather
	// than return a partially-null reading.
	Extract(ctx context.Context, payload Payload) (types.Reading, error)
}

// Payload is one self-describing screenshot image.
type Payload struct {
	FileName string
	MIMEType string
	Data     string // base64
}

// NewPayload builds a payload from raw file bytes, sniffing the media type.
func NewPayload(fileName string, data []byte) Payload {
	return Payload{
		FileName: fileName,
		MIMEType: http.DetectContentType(data),
		Data:     base64.StdEncoding.EncodeToString(data),
	}
}

// DataURI renders the payload as a data URI.
func (p Payload) DataURI() string {
	return fmt.Sprintf("data:%s;base64,%s", p.MIMEType, p.Data)
}

// ParseDataURI parses a data URI back into a payload.
func ParseDataURI(fileName, uri string) (Payload, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return Payload{}, fmt.Errorf("not a data uri: %.20s", uri)
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok {
		return Payload{}, fmt.Errorf("malformed data uri: %.20s", uri)
	}
	mime, _ := strings.CutSuffix(meta, ";base64")
	return Payload{FileName: fileName, MIMEType: mime, Data: data}, nil
}
