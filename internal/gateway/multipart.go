package gateway

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"

	"github.com/example/id-verify/internal/capture"
)

// encodeImages serializes images into a multipart body, one part per field.
// Serialization to the wire happens only here, at the gateway boundary; the
// rest of the pipeline operates on opaque image blobs.
func encodeImages(parts map[string]capture.Image) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for field, image := range parts {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, field+".jpg"))
		contentType := image.MIME
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)

		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create multipart part %q: %w", field, err)
		}
		if _, err := part.Write(image.Data); err != nil {
			return nil, "", fmt.Errorf("failed to write multipart part %q: %w", field, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}
