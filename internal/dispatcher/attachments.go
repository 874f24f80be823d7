package dispatcher

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/georgeshao/discord-relay/internal/gateway"
)

// ErrAttachmentTooLarge is returned (wrapped) for a file over the per-file cap.
var ErrAttachmentTooLarge = errors.New("attachment too large")

const defaultContentType = "application/octet-stream"

// attachmentFields are read in this order. A client may use any of them;
// a single file under "file" and a one-element "files" array give the same
// result.
var attachmentFields = []string{"file", "files", "files[]"}

// NormalizeAttachments flattens the uploaded file parts of form into one
// ordered sequence. A nil form yields no attachments. maxFileBytes <= 0
// disables the per-file cap.
func NormalizeAttachments(form *multipart.Form, maxFileBytes int64) ([]gateway.Attachment, error) {
	if form == nil {
		return nil, nil
	}

	var out []gateway.Attachment
	for _, field := range attachmentFields {
		for _, fh := range form.File[field] {
			a, err := readAttachment(fh, maxFileBytes)
			if err != nil {
				return nil, err
			}
			out = append(out, a)
		}
	}
	return out, nil
}

func readAttachment(fh *multipart.FileHeader, maxFileBytes int64) (gateway.Attachment, error) {
	if maxFileBytes > 0 && fh.Size > maxFileBytes {
		return gateway.Attachment{}, fmt.Errorf("%w: %s is %d bytes", ErrAttachmentTooLarge, fh.Filename, fh.Size)
	}

	f, err := fh.Open()
	if err != nil {
		return gateway.Attachment{}, fmt.Errorf("open attachment %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return gateway.Attachment{}, fmt.Errorf("read attachment %s: %w", fh.Filename, err)
	}

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}
	name := fh.Filename
	if name == "" {
		name = "file"
	}

	return gateway.Attachment{
		Name:        name,
		ContentType: contentType,
		Data:        data,
	}, nil
}
