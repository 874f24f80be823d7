package dispatcher

import (
	"bytes"
	"mime/multipart"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgeshao/discord-relay/internal/gateway"
)

type part struct {
	field       string
	name        string
	contentType string
	data        string
}

func buildForm(t *testing.T, parts ...part) *multipart.Form {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("message", "hi"))
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+p.field+`"; filename="`+p.name+`"`)
		if p.contentType != "" {
			h.Set("Content-Type", p.contentType)
		}
		fw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = fw.Write([]byte(p.data))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&body, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form
}

func TestNormalizeAttachments_NilForm(t *testing.T) {
	got, err := NormalizeAttachments(nil, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNormalizeAttachments_NoFiles(t *testing.T) {
	got, err := NormalizeAttachments(buildForm(t), 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNormalizeAttachments_ShapeInvariant(t *testing.T) {
	want := []gateway.Attachment{{Name: "a.png", ContentType: "image/png", Data: []byte("PNG")}}

	single, err := NormalizeAttachments(buildForm(t, part{"file", "a.png", "image/png", "PNG"}), 0)
	require.NoError(t, err)
	array, err := NormalizeAttachments(buildForm(t, part{"files", "a.png", "image/png", "PNG"}), 0)
	require.NoError(t, err)
	bracket, err := NormalizeAttachments(buildForm(t, part{"files[]", "a.png", "image/png", "PNG"}), 0)
	require.NoError(t, err)

	assert.Equal(t, want, single)
	assert.Equal(t, want, array)
	assert.Equal(t, want, bracket)
}

func TestNormalizeAttachments_Order(t *testing.T) {
	form := buildForm(t,
		part{"files", "b.txt", "text/plain", "b"},
		part{"files", "c.txt", "text/plain", "c"},
		part{"file", "a.txt", "text/plain", "a"},
	)

	got, err := NormalizeAttachments(form, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a.txt", got[0].Name)
	assert.Equal(t, "b.txt", got[1].Name)
	assert.Equal(t, "c.txt", got[2].Name)
}

func TestNormalizeAttachments_DefaultContentType(t *testing.T) {
	got, err := NormalizeAttachments(buildForm(t, part{"file", "blob.bin", "", "\x00\x01"}), 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "application/octet-stream", got[0].ContentType)
}

func TestNormalizeAttachments_TooLarge(t *testing.T) {
	form := buildForm(t, part{"files", "big.bin", "", "0123456789"})

	_, err := NormalizeAttachments(form, 4)
	require.ErrorIs(t, err, ErrAttachmentTooLarge)

	got, err := NormalizeAttachments(form, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
}
