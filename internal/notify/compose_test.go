package notify

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sentAt = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func render(t *testing.T, msg Message) *mail.Message {
	t.Helper()
	m, err := Compose(msg, "bot@example.com", sentAt)
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	parsed, err := mail.ReadMessage(&buf)
	require.NoError(t, err)
	return parsed
}

func address(t *testing.T, raw string) string {
	t.Helper()
	addr, err := mail.ParseAddress(raw)
	require.NoError(t, err)
	return addr.Address
}

func normalize(s string) string {
	return strings.TrimRight(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
}

func TestComposePlainMessage(t *testing.T) {
	t.Parallel()

	body := "Site: x\nNo changes"
	parsed := render(t, Message{To: "owner@example.com", Subject: "Crawl Results for Ünïcode", Body: body})

	assert.Equal(t, "bot@example.com", address(t, parsed.Header.Get("From")))
	assert.Equal(t, "owner@example.com", address(t, parsed.Header.Get("To")))

	subject, err := new(mime.WordDecoder).DecodeHeader(parsed.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Crawl Results for Ünïcode", subject)

	date, err := parsed.Header.Date()
	require.NoError(t, err)
	assert.True(t, date.Equal(sentAt))

	mediaType, _, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "text/plain", mediaType)

	var reader io.Reader = parsed.Body
	if strings.EqualFold(parsed.Header.Get("Content-Transfer-Encoding"), "quoted-printable") {
		reader = quotedprintable.NewReader(reader)
	}
	decoded, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, body, normalize(string(decoded)))
}

func TestComposeWithAttachment(t *testing.T) {
	t.Parallel()

	csv := []byte("Action,URL,Checked\nadd,https://example.com/a,false\n")
	msg := Message{
		To:      "owner@example.com",
		Subject: "Crawl Results for Example",
		Body:    "See attached CSV file for more details.",
		Attachment: &Attachment{
			Filename:    AttachmentName,
			ContentType: "text/csv",
			Data:        csv,
		},
	}
	parsed := render(t, msg)

	mediaType, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Equal(t, "multipart/mixed", mediaType)

	reader := multipart.NewReader(parsed.Body, params["boundary"])

	text, err := reader.NextPart()
	require.NoError(t, err)
	body, err := io.ReadAll(text)
	require.NoError(t, err)
	assert.Equal(t, msg.Body, normalize(string(body)))

	att, err := reader.NextPart()
	require.NoError(t, err)
	assert.Equal(t, AttachmentName, att.FileName())
	attType, _, err := mime.ParseMediaType(att.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "text/csv", attType)
	require.True(t, strings.EqualFold(att.Header.Get("Content-Transfer-Encoding"), "base64"))
	data, err := io.ReadAll(base64.NewDecoder(base64.StdEncoding, att))
	require.NoError(t, err)
	assert.Equal(t, csv, data)

	_, err = reader.NextPart()
	assert.ErrorIs(t, err, io.EOF)
}

func TestComposeRejectsBadSender(t *testing.T) {
	t.Parallel()

	_, err := Compose(Message{To: "owner@example.com"}, "not an address", sentAt)
	require.Error(t, err)
}
