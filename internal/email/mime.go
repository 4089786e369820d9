package email

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	"time"
)

// base64LineLength is the maximum encoded line length per RFC 2045.
const base64LineLength = 76

// Bytes renders the message as an RFC 5322 document:
// multipart/mixed { multipart/alternative { text/plain, text/html }, attachments... }.
func (m *Message) Bytes() ([]byte, error) {
	var buf bytes.Buffer

	writeHeader(&buf, "From", m.FromHeader())
	writeHeader(&buf, "To", strings.Join(m.To, ", "))
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("UTF-8", m.Subject))
	if !m.Date.IsZero() {
		writeHeader(&buf, "Date", m.Date.Format(time.RFC1123Z))
	}
	if m.MessageID != "" {
		writeHeader(&buf, "Message-ID", m.MessageID)
	}
	writeHeader(&buf, "MIME-Version", "1.0")

	mixed := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mixed.Boundary())

	if err := m.writeBody(mixed); err != nil {
		return nil, err
	}

	for _, att := range m.Attachments {
		if err := writeAttachment(mixed, att); err != nil {
			return nil, err
		}
	}

	if err := mixed.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return buf.Bytes(), nil
}

// writeBody writes the multipart/alternative section holding the text and HTML bodies.
func (m *Message) writeBody(mixed *multipart.Writer) error {
	var altBuf bytes.Buffer
	alt := multipart.NewWriter(&altBuf)

	if m.TextBody != "" {
		if err := writeTextPart(alt, "text/plain; charset=UTF-8", m.TextBody); err != nil {
			return err
		}
	}
	if err := writeTextPart(alt, "text/html; charset=UTF-8", m.HTMLBody); err != nil {
		return err
	}
	if err := alt.Close(); err != nil {
		return fmt.Errorf("failed to close alternative writer: %w", err)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", alt.Boundary()))
	part, err := mixed.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create body part: %w", err)
	}
	if _, err := part.Write(altBuf.Bytes()); err != nil {
		return fmt.Errorf("failed to write body part: %w", err)
	}
	return nil
}

func writeTextPart(w *multipart.Writer, contentType, body string) error {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Type", contentType)
	header.Set("Content-Transfer-Encoding", "quoted-printable")

	part, err := w.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", contentType, err)
	}

	qp := quotedprintable.NewWriter(part)
	if _, err := io.WriteString(qp, body); err != nil {
		return fmt.Errorf("failed to encode %s part: %w", contentType, err)
	}
	return qp.Close()
}

func writeAttachment(w *multipart.Writer, att Attachment) error {
	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Type", contentType)
	header.Set("Content-Transfer-Encoding", "base64")
	header.Set("Content-Disposition", contentDisposition(att.Filename))

	part, err := w.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create attachment part: %w", err)
	}
	if _, err := io.WriteString(part, encodeBase64WithLineBreaks(att.Content)); err != nil {
		return fmt.Errorf("failed to write attachment %s: %w", att.Filename, err)
	}
	return nil
}

// contentDisposition quotes plain ASCII filenames and falls back to
// RFC 2231 encoding for anything else.
func contentDisposition(filename string) string {
	for _, r := range filename {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
		}
	}
	return fmt.Sprintf("attachment; filename=%q", filename)
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(buf, "%s: %s\r\n", key, value)
}

// encodeBase64WithLineBreaks encodes bytes to base64 with 76-character line breaks per RFC 2045.
func encodeBase64WithLineBreaks(data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)
	var b strings.Builder
	for i := 0; i < len(encoded); i += base64LineLength {
		end := min(i+base64LineLength, len(encoded))
		b.WriteString(encoded[i:end])
		b.WriteString("\r\n")
	}
	return b.String()
}
