package provider

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"time"
)

// composeMIME renders msg as an RFC 5322 message. When both bodies are
// present they are sent as multipart/alternative, text first.
func composeMIME(msg *Message, date time.Time) ([]byte, error) {
	var buf bytes.Buffer
	header := func(k, v string) {
		fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
	}

	header("From", msg.From)
	header("To", msg.To)
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", date.Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	for _, k := range sortedKeys(msg.Headers) {
		header(textproto.CanonicalMIMEHeaderKey(k), msg.Headers[k])
	}

	if msg.TextBody != "" && msg.HTMLBody != "" {
		mw := multipart.NewWriter(&buf)
		header("Content-Type", mime.FormatMediaType("multipart/alternative", map[string]string{"boundary": mw.Boundary()}))
		buf.WriteString("\r\n")

		for _, part := range []struct{ contentType, body string }{
			{"text/plain; charset=utf-8", msg.TextBody},
			{"text/html; charset=utf-8", msg.HTMLBody},
		} {
			pw, err := mw.CreatePart(textproto.MIMEHeader{
				"Content-Type":              {part.contentType},
				"Content-Transfer-Encoding": {"quoted-printable"},
			})
			if err != nil {
				return nil, err
			}
			if err := writeQuotedPrintable(pw, part.body); err != nil {
				return nil, err
			}
		}
		if err := mw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	contentType, body := "text/plain; charset=utf-8", msg.TextBody
	if msg.HTMLBody != "" {
		contentType, body = "text/html; charset=utf-8", msg.HTMLBody
	}
	header("Content-Type", contentType)
	header("Content-Transfer-Encoding", "quoted-printable")
	buf.WriteString("\r\n")
	if err := writeQuotedPrintable(&buf, body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeQuotedPrintable(w io.Writer, s string) error {
	qp := quotedprintable.NewWriter(w)
	if _, err := io.WriteString(qp, s); err != nil {
		return err
	}
	return qp.Close()
}
