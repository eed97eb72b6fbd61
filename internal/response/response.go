// Package response holds the response descriptors produced by the router and
// the JSON envelope used by the ops API.
package response

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

const (
	ContentTypeText  = "text/plain"
	ContentTypeToken = "application/jwt"
)

// Response is a transport-free description of one reply. Body yields
// exactly Length bytes.
type Response struct {
	Status      int
	ContentType string
	Body        io.Reader
	Length      int64

	closer io.Closer
}

// Close releases the resource behind a streamed body, if any.
func (r *Response) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

func bytesResponse(status int, contentType string, body []byte) *Response {
	return &Response{
		Status:      status,
		ContentType: contentType,
		Body:        bytes.NewReader(body),
		Length:      int64(len(body)),
	}
}

// Text builds a text/plain reply whose body is reason followed by a newline.
func Text(status int, reason string) *Response {
	return bytesResponse(status, ContentTypeText, []byte(reason+"\n"))
}

// BadRequest is a 400 carrying reason.
func BadRequest(reason string) *Response {
	return Text(http.StatusBadRequest, reason)
}

// Unauthorized is a 401 carrying reason.
func Unauthorized(reason string) *Response {
	return Text(http.StatusUnauthorized, reason)
}

// NotFound is the 404 for a user without a log.
func NotFound(user string) *Response {
	return Text(http.StatusNotFound, fmt.Sprintf("no logs found for user '%s'", user))
}

// ServerError is a 500. The reason reaches the client verbatim, so callers
// pass a generic text and log the cause themselves.
func ServerError(reason string) *Response {
	return Text(http.StatusInternalServerError, reason)
}

// NotImplemented is the 501 placeholder served for the index.
func NotImplemented(reason string) *Response {
	return Text(http.StatusNotImplemented, reason)
}

// Token returns a freshly issued or echoed bearer token.
func Token(tok string) *Response {
	return bytesResponse(http.StatusOK, ContentTypeToken, []byte(tok))
}

// PublicKey returns the PEM verification key verbatim.
func PublicKey(pem []byte) *Response {
	return bytesResponse(http.StatusOK, ContentTypeText, pem)
}

// Logfile streams length bytes from body. closer is released by Close.
func Logfile(body io.Reader, length int64, closer io.Closer) *Response {
	return &Response{
		Status:      http.StatusOK,
		ContentType: ContentTypeText,
		Body:        body,
		Length:      length,
		closer:      closer,
	}
}
