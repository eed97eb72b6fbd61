package response

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// OpsReply is the body of every successful ops API response.
type OpsReply struct {
	Data        any       `json:"data"`
	Note        string    `json:"note,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// OpsFailure is the body of every failed ops API response. Route is the
// matched route pattern, User the :user parameter when the route has one.
type OpsFailure struct {
	Status int    `json:"status"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
	Route  string `json:"route,omitempty"`
	User   string `json:"user,omitempty"`
}

// Reply sends data with 200.
func Reply(c echo.Context, data any) error {
	return ReplyNote(c, data, "")
}

// ReplyNote sends data with 200 and a note for the operator.
func ReplyNote(c echo.Context, data any, note string) error {
	return c.JSON(http.StatusOK, OpsReply{Data: data, Note: note, GeneratedAt: time.Now().UTC()})
}

// Fail sends status with reason; err, when set, becomes the detail.
func Fail(c echo.Context, status int, reason string, err error) error {
	body := OpsFailure{
		Status: status,
		Reason: reason,
		Route:  c.Path(),
		User:   c.Param("user"),
	}
	if err != nil {
		body.Detail = err.Error()
	}
	return c.JSON(status, body)
}

// Disabled sends 503 for an optional backend that is not configured.
func Disabled(c echo.Context, feature string) error {
	return Fail(c, http.StatusServiceUnavailable, feature+" not configured", nil)
}
