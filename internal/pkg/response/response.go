// Package response funnels every handler reply through the shared
// proxyutil JSON envelope, so clients always see {code, message, data}
// with codes drawn from internal/pkg/errcode.
package response

import (
	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/webapi/proxyutil"
)

// apiError pairs an errcode value with a client-facing message in the
// shape proxyutil extracts the envelope code from.
type apiError struct {
	code uint32
	msg  string
}

func (e apiError) Error() string {
	return e.msg
}

func (e apiError) Code() uint32 {
	return e.code
}

func AsCodeErr(code uint32, msg string) error {
	return apiError{code: code, msg: msg}
}

func Success(c *gin.Context, data interface{}) {
	proxyutil.SuccessJson(c, data)
}

// Error replies with HTTP 200 and the failure carried in the envelope
// code, matching how the rest of the API reports errors.
func Error(c *gin.Context, code int, message string) {
	proxyutil.FailJson(c, 200, AsCodeErr(uint32(code), message))
}
