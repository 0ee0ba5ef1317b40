package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/multiplycharity/multiply-monorepo/internal/common"
)

const retryAfterSeconds = "1"

func statusFor(err error) int {
	switch common.KindOf(err) {
	case common.KindAuthentication, common.KindSessionExpired, common.KindSessionInvalid, common.KindSessionRevoked:
		return http.StatusUnauthorized
	case common.KindAccountExists:
		return http.StatusConflict
	case common.KindValidation:
		return http.StatusBadRequest
	case common.KindNotFound:
		return http.StatusNotFound
	case common.KindRateLimited:
		return http.StatusTooManyRequests
	case common.KindBusy, common.KindUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// errorBody carries the error kind only.
func errorBody(err error) gin.H {
	k := common.KindOf(err)
	if k == common.KindUnknown {
		k = common.KindInternal
	}
	return gin.H{"error": k.String()}
}

func abortWithError(c *gin.Context, err error) {
	code := statusFor(err)
	if code == http.StatusServiceUnavailable || code == http.StatusTooManyRequests {
		c.Header("Retry-After", retryAfterSeconds)
	}
	c.AbortWithStatusJSON(code, errorBody(err))
}
