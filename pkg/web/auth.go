package web

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/terrycain/s3-read-proxy/pkg/e"
	"github.com/terrycain/s3-read-proxy/pkg/s"
	"github.com/terrycain/s3-read-proxy/pkg/signing"
)

const credentialContextKey = "credential"

// AuthRequired verifies the inbound SigV4 Authorization header against the
// identity resolver's record for its access key id, per §4.6 step 1-2:
// resolve the credential, then verify the signature against its secret.
// Nothing past this middleware runs for a request that fails either step.
func (h *Handlers) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		parsed, ok := signing.ParseAuthorizationHeader(c.GetHeader("Authorization"))
		if !ok {
			writeError(c, e.ErrInvalidRequest.Wrap(fmt.Errorf("missing or malformed Authorization header")))
			return
		}

		record, err := h.Identity.Resolve(c.Request.Context(), parsed.AccessKeyID)
		if err != nil {
			writeError(c, err)
			return
		}

		if err := signing.Verify(c.Request, parsed, record.SecretAccessKey, h.now()); err != nil {
			writeError(c, err)
			return
		}

		c.Set(credentialContextKey, record)
		c.Next()
	}
}

func credentialFrom(c *gin.Context) s.CredentialRecord {
	return c.MustGet(credentialContextKey).(s.CredentialRecord)
}

// principalFrom returns the resolved principal id for logging, or "" for a
// request that never reached AuthRequired (health check) or failed it.
func principalFrom(c *gin.Context) string {
	v, ok := c.Get(credentialContextKey)
	if !ok {
		return ""
	}
	record, ok := v.(s.CredentialRecord)
	if !ok {
		return ""
	}
	return record.PrincipalID
}
