package web

import (
	"strconv"

	"github.com/terrycain/s3-read-proxy/pkg/s"
)

// FormatContentRange renders a resolved range as the `Content-Range: bytes
// a-b/total` value a 206 response carries, per §3/§4.5.
func FormatContentRange(r s.ResolvedRange) string {
	return "bytes " + strconv.FormatInt(r.Start, 10) + "-" + strconv.FormatInt(r.End, 10) + "/" + strconv.FormatInt(r.Total, 10)
}
