package backend

import (
	"strconv"
	"strings"

	"github.com/terrycain/s3-read-proxy/pkg/e"
	"github.com/terrycain/s3-read-proxy/pkg/s"
)

// ParseRangeHeader parses a `Range: bytes=...` header value into a RangeSpec.
// ok is false if header is empty or not a recognized single byte range, in
// which case the request should be treated as an unranged GET rather than
// rejected — only ResolveRange enforces satisfiability once the object's size is
// known.
func ParseRangeHeader(header string) (spec s.RangeSpec, ok bool) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return s.RangeSpec{}, false
	}
	body := strings.TrimPrefix(header, prefix)
	// Multiple ranges (comma-separated) are not supported; fall back to
	// unranged rather than reject, matching how most S3 clients never send them.
	if strings.Contains(body, ",") {
		return s.RangeSpec{}, false
	}

	start, end, found := strings.Cut(body, "-")
	if !found {
		return s.RangeSpec{}, false
	}

	switch {
	case start == "" && end != "":
		n, err := strconv.ParseInt(end, 10, 64)
		if err != nil || n < 0 {
			return s.RangeSpec{}, false
		}
		return s.RangeSpec{Kind: s.RangeSuffix, Suffix: n}, true
	case start != "" && end == "":
		n, err := strconv.ParseInt(start, 10, 64)
		if err != nil || n < 0 {
			return s.RangeSpec{}, false
		}
		return s.RangeSpec{Kind: s.RangeFromOffset, Start: n}, true
	case start != "" && end != "":
		a, errA := strconv.ParseInt(start, 10, 64)
		b, errB := strconv.ParseInt(end, 10, 64)
		if errA != nil || errB != nil || a < 0 || b < a {
			return s.RangeSpec{}, false
		}
		return s.RangeSpec{Kind: s.RangeClosed, Start: a, End: b}, true
	default:
		return s.RangeSpec{}, false
	}
}

// ResolveRange clamps spec against a known object size, per §3's Range spec
// rules: FromOffset(a) with a >= size is unsatisfiable; Closed(a,b) with
// b >= size is clamped to size-1.
func ResolveRange(spec s.RangeSpec, size int64) (s.ResolvedRange, error) {
	switch spec.Kind {
	case s.RangeNone:
		return s.ResolvedRange{Start: 0, End: size - 1, Total: size}, nil
	case s.RangeSuffix:
		if spec.Suffix <= 0 {
			return s.ResolvedRange{}, e.ErrInvalidRange
		}
		n := spec.Suffix
		if n > size {
			n = size
		}
		return s.ResolvedRange{Start: size - n, End: size - 1, Total: size}, nil
	case s.RangeFromOffset:
		if spec.Start >= size {
			return s.ResolvedRange{}, e.ErrInvalidRange
		}
		return s.ResolvedRange{Start: spec.Start, End: size - 1, Total: size}, nil
	case s.RangeClosed:
		if spec.Start >= size {
			return s.ResolvedRange{}, e.ErrInvalidRange
		}
		end := spec.End
		if end >= size {
			end = size - 1
		}
		return s.ResolvedRange{Start: spec.Start, End: end, Total: size}, nil
	default:
		return s.ResolvedRange{}, e.ErrInvalidRequest
	}
}

// IsRanged reports whether spec represents an actual range request (as
// opposed to a full-object GET), used to decide between a 200 and 206 status.
func IsRanged(spec s.RangeSpec) bool {
	return spec.Kind != s.RangeNone
}

// ToHTTPRangeHeader renders a resolved range as the `bytes=a-b` value a
// backend SDK's GetObject range option expects.
func ToHTTPRangeHeader(r s.ResolvedRange) string {
	return "bytes=" + strconv.FormatInt(r.Start, 10) + "-" + strconv.FormatInt(r.End, 10)
}
