package web

import (
	"encoding/xml"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/terrycain/s3-read-proxy/pkg/e"
	"github.com/terrycain/s3-read-proxy/pkg/s"
)

// s3Namespace is the fixed XML namespace every S3 error and listing document
// in this API carries, per §4.6/§6.
const s3Namespace = "http://s3.amazonaws.com/doc/2006-03-01/"

type xmlError struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	Resource  string   `xml:"Resource"`
	RequestID string   `xml:"RequestId"`
}

// writeError renders err as S3 error XML and aborts the gin context. An
// error that is not already a classified *e.Error is surfaced to the client
// as InternalError without leaking its text; per §7, only 5xx responses are
// logged with full request context.
func writeError(c *gin.Context, err error) {
	classified, ok := e.As(err)
	if !ok {
		classified = e.ErrInternalError
	}

	rid := requestIDFrom(c)
	if classified.Status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("request_id", rid).Str("path", c.Request.URL.Path).
			Str("method", c.Request.Method).Msg("request failed")
	}

	body := xmlError{
		Code:      classified.Code,
		Message:   classified.Message,
		Resource:  c.Request.URL.Path,
		RequestID: rid,
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header(RequestIDHeader, rid)
	c.Status(classified.Status)
	_, _ = c.Writer.Write([]byte(xml.Header))
	_ = xml.NewEncoder(c.Writer).Encode(body)
	c.Abort()
}

type xmlContents struct {
	Key          string `xml:"Key"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag"`
	Size         int64  `xml:"Size"`
	StorageClass string `xml:"StorageClass"`
}

type xmlCommonPrefix struct {
	Prefix string `xml:"Prefix"`
}

type xmlListBucketResult struct {
	XMLName               xml.Name          `xml:"ListBucketResult"`
	Xmlns                 string            `xml:"xmlns,attr"`
	Name                  string            `xml:"Name"`
	Prefix                string            `xml:"Prefix"`
	Delimiter             string            `xml:"Delimiter,omitempty"`
	KeyCount              int               `xml:"KeyCount"`
	MaxKeys               int               `xml:"MaxKeys"`
	IsTruncated           bool              `xml:"IsTruncated"`
	ContinuationToken     string            `xml:"ContinuationToken,omitempty"`
	NextContinuationToken string            `xml:"NextContinuationToken,omitempty"`
	Contents              []xmlContents     `xml:"Contents"`
	CommonPrefixes        []xmlCommonPrefix `xml:"CommonPrefixes"`
}

// writeListObjectsV2 renders page as a ListObjectsV2-shaped ListBucketResult
// document, per §4.6's listing details.
func writeListObjectsV2(c *gin.Context, bucketName, prefix string, page s.ListPage) {
	resp := xmlListBucketResult{
		Xmlns:                 s3Namespace,
		Name:                  bucketName,
		Prefix:                prefix,
		Delimiter:             page.Delimiter,
		KeyCount:              page.KeyCount,
		MaxKeys:               page.MaxKeys,
		IsTruncated:           page.IsTruncated,
		ContinuationToken:     page.ContinuationToken,
		NextContinuationToken: page.NextContinuationToken,
	}

	for _, entry := range page.Contents {
		storageClass := entry.StorageClass
		if storageClass == "" {
			storageClass = "STANDARD"
		}
		resp.Contents = append(resp.Contents, xmlContents{
			Key:          entry.Key,
			LastModified: entry.LastModified.UTC().Format(time.RFC3339),
			ETag:         `"` + strings.Trim(entry.ETag, `"`) + `"`,
			Size:         entry.Size,
			StorageClass: storageClass,
		})
	}
	for _, cp := range page.CommonPrefixes {
		resp.CommonPrefixes = append(resp.CommonPrefixes, xmlCommonPrefix{Prefix: cp.Prefix})
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header(RequestIDHeader, requestIDFrom(c))
	c.Status(http.StatusOK)
	_, _ = c.Writer.Write([]byte(xml.Header))
	_ = xml.NewEncoder(c.Writer).Encode(resp)
}
