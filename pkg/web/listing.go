package web

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/terrycain/s3-read-proxy/pkg/backend"
	"github.com/terrycain/s3-read-proxy/pkg/e"
	"github.com/terrycain/s3-read-proxy/pkg/s"
)

// ListObjects serves GET /{account}?list-type=2&prefix=...&delimiter=...
// &continuation-token=...&max-keys=..., per §4.6. The repository, if any, is
// carried inside prefix (e.g. "myrepo/2024/") rather than the path: a prefix
// with no '/' does not select a single repository, so the listing falls back
// to enumerating the caller's permitted repositories in that account.
func (h *Handlers) ListObjects(c *gin.Context) {
	if c.Query("list-type") != "2" {
		writeError(c, e.ErrInvalidRequest.Wrap(fmt.Errorf("only list-type=2 is supported")))
		return
	}

	account := c.Param("account")
	prefix := c.Query("prefix")
	delimiter := c.Query("delimiter")
	continuationToken := c.Query("continuation-token")
	maxKeys, _ := strconv.Atoi(c.Query("max-keys"))

	cred := credentialFrom(c)

	repo, repoPrefix, ok := splitRepoFromPrefix(prefix)
	if !ok {
		h.listAccount(c, account, cred, prefix, continuationToken, maxKeys)
		return
	}

	ref := s.RepositoryRef{AccountID: account, RepositoryID: repo}
	if !cred.Permits(ref) {
		writeError(c, e.ErrAccessDenied)
		return
	}

	binding, err := h.Repository.Resolve(c.Request.Context(), account, repo)
	if err != nil {
		writeError(c, err)
		return
	}
	be, err := h.Backends.Get(binding)
	if err != nil {
		writeError(c, e.ErrInternalError.Wrap(err))
		return
	}

	var page s.ListPage
	listErr := withBackendLatency(binding.Kind, "list", func() error {
		var err error
		page, err = be.List(c.Request.Context(), repoPrefix, delimiter, continuationToken, maxKeys)
		return err
	})
	if listErr != nil {
		writeError(c, listErr)
		return
	}

	// Keys come back relative to the repository root (the backend strips only
	// its base prefix); re-attach the repo so the client sees keys relative
	// to the virtual account-level bucket.
	for i := range page.Contents {
		page.Contents[i].Key = repo + "/" + page.Contents[i].Key
	}
	for i := range page.CommonPrefixes {
		page.CommonPrefixes[i].Prefix = repo + "/" + page.CommonPrefixes[i].Prefix
	}

	writeListObjectsV2(c, account, prefix, page)
}

// splitRepoFromPrefix splits prefix on its first '/' into a candidate
// repository id and the remaining key prefix. A prefix with no '/' does not
// unambiguously select one repository (it is at most a partial repository
// name), so ok is false and the caller falls back to account-level listing.
func splitRepoFromPrefix(prefix string) (repo, rest string, ok bool) {
	idx := strings.Index(prefix, "/")
	if idx < 0 {
		return "", "", false
	}
	return prefix[:idx], prefix[idx+1:], true
}

// listAccount serves the synthetic account-level listing: every repository
// the caller's credential permits within account, filtered by prefix and
// rendered as CommonPrefixes, never as object Contents. This never makes an
// upstream call — the permitted-repository set already came back with the
// credential resolution.
func (h *Handlers) listAccount(c *gin.Context, account string, cred s.CredentialRecord, prefix, continuationToken string, maxKeys int) {
	maxKeys = backend.ClampMaxKeys(maxKeys)

	var repos []string
	for ref := range cred.PermittedRepositories {
		if ref.AccountID != account {
			continue
		}
		if prefix != "" && !strings.HasPrefix(ref.RepositoryID, prefix) {
			continue
		}
		repos = append(repos, ref.RepositoryID)
	}
	sort.Strings(repos)

	start := sort.SearchStrings(repos, continuationToken)
	end := start + maxKeys
	if end > len(repos) {
		end = len(repos)
	}

	page := s.ListPage{Prefix: prefix, MaxKeys: maxKeys}
	for _, r := range repos[start:end] {
		page.CommonPrefixes = append(page.CommonPrefixes, s.CommonPrefix{Prefix: r + "/"})
	}
	page.KeyCount = len(page.CommonPrefixes)
	if end < len(repos) {
		page.IsTruncated = true
		page.NextContinuationToken = repos[end]
	}

	writeListObjectsV2(c, account, prefix, page)
}
