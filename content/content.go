// Package content defines the file-content provider boundary: given a
// repository coordinate and a ref, return the decoded file text and its
// blob identity. The GitHub contents API implementation lives here; the
// rest of the system depends only on the Provider interface.
package content

import "context"

// FileContent is a decoded file plus its content identity.
type FileContent struct {
	// Content is the decoded file text.
	Content string
	// SHA is the provider's blob hash for this content.
	SHA string
}

// Provider fetches file content from a remote repository. A missing file
// surfaces as *extract.FileNotFoundError; any other failure is a generic
// error carrying the provider's own timeout semantics.
type Provider interface {
	GetFileContent(ctx context.Context, owner, repo, path, ref string) (*FileContent, error)
}
