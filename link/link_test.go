package link

import (
	"strings"
	"testing"

	"github.com/c360studio/tether/reference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `# Payment flow

The entry point is [the charge handler](github://acme/billing/internal/charge.go#Handler.ServeHTTP)
which validates input on [these lines](github://acme/billing/internal/charge.go:42-57).

Retries live in [one line](github://acme/billing/internal/retry.go:12) and the
public docs are at [the website](https://acme.example/docs).
`

func TestScanDocument(t *testing.T) {
	links := ScanDocument(sampleDoc)
	require.Len(t, links, 3, "https link must be ignored")

	fn := links[0]
	assert.Equal(t, reference.TypeFunction, fn.Type)
	assert.Equal(t, "acme", fn.Owner)
	assert.Equal(t, "billing", fn.Repo)
	assert.Equal(t, "internal/charge.go", fn.FilePath)
	assert.Equal(t, "Handler", fn.ClassName)
	assert.Equal(t, "ServeHTTP", fn.FunctionName)
	assert.Equal(t, "the charge handler", fn.Label)

	rng := links[1]
	assert.Equal(t, reference.TypeRange, rng.Type)
	assert.Equal(t, 42, rng.StartLine)
	assert.Equal(t, 57, rng.EndLine)

	line := links[2]
	assert.Equal(t, reference.TypeLine, line.Type)
	assert.Equal(t, 12, line.StartLine)
	assert.Equal(t, "internal/retry.go", line.FilePath)
}

func TestScanDocument_RoundTrip(t *testing.T) {
	// Parsing and re-locating the matched span must reproduce the
	// original text exactly.
	links := ScanDocument(sampleDoc)
	for _, l := range links {
		if !strings.Contains(sampleDoc, l.OriginalText) {
			t.Errorf("original text %q not found verbatim in document", l.OriginalText)
		}
		if !strings.HasPrefix(l.OriginalText, "["+l.Label+"](") {
			t.Errorf("original text %q does not embed label %q", l.OriginalText, l.Label)
		}
	}
}

func TestScanDocument_Context(t *testing.T) {
	links := ScanDocument(sampleDoc)
	require.Len(t, links, 3)
	assert.Contains(t, links[0].Context, "entry point")
	assert.Contains(t, links[2].Context, "Retries live in")
}

func TestScanDocument_SchemeNotAlone(t *testing.T) {
	doc := `See [the handler](see github://acme/billing/pkg/api.go:7 "api entry") for details.`
	links := ScanDocument(doc)
	require.Len(t, links, 1)
	assert.Equal(t, "pkg/api.go", links[0].FilePath)
	assert.Equal(t, 7, links[0].StartLine)
}

func TestScanDocument_Empty(t *testing.T) {
	assert.Empty(t, ScanDocument(""))
	assert.Empty(t, ScanDocument("no links here at all"))
	assert.Empty(t, ScanDocument("[plain](https://example.com) markdown only"))
}

func TestScanDocument_SkipsMalformed(t *testing.T) {
	doc := `[broken](github://ownerless) then [good](github://a/b/c.go:1)`
	links := ScanDocument(doc)
	require.Len(t, links, 1)
	assert.Equal(t, "c.go", links[0].FilePath)
}

func TestExtractRepoInfo(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    Link
		wantErr bool
	}{
		{
			name: "single line",
			url:  "github://acme/billing/pkg/ledger.go:33",
			want: Link{Type: reference.TypeLine, Owner: "acme", Repo: "billing", FilePath: "pkg/ledger.go", StartLine: 33},
		},
		{
			name: "range",
			url:  "github://acme/billing/pkg/ledger.go:5-9",
			want: Link{Type: reference.TypeRange, Owner: "acme", Repo: "billing", FilePath: "pkg/ledger.go", StartLine: 5, EndLine: 9},
		},
		{
			name: "plain function",
			url:  "github://acme/billing/pkg/ledger.go#Post",
			want: Link{Type: reference.TypeFunction, Owner: "acme", Repo: "billing", FilePath: "pkg/ledger.go", FunctionName: "Post"},
		},
		{
			name: "dotted function",
			url:  "github://acme/billing/pkg/ledger.go#Ledger.Post",
			want: Link{Type: reference.TypeFunction, Owner: "acme", Repo: "billing", FilePath: "pkg/ledger.go", ClassName: "Ledger", FunctionName: "Post"},
		},
		{
			name: "bare file defaults to first line",
			url:  "github://acme/billing/README.md",
			want: Link{Type: reference.TypeLine, Owner: "acme", Repo: "billing", FilePath: "README.md", StartLine: 1},
		},
		{name: "missing scheme", url: "https://github.com/acme/billing", wantErr: true},
		{name: "no repo", url: "github://acme", wantErr: true},
		{name: "no path", url: "github://acme/billing", wantErr: true},
		{name: "inverted range", url: "github://acme/billing/a.go:9-5", wantErr: true},
		{name: "zero line", url: "github://acme/billing/a.go:0", wantErr: true},
		{name: "non-numeric line", url: "github://acme/billing/a.go:abc", wantErr: true},
		{name: "empty function", url: "github://acme/billing/a.go#", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractRepoInfo(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				var malformed *MalformedLinkError
				require.ErrorAs(t, err, &malformed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
