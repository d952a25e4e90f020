package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"strips fragment", "https://example.com/a#frag", "https://example.com/a"},
		{"strips query", "https://example.com/a?x=1", "https://example.com/a"},
		{"strips trailing slash", "https://example.com/a/", "https://example.com/a"},
		{"strips all three", "https://example.com/a/?x=1#frag", "https://example.com/a"},
		{"root collapses to host", "https://example.com/", "https://example.com"},
		{"lowercases host", "https://Example.COM/A", "https://example.com/A"},
		{"removes default https port", "https://example.com:443/a", "https://example.com/a"},
		{"removes default http port", "http://example.com:80/a", "http://example.com/a"},
		{"keeps explicit port", "https://example.com:8443/a", "https://example.com:8443/a"},
		{"youtube keeps query", "https://youtube.com/watch?v=abc#t=5", "https://youtube.com/watch?v=abc"},
		{"youtube subdomain keeps query", "https://www.youtube.com/watch?v=abc", "https://www.youtube.com/watch?v=abc"},
		{"play store keeps query", "https://play.google.com/store/apps/details?id=org.example", "https://play.google.com/store/apps/details?id=org.example"},
		{"app store keeps query", "https://apps.apple.com/us/app/example/id123?mt=8", "https://apps.apple.com/us/app/example/id123?mt=8"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeURL(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeURL_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"https://example.com/a/?x=1#frag",
		"https://youtube.com/watch?v=abc#t=5",
		"http://Example.com:80/path/sub/",
		"https://example.com",
		"https://apps.apple.com/us/app/example/id123?mt=8",
	}
	for _, in := range inputs {
		once, err := NormalizeURL(in)
		require.NoError(t, err)
		twice, err := NormalizeURL(once)
		require.NoError(t, err)
		require.Equal(t, once, twice, "normalize must be idempotent for %q", in)
	}
}

func TestNormalizeURL_Invalid(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "not a url", "/relative/path", "mailto:x@example.com"} {
		_, err := NormalizeURL(in)
		require.Error(t, err, "expected error for %q", in)
	}
}

func TestIsHomePage(t *testing.T) {
	t.Parallel()

	require.True(t, IsHomePage("https://example.com"))
	require.True(t, IsHomePage("https://example.com/"))
	require.False(t, IsHomePage("https://example.com/about"))
	require.False(t, IsHomePage("https://example.com/a/b"))
}

func TestIsCrawlableLink(t *testing.T) {
	t.Parallel()

	require.True(t, IsCrawlableLink("https://example.com/page"))
	require.True(t, IsCrawlableLink("http://example.com/page.html"))
	require.False(t, IsCrawlableLink("https://example.com/logo.PNG"))
	require.False(t, IsCrawlableLink("https://example.com/app.js"))
	require.False(t, IsCrawlableLink("https://example.com/report.pdf"))
	require.False(t, IsCrawlableLink("ftp://example.com/file"))
	require.False(t, IsCrawlableLink("javascript:void(0)"))
}

func TestDomain(t *testing.T) {
	t.Parallel()

	require.Equal(t, "sub.example.com", Domain("https://Sub.Example.com/a"))
	require.Equal(t, "", Domain("://bad"))
}
