package linkverify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractLinksFromReader(t *testing.T) {
	doc := `<html><head>
<link rel="stylesheet" href="_static/style.css">
<script src="_static/app.js"></script>
</head><body>
<a href="api/index.html">API</a>
<a href="">empty</a>
<img src="img/logo.png" alt="logo">
<video src="clip.mp4"></video>
<iframe src="embed.html"></iframe>
</body></html>`

	links, err := ExtractLinksFromReader(strings.NewReader(doc))
	require.NoError(t, err)

	got := make([]string, 0, len(links))
	for _, l := range links {
		got = append(got, l.Tag+"="+l.URL)
	}
	require.Equal(t, []string{
		"link=_static/style.css",
		"script=_static/app.js",
		"a=api/index.html",
		"img=img/logo.png",
		"video=clip.mp4",
		"iframe=embed.html",
	}, got)
}

func TestIsLocal(t *testing.T) {
	tests := []struct {
		link string
		want bool
	}{
		{"page.html", true},
		{"../up.html", true},
		{"/abs/path.html", true},
		{"dir/", true},
		{"a/b:c.html", true},
		{"#section", false},
		{"", false},
		{"//cdn.example.com/x.js", false},
		{"https://example.com", false},
		{"MAILTO:someone@example.com", false},
		{"javascript:void(0)", false},
		{"data:image/png;base64,AAAA", false},
		{"tel:+100", false},
	}
	for _, tt := range tests {
		if got := IsLocal(tt.link); got != tt.want {
			t.Errorf("IsLocal(%q) = %v, want %v", tt.link, got, tt.want)
		}
	}
}
