package urlkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "strips scheme and www",
			url:  "https://www.example.com/a",
			want: "example.com/a",
		},
		{
			name: "strips trailing slash",
			url:  "https://example.com/a/",
			want: "example.com/a",
		},
		{
			name: "root path normalizes to slash",
			url:  "https://example.com",
			want: "example.com/",
		},
		{
			name: "drops tracking params",
			url:  "https://example.com/a?utm_source=mail&utm_campaign=x&fbclid=123",
			want: "example.com/a",
		},
		{
			name: "keeps meaningful params sorted",
			url:  "https://example.com/a?page=2&id=7&utm_medium=social",
			want: "example.com/a?id=7&page=2",
		},
		{
			name: "lowercases host and path",
			url:  "HTTPS://Example.COM/Article",
			want: "example.com/article",
		},
		{
			name: "empty input",
			url:  "",
			want: "",
		},
		{
			name: "schemeless input is rejected",
			url:  "not a url",
			want: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Key(tc.url))
		})
	}
}

func TestSame(t *testing.T) {
	assert.True(t, Same("https://www.example.com/a/", "http://example.com/a?utm_source=x"))
	assert.False(t, Same("https://example.com/a", "https://example.com/b"))
	assert.False(t, Same("", ""))
}

func TestDomainAndPath(t *testing.T) {
	assert.Equal(t, "example.com", Domain("https://www.Example.com/a/b"))
	assert.Equal(t, "/a/b", Path("https://www.example.com/a/b/"))
	assert.Equal(t, "/", Path("https://example.com"))
}
