package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVideoIDFromURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "watch url with playlist params",
			url:  "https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=PLx&index=3",
			want: "dQw4w9WgXcQ",
		},
		{
			name: "id embedded in list param does not leak",
			url:  "https://www.youtube.com/watch?v=abc123&list=PLdQw4w9WgXcQzz",
			want: "abc123",
		},
		{
			name: "relative watch url",
			url:  "/watch?v=abc123",
			want: "abc123",
		},
		{
			name: "path based id",
			url:  "https://example.com/videos/xyz-789",
			want: "xyz-789",
		},
		{
			name: "trailing slash",
			url:  "https://example.com/videos/xyz-789/",
			want: "xyz-789",
		},
		{
			name: "unparseable falls back to raw",
			url:  "::not-a-url::",
			want: "::not-a-url::",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VideoIDFromURL(tt.url))
		})
	}
}
