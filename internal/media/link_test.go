package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want Link
	}{
		{"youtube watch", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", Link{"yt", "dQw4w9WgXcQ"}},
		{"youtube watch extra params", "https://youtube.com/watch?list=x&v=abc123#t=10", Link{"yt", "abc123"}},
		{"youtube short", "https://youtu.be/dQw4w9WgXcQ", Link{"yt", "dQw4w9WgXcQ"}},
		{"youtube playlist", "https://www.youtube.com/playlist?list=PL123", Link{"yp", "PL123"}},
		{"twitch clip", "https://clips.twitch.tv/FunnyClip-abc", Link{"tc", "FunnyClip-abc"}},
		{"twitch vod gets v prefix", "https://www.twitch.tv/videos/123456", Link{"tv", "v123456"}},
		{"twitch channel", "https://twitch.tv/somestreamer", Link{"tw", "somestreamer"}},
		{"vimeo", "https://vimeo.com/90210", Link{"vi", "90210"}},
		{"dailymotion", "https://www.dailymotion.com/video/x2abc", Link{"dm", "x2abc"}},
		{"soundcloud keeps whole url", "https://soundcloud.com/artist/track", Link{"sc", "https://soundcloud.com/artist/track"}},
		{"google drive file", "https://drive.google.com/file/d/FILEID123/view", Link{"gd", "FILEID123"}},
		{"google drive open", "https://drive.google.com/open?id=FILEID123", Link{"gd", "FILEID123"}},
		{"imgur album", "https://imgur.com/a/abc12", Link{"im", "abc12"}},
		{"streamable", "https://streamable.com/moo", Link{"sb", "moo"}},
		{"livestream", "https://livestream.com/channelpage", Link{"li", "channelpage"}},
		{"ustream", "https://www.ustream.tv/mychannel", Link{"us", "mychannel"}},
		{"rtmp stream", "rtmp://example.com/live", Link{"rt", "rtmp://example.com/live"}},
		{"hls playlist", "https://example.com/stream.m3u8", Link{"hl", "https://example.com/stream.m3u8"}},
		{"custom manifest", "https://example.com/media.json", Link{"cm", "https://example.com/media.json"}},
		{"raw file", "https://example.com/video.mp4", Link{"fi", "https://example.com/video.mp4"}},
		{"raw file with query", "https://example.com/video.webm?token=x", Link{"fi", "https://example.com/video.webm?token=x"}},
		{"explicit prefix", "yt:dQw4w9WgXcQ", Link{"yt", "dQw4w9WgXcQ"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromURL(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromURLRejections(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, err := FromURL("")
		assert.Error(t, err)
	})
	t.Run("http raw file", func(t *testing.T) {
		_, err := FromURL("http://example.com/video.mp4")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `must begin with "https"`)
	})
	t.Run("unsupported extension", func(t *testing.T) {
		_, err := FromURL("https://example.com/video.mkv")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not match the supported file extensions")
	})
	t.Run("not a url", func(t *testing.T) {
		_, err := FromURL("just some words")
		assert.Error(t, err)
	})
}

func TestURL(t *testing.T) {
	tests := []struct {
		name string
		link Link
		want string
	}{
		{"youtube", Link{"yt", "dQw4w9WgXcQ"}, "https://youtube.com/watch?v=dQw4w9WgXcQ"},
		{"twitch vod strips v prefix", Link{"tv", "v123456"}, "https://twitch.tv/videos/123456"},
		{"soundcloud url id passes through", Link{"sc", "https://soundcloud.com/artist/track"}, "https://soundcloud.com/artist/track"},
		{"soundcloud path id", Link{"sc", "artist/track"}, "https://soundcloud.com/artist/track"},
		{"raw file passes through", Link{"fi", "https://example.com/video.mp4"}, "https://example.com/video.mp4"},
		{"rtmp passes through", Link{"rt", "rtmp://example.com/live"}, "rtmp://example.com/live"},
		{"unknown type falls back to compact form", Link{"zz", "abc"}, "zz:abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.link.URL())
		})
	}
}

func TestRoundTrip(t *testing.T) {
	urls := []string{
		"https://youtube.com/watch?v=dQw4w9WgXcQ",
		"https://vimeo.com/90210",
		"https://soundcloud.com/artist/track",
		"https://example.com/video.mp4",
	}
	for _, u := range urls {
		link, err := FromURL(u)
		require.NoError(t, err)
		again, err := FromURL(link.URL())
		require.NoError(t, err)
		assert.Equal(t, link, again, "url %s", u)
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "yt:abc", Link{"yt", "abc"}.String())
}
