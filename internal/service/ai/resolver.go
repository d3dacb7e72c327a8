package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/grafov/m3u8"
)

const (
	twitchGQLURL   = "https://gql.twitch.tv/gql"
	twitchUsherURL = "https://usher.ttvnw.net/api/channel/hls/"
	// twitchClientID is the public client id of the Twitch web player.
	twitchClientID = "kimne78kx3ncx6brgo4mv6wki5h1ko"

	defaultStreamHeight = 720
)

const playbackTokenQuery = `query PlaybackAccessToken($login: String!, $playerType: String!) {
  streamPlaybackAccessToken(channelName: $login, params: {platform: "web", playerBackend: "mediaplayer", playerType: $playerType}) {
    value
    signature
  }
}`

// StreamResolver turns a configured source into a URL the decoder can open.
type StreamResolver interface {
	Resolve(ctx context.Context, source string) (string, error)
}

// TwitchResolver resolves Twitch channel pages to the HLS playlist of the
// variant closest to the preferred quality. Other sources pass through.
type TwitchResolver struct {
	client   *http.Client
	gqlURL   string
	usherURL string
	height   int
}

// NewTwitchResolver prefers the variant matching quality, e.g. "720p".
func NewTwitchResolver(quality string) *TwitchResolver {
	height, err := strconv.Atoi(strings.TrimSuffix(strings.ToLower(quality), "p"))
	if err != nil || height <= 0 {
		height = defaultStreamHeight
	}
	return &TwitchResolver{
		client:   &http.Client{Timeout: 10 * time.Second},
		gqlURL:   twitchGQLURL,
		usherURL: twitchUsherURL,
		height:   height,
	}
}

// TwitchChannel extracts the channel name from a twitch.tv channel URL.
func TwitchChannel(source string) (string, bool) {
	u, err := url.Parse(source)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	switch strings.ToLower(u.Hostname()) {
	case "twitch.tv", "www.twitch.tv", "m.twitch.tv":
	default:
		return "", false
	}

	channel := strings.Trim(u.Path, "/")
	if channel == "" || strings.Contains(channel, "/") {
		return "", false
	}
	return strings.ToLower(channel), true
}

func (r *TwitchResolver) Resolve(ctx context.Context, source string) (string, error) {
	channel, ok := TwitchChannel(source)
	if !ok {
		return source, nil
	}

	value, signature, err := r.accessToken(ctx, channel)
	if err != nil {
		return "", err
	}

	variants, err := r.variants(ctx, channel, value, signature)
	if err != nil {
		return "", err
	}

	variant := selectVariant(variants, r.height)
	if variant == nil {
		return "", fmt.Errorf("channel %s has no video variant", channel)
	}
	return variant.URI, nil
}

func (r *TwitchResolver) accessToken(ctx context.Context, channel string) (string, string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"operationName": "PlaybackAccessToken",
		"query":         playbackTokenQuery,
		"variables": map[string]interface{}{
			"login":      channel,
			"playerType": "site",
		},
	})
	if err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.gqlURL, bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Client-ID", twitchClientID)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("failed to request playback token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("playback token request returned %s", resp.Status)
	}

	var payload struct {
		Data struct {
			Token *struct {
				Value     string `json:"value"`
				Signature string `json:"signature"`
			} `json:"streamPlaybackAccessToken"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", "", fmt.Errorf("failed to decode playback token: %w", err)
	}
	if payload.Data.Token == nil {
		return "", "", fmt.Errorf("channel %s does not exist", channel)
	}
	return payload.Data.Token.Value, payload.Data.Token.Signature, nil
}

func (r *TwitchResolver) variants(ctx context.Context, channel, value, signature string) ([]*m3u8.Variant, error) {
	query := url.Values{
		"allow_source":               {"true"},
		"allow_audio_only":           {"true"},
		"fast_bread":                 {"true"},
		"player":                     {"twitchweb"},
		"playlist_include_framerate": {"true"},
		"p":                          {strconv.Itoa(rand.Intn(1_000_000))},
		"sig":                        {signature},
		"token":                      {value},
	}
	endpoint := r.usherURL + url.PathEscape(channel) + ".m3u8?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to request playlist: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("channel %s is offline", channel)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("playlist request returned %s", resp.Status)
	}

	playlist, listType, err := m3u8.DecodeFrom(bufio.NewReader(resp.Body), false)
	if err != nil {
		return nil, fmt.Errorf("failed to parse playlist: %w", err)
	}
	if listType != m3u8.MASTER {
		return nil, fmt.Errorf("expected a master playlist for channel %s", channel)
	}
	return playlist.(*m3u8.MasterPlaylist).Variants, nil
}

// selectVariant picks the first variant of exactly the preferred height,
// else the tallest below it, else the shortest above it. Variants without
// a resolution (audio only) are skipped.
func selectVariant(variants []*m3u8.Variant, height int) *m3u8.Variant {
	var below, above *m3u8.Variant
	belowHeight, aboveHeight := 0, 0

	for _, v := range variants {
		if v == nil || v.URI == "" {
			continue
		}
		h := resolutionHeight(v.Resolution)
		switch {
		case h <= 0:
			continue
		case h == height:
			return v
		case h < height && h > belowHeight:
			below, belowHeight = v, h
		case h > height && (above == nil || h < aboveHeight):
			above, aboveHeight = v, h
		}
	}

	if below != nil {
		return below
	}
	return above
}

// resolutionHeight reads the height of a "1280x720" resolution attribute.
func resolutionHeight(resolution string) int {
	_, h, ok := strings.Cut(resolution, "x")
	if !ok {
		return 0
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return 0
	}
	return height
}
