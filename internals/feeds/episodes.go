package feeds

import (
	"net/url"
	"path"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mmcdole/gofeed"
	"github.com/pkg/errors"
	"github.com/tutuna/telex/internals/multipart"
	"github.com/tutuna/telex/internals/telex"
)

const (
	maxSubtitleLen   = 800
	defaultAudioType = "audio/mpeg"
)

// Episode is a feed item with an audio enclosure.
type Episode struct {
	GUID      string
	Title     string
	Subtitle  string
	AudioURL  string
	AudioType string
	Length    string
	Published *time.Time
}

// LatestEpisodes parses the feed at feedURL and returns at most limit
// episodes carrying audio, newest first. A limit <= 0 returns all of them.
func LatestEpisodes(fp FeedParserInterface, feedURL string, limit int) ([]Episode, error) {
	if fp == nil {
		return nil, errors.New("feed parser is nil")
	}
	feed, err := fp.ParseURL(feedURL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse feed %s", feedURL)
	}

	var episodes []Episode
	for _, item := range feed.Items {
		if ep, ok := episodeFromItem(item); ok {
			episodes = append(episodes, ep)
		}
	}

	// undated items sink to the end, feed order is kept otherwise
	sort.SliceStable(episodes, func(i, j int) bool {
		a, b := episodes[i].Published, episodes[j].Published
		if a == nil || b == nil {
			return a != nil
		}
		return a.After(*b)
	})

	if limit > 0 && len(episodes) > limit {
		episodes = episodes[:limit]
	}
	return episodes, nil
}

func episodeFromItem(item *gofeed.Item) (Episode, bool) {
	if item == nil {
		return Episode{}, false
	}
	for _, enc := range item.Enclosures {
		if enc == nil || !isAudio(enc) {
			continue
		}
		ep := Episode{
			GUID:      item.GUID,
			Title:     strings.TrimSpace(item.Title),
			AudioURL:  enc.URL,
			AudioType: enc.Type,
			Length:    enc.Length,
			Published: item.PublishedParsed,
		}
		if ep.GUID == "" {
			ep.GUID = enc.URL
		}
		if item.ITunesExt != nil {
			ep.Subtitle = strings.TrimSpace(item.ITunesExt.Subtitle)
		}
		if ep.Subtitle == "" {
			ep.Subtitle = strings.TrimSpace(item.Description)
		}
		return ep, true
	}
	return Episode{}, false
}

func isAudio(enc *gofeed.Enclosure) bool {
	if strings.HasPrefix(strings.ToLower(enc.Type), "audio/") {
		return true
	}
	u, err := url.Parse(enc.URL)
	if err != nil {
		return false
	}
	return strings.EqualFold(path.Ext(u.Path), ".mp3")
}

// Filename is the last path element of the audio URL.
func (e Episode) Filename() string {
	if u, err := url.Parse(e.AudioURL); err == nil {
		if base := path.Base(u.Path); base != "/" && base != "." {
			return base
		}
	}
	return "episode.mp3"
}

// Caption is the episode title followed by its subtitle, the latter cut
// to a length Telegram accepts.
func (e Episode) Caption() string {
	sub := e.Subtitle
	if utf8.RuneCountInString(sub) > maxSubtitleLen {
		sub = string([]rune(sub)[:maxSubtitleLen]) + "..."
	}
	if sub == "" {
		return e.Title
	}
	if e.Title == "" {
		return sub
	}
	return e.Title + "\n\n" + sub
}

// Payload builds a sendAudio request for chatID whose audio part is read
// from open.
func (e Episode) Payload(chatID string, open multipart.OpenFunc) telex.Payload {
	ct := e.AudioType
	if ct == "" {
		ct = defaultAudioType
	}
	return telex.Payload{}.
		With("chat_id", chatID).
		With("title", e.Title).
		With("caption", e.Caption()).
		With("audio", telex.NewResource(e.Filename(), ct, open))
}
