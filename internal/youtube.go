package internal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/youtube/v3"
)

// Quota cost per call, from the YouTube Data API pricing table. The search
// API (100 units per call) is deliberately avoided in favor of the uploads
// playlist, which costs 1 unit per page.
const (
	costSubscriptionsList = 1
	costChannelsList      = 1
	costPlaylistItemsList = 1
	costVideosList        = 1
)

// YouTubeClient is the quota-aware source client. Every API call reserves
// its cost from the ledger before it is made, so the daily ceiling is never
// discovered from the remote side.
type YouTubeClient struct {
	service *youtube.Service
	ledger  *QuotaLedger
	limiter *rate.Limiter
	retry   RetryPolicy
	timeout time.Duration
}

// NewYouTubeClient wraps an authenticated youtube.Service. The service is
// supplied by the caller (API key for public data, OAuth for subscriptions)
// rather than constructed here.
func NewYouTubeClient(service *youtube.Service, ledger *QuotaLedger, callTimeout time.Duration) *YouTubeClient {
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	return &YouTubeClient{
		service: service,
		ledger:  ledger,
		limiter: rate.NewLimiter(rate.Limit(5), 1),
		retry:   DefaultRetryPolicy(),
		timeout: callTimeout,
	}
}

// Subscriptions returns all channels the authenticated user subscribes to.
func (c *YouTubeClient) Subscriptions(ctx context.Context) ([]ChannelRef, error) {
	var channels []ChannelRef
	pageToken := ""
	page := 0
	for {
		if err := c.ledger.Reserve("subscriptions.list", costSubscriptionsList); err != nil {
			return channels, err
		}
		page++

		var resp *youtube.SubscriptionListResponse
		err := c.call(ctx, fmt.Sprintf("subscriptions.list page %d", page), func(ctx context.Context) error {
			call := c.service.Subscriptions.List([]string{"snippet"}).
				Mine(true).MaxResults(50).Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			var err error
			resp, err = call.Do()
			return err
		})
		if err != nil {
			return channels, fmt.Errorf("listing subscriptions: %w", err)
		}

		for _, item := range resp.Items {
			if item.Snippet == nil || item.Snippet.ResourceId == nil {
				continue
			}
			channels = append(channels, ChannelRef{
				ChannelID: item.Snippet.ResourceId.ChannelId,
				Name:      item.Snippet.Title,
			})
		}
		pageToken = resp.NextPageToken
		if pageToken == "" {
			return channels, nil
		}
	}
}

// RecentUploads returns videos published on the channel since the given
// time, using the uploads playlist. Pagination stops as soon as a whole
// page falls outside the window, since the playlist is newest-first.
func (c *YouTubeClient) RecentUploads(ctx context.Context, channel ChannelRef, since time.Time) ([]VideoRef, error) {
	playlistID, err := c.uploadsPlaylistID(ctx, channel.ChannelID)
	if err != nil {
		return nil, err
	}
	if playlistID == "" {
		return nil, nil
	}

	var videos []VideoRef
	pageToken := ""
	page := 0
	for {
		if err := c.ledger.Reserve("playlistItems.list", costPlaylistItemsList); err != nil {
			return videos, err
		}
		page++

		var resp *youtube.PlaylistItemListResponse
		err := c.call(ctx, fmt.Sprintf("playlistItems.list %s page %d", channel.ChannelID, page), func(ctx context.Context) error {
			call := c.service.PlaylistItems.List([]string{"snippet", "contentDetails"}).
				PlaylistId(playlistID).MaxResults(50).Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			var err error
			resp, err = call.Do()
			return err
		})
		if err != nil {
			return videos, fmt.Errorf("listing uploads for %s: %w", channel.ChannelID, err)
		}
		if len(resp.Items) == 0 {
			return videos, nil
		}

		allOlder := true
		for _, item := range resp.Items {
			if item.Snippet == nil || item.ContentDetails == nil {
				continue
			}
			publishedAt, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt)
			if err != nil {
				continue
			}
			if publishedAt.Before(since) {
				continue
			}
			allOlder = false
			ref := VideoRef{
				VideoID:     item.ContentDetails.VideoId,
				ChannelID:   channel.ChannelID,
				ChannelName: channel.Name,
				Title:       item.Snippet.Title,
				PublishedAt: publishedAt,
			}
			if item.Snippet.Thumbnails != nil && item.Snippet.Thumbnails.Default != nil {
				ref.ThumbnailURL = item.Snippet.Thumbnails.Default.Url
			}
			videos = append(videos, ref)
		}

		pageToken = resp.NextPageToken
		if allOlder || pageToken == "" {
			return videos, nil
		}
	}
}

// VideoDuration returns the video length, or 0 when the video cannot be
// found (deleted or private between observation and processing).
func (c *YouTubeClient) VideoDuration(ctx context.Context, videoID string) (time.Duration, error) {
	if err := c.ledger.Reserve("videos.list", costVideosList); err != nil {
		return 0, err
	}

	var resp *youtube.VideoListResponse
	err := c.call(ctx, "videos.list "+videoID, func(ctx context.Context) error {
		var err error
		resp, err = c.service.Videos.List([]string{"contentDetails"}).
			Id(videoID).Context(ctx).Do()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("fetching duration for %s: %w", videoID, err)
	}
	if len(resp.Items) == 0 || resp.Items[0].ContentDetails == nil {
		log.Printf("tubedigest: no video found for id %s", videoID)
		return 0, nil
	}
	return parseISODuration(resp.Items[0].ContentDetails.Duration), nil
}

// RemainingBudget exposes the ledger's unspent budget for the run report.
func (c *YouTubeClient) RemainingBudget() int {
	return c.ledger.Remaining()
}

func (c *YouTubeClient) uploadsPlaylistID(ctx context.Context, channelID string) (string, error) {
	if err := c.ledger.Reserve("channels.list", costChannelsList); err != nil {
		return "", err
	}

	var resp *youtube.ChannelListResponse
	err := c.call(ctx, "channels.list "+channelID, func(ctx context.Context) error {
		var err error
		resp, err = c.service.Channels.List([]string{"contentDetails"}).
			Id(channelID).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", fmt.Errorf("resolving uploads playlist for %s: %w", channelID, err)
	}
	if len(resp.Items) == 0 || resp.Items[0].ContentDetails == nil ||
		resp.Items[0].ContentDetails.RelatedPlaylists == nil {
		log.Printf("tubedigest: no channel found for id %s", channelID)
		return "", nil
	}
	return resp.Items[0].ContentDetails.RelatedPlaylists.Uploads, nil
}

// call runs one API request with rate limiting, a per-call timeout, and the
// shared retry policy. Auth and quota errors from the remote side are marked
// permanent so they propagate instead of being retried.
func (c *YouTubeClient) call(ctx context.Context, op string, fn func(context.Context) error) error {
	return c.retry.Do(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		err := fn(callCtx)
		if err == nil {
			return nil
		}
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			switch gerr.Code {
			case 401, 403:
				return Permanent(fmt.Errorf("%s: %w", op, err))
			}
		}
		return err
	})
}

var isoDurationRe = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// parseISODuration parses the API's ISO-8601 durations (e.g. "PT1H23M45S").
// Malformed input yields 0.
func parseISODuration(s string) time.Duration {
	m := isoDurationRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	hours, _ := strconv.Atoi(zeroIfEmpty(m[1]))
	minutes, _ := strconv.Atoi(zeroIfEmpty(m[2]))
	seconds, _ := strconv.Atoi(zeroIfEmpty(m[3]))
	return time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second
}

func zeroIfEmpty(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
