package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"MarketPulse/internal/httpclient"
	"MarketPulse/internal/model"

	"github.com/dghubble/oauth1"
	"github.com/tidwall/gjson"
)

const (
	defaultUploadURL = "https://upload.twitter.com/1.1/media/upload.json"
	defaultTweetURL  = "https://api.twitter.com/2/tweets"
)

// TwitterPublisher posts to X: media goes through the v1.1 upload endpoint,
// the post itself through the v2 tweets endpoint, both OAuth 1.0a signed.
type TwitterPublisher struct {
	UploadURL   string
	TweetURL    string
	Credentials Credentials
	Client      *http.Client
}

// NewTwitterPublisher creates a publisher with optional proxy support.
func NewTwitterPublisher(creds Credentials, proxyURL string, timeout time.Duration) *TwitterPublisher {
	return &TwitterPublisher{
		UploadURL:   defaultUploadURL,
		TweetURL:    defaultTweetURL,
		Credentials: creds,
		Client:      httpclient.New(proxyURL, timeout),
	}
}

func (t *TwitterPublisher) Name() string { return "twitter" }

// Publish uploads the image, if any, then creates the post. Credentials are
// checked before any request is made.
func (t *TwitterPublisher) Publish(ctx context.Context, req model.PublishRequest) (string, error) {
	if err := t.Credentials.Validate(); err != nil {
		return "", &PublishError{Publisher: t.Name(), Stage: "credentials", Err: err}
	}

	var mediaIDs []string
	if req.HasImage() {
		id, err := t.UploadMedia(ctx, req.Image)
		if err != nil {
			return "", &PublishError{Publisher: t.Name(), Stage: "upload", Err: err}
		}
		mediaIDs = append(mediaIDs, id)
	}

	postID, err := t.CreatePost(ctx, req.Text, mediaIDs)
	if err != nil {
		return "", &PublishError{Publisher: t.Name(), Stage: "post", Err: err}
	}
	return postID, nil
}

// UploadMedia uploads a PNG and returns its media id.
func (t *TwitterPublisher) UploadMedia(ctx context.Context, image []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("media", "chart.png")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(image); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.UploadURL, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	respBody, err := t.do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}
	id := gjson.GetBytes(respBody, "media_id_string").String()
	if id == "" {
		return "", fmt.Errorf("upload media: no media_id_string in response: %s", string(respBody))
	}
	return id, nil
}

type tweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type tweetPayload struct {
	Text  string      `json:"text"`
	Media *tweetMedia `json:"media,omitempty"`
}

// CreatePost publishes text with the given media ids and returns the post id.
func (t *TwitterPublisher) CreatePost(ctx context.Context, text string, mediaIDs []string) (string, error) {
	payload := tweetPayload{Text: text}
	if len(mediaIDs) > 0 {
		payload.Media = &tweetMedia{MediaIDs: mediaIDs}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.TweetURL, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	respBody, err := t.do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("create post: %w", err)
	}
	id := gjson.GetBytes(respBody, "data.id").String()
	if id == "" {
		return "", fmt.Errorf("create post: no id in response: %s", string(respBody))
	}
	return id, nil
}

// do signs and sends req, returning the body of a 2xx response.
func (t *TwitterPublisher) do(ctx context.Context, req *http.Request) ([]byte, error) {
	cfg := oauth1.NewConfig(t.Credentials.APIKey, t.Credentials.APIKeySecret)
	token := oauth1.NewToken(t.Credentials.AccessToken, t.Credentials.AccessTokenSecret)
	client := cfg.Client(context.WithValue(ctx, oauth1.HTTPClient, t.Client), token)
	client.Timeout = t.Client.Timeout

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
