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

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const defaultTelegramURL = "https://api.telegram.org"

// TelegramNotifier sends messages via the Telegram Bot API.
type TelegramNotifier struct {
	BaseURL  string
	BotToken string
	ChatID   string
	Client   *http.Client
	Log      *zap.Logger
}

// NewTelegramNotifier creates a notifier with optional proxy support.
func NewTelegramNotifier(botToken, chatID, proxyURL string, timeout time.Duration, log *zap.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		BaseURL:  defaultTelegramURL,
		BotToken: botToken,
		ChatID:   chatID,
		Client:   httpclient.New(proxyURL, timeout),
		Log:      log,
	}
}

func (t *TelegramNotifier) Name() string { return "telegram" }

func (t *TelegramNotifier) method(name string) string {
	return fmt.Sprintf("%s/bot%s/%s", t.BaseURL, t.BotToken, name)
}

// Publish sends the text, as a photo caption when an image is attached.
// The returned post id is the Telegram message id.
func (t *TelegramNotifier) Publish(ctx context.Context, req model.PublishRequest) (string, error) {
	var (
		id  string
		err error
	)
	if req.HasImage() {
		id, err = t.sendPhoto(ctx, req.Text, req.Image)
	} else {
		id, err = t.send(ctx, req.Text)
	}
	if err != nil {
		return "", &PublishError{Publisher: t.Name(), Stage: "send", Err: err}
	}
	return id, nil
}

// Send sends a plain text message to the configured chat.
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	_, err := t.send(ctx, text)
	return err
}

func (t *TelegramNotifier) send(ctx context.Context, text string) (string, error) {
	payload := map[string]string{
		"chat_id": t.ChatID,
		"text":    text,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.method("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	return t.do(req)
}

func (t *TelegramNotifier) sendPhoto(ctx context.Context, caption string, image []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("chat_id", t.ChatID); err != nil {
		return "", err
	}
	if err := mw.WriteField("caption", caption); err != nil {
		return "", err
	}
	part, err := mw.CreateFormFile("photo", "chart.png")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(image); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.method("sendPhoto"), &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return t.do(req)
}

func (t *TelegramNotifier) do(req *http.Request) (string, error) {
	resp, err := t.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !gjson.GetBytes(respBody, "ok").Bool() {
		return "", fmt.Errorf("telegram API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}
	return gjson.GetBytes(respBody, "result.message_id").String(), nil
}
