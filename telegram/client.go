// Package telegram implements the subset of the Telegram Bot API this bot
// needs: long-polling updates, text messages, media uploads and message
// deletion.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Client struct {
	http    *http.Client
	baseURL string
	token   string
}

func New(httpClient *http.Client, baseURL, token string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

type User struct {
	ID       int64  `json:"id"`
	IsBot    bool   `json:"is_bot,omitempty"`
	Username string `json:"username,omitempty"`
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"` // private|group|supergroup|channel
}

type Message struct {
	MessageID int64  `json:"message_id"`
	Chat      *Chat  `json:"chat,omitempty"`
	From      *User  `json:"from,omitempty"`
	Text      string `json:"text,omitempty"`
}

type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
	// Users sometimes add the link by editing an existing message.
	EditedMessage *Message `json:"edited_message,omitempty"`
}

// Msg returns whichever message variant the update carries.
func (u *Update) Msg() *Message {
	if u.Message != nil {
		return u.Message
	}
	return u.EditedMessage
}

// APIError is a typed delivery failure from the Bot API.
type APIError struct {
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api %d: %s", e.Code, e.Description)
}

// TooLarge reports whether the failure stems purely from payload size.
func (e *APIError) TooLarge() bool {
	if e.Code == http.StatusRequestEntityTooLarge {
		return true
	}
	return strings.Contains(strings.ToLower(e.Description), "too large")
}

// PhotoRejected reports photo-processing failures that warrant retrying
// the same payload as a generic document.
func (e *APIError) PhotoRejected() bool {
	d := strings.ToLower(e.Description)
	return strings.Contains(d, "image_process_failed") ||
		strings.Contains(d, "photo_invalid_dimensions") ||
		strings.Contains(d, "wrong type of the web page content")
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

func (c *Client) call(ctx context.Context, method string, body io.Reader, contentType string, out any) error {
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	httpMethod := http.MethodPost
	if body == nil {
		httpMethod = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, httpMethod, url, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	var env apiResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &APIError{Code: resp.StatusCode, Description: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	if !env.OK {
		code := env.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return &APIError{Code: code, Description: env.Description}
	}
	if out != nil && len(env.Result) > 0 {
		return json.Unmarshal(env.Result, out)
	}
	return nil
}

func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := c.call(ctx, "getMe", nil, "", &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// GetUpdates long-polls for updates and returns the next offset to use.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, int64, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}
	method := fmt.Sprintf("getUpdates?timeout=%d", secs)
	if offset > 0 {
		method += fmt.Sprintf("&offset=%d", offset)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()

	var updates []Update
	if err := c.call(reqCtx, method, nil, "", &updates); err != nil {
		return nil, offset, err
	}

	next := offset
	for _, u := range updates {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return updates, next, nil
}

type sendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		text = "(empty)"
	}
	b, _ := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text, DisableWebPagePreview: true})
	var msg Message
	if err := c.call(ctx, "sendMessage", bytes.NewReader(b), "application/json", &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

type editMessageTextRequest struct {
	ChatID    int64  `json:"chat_id"`
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
}

func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	b, _ := json.Marshal(editMessageTextRequest{ChatID: chatID, MessageID: messageID, Text: text})
	return c.call(ctx, "editMessageText", bytes.NewReader(b), "application/json", nil)
}

type deleteMessageRequest struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	b, _ := json.Marshal(deleteMessageRequest{ChatID: chatID, MessageID: messageID})
	return c.call(ctx, "deleteMessage", bytes.NewReader(b), "application/json", nil)
}

// SendPhoto uploads a local file as a photo and returns the delivered message.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, filePath, caption string) (*Message, error) {
	return c.sendFile(ctx, "sendPhoto", "photo", chatID, filePath, filepath.Base(filePath), caption)
}

func (c *Client) SendVideo(ctx context.Context, chatID int64, filePath, caption string) (*Message, error) {
	return c.sendFile(ctx, "sendVideo", "video", chatID, filePath, filepath.Base(filePath), caption)
}

// SendDocument uploads a local file as a generic document; fileName is the
// display name shown in the chat.
func (c *Client) SendDocument(ctx context.Context, chatID int64, filePath, fileName, caption string) (*Message, error) {
	if fileName == "" {
		fileName = filepath.Base(filePath)
	}
	return c.sendFile(ctx, "sendDocument", "document", chatID, filePath, fileName, caption)
}

// sendFile streams a multipart upload so large media never has to be
// buffered in memory.
func (c *Client) sendFile(ctx context.Context, method, field string, chatID int64, filePath, fileName, caption string) (*Message, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := func() error {
			if err := mw.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
				return err
			}
			if caption != "" {
				if err := mw.WriteField("caption", caption); err != nil {
					return err
				}
			}
			part, err := mw.CreateFormFile(field, fileName)
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, f); err != nil {
				return err
			}
			return mw.Close()
		}()
		pw.CloseWithError(err)
	}()

	var msg Message
	if err := c.call(ctx, method, pr, mw.FormDataContentType(), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
