// Package telegram implements the provider adapter that stores files as
// documents in a Telegram channel.
//
// Telegram has no folder concept: "folders" are forum topics, a distinct
// native container inside the configured chat. Moving content between
// containers is not supported by the platform and fails explicitly with an
// unsupported-operation error rather than silently doing nothing. Listing
// always returns an empty set because the Bot API cannot enumerate chat
// history.
//
// Telegram issues durable ids only after content lands, so RequestUpload
// hands back an opaque pending token ("pending:<parent>:<name>:<nanos>");
// UploadFile accepts the token and resolves it to the permanent message
// id. Callers must record the id returned by UploadFile, never the token.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/omnidrive/omnidrive/pkg/provider"
)

const backendType = "telegram"

const pendingPrefix = "pending:"

// Adapter stores files in one Telegram chat via a bot account.
type Adapter struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	http   *http.Client
}

// Config holds Telegram connection settings.
type Config struct {
	// BotToken authenticates the bot account.
	BotToken string

	// ChatID is the channel or supergroup the bot stores files in. Forum
	// topics (folders) live inside this chat.
	ChatID int64
}

// New creates a Telegram adapter. Constructing the client performs a getMe
// round trip, so this also validates the token.
func New(cfg Config) (*Adapter, error) {
	if cfg.BotToken == "" {
		return nil, provider.NewError(backendType, "initialize", "", provider.CodeConfig, "bot_token is required", nil)
	}
	if cfg.ChatID == 0 {
		return nil, provider.NewError(backendType, "initialize", "", provider.CodeConfig, "chat_id is required", nil)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, provider.NewError(backendType, "initialize", "", provider.CodeConnection, "bot authentication failed", err)
	}

	return &Adapter{
		bot:    bot,
		chatID: cfg.ChatID,
		http:   &http.Client{Timeout: provider.ConnectTimeout},
	}, nil
}

// messageID encodes a durable remote id for a stored document.
func messageID(msgID int, fileID string) string {
	return fmt.Sprintf("msg:%d:%s", msgID, fileID)
}

// parseMessageID splits a durable remote id into message id and file id.
func parseMessageID(remoteID string) (int, string, error) {
	parts := strings.SplitN(remoteID, ":", 3)
	if len(parts) != 3 || parts[0] != "msg" {
		return 0, "", fmt.Errorf("malformed remote id %q", remoteID)
	}
	var msgID int
	if _, err := fmt.Sscanf(parts[1], "%d", &msgID); err != nil {
		return 0, "", fmt.Errorf("malformed remote id %q", remoteID)
	}
	return msgID, parts[2], nil
}

// topicID encodes a folder remote id for a forum topic.
func topicID(threadID int64) string {
	return fmt.Sprintf("topic:%d", threadID)
}

// parseTopicID extracts the forum thread id from a folder remote id.
// An empty id addresses the chat's general container.
func parseTopicID(remoteID string) (int64, bool) {
	if remoteID == "" {
		return 0, true
	}
	var threadID int64
	if _, err := fmt.Sscanf(remoteID, "topic:%d", &threadID); err != nil {
		return 0, false
	}
	return threadID, true
}

// parsePendingToken decodes the container and name out of a pending token.
func parsePendingToken(token string) (parentID, name string, ok bool) {
	if !strings.HasPrefix(token, pendingPrefix) {
		return "", "", false
	}
	parts := strings.Split(strings.TrimPrefix(token, pendingPrefix), "|")
	if len(parts) != 3 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := a.bot.GetMe(); err != nil {
		return provider.NewError(backendType, "test_connection", "", provider.CodeConnection, "getMe failed", err)
	}
	return nil
}

func (a *Adapter) GetQuota(ctx context.Context) (provider.Quota, error) {
	if err := ctx.Err(); err != nil {
		return provider.Quota{}, err
	}
	// Telegram storage is unmetered from the bot's perspective.
	return provider.UnknownQuota, nil
}

// RequestUpload returns a pending token, not a durable id: Telegram
// assigns message ids only after the document is sent.
func (a *Adapter) RequestUpload(ctx context.Context, name, parentID string) (*provider.UploadTicket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	token := fmt.Sprintf("%s%s|%s|%d", pendingPrefix, parentID, name, time.Now().UnixNano())
	return &provider.UploadTicket{RemoteID: token, Provisional: true}, nil
}

// UploadFile sends the document and resolves the pending token to the
// permanent message id.
func (a *Adapter) UploadFile(ctx context.Context, remoteID string, body io.Reader, size int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	parentID, name, ok := parsePendingToken(remoteID)
	if !ok {
		return "", provider.NewError(backendType, "upload_file", remoteID, provider.CodeConfig, "expected a pending upload token", nil)
	}

	threadID, ok := parseTopicID(parentID)
	if !ok {
		return "", provider.NewError(backendType, "upload_file", remoteID, provider.CodeConfig, "malformed parent container id", nil)
	}

	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", a.chatID)
	params.AddNonZero64("message_thread_id", threadID)
	params["caption"] = name

	resp, err := a.bot.UploadFiles("sendDocument", params, []tgbotapi.RequestFile{{
		Name: "document",
		Data: tgbotapi.FileReader{Name: name, Reader: body},
	}})
	if err != nil {
		return "", provider.NewError(backendType, "upload_file", remoteID, provider.CodeConnection, "sendDocument failed", err)
	}

	var msg struct {
		MessageID int `json:"message_id"`
		Document  struct {
			FileID   string `json:"file_id"`
			FileSize int64  `json:"file_size"`
		} `json:"document"`
	}
	if err := json.Unmarshal(resp.Result, &msg); err != nil {
		return "", provider.NewError(backendType, "upload_file", remoteID, provider.CodeIO, "unexpected sendDocument response", err)
	}
	if msg.Document.FileID == "" {
		return "", provider.NewError(backendType, "upload_file", remoteID, provider.CodeIO, "response carries no document", nil)
	}

	return messageID(msg.MessageID, msg.Document.FileID), nil
}

func (a *Adapter) RequestDownload(ctx context.Context, remoteID string) (*provider.DownloadTicket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// File URLs embed the bot token; never hand them to clients.
	return nil, nil
}

func (a *Adapter) DownloadFile(ctx context.Context, remoteID string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, fileID, err := parseMessageID(remoteID)
	if err != nil {
		return nil, provider.NewError(backendType, "download_file", remoteID, provider.CodeConfig, "malformed remote id", err)
	}

	file, err := a.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, provider.NewError(backendType, "download_file", remoteID, provider.CodeNotFound, "getFile failed", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.Link(a.bot.Token), nil)
	if err != nil {
		return nil, provider.NewError(backendType, "download_file", remoteID, provider.CodeIO, "", err)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, provider.NewError(backendType, "download_file", remoteID, provider.CodeConnection, "file download failed", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, provider.NewError(backendType, "download_file", remoteID, provider.CodeIO,
			fmt.Sprintf("file download returned %d", resp.StatusCode), nil)
	}
	return resp.Body, nil
}

// CreateFolder creates a forum topic: the backend-native container closest
// to a folder.
func (a *Adapter) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if parentID != "" {
		// Topics cannot nest.
		return "", provider.NewError(backendType, "create_folder", parentID, provider.CodeUnsupported,
			"nested folders are not supported", nil)
	}

	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", a.chatID)
	params["name"] = name

	resp, err := a.bot.MakeRequest("createForumTopic", params)
	if err != nil {
		return "", provider.NewError(backendType, "create_folder", "", provider.CodeIO, "createForumTopic failed", err)
	}

	var topic struct {
		MessageThreadID int64 `json:"message_thread_id"`
	}
	if err := json.Unmarshal(resp.Result, &topic); err != nil || topic.MessageThreadID == 0 {
		return "", provider.NewError(backendType, "create_folder", "", provider.CodeIO, "unexpected createForumTopic response", err)
	}

	return topicID(topic.MessageThreadID), nil
}

func (a *Adapter) Delete(ctx context.Context, remoteID string, isFolder bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", a.chatID)

	if isFolder {
		threadID, ok := parseTopicID(remoteID)
		if !ok || threadID == 0 {
			return provider.NewError(backendType, "delete", remoteID, provider.CodeConfig, "malformed folder id", nil)
		}
		params.AddNonZero64("message_thread_id", threadID)
		if _, err := a.bot.MakeRequest("deleteForumTopic", params); err != nil {
			return provider.NewError(backendType, "delete", remoteID, provider.CodeIO, "deleteForumTopic failed", err)
		}
		return nil
	}

	msgID, _, err := parseMessageID(remoteID)
	if err != nil {
		return provider.NewError(backendType, "delete", remoteID, provider.CodeConfig, "malformed remote id", err)
	}
	params.AddNonZero("message_id", msgID)
	if _, err := a.bot.MakeRequest("deleteMessage", params); err != nil {
		return provider.NewError(backendType, "delete", remoteID, provider.CodeIO, "deleteMessage failed", err)
	}
	return nil
}

// Move always fails: Telegram cannot relocate a message between topics.
// Failing loudly beats pretending the file moved.
func (a *Adapter) Move(ctx context.Context, remoteID, newParentID, newName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return provider.NewError(backendType, "move", remoteID, provider.CodeUnsupported,
		"telegram cannot move content between containers", nil)
}

func (a *Adapter) Copy(ctx context.Context, remoteID, targetParentID, newName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "", provider.NewError(backendType, "copy", remoteID, provider.CodeUnsupported,
		"telegram cannot copy stored content server-side", nil)
}

// List returns a synthetic empty listing: the Bot API cannot enumerate
// chat history, so the virtual namespace is the only index of this
// backend's content.
func (a *Adapter) List(ctx context.Context, folderID, pageToken string, limit int) (*provider.Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &provider.Listing{}, nil
}

func (a *Adapter) GetFileMetadata(ctx context.Context, remoteID string) (*provider.RemoteFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, fileID, err := parseMessageID(remoteID)
	if err != nil {
		return nil, provider.NewError(backendType, "get_file_metadata", remoteID, provider.CodeConfig, "malformed remote id", err)
	}

	file, err := a.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, provider.NewError(backendType, "get_file_metadata", remoteID, provider.CodeNotFound, "getFile failed", err)
	}

	return &provider.RemoteFile{
		RemoteID: remoteID,
		Name:     file.FilePath,
		Size:     int64(file.FileSize),
	}, nil
}

func (a *Adapter) GetFolderMetadata(ctx context.Context, remoteID string) (*provider.RemoteFolder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	threadID, ok := parseTopicID(remoteID)
	if !ok {
		return nil, provider.NewError(backendType, "get_folder_metadata", remoteID, provider.CodeConfig, "malformed folder id", nil)
	}

	// The Bot API has no topic lookup; echo back what the id encodes.
	return &provider.RemoteFolder{
		RemoteID: remoteID,
		Name:     fmt.Sprintf("topic-%d", threadID),
	}, nil
}

func (a *Adapter) GetAccountInfo(ctx context.Context) (*provider.AccountInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	me, err := a.bot.GetMe()
	if err != nil {
		return nil, provider.NewError(backendType, "get_account_info", "", provider.CodeConnection, "getMe failed", err)
	}

	return &provider.AccountInfo{
		ID:          fmt.Sprintf("%d", me.ID),
		DisplayName: "@" + me.UserName,
	}, nil
}

func (a *Adapter) Cleanup(ctx context.Context) error {
	a.http.CloseIdleConnections()
	return nil
}
