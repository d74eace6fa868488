package telegram

import (
	"context"
	"fmt"
	"path/filepath"

	"coursebot/internal/domain"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

// API is the part of *tele.Bot the transport needs
type API interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	SendAlbum(to tele.Recipient, a tele.Album, opts ...interface{}) ([]tele.Message, error)
}

// Transport delivers domain messages through the Telegram Bot API
type Transport struct {
	api      API
	mediaDir string
	logger   *zap.Logger
}

// NewTransport creates a transport. Relative media paths are resolved against mediaDir.
func NewTransport(api API, mediaDir string, logger *zap.Logger) *Transport {
	return &Transport{api: api, mediaDir: mediaDir, logger: logger}
}

// Send delivers one message and maps API failures onto the domain error taxonomy
func (t *Transport) Send(ctx context.Context, userID int64, msg domain.Outgoing) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	to := tele.ChatID(userID)
	opts := &tele.SendOptions{ParseMode: tele.ModeHTML}
	if markup := inlineMarkup(msg.Buttons); markup != nil {
		opts.ReplyMarkup = markup
	}

	var err error
	switch msg.Kind {
	case domain.MessageText:
		opts.DisableWebPagePreview = true
		_, err = t.api.Send(to, msg.Text, opts)
	case domain.MessagePhoto:
		_, err = t.api.Send(to, &tele.Photo{File: t.file(msg.Media), Caption: msg.Text}, opts)
	case domain.MessageVideo:
		_, err = t.api.Send(to, &tele.Video{File: t.file(msg.Media), Caption: msg.Text}, opts)
	case domain.MessageDocument:
		doc := &tele.Document{File: t.file(msg.Media), Caption: msg.Text}
		if msg.Media.Path != "" {
			doc.FileName = filepath.Base(msg.Media.Path)
		}
		_, err = t.api.Send(to, doc, opts)
	case domain.MessageVideoNote:
		_, err = t.api.Send(to, &tele.VideoNote{File: t.file(msg.Media)}, opts)
	case domain.MessageAlbum:
		var album tele.Album
		album, err = t.album(msg)
		if err == nil {
			_, err = t.api.SendAlbum(to, album, &tele.SendOptions{ParseMode: tele.ModeHTML})
		}
	default:
		return fmt.Errorf("%w: message kind %q", domain.ErrUnsupportedLesson, msg.Kind)
	}

	if err != nil {
		classified := Classify(err)
		t.logger.Debug("Telegram send failed",
			zap.Int64("user_id", userID),
			zap.String("kind", string(msg.Kind)),
			zap.String("class", domain.Classify(classified).String()),
			zap.Error(err),
		)
		return classified
	}
	return nil
}

func (t *Transport) album(msg domain.Outgoing) (tele.Album, error) {
	album := make(tele.Album, 0, len(msg.Album))
	for i, item := range msg.Album {
		caption := ""
		if i == 0 {
			caption = msg.Text
		}
		switch item.Kind {
		case domain.MediaPhoto:
			album = append(album, &tele.Photo{File: t.file(item), Caption: caption})
		case domain.MediaVideo:
			album = append(album, &tele.Video{File: t.file(item), Caption: caption})
		default:
			return nil, fmt.Errorf("%w: %s in media group", domain.ErrUnsupportedLesson, item.Kind)
		}
	}
	return album, nil
}

func (t *Transport) file(ref domain.MediaRef) tele.File {
	if ref.URL != "" {
		return tele.FromURL(ref.URL)
	}
	path := ref.Path
	if !filepath.IsAbs(path) && t.mediaDir != "" {
		path = filepath.Join(t.mediaDir, path)
	}
	return tele.FromDisk(path)
}

// inlineMarkup builds an inline keyboard. Callback data is sent as is so
// course defined tokens reach the callback handler unchanged.
func inlineMarkup(rows [][]domain.Button) *tele.ReplyMarkup {
	if len(rows) == 0 {
		return nil
	}
	keyboard := make([][]tele.InlineButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tele.InlineButton{Text: b.Text, URL: b.URL})
				continue
			}
			buttons = append(buttons, tele.InlineButton{Text: b.Text, Data: b.Data})
		}
		if len(buttons) > 0 {
			keyboard = append(keyboard, buttons)
		}
	}
	if len(keyboard) == 0 {
		return nil
	}
	return &tele.ReplyMarkup{InlineKeyboard: keyboard}
}
