package handler

import (
	"context"
	"strconv"
	"strings"
	"unicode"

	"coursebot/internal/domain"
	"coursebot/internal/service"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

type callbackKind int

const (
	callbackUnknown callbackKind = iota
	callbackContinue
	callbackQuizAnswer
	callbackQuizRetry
	callbackAssessYes
	callbackAssessNo
	callbackAssessAdvice
	callbackAssessContinue
)

var callbackNames = map[callbackKind]string{
	callbackUnknown:        "unknown",
	callbackContinue:       "continue",
	callbackQuizAnswer:     "quiz_answer",
	callbackQuizRetry:      "quiz_retry",
	callbackAssessYes:      "assessment_yes",
	callbackAssessNo:       "assessment_no",
	callbackAssessAdvice:   "assessment_advice",
	callbackAssessContinue: "assessment_continue",
}

func (k callbackKind) String() string {
	return callbackNames[k]
}

// callbackAction is a parsed inline button press
type callbackAction struct {
	kind   callbackKind
	option int
}

// oneShot reports whether the pressed keyboard must not be used again
func (a callbackAction) oneShot() bool {
	switch a.kind {
	case callbackQuizAnswer, callbackQuizRetry, callbackAssessYes, callbackAssessNo, callbackAssessContinue:
		return true
	}
	return false
}

// cleanCallbackData removes all non-printable characters from callback data
func cleanCallbackData(data string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) {
			return r
		}
		return -1
	}, strings.TrimSpace(data))
}

// parseCallback maps cleaned callback data to an action
func parseCallback(data string) callbackAction {
	switch data {
	case service.CallbackQuizRetry:
		return callbackAction{kind: callbackQuizRetry}
	case service.CallbackAssessYes:
		return callbackAction{kind: callbackAssessYes}
	case service.CallbackAssessNo:
		return callbackAction{kind: callbackAssessNo}
	case service.CallbackAssessAdvice:
		return callbackAction{kind: callbackAssessAdvice}
	case service.CallbackAssessContinue:
		return callbackAction{kind: callbackAssessContinue}
	}

	if raw, ok := strings.CutPrefix(data, service.CallbackQuizAnswerPrefix); ok {
		option, err := strconv.Atoi(raw)
		if err != nil || option < 0 {
			return callbackAction{kind: callbackUnknown}
		}
		return callbackAction{kind: callbackQuizAnswer, option: option}
	}

	if data != "" && (domain.Button{Data: data}).IsContinue() {
		return callbackAction{kind: callbackContinue}
	}
	return callbackAction{kind: callbackUnknown}
}

// handleCallback handles ALL callback queries
func (h *Handler) handleCallback(c tele.Context) error {
	callback := c.Callback()
	if callback == nil || c.Sender() == nil {
		h.logger.Warn("handleCallback: callback is nil")
		return nil
	}
	userID := c.Sender().ID

	// Clean data from all non-printable characters
	data := cleanCallbackData(callback.Data)
	action := parseCallback(data)
	h.logger.Debug("Processing callback",
		zap.String("data", data),
		zap.String("action", action.kind.String()),
		zap.String("id", callback.ID),
		zap.Int64("user_id", userID),
	)

	// Always acknowledge so the client stops the spinner
	if err := c.Respond(); err != nil {
		h.logger.Warn("Failed to acknowledge callback", zap.Error(err))
	}

	task := h.callbackTask(userID, action)
	if task == nil {
		h.logger.Warn("Unhandled callback", zap.String("data", data), zap.Int64("user_id", userID))
		return nil
	}

	if action.oneShot() {
		h.dropKeyboard(c, userID)
	}
	h.enqueue(userID, action.kind.String(), task)
	return nil
}

func (h *Handler) callbackTask(userID int64, action callbackAction) func(ctx context.Context) error {
	switch action.kind {
	case callbackContinue:
		return func(ctx context.Context) error { return h.services.Progress.ContinuePressed(ctx, userID) }
	case callbackQuizAnswer:
		return func(ctx context.Context) error { return h.services.Quiz.Answer(ctx, userID, action.option) }
	case callbackQuizRetry:
		return func(ctx context.Context) error { return h.services.Quiz.Retry(ctx, userID) }
	case callbackAssessYes:
		return func(ctx context.Context) error { return h.services.Assessment.Answer(ctx, userID, true) }
	case callbackAssessNo:
		return func(ctx context.Context) error { return h.services.Assessment.Answer(ctx, userID, false) }
	case callbackAssessAdvice:
		return func(ctx context.Context) error { return h.services.Assessment.ShowAdvice(ctx, userID) }
	case callbackAssessContinue:
		return func(ctx context.Context) error { return h.services.Assessment.Continue(ctx, userID) }
	}
	return nil
}

// dropKeyboard removes the inline keyboard of the pressed message so a
// question cannot be answered twice
func (h *Handler) dropKeyboard(c tele.Context, userID int64) {
	msg := c.Message()
	if msg == nil {
		return
	}

	_, err := c.Bot().EditReplyMarkup(msg, nil)
	if err == nil {
		return
	}

	// Already edited by an earlier press
	if strings.Contains(err.Error(), "message is not modified") {
		h.logger.Debug("Keyboard already removed", zap.Int64("user_id", userID))
		return
	}
	h.logger.Warn("Failed to remove keyboard", zap.Int64("user_id", userID), zap.Error(err))
}
