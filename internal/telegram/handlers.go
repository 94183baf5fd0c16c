package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"fun-with-ai/internal/auth"
	"fun-with-ai/internal/controller"
	"fun-with-ai/internal/history"
)

const (
	engineCallbackPrefix  = "engine:"
	approveCallbackPrefix = "approve:"
	denyCallbackPrefix    = "deny:"

	historyPreviewSize = 5

	helpText = "Send any text to complete it.\n" +
		"/engines - choose an engine\n" +
		"/history - show recent interactions\n" +
		"/clear - forget the history"
	waitText         = "Still working on your previous prompt, please wait."
	accessDeniedText = "Access request sent to the admin. Please wait for approval."
)

func (b *Bot) handleIncomingMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	if !b.authSvc.IsAllowed(msg.From.ID) {
		log.Printf("Unauthorized access attempt by user ID %d (%s)", msg.From.ID, msg.From.UserName)
		b.sendMessage(msg.Chat.ID, accessDeniedText)
		b.requestAccess(msg.From.ID, msg.From.UserName)
		return
	}
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	ctrl := b.controllerFor(ctx, msg.Chat.ID)
	if ctrl.Loading() {
		b.sendMessage(msg.Chat.ID, waitText)
		return
	}

	if _, err := b.s.Request(tgbotapi.NewChatAction(msg.Chat.ID, tgbotapi.ChatTyping)); err != nil {
		log.Printf("failed to send chat action: %v", err)
	}
	it, err := ctrl.SubmitPrompt(ctx, text)
	if err != nil {
		// the controller already told the chat
		log.Printf("chat %d: submit: %v", msg.Chat.ID, err)
		if controller.Classify(err) != controller.KindStorage {
			return
		}
	}
	b.sendMessage(msg.Chat.ID, formatInteraction(it))
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start", "help":
		b.sendMessage(chatID, helpText)
	case "engines":
		b.sendEngineKeyboard(ctx, chatID)
	case "history":
		b.sendMessage(chatID, formatHistory(b.controllerFor(ctx, chatID).State().History))
	case "clear":
		if err := b.controllerFor(ctx, chatID).Dispatch(ctx, controller.ClearHistory{}); err != nil {
			log.Printf("chat %d: clear: %v", chatID, err)
			return
		}
		b.sendMessage(chatID, "History cleared.")
	case "allow", "deny":
		if msg.From.ID != b.adminUserID {
			b.sendMessage(chatID, "Only the admin can do that.")
			return
		}
		id, err := strconv.ParseInt(strings.TrimSpace(msg.CommandArguments()), 10, 64)
		if err != nil {
			b.sendMessage(chatID, fmt.Sprintf("Usage: /%s <user id>", msg.Command()))
			return
		}
		b.changeAccess(chatID, id, b.takePending(id).Username, msg.Command() == "allow")
	case "users":
		if msg.From.ID != b.adminUserID {
			b.sendMessage(chatID, "Only the admin can do that.")
			return
		}
		b.sendMessage(chatID, formatUsers(b.authSvc.List()))
	case "pending":
		if msg.From.ID != b.adminUserID {
			b.sendMessage(chatID, "Only the admin can do that.")
			return
		}
		if b.pending == nil {
			b.sendMessage(chatID, "No pending requests.")
			return
		}
		users, err := b.pending.List()
		if err != nil {
			log.Printf("failed to list pending requests: %v", err)
			b.sendMessage(chatID, controller.GenericNotice)
			return
		}
		if len(users) == 0 {
			b.sendMessage(chatID, "No pending requests.")
			return
		}
		b.sendMessage(chatID, formatUsers(users))
	default:
		b.sendMessage(chatID, "Unknown command.\n"+helpText)
	}
}

func (b *Bot) sendEngineKeyboard(ctx context.Context, chatID int64) {
	st := b.controllerFor(ctx, chatID).State()
	if len(st.Catalog) == 0 {
		b.sendMessage(chatID, "No engines available.")
		return
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(st.Catalog))
	for _, id := range st.Catalog {
		label := id
		if id == st.Engine {
			label = "✓ " + id
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, engineCallbackPrefix+id),
		))
	}
	msg := tgbotapi.NewMessage(chatID, "Current engine: "+st.Engine)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := b.s.Send(msg); err != nil {
		log.Printf("failed to send engine keyboard: %v", err)
	}
}

func (b *Bot) requestAccess(userID int64, username string) {
	if b.pending != nil {
		added, err := b.pending.Add(auth.User{ID: userID, Username: username})
		if err != nil {
			log.Printf("failed to queue access request for %d: %v", userID, err)
		}
		if err == nil && !added {
			return
		}
	}
	b.notifyAdminRequest(userID, username)
}

func (b *Bot) notifyAdminRequest(userID int64, username string) {
	if b.adminUserID == 0 {
		return
	}
	text := fmt.Sprintf("User %s (ID: %d) wants to use the bot.", username, userID)
	msg := tgbotapi.NewMessage(b.adminUserID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Approve", fmt.Sprintf("%s%d", approveCallbackPrefix, userID)),
			tgbotapi.NewInlineKeyboardButtonData("Deny", fmt.Sprintf("%s%d", denyCallbackPrefix, userID)),
		),
	)
	if _, err := b.s.Send(msg); err != nil {
		log.Printf("failed to notify admin: %v", err)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	answer := ""
	switch {
	case strings.HasPrefix(cb.Data, engineCallbackPrefix):
		if !b.authSvc.IsAllowed(cb.From.ID) {
			answer = "Access denied"
			break
		}
		id := strings.TrimPrefix(cb.Data, engineCallbackPrefix)
		err := b.controllerFor(ctx, chatID).Dispatch(ctx, controller.SelectEngine{EngineID: id})
		switch {
		case errors.Is(err, controller.ErrUnknownEngine):
			answer = "Unknown engine"
		case err != nil:
			log.Printf("chat %d: select engine: %v", chatID, err)
			answer = controller.GenericNotice
		default:
			answer = "Engine: " + id
			b.sendMessage(chatID, "Engine set to "+id)
		}
	case strings.HasPrefix(cb.Data, approveCallbackPrefix), strings.HasPrefix(cb.Data, denyCallbackPrefix):
		if cb.From.ID != b.adminUserID {
			answer = "Only the admin can do that"
			break
		}
		allow := strings.HasPrefix(cb.Data, approveCallbackPrefix)
		rest := strings.TrimPrefix(strings.TrimPrefix(cb.Data, approveCallbackPrefix), denyCallbackPrefix)
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			answer = "Bad request"
			break
		}
		b.changeAccess(chatID, id, b.takePending(id).Username, allow)
		answer = "Done"
	}
	if _, err := b.s.Request(tgbotapi.NewCallback(cb.ID, answer)); err != nil {
		log.Printf("failed to answer callback: %v", err)
	}
}

// takePending drops the stored request for userID, if any.
func (b *Bot) takePending(userID int64) auth.User {
	if b.pending == nil {
		return auth.User{ID: userID}
	}
	u, _, err := b.pending.Take(userID)
	if err != nil {
		log.Printf("failed to drop access request for %d: %v", userID, err)
	}
	return u
}

func (b *Bot) changeAccess(adminChatID, userID int64, username string, allow bool) {
	var err error
	if allow {
		err = b.authSvc.Upsert(auth.User{ID: userID, Username: username})
	} else {
		err = b.authSvc.Remove(userID)
	}
	if err != nil {
		log.Printf("failed to update allowlist for %d: %v", userID, err)
		b.sendMessage(adminChatID, controller.GenericNotice)
		return
	}
	if allow {
		b.sendMessage(adminChatID, fmt.Sprintf("User %d allowed.", userID))
		b.sendMessage(userID, "Access granted. "+helpText)
		return
	}
	b.sendMessage(adminChatID, fmt.Sprintf("User %d removed.", userID))
}

func formatInteraction(it history.Interaction) string {
	return fmt.Sprintf("%s\n\n[engine=%s]", it.Response, it.Engine)
}

func formatHistory(h history.History) string {
	if len(h) == 0 {
		return "History is empty."
	}
	var sb strings.Builder
	for i, it := range h {
		if i == historyPreviewSize {
			fmt.Fprintf(&sb, "...and %d more", len(h)-i)
			break
		}
		fmt.Fprintf(&sb, "Prompt: %s\nResponse: %s\nEngine: %s\n\n", it.Prompt, it.Response, it.Engine)
	}
	return strings.TrimSpace(sb.String())
}

func formatUsers(users []auth.User) string {
	if len(users) == 0 {
		return "Allowlist is empty."
	}
	var sb strings.Builder
	for _, u := range users {
		if u.Username != "" {
			fmt.Fprintf(&sb, "%d (%s)\n", u.ID, u.Username)
			continue
		}
		fmt.Fprintf(&sb, "%d\n", u.ID)
	}
	return strings.TrimSpace(sb.String())
}
