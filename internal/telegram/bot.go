package telegram

import (
	"context"
	"fmt"
	"log"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"fun-with-ai/internal/auth"
	"fun-with-ai/internal/controller"
	"fun-with-ai/internal/history"
	"fun-with-ai/internal/pending"
)

// Controller is what the bot needs from *controller.Controller.
type Controller interface {
	Initialize(ctx context.Context) error
	SubmitPrompt(ctx context.Context, text string) (history.Interaction, error)
	Dispatch(ctx context.Context, cmd controller.Command) error
	State() controller.State
	Loading() bool
}

// ControllerFactory builds the controller owning the history stored under key.
type ControllerFactory func(key string, notifier controller.Notifier) Controller

type Bot struct {
	api         *tgbotapi.BotAPI
	s           sender
	authSvc     *auth.Service
	pending     *pending.Queue
	adminUserID int64
	historyKey  string
	factory     ControllerFactory

	mu    sync.Mutex
	chats map[int64]*chat
}

// chat initializes its controller exactly once; later callers wait for it.
type chat struct {
	ctrl Controller
	once sync.Once
}

func New(botToken string, authSvc *auth.Service, pendingQ *pending.Queue, adminUserID int64, historyKey string, factory ControllerFactory) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, err
	}
	b := newBot(botAPISender{api: api}, authSvc, pendingQ, adminUserID, historyKey, factory)
	b.api = api
	return b, nil
}

func newBot(s sender, authSvc *auth.Service, pendingQ *pending.Queue, adminUserID int64, historyKey string, factory ControllerFactory) *Bot {
	return &Bot{
		s:           s,
		authSvc:     authSvc,
		pending:     pendingQ,
		adminUserID: adminUserID,
		historyKey:  historyKey,
		factory:     factory,
		chats:       make(map[int64]*chat),
	}
}

// Start polls for updates until ctx is cancelled. Updates are handled
// concurrently so one slow completion does not hold up other chats.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	log.Printf("Authorized on account %s", b.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message != nil {
				go b.handleIncomingMessage(ctx, update.Message)
				continue
			}
			if update.CallbackQuery != nil {
				go b.handleCallback(ctx, update.CallbackQuery)
			}
		}
	}
}

// SendReport delivers text to the admin, if one is configured.
func (b *Bot) SendReport(_ context.Context, text string) error {
	if b.adminUserID == 0 {
		return nil
	}
	if _, err := b.s.Send(tgbotapi.NewMessage(b.adminUserID, text)); err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	return nil
}

// controllerFor returns the chat's controller, creating and initializing it on
// first use. Messages arriving during initialization wait for it to finish.
// Initialization failures are already reported to the chat.
func (b *Bot) controllerFor(ctx context.Context, chatID int64) Controller {
	b.mu.Lock()
	c, ok := b.chats[chatID]
	if !ok {
		c = &chat{ctrl: b.factory(fmt.Sprintf("%s:%d", b.historyKey, chatID), chatNotifier{b: b, chatID: chatID})}
		b.chats[chatID] = c
	}
	b.mu.Unlock()

	c.once.Do(func() {
		if err := c.ctrl.Initialize(ctx); err != nil {
			log.Printf("chat %d: initialize: %v", chatID, err)
		}
	})
	return c.ctrl
}

type chatNotifier struct {
	b      *Bot
	chatID int64
}

func (n chatNotifier) Notify(notice string) { n.b.sendMessage(n.chatID, notice) }

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.s.Send(msg); err != nil {
		log.Printf("failed to send message: %v", err)
	}
}
