package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"slotkeeper/internal/domain"
	"slotkeeper/internal/events"
	"slotkeeper/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const parseModeMarkdown = "Markdown"

// BotWrapper adapts *tgbotapi.BotAPI to domain.TelegramSender.
type BotWrapper struct {
	*tgbotapi.BotAPI
}

func NewBotWrapper(bot *tgbotapi.BotAPI) *BotWrapper {
	return &BotWrapper{BotAPI: bot}
}

func (w *BotWrapper) GetSelf() tgbotapi.User {
	return w.Self
}

// TelegramService sends booking notifications to the manager chats.
type TelegramService struct {
	bot      domain.TelegramSender
	managers []int64
	logger   *zerolog.Logger
}

func NewTelegramService(bot domain.TelegramSender, managers []int64, logger *zerolog.Logger) *TelegramService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &TelegramService{
		bot:      bot,
		managers: managers,
		logger:   logger,
	}
}

func (s *TelegramService) SendMessage(chatID int64, text string) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	return s.bot.Send(msg)
}

func (s *TelegramService) SendMarkdown(chatID int64, text string) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = parseModeMarkdown
	return s.bot.Send(msg)
}

func (s *TelegramService) GetSelf() tgbotapi.User {
	return s.bot.GetSelf()
}

// Notify sends one message to every manager. The error joins the failed
// chats, so the worker retries only when somebody missed it.
func (s *TelegramService) Notify(ctx context.Context, eventType string, payload events.BookingEventPayload) error {
	text := FormatBookingEvent(eventType, payload)
	var errs []error
	for _, chatID := range s.managers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.SendMarkdown(chatID, text); err != nil {
			s.logger.Warn().Err(err).Int64("chat_id", chatID).Str("booking_id", payload.BookingID).Msg("telegram send failed")
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

var statusTitles = map[string]string{
	models.StatusPending:    "ожидает подтверждения",
	models.StatusConfirmed:  "подтверждена",
	models.StatusInProgress: "в работе",
	models.StatusCompleted:  "завершена",
	models.StatusCancelled:  "отменена",
}

func statusTitle(status string) string {
	if t, ok := statusTitles[status]; ok {
		return t
	}
	return status
}

// FormatBookingEvent renders the manager message.
func FormatBookingEvent(eventType string, p events.BookingEventPayload) string {
	var sb strings.Builder
	switch eventType {
	case events.EventBookingCreated:
		sb.WriteString("🆕 *Новая запись*\n\n")
	case events.EventBookingRescheduled:
		sb.WriteString("🔁 *Запись перенесена*\n\n")
		fmt.Fprintf(&sb, "Было: %s %s", p.PreviousDate, p.PreviousTime)
		if p.PreviousResourceID != "" && p.PreviousResourceID != p.ResourceID {
			fmt.Fprintf(&sb, " (%s)", p.PreviousResourceID)
		}
		sb.WriteString("\n")
	case events.EventBookingStatusChanged:
		fmt.Fprintf(&sb, "📌 *Статус записи*: %s → %s\n\n", statusTitle(p.PreviousStatus), statusTitle(p.Status))
	default:
		fmt.Fprintf(&sb, "*%s*\n\n", eventType)
	}

	fmt.Fprintf(&sb, "📅 %s %s, %d мин\n", p.Date, p.Time, p.DurationMinutes)
	if p.ResourceID != "" && p.ResourceID != models.AutoResource {
		fmt.Fprintf(&sb, "💇 Мастер: %s\n", p.ResourceID)
	}
	fmt.Fprintf(&sb, "👤 %s", p.CustomerName)
	if p.Phone != "" {
		fmt.Fprintf(&sb, ", %s", p.Phone)
	}
	sb.WriteString("\n")
	if p.ServiceName != "" {
		fmt.Fprintf(&sb, "✂️ %s\n", p.ServiceName)
	}
	fmt.Fprintf(&sb, "ID: `%s`", p.BookingID)
	return sb.String()
}
