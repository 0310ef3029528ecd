package service

import (
	"context"
	"errors"
	"testing"

	"slotkeeper/internal/events"
	"slotkeeper/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTelegramSender struct {
	mock.Mock
}

func (m *mockTelegramSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func (m *mockTelegramSender) GetSelf() tgbotapi.User {
	args := m.Called()
	return args.Get(0).(tgbotapi.User)
}

func samplePayload() events.BookingEventPayload {
	return events.BookingEventPayload{
		BookingID:       "b-1",
		Date:            "2026-03-02",
		Time:            "10:00",
		ResourceID:      "anna",
		DurationMinutes: 60,
		Status:          models.StatusPending,
		CustomerName:    "Мария",
		Phone:           "+79990000000",
		ServiceName:     "Стрижка",
	}
}

func TestTelegramService(t *testing.T) {
	mockSender := new(mockTelegramSender)
	svc := NewTelegramService(mockSender, []int64{123}, nil)

	t.Run("SendMessage", func(t *testing.T) {
		mockSender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
			msg, ok := c.(tgbotapi.MessageConfig)
			return ok && msg.Text == "hello" && msg.ChatID == 123
		})).Return(tgbotapi.Message{}, nil).Once()

		_, err := svc.SendMessage(123, "hello")
		assert.NoError(t, err)
		mockSender.AssertExpectations(t)
	})

	t.Run("SendMarkdown", func(t *testing.T) {
		mockSender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
			msg, ok := c.(tgbotapi.MessageConfig)
			return ok && msg.ParseMode == parseModeMarkdown
		})).Return(tgbotapi.Message{}, nil).Once()

		_, err := svc.SendMarkdown(123, "*bold*")
		assert.NoError(t, err)
		mockSender.AssertExpectations(t)
	})

	t.Run("GetSelf", func(t *testing.T) {
		mockSender.On("GetSelf").Return(tgbotapi.User{UserName: "slotkeeper_bot"}).Once()
		assert.Equal(t, "slotkeeper_bot", svc.GetSelf().UserName)
	})
}

func TestTelegramNotify(t *testing.T) {
	t.Run("every manager", func(t *testing.T) {
		sender := new(mockTelegramSender)
		svc := NewTelegramService(sender, []int64{1, 2}, nil)
		for _, id := range []int64{1, 2} {
			chatID := id
			sender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
				msg, ok := c.(tgbotapi.MessageConfig)
				return ok && msg.ChatID == chatID
			})).Return(tgbotapi.Message{}, nil).Once()
		}

		require.NoError(t, svc.Notify(context.Background(), events.EventBookingCreated, samplePayload()))
		sender.AssertExpectations(t)
	})

	t.Run("partial failure", func(t *testing.T) {
		sender := new(mockTelegramSender)
		svc := NewTelegramService(sender, []int64{1, 2}, nil)
		sender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
			return c.(tgbotapi.MessageConfig).ChatID == 1
		})).Return(tgbotapi.Message{}, errors.New("blocked")).Once()
		sender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
			return c.(tgbotapi.MessageConfig).ChatID == 2
		})).Return(tgbotapi.Message{}, nil).Once()

		err := svc.Notify(context.Background(), events.EventBookingCreated, samplePayload())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "chat 1")
		sender.AssertExpectations(t)
	})

	t.Run("cancelled context", func(t *testing.T) {
		sender := new(mockTelegramSender)
		svc := NewTelegramService(sender, []int64{1}, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.ErrorIs(t, svc.Notify(ctx, events.EventBookingCreated, samplePayload()), context.Canceled)
		sender.AssertNotCalled(t, "Send", mock.Anything)
	})
}

func TestFormatBookingEvent(t *testing.T) {
	p := samplePayload()

	created := FormatBookingEvent(events.EventBookingCreated, p)
	assert.Contains(t, created, "Новая запись")
	assert.Contains(t, created, "2026-03-02 10:00, 60 мин")
	assert.Contains(t, created, "Мастер: anna")
	assert.Contains(t, created, "+79990000000")
	assert.Contains(t, created, "`b-1`")

	p.PreviousDate = "2026-03-01"
	p.PreviousTime = "09:00"
	p.PreviousResourceID = "olga"
	moved := FormatBookingEvent(events.EventBookingRescheduled, p)
	assert.Contains(t, moved, "Было: 2026-03-01 09:00 (olga)")

	p.PreviousStatus = models.StatusPending
	p.Status = models.StatusCancelled
	status := FormatBookingEvent(events.EventBookingStatusChanged, p)
	assert.Contains(t, status, "ожидает подтверждения → отменена")

	p.ResourceID = models.AutoResource
	assert.NotContains(t, FormatBookingEvent(events.EventBookingCreated, p), "Мастер")
}
