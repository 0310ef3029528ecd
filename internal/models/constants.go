package models

const (
	StatusPending    = "pending"
	StatusConfirmed  = "confirmed"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// AutoResource означает, что мастера выбирает аллокатор.
const AutoResource = "auto"

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// Коды причин отказа. Возвращаются клиенту как есть.
const (
	ReasonDayClosed           = "DAY_CLOSED"
	ReasonOutsideHours        = "OUTSIDE_BUSINESS_HOURS"
	ReasonSlotFull            = "SLOT_FULL"
	ReasonResourceUnavailable = "RESOURCE_UNAVAILABLE"
	ReasonConcurrencyConflict = "CONCURRENCY_CONFLICT"
	ReasonStaleBooking        = "STALE_BOOKING"
	ReasonStoreUnavailable    = "STORE_UNAVAILABLE"
	ReasonInvalidRequest      = "INVALID_REQUEST"
	ReasonInvalidSettings     = "INVALID_SETTINGS"
	ReasonNotFound            = "NOT_FOUND"
	ReasonResourceExists      = "RESOURCE_EXISTS"
)

const (
	// DefaultServiceDuration длительность услуги в минутах, если клиент её не передал
	DefaultServiceDuration = 60

	// DefaultSlotStep шаг сетки слотов, когда в настройках нет очередей
	DefaultSlotStep = 30

	// DefaultSettingsTTL время жизни настроек в кэше
	DefaultSettingsTTL = 5 * 60 // 5 минут в секундах

	// DefaultLockTTL время жизни блокировки слота
	DefaultLockTTL = 10 // секунд

	// NotificationQueueSize размер очереди уведомлений
	NotificationQueueSize = 256
)

var activeStatuses = map[string]bool{
	StatusPending:    true,
	StatusConfirmed:  true,
	StatusInProgress: true,
}

// IsActiveStatus reports whether a booking in this status occupies capacity.
func IsActiveStatus(status string) bool {
	return activeStatuses[status]
}

// ActiveStatuses returns the statuses that occupy capacity.
func ActiveStatuses() []string {
	return []string{StatusPending, StatusConfirmed, StatusInProgress}
}

func IsValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}
