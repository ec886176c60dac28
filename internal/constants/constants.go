package constants

const (
	// Network constants
	PanelTimeout      = 10 // seconds
	InitDataExpiresIn = 60 // minutes

	// Session cache constants
	SessionCacheExpiration      = 30 // minutes
	SessionCacheCleanupInterval = 10 // minutes

	// Provisioning constants
	TrialDurationHours = 72
	RenewDurationDays  = 30
	DefaultDeviceLimit = 2

	// Reminder constants
	SweepInterval       = 60  // minutes
	SweepStartDelay     = 1   // minutes
	SecondReminderAfter = 48  // hours since expiry
	FinalReminderAfter  = 120 // hours since expiry
	MaxNotificationStep = 3

	// Traffic constants
	BytesInGB = 1024 * 1024 * 1024

	// Formatting constants
	TimestampFormat = "2006-01-02 15:04:05"
	DateFormat      = "2006-01-02"
)
