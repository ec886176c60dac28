package commands

// TelegramCommands contains all commands for the Telegram bot
const (
	// Main commands
	Start = "/start"

	// Navigation commands
	ReturnToMainMenu = "Return to Main Menu"

	// Subscriber commands
	GetAccess      = "Get VPN Access"
	Renew          = "Renew Subscription"
	MySubscription = "My Subscription"
	InviteFriends  = "Invite Friends"
	Help           = "Help"
)
