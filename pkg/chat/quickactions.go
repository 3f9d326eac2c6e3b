package chat

import "log/slog"

// ActionID identifies a quick action.
type ActionID string

const (
	ActionCheckin    ActionID = "checkin"
	ActionActivities ActionID = "activities"
	ActionSupport    ActionID = "support"
	ActionTrip       ActionID = "trip"
	ActionHabits     ActionID = "habits"
	ActionSocial     ActionID = "social"
)

// QuickAction is a canned query offered next to the composer.
type QuickAction struct {
	ID          ActionID
	Title       string
	Description string
	Query       string
}

var quickActions = []QuickAction{
	{
		ID:          ActionCheckin,
		Title:       "Daily Check-in",
		Description: "How are you feeling today?",
		Query:       "Let's do my daily check-in. How should I start?",
	},
	{
		ID:          ActionActivities,
		Title:       "Find Activities",
		Description: "Discover local events and meetups",
		Query:       "Show me interesting activities and events near me",
	},
	{
		ID:          ActionSupport,
		Title:       "Recovery Support",
		Description: "Get motivation and guidance",
		Query:       "I need some motivation and recovery support today",
	},
	{
		ID:          ActionTrip,
		Title:       "Plan a Trip",
		Description: "Organize a group adventure",
		Query:       "Help me plan a trip with my friends",
	},
	{
		ID:          ActionHabits,
		Title:       "Habit Check",
		Description: "Review your progress",
		Query:       "Show me my habit progress and suggest improvements",
	},
	{
		ID:          ActionSocial,
		Title:       "Social Connect",
		Description: "Meet new people",
		Query:       "Help me find people with similar interests to connect with",
	},
}

var suggestions = []string{
	"How can you help me with recovery?",
	"Help me plan a social activity",
	"Show me my habit progress",
	"Find local groups near me",
}

// QuickActions returns the quick action catalog in display order.
func QuickActions() []QuickAction {
	return append([]QuickAction(nil), quickActions...)
}

// Suggestions returns the prompts offered in an empty conversation.
func Suggestions() []string {
	return append([]string(nil), suggestions...)
}

// LookupQuickAction finds an action by id.
func LookupQuickAction(id ActionID) (QuickAction, bool) {
	for _, action := range quickActions {
		if action.ID == id {
			return action, true
		}
	}
	return QuickAction{}, false
}

// QuickActionSender is implemented by Controller.
type QuickActionSender interface {
	TriggerQuickAction(query string) (*Exchange, error)
}

// Dispatcher maps quick action ids to their canned queries.
type Dispatcher struct {
	sender QuickActionSender
}

// NewDispatcher returns a dispatcher sending through sender.
func NewDispatcher(sender QuickActionSender) *Dispatcher {
	return &Dispatcher{sender: sender}
}

// Trigger sends the query of action id. Unknown ids are ignored and return
// a nil exchange and error. While an exchange is running the action is
// dropped with ErrExchangeInFlight.
func (d *Dispatcher) Trigger(id ActionID) (*Exchange, error) {
	action, ok := LookupQuickAction(id)
	if !ok {
		slog.Debug("chat_quick_action_unknown", "action", string(id))
		return nil, nil
	}
	return d.sender.TriggerQuickAction(action.Query)
}
