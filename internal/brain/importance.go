package brain

import "basegraph.app/hookrelay/internal/domain"

// ImportanceGate decides whether a new_task classification is worth a task
// record. An upstream flag on the envelope always wins.
type ImportanceGate struct{}

func (ImportanceGate) IsImportant(env *domain.WebhookEnvelope) bool {
	if env.IsTaskImportant != nil {
		return *env.IsTaskImportant
	}
	event := env.WebhookEvent
	if event.Bot.IsBotMentioned {
		return true
	}
	channel := event.Channel
	if env.Channel != nil {
		channel = *env.Channel
	}
	return channel.Type.IsPrivateConversation()
}
