package orchestration

import "github.com/koscakluka/ema-voice/core/events"

type eventEmitter func(events.Event)

func noopEventEmitter(events.Event) {}

func newCallbackEventEmitter(opts OrchestrateOptions) eventEmitter {
	return func(event events.Event) {
		if opts.onEvent != nil {
			opts.onEvent(event)
		}

		switch typedEvent := event.(type) {
		case events.PhaseChanged:
			if opts.onPhaseChanged != nil {
				opts.onPhaseChanged(Phase(typedEvent.From), Phase(typedEvent.To))
			}
		case events.TurnCommitted:
			if opts.onTurnCommitted != nil {
				opts.onTurnCommitted(typedEvent.Turn)
			}
		case events.ReplyUpdated:
			if opts.onReply != nil {
				opts.onReply(typedEvent.Text, typedEvent.Generating)
			}
		case events.TranscriptChanged:
			if opts.onTranscript != nil {
				opts.onTranscript(typedEvent.Final, typedEvent.Interim)
			}
		case events.ConversationChanged:
			if opts.onConversationChanged != nil {
				opts.onConversationChanged(typedEvent.ConversationID, typedEvent.Turns)
			}
		case events.ChannelStatusChanged:
			if opts.onChannelStatus != nil {
				opts.onChannelStatus(typedEvent.Status, typedEvent.Err)
			}
		case events.Notice:
			if opts.onNotice != nil {
				opts.onNotice(typedEvent)
			}
		}
	}
}
