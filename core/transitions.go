package orchestration

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/koscakluka/ema-voice/core/chatchannel"
	"github.com/koscakluka/ema-voice/core/conversations"
	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	"github.com/koscakluka/ema-voice/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const kindConversationCreated events.Kind = "command.conversation_created"

// conversationCreated reports the result of creating a conversation at
// startup. It only applies while no conversation was opened since.
type conversationCreated struct {
	events.Base
	epoch          uint64
	conversationID string
	err            error
}

func newConversationCreated(epoch uint64, conversationID string, err error) conversationCreated {
	return conversationCreated{
		Base:           events.NewBase(kindConversationCreated),
		epoch:          epoch,
		conversationID: conversationID,
		err:            err,
	}
}

const (
	kindCaptureCallFailed  events.Kind = "capture.call_failed"
	kindPlaybackCallFailed events.Kind = "playback.call_failed"
)

// captureCallFailed reports that starting or stopping a capture session
// returned an error. No ended signal follows for that session.
type captureCallFailed struct {
	events.Base
	session uint64
	action  string
	err     error
}

func newCaptureCallFailed(session uint64, action string, err error) captureCallFailed {
	return captureCallFailed{Base: events.NewBase(kindCaptureCallFailed), session: session, action: action, err: err}
}

// playbackCallFailed reports that Speak returned an error. No ended signal
// follows for that utterance.
type playbackCallFailed struct {
	events.Base
	utterance uint64
	err       error
}

func newPlaybackCallFailed(utterance uint64, err error) playbackCallFailed {
	return playbackCallFailed{Base: events.NewBase(kindPlaybackCallFailed), utterance: utterance, err: err}
}

// handle applies one event to completion and then emits the resulting state
// events. Only the event loop calls it.
func (o *Orchestrator) handle(event events.Event) {
	o.mu.Lock()
	o.apply(event)
	pending := o.pending
	o.pending = nil
	emit := o.emit
	o.mu.Unlock()

	for _, stateEvent := range pending {
		emit(stateEvent)
	}
}

func (o *Orchestrator) apply(event events.Event) {
	switch typedEvent := event.(type) {
	case events.StartListening:
		o.startListening()
	case events.StopListening:
		o.stopListening()
	case events.StopSpeaking:
		o.stopSpeaking()
	case events.CancelGeneration:
		o.cancelGeneration()
	case events.SetMuted:
		o.setMuted(typedEvent.Muted)
	case events.SetLanguage:
		o.setLanguage(typedEvent.Tag)
	case events.SendText:
		o.sendText(typedEvent.Text)
	case events.SwitchConversation:
		o.switchConversation(typedEvent.ConversationID)
	case events.HistoryLoaded:
		o.historyLoaded(typedEvent)
	case conversationCreated:
		o.conversationCreated(typedEvent)
	case captureCallFailed:
		o.captureCallFailed(typedEvent)
	case playbackCallFailed:
		o.playbackCallFailed(typedEvent)

	case events.CaptureTranscriptUpdated:
		o.captureTranscriptUpdated(typedEvent)
	case events.CaptureEnded:
		o.captureEnded(typedEvent)

	case events.PlaybackStarted:
		if typedEvent.Utterance == o.utterance {
			logger.Debug("playback started", "utterance", typedEvent.Utterance)
		}
	case events.PlaybackEnded:
		o.playbackEnded(typedEvent)

	case events.ReplyToken:
		o.replyToken(typedEvent)
	case events.ReplyDone:
		o.replyDone(typedEvent)
	case events.ReplyFailed:
		o.replyFailed(typedEvent)

	case events.ChannelStatusChanged:
		o.channelStatus = typedEvent.Status
		o.pending = append(o.pending, typedEvent)

	default:
		logger.Debug("ignoring unknown event", "kind", event.Kind())
	}
}

func (o *Orchestrator) startListening() {
	if !o.captureSupported {
		return
	}

	switch o.phase {
	case PhaseListening:
		return
	case PhaseSpeaking:
		// Barge-in: playback must be stopped before capture starts.
		o.stopPlayback()
	case PhaseThinking:
		o.interruptReply("interrupted by listening")
	}

	o.session++
	session := o.session
	captureOptions := []speechtotext.CaptureOption{
		speechtotext.WithLanguage(o.language),
		speechtotext.WithTranscriptCallback(func(transcript speechtotext.Transcript) {
			o.runtime.enqueue(events.NewCaptureTranscriptUpdated(session, transcript.Final, transcript.Interim))
		}),
		speechtotext.WithCaptureEndedCallback(func(transcript string) {
			o.runtime.enqueue(events.NewCaptureEnded(session, transcript))
		}),
	}
	o.setTranscript(speechtotext.Transcript{})
	o.setPhase(PhaseListening)

	o.adapterCalls.submit(o.baseContext, "start capture", func(ctx context.Context) error {
		if err := o.capture.StartCapture(ctx, captureOptions...); err != nil {
			o.runtime.enqueue(newCaptureCallFailed(session, "start", err))
			return err
		}
		return nil
	})
}

func (o *Orchestrator) stopListening() {
	if o.phase != PhaseListening {
		return
	}

	// The phase changes once the session reports its final transcript.
	session := o.session
	o.adapterCalls.submit(o.baseContext, "stop capture", func(context.Context) error {
		if err := o.capture.StopCapture(); err != nil {
			o.runtime.enqueue(newCaptureCallFailed(session, "stop", err))
			return err
		}
		return nil
	})
}

// abandonCapture invalidates the current session before stopping it, so its
// ended signal is discarded.
func (o *Orchestrator) abandonCapture() {
	o.session++
	o.adapterCalls.submit(o.baseContext, "stop capture", func(context.Context) error {
		return o.capture.StopCapture()
	})
	o.setTranscript(speechtotext.Transcript{})
}

func (o *Orchestrator) captureCallFailed(event captureCallFailed) {
	if event.session != o.session || o.phase != PhaseListening {
		o.discardStale(event, event.session)
		return
	}

	o.session++
	o.setTranscript(speechtotext.Transcript{})
	o.notice(events.NoticeCaptureFailed, fmt.Sprintf("failed to %s listening: %v", event.action, event.err), "")
	o.setPhase(PhaseIdle)
}

func (o *Orchestrator) captureTranscriptUpdated(event events.CaptureTranscriptUpdated) {
	if event.Session != o.session || o.phase != PhaseListening {
		o.discardStale(event, event.Session)
		return
	}
	o.setTranscript(speechtotext.Transcript{Final: event.Final, Interim: event.Interim})
}

func (o *Orchestrator) captureEnded(event events.CaptureEnded) {
	if event.Session != o.session || o.phase != PhaseListening {
		o.discardStale(event, event.Session)
		return
	}

	text := strings.TrimSpace(event.Transcript)
	o.setTranscript(speechtotext.Transcript{})
	if text == "" {
		o.setPhase(PhaseIdle)
		return
	}
	o.submit(text)
}

func (o *Orchestrator) sendText(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	switch o.phase {
	case PhaseListening:
		o.abandonCapture()
	case PhaseSpeaking:
		o.stopPlayback()
	case PhaseThinking:
		o.interruptReply("interrupted by a new message")
	}

	o.submit(text)
}

// submit sends a user turn. The turn is only appended to the log once the
// channel accepted it.
func (o *Orchestrator) submit(text string) {
	o.endTurnSpan(nil)

	ctx, span := tracer.Start(o.baseContext, "process turn")
	span.SetAttributes(
		attribute.String("conversation.id", o.conversationID),
		attribute.String("user_turn.language", o.language),
	)

	seq, err := o.send(ctx, text)
	if err != nil {
		recordedErr := fmt.Errorf("failed to send user turn: %w", err)
		span.RecordError(recordedErr)
		span.SetStatus(codes.Error, recordedErr.Error())
		span.End()

		logger.Warn("failed to send user turn", "error", err)
		o.notice(events.NoticeNotReady, "not connected, the message was not sent", text)
		o.setPhase(PhaseIdle)
		return
	}

	span.SetAttributes(attribute.Int64("assistant_turn.seq", int64(seq)))
	o.turnSpan = span

	o.commitTurn(conversations.NewUserTurn(text))
	o.generation = seq
	o.reply = newStreamingReply(seq, o.conversationID)
	o.setPhase(PhaseThinking)
}

func (o *Orchestrator) send(ctx context.Context, text string) (uint64, error) {
	if o.channel == nil {
		return 0, chatchannel.ErrNotReady
	}
	return o.channel.Send(ctx, text, baseLanguage(o.language))
}

func (o *Orchestrator) isCurrentReply(seq uint64, conversationID string) bool {
	if o.reply == nil || seq != o.reply.generation {
		return false
	}
	return conversationID == "" || conversationID == o.reply.conversationID
}

func (o *Orchestrator) replyToken(event events.ReplyToken) {
	if !o.isCurrentReply(event.Seq, event.ConversationID) {
		o.discardStale(event, event.Seq)
		return
	}

	o.reply.append(event.Chunk)
	o.setPhase(PhaseThinking)
	o.pending = append(o.pending, events.NewReplyUpdated(o.reply.String(), true))
}

func (o *Orchestrator) replyDone(event events.ReplyDone) {
	if !o.isCurrentReply(event.Seq, event.ConversationID) {
		o.discardStale(event, event.Seq)
		return
	}

	text := o.reply.String()
	o.reply = nil
	o.commitTurn(conversations.NewAssistantTurn(text, false))
	o.pending = append(o.pending, events.NewReplyUpdated("", false))
	o.endTurnSpan(nil)

	// An empty reply is committed so the user sees it, but there is nothing
	// to speak, so it goes straight to IDLE even when not muted.
	if o.muted || !o.playbackSupported || text == "" {
		o.setPhase(PhaseIdle)
		return
	}
	o.speak(text)
}

func (o *Orchestrator) replyFailed(event events.ReplyFailed) {
	if event.Seq == 0 {
		o.notice(events.NoticeReplyFailed, event.Message, "")
		return
	}
	if !o.isCurrentReply(event.Seq, event.ConversationID) {
		o.discardStale(event, event.Seq)
		return
	}

	text := o.reply.String()
	o.reply = nil
	if text != "" {
		o.commitTurn(conversations.NewAssistantTurn(text, true))
	}
	o.pending = append(o.pending, events.NewReplyUpdated("", false))
	o.endTurnSpan(fmt.Errorf("reply failed: %s", event.Message))
	o.notice(events.NoticeReplyFailed, event.Message, "")
	o.setPhase(PhaseIdle)
}

func (o *Orchestrator) cancelGeneration() {
	if o.phase != PhaseThinking || o.reply == nil {
		return
	}
	o.interruptReply("cancelled")
	o.setPhase(PhaseIdle)
}

// interruptReply commits whatever was received so far as an interrupted
// turn. Later tokens of the generation no longer match any reply.
func (o *Orchestrator) interruptReply(reason string) {
	if o.reply == nil {
		return
	}

	text := o.reply.String()
	o.reply = nil
	o.commitTurn(conversations.NewAssistantTurn(text, true))
	o.pending = append(o.pending, events.NewReplyUpdated("", false))

	if o.turnSpan != nil {
		o.turnSpan.AddEvent("reply interrupted", trace.WithAttributes(attribute.String("reason", reason)))
	}
	o.endTurnSpan(nil)
}

func (o *Orchestrator) speak(text string) {
	o.utterance++
	utterance := o.utterance
	speakOptions := []texttospeech.SpeakOption{
		texttospeech.WithLanguage(o.language),
		texttospeech.WithSpeechStartedCallback(func() {
			o.runtime.enqueue(events.NewPlaybackStarted(utterance))
		}),
		texttospeech.WithSpeechEndedCallback(func() {
			o.runtime.enqueue(events.NewPlaybackEnded(utterance))
		}),
	}
	o.setPhase(PhaseSpeaking)

	o.adapterCalls.submit(o.baseContext, "speak", func(ctx context.Context) error {
		if err := o.playback.Speak(ctx, text, speakOptions...); err != nil {
			o.runtime.enqueue(newPlaybackCallFailed(utterance, err))
			return err
		}
		return nil
	})
}

func (o *Orchestrator) playbackCallFailed(event playbackCallFailed) {
	if event.utterance != o.utterance || o.phase != PhaseSpeaking {
		o.discardStale(event, event.utterance)
		return
	}

	o.utterance++
	o.notice(events.NoticePlaybackFailed, fmt.Sprintf("failed to speak the reply: %v", event.err), "")
	o.setPhase(PhaseIdle)
}

// stopPlayback invalidates the current utterance before stopping it, so its
// ended signal is discarded.
func (o *Orchestrator) stopPlayback() {
	o.utterance++
	o.adapterCalls.submit(o.baseContext, "stop speaking", func(context.Context) error {
		o.playback.StopSpeaking()
		return nil
	})
}

func (o *Orchestrator) playbackEnded(event events.PlaybackEnded) {
	if event.Utterance != o.utterance || o.phase != PhaseSpeaking {
		o.discardStale(event, event.Utterance)
		return
	}
	o.setPhase(PhaseIdle)
}

func (o *Orchestrator) stopSpeaking() {
	if o.phase != PhaseSpeaking {
		return
	}
	o.stopPlayback()
	o.setPhase(PhaseIdle)
}

func (o *Orchestrator) setMuted(muted bool) {
	if muted == o.muted {
		return
	}
	o.muted = muted
	o.pending = append(o.pending, events.NewSettingsChanged(o.muted, o.language))
	if muted && o.phase == PhaseSpeaking {
		o.stopPlayback()
		o.setPhase(PhaseIdle)
	}
}

func (o *Orchestrator) setLanguage(tag string) {
	normalized, err := normalizeLanguage(tag)
	if err != nil {
		logger.Warn("ignoring language change", "error", err)
		return
	}
	if normalized == o.language {
		return
	}
	o.language = normalized
	o.pending = append(o.pending, events.NewSettingsChanged(o.muted, o.language))
}

// switchConversation abandons the turn in flight without retracting what was
// already sent, then joins the new conversation and loads its history.
func (o *Orchestrator) switchConversation(conversationID string) {
	if conversationID == "" || conversationID == o.conversationID {
		return
	}

	switch o.phase {
	case PhaseListening:
		o.abandonCapture()
	case PhaseSpeaking:
		o.stopPlayback()
	}

	if o.reply != nil {
		o.reply = nil
		o.pending = append(o.pending, events.NewReplyUpdated("", false))
	}
	if o.turnSpan != nil {
		o.turnSpan.AddEvent("conversation switched")
	}
	o.endTurnSpan(nil)
	o.setPhase(PhaseIdle)

	o.conversationID = conversationID
	o.epoch++
	o.turns = nil
	o.pending = append(o.pending, events.NewConversationChanged(conversationID, nil))

	if o.channel != nil {
		if err := o.channel.Join(conversationID); err != nil {
			logger.Warn("failed to join conversation", "conversation", conversationID, "error", err)
		}
	}
	if o.store != nil {
		o.loadHistory(o.epoch, conversationID)
	}
}

func (o *Orchestrator) loadHistory(epoch uint64, conversationID string) {
	ctx := o.baseContext
	go func() {
		var turns []conversations.Turn
		err := panicSafeNamedWorker("history load", func(ctx context.Context) error {
			ctx, span := tracer.Start(ctx, "load conversation history")
			defer span.End()
			span.SetAttributes(attribute.String("conversation.id", conversationID))

			messages, err := o.store.GetMessages(ctx, conversationID)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return err
			}
			turns = conversations.TurnsFromMessages(messages)
			return nil
		})(ctx)
		o.runtime.enqueue(events.NewHistoryLoaded(epoch, conversationID, turns, err))
	}()
}

// historyLoaded puts the stored history in front of any turns committed
// while it was loading.
func (o *Orchestrator) historyLoaded(event events.HistoryLoaded) {
	if event.Epoch != o.epoch || event.ConversationID != o.conversationID {
		o.discardStale(event, event.Epoch)
		return
	}
	if event.Err != nil {
		logger.Warn("failed to load conversation history", "conversation", event.ConversationID, "error", event.Err)
		o.notice(events.NoticeHistoryFailed, fmt.Sprintf("failed to load the conversation: %v", event.Err), "")
		return
	}

	o.turns = append(slices.Clone(event.Turns), o.turns...)
	o.pending = append(o.pending, events.NewConversationChanged(o.conversationID, slices.Clone(o.turns)))
}

func (o *Orchestrator) conversationCreated(event conversationCreated) {
	if event.epoch != o.epoch || o.conversationID != "" {
		logger.Debug("dropping created conversation", "conversation", event.conversationID)
		return
	}
	if event.err != nil {
		logger.Warn("failed to create conversation", "error", event.err)
		o.notice(events.NoticeConversationFailed, fmt.Sprintf("failed to start a conversation: %v", event.err), "")
		return
	}
	o.switchConversation(event.conversationID)
}

func (o *Orchestrator) setPhase(to Phase) {
	if o.phase == to {
		return
	}

	from := o.phase
	o.phase = to
	logger.Debug("phase changed", "from", from, "to", to)
	if o.turnSpan != nil {
		o.turnSpan.AddEvent("phase changed", trace.WithAttributes(
			attribute.String("phase.from", from.String()),
			attribute.String("phase.to", to.String()),
		))
	}
	o.pending = append(o.pending, events.NewPhaseChanged(from.String(), to.String()))
}

func (o *Orchestrator) commitTurn(turn conversations.Turn) {
	o.turns = append(o.turns, turn)
	o.pending = append(o.pending, events.NewTurnCommitted(turn))
}

func (o *Orchestrator) setTranscript(transcript speechtotext.Transcript) {
	if o.transcript == transcript {
		return
	}
	o.transcript = transcript
	o.pending = append(o.pending, events.NewTranscriptChanged(transcript.Final, transcript.Interim))
}

func (o *Orchestrator) notice(code events.NoticeCode, message, text string) {
	o.pending = append(o.pending, events.NewNotice(code, message, text))
}

func (o *Orchestrator) endTurnSpan(err error) {
	if o.turnSpan == nil {
		return
	}
	if err != nil {
		o.turnSpan.RecordError(err)
		o.turnSpan.SetStatus(codes.Error, err.Error())
	}
	o.turnSpan.End()
	o.turnSpan = nil
}

// discardStale drops an event of a superseded generation, capture session,
// utterance or history load. It is not an error.
func (o *Orchestrator) discardStale(event events.Event, tag uint64) {
	logger.Debug("discarding stale event", "kind", event.Kind(), "tag", tag, "generation", o.generation)
	if o.turnSpan != nil {
		o.turnSpan.AddEvent("stale event discarded", trace.WithAttributes(
			attribute.String("event.kind", string(event.Kind())),
			attribute.Int64("event.tag", int64(tag)),
		))
	}
}
