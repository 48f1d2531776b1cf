// Package orchestration turns speech capture, the streaming chat channel and
// speech playback into one turn based voice conversation.
//
// All state changes happen on a single goroutine that applies queued events
// in order. Public methods and adapter callbacks only enqueue.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-voice/core/chatchannel"
	"github.com/koscakluka/ema-voice/core/conversations"
	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrNoConversationStore = errors.New("no conversation store configured")

type Orchestrator struct {
	capture  SpeechCapture
	playback SpeechPlayback
	channel  ChatChannel
	store    conversations.Store

	initialConversationID string

	startOnce    sync.Once
	closeOnce    sync.Once
	runtime      *conversationRuntime
	adapterCalls *adapterCalls
	emit         eventEmitter
	baseContext  context.Context

	// mu guards everything below. The loop holds it for the whole
	// application of an event so no transition is observable half applied.
	mu                sync.RWMutex
	phase             Phase
	conversationID    string
	epoch             uint64
	turns             []conversations.Turn
	reply             *streamingReply
	generation        uint64
	transcript        speechtotext.Transcript
	session           uint64
	utterance         uint64
	muted             bool
	language          string
	channelStatus     string
	captureSupported  bool
	playbackSupported bool
	turnSpan          trace.Span
	pending           []events.Event
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		runtime:       newConversationRuntime(),
		adapterCalls:  newAdapterCalls(),
		emit:          noopEventEmitter,
		baseContext:   context.Background(),
		phase:         PhaseIdle,
		language:      defaultLanguage,
		channelStatus: string(chatchannel.StatusDisconnected),
	}

	for _, opt := range opts {
		opt(o)
	}

	o.captureSupported = o.capture != nil && o.capture.HasSupport()
	o.playbackSupported = o.playback != nil && o.playback.HasSupport()

	return o
}

// Orchestrate starts processing events. Commands issued before Orchestrate
// are kept and applied in order once it runs.
//
// ctx is the base context for adapter and channel calls; cancelling it closes
// the orchestrator. Only the first call has any effect.
func (o *Orchestrator) Orchestrate(ctx context.Context, opts ...OrchestrateOption) {
	if o.runtime.isClosed() {
		logger.Warn("orchestrator already closed, skipping Orchestrate")
		return
	}

	o.startOnce.Do(func() {
		options := OrchestrateOptions{}
		for _, opt := range opts {
			opt(&options)
		}

		o.mu.Lock()
		o.baseContext = ctx
		o.emit = newCallbackEventEmitter(options)
		captureSupported, playbackSupported := o.captureSupported, o.playbackSupported
		o.mu.Unlock()

		if !captureSupported {
			o.emit(events.NewNotice(events.NoticeCaptureUnsupported, "speech capture is not available", ""))
		}
		if !playbackSupported {
			o.emit(events.NewNotice(events.NoticePlaybackUnsupported, "speech playback is not available", ""))
		}

		if o.channel != nil {
			err := o.channel.Connect(ctx,
				chatchannel.WithTokenCallback(func(token chatchannel.Token) {
					o.runtime.enqueue(events.NewReplyToken(token.Seq, token.ConversationID, token.Chunk))
				}),
				chatchannel.WithDoneCallback(func(done chatchannel.Done) {
					o.runtime.enqueue(events.NewReplyDone(done.Seq, done.ConversationID))
				}),
				chatchannel.WithFailureCallback(func(failure chatchannel.Failure) {
					o.runtime.enqueue(events.NewReplyFailed(failure.Seq, failure.ConversationID, failure.Message))
				}),
				chatchannel.WithStatusCallback(func(status chatchannel.Status, err error) {
					o.runtime.enqueue(events.NewChannelStatusChanged(string(status), err))
				}),
			)
			if err != nil {
				recordedErr := fmt.Errorf("failed to connect chat channel: %w", err)
				span := trace.SpanFromContext(ctx)
				span.RecordError(recordedErr)
				span.SetStatus(codes.Error, recordedErr.Error())
			}
		}

		// The loop is not running yet, so the configured conversation is
		// opened ahead of any queued command.
		switch {
		case o.initialConversationID != "":
			o.handle(events.NewSwitchConversation(o.initialConversationID))
		case o.store != nil:
			o.bootstrapConversation(ctx)
		}

		if started := o.runtime.start(o.processQueuedEvent); started {
			go func() {
				select {
				case <-ctx.Done():
					o.Close()
				case <-o.runtime.closeCh:
				}
			}()
		}
	})
}

// Close stops the event loop, any capture and playback in progress and the
// chat channel.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.runtime.end()
		o.runtime.waitUntilEnded()
		o.adapterCalls.wait()

		o.mu.Lock()
		phase := o.phase
		o.endTurnSpan(nil)
		o.mu.Unlock()

		switch phase {
		case PhaseListening:
			if err := o.capture.StopCapture(); err != nil {
				logger.Warn("failed to stop capture on close", "error", err)
			}
		case PhaseSpeaking:
			o.playback.StopSpeaking()
		}

		if o.channel != nil {
			o.channel.Close()
		}
	})
}

// Handle enqueues an arbitrary event, such as one recorded from an adapter.
func (o *Orchestrator) Handle(event events.Event) { o.runtime.enqueue(event) }

func (o *Orchestrator) StartListening()     { o.runtime.enqueue(events.NewStartListening()) }
func (o *Orchestrator) StopListening()      { o.runtime.enqueue(events.NewStopListening()) }
func (o *Orchestrator) StopSpeaking()       { o.runtime.enqueue(events.NewStopSpeaking()) }
func (o *Orchestrator) CancelGeneration()   { o.runtime.enqueue(events.NewCancelGeneration()) }
func (o *Orchestrator) SetMuted(muted bool) { o.runtime.enqueue(events.NewSetMuted(muted)) }

// SetLanguage changes the language tag used from the next capture, playback
// and user message on.
func (o *Orchestrator) SetLanguage(tag string) { o.runtime.enqueue(events.NewSetLanguage(tag)) }

// SendText sends a typed user turn through the same path as a spoken one.
func (o *Orchestrator) SendText(text string) { o.runtime.enqueue(events.NewSendText(text)) }

// SwitchConversation makes conversationID the active conversation. The turn
// log is replaced by the stored history once it has loaded.
func (o *Orchestrator) SwitchConversation(conversationID string) {
	o.runtime.enqueue(events.NewSwitchConversation(conversationID))
}

// NewConversation creates a conversation in the store and switches to it.
func (o *Orchestrator) NewConversation(ctx context.Context) (string, error) {
	if o.store == nil {
		return "", ErrNoConversationStore
	}

	ctx, span := tracer.Start(ctx, "new conversation")
	defer span.End()

	conversationID, err := o.store.CreateConversation(ctx)
	if err != nil {
		err = fmt.Errorf("failed to create conversation: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	o.SwitchConversation(conversationID)
	return conversationID, nil
}

// Conversations lists the stored conversations, most recently active first.
func (o *Orchestrator) Conversations(ctx context.Context) ([]conversations.Summary, error) {
	if o.store == nil {
		return nil, ErrNoConversationStore
	}
	return o.store.ListConversations(ctx)
}

// Snapshot is a point in time copy of the orchestrator state.
type Snapshot struct {
	Phase             Phase
	ConversationID    string
	Turns             []conversations.Turn
	Reply             string
	Generating        bool
	Transcript        speechtotext.Transcript
	Muted             bool
	Language          string
	ChannelStatus     string
	CaptureSupported  bool
	PlaybackSupported bool
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()

	snapshot := Snapshot{
		Phase:             o.phase,
		ConversationID:    o.conversationID,
		Transcript:        o.transcript,
		Muted:             o.muted,
		Language:          o.language,
		ChannelStatus:     o.channelStatus,
		CaptureSupported:  o.captureSupported,
		PlaybackSupported: o.playbackSupported,
	}
	if o.reply != nil {
		snapshot.Reply = o.reply.String()
		snapshot.Generating = o.reply.generating
	}
	if err := copier.CopyWithOption(&snapshot.Turns, o.turns, copier.Option{DeepCopy: true}); err != nil {
		snapshot.Turns = slices.Clone(o.turns)
	}
	return snapshot
}

// bootstrapConversation creates a conversation when orchestration starts
// without one. The result is dropped if the user switched in the meantime.
func (o *Orchestrator) bootstrapConversation(ctx context.Context) {
	o.mu.RLock()
	epoch := o.epoch
	o.mu.RUnlock()

	go func() {
		var conversationID string
		err := panicSafeNamedWorker("conversation bootstrap", func(ctx context.Context) error {
			ctx, span := tracer.Start(ctx, "bootstrap conversation")
			defer span.End()

			id, err := o.store.CreateConversation(ctx)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return err
			}
			conversationID = id
			return nil
		})(ctx)
		o.runtime.enqueue(newConversationCreated(epoch, conversationID, err))
	}()
}
