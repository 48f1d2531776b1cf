// Package events defines the typed event contract of the voice turn
// orchestrator.
//
// Event kinds are grouped by source:
//
//   - capture.*
//   - reply.*
//   - playback.*
//   - channel.*
//   - command.*
//   - state.*
//
// Inbound events (capture, reply, playback, channel and command) are queued
// by adapters and user calls and applied by the orchestrator one at a time.
// Outbound events (state) describe what changed after an event was applied
// and are delivered to the UI.
//
// Semantics used across the package:
//
//   - Session: capture session number assigned by the orchestrator when
//     capture starts. Signals of superseded sessions are ignored.
//   - Utterance: playback number assigned per speak request.
//   - Seq: reply sequence number returned by the chat channel when a user
//     turn is sent. Reply events carrying a different Seq than the current
//     generation are stale.
//   - Epoch: conversation switch counter used to drop history loads that
//     finished after another switch.
//
// capture events
//
//   - CaptureTranscriptUpdated (capture.transcript_updated): live final and
//     interim transcript of the session.
//   - CaptureEnded (capture.ended): the session ended with its final
//     transcript, possibly empty.
//
// reply events
//
//   - ReplyToken (reply.token): one streamed chunk of the reply.
//   - ReplyDone (reply.done): the reply is complete.
//   - ReplyFailed (reply.failed): the backend reported a failure for the
//     reply.
//
// playback events
//
//   - PlaybackStarted (playback.started): audio for the utterance started.
//   - PlaybackEnded (playback.ended): the utterance ended, naturally or not.
//
// channel events
//
//   - ChannelStatusChanged (channel.status_changed): connection status
//     changed. Delivered both inbound and outbound.
//
// command events
//
//   - StartListening, StopListening, StopSpeaking, CancelGeneration,
//     SetMuted, SetLanguage, SendText, SwitchConversation and HistoryLoaded.
//
// state events
//
//   - PhaseChanged (state.phase_changed): the conversation phase changed.
//   - TurnCommitted (state.turn_committed): a turn was appended to the log.
//   - ReplyUpdated (state.reply_updated): streaming reply text so far.
//   - TranscriptChanged (state.transcript_changed): live transcript shown
//     while listening.
//   - ConversationChanged (state.conversation_changed): active conversation
//     or its history changed.
//   - Notice (state.notice): user visible condition such as "not ready".
package events
