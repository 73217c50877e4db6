// Package events defines the typed event contract published by the turn
// controller.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - user_input.*
//   - assistant_response.*
//   - assistant_playback.*
//   - conversation.*
//   - turn_state.*
//
// Semantics used across the package:
//
//   - Updated: mutable point-in-time snapshot that can change over time.
//   - Final: terminal immutable text/state for the current turn phase.
//   - Ended: lifecycle boundary indicating completion.
//
// user_input events
//
//   - UserSpeechEnded (user_input.speech_ended): the voice activity policy
//     decided the user stopped talking.
//   - UserTranscriptInterimUpdated (user_input.transcript_interim_updated):
//     mutable full transcript snapshot. Each one replaces the previous one.
//   - UserTranscriptFinal (user_input.transcript_final): terminal full
//     transcript for the utterance.
//
// assistant_response events
//
//   - AssistantResponseStarted (assistant_response.started): the completion
//     service was invoked.
//   - AssistantResponseFinal (assistant_response.final): the reply text.
//
// assistant_playback events
//
//   - AssistantPlaybackStarted (assistant_playback.started): playback started
//     for a reply.
//   - AssistantPlaybackEnded (assistant_playback.ended): the reply was played
//     to the end.
//   - AssistantPlaybackInterrupted (assistant_playback.interrupted): playback
//     was stopped or dropped from the queue before it finished.
//
// conversation events
//
//   - ConversationTurnAppended (conversation.turn_appended): a line was added
//     to the conversation log.
//   - ConversationReset (conversation.reset): the log was cleared.
//
// turn_state events
//
//   - TurnStarted (turn_state.started): a turn began capturing.
//   - TurnStateChanged (turn_state.changed): the controller moved between
//     states. The concrete payload is defined next to the state machine.
//   - TurnCompleted (turn_state.completed): the turn returned to idle normally.
//   - TurnFailed (turn_state.failed): the turn ended with an error.
//   - TurnCancelled (turn_state.cancelled): the turn was interrupted.
package events
