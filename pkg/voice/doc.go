// Package voice provides the bidirectional streaming session with the
// speech-to-speech model.
//
// A Session accepts microphone audio, text turns and tool responses, and
// yields a stream of Events (audio, text, tool calls, turn boundaries).
// GeminiSession talks to the Gemini Live API over a websocket; MockSession
// scripts the same contract for tests.
//
// # Usage
//
//	cfg := voice.DefaultConfig()
//	cfg.APIKey = os.Getenv("GOOGLE_API_KEY")
//	cfg.SystemPrompt = tools.SystemPrompt
//	cfg.Tools = tools.Declarations()
//
//	sess, err := voice.Dial(ctx, cfg, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sess.Close()
//
//	for ev := range sess.Events() {
//	    switch ev.Kind {
//	    case voice.EventAudio:
//	        speaker.Write(ev.Audio)
//	    case voice.EventToolCall:
//	        results := dispatcher.Dispatch(ctx, ev.Calls)
//	        sess.SendToolResponse(ctx, results)
//	    }
//	}
//
// Writes on a session are serialized internally, so the audio sender and
// the tool dispatcher may share one handle.
package voice
