// Package speechstream is a client for streaming speech recognition over a
// duplex websocket channel.
//
// A session sends one configuration frame, then the audio frames produced
// by an AudioSource, while recognition results are read concurrently. It
// supports:
//
//   - WAV header validation and parameter extraction
//   - File-backed chunk iteration with optional real-time pacing
//   - Boosted phrases, speaker diarization and endpointing settings
//   - Interleaved partial and final results folded into a Transcript
//
// # Quick Start
//
//	client := speechstream.NewClient(speechstream.ClientOptions{
//	    ServerURL: "localhost:50051",
//	})
//
//	cfg := speechstream.NewStreamingConfig(speechstream.RecognitionOptions{
//	    LanguageCode:   "en-US",
//	    InterimResults: true,
//	}, nil)
//	speechstream.AddAudioFileSpecs(cfg, "audio.wav")
//
//	src, err := speechstream.OpenFileSource("audio.wav", 1600,
//	    speechstream.WithPacer(speechstream.NewRealTimePacer()))
//	if err != nil {
//	    return err
//	}
//
//	session := client.NewSession(cfg, src)
//	if err := session.Start(ctx); err != nil {
//	    return err
//	}
//	transcript := speechstream.NewTranscript()
//	for resp := range session.Results() {
//	    transcript.Add(resp)
//	}
//	if err := session.Wait(); err != nil {
//	    return err
//	}
//
// # Session States
//
// A session moves Idle → ConfigSent → Streaming → Draining → Closed. Errored
// is reachable from any non-terminal state. No audio is written before the
// config frame, and nothing is written once Draining begins. Cancel stops
// both directions and releases the audio source from any state.
//
// # Error Handling
//
// Failures are reported as distinct types so callers can tell them apart:
//
//	var cfgErr *speechstream.ConfigError
//	if errors.As(err, &cfgErr) {
//	    fmt.Println("rejected:", cfgErr.Message)
//	}
//
// *FormatError and *ConfigError abort before streaming starts.
// *TransportError aborts both directions. *ParseError is only returned by
// ApplyCustomConfiguration and never aborts anything.
package speechstream
