// Smoke test: transcribes several files against a backend and reports the
// outcome of each.
//
// Usage:
//
//	go run main.go [-server host:port] [-parallel 2] <audio_file1> [audio_file2] ...
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	speechstream "github.com/moxierobots/speechstream-go"
	"github.com/moxierobots/speechstream-go/internal/cliconfig"
)

type outcome struct {
	path  string
	text  string
	state speechstream.State
	err   error
	took  time.Duration
}

func main() {
	fs := flag.NewFlagSet("test_sdk", flag.ExitOnError)
	parallel := fs.Int("parallel", 2, "Files transcribed concurrently")
	timeout := fs.Duration("timeout", 60*time.Second, "Timeout per file")

	cfg, err := cliconfig.Parse(fs, os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	audioFiles := fs.Args()
	if len(audioFiles) == 0 {
		log.Fatal("Usage: go run main.go [flags] <audio_file1> [audio_file2] ...")
	}
	logger := cfg.Logging.NewLogger(os.Stderr)
	client := speechstream.NewClient(cfg.ClientOptions(logger))

	outcomes := make([]outcome, len(audioFiles))
	g := new(errgroup.Group)
	g.SetLimit(*parallel)
	for i, path := range audioFiles {
		i, path := i, path
		g.Go(func() error {
			outcomes[i] = transcribeFile(client, cfg, path, *timeout, logger)
			return nil
		})
	}
	g.Wait()

	failed := 0
	for _, o := range outcomes {
		fmt.Printf("\n=== %s (%s, %s) ===\n", o.path, o.state, o.took.Round(time.Millisecond))
		if o.err != nil {
			failed++
			fmt.Printf("Error: %v\n", o.err)
			continue
		}
		fmt.Printf("Final transcription: %s\n", o.text)
	}
	fmt.Printf("\n%d/%d files transcribed\n", len(outcomes)-failed, len(outcomes))
	if failed > 0 {
		os.Exit(1)
	}
}

func transcribeFile(client *speechstream.Client, cfg *cliconfig.Config, path string, timeout time.Duration, logger *slog.Logger) outcome {
	start := time.Now()
	o := outcome{path: path, state: speechstream.StateIdle}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	streamCfg := speechstream.NewStreamingConfig(cfg.RecognitionOptions(), logger)
	speechstream.AddAudioFileSpecs(streamCfg, path)

	src, err := speechstream.OpenFileSource(path, cfg.Audio.ChunkFrames, speechstream.WithLogger(logger.With("file", path)))
	if err != nil {
		o.err = fmt.Errorf("failed to open file: %w", err)
		return o
	}

	session := client.NewSession(streamCfg, src)
	transcript := speechstream.NewTranscript()
	if o.err = session.Start(ctx); o.err == nil {
		o.err = speechstream.Collect(session, transcript)
	}
	if o.err == nil && ctx.Err() != nil {
		o.err = fmt.Errorf("timed out after %s", timeout)
	}
	o.state = session.State()
	o.text = transcript.Text()
	o.took = time.Since(start)
	return o
}
