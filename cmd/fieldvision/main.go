package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/fieldvision-ai/fieldvision-go/internal/dotenv"
	"github.com/fieldvision-ai/fieldvision-go/pkg/config"
	"github.com/fieldvision-ai/fieldvision-go/pkg/media"
	"github.com/fieldvision-ai/fieldvision-go/pkg/session"
	"github.com/fieldvision-ai/fieldvision-go/pkg/video"
)

type cliConfig struct {
	EnvFile  string
	TextOnly bool
	Muted    bool
	NoVideo  bool
}

func parseCLI(args []string) (cliConfig, error) {
	cfg := cliConfig{}
	fs := flag.NewFlagSet("fieldvision", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.EnvFile, "env", ".env", "dotenv file to load before reading the environment")
	fs.BoolVar(&cfg.TextOnly, "text-only", false, "run without microphone, speaker, or camera")
	fs.BoolVar(&cfg.Muted, "muted", false, "start with the microphone muted")
	fs.BoolVar(&cfg.NoVideo, "no-video", false, "start with video transmission off")

	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}
	return cfg, nil
}

func main() {
	cli, err := parseCLI(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "fieldvision: %v\n", err)
		os.Exit(2)
	}
	if err := dotenv.LoadFile(cli.EnvFile); err != nil {
		fmt.Fprintf(os.Stderr, "fieldvision: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fieldvision: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	var pipelines session.MediaPipelines
	if cli.TextOnly {
		pipelines = session.NopMedia{}
	} else {
		pipelines = media.New(media.Config{
			AudioWindowSamples: cfg.AudioWindowSamples,
			Video: video.Config{
				Interval:  cfg.VideoInterval,
				MaxWidth:  cfg.VideoMaxWidth,
				MaxHeight: cfg.VideoMaxHeight,
				Quality:   cfg.VideoQuality,
				MaxBytes:  cfg.VideoMaxBytes,
			},
			Logger: logger,
		})
	}

	ctrl, err := session.New(session.Config{
		ServerURL:         cfg.ServerURL,
		Token:             cfg.Token,
		SystemInstruction: cfg.SystemInstruction,
		ManualContext:     cfg.ManualContext,
		DialTimeout:       cfg.DialTimeout,
		Policy:            cfg.ReconnectPolicy(),
		ResetWatchdog:     cfg.ResetWatchdog,
		Logger:            logger,
	}, pipelines)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fieldvision: %v\n", err)
		os.Exit(1)
	}
	ctrl.SetMuted(cli.Muted)
	ctrl.SetVideoEnabled(!cli.NoVideo)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go printEvents(ctrl.Events(), os.Stdout)

	if err := runConsole(ctx, ctrl, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "fieldvision: %v\n", err)
		ctrl.End()
		os.Exit(1)
	}
	ctrl.End()
}

func runConsole(ctx context.Context, ctrl *session.Controller, in io.Reader, out, errOut io.Writer) error {
	fmt.Fprintln(out, "FieldVision client ready.")
	fmt.Fprintln(out, "Commands: /start /end /mute /unmute /video on|off /new-topic /status /quit. Anything else is sent as text.")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			fmt.Fprintln(out)
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		quit, err := handleCommand(ctx, line, ctrl, out, errOut)
		if err != nil {
			fmt.Fprintf(errOut, "%v\n", err)
		}
		if quit {
			return nil
		}
	}
}

func handleCommand(ctx context.Context, line string, ctrl *session.Controller, out, errOut io.Writer) (quit bool, err error) {
	switch {
	case line == "/quit" || line == "/exit":
		fmt.Fprintln(out, "bye")
		return true, nil
	case line == "/start":
		return false, ctrl.Start(ctx)
	case line == "/end":
		ctrl.End()
		fmt.Fprintln(out, "session ended")
		return false, nil
	case line == "/mute":
		ctrl.SetMuted(true)
		fmt.Fprintln(out, "microphone muted")
		return false, nil
	case line == "/unmute":
		ctrl.SetMuted(false)
		fmt.Fprintln(out, "microphone live")
		return false, nil
	case line == "/video on":
		ctrl.SetVideoEnabled(true)
		fmt.Fprintln(out, "video on")
		return false, nil
	case line == "/video off":
		ctrl.SetVideoEnabled(false)
		fmt.Fprintln(out, "video off")
		return false, nil
	case line == "/new-topic":
		ctrl.Reset()
		return false, nil
	case line == "/status":
		stats := ctrl.Stats()
		fmt.Fprintf(out, "state=%s conn=%s session=%q muted=%v video=%v turns=%d safety=%d critical=%d\n",
			ctrl.State(), ctrl.ConnState(), ctrl.SessionID(), ctrl.Muted(), ctrl.VideoEnabled(),
			stats.Turns, stats.SafetyEvents, stats.CriticalEvents)
		return false, nil
	case strings.HasPrefix(line, "/"):
		return false, fmt.Errorf("unknown command %s", line)
	default:
		return false, ctrl.SendText(line)
	}
}

func printEvents(events <-chan session.Event, out io.Writer) {
	for ev := range events {
		switch e := ev.(type) {
		case session.StartedEvent:
			switch {
			case e.NewTopic:
				fmt.Fprintf(out, "\n[new topic started: %s]\n", e.SessionID)
			case e.Resumed:
				fmt.Fprintf(out, "\n[session resumed: %s]\n", e.SessionID)
			default:
				fmt.Fprintf(out, "\n[session started: %s]\n", e.SessionID)
			}
			if e.Message != "" {
				fmt.Fprintf(out, "[server] %s\n", e.Message)
			}
		case session.EndedEvent:
			fmt.Fprintf(out, "\n[session ended: %s]\n", e.SessionID)
			for k, v := range e.Summary {
				fmt.Fprintf(out, "  %s: %v\n", k, v)
			}
		case session.TextEvent:
			fmt.Fprintf(out, "\nassistant: %s\n", e.Text)
		case session.ToolCallEvent:
			if e.Critical {
				fmt.Fprintf(out, "\n!! CRITICAL safety event (severity %d): %v\n", e.Severity, e.Arguments)
			} else {
				fmt.Fprintf(out, "\n[tool] %s %v\n", e.Function, e.Arguments)
			}
		case session.TurnCompleteEvent:
			fmt.Fprint(out, "> ")
		case session.StatusEvent:
			fmt.Fprintf(out, "\n[status] %s\n", e.Message)
		case session.ErrorEvent:
			fmt.Fprintf(out, "\n[error] %s\n", e.Message)
		case session.ReconnectingEvent:
			if e.NewTopic {
				fmt.Fprintln(out, "\n[starting new topic...]")
			} else {
				fmt.Fprintf(out, "\n[connection lost, reconnecting %d/%d in %s]\n", e.Attempt, e.MaxAttempts, e.Delay)
			}
		case session.ReconnectFailedEvent:
			fmt.Fprintf(out, "\n[reconnect failed after %d attempts, session ended]\n", e.Attempts)
		case session.ForcedReloadEvent:
			fmt.Fprintln(out, "\n[reset timed out, client state cleared]")
		}
	}
}
