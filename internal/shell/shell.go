// Package shell is an interactive console for driving the engine from a
// terminal.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/Maig0l/karaoke/internal/engine"
)

// Engine is the command surface the console drives.
type Engine interface {
	Attach(paths []string) error
	Play() error
	Pause() error
	Stop() error
	TogglePlay() error
	SeekBegin()
	SeekEnd(position time.Duration) error
	SetChannelVolume(index int, perceptual float64) error
	SetMuted(muted bool)
	SetPitch(semitones int) error
	SetStretch(ratio float64) error
	SetPlaybackRate(rate float64) error
	Status() engine.Status
	Events() *engine.Hub
}

// Console reads commands from the terminal and applies them to an Engine.
type Console struct {
	eng     Engine
	out     io.Writer
	history string
}

// New creates a console. An empty historyFile uses ~/.karaoke_history.
func New(eng Engine, historyFile string) *Console {
	if historyFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		historyFile = filepath.Join(home, ".karaoke_history")
	}
	return &Console{eng: eng, out: os.Stdout, history: historyFile}
}

// Run reads and executes commands until "exit", end of input, Ctrl-C on an
// empty line, or ctx being cancelled.
func (c *Console) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "karaoke> ",
		HistoryFile:     c.history,
		AutoComplete:    Completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()
	c.out = rl.Stdout()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		rl.Close()
	}()
	go c.watch(ctx)

	c.printHelp()
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if !c.Handle(line) {
			return nil
		}
	}
}

// watch prints recompute results as they arrive.
func (c *Console) watch(ctx context.Context) {
	hub := c.eng.Events()
	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			switch ev.Type {
			case engine.TransformApplied:
				fmt.Fprintf(c.out, "channel %d updated\n", ev.Channel)
			case engine.TransformFailed:
				fmt.Fprintf(c.out, "channel %d: %s\n", ev.Channel, ev.Reason)
			}
		}
	}
}

// Completer returns tab completion for the console commands.
func Completer() readline.AutoCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("open", readline.PcItemDynamic(audioFiles)),
		readline.PcItem("play"),
		readline.PcItem("pause"),
		readline.PcItem("toggle"),
		readline.PcItem("stop"),
		readline.PcItem("seek"),
		readline.PcItem("vol",
			readline.PcItem("0"),
			readline.PcItem("1"),
		),
		readline.PcItem("mute"),
		readline.PcItem("unmute"),
		readline.PcItem("pitch"),
		readline.PcItem("stretch"),
		readline.PcItem("rate"),
		readline.PcItem("status"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
}

// audioFiles lists audio files in the working directory.
func audioFiles(string) []string {
	entries, err := os.ReadDir(".")
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".wav", ".wave", ".flac", ".mp3", ".ogg", ".oga", ".opus", ".m4a", ".aac":
			out = append(out, e.Name())
		}
	}
	return out
}

func (c *Console) printHelp() {
	fmt.Fprintf(c.out, "Commands:\n")
	fmt.Fprintf(c.out, "  open <path>...       Load tracks (first is the master)\n")
	fmt.Fprintf(c.out, "  play | pause | toggle | stop\n")
	fmt.Fprintf(c.out, "  seek <ms|mm:ss>      Jump to a position\n")
	fmt.Fprintf(c.out, "  vol <ch> <0..100>    Set a channel's volume\n")
	fmt.Fprintf(c.out, "  mute | unmute\n")
	fmt.Fprintf(c.out, "  pitch <-12..12>      Shift pitch in semitones\n")
	fmt.Fprintf(c.out, "  stretch <0.25..2>    Change tempo keeping pitch\n")
	fmt.Fprintf(c.out, "  rate <0.25..2>       Change playback speed\n")
	fmt.Fprintf(c.out, "  status               Show current settings\n")
	fmt.Fprintf(c.out, "  help                 Show this help\n")
	fmt.Fprintf(c.out, "  exit                 Quit\n")
}
