package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/apeiron/engine"
	"github.com/becomeliminal/apeiron/memory"
	"github.com/becomeliminal/apeiron/memory/store/chromem"
)

const wakeHelp = `Commands:
  watch <path>          index a directory or file and follow its changes
  unwatch               stop following changes
  status                show what is being watched
  recall <query>        pull long-term memories into the next answer
  history [n]           show the last n logged turns (default 10)
  forget                clear the conversation window
  img:<path> [prompt]   ask about an image
  sleep                 consolidate memory and leave
  exit                  leave (add --sleep-on-exit to consolidate first)`

func wakeCmd() *cobra.Command {
	var (
		watch       string
		sleepOnExit bool
	)

	cmd := &cobra.Command{
		Use:   "wake",
		Short: "Start an interactive session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fail("loading config: %w", err)
			}
			rt, err := newApp(cfg)
			if err != nil {
				return fail("%w", err)
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			w := newWakeLoop(rt, os.Stdout)
			defer w.close()

			if watch != "" {
				w.watch(ctx, watch)
			}
			w.run(ctx, os.Stdin)

			if sleepOnExit || w.sleep {
				return runSleep(context.Background(), rt)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&watch, "watch", "w", "", "directory or file to watch at start")
	cmd.Flags().BoolVar(&sleepOnExit, "sleep-on-exit", false, "consolidate memory when the session ends")
	return cmd
}

// wakeLoop is the interactive command loop.
type wakeLoop struct {
	rt       *app
	out      io.Writer
	session  *memory.Session
	engine   *engine.Engine
	recaller *memory.Recaller

	// sleep is set when the user leaves with the sleep command.
	sleep bool
}

func newWakeLoop(rt *app, out io.Writer) *wakeLoop {
	live := chromem.NewEphemeral(rt.embedder)
	session := memory.NewSession(live, memory.SessionConfig{
		Filter:       rt.filter,
		MaxFileChars: rt.cfg.MaxFileChars,
		DeletePolicy: memory.DeletePolicy(rt.cfg.DeletePolicy),
	})
	assembler := memory.NewAssembler(session,
		memory.WithRelevantK(rt.cfg.RelevantK),
		memory.WithTokenBudget(rt.cfg.MaxContextTokens, nil),
	)

	model, vision := rt.model()
	eng := engine.New(model, engine.NewWindow(rt.cfg.SystemPrompt, rt.cfg.ContextLimit),
		engine.WithVision(vision),
		engine.WithRecorder(rt.log),
		engine.WithContext(assembler),
	)

	return &wakeLoop{
		rt:       rt,
		out:      out,
		session:  session,
		engine:   eng,
		recaller: rt.recaller(),
	}
}

func (w *wakeLoop) close() {
	_ = w.session.Close(context.Background())
}

func (w *wakeLoop) run(ctx context.Context, in io.Reader) {
	fmt.Fprintln(w.out, "Apeiron is awake.")
	fmt.Fprintln(w.out, wakeHelp)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Fprint(w.out, "\nYOU: ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(w.out)
			return
		case l, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}
		if !w.handle(ctx, line) {
			return
		}
	}
}

// handle runs one input line and reports whether the loop should continue.
func (w *wakeLoop) handle(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "exit", "quit":
		fmt.Fprintln(w.out, "Going to sleep.")
		return false

	case "sleep":
		w.sleep = true
		fmt.Fprintln(w.out, "Going to sleep.")
		return false

	case "help":
		fmt.Fprintln(w.out, wakeHelp)
		return true

	case "watch":
		w.watch(ctx, arg)
		return true

	case "unwatch":
		w.session.Stop()
		fmt.Fprintln(w.out, "Stopped watching.")
		return true

	case "status":
		fmt.Fprintf(w.out, "State: %s\nTarget: %s\nFiles: %d\nPending recall: %d\nLog: %s\n",
			w.session.State(), w.session.Target(), len(w.session.Tree()), w.session.PendingRecall(), w.rt.log.Path())
		return true

	case "history":
		w.history(arg)
		return true

	case "forget":
		w.engine.Window().Reset()
		fmt.Fprintln(w.out, "Conversation window cleared.")
		return true

	case "recall":
		w.recall(ctx, arg)
		return true
	}

	if path, prompt, ok := engine.ParseImageCommand(line); ok {
		fmt.Fprintf(w.out, "[Analyzing %s...]\n", path)
		analysis, err := w.engine.Look(ctx, path, prompt)
		if err != nil {
			w.report(err)
			return true
		}
		fmt.Fprintf(w.out, "APEIRON (vision): %s\n", analysis)
		return true
	}

	fmt.Fprint(w.out, "APEIRON: ")
	_, err := w.engine.Respond(ctx, line, func(chunk string) {
		fmt.Fprint(w.out, chunk)
	})
	fmt.Fprintln(w.out)
	if err != nil {
		w.report(err)
	}
	return true
}

func (w *wakeLoop) watch(ctx context.Context, target string) {
	if target == "" {
		fmt.Fprintln(w.out, "Usage: watch <path>")
		return
	}
	if err := w.session.Watch(ctx, target); err != nil {
		w.report(err)
		return
	}
	fmt.Fprintf(w.out, "Watching %s (%d files indexed).\n", w.session.Target(), len(w.session.Tree()))
}

func (w *wakeLoop) recall(ctx context.Context, query string) {
	if query == "" {
		fmt.Fprintln(w.out, "Usage: recall <query>")
		return
	}
	recs, err := w.recaller.Recall(ctx, query)
	if err != nil {
		w.report(err)
		return
	}
	w.session.Remember(w.recaller.MaxSnippetChars(), recs...)
	fmt.Fprintf(w.out, "Recalled %d memories; they will inform the next answer.\n", len(recs))
}

func (w *wakeLoop) history(arg string) {
	n := 10
	if arg != "" {
		v, err := strconv.Atoi(arg)
		if err != nil || v < 1 {
			fmt.Fprintln(w.out, "Usage: history [n]")
			return
		}
		n = v
	}
	entries, err := w.rt.log.Recent(n)
	if err != nil {
		w.report(err)
		return
	}
	if len(entries) == 0 {
		fmt.Fprintln(w.out, "No logged turns yet.")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w.out, "[%s] %s: %s\n", e.Timestamp, e.Role, e.Content)
	}
}

func (w *wakeLoop) report(err error) {
	switch {
	case errors.Is(err, memory.ErrPathInvalid):
		fmt.Fprintf(w.out, "[Path error] %v\n", err)
	case errors.Is(err, memory.ErrStoreUnavailable):
		fmt.Fprintf(w.out, "[Memory unavailable] %v\n", err)
	case errors.Is(err, engine.ErrNoVision):
		fmt.Fprintln(w.out, "[No vision model configured]")
	default:
		fmt.Fprintf(w.out, "[Error] %v\n", err)
	}
}
