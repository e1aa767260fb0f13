package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"lesson-quiz-service/internal/config"
	"lesson-quiz-service/internal/domain"
	"lesson-quiz-service/internal/errors"
	"lesson-quiz-service/internal/infra/httprepo"
	"lesson-quiz-service/internal/question"
	"lesson-quiz-service/internal/session"
)

// NewPlayCmd runs a quiz session in the terminal against a running server.
func NewPlayCmd() *cobra.Command {
	var (
		serverURL string
		lessonID  string
		duration  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Take a lesson quiz in the terminal",
		Long: `Take a lesson quiz in the terminal.

Commands:
  <n> <k>      select (or toggle, for multi-select) option k of question n
  <n> <text>   answer free-text question n
  submit       submit the answers
  retake       start a new attempt once the quiz is completed
  show         print the quiz again
  quit         leave`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if lessonID == "" {
				return fmt.Errorf("--lesson is required")
			}
			c := session.New(session.Config{
				Repository: httprepo.New(serverURL, nil),
				LessonID:   lessonID,
				Duration:   duration,
				Logger:     newLogger(quietConfig(), cmd.ErrOrStderr()),
			})
			defer c.Close()
			return play(cmd.Context(), c, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "quiz server base URL")
	cmd.Flags().StringVar(&lessonID, "lesson", "", "lesson whose quiz to take")
	cmd.Flags().DurationVar(&duration, "duration", session.DefaultDuration, "countdown for each attempt")
	return cmd
}

func play(ctx context.Context, c *session.Controller, in io.Reader, out io.Writer) error {
	updates, cancel, err := c.Subscribe()
	if err != nil {
		return err
	}
	defer cancel()
	if err := c.Start(ctx); err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	var last session.Snapshot
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			if changed(last, snap) {
				render(out, snap)
			} else if warnRemaining(snap.Remaining) && snap.Status == session.StatusReady {
				fmt.Fprintf(out, "%ds left\n", snap.Remaining)
			}
			last = snap
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			cmd, err := parseCommand(line)
			if err != nil {
				fmt.Fprintln(out, err)
				continue
			}
			if cmd.kind == cmdQuit {
				return nil
			}
			if err := apply(c, last, cmd); err != nil {
				fmt.Fprintln(out, "!", errors.Convert(err).Message)
				continue
			}
			if cmd.kind == cmdShow {
				render(out, last)
			}
		}
	}
}

type cmdKind int

const (
	cmdAnswer cmdKind = iota
	cmdSubmit
	cmdRetake
	cmdShow
	cmdQuit
)

type command struct {
	kind     cmdKind
	question int
	arg      string
}

func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	switch strings.ToLower(line) {
	case "submit":
		return command{kind: cmdSubmit}, nil
	case "retake":
		return command{kind: cmdRetake}, nil
	case "show", "":
		return command{kind: cmdShow}, nil
	case "quit", "exit", "q":
		return command{kind: cmdQuit}, nil
	}

	head, rest, _ := strings.Cut(line, " ")
	n, err := strconv.Atoi(head)
	if err != nil || n < 1 {
		return command{}, fmt.Errorf("unknown command %q", line)
	}
	return command{kind: cmdAnswer, question: n, arg: strings.TrimSpace(rest)}, nil
}

func apply(c *session.Controller, snap session.Snapshot, cmd command) error {
	switch cmd.kind {
	case cmdSubmit:
		return c.Submit()
	case cmdRetake:
		return c.Retake()
	case cmdShow:
		return nil
	}

	if cmd.question > len(snap.Questions) {
		return domain.ErrUnknownQuestion
	}
	q := snap.Questions[cmd.question-1]
	if q.Mode == question.ModeFreeText {
		return c.Edit(q.ID, cmd.arg)
	}

	k, err := strconv.Atoi(cmd.arg)
	if err != nil || k < 1 || k > len(q.Options) {
		return domain.ErrUnknownOption
	}
	if q.Mode == question.ModeMulti {
		return c.Toggle(q.ID, q.Options[k-1])
	}
	return c.Select(q.ID, q.Options[k-1])
}

// changed reports whether snap differs from prev in more than the countdown.
func changed(prev, snap session.Snapshot) bool {
	if prev.Status != snap.Status || prev.Submitted != snap.Submitted || prev.Error != snap.Error {
		return true
	}
	if len(prev.Attempts) != len(snap.Attempts) || len(prev.Answers) != len(snap.Answers) {
		return true
	}
	for id, v := range snap.Answers {
		if !prev.Answers[id].Equal(v) {
			return true
		}
	}
	return false
}

func warnRemaining(s int) bool {
	return s > 0 && (s <= 10 || s%60 == 0)
}

func render(w io.Writer, snap session.Snapshot) {
	switch snap.Status {
	case session.StatusIdle, session.StatusLoading:
		fmt.Fprintln(w, "loading quiz...")
		return
	case session.StatusError:
		fmt.Fprintf(w, "error: %s\n", snap.Error)
		if snap.Submitted || snap.Questions == nil {
			fmt.Fprintln(w, "type retake to try again")
			return
		}
		fmt.Fprintln(w, "type submit to try again")
	case session.StatusSubmitting:
		fmt.Fprintln(w, "submitting...")
		return
	}

	fmt.Fprintf(w, "\n== %s (%ds left) ==\n", snap.QuizID, snap.Remaining)
	for _, q := range snap.Questions {
		mark := ""
		if q.Feedback != nil {
			mark = " [wrong]"
			if q.Feedback.Correct {
				mark = " [correct]"
			}
		}
		fmt.Fprintf(w, "%d. %s%s\n", q.Number, q.Prompt, mark)
		if q.Mode == question.ModeFreeText {
			fmt.Fprintf(w, "   > %s\n", q.Selection.Text())
			continue
		}
		for i, o := range q.Options {
			box := "( )"
			if q.Mode == question.ModeMulti {
				box = "[ ]"
			}
			if q.Selection.Contains(o) {
				box = box[:1] + "x" + box[2:]
			}
			hint := ""
			if q.Feedback != nil && q.Feedback.Options[i].Correct {
				hint = "  <- correct"
			}
			fmt.Fprintf(w, "   %s %d) %s%s\n", box, i+1, o, hint)
		}
	}

	if snap.Status == session.StatusCompleted && snap.Score != nil {
		how := "submitted"
		if snap.Trigger == session.TriggerTimeout {
			how = "time is up"
		}
		fmt.Fprintf(w, "%s: score %d%%\n", how, *snap.Score)
		for i, a := range snap.Attempts {
			fmt.Fprintf(w, "  attempt %d: %d%% at %s\n", len(snap.Attempts)-i, a.Score, a.CreatedAt.Local().Format(time.Kitchen))
		}
		fmt.Fprintln(w, "type retake to try again")
		return
	}
	if snap.CanSubmit {
		fmt.Fprintln(w, "all answered, type submit")
	}
}

func quietConfig() config.Config {
	cfg := config.Default()
	cfg.Log.Level = "warn"
	cfg.Log.Format = "text"
	return cfg
}
