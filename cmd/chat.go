package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/killallgit/grapher/pkg/chat"
	"github.com/killallgit/grapher/pkg/config"
	"github.com/killallgit/grapher/pkg/controllers"
	"github.com/killallgit/grapher/pkg/session"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Ask questions interactively. Ctrl-C stops the answer being streamed,
or exits when nothing is streaming.

Commands:
  /clear            clear the conversation (asks for confirmation)
  /new              start a new conversation
  /sessions         list conversations
  /open <id>        switch to a conversation
  /search <text>    find conversations by title or last message
  /project <id>     change the project
  /quit             exit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := NewApp(config.Get(), cmd.OutOrStdout(), "")
		if err != nil {
			return err
		}

		if resume, _ := cmd.Flags().GetBool("continue"); resume {
			found, err := app.ContinueLatest()
			if err != nil {
				return err
			}
			if !found {
				app.Printer.Info("No previous conversation, starting a new one")
			}
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, os.Interrupt)
		defer signal.Stop(sigs)

		go func() {
			for {
				select {
				case <-sigs:
					if app.Controller.IsStreaming() {
						app.Controller.Stop()
						continue
					}
					cancel()
					return
				case <-ctx.Done():
					return
				}
			}
		}()

		return newSession(app, cmd.InOrStdin(), cmd.OutOrStdout()).run(ctx)
	},
}

func init() {
	chatCmd.Flags().Bool("continue", false, "continue the most recent conversation")
	rootCmd.AddCommand(chatCmd)
}

// chatSession is the read-eval loop of the chat command
type chatSession struct {
	app        *App
	in         io.Reader
	out        io.Writer
	confirming bool
}

func newSession(app *App, in io.Reader, out io.Writer) *chatSession {
	return &chatSession{app: app, in: in, out: out}
}

func (s *chatSession) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(s.out, s.app.Printer.Prompt(s.app.Controller.Project()))

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(s.out)
				return nil
			}
			line = l
		}

		if quit := s.handle(ctx, strings.TrimSpace(line)); quit {
			return nil
		}
	}
}

// handle processes one input line and reports whether to exit
func (s *chatSession) handle(ctx context.Context, line string) bool {
	p := s.app.Printer
	c := s.app.Controller

	if s.confirming {
		s.confirming = false
		if answer := strings.ToLower(line); answer == "y" || answer == "yes" {
			if err := c.ConfirmClear(); err != nil {
				p.Error("Cannot clear: %v", err)
				return false
			}
			p.Info("Conversation cleared")
			return false
		}
		c.CancelClear()
		p.Info("Kept the conversation")
		return false
	}

	command, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch command {
	case "":
		return false

	case "/quit", "/exit":
		return true

	case "/clear":
		if !c.RequestClear() {
			p.Info("Nothing to clear")
			return false
		}
		s.confirming = true
		p.Warn("Clear the conversation? [y/N]")

	case "/new":
		if err := s.app.NewSession(); err != nil {
			p.Error("Cannot start a new conversation: %v", err)
			return false
		}
		p.Info("Started a new conversation")

	case "/sessions":
		s.listSessions(s.app.Sessions.Active())

	case "/search":
		s.listSessions(s.app.Sessions.Search(arg))

	case "/open":
		if err := s.app.OpenSession(arg); err != nil {
			p.Error("Cannot open %q: %v", arg, err)
		}

	case "/project":
		if arg == "" {
			p.Info("Project: %s", c.Project())
			return false
		}
		c.SetProject(arg)
		p.Info("Project set to %s", arg)

	default:
		if strings.HasPrefix(command, "/") {
			p.Warn("Unknown command %s", command)
			return false
		}
		s.ask(ctx, line)
	}
	return false
}

func (s *chatSession) ask(ctx context.Context, question string) {
	err := s.app.Ask(ctx, question)
	switch {
	case err == nil:
	case errors.Is(err, controllers.ErrNoProject):
		s.app.Printer.Warn("No project selected, use /project <id>")
	case errors.Is(err, controllers.ErrBusy), errors.Is(err, chat.ErrEmptyQuestion):
		s.app.Printer.Warn("%v", err)
	default:
		// The failure is already shown in the transcript
		s.app.log.Error("Question failed", "error", err)
	}
}

func (s *chatSession) listSessions(sessions []session.Session) {
	if len(sessions) == 0 {
		s.app.Printer.Info("No conversations")
		return
	}
	current := s.app.Controller.SessionID()
	for _, sess := range sessions {
		marker := " "
		if sess.ID == current {
			marker = "*"
		}
		fmt.Fprintf(s.out, "%s %s  %s  %s\n", marker, sess.ID, sess.UpdatedAt.Format("Jan 2 15:04"), sess.Title)
	}
}
