package cmd

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/killallgit/grapher/pkg/chat"
	"github.com/killallgit/grapher/pkg/client"
	"github.com/killallgit/grapher/pkg/config"
	"github.com/killallgit/grapher/pkg/controllers"
	"github.com/killallgit/grapher/pkg/logger"
	"github.com/killallgit/grapher/pkg/process"
	"github.com/killallgit/grapher/pkg/render"
	"github.com/killallgit/grapher/pkg/session"
)

// App wires the query client, session store and controller for one run
type App struct {
	Config     *config.Config
	Client     *client.Client
	Sessions   *session.Store
	Controller *controllers.ChatController
	Printer    *render.Printer
	log        *logger.ComponentLogger

	sessionsFile string
}

// NewApp builds an App writing to out. A non-empty sessionID continues a
// conversation the query service already knows.
func NewApp(cfg *config.Config, out io.Writer, sessionID string) (*App, error) {
	app := &App{
		Config:   cfg,
		Client:   client.NewClientWithTimeout(cfg.API.BaseURL, cfg.API.HeaderTimeout),
		Sessions: session.NewStore(),
		Printer:  render.NewPrinter(out, cfg.ShowThoughts),
		log:      logger.WithComponent("app"),
	}

	if cfg.Sessions.Persist && cfg.Sessions.File != "" {
		app.sessionsFile = cfg.Sessions.File
		if !filepath.IsAbs(app.sessionsFile) {
			app.sessionsFile = config.BuildSettingsPath(app.sessionsFile)
		}
		store, err := session.Open(app.sessionsFile)
		if err != nil {
			return nil, err
		}
		app.Sessions = store
	}

	sessionID = strings.TrimSpace(sessionID)
	if sessionID != "" {
		if _, err := app.Sessions.Adopt(sessionID); err != nil {
			return nil, err
		}
	}

	app.Controller = controllers.NewChatController(app.Client,
		controllers.WithProject(cfg.Project),
		controllers.WithSession(sessionID, chat.NewTranscript()),
		controllers.WithIdentity(app.Sessions.Establish),
	)
	app.Controller.Subscribe(app.Printer.Observe)
	app.Controller.Subscribe(app.persist)

	app.log.Debug("Application ready", "api", app.Client.BaseURL(), "project", cfg.Project)
	return app, nil
}

// Ask sends one question and blocks until the answer settles
func (a *App) Ask(ctx context.Context, question string) error {
	return a.Controller.Send(ctx, question)
}

// persist keeps the session store in step with settled conversations
func (a *App) persist(u controllers.Update) {
	if u.SessionID == "" {
		return
	}
	if !u.State.IsTerminal() && !(u.State == process.StateIdle && u.Transcript.IsEmpty()) {
		return
	}
	if err := a.Sessions.SaveTranscript(u.SessionID, u.Transcript); err != nil {
		a.log.Warn("Failed to save transcript", "session", u.SessionID, "error", err)
		return
	}
	if a.sessionsFile == "" {
		return
	}
	if err := a.Sessions.Save(a.sessionsFile); err != nil {
		a.log.Warn("Failed to write sessions", "file", a.sessionsFile, "error", err)
	}
}

// ContinueLatest reopens the most recently updated active conversation.
// It reports false when there is none.
func (a *App) ContinueLatest() (bool, error) {
	active := a.Sessions.Active()
	if len(active) == 0 {
		return false, nil
	}
	return true, a.OpenSession(active[0].ID)
}

// OpenSession switches the controller to a stored conversation
func (a *App) OpenSession(id string) error {
	t, err := a.Sessions.Transcript(id)
	if err != nil {
		return err
	}
	if err := a.Controller.Load(id, t); err != nil {
		return err
	}
	a.Printer.Transcript(t)
	return nil
}

// NewSession starts a conversation that is established on its first message
func (a *App) NewSession() error {
	return a.Controller.Load("", chat.NewTranscript())
}
