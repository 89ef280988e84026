package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/formsync/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/formsync/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/formsync/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/formsync/internal/adapters/driving/tui/views/documents"
	"github.com/custodia-labs/formsync/internal/adapters/driving/tui/views/editor"
	"github.com/custodia-labs/formsync/internal/adapters/driving/tui/views/viewer"
	"github.com/custodia-labs/formsync/internal/core/ports/driving"
	"github.com/custodia-labs/formsync/internal/logger"
)

// openTimeout bounds resolving a document's permission tier.
const openTimeout = 20 * time.Second

// App is the main TUI application following the Elm architecture.
// It implements tea.Model for use with Bubbletea.
type App struct {
	// ports provides access to core services via driving ports.
	ports *Ports

	// ctx is the context for cancellation.
	ctx context.Context

	styles *styles.Styles
	keymap *keymap.KeyMap

	documentsView *documents.View
	editorView    *editor.View
	viewerView    *viewer.View

	// handle is the open document, if any.
	handle driving.DocumentHandle

	// initialDocument is opened on start. Closing it quits the app.
	initialDocument string

	// opening is the document ID an Open call is in flight for.
	opening string

	// currentView tracks which view is active.
	currentView messages.ViewType

	// err holds the last error that occurred.
	err error

	// exitErr is the error that ended the program, returned by Run.
	exitErr error

	// width and height are terminal dimensions.
	width  int
	height int

	// ready indicates if the app has initialised.
	ready bool
}

// Ensure App implements tea.Model.
var _ tea.Model = (*App)(nil)

// NewApp creates a new TUI application with the given ports.
func NewApp(ports *Ports) (*App, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("creating app: %w", err)
	}

	s := styles.DefaultStyles()
	km := keymap.DefaultKeyMap()

	return &App{
		ports:         ports,
		ctx:           context.Background(),
		styles:        s,
		keymap:        km,
		documentsView: documents.NewView(s, ports.Directory),
		editorView:    editor.NewView(s, km),
		viewerView:    viewer.NewView(s, km),
		currentView:   messages.ViewDocuments,
	}, nil
}

// WithContext sets the context for the app.
func (a *App) WithContext(ctx context.Context) *App {
	a.ctx = ctx
	return a
}

// WithDocument opens the given document on start instead of the list.
func (a *App) WithDocument(documentID string) *App {
	a.initialDocument = documentID
	return a
}

// Init implements tea.Model.
// It runs initial commands when the program starts.
func (a *App) Init() tea.Cmd {
	title := tea.SetWindowTitle("formsync")
	if a.initialDocument != "" {
		return tea.Batch(title, a.open(a.initialDocument))
	}
	if a.ports.Directory == nil {
		a.err = ErrNothingToShow
		a.exitErr = ErrNothingToShow
		return tea.Quit
	}
	return tea.Batch(title, a.documentsView.Init())
}

// Update implements tea.Model.
// It handles messages and updates the model state.
//
//nolint:gocyclo // central message handler
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.SetDimensions(msg.Width, msg.Height)
		return a, nil

	case tea.BlurMsg:
		// Leaving the terminal counts as leaving the form.
		if a.currentView == messages.ViewEditor {
			a.editorView.Hide()
		}
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)

	case messages.DocumentSelected:
		return a, a.open(msg.DocumentID)

	case messages.DocumentOpened:
		return a.opened(msg)

	case messages.SessionUpdated:
		session, ok := a.handle.(driving.CollabSession)
		if !ok || session.DocumentID() != msg.DocumentID || a.currentView != messages.ViewEditor {
			return a, nil
		}
		a.editorView, cmd = a.editorView.Update(msg)
		return a, tea.Batch(cmd, waitForUpdate(session))

	case messages.SaveCompleted:
		a.editorView, cmd = a.editorView.Update(msg)
		return a, cmd

	case messages.DocumentClosed:
		a.closeHandle()
		if a.initialDocument != "" || a.ports.Directory == nil {
			return a, tea.Quit
		}
		a.currentView = messages.ViewDocuments
		return a, a.documentsView.Load()

	case messages.DocumentsLoaded:
		a.documentsView, cmd = a.documentsView.Update(msg)
		return a, cmd

	case messages.ErrorOccurred:
		a.err = msg.Err
		if a.currentView == messages.ViewDocuments {
			a.documentsView, cmd = a.documentsView.Update(msg)
		}
		return a, cmd

	case messages.Quit:
		a.closeHandle()
		return a, tea.Quit
	}

	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	// Global quit with ctrl+c
	if msg.String() == "ctrl+c" {
		a.closeHandle()
		return a, tea.Quit
	}

	if a.currentView == messages.ViewEditor && a.editorView.Editing() {
		a.editorView, cmd = a.editorView.Update(msg)
		return a, cmd
	}

	if keymap.Matches(msg.String(), a.keymap.Quit) {
		a.closeHandle()
		return a, tea.Quit
	}

	switch a.currentView {
	case messages.ViewDocuments:
		a.documentsView, cmd = a.documentsView.Update(msg)
	case messages.ViewEditor:
		a.editorView, cmd = a.editorView.Update(msg)
	case messages.ViewViewer:
		a.viewerView, cmd = a.viewerView.Update(msg)
	}
	return a, cmd
}

// open resolves a document in the background.
func (a *App) open(documentID string) tea.Cmd {
	if a.opening != "" {
		return nil
	}
	a.opening = documentID
	ctx := a.ctx
	collab := a.ports.Collab
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, openTimeout)
		defer cancel()
		handle, err := collab.Open(ctx, documentID)
		return messages.DocumentOpened{DocumentID: documentID, Handle: handle, Err: err}
	}
}

func (a *App) opened(msg messages.DocumentOpened) (tea.Model, tea.Cmd) {
	if msg.DocumentID != a.opening {
		// Superseded; release what arrived late.
		if msg.Handle != nil {
			_ = msg.Handle.Close()
		}
		return a, nil
	}
	a.opening = ""

	if msg.Err != nil {
		logger.Warn("open %s: %v", msg.DocumentID, msg.Err)
		a.err = msg.Err
		if a.initialDocument != "" || a.ports.Directory == nil {
			a.exitErr = msg.Err
			return a, tea.Quit
		}
		a.currentView = messages.ViewDocuments
		var cmd tea.Cmd
		a.documentsView, cmd = a.documentsView.Update(messages.ErrorOccurred{Err: msg.Err})
		return a, cmd
	}

	a.closeHandle()
	a.handle = msg.Handle
	a.err = nil

	if session, ok := msg.Handle.(driving.CollabSession); ok && msg.Handle.CanEdit() {
		a.editorView.SetSession(session)
		a.currentView = messages.ViewEditor
		return a, waitForUpdate(session)
	}

	a.viewerView.SetDocument(msg.Handle.Content())
	a.currentView = messages.ViewViewer
	return a, nil
}

// waitForUpdate turns the session's next change signal into a message.
func waitForUpdate(session driving.CollabSession) tea.Cmd {
	updates := session.Updates()
	id := session.DocumentID()
	return func() tea.Msg {
		if _, ok := <-updates; !ok {
			return nil
		}
		return messages.SessionUpdated{DocumentID: id}
	}
}

func (a *App) closeHandle() {
	if a.handle == nil {
		return
	}
	if err := a.handle.Close(); err != nil {
		logger.Warn("close %s: %v", a.handle.DocumentID(), err)
	}
	a.handle = nil
}

// View implements tea.Model.
// It renders the current view as a string.
func (a *App) View() string {
	if !a.ready {
		return "Initialising..."
	}
	if a.opening != "" && a.handle == nil {
		return a.styles.Muted.Render(fmt.Sprintf("Opening %s...", a.opening))
	}

	switch a.currentView {
	case messages.ViewEditor:
		return a.editorView.View()
	case messages.ViewViewer:
		return a.viewerView.View()
	default:
		return a.documentsView.View()
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen(), tea.WithReportFocus(), tea.WithContext(a.ctx))
	_, err := p.Run()
	a.closeHandle()
	if err != nil {
		return err
	}
	return a.exitErr
}

// CurrentView returns the current view type.
func (a *App) CurrentView() messages.ViewType {
	return a.currentView
}

// Handle returns the open document handle, if any.
func (a *App) Handle() driving.DocumentHandle {
	return a.handle
}

// Err returns the last error that occurred.
func (a *App) Err() error {
	return a.err
}

// Ready returns whether the app has been initialised.
func (a *App) Ready() bool {
	return a.ready
}

// SetDimensions sets the terminal dimensions.
func (a *App) SetDimensions(width, height int) {
	a.width = width
	a.height = height
	a.ready = true
	a.documentsView.SetDimensions(width, height)
	a.editorView.SetDimensions(width, height)
	a.viewerView.SetDimensions(width, height)
}
