// Package commands parses control lines from any host and applies them to the
// session controller, the filter registry, and the credential store.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/neoclaw-ai/geostream/internal/credentials"
	"github.com/neoclaw-ai/geostream/internal/geo"
	"github.com/neoclaw-ai/geostream/internal/runtime"
	"github.com/neoclaw-ai/geostream/internal/session"
)

const helpText = `Commands:
  1 | start            start streaming (any non-zero number starts)
  0 | stop             stop streaming
  bang | toggle        start when idle, stop when running
  location a b c d     add box sw-lon sw-lat ne-lon ne-lat (no args clears)
  locations            list boxes
  clear                remove every box
  set ATTR VALUE       set consumer_key, consumer_secret, access_token, access_secret
  status, help`

const nextStartNote = "applies on next start"

// Vocabulary lists the command words the handler recognises, for completion.
var Vocabulary = []string{
	"start", "stop", "bang", "toggle",
	"location", "locations", "clear",
	"set", "consumer_key", "consumer_secret", "access_token", "access_secret",
	"status", "help",
}

var _ runtime.Handler = (*Handler)(nil)

// Controller is the lifecycle surface driven by control commands.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Toggle(ctx context.Context) error
	SetControl(ctx context.Context, v int) error
	Status() session.Status
}

// Handler dispatches control commands.
type Handler struct {
	ctrl    Controller
	filters *geo.Registry
	creds   *credentials.Store
}

// New creates a control command handler.
func New(ctrl Controller, filters *geo.Registry, creds *credentials.Store) *Handler {
	return &Handler{ctrl: ctrl, filters: filters, creds: creds}
}

// HandleMessage implements runtime.Handler. Unknown input gets a hint.
func (h *Handler) HandleMessage(ctx context.Context, w runtime.ResponseWriter, msg *runtime.Message) error {
	if msg == nil {
		return errors.New("message is required")
	}
	handled, err := h.Handle(ctx, msg.Text, w)
	if err != nil || handled {
		return err
	}
	return w.WriteMessage(ctx, "Unknown command. Type help.")
}

// Handle executes one control line and reports whether it was recognised.
func (h *Handler) Handle(ctx context.Context, line string, w runtime.ResponseWriter) (handled bool, err error) {
	if w == nil {
		return false, errors.New("response writer is required")
	}
	tokens, err := shlex.Split(line)
	if err != nil {
		return true, fmt.Errorf("parse command: %w", err)
	}
	if len(tokens) == 0 {
		return false, nil
	}

	head := normalize(tokens[0])
	args := tokens[1:]

	if v, convErr := strconv.Atoi(head); convErr == nil && len(args) == 0 {
		return true, h.handleControl(ctx, w, v)
	}

	switch head {
	case "help", "commands":
		return true, w.WriteMessage(ctx, helpText)
	case "start":
		return true, h.handleControl(ctx, w, 1)
	case "stop":
		return true, h.handleControl(ctx, w, 0)
	case "bang", "toggle":
		return true, h.handleToggle(ctx, w)
	case "location", "locationfilter":
		return true, h.handleLocation(ctx, w, args)
	case "locations":
		return true, h.handleLocations(ctx, w)
	case "clear":
		return true, h.handleLocation(ctx, w, nil)
	case "status":
		return true, h.handleStatus(ctx, w)
	case "set":
		if len(args) != 2 {
			return true, w.WriteMessage(ctx, "Usage: set ATTR VALUE")
		}
		return true, h.handleSet(ctx, w, args[0], args[1])
	}

	if h.creds != nil && credentials.IsAttribute(head) {
		if len(args) != 1 {
			return true, w.WriteMessage(ctx, fmt.Sprintf("Usage: %s VALUE", tokens[0]))
		}
		return true, h.handleSet(ctx, w, head, args[0])
	}
	return false, nil
}

func (h *Handler) handleControl(ctx context.Context, w runtime.ResponseWriter, v int) error {
	if h.ctrl == nil {
		return errors.New("stream control is unavailable")
	}
	if err := h.ctrl.SetControl(ctx, v); err != nil {
		return err
	}
	return w.WriteMessage(ctx, "Stream "+h.ctrl.Status().State.String()+".")
}

func (h *Handler) handleToggle(ctx context.Context, w runtime.ResponseWriter) error {
	if h.ctrl == nil {
		return errors.New("stream control is unavailable")
	}
	if err := h.ctrl.Toggle(ctx); err != nil {
		return err
	}
	return w.WriteMessage(ctx, "Stream "+h.ctrl.Status().State.String()+".")
}

func (h *Handler) handleLocation(ctx context.Context, w runtime.ResponseWriter, args []string) error {
	if h.filters == nil {
		return errors.New("location filters are unavailable")
	}
	if len(args) == 0 {
		h.filters.AddLocation(nil)
		return w.WriteMessage(ctx, "Location filters cleared ("+nextStartNote+").")
	}
	if !h.filters.AddLocation(geo.ParseArgs(args)) {
		return w.WriteMessage(ctx, "Ignored: expected four numbers sw-lon sw-lat ne-lon ne-lat within range.")
	}
	return w.WriteMessage(ctx, fmt.Sprintf("Location added, %d box(es) (%s).", h.filters.Len(), nextStartNote))
}

func (h *Handler) handleLocations(ctx context.Context, w runtime.ResponseWriter) error {
	if h.filters == nil {
		return errors.New("location filters are unavailable")
	}
	boxes := h.filters.Snapshot()
	if len(boxes) == 0 {
		return w.WriteMessage(ctx, "No location filters.")
	}
	var b strings.Builder
	b.WriteString("Location filters:")
	for i, box := range boxes {
		_, _ = fmt.Fprintf(&b, "\n%d. %s", i+1, box)
	}
	return w.WriteMessage(ctx, b.String())
}

func (h *Handler) handleSet(ctx context.Context, w runtime.ResponseWriter, attr, value string) error {
	if h.creds == nil {
		return errors.New("credentials are unavailable")
	}
	if err := h.creds.Set(attr, value); err != nil {
		if errors.Is(err, credentials.ErrUnknownAttribute) {
			return w.WriteMessage(ctx, fmt.Sprintf("Unknown credential %q.", attr))
		}
		return err
	}
	return w.WriteMessage(ctx, fmt.Sprintf("Credential %s updated (%s).", attr, nextStartNote))
}

func (h *Handler) handleStatus(ctx context.Context, w runtime.ResponseWriter) error {
	if h.ctrl == nil {
		return errors.New("stream control is unavailable")
	}
	st := h.ctrl.Status()

	var b strings.Builder
	_, _ = fmt.Fprintf(&b, "State: %s", st.State)
	if !st.StartedAt.IsZero() {
		_, _ = fmt.Fprintf(&b, "\nRunning for: %s", time.Since(st.StartedAt).Truncate(time.Second))
		_, _ = fmt.Fprintf(&b, "\nLocations: %s", geo.JoinBoxes(st.Locations))
		_, _ = fmt.Fprintf(&b, "\nEmitted: %d, skipped: %d, buffered: %d/%d", st.Stats.Emitted, st.Stats.Skipped, st.Buffered, st.Capacity)
	}
	if h.filters != nil {
		_, _ = fmt.Fprintf(&b, "\nConfigured boxes: %d", h.filters.Len())
	}
	if h.creds != nil {
		_, _ = fmt.Fprintf(&b, "\nCredentials: %s", h.creds.Snapshot().Redacted())
	}
	if st.LastErr != nil {
		_, _ = fmt.Fprintf(&b, "\nLast error: %v", st.LastErr)
	}
	return w.WriteMessage(ctx, b.String())
}

func normalize(token string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(token)), "/")
}
