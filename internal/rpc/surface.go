// Package rpc exposes the Manager's operations to external callers (a
// chat-bot frontend, an admin CLI) as a single entry-point boundary: any
// error the manager raises that is not one of the declared domain errors
// is rewrapped into a generic InternalError so a caller never has to
// handle an unbounded error surface.
package rpc

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/semyonkozlov/teave-eventmanager/internal/event"
	"github.com/semyonkozlov/teave-eventmanager/internal/executor"
	"github.com/semyonkozlov/teave-eventmanager/internal/flow"
	"github.com/semyonkozlov/teave-eventmanager/internal/manager"
	"github.com/semyonkozlov/teave-eventmanager/internal/teaveerr"
)

// InternalError wraps any error that is not one of the manager's
// declared domain errors, so callers only ever need to special-case a
// known, closed set of error types.
type InternalError struct {
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error: %v", e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }

// declared reports whether err is one of the manager's documented
// domain errors, which callers are expected to match on directly.
func declared(err error) bool {
	switch {
	case teaveerr.IsUnknownTeavent(err),
		teaveerr.IsTeaventIsManaged(err),
		teaveerr.IsTeaventIsInFinalState(err),
		teaveerr.IsTeaventFromThePast(err),
		teaveerr.IsGuardFailure(err),
		teaveerr.IsEventDescriptionParsingError(err),
		teaveerr.IsTransportError(err):
		return true
	default:
		return false
	}
}

func rewrap(err error) error {
	if err == nil || declared(err) {
		return err
	}
	return &InternalError{Err: err}
}

// Surface is the single-writer entry point every external caller goes
// through to interact with the manager. Every call is tagged with a
// fresh request id so a caller's logs can be correlated with the
// manager's own transition logging.
type Surface struct {
	manager *manager.Manager
	exec    *executor.Executor
	log     *slog.Logger
}

// New returns a Surface over m, using exec for the Tasks diagnostic. A
// nil logger defaults to slog.Default().
func New(m *manager.Manager, exec *executor.Executor, log *slog.Logger) *Surface {
	if log == nil {
		log = slog.Default()
	}
	return &Surface{manager: m, exec: exec, log: log}
}

func (s *Surface) requestID() string {
	return uuid.NewString()
}

// ListTeavents returns every currently-managed event.
func (s *Surface) ListTeavents(ctx context.Context) ([]*event.Event, error) {
	reqID := s.requestID()
	events := s.manager.ListEvents()
	s.log.Debug("list_teavents", "request_id", reqID, "count", len(events))
	return events, nil
}

// GetTeavent looks up a single managed event by id.
func (s *Surface) GetTeavent(ctx context.Context, id string) (*event.Event, error) {
	reqID := s.requestID()
	e, err := s.manager.GetEvent(id)
	s.log.Debug("get_teavent", "request_id", reqID, "id", id, "err", err)
	return e, rewrap(err)
}

// ManageTeavent starts managing e.
func (s *Surface) ManageTeavent(ctx context.Context, e *event.Event) (*event.Event, error) {
	reqID := s.requestID()
	got, err := s.manager.ManageTeavent(ctx, e)
	s.log.Debug("manage_teavent", "request_id", reqID, "id", e.ID, "err", err)
	return got, rewrap(err)
}

// UserAction dispatches a user-initiated trigger against a managed event,
// returning its post-transition snapshot. force is an admin-only override
// that bypasses guards restricting ordinary user-initiated flow.
func (s *Surface) UserAction(ctx context.Context, teaventID string, trigger flow.Trigger, userID string, force bool) (*event.Event, error) {
	reqID := s.requestID()
	got, err := s.manager.HandleUserAction(ctx, teaventID, trigger, userID, force)
	s.log.Debug("user_action", "request_id", reqID, "id", teaventID, "trigger", trigger, "user", userID, "force", force, "err", err)
	return got, rewrap(err)
}

// Tasks returns a diagnostic snapshot of every pending scheduled task, or
// only those in groupID if non-empty.
func (s *Surface) Tasks(ctx context.Context, groupID string) []executor.TaskInfo {
	reqID := s.requestID()
	tasks := s.exec.Tasks(groupID)
	s.log.Debug("tasks", "request_id", reqID, "group", groupID, "count", len(tasks))
	return tasks
}
