package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/ff-monheim/ams-console/internal/forms"
	"github.com/ff-monheim/ams-console/internal/notify"
	"github.com/ff-monheim/ams-console/internal/policy"
	"github.com/ff-monheim/ams-console/internal/resources"
	"github.com/ff-monheim/ams-console/internal/session"
)

const (
	msgLoginFailed     = "Anmeldung fehlgeschlagen"
	msgFormNotOpen     = "Das Formular ist nicht mehr geöffnet"
	msgDeleteUnconfirm = "Löschen wurde nicht bestätigt. Bitte versuchen Sie es erneut."
)

var toasts = notify.SessionNotifier{}

type homeCard struct {
	Title  string
	Path   string
	Count  int
	Failed bool
}

type homeContent struct {
	Cards []homeCard
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.renderTimeout)
	defer cancel()

	cards := make([]homeCard, len(s.entities))
	var g errgroup.Group
	for i, e := range s.entities {
		meta := e.Meta()
		cards[i] = homeCard{Title: meta.Title, Path: meta.Path}
		g.Go(func() error {
			n, err := e.Count(ctx)
			if err != nil {
				s.logger.Debug().Err(err).Str("resource", meta.Name).Msg("count unavailable")
				cards[i].Failed = true
				return nil
			}
			cards[i].Count = n
			return nil
		})
	}
	_ = g.Wait()

	s.render(w, r, http.StatusOK, pageHome, s.newPage(r, "Home", homeContent{Cards: cards}))
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if err := s.provider.HandleCallback(w, r); err != nil {
		s.logger.Warn().Err(err).Msg("login callback rejected")
		toasts.Notify(r.Context(), notify.Error(msgLoginFailed))
		redirect(w, r, "/")
	}
}

// entityHandler serves the pages of one entity.
type entityHandler struct {
	server *Server
	entity resources.Entity
}

type deleteDialog struct {
	Label  string
	Action string
	Token  string
}

type listContent struct {
	List   resources.ListView
	Form   *resources.FormView
	Delete *deleteDialog
}

func (h *entityHandler) routes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/neu", h.openCreate)
	r.Get("/{id}/bearbeiten", h.openEdit)
	r.Post("/formular", h.submit)
	r.Get("/formular/schliessen", h.closeForm)
	r.Post("/formular/schliessen", h.closeForm)
	r.Get("/{id}/loeschen", h.confirmDelete)
	r.Post("/{id}/loeschen", h.delete)
}

func (h *entityHandler) meta() resources.Meta {
	return h.entity.Meta()
}

// renderList renders the list page, with the session's form sheet if open
// and the delete dialog if given.
func (h *entityHandler) renderList(w http.ResponseWriter, r *http.Request, status int, form *resources.FormView, dialog *deleteDialog) {
	ctx, cancel := context.WithTimeout(r.Context(), h.server.renderTimeout)
	defer cancel()

	content := listContent{
		List:   h.entity.List(ctx, r.URL.Query(), h.server.guard.CanWrite()),
		Form:   form,
		Delete: dialog,
	}
	if content.Form == nil {
		view := h.entity.Form(sessionID(r))
		content.Form = &view
	}
	h.server.render(w, r, status, pageList, h.server.newPage(r, h.meta().Title, content))
}

func (h *entityHandler) list(w http.ResponseWriter, r *http.Request) {
	h.renderList(w, r, http.StatusOK, nil, nil)
}

func (h *entityHandler) openCreate(w http.ResponseWriter, r *http.Request) {
	h.opened(w, r, h.entity.OpenCreate(sessionID(r)))
}

func (h *entityHandler) openEdit(w http.ResponseWriter, r *http.Request) {
	h.opened(w, r, h.entity.OpenEdit(r.Context(), sessionID(r), chi.URLParam(r, "id")))
}

// opened redirects back to the list, where an open form is shown. An
// already open form stays as it is.
func (h *entityHandler) opened(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil && !errors.Is(err, forms.ErrInvalidTransition) {
		toasts.Notify(r.Context(), notify.Error(resources.ErrorMessage(err)))
	}
	redirect(w, r, h.meta().Path)
}

func (h *entityHandler) submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.server.renderError(w, r, http.StatusBadRequest, "Die Formulardaten konnten nicht gelesen werden.")
		return
	}

	view, err := h.entity.Submit(r.Context(), sessionID(r), r.PostForm)
	switch {
	case err == nil:
		redirect(w, r, h.meta().Path)
	case errors.Is(err, forms.ErrValidation):
		h.renderList(w, r, http.StatusUnprocessableEntity, &view, nil)
	case errors.Is(err, forms.ErrInvalidTransition):
		toasts.Notify(r.Context(), notify.Error(msgFormNotOpen))
		redirect(w, r, h.meta().Path)
	default:
		// The form stays open with the draft; the failure is already flashed.
		redirect(w, r, h.meta().Path)
	}
}

func (h *entityHandler) closeForm(w http.ResponseWriter, r *http.Request) {
	_ = h.entity.CloseForm(sessionID(r))
	redirect(w, r, h.meta().Path)
}

func (h *entityHandler) confirmDelete(w http.ResponseWriter, r *http.Request) {
	meta := h.meta()
	if !h.server.guard.CanWrite() {
		toasts.Notify(r.Context(), notify.Error(resources.ErrorMessage(policy.ErrReadOnly)))
		redirect(w, r, meta.Path)
		return
	}

	id := chi.URLParam(r, "id")
	label, err := h.entity.Label(r.Context(), id)
	if err != nil {
		toasts.Notify(r.Context(), notify.Error(resources.ErrorMessage(err)))
		redirect(w, r, meta.Path)
		return
	}

	token := h.server.confirmations.Issue(h.target(r, id))
	h.renderList(w, r, http.StatusOK, nil, &deleteDialog{
		Label:  label,
		Action: meta.DeleteURL(id),
		Token:  token,
	})
}

func (h *entityHandler) delete(w http.ResponseWriter, r *http.Request) {
	meta := h.meta()
	if err := r.ParseForm(); err != nil {
		h.server.renderError(w, r, http.StatusBadRequest, "Die Formulardaten konnten nicht gelesen werden.")
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.server.confirmations.Consume(r.PostForm, h.target(r, id)); err != nil {
		h.server.logger.Warn().Err(err).Str("resource", meta.Name).Str("id", id).Msg("delete not confirmed")
		toasts.Notify(r.Context(), notify.Error(msgDeleteUnconfirm))
		redirect(w, r, meta.Path)
		return
	}

	// Delete flashes its own outcome.
	_ = h.entity.Delete(r.Context(), id)
	redirect(w, r, meta.Path)
}

func (h *entityHandler) target(r *http.Request, id string) policy.Target {
	return policy.Target{SessionID: sessionID(r), Resource: h.meta().Name, ID: id}
}

func sessionID(r *http.Request) string {
	if sess := session.FromContext(r.Context()); sess != nil {
		return sess.ID()
	}
	return ""
}
