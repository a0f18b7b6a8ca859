package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/ff-monheim/ams-console/internal/auth"
	"github.com/ff-monheim/ams-console/internal/session"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

const (
	pageHome  = "home"
	pageList  = "list"
	pageLogin = "login"
	pageError = "error"
)

// tmplCache maps a page name to the page parsed together with the layout.
type tmplCache map[string]*template.Template

func parseTemplates() (tmplCache, error) {
	cache := make(tmplCache)
	for _, name := range []string{pageHome, pageList, pageLogin, pageError} {
		t, err := template.New(name).ParseFS(templateFS, "templates/_base.gohtml", "templates/"+name+".gohtml")
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		cache[name] = t
	}
	return cache, nil
}

type navItem struct {
	Label  string
	Path   string
	Active bool
}

// page is the data every template receives.
type page struct {
	Title    string
	Nav      []navItem
	User     *auth.User
	LoginURL string
	ReadOnly bool
	Flashes  []session.Flash
	Content  any
}

func (s *Server) newPage(r *http.Request, title string, content any) page {
	p := page{
		Title:    title,
		LoginURL: loginURL(r),
		ReadOnly: !s.guard.CanWrite(),
		Content:  content,
	}
	if user, ok := auth.UserFromContext(r.Context()); ok {
		p.User = &user
	}

	p.Nav = append(p.Nav, navItem{Label: "Home", Path: "/", Active: r.URL.Path == "/"})
	for _, e := range s.entities {
		meta := e.Meta()
		p.Nav = append(p.Nav, navItem{
			Label:  meta.Title,
			Path:   meta.Path,
			Active: r.URL.Path == meta.Path || strings.HasPrefix(r.URL.Path, meta.Path+"/"),
		})
	}
	return p
}

// render writes page name with status. Flashes are taken from the session
// only here, so a redirect keeps them for the next page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, p page) {
	t, ok := s.templates[name]
	if !ok {
		s.logger.Error().Str("template", name).Msg("unknown template")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var flashes []session.Flash
	if sess := session.FromContext(r.Context()); sess != nil {
		flashes = sess.PopFlashes()
	}
	p.Flashes = flashes

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "base", p); err != nil {
		s.logger.Error().Err(err).Str("template", name).Msg("rendering page failed")
		if sess := session.FromContext(r.Context()); sess != nil {
			for _, f := range flashes {
				sess.AddFlash(f)
			}
		}
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.render(w, r, status, pageError, s.newPage(r, http.StatusText(status), message))
}

// redirect answers a form post or action link with 303 See Other.
func redirect(w http.ResponseWriter, r *http.Request, target string) {
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func loginURL(r *http.Request) string {
	returnTo := r.URL.RequestURI()
	if r.Method != http.MethodGet {
		returnTo = "/"
	}
	return "/login?return_to=" + url.QueryEscape(returnTo)
}
