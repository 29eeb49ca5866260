package httpapi

import (
	"html/template"
	"net/http"
	"strings"

	"ecportal.org/internal/auth"
	"ecportal.org/internal/locale"
	"ecportal.org/internal/obs"
)

const pageLayout = `<!DOCTYPE html>
<html lang="{{.Locale}}">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body data-page="{{.Name}}">
<header><a href="/{{.Locale}}">{{.Portal}}</a>{{if .User}} <span class="user">{{.User.Name}} ({{.User.Role}})</span>{{end}}</header>
<main>
<h1>{{.Title}}</h1>
{{if .Notice}}<p class="notice">{{.Notice}}</p>{{end}}
{{if eq .Name "login"}}<form method="post" action="/api/auth/login" data-callback="{{.Callback}}">
<input type="email" name="email" required><input type="password" name="password" required>
<button type="submit">{{.Title}}</button>
</form>{{end}}
</main>
</body>
</html>`

type pageData struct {
	Name     string
	Locale   string
	Portal   string
	Title    string
	Notice   string
	Callback string
	User     *auth.Identity
}

type pageRenderer struct {
	tmpl *template.Template
}

func newPageRenderer() *pageRenderer {
	return &pageRenderer{tmpl: template.Must(template.New("page").Parse(pageLayout))}
}

var pageTitles = map[string]map[string]string{
	locale.English: {
		"portal":       "Elections Inquiry Commission",
		"home":         "Home",
		"login":        "Sign in",
		"unauthorized": "Access denied",
		"deactivated":  "Your account has been deactivated.",
		"not_found":    "Page not found",
		"admin":        "Administration",
		"management":   "Management",
		"support":      "Support desk",
		"dashboard":    "Dashboard",
	},
	locale.Bengali: {
		"portal":       "নির্বাচন তদন্ত কমিশন",
		"home":         "প্রথম পাতা",
		"login":        "সাইন ইন",
		"unauthorized": "প্রবেশাধিকার নেই",
		"deactivated":  "আপনার অ্যাকাউন্ট নিষ্ক্রিয় করা হয়েছে।",
		"not_found":    "পাতা পাওয়া যায়নি",
		"admin":        "প্রশাসন",
		"management":   "ব্যবস্থাপনা",
		"support":      "সহায়তা",
		"dashboard":    "ড্যাশবোর্ড",
	},
}

func title(loc, key string) string {
	if t, ok := pageTitles[loc][key]; ok {
		return t
	}
	return pageTitles[locale.English][key]
}

// handlePage renders the minimal shell for localized page paths. Access to
// protected sections was already decided by PageAuth.
func (a *API) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, r, http.MethodGet, http.MethodHead)
		return
	}
	loc, rest := locale.Split(r.URL.Path)
	if loc == "" {
		a.renderPage(w, r, http.StatusNotFound, "not_found", locale.FromRequest(r), pageData{})
		return
	}

	switch {
	case rest == "/":
		a.renderPage(w, r, http.StatusOK, "home", loc, pageData{})
	case rest == "/login":
		data := pageData{Callback: safeCallback(r.URL.Query().Get("callbackUrl"))}
		if r.URL.Query().Get("error") == auth.DeactivatedLoginError {
			data.Notice = title(loc, "deactivated")
		}
		a.renderPage(w, r, http.StatusOK, "login", loc, data)
	case rest == "/unauthorized":
		a.renderPage(w, r, http.StatusForbidden, "unauthorized", loc, pageData{})
	default:
		if _, protected := a.routes.Lookup(rest); protected {
			section := strings.SplitN(strings.TrimPrefix(rest, "/"), "/", 2)[0]
			a.renderPage(w, r, http.StatusOK, section, loc, pageData{})
			return
		}
		a.renderPage(w, r, http.StatusNotFound, "not_found", loc, pageData{})
	}
}

func (a *API) renderPage(w http.ResponseWriter, r *http.Request, status int, name, loc string, data pageData) {
	data.Name = name
	data.Locale = loc
	data.Portal = title(loc, "portal")
	if data.Title == "" {
		data.Title = title(loc, name)
	}
	if id, ok := auth.IdentityFromContext(r.Context()); ok {
		data.User = &id
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := a.pages.tmpl.Execute(w, data); err != nil {
		obs.Logger().Error().Err(err).Str("page", name).Msg("render page")
	}
}

// safeCallback keeps only same-site relative paths.
func safeCallback(raw string) string {
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.Contains(raw, `\`) {
		return ""
	}
	return raw
}
