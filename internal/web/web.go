package web

import (
	"embed"
	"html/template"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/local/flipbook/internal/config"
)

//go:embed templates/*.html
var templates embed.FS

type Web struct {
	tpl *template.Template
}

func New() *Web {
	tpl := template.Must(template.ParseFS(templates, "templates/*.html"))
	return &Web{tpl: tpl}
}

func (w *Web) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/view", w.handleView)
}

// viewerConfig is handed to the page script as JSON.
type viewerConfig struct {
	PDF       string  `json:"pdf"`
	Spread    string  `json:"spread"`
	Quality   string  `json:"quality"`
	Watermark string  `json:"wm,omitempty"`
	Density   float64 `json:"dpr"`
}

type viewData struct {
	Error      string
	Background template.CSS
	OpenURL    string
	ProxyURL   string
	Config     viewerConfig
}

func (w *Web) render(wr http.ResponseWriter, name string, data any) {
	if err := w.tpl.ExecuteTemplate(wr, name, data); err != nil {
		log.Error().Err(err).Str("template", name).Msg("template render failed")
	}
}

func (w *Web) handleView(wr http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		wr.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	opts := config.ParseViewerOptions(r.URL.Query())
	data := viewData{
		// CSS() only emits validated colours and http(s) URLs.
		Background: template.CSS(opts.Background.CSS()),
		Config: viewerConfig{
			PDF:       opts.PDF,
			Spread:    string(opts.Spread),
			Quality:   opts.Quality.String(),
			Watermark: opts.Watermark,
			Density:   opts.Density,
		},
	}
	wr.Header().Set("Content-Type", "text/html; charset=utf-8")
	if opts.PDF == "" {
		data.Error = "Missing ?pdf= parameter"
		wr.WriteHeader(http.StatusBadRequest)
		w.render(wr, "viewer.html", data)
		return
	}
	data.OpenURL = opts.PDF
	data.ProxyURL = "/api/proxy?" + url.Values{"url": {opts.PDF}, "dl": {"1"}}.Encode()
	w.render(wr, "viewer.html", data)
}
