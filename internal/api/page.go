package api

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"finsight/internal/service/analyzer"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.New("").ParseFS(templateFS, "templates/*.html"))

type pageData struct {
	Stages      []analyzer.Progress
	Percent     int
	Error       string
	Extracted   bool
	ReportHTML  template.HTML
	DownloadURL string
	Banner      string
}

func (h *Handler) index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", pageData{})
}

func (h *Handler) analyzeForm(c *gin.Context) {
	f, header, upErr := h.openUpload(c)
	if upErr != nil {
		c.HTML(upErr.status, "index.html", pageData{Error: upErr.message})
		return
	}
	defer f.Close()

	out, upErr := h.run(c, f, header.Filename, nil)
	if upErr != nil {
		c.HTML(upErr.status, "index.html", pageData{Error: upErr.message})
		return
	}

	data := pageData{Stages: out.Stages}
	if n := len(out.Stages); n > 0 {
		data.Percent = out.Stages[n-1].Percent
	}
	switch out.Status {
	case analyzer.StatusReady:
		data.Extracted = true
		data.ReportHTML = h.renderer.HTML(out.Report.Markdown)
		data.DownloadURL = downloadURL(out.Report.ID)
		data.Banner = analyzer.MessageReportReady
	case analyzer.StatusAnalyzeFailed:
		data.Extracted = true
		data.ReportHTML = h.renderer.HTML(out.Report.Markdown)
		data.DownloadURL = downloadURL(out.Report.ID)
	default:
		data.Error = out.Message
	}
	c.HTML(outcomeStatus(out), "index.html", data)
}
