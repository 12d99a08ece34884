package report

import (
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// PDFMeta is the header block printed above the rendered report body.
type PDFMeta struct {
	PatientName string
	WoundType   string
	VisitDate   time.Time
	AlertLevel  string
	Trajectory  string
}

// ChromiumPDFRenderer turns report markdown into a printable PDF through a
// headless Chromium instance.
type ChromiumPDFRenderer struct {
	chromePath string
}

func NewChromiumPDFRenderer() *ChromiumPDFRenderer {
	return &ChromiumPDFRenderer{chromePath: detectChromePath()}
}

func (r *ChromiumPDFRenderer) Render(ctx context.Context, markdown string, meta PDFMeta) ([]byte, error) {
	htmlDoc, err := buildHTML(markdown, meta)
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	}
	if r.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.chromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(timeoutCtx, append(chromedp.DefaultExecAllocatorOptions[:], opts...)...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	var pdf []byte
	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(htmlDoc))
	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			footer := `<div style="width:100%;text-align:center;font-size:9px;color:#666;padding-right:8px;">` +
				`Page <span class="pageNumber"></span> of <span class="totalPages"></span></div>`
			out, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate(`<div></div>`).
				WithFooterTemplate(footer).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				WithMarginTop(0.5).
				WithMarginBottom(0.75).
				WithMarginLeft(0.45).
				WithMarginRight(0.45).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = out
			return nil
		}),
	); err != nil {
		return nil, err
	}
	return pdf, nil
}

const reportCSS = `
body{font-family:Georgia,serif;color:#1c1917;max-width:900px;margin:0 auto;padding:0.6rem;background:#fff;}
h2{border-bottom:2px solid #0f766e;padding-bottom:0.25rem;}
h3{color:#0f766e;margin-top:1.2rem;}
.report-meta{color:#44403c;font-size:0.9rem;margin-bottom:0.8rem;}
.report-meta strong{color:#1c1917;}
.alert-badge{display:inline-block;padding:0.15rem 0.6rem;border-radius:999px;font-size:0.8rem;font-weight:700;text-transform:uppercase;}
.alert-green{background:#dcfce7;color:#166534;}
.alert-yellow{background:#fef9c3;color:#854d0e;}
.alert-orange{background:#ffedd5;color:#9a3412;}
.alert-red{background:#fee2e2;color:#991b1b;}
ul{padding-left:1.2rem;}
html,body,*{-webkit-print-color-adjust:exact !important;print-color-adjust:exact !important;}
@media print{ @page{size:auto;margin:12mm;} body{padding:0;} }
`

func buildHTML(markdown string, meta PDFMeta) (string, error) {
	var content strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(markdown), &content); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}

	var header strings.Builder
	header.WriteString("<div class='report-meta'>")
	if meta.PatientName != "" {
		header.WriteString("<div><strong>Patient:</strong> " + html.EscapeString(meta.PatientName) + "</div>")
	}
	if meta.WoundType != "" {
		header.WriteString("<div><strong>Wound type:</strong> " + html.EscapeString(meta.WoundType) + "</div>")
	}
	if !meta.VisitDate.IsZero() {
		header.WriteString("<div><strong>Visit:</strong> " + meta.VisitDate.Format("January 2, 2006") + "</div>")
	}
	if meta.Trajectory != "" {
		header.WriteString("<div><strong>Trajectory:</strong> " + html.EscapeString(meta.Trajectory) + "</div>")
	}
	header.WriteString("</div>")
	if meta.AlertLevel != "" {
		level := strings.ToLower(meta.AlertLevel)
		header.WriteString("<span class='alert-badge alert-" + html.EscapeString(level) + "'>" +
			html.EscapeString(level) + " alert</span>")
	}

	return "<!doctype html><html><head><meta charset='utf-8'><title>Wound Assessment Report</title>" +
		"<style>" + reportCSS + "</style></head><body>" +
		header.String() + content.String() +
		"</body></html>", nil
}

func detectChromePath() string {
	candidates := []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
