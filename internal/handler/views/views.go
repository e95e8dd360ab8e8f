// Package views renders the HTML pages of the trainer as templ components.
package views

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/drill/internal/i18n"
	"github.com/pavelanni/drill/internal/model"
)

// printer writes formatted HTML and keeps the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func esc(s string) string { return templ.EscapeString(s) }

func href(ctx context.Context, path string) string {
	return esc(string(templ.URL(model.BasePathFromContext(ctx) + path)))
}

// Layout wraps body in the page skeleton.
func Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.printf(`<!DOCTYPE html><html lang="%s"><head><meta charset="utf-8">`, esc(appI18n.Lang(ctx)))
		p.printf(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		p.printf(`<title>%s</title></head><body data-base="%s"><main>`, esc(title), href(ctx, ""))
		if p.err != nil {
			return p.err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		p.printf(`</main><script>%s</script></body></html>`, startScript)
		return p.err
	})
}

// IndexPage lists the question lists to practice and the recent practices.
func IndexPage(lists []model.QList, practices []model.PracticeSummary) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		title := appI18n.T(ctx, "AppTitle")
		return Layout(title, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
			p := &printer{w: w}
			p.printf(`<h1>%s</h1><p>%s</p>`, esc(title), esc(appI18n.T(ctx, "Tagline")))

			p.printf(`<section><h2>%s</h2>`, esc(appI18n.T(ctx, "QListsHeading")))
			if len(lists) == 0 {
				p.printf(`<p>%s</p>`, esc(appI18n.T(ctx, "NoQLists")))
			} else {
				p.printf(`<ul class="qlists">`)
				for _, q := range lists {
					p.printf(`<li>%s <small>%s</small> <button type="button" data-qlist="%d">%s</button></li>`,
						esc(q.Name),
						esc(appI18n.Tp(ctx, "QuestionCount", len(q.QuestionIDs))),
						q.ID,
						esc(appI18n.T(ctx, "StartPractice")))
				}
				p.printf(`</ul>`)
			}
			p.printf(`</section>`)

			p.printf(`<section><h2>%s</h2>`, esc(appI18n.T(ctx, "PracticesHeading")))
			if len(practices) == 0 {
				p.printf(`<p>%s</p>`, esc(appI18n.T(ctx, "NoPractices")))
			} else {
				p.printf(`<ul class="practices">`)
				for _, ps := range practices {
					p.printf(`<li>%s %s`,
						esc(appI18n.Td(ctx, "PracticeN", map[string]any{"ID": ps.Practice.ID})),
						esc(ps.QList.Name))
					if ps.Practice.IsReview {
						p.printf(` <mark>%s</mark>`, esc(appI18n.T(ctx, "Review")))
					}
					if ps.Practice.IsAnswered {
						p.printf(` <em>%s</em>`, esc(appI18n.T(ctx, "Completed")))
					} else {
						p.printf(` <em>%s</em> <a href="%s">%s</a>`,
							esc(appI18n.T(ctx, "InProgress")),
							href(ctx, fmt.Sprintf("/api/practices/%d", ps.Practice.ID)),
							esc(appI18n.T(ctx, "ResumePractice")))
					}
					p.printf(`</li>`)
				}
				p.printf(`</ul>`)
			}
			p.printf(`</section>`)
			return p.err
		})).Render(ctx, w)
	})
}

// startScript turns the start buttons into API calls.
const startScript = `document.querySelectorAll("button[data-qlist]").forEach(function (b) {
  b.addEventListener("click", function () {
    var base = document.body.dataset.base;
    fetch(base + "/api/practices", {
      method: "POST",
      headers: {"Content-Type": "application/json"},
      body: JSON.stringify({qlist_id: Number(b.dataset.qlist)})
    }).then(function (r) { return r.json(); }).then(function (s) {
      if (s.id) { location.href = base + "/api/practices/" + s.id; }
    });
  });
});`
