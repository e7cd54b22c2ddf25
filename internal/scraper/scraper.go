// Package scraper loads article pages over HTTP and exposes them to the value
// fetcher, and collects the daily article list.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/deusflow/newsrank/internal/fetcher"
)

const maxBodyBytes = 8 << 20

// Session is an HTTP page accessor. One Session belongs to one fetch worker.
type Session struct {
	client    *http.Client
	userAgent string
}

// NewSession creates a session. timeout bounds each request as a whole.
func NewSession(timeout time.Duration, userAgent string) *Session {
	return &Session{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Factory returns an AccessorFactory handing out a fresh Session per worker.
func Factory(timeout time.Duration, userAgent string) fetcher.AccessorFactory {
	return func(context.Context) (fetcher.Accessor, error) {
		return NewSession(timeout, userAgent), nil
	}
}

// Load fetches url and parses it.
func (s *Session) Load(ctx context.Context, url string) (fetcher.Page, error) {
	doc, err := s.get(ctx, url)
	if err != nil {
		return nil, err
	}
	return NewPage(doc), nil
}

// Document fetches url and returns the raw goquery document.
func (s *Session) Document(ctx context.Context, url string) (*goquery.Document, error) {
	return s.get(ctx, url)
}

func (s *Session) get(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error building request: %w", err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error loading page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error parsing HTML: %w", err)
	}
	return doc, nil
}

// Close releases idle connections.
func (s *Session) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// Page is a parsed HTML document.
type Page struct {
	doc *goquery.Document
}

// NewPage wraps an already parsed document.
func NewPage(doc *goquery.Document) *Page {
	return &Page{doc: doc}
}

// WaitForReady succeeds once the document has a body. Static documents are
// complete when parsed, so this only guards against empty responses.
func (p *Page) WaitForReady(ctx context.Context, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.doc.Find("body").Children().Length() == 0 && strings.TrimSpace(p.doc.Find("body").Text()) == "" {
		return fmt.Errorf("empty document body: %w", fetcher.ErrTimeout)
	}
	return nil
}

// FindText returns the text of the first element, in document order, whose
// own text nodes contain pattern.
func (p *Page) FindText(pattern string) (string, bool) {
	var found string
	var ok bool
	p.doc.Find("body *").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.Contains(ownText(s), pattern) {
			found = strings.TrimSpace(s.Text())
			ok = true
			return false
		}
		return true
	})
	return found, ok
}

// FindByID returns the trimmed text of the element with the given id.
func (p *Page) FindByID(id string) (string, bool) {
	sel := p.doc.Find(`[id="` + id + `"]`).First()
	if sel.Length() == 0 {
		return "", false
	}
	return strings.TrimSpace(sel.Text()), true
}

// FindSelector returns attr of the first element matching selector, or its
// text when attr is empty.
func (p *Page) FindSelector(selector, attr string) (string, bool) {
	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", false
	}
	if attr == "" {
		return strings.TrimSpace(sel.Text()), true
	}
	v, ok := sel.Attr(attr)
	return strings.TrimSpace(v), ok
}

func ownText(s *goquery.Selection) string {
	if len(s.Nodes) == 0 {
		return ""
	}
	var b strings.Builder
	for c := s.Nodes[0].FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}
