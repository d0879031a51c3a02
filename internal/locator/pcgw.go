package locator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html"
)

// DefaultPCGWURL is the PCGamingWiki page that resolves a Steam app ID
const DefaultPCGWURL = "https://pcgamingwiki.com/api/appid.php"

const noSuchAppID = "No such AppID."

// PCGWLookup resolves Steam app IDs through PCGamingWiki. Results are cached
// for the life of the lookup.
type PCGWLookup struct {
	client *resty.Client
	url    string

	mu    sync.Mutex
	cache map[string]string
}

// NewPCGWLookup creates a lookup against url, or DefaultPCGWURL when empty
func NewPCGWLookup(url string) *PCGWLookup {
	if url == "" {
		url = DefaultPCGWURL
	}
	client := resty.New().
		SetTimeout(15*time.Second).
		SetRetryCount(2).
		SetHeader("User-Agent", "savehaven")

	return &PCGWLookup{
		client: client,
		url:    url,
		cache:  make(map[string]string),
	}
}

func (p *PCGWLookup) TitleForAppID(ctx context.Context, appID string) (string, bool, error) {
	p.mu.Lock()
	title, ok := p.cache[appID]
	p.mu.Unlock()
	if ok {
		return title, title != "", nil
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("appid", appID).
		Get(p.url)
	if err != nil {
		return "", false, fmt.Errorf("failed to query PCGamingWiki: %w", err)
	}
	if resp.StatusCode() == 404 {
		p.remember(appID, "")
		return "", false, nil
	}
	if resp.IsError() {
		return "", false, fmt.Errorf("PCGamingWiki returned %s", resp.Status())
	}

	title, found, err := parseTitle(string(resp.Body()))
	if err != nil {
		return "", false, err
	}
	p.remember(appID, title)
	return title, found, nil
}

func (p *PCGWLookup) remember(appID, title string) {
	p.mu.Lock()
	p.cache[appID] = title
	p.mu.Unlock()
}

// parseTitle extracts the first "article-title" element of a wiki page
func parseTitle(page string) (string, bool, error) {
	if strings.Contains(page, noSuchAppID) {
		return "", false, nil
	}

	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return "", false, fmt.Errorf("failed to parse PCGamingWiki page: %w", err)
	}

	node := findByClass(doc, "article-title")
	if node == nil {
		return "", false, nil
	}
	title := strings.TrimSpace(textContent(node))
	return title, title != "", nil
}

func findByClass(n *html.Node, class string) *html.Node {
	if n.Type == html.ElementNode {
		for _, attr := range n.Attr {
			if attr.Key == "class" && hasClass(attr.Val, class) {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByClass(c, class); found != nil {
			return found
		}
	}
	return nil
}

func hasClass(attr, class string) bool {
	for _, c := range strings.Fields(attr) {
		if c == class {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}
