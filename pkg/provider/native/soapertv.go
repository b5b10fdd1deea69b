// Package native holds the statically compiled provider implementations.
// They satisfy the same contract as sandboxed plugins but run as ordinary
// Go code with direct HTTP access.
package native

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"streamplex/pkg/cache"
	"streamplex/pkg/logger"
	"streamplex/pkg/metadata/tmdb"
	"streamplex/pkg/provider"
)

const (
	soaperBaseURL  = "https://soaper.cc"
	soaperCacheTTL = 30 * time.Minute
	soaperUA       = "Mozilla/5.0 (iPhone; CPU iPhone OS 18_0 like Mac OS X) AppleWebKit/605.1.15"
)

type soaperSearchResult struct {
	Title string
	Year  int
	URL   string
}

type soaperEpisodeLink struct {
	Num int
	URL string
}

// SoaperTV scrapes soaper.cc. The site is looked up by title, so the TMDB
// client is needed to turn a numeric ID back into one.
type SoaperTV struct {
	baseURL  string
	client   *http.Client
	tmdb     *tmdb.Client
	search   *cache.Bounded[[]soaperSearchResult]
	episodes *cache.Bounded[[]soaperEpisodeLink]
}

// NewSoaperTV creates the SoaperTV provider handle.
func NewSoaperTV(tmdbClient *tmdb.Client) *SoaperTV {
	return &SoaperTV{
		baseURL:  soaperBaseURL,
		client:   &http.Client{Timeout: 10 * time.Second},
		tmdb:     tmdbClient,
		search:   cache.NewBounded[[]soaperSearchResult](256, soaperCacheTTL),
		episodes: cache.NewBounded[[]soaperEpisodeLink](256, soaperCacheTTL),
	}
}

// SetBaseURL overrides the site base URL (tests).
func (s *SoaperTV) SetBaseURL(base string) {
	s.baseURL = strings.TrimRight(base, "/")
}

// GetStreams implements provider.Handle.
func (s *SoaperTV) GetStreams(ctx context.Context, tmdbID string, kind provider.MediaKind, season, episode int) ([]provider.Stream, error) {
	details, err := s.tmdb.GetDetails(ctx, tmdbID, kind.External())
	if err != nil {
		return nil, fmt.Errorf("soapertv: title lookup: %w", err)
	}
	title := details.DisplayTitle()
	if title == "" {
		return nil, fmt.Errorf("soapertv: no title for tmdb id %s", tmdbID)
	}
	year := details.Year()

	match, err := s.findContent(ctx, title, year)
	if err != nil {
		return nil, err
	}
	if match == nil {
		logger.Debug("SoaperTV: no matching content", "title", title, "year", year)
		return nil, nil
	}

	contentURL := match.URL
	if kind == provider.Series && season > 0 && episode > 0 {
		contentURL, err = s.findEpisode(ctx, match.URL, season, episode)
		if err != nil {
			return nil, err
		}
		if contentURL == "" {
			logger.Debug("SoaperTV: episode not found", "title", title, "season", season, "episode", episode)
			return nil, nil
		}
	}

	streamURL, err := s.resolveStream(ctx, contentURL, kind)
	if err != nil {
		return nil, err
	}
	if streamURL == "" {
		return nil, nil
	}

	streamTitle := title
	if kind == provider.Series && season > 0 && episode > 0 {
		streamTitle = fmt.Sprintf("%s S%02dE%02d", title, season, episode)
	}

	return []provider.Stream{{
		Name:     "SoaperTV",
		Title:    streamTitle + " - SoaperTV",
		URL:      streamURL,
		Quality:  "Auto",
		Provider: "soapertv",
	}}, nil
}

func (s *SoaperTV) findContent(ctx context.Context, title string, year int) (*soaperSearchResult, error) {
	key := strings.ToLower(title)
	results, ok := s.search.Get(key)
	if !ok {
		var err error
		results, err = s.searchSite(ctx, title)
		if err != nil {
			return nil, err
		}
		s.search.Set(key, results)
	}

	want := normalizeTitle(title)
	for i := range results {
		if normalizeTitle(results[i].Title) != want {
			continue
		}
		if year > 0 && results[i].Year > 0 && results[i].Year != year {
			continue
		}
		return &results[i], nil
	}
	return nil, nil
}

func (s *SoaperTV) searchSite(ctx context.Context, title string) ([]soaperSearchResult, error) {
	searchURL := s.baseURL + "/search.html?keyword=" + url.QueryEscape(title)
	doc, err := s.fetchDocument(ctx, searchURL)
	if err != nil {
		return nil, fmt.Errorf("soapertv: search: %w", err)
	}

	var results []soaperSearchResult
	doc.Find(".thumbnail").Each(func(_ int, sel *goquery.Selection) {
		link := sel.Find("h5 a").First()
		name := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		if name == "" || href == "" {
			return
		}
		year, _ := strconv.Atoi(strings.TrimSpace(sel.Find(".img-tip").First().Text()))
		results = append(results, soaperSearchResult{Title: name, Year: year, URL: href})
	})
	return results, nil
}

func (s *SoaperTV) findEpisode(ctx context.Context, showURL string, season, episode int) (string, error) {
	key := strings.ToLower(fmt.Sprintf("%s-s%d", showURL, season))
	links, ok := s.episodes.Get(key)
	if !ok {
		doc, err := s.fetchDocument(ctx, s.baseURL+showURL)
		if err != nil {
			return "", fmt.Errorf("soapertv: show page: %w", err)
		}

		seasonHeading := fmt.Sprintf("season%d", season)
		block := doc.Find("h4").FilterFunction(func(_ int, sel *goquery.Selection) bool {
			head, _, _ := strings.Cut(sel.Text(), ":")
			return strings.ToLower(strings.TrimSpace(head)) == seasonHeading
		}).Parent()
		if block.Length() == 0 {
			return "", nil
		}

		block.Find("a").Each(func(_ int, sel *goquery.Selection) {
			numText, _, _ := strings.Cut(sel.Text(), ".")
			href, _ := sel.Attr("href")
			num, err := strconv.Atoi(strings.TrimSpace(numText))
			if err == nil && href != "" {
				links = append(links, soaperEpisodeLink{Num: num, URL: href})
			}
		})
		s.episodes.Set(key, links)
	}

	for _, l := range links {
		if l.Num == episode {
			return l.URL, nil
		}
	}
	return "", nil
}

// resolveStream pulls the pass token off the content page and trades it for
// the playable URL via the site's info endpoint.
func (s *SoaperTV) resolveStream(ctx context.Context, contentURL string, kind provider.MediaKind) (string, error) {
	pageURL := s.baseURL + contentURL
	doc, err := s.fetchDocument(ctx, pageURL)
	if err != nil {
		return "", fmt.Errorf("soapertv: content page: %w", err)
	}

	pass, ok := doc.Find("#hId").Attr("value")
	if !ok || pass == "" {
		return "", fmt.Errorf("soapertv: no pass token on %s", contentURL)
	}

	endpoint := "/home/index/getMInfoAjax"
	if kind == provider.Series {
		endpoint = "/home/index/getEInfoAjax"
	}

	form := url.Values{}
	form.Set("pass", pass)
	form.Set("e2", "0")
	form.Set("server", "0")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Referer", pageURL)
	req.Header.Set("User-Agent", soaperUA)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("soapertv: stream info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("soapertv: stream info returned status %d", resp.StatusCode)
	}

	var info struct {
		Val string `json:"val"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		return "", fmt.Errorf("soapertv: stream info parse: %w", err)
	}
	if info.Val == "" {
		return "", nil
	}

	switch {
	case strings.HasPrefix(info.Val, "http"):
		return info.Val, nil
	case strings.HasPrefix(info.Val, "/"):
		return s.baseURL + info.Val, nil
	default:
		return s.baseURL + "/" + info.Val, nil
	}
}

func (s *SoaperTV) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", soaperUA)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d for %s", resp.StatusCode, pageURL)
	}
	return goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 4<<20))
}

func normalizeTitle(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
