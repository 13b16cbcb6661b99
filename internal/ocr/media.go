// internal/ocr/media.go
package ocr

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Image scoring constants. Every image starts at the baseline; the
// top candidates by score are downloaded for OCR.
const (
	ImageBaseline       = 1
	ImageHighKeyword    = 10
	ImageMediumKeyword  = 5
	ImageAltBonus       = 3
	ImageClassBonus     = 2
	ImagePenalty        = -5
	ImageFormatPenalty  = -10
	MaxScheduleImages   = 5
)

// PDF link scoring constants.
const (
	PDFHighKeyword     = 15
	PDFMediumKeyword   = 8
	PDFDateInFilename  = 12
	PDFMonthName       = 10
	PDFPenalty         = -5
)

var (
	mediaHighTerms   = []string{"schedule", "event", "live", "gig", "flyer", "スケジュール", "ライブ", "イベント"}
	mediaMediumTerms = []string{"info", "news", "monthly", "calendar", "カレンダー", "案内"}
	mediaPenaltyTerms = []string{
		"menu", "map", "access", "contact", "logo", "icon", "banner",
		"header", "footer", "bg", "button", "メニュー", "アクセス",
	}

	reFilenameDate = regexp.MustCompile(`20\d{2}[\-_]?\d{1,2}|\d{1,2}月`)
	reMonthName    = regexp.MustCompile(`(?i)jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec|[01]?\d月`)
)

// Candidate is a scored media URL.
type Candidate struct {
	URL   string
	Score int
}

// FindScheduleImages scores the page's images by how likely they are
// to be a schedule flyer and returns the top candidates. Vector and
// document formats are penalized: OCR wants raster flyers.
func FindScheduleImages(doc *goquery.Document, baseURL string) []Candidate {
	var candidates []Candidate

	doc.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		abs := resolveURL(baseURL, src)
		if abs == "" {
			return
		}

		score := ImageBaseline
		lower := strings.ToLower(abs)
		alt := strings.ToLower(img.AttrOr("alt", ""))
		class := strings.ToLower(img.AttrOr("class", ""))

		score += keywordScore(lower, ImageHighKeyword, ImageMediumKeyword)
		if containsAny(alt, mediaHighTerms) || containsAny(alt, mediaMediumTerms) {
			score += ImageAltBonus
		}
		if containsAny(class, mediaHighTerms) || containsAny(class, mediaMediumTerms) {
			score += ImageClassBonus
		}
		if containsAny(lower, mediaPenaltyTerms) || containsAny(alt, mediaPenaltyTerms) {
			score += ImagePenalty
		}
		if strings.HasSuffix(lower, ".svg") || strings.HasSuffix(lower, ".pdf") {
			score += ImageFormatPenalty
		}

		if score > 0 {
			candidates = append(candidates, Candidate{URL: abs, Score: score})
		}
	})

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > MaxScheduleImages {
		candidates = candidates[:MaxScheduleImages]
	}
	return candidates
}

// FindPDFLinks scores links to PDF documents by schedule relevance.
// Scores floor at zero; a menu PDF never outranks nothing.
func FindPDFLinks(doc *goquery.Document, baseURL string) []Candidate {
	var candidates []Candidate

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !strings.Contains(strings.ToLower(href), ".pdf") {
			return
		}
		abs := resolveURL(baseURL, href)
		if abs == "" {
			return
		}

		lower := strings.ToLower(abs + " " + a.Text())
		score := keywordScore(lower, PDFHighKeyword, PDFMediumKeyword)
		if reFilenameDate.MatchString(abs) {
			score += PDFDateInFilename
		}
		if reMonthName.MatchString(lower) {
			score += PDFMonthName
		}
		if containsAny(lower, mediaPenaltyTerms) {
			score += PDFPenalty
		}
		if score < 0 {
			score = 0
		}
		if score > 0 {
			candidates = append(candidates, Candidate{URL: abs, Score: score})
		}
	})

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates
}

func keywordScore(s string, high, medium int) int {
	score := 0
	for _, term := range mediaHighTerms {
		if strings.Contains(s, term) {
			score += high
		}
	}
	for _, term := range mediaMediumTerms {
		if strings.Contains(s, term) {
			score += medium
		}
	}
	return score
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func resolveURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	r, err := b.Parse(ref)
	if err != nil {
		return ""
	}
	if r.Scheme != "http" && r.Scheme != "https" {
		return ""
	}
	return r.String()
}
