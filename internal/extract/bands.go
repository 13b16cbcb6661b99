// internal/extract/bands.go
package extract

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Band candidate scoring constants. Rewards accumulate for signals
// that the string names a performer; penalties for signals it is
// schedule furniture (dates, prices, venue notes). Candidates at or
// above BandScoreThreshold are kept.
const (
	BandScoreThreshold = 0.7
	MaxBandsPerEvent   = 3

	// DefaultPerformer stands in when nothing scores well enough and
	// no fallback candidates exist either.
	DefaultPerformer = "Live Performance"

	rewardLooksLikeArtist = 0.3
	rewardArtistKeyword   = 0.2
	rewardGoodLength      = 0.2
	rewardMixedCase       = 0.1
	rewardJapaneseChars   = 0.1
	rewardFromArtistField = 0.15
	rewardBandSuffix      = 0.1

	penaltyDateLike     = -0.4
	penaltyTimeLike     = -0.3
	penaltyVenueInfo    = -0.3
	penaltyEventDesc    = -0.2
	penaltyPricing      = -0.2
	penaltyTooShort     = -0.1
	penaltyTooLong      = -0.2
	penaltyMostlySymbol = -0.3
	penaltyGenericTerm  = -0.2
)

// artistSeparators split multi-act listings. Longest first so
// " feat. " wins over " / " inside the same string.
var artistSeparators = []string{
	" featuring ", " feat. ", " with ", " and ", " / ", " × ", " & ", " + ", "、", "・",
}

// decorativeGlyphs mark where Japanese flyers switch from the act
// name to ornamentation.
const decorativeGlyphs = "●○■□▲△▼▽◆◇★☆"

var (
	reTitleTrailingLive = regexp.MustCompile(`(?i)^(.{2,}?)\s+(live|show|concert|gig|oneman|ワンマン)!*$`)
	reTitleLeadingLive  = regexp.MustCompile(`(?i)^(?:live|show|concert)\s*[:：]\s*(.{2,})$`)
	reDJPrefix          = regexp.MustCompile(`(?i)^dj[\s:：]+`)
	reParenNote         = regexp.MustCompile(`[(（][^)）]*[)）]\s*$`)
	rePricing           = regexp.MustCompile(`(?i)[¥￥$]\s*\d|(\d[,.]?\d*\s*(yen|円))|adv|door|前売|当日|ticket`)
	reVenueInfo         = regexp.MustCompile(`(?i)駅|station|floor|hall|studio|ライブハウス|live\s*house|map|access|住所`)
	reEventDesc         = regexp.MustCompile(`(?i)presents|vol\.?\s*\d+|anniversary|release|tour|祭|fes\b|festival|企画`)
	reGenericTerm       = regexp.MustCompile(`(?i)^(live|show|event|schedule|info|news|guest|act|band|dj|open|start|and more|tba|未定)$`)
)

var artistKeywords = []string{"band", "orchestra", "quartet", "trio", "duo", "ensemble"}

var bandSuffixes = []string{"s", "z", "x"}

// BandExtractor pulls performer names out of extracted events using
// layered heuristics over the artists field, the title, and raw text.
type BandExtractor struct{}

// NewBandExtractor creates a band extractor.
func NewBandExtractor() *BandExtractor {
	return &BandExtractor{}
}

type bandCandidate struct {
	name  string
	score float64
}

// Extract returns up to MaxBandsPerEvent performer names for an
// event. When no candidate clears the score threshold, the two best
// fallback candidates are used so an event never loses its lineup to
// an overly strict filter; with no candidates at all, the default
// performer is returned.
func (e *BandExtractor) Extract(title, artists, rawText string) []string {
	seen := make(map[string]bool)
	var candidates []bandCandidate

	consider := func(raw string, fromArtists bool) {
		name := CleanBandName(raw)
		if name == "" {
			return
		}
		key := strings.ToLower(name)
		if seen[key] {
			return
		}
		seen[key] = true
		candidates = append(candidates, bandCandidate{
			name:  name,
			score: scoreCandidate(name, fromArtists),
		})
	}

	for _, part := range SplitArtists(artists) {
		consider(part, true)
	}
	for _, part := range candidatesFromTitle(title) {
		consider(part, false)
	}
	if len(candidates) == 0 && rawText != "" {
		for _, line := range strings.Split(rawText, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || ContainsDate(line) {
				continue
			}
			for _, part := range SplitArtists(line) {
				consider(part, false)
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	var kept []string
	for _, c := range candidates {
		if c.score >= BandScoreThreshold {
			kept = append(kept, c.name)
		}
		if len(kept) == MaxBandsPerEvent {
			break
		}
	}

	if len(kept) == 0 {
		// Rescue the two strongest candidates rather than dropping
		// the lineup entirely.
		for i := 0; i < len(candidates) && i < 2; i++ {
			if candidates[i].score > 0 {
				kept = append(kept, candidates[i].name)
			}
		}
	}

	if len(kept) == 0 {
		return []string{DefaultPerformer}
	}
	return kept
}

// SplitArtists breaks a multi-act listing into individual names.
func SplitArtists(s string) []string {
	parts := []string{s}
	for _, sep := range artistSeparators {
		var next []string
		for _, p := range parts {
			next = append(next, strings.Split(p, sep)...)
		}
		parts = next
	}

	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// candidatesFromTitle extracts likely act names from an event title.
func candidatesFromTitle(title string) []string {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}

	var out []string
	if m := reTitleTrailingLive.FindStringSubmatch(title); m != nil {
		out = append(out, m[1])
	}
	if m := reTitleLeadingLive.FindStringSubmatch(title); m != nil {
		out = append(out, m[1])
	}
	// Text before the first decorative glyph is usually the act.
	if idx := strings.IndexAny(title, decorativeGlyphs); idx > 1 {
		out = append(out, title[:idx])
	}
	if len(out) == 0 {
		out = append(out, SplitArtists(title)...)
	}
	return out
}

// scoreCandidate rates how likely a string names a performer.
func scoreCandidate(name string, fromArtists bool) float64 {
	score := 0.0
	lower := strings.ToLower(name)
	runes := []rune(name)

	if looksLikeArtistName(name) {
		score += rewardLooksLikeArtist
	}
	for _, kw := range artistKeywords {
		if strings.Contains(lower, kw) {
			score += rewardArtistKeyword
			break
		}
	}
	if len(runes) >= 3 && len(runes) <= 30 {
		score += rewardGoodLength
	}
	if hasMixedCase(name) {
		score += rewardMixedCase
	}
	if hasJapanese(name) {
		score += rewardJapaneseChars
	}
	if fromArtists {
		score += rewardFromArtistField
	}
	for _, suffix := range bandSuffixes {
		if strings.HasSuffix(lower, suffix) && len(runes) > 3 {
			score += rewardBandSuffix
			break
		}
	}

	if ContainsDate(name) {
		score += penaltyDateLike
	}
	if reClockTime.MatchString(name) {
		score += penaltyTimeLike
	}
	if reVenueInfo.MatchString(name) {
		score += penaltyVenueInfo
	}
	if reEventDesc.MatchString(name) {
		score += penaltyEventDesc
	}
	if rePricing.MatchString(name) {
		score += penaltyPricing
	}
	if len(runes) < 3 {
		score += penaltyTooShort
	}
	if len(runes) > 40 {
		score += penaltyTooLong
	}
	if mostlySymbols(name) {
		score += penaltyMostlySymbol
	}
	if reGenericTerm.MatchString(strings.TrimSpace(lower)) {
		score += penaltyGenericTerm
	}

	return score
}

// looksLikeArtistName checks for the shape of a name: letters with
// optional spaces, not starting with digits or punctuation.
func looksLikeArtistName(s string) bool {
	runes := []rune(s)
	if len(runes) == 0 {
		return false
	}
	if !unicode.IsLetter(runes[0]) {
		return false
	}
	letters := 0
	for _, r := range runes {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return float64(letters)/float64(len(runes)) > 0.6
}

func hasMixedCase(s string) bool {
	var upper, lowerSeen bool
	for _, r := range s {
		if unicode.IsUpper(r) {
			upper = true
		}
		if unicode.IsLower(r) {
			lowerSeen = true
		}
	}
	return upper && lowerSeen
}

func hasJapanese(s string) bool {
	for _, r := range s {
		if unicode.In(r, unicode.Hiragana, unicode.Katakana, unicode.Han) {
			return true
		}
	}
	return false
}

func mostlySymbols(s string) bool {
	runes := []rune(s)
	if len(runes) == 0 {
		return true
	}
	symbols := 0
	for _, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsNumber(r) && !unicode.IsSpace(r) {
			symbols++
		}
	}
	return float64(symbols)/float64(len(runes)) > 0.5
}

// CleanBandName normalizes a raw candidate: strips DJ prefixes,
// trailing live/show qualifiers, parenthetical venue notes and
// decorative glyphs.
func CleanBandName(s string) string {
	s = strings.TrimSpace(s)
	s = reDJPrefix.ReplaceAllString(s, "")
	s = reParenNote.ReplaceAllString(s, "")
	if m := reTitleTrailingLive.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	s = strings.Trim(s, decorativeGlyphs+" \t-–—~〜:：/|")
	return strings.TrimSpace(s)
}
