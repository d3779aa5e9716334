package risk

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Feature names as they appear in model files.
const (
	FeatureLength          = "length"
	FeatureDigits          = "digits"
	FeatureDots            = "dots"
	FeatureHTTPS           = "https"
	FeatureSuspiciousWords = "suspicious_words"
	FeatureHasIP           = "has_ip"
)

// FeatureNames lists every feature a model may weight.
var FeatureNames = []string{
	FeatureLength,
	FeatureDigits,
	FeatureDots,
	FeatureHTTPS,
	FeatureSuspiciousWords,
	FeatureHasIP,
}

var suspiciousWords = []string{"login", "verify", "secure", "account"}

// Dotted-quad IPv4 anywhere in the URL. RE2's \d and \b are ASCII-only, so
// digits and word boundaries are spelled out with Unicode classes; a digit
// here is exactly what unicode.IsDigit counts for the digits feature.
var ipPattern = regexp.MustCompile(`(?:^|[^\p{L}\p{N}_])\p{Nd}{1,3}(?:\.\p{Nd}{1,3}){3}(?:[^\p{L}\p{N}_]|$)`)

// FeatureVector is the input of a Scorer.
type FeatureVector struct {
	Length          int  `json:"length"`
	Digits          int  `json:"digits"`
	Dots            int  `json:"dots"`
	HTTPS           bool `json:"https"`
	SuspiciousWords bool `json:"suspicious_words"`
	HasIP           bool `json:"has_ip"`
}

// Featurize extracts the feature vector of a URL. All features are computed
// on the lowercased URL; Length counts characters, not bytes.
func Featurize(rawURL string) FeatureVector {
	u := strings.ToLower(rawURL)

	fv := FeatureVector{
		Length: utf8.RuneCountInString(u),
		Dots:   strings.Count(u, "."),
		HTTPS:  strings.HasPrefix(u, "https"),
		HasIP:  ipPattern.MatchString(u),
	}

	for _, r := range u {
		if unicode.IsDigit(r) {
			fv.Digits++
		}
	}

	for _, w := range suspiciousWords {
		if strings.Contains(u, w) {
			fv.SuspiciousWords = true
			break
		}
	}

	return fv
}

// Values returns the vector keyed by feature name, booleans as 0 or 1.
func (f FeatureVector) Values() map[string]float64 {
	return map[string]float64{
		FeatureLength:          float64(f.Length),
		FeatureDigits:          float64(f.Digits),
		FeatureDots:            float64(f.Dots),
		FeatureHTTPS:           boolToFloat(f.HTTPS),
		FeatureSuspiciousWords: boolToFloat(f.SuspiciousWords),
		FeatureHasIP:           boolToFloat(f.HasIP),
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func isFeature(name string) bool {
	for _, n := range FeatureNames {
		if n == name {
			return true
		}
	}
	return false
}
