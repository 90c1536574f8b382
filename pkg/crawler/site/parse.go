package site

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/kashisync/kashisync/pkg/pricing"
	"golang.org/x/text/width"
)

var (
	priceRe     = regexp.MustCompile(`[0-9][0-9,]*`)
	weightRe    = regexp.MustCompile(`(?i)([0-9]+(?:\.[0-9]+)?)\s*(kg|キロ|g|グラム)`)
	dimensionRe = regexp.MustCompile(`(?i)([0-9]+(?:\.[0-9]+)?)\s*[x×*]\s*([0-9]+(?:\.[0-9]+)?)\s*[x×*]\s*([0-9]+(?:\.[0-9]+)?)\s*(cm|mm)?`)
)

// DefaultSoldOutMarkers are matched case-insensitively against the stock area text.
var DefaultSoldOutMarkers = []string{"売り切れ", "在庫切れ", "品切れ", "入荷待ち", "sold out", "out of stock"}

// ParsePrice extracts the first integer amount from text such as "¥1,234（税込）".
// It returns 0 when no amount is present.
func ParsePrice(text string) int {
	m := priceRe.FindString(width.Fold.String(text))
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m, ",", ""))
	if err != nil {
		return 0
	}
	return n
}

// ParseDeclaredKg extracts a declared weight ("350g", "1.2kg", "内容量 200グラム").
// When several weights are listed the largest wins.
func ParseDeclaredKg(text string) float64 {
	text = width.Fold.String(text)
	var best float64
	for _, m := range weightRe.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		switch strings.ToLower(m[2]) {
		case "g", "グラム":
			v /= 1000
		}
		if v > best {
			best = v
		}
	}
	return best
}

// ParseVolumetricKg extracts package dimensions ("20×15×10cm") and converts them to a
// volumetric weight. Dimensions without a unit are taken as centimetres.
func ParseVolumetricKg(text string, divisor float64) float64 {
	text = width.Fold.String(text)
	m := dimensionRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	dims := make([]float64, 3)
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(m[i+1], 64)
		if err != nil {
			return 0
		}
		if strings.ToLower(m[4]) == "mm" {
			v /= 10
		}
		dims[i] = v
	}
	return pricing.VolumetricKg(dims[0], dims[1], dims[2], divisor)
}

// ResolveWeightKg applies the take-the-max rule to the weight text of a detail page.
func ResolveWeightKg(text string, divisor float64) float64 {
	return pricing.ResolveWeight(ParseDeclaredKg(text), ParseVolumetricKg(text, divisor))
}

// IsSoldOut reports whether text carries any of markers.
func IsSoldOut(text string, markers []string) bool {
	text = strings.ToLower(width.Fold.String(text))
	for _, m := range markers {
		if m == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
