// Package decoder turns raw indicator frames into weight values.
//
// Decoding is pure: the same frame always yields the same result, so the
// rules can be checked against a fixed table of captured frames.
package decoder

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// DefaultUnit is reported when a frame carries no unit suffix.
const DefaultUnit = "kg"

// Plausible range for values recovered from garbled frames.
const (
	noiseMin = 0
	noiseMax = 50000
)

// Rule names, reported with every decoded frame.
const (
	RuleStatusFrame  = "status_frame"
	RuleGrossFrame   = "gross_frame"
	RuleSignedValue  = "signed_value"
	RuleBareDecimal  = "bare_decimal"
	RuleBracketNoise = "bracket_noise"
	RuleBinaryNoise  = "binary_noise"
)

// Result is a successfully decoded frame.
type Result struct {
	Weight float64
	Unit   string
	Rule   string
}

var (
	// ST,GS,+012345.0kg
	statusFrameRe = regexp.MustCompile(`(?i)\b(ST|US|OL)\s*,\s*(GS|NT|TR)\s*,\s*([^,\r\n]+)`)
	// GS,+6200.0kg
	grossFrameRe = regexp.MustCompile(`(?i)\b(GS|NT|TR)\s*,\s*([^,\r\n]+)`)
	// -12.5 kg, 640, +13kg
	signedValueRe  = regexp.MustCompile(`(?i)^([-+]?)\s*(\d+(?:\.\d+)?)\s*(kg|lbs|lb|g|t)?$`)
	unitSuffixedRe = regexp.MustCompile(`(?i)(?:^|[^\d.,])([-+]?\d+(?:\.\d+)?)\s*(kg|lbs|lb|g|t)\b`)
	// 18460,5
	bareDecimalRe = regexp.MustCompile(`^(\d+(?:[.,]\d+)?)$`)

	bracketMarkerRe = regexp.MustCompile(`\[\d*\]`)
	digitRunRe      = regexp.MustCompile(`\d+`)
	numericFieldRe  = regexp.MustCompile(`[^0-9.+\-]`)
	unitTailRe      = regexp.MustCompile(`(?i)(kg|lbs|lb|g|t)\s*$`)
)

type rule struct {
	name  string
	apply func(frame string) (float64, string, bool)
}

// rules are tried in priority order; the first match wins.
var rules = []rule{
	{RuleStatusFrame, decodeStatusFrame},
	{RuleGrossFrame, decodeGrossFrame},
	{RuleSignedValue, decodeSignedValue},
	{RuleBareDecimal, decodeBareDecimal},
	{RuleBracketNoise, decodeBracketNoise},
	{RuleBinaryNoise, decodeBinaryNoise},
}

// Decode extracts a weight from one raw frame. It returns false when the
// frame holds no usable numeric candidate.
func Decode(raw string) (Result, bool) {
	frame := strings.TrimSpace(raw)
	if frame == "" {
		return Result{}, false
	}
	for _, r := range rules {
		v, unit, ok := r.apply(frame)
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if unit == "" {
			unit = DefaultUnit
		}
		return Result{Weight: Round1(v), Unit: unit, Rule: r.name}, true
	}
	return Result{}, false
}

// DecodeBytes is the fallback for devices that omit line terminators: control
// bytes are dropped before the chunk is decoded as text.
func DecodeBytes(chunk []byte) (Result, bool) {
	return Decode(StripControl(string(chunk)))
}

// StripControl removes ASCII control characters, keeping everything else.
func StripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func decodeStatusFrame(frame string) (float64, string, bool) {
	m := statusFrameRe.FindStringSubmatch(frame)
	if m == nil {
		return 0, "", false
	}
	return parseNumericField(m[3])
}

func decodeGrossFrame(frame string) (float64, string, bool) {
	m := grossFrameRe.FindStringSubmatch(frame)
	if m == nil {
		return 0, "", false
	}
	return parseNumericField(m[2])
}

func decodeSignedValue(frame string) (float64, string, bool) {
	if m := signedValueRe.FindStringSubmatch(frame); m != nil {
		v, err := strconv.ParseFloat(m[1]+m[2], 64)
		if err != nil {
			return 0, "", false
		}
		return v, normalizeUnit(m[3]), true
	}
	matches := unitSuffixedRe.FindAllStringSubmatch(frame, -1)
	if len(matches) == 0 {
		return 0, "", false
	}
	m := matches[len(matches)-1]
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, "", false
	}
	return v, normalizeUnit(m[2]), true
}

func decodeBareDecimal(frame string) (float64, string, bool) {
	m := bareDecimalRe.FindStringSubmatch(frame)
	if m == nil {
		return 0, "", false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil {
		return 0, "", false
	}
	return v, "", true
}

// decodeBracketNoise handles frames padded with "[00]" style markers: the
// markers are dropped and the last plausible digit run is taken.
func decodeBracketNoise(frame string) (float64, string, bool) {
	if !bracketMarkerRe.MatchString(frame) {
		return 0, "", false
	}
	candidates := plausibleRuns(bracketMarkerRe.ReplaceAllString(frame, " "))
	if len(candidates) == 0 {
		return 0, "", false
	}
	return candidates[len(candidates)-1], "", true
}

// decodeBinaryNoise handles frames carrying non-printable or non-ASCII filler:
// the largest plausible digit run is taken.
func decodeBinaryNoise(frame string) (float64, string, bool) {
	if !hasBinaryNoise(frame) {
		return 0, "", false
	}
	candidates := plausibleRuns(frame)
	if len(candidates) == 0 {
		return 0, "", false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c > best {
			best = c
		}
	}
	return best, "", true
}

func hasBinaryNoise(frame string) bool {
	for _, r := range frame {
		if r > unicode.MaxASCII || r == unicode.ReplacementChar || (r < 0x20 && r != '\t') || r == 0x7f {
			return true
		}
	}
	return false
}

func plausibleRuns(s string) []float64 {
	var out []float64
	for _, run := range digitRunRe.FindAllString(s, -1) {
		v, err := strconv.ParseFloat(run, 64)
		if err != nil {
			continue
		}
		if v >= noiseMin && v <= noiseMax {
			out = append(out, v)
		}
	}
	return out
}

// parseNumericField keeps only sign, digits and the decimal point of a
// vendor field such as "+012345.0kg".
func parseNumericField(field string) (float64, string, bool) {
	field = strings.TrimSpace(field)
	unit := ""
	if m := unitTailRe.FindStringSubmatch(field); m != nil {
		unit = normalizeUnit(m[1])
	}
	num := numericFieldRe.ReplaceAllString(field, "")
	if num == "" || num == "+" || num == "-" {
		return 0, "", false
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, "", false
	}
	return v, unit, true
}

func normalizeUnit(u string) string {
	u = strings.ToLower(strings.TrimSpace(u))
	if u == "lbs" {
		return "lb"
	}
	return u
}
