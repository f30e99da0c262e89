package datalake

import (
	"regexp"
	"strings"
	"time"
)

// ClassifySource infers the source type from a report filename. Vendors do
// not version their export names, so matching is on stable prefixes and
// substrings. Order matters: PI payments exports contain "sales" in some
// markets, so the payments prefix is checked first. Unrecognised names
// classify as SourceOther, never an error.
func ClassifySource(filename string) SourceType {
	name := strings.ToLower(strings.TrimSpace(filename))
	switch {
	case name == "":
		return SourceOther
	case strings.HasPrefix(name, "payments"):
		return SourcePIPayments
	case strings.Contains(name, "sales"):
		return SourcePISales
	case strings.HasPrefix(name, "dailybankrecon"):
		return SourceIPSCC
	case strings.HasPrefix(name, "pbp"):
		return SourceIPSMobile
	case strings.HasPrefix(name, "collection report"):
		return SourceIPSCash
	case strings.HasPrefix(name, "windcave"), strings.HasPrefix(name, "wc"):
		return SourceWindcave
	}
	return SourceOther
}

var (
	dateISORe        = regexp.MustCompile(`(20\d{2})-(\d{2})-(\d{2})`)
	dateCompactRe    = regexp.MustCompile(`(20\d{2})(\d{2})(\d{2})`)
	dateUnderscoreRe = regexp.MustCompile(`(\d{2})_(\d{2})_(20\d{2})`)
)

// ExtractReportDate pulls a report date out of the filename. Vendor exports
// embed the date in several shapes, and it is always the export date: the
// report covers the day before it. When no date parses, the report is
// assumed to cover the day before upload, which is how the nightly exports
// arrive.
func ExtractReportDate(filename string, uploadedAt time.Time) time.Time {
	name := strings.TrimSpace(filename)

	if m := dateISORe.FindStringSubmatch(name); m != nil {
		if t, err := time.Parse("2006-01-02", m[1]+"-"+m[2]+"-"+m[3]); err == nil {
			return t.AddDate(0, 0, -1)
		}
	}
	if m := dateCompactRe.FindStringSubmatch(name); m != nil {
		if t, err := time.Parse("20060102", m[1]+m[2]+m[3]); err == nil {
			return t.AddDate(0, 0, -1)
		}
	}
	if m := dateUnderscoreRe.FindStringSubmatch(name); m != nil {
		if t, err := time.Parse("2006-01-02", m[3]+"-"+m[1]+"-"+m[2]); err == nil {
			return t.AddDate(0, 0, -1)
		}
	}

	y, mo, d := uploadedAt.AddDate(0, 0, -1).Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}
