package appraisal

// Verdict grades an asking price against the appraised value.
type Verdict string

const (
	VerdictGreat       Verdict = "great"
	VerdictFair        Verdict = "fair"
	VerdictBad         Verdict = "bad"
	VerdictUnavailable Verdict = "unavailable"
)

// Label returns a human-readable description of the verdict.
func (v Verdict) Label() string {
	switch v {
	case VerdictGreat:
		return "Great Price"
	case VerdictFair:
		return "Fair Price"
	case VerdictBad:
		return "Bad Price"
	default:
		return "Not Available"
	}
}

// EvaluatePrice compares proposed to appraised. Under 90% of the appraisal is
// great, up to 110% is fair, anything higher is bad. Without an appraisal the
// verdict is unavailable.
func EvaluatePrice(appraised, proposed float64) Verdict {
	switch {
	case appraised <= 0:
		return VerdictUnavailable
	case proposed < appraised*0.9:
		return VerdictGreat
	case proposed <= appraised*1.1:
		return VerdictFair
	default:
		return VerdictBad
	}
}
