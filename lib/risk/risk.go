// Package risk maps client-reported interaction telemetry to a score in
// [0,1] estimating how likely the interaction was automated.
//
// Every input is untrusted and client-controlled; the score is a heuristic
// signal layered on top of proof of work, never an identity or
// authentication factor.
package risk

// AllowThreshold is the score at or below which an interaction is accepted
// without solving the fallback puzzle.
const AllowThreshold = 0.35

// Features is the interaction telemetry a client collects while solving the
// challenge. All fields default to zero, which reads as maximally
// suspicious.
type Features struct {
	MoveCount            int     `json:"move_count"`
	PathLength           float64 `json:"path_length"`
	AvgSpeed             float64 `json:"avg_speed"`
	MaxSpeed             float64 `json:"max_speed"`
	DirEntropy           float64 `json:"dir_entropy"`
	JitterRatio          float64 `json:"jitter_ratio"`
	IdleEvents           int     `json:"idle_events"`
	ScrollEvents         int     `json:"scroll_events"`
	KeyEvents            int     `json:"key_events"`
	KeyIntervalEntropy   float64 `json:"key_interval_entropy"`
	FocusChanges         int     `json:"focus_changes"`
	WindowBlurs          int     `json:"window_blurs"`
	TouchEvents          int     `json:"touch_events"`
	MoveIntervalEntropy  float64 `json:"move_interval_entropy"`
	StraightnessScore    float64 `json:"straightness_score"`
	AccelerationVariance float64 `json:"acceleration_variance"`
}

type rule struct {
	name    string
	penalty float64
	hit     func(Features) bool
}

// The rule table. Names are diagnostic-only: they show up in logs but must
// never cross the response boundary.
var rules = []rule{
	{"low move_count", 0.25, func(f Features) bool { return f.MoveCount < 20 }},
	{"short path", 0.20, func(f Features) bool { return f.PathLength < 200 }},
	{"no speed", 0.20, func(f Features) bool { return f.AvgSpeed <= 0 || f.MaxSpeed <= 0 }},
	{"low dir_entropy", 0.15, func(f Features) bool { return f.DirEntropy < 1.5 }},
	{"low micro-jitter", 0.10, func(f Features) bool { return f.JitterRatio < 0.02 }},
	{"low key timing entropy", 0.10, func(f Features) bool {
		return f.KeyEvents > 0 && f.KeyIntervalEntropy < 1.0
	}},
	{"very few interactions", 0.10, func(f Features) bool {
		return f.TouchEvents == 0 && f.ScrollEvents == 0 && f.KeyEvents == 0 && f.MoveCount < 40
	}},
	{"suspiciously uniform timing", 0.20, func(f Features) bool { return f.MoveIntervalEntropy < 1.2 }},
	{"suspiciously straight movements", 0.20, func(f Features) bool { return f.StraightnessScore > 0.95 }},
	{"unnaturally uniform acceleration", 0.15, func(f Features) bool { return f.AccelerationVariance < 0.01 }},
}

// Score is a pure function from features to a clamped risk score. The
// returned reasons name the rules that fired, for logging only.
func Score(f Features) (float64, []string) {
	var score float64
	var reasons []string

	for _, r := range rules {
		if r.hit(f) {
			score += r.penalty
			reasons = append(reasons, r.name)
		}
	}

	// small order-independent bonuses for signals that are annoying to
	// fake from a pure script
	if f.FocusChanges >= 1 {
		score -= 0.05
	}
	if f.WindowBlurs >= 1 {
		score -= 0.03
	}

	return clamp01(score), reasons
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
