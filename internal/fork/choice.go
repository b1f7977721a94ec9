package fork

// Rule names a fork-choice rule. The set is closed, so it is encoded
// as a tagged enum with exhaustive matching rather than an interface
// with runtime-registered implementations.
type Rule int

const (
	LongestChain Rule = iota
	HeaviestChain
	LatestJustified
)

func (r Rule) String() string {
	switch r {
	case LongestChain:
		return "longest_chain"
	case HeaviestChain:
		return "heaviest_chain"
	case LatestJustified:
		return "latest_justified"
	default:
		return "unknown"
	}
}

// Candidate is one competing tip considered by a fork-choice decision.
type Candidate struct {
	Tip                 []byte
	Length              uint64
	HighestJustified     uint64 // highest justified checkpoint reachable from Tip
}

// Choose picks the winning candidate under rule. LongestChain and
// HeaviestChain are equivalent at this layer (cumulative work equals
// length); LatestJustified prefers the candidate extending the
// highest justified checkpoint, breaking ties by length. An empty
// candidate list returns ok=false.
func Choose(rule Rule, candidates []Candidate) (winner Candidate, ok bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if better(rule, c, best) {
			best = c
		}
	}
	return best, true
}

func better(rule Rule, a, b Candidate) bool {
	switch rule {
	case LatestJustified:
		if a.HighestJustified != b.HighestJustified {
			return a.HighestJustified > b.HighestJustified
		}
		return a.Length > b.Length
	case LongestChain, HeaviestChain:
		fallthrough
	default:
		return a.Length > b.Length
	}
}
