// CLAUDE:SUMMARY Query context analyzer — keyword matching maps free-text questions to required domains and a time window
package insights

import (
	"strings"
	"sync"
	"time"

	"github.com/har5h1l/wellnessgrid/internal/db"
)

// domainKeywords maps each domain to the (lowercased) terms that pull it
// into a question's required context. Multi-word entries match as phrases.
var domainKeywords = map[Domain][]string{
	DomainGlucose:    {"glucose", "sugar", "a1c", "blood sugar", "cgm", "hyperglycemia", "hypoglycemia"},
	DomainMood:       {"mood", "feel", "feeling", "stress", "stressed", "anxiety", "anxious", "depressed", "happy", "sad"},
	DomainSleep:      {"sleep", "slept", "insomnia", "tired", "rest", "bedtime"},
	DomainExercise:   {"exercise", "workout", "activity", "active", "walk", "walking", "run", "running", "steps"},
	DomainMedication: {"medication", "medications", "meds", "dose", "doses", "insulin", "pill", "pills", "adherence"},
	DomainSymptom:    {"symptom", "symptoms", "pain", "headache", "nausea", "dizzy", "fatigue"},
	DomainProfile:    {"profile", "condition", "conditions", "diagnosis", "age", "goal", "goals"},
}

// temporalHints maps time phrases to windows, checked in order so longer
// phrases win over their substrings.
var temporalHints = []struct {
	phrase string
	window Window
}{
	{"today", WindowToday},
	{"this week", Window7d},
	{"last week", Window7d},
	{"week", Window7d},
	{"recent", Window7d},
	{"recently", Window7d},
	{"this month", Window30d},
	{"last month", Window30d},
	{"month", Window30d},
	{"all time", WindowAll},
	{"all", WindowAll},
	{"history", WindowAll},
	{"ever", WindowAll},
}

// Analyzer maps free-text questions to context requirements and fetches the
// matching data subset from the store.
type Analyzer struct {
	store *db.DB
	agg   *Aggregator
	now   func() time.Time
}

func NewAnalyzer(store *db.DB, agg *Aggregator) *Analyzer {
	return &Analyzer{store: store, agg: agg, now: time.Now}
}

// SetClock overrides the analyzer's clock (tests pin it).
func (a *Analyzer) SetClock(now func() time.Time) { a.now = now }

// Analyze matches the query text against domain keyword sets and temporal
// hints. Multiple domains may match; zero matches default to
// {health-profile, glucose}, the most common question context for this
// product's primary condition.
func (a *Analyzer) Analyze(query string) ContextRequirements {
	q := " " + strings.ToLower(query) + " "
	words := tokenSet(q)

	var reqs ContextRequirements
	for _, domain := range append([]Domain{DomainProfile}, TrackedDomains...) {
		for _, kw := range domainKeywords[domain] {
			if matchKeyword(q, words, kw) {
				if domain == DomainProfile {
					reqs.IncludeProfile = true
				} else {
					reqs.Domains = append(reqs.Domains, domain)
				}
				break
			}
		}
	}

	reqs.Window = Window7d
	for _, hint := range temporalHints {
		if matchKeyword(q, words, hint.phrase) {
			reqs.Window = hint.window
			break
		}
	}

	if len(reqs.Domains) == 0 && !reqs.IncludeProfile {
		reqs.Domains = []Domain{DomainGlucose}
		reqs.IncludeProfile = true
	}
	return reqs
}

// Fetch issues one aggregation per required domain restricted to the
// resolved window, plus the non-windowed profile and conditions when asked
// for. Per-domain failures degrade to insufficient_data summaries; the
// fetch as a whole never fails because one domain did.
func (a *Analyzer) Fetch(userID string, reqs ContextRequirements) *UserDataSummary {
	now := a.now()
	since := reqs.Window.Since(now)

	out := &UserDataSummary{
		Summaries: make(map[Domain]DomainSummary, len(reqs.Domains)),
		Window:    reqs.Window.Label,
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, domain := range reqs.Domains {
		wg.Add(1)
		go func(domain Domain) {
			defer wg.Done()
			events, err := a.store.QueryEvents(userID, string(domain), since)
			if err != nil {
				events = nil // degrade to insufficient_data
			}
			summary := a.agg.Summarize(domain, reqs.Window, events)
			mu.Lock()
			out.Summaries[domain] = summary
			out.TotalDataPoints += summary.SampleCount
			mu.Unlock()
		}(domain)
	}

	if reqs.IncludeProfile {
		wg.Add(1)
		go func() {
			defer wg.Done()
			profile, err := a.store.GetProfile(userID)
			if err == nil {
				out.Profile = profile
			}
			conditions, err := a.store.GetConditions(userID)
			if err == nil {
				out.Conditions = conditions
			}
		}()
	}

	wg.Wait()
	return out
}

func tokenSet(q string) map[string]bool {
	words := strings.FieldsFunc(q, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// matchKeyword matches single words exactly (so "meds" does not fire on
// "medical") and multi-word phrases by substring.
func matchKeyword(q string, words map[string]bool, kw string) bool {
	if strings.Contains(kw, " ") {
		return strings.Contains(q, kw)
	}
	return words[kw]
}
