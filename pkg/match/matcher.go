package match

import (
	"errors"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/harrisonrobin/weworkmcp/pkg/model"
)

const (
	// DefaultThreshold is the minimum similarity a fuzzy match must reach.
	DefaultThreshold = 0.3

	exactScore   = 1.0
	partialScore = 0.8
	searchFloor  = 0.3
)

var ErrNegativeLimit = errors.New("search limit must not be negative")

// Result is the outcome of FindBestMatch. Project is nil when nothing met the threshold;
// Score is then the closest similarity seen.
type Result struct {
	Project *model.Project
	Score   float64
}

func (r Result) Found() bool { return r.Project != nil }

// ProjectMatcher resolves free-text project names against a project list.
type ProjectMatcher struct {
	// Primary scores candidates; Fallback is used when Primary is nil or fails.
	Primary  Matcher
	Fallback Matcher
	Logger   logrus.FieldLogger
}

func New(logger logrus.FieldLogger) *ProjectMatcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ProjectMatcher{
		Primary:  NewNgramCosineMatcher(),
		Fallback: CharacterSetJaccardMatcher{},
		Logger:   logger,
	}
}

// FindBestMatch returns the project whose name best matches query.
//
// Any case-insensitive substring relation between the query and a name wins immediately
// with score 1.0, in list order. Note this also matches a one-letter query against any
// name containing that letter. Otherwise the Primary matcher decides, falling back to
// the Fallback matcher on error.
func (m *ProjectMatcher) FindBestMatch(query string, projects []model.Project, threshold float64) Result {
	if len(projects) == 0 {
		return Result{}
	}

	q := normalize(query)
	names := make([]string, len(projects))
	for i := range projects {
		names[i] = normalize(projects[i].Name)
		if contains(q, names[i]) {
			return Result{Project: &projects[i], Score: exactScore}
		}
	}

	idx, score, err := m.best(q, names, threshold)
	if err != nil {
		m.Logger.WithError(err).Warn("project matching failed")
		return Result{}
	}
	if idx < 0 {
		return Result{Score: score}
	}
	return Result{Project: &projects[idx], Score: score}
}

func (m *ProjectMatcher) best(q string, names []string, threshold float64) (int, float64, error) {
	if m.Primary != nil {
		idx, score, err := m.Primary.Best(q, names, threshold)
		if err == nil {
			return idx, score, nil
		}
		m.Logger.WithError(err).Debug("primary matcher failed, using fallback")
	}
	if m.Fallback == nil {
		return -1, 0, errors.New("no fallback matcher configured")
	}
	return m.Fallback.Best(q, names, threshold)
}

type scoredProject struct {
	project model.Project
	score   float64
}

// Search ranks projects against query: 1.0 for an equal name, 0.8 for a substring
// relation, otherwise the fuzzy score of that project alone, kept only above 0.3.
// Results are ordered by descending score, ties in list order, and capped at limit.
func (m *ProjectMatcher) Search(query string, projects []model.Project, limit int) ([]model.Project, error) {
	if limit < 0 {
		return nil, ErrNegativeLimit
	}

	q := normalize(query)
	var hits []scoredProject
	for _, p := range projects {
		name := normalize(p.Name)
		switch {
		case q == name:
			hits = append(hits, scoredProject{p, exactScore})
		case contains(q, name):
			hits = append(hits, scoredProject{p, partialScore})
		default:
			r := m.FindBestMatch(query, []model.Project{p}, DefaultThreshold)
			if r.Score > searchFloor {
				hits = append(hits, scoredProject{p, r.Score})
			}
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]model.Project, len(hits))
	for i, h := range hits {
		out[i] = h.project
	}
	return out, nil
}

func normalize(s string) string {
	return cases.Lower(language.Und).String(norm.NFC.String(s))
}

func contains(a, b string) bool {
	return strings.Contains(b, a) || strings.Contains(a, b)
}
