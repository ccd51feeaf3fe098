// Package scoring computes deterministic quality scores for contributions.
//
// The scorer is a pure function of the contribution attributes: no I/O, no
// clock reads, no external calls. Identical inputs always produce identical
// scores, which keeps batch re-scoring and attestation rebuilding stable.
package scoring

import (
	"math"
	"regexp"
	"strings"
)

// Default scoring configuration constants.
const (
	defaultMintThreshold = 80

	minSummaryLength = 10

	filesImpactBase  = 60
	filesImpactFloor = 30
	filesImpactCeil  = 95

	metadataBase = 50
	metadataCap  = 95

	largeFileChanges = 500
)

// Default aggregate weights per dimension.
const (
	defaultWeightConvention   = 0.25
	defaultWeightSize         = 0.20
	defaultWeightFilesImpact  = 0.20
	defaultWeightMergeSignal  = 0.15
	defaultWeightCompleteness = 0.20
)

var (
	// Conventional-commit style prefix, e.g. "feat:", "fix(parser):".
	conventionPattern = regexp.MustCompile(`^(feat|fix|docs|style|refactor|perf|test|build|ci|chore|revert)(\([^)]+\))?!?:\s`)
	urlPattern        = regexp.MustCompile(`https?://\S+`)
	closesPattern     = regexp.MustCompile(`(?i)\b(close[sd]?|fix(e[sd])?|resolve[sd]?)\s+#\d+`)
	testFilePattern   = regexp.MustCompile(`(_test\.go$|\.test\.[jt]sx?$|\.spec\.[jt]sx?$|(^|/)tests?/)`)
	docFilePattern    = regexp.MustCompile(`(?i)(\.md$|\.rst$|\.txt$|(^|/)docs?/)`)
)

// Input holds the contribution attributes the scorer evaluates.
type Input struct {
	Message   string
	Additions int
	Deletions int
	Files     []File
	Merged    bool
}

// File describes one changed file.
type File struct {
	Path    string
	Changes int
}

// Breakdown holds the five dimensional sub-scores, each in 0-100.
type Breakdown struct {
	Convention           int `json:"convention"`
	Size                 int `json:"size"`
	FilesImpact          int `json:"files_impact"`
	MergeSignal          int `json:"merge_signal"`
	MetadataCompleteness int `json:"metadata_completeness"`
}

// Result is the outcome of a scoring pass.
type Result struct {
	Score     int
	Breakdown Breakdown
	Eligible  bool
}

// Weights control the aggregate weighting of the sub-scores.
type Weights struct {
	Convention           float64
	Size                 float64
	FilesImpact          float64
	MergeSignal          float64
	MetadataCompleteness float64
}

// DefaultWeights returns the standard dimension weights.
func DefaultWeights() Weights {
	return Weights{
		Convention:           defaultWeightConvention,
		Size:                 defaultWeightSize,
		FilesImpact:          defaultWeightFilesImpact,
		MergeSignal:          defaultWeightMergeSignal,
		MetadataCompleteness: defaultWeightCompleteness,
	}
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithWeights overrides the aggregate dimension weights.
func WithWeights(w Weights) Option {
	return func(e *Engine) {
		total := w.Convention + w.Size + w.FilesImpact + w.MergeSignal + w.MetadataCompleteness
		if total > 0 {
			e.weights = w
		}
	}
}

// WithMintThreshold overrides the eligibility threshold.
func WithMintThreshold(threshold int) Option {
	return func(e *Engine) {
		if threshold > 0 && threshold <= 100 {
			e.threshold = threshold
		}
	}
}

// Engine evaluates contribution quality. Safe for concurrent use.
type Engine struct {
	weights   Weights
	threshold int
}

// NewEngine creates a scoring engine with configuration options.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		weights:   DefaultWeights(),
		threshold: defaultMintThreshold,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Threshold returns the configured mint threshold.
func (e *Engine) Threshold() int { return e.threshold }

// Evaluate computes the weighted aggregate score and its breakdown.
func (e *Engine) Evaluate(in Input) Result {
	b := Breakdown{
		Convention:           scoreConvention(in.Message),
		Size:                 scoreSize(in.Additions + in.Deletions),
		FilesImpact:          scoreFilesImpact(in.Files),
		MergeSignal:          scoreMergeSignal(in.Merged),
		MetadataCompleteness: scoreMetadataCompleteness(in.Message),
	}

	aggregate := float64(b.Convention)*e.weights.Convention +
		float64(b.Size)*e.weights.Size +
		float64(b.FilesImpact)*e.weights.FilesImpact +
		float64(b.MergeSignal)*e.weights.MergeSignal +
		float64(b.MetadataCompleteness)*e.weights.MetadataCompleteness

	score := int(math.Round(aggregate))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return Result{
		Score:     score,
		Breakdown: b,
		Eligible:  score >= e.threshold,
	}
}

// scoreConvention rewards a recognized type-prefix pattern and a
// non-trivial summary line.
func scoreConvention(message string) int {
	summary := message
	if idx := strings.IndexByte(message, '\n'); idx >= 0 {
		summary = message[:idx]
	}
	summary = strings.TrimSpace(summary)

	score := 0
	if conventionPattern.MatchString(summary) {
		score += 60
	}
	if len(summary) >= minSummaryLength {
		score += 40
	}
	return score
}

// scoreSize applies an inverse-U curve over the total changed lines:
// trivially small and very large changesets score lower than moderate ones.
func scoreSize(totalLines int) int {
	switch {
	case totalLines == 0:
		return 40
	case totalLines <= 50:
		return 95
	case totalLines <= 200:
		return 85
	case totalLines <= 500:
		return 70
	case totalLines <= 1000:
		return 55
	default:
		return 40
	}
}

func scoreFilesImpact(files []File) int {
	score := filesImpactBase

	hasTest := false
	allDocs := len(files) > 0
	hasHuge := false
	for _, f := range files {
		if testFilePattern.MatchString(f.Path) {
			hasTest = true
		}
		if !docFilePattern.MatchString(f.Path) {
			allDocs = false
		}
		if f.Changes > largeFileChanges {
			hasHuge = true
		}
	}

	if hasTest {
		score += 15
	}
	if allDocs {
		score -= 20
	}
	if hasHuge {
		score -= 10
	}

	if score < filesImpactFloor {
		score = filesImpactFloor
	}
	if score > filesImpactCeil {
		score = filesImpactCeil
	}
	return score
}

func scoreMergeSignal(merged bool) int {
	if merged {
		return 90
	}
	return 50
}

func scoreMetadataCompleteness(message string) int {
	score := metadataBase
	if strings.TrimSpace(message) != "" {
		score += 20
	}
	if urlPattern.MatchString(message) {
		score += 20
	}
	if closesPattern.MatchString(message) {
		score += 10
	}
	if score > metadataCap {
		score = metadataCap
	}
	return score
}
