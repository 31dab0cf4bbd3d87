package interpret

import (
	"context"
	"log"

	"github.com/hardwoodsim/league/internal/services/league/domain/event"
	"github.com/hardwoodsim/league/internal/services/league/domain/ruleset"
)

// Result is what the external interpretation service returns for one
// proposal text.
type Result struct {
	Interpretation *event.Interpretation
	Confidence     float64
	// InjectionFlagged marks text the interpreter itself considered hostile.
	InjectionFlagged bool
	// RejectionReason is set when the interpreter refused the text.
	RejectionReason string
	// Fallback marks a degraded response that should not be trusted as final.
	Fallback bool
}

// Interpreter turns sanitized proposal text into a structured interpretation.
// Implementations may be slow and may fail; callers route failures through
// the deferred retry path.
type Interpreter interface {
	Interpret(ctx context.Context, sanitizedText string, config *ruleset.Config) (Result, error)
}

// Unavailable is the Interpreter used when no interpretation service is
// wired. Every call returns a fallback result, so submissions park on the
// deferred retry path until the reconciler expires and refunds them.
type Unavailable struct{}

// Interpret always reports a fallback response.
func (Unavailable) Interpret(ctx context.Context, sanitizedText string, config *ruleset.Config) (Result, error) {
	return Result{Fallback: true}, nil
}

// Label classifies proposal text ahead of interpretation.
type Label string

const (
	LabelLegitimate Label = "legitimate"
	LabelSuspicious Label = "suspicious"
	LabelInjection  Label = "injection"
)

// Classification is the pre-flight safety check result.
type Classification struct {
	Label      Label
	Confidence float64
}

// Classifier performs the pre-flight safety check on sanitized text.
type Classifier interface {
	Classify(ctx context.Context, sanitizedText string) (Classification, error)
}

// ClassifySafe wraps a classifier with the fail-open contract: any error is
// treated as legitimate with zero confidence, never as a block.
func ClassifySafe(ctx context.Context, classifier Classifier, sanitizedText string) Classification {
	if classifier == nil {
		return Classification{Label: LabelLegitimate}
	}
	classification, err := classifier.Classify(ctx, sanitizedText)
	if err != nil {
		log.Printf("[INTERPRET] classifier failed open: %v", err)
		return Classification{Label: LabelLegitimate}
	}
	return classification
}
