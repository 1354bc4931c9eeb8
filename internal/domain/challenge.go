package domain

// Category determines which accuracy strategy applies to a challenge's
// generated artifact.
type Category string

const (
	// CategoryGeneric covers free-form code/text challenges graded by
	// text similarity against a target.
	CategoryGeneric Category = "generic"

	// CategoryDebug covers fix-the-bug challenges, also graded by text
	// similarity against the corrected target.
	CategoryDebug Category = "debug"

	// CategoryFunction covers implement-a-function challenges graded by
	// unit-test pass rate in a sandbox.
	CategoryFunction Category = "function"

	// CategoryUI covers HTML/CSS challenges graded by vision comparison
	// against a reference image.
	CategoryUI Category = "ui"

	// CategoryProduct covers PRD/product challenges graded by an LLM
	// rubric, or by efficiency alone when no rubric is configured.
	CategoryProduct Category = "product"
)

// Difficulty selects the efficiency baselines used for scoring.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// TestCase is one sandbox-executed check for a function challenge.
// Input and Expected are expressions evaluated against the generated
// code inside the sandbox; results are compared structurally.
type TestCase struct {
	// Input is the expression invoking the candidate's code.
	Input string `json:"input" yaml:"input"`

	// Expected is the expression producing the expected value.
	Expected string `json:"expected_output" yaml:"expected"`
}

// Rubric configures LLM-judged grading for challenges without an
// automatable correctness check.
type Rubric struct {
	// Dimensions are the named axes scored 0-10 each. Empty means the
	// default dimension set.
	Dimensions []string `json:"dimensions" yaml:"dimensions"`

	// RequireResearch adds the Research dimension to the default set.
	RequireResearch bool `json:"require_research" yaml:"require_research"`
}

// DefaultRubricDimensions is the fixed dimension set used when a rubric
// does not name its own.
func DefaultRubricDimensions(requireResearch bool) []string {
	dims := []string{
		"Feasibility",
		"Expertise",
		"Clarity & Actionability",
		"Alignment with Discovery",
	}
	if requireResearch {
		dims = append(dims, "Research")
	}
	return dims
}

// Challenge is the reference problem a session attempts. It is read-only
// to the scoring core and supplies the category-specific ground truth.
type Challenge struct {
	// ID uniquely identifies the challenge.
	ID string `json:"id" yaml:"id"`

	// Title is a human-readable name.
	Title string `json:"title" yaml:"title"`

	// Category selects the accuracy strategy.
	Category Category `json:"category" yaml:"category"`

	// Difficulty selects the efficiency baselines.
	Difficulty Difficulty `json:"difficulty" yaml:"difficulty"`

	// Description is shown to the candidate and given to judges as
	// context.
	Description string `json:"description" yaml:"description"`

	// TargetText is the reference artifact for text-similarity grading.
	TargetText string `json:"target_text,omitempty" yaml:"target_text"`

	// Tests is the unit-test suite for function challenges.
	Tests []TestCase `json:"tests,omitempty" yaml:"tests"`

	// ReferenceImageURL points at the reference screenshot for UI
	// challenges.
	ReferenceImageURL string `json:"reference_image_url,omitempty" yaml:"reference_image_url"`

	// Rubric configures LLM grading for product challenges. Nil means
	// the challenge has no accuracy signal at all.
	Rubric *Rubric `json:"rubric,omitempty" yaml:"rubric"`
}

// RubricDimensions returns the effective dimension list for this
// challenge's rubric.
func (c *Challenge) RubricDimensions() []string {
	if c.Rubric == nil {
		return nil
	}
	if len(c.Rubric.Dimensions) > 0 {
		return c.Rubric.Dimensions
	}
	return DefaultRubricDimensions(c.Rubric.RequireResearch)
}
