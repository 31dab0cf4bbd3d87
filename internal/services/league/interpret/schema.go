package interpret

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	apperrors "github.com/hardwoodsim/league/internal/platform/errors"
	"github.com/hardwoodsim/league/internal/services/league/domain/event"
)

//go:embed schema.json
var interpretationSchema string

var schema = jsonschema.MustCompileString("interpretation/schema.json", interpretationSchema)

// ValidateInterpretation checks interpreter output against the embedded
// schema. The interpreter is an untrusted dependency; nothing it returns
// reaches a rule or effect without passing here first.
func ValidateInterpretation(interp *event.Interpretation) error {
	if interp == nil {
		return apperrors.New(apperrors.CodeInterpretationInvalid, "interpretation is missing")
	}

	encoded, err := json.Marshal(interp)
	if err != nil {
		return fmt.Errorf("encode interpretation: %w", err)
	}
	decoder := json.NewDecoder(bytes.NewReader(encoded))
	decoder.UseNumber()
	var doc any
	if err := decoder.Decode(&doc); err != nil {
		return fmt.Errorf("decode interpretation: %w", err)
	}

	if err := schema.Validate(doc); err != nil {
		return apperrors.Wrap(apperrors.CodeInterpretationInvalid,
			fmt.Sprintf("interpretation failed schema validation: %v", err), err)
	}
	return nil
}
