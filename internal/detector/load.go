package detector

import (
	"embed"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonschema"
	"go.uber.org/zap"

	"github.com/driftdetect/backend/pkg/logger"
)

//go:embed schema/definition.schema.json
var schemaFS embed.FS

// document is the on-disk shape of a Definition.
type document struct {
	Name            string      `json:"name"`
	ValidationQuery string      `json:"validation_query"`
	DetectorType    json.Number `json:"detector_type"`
	Expectations    [][]string  `json:"expectations"`
}

// DefinitionError reports a definition document that could not be turned
// into a Definition.
type DefinitionError struct {
	Path     string
	Messages []string
	Err      error
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("unable to create detector from %s: %s", e.Path, strings.Join(e.Messages, "; "))
}

func (e *DefinitionError) Unwrap() error {
	return e.Err
}

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	data, err := schemaFS.ReadFile("schema/definition.schema.json")
	if err != nil {
		return nil, fmt.Errorf("read definition schema: %w", err)
	}
	schema, err := jsonschema.NewCompiler().Compile(data)
	if err != nil {
		return nil, fmt.Errorf("compile definition schema: %w", err)
	}
	return schema, nil
})

// LoadFromFile reads one definition document. Any structural problem yields
// a *DefinitionError, which is logged before it is returned.
func LoadFromFile(path string) (*Definition, error) {
	logger.Debug("Creating detector from json file", zap.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, failLoad(&DefinitionError{Path: path, Messages: []string{err.Error()}, Err: err})
	}
	return Parse(path, data)
}

// Parse builds a Definition from document bytes. source identifies the
// document in errors and logs.
func Parse(source string, data []byte) (*Definition, error) {
	if !json.Valid(data) {
		return nil, failLoad(&DefinitionError{Path: source, Messages: []string{"document is not valid JSON"}})
	}

	schema, err := compiledSchema()
	if err != nil {
		return nil, err
	}

	result := schema.ValidateJSON(data)
	if !result.IsValid() {
		return nil, failLoad(&DefinitionError{Path: source, Messages: validationMessages(result)})
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, failLoad(&DefinitionError{Path: source, Messages: []string{err.Error()}, Err: err})
	}

	kind, err := decodeKind(doc.DetectorType)
	if err != nil {
		return nil, failLoad(&DefinitionError{
			Path:     source,
			Messages: []string{fmt.Sprintf("detector_type: %v", err)},
			Err:      err,
		})
	}

	return New(doc.Name, doc.ValidationQuery, doc.Expectations, kind), nil
}

// decodeKind accepts any integral JSON number, so 1 and 1.0 are the same code.
func decodeKind(n json.Number) (Kind, error) {
	if i, err := n.Int64(); err == nil && i >= math.MinInt32 && i <= math.MaxInt32 {
		return KindFromCode(int(i))
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %s", ErrUnknownKind, n)
	}
	return KindFromCode(int(f))
}

// validationMessages flattens a schema result into one message per failing
// instance location, e.g. "/expectations/0/1: Value is number but should be string".
func validationMessages(result *jsonschema.EvaluationResult) []string {
	var msgs []string
	collectMessages(result, "", &msgs)
	sort.Strings(msgs)
	if len(msgs) == 0 {
		msgs = append(msgs, "document does not match the definition schema")
	}
	return msgs
}

func collectMessages(result *jsonschema.EvaluationResult, parent string, msgs *[]string) {
	if result == nil || result.IsValid() {
		return
	}

	location := parent + result.InstanceLocation
	nested := false
	for _, detail := range result.Details {
		if detail != nil && !detail.IsValid() {
			nested = true
			collectMessages(detail, location, msgs)
		}
	}

	where := location
	if where == "" {
		where = "/"
	}
	for keyword, e := range result.Errors {
		// properties and items only summarize the nested failures above.
		if nested && (keyword == "properties" || keyword == "items") {
			continue
		}
		*msgs = append(*msgs, fmt.Sprintf("%s: %s", where, e.Error()))
	}
}

func failLoad(err *DefinitionError) error {
	logger.Error("Unable to create detector from file",
		zap.String("path", err.Path),
		zap.Strings("errors", err.Messages),
		zap.Error(err.Err),
	)
	return err
}

// LoadDir loads every *.json document in dir in file name order. The first
// invalid document aborts the load.
func LoadDir(dir string) ([]*Definition, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list detector definitions: %w", err)
	}
	sort.Strings(paths)

	defs := make([]*Definition, 0, len(paths))
	for _, p := range paths {
		def, err := LoadFromFile(p)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	logger.Info("Detector definitions loaded", zap.String("dir", dir), zap.Int("count", len(defs)))
	return defs, nil
}

// Load loads a single document or, when path is a directory, every document in it.
func Load(path string) ([]*Definition, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat detector path: %w", err)
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	def, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	return []*Definition{def}, nil
}
