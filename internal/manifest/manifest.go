// Package manifest implements the engine's manifest-parsing port: turning a
// YAML string, an in-memory object literal, or anything that reads bytes,
// into a validated *unstructured.Unstructured ready for the cluster client.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"sigs.k8s.io/yaml"
)

// ValidationError lists every missing-field problem found on one manifest.
// A manifest failing validation never reaches the cluster client.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid manifest: %v", e.Problems)
}

// ParseAny accepts a YAML document string, a decoded object literal
// (map[string]any), or an io.Reader yielding exactly one document, and
// returns a validated *unstructured.Unstructured. Validation requires
// non-empty apiVersion, kind, and metadata.name.
func ParseAny(value any) (*unstructured.Unstructured, error) {
	obj, err := toUnstructured(value)
	if err != nil {
		return nil, err
	}
	if err := validate(obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func toUnstructured(value any) (*unstructured.Unstructured, error) {
	switch v := value.(type) {
	case *unstructured.Unstructured:
		return v, nil
	case map[string]any:
		return &unstructured.Unstructured{Object: v}, nil
	case string:
		return decodeOne([]byte(v))
	case []byte:
		return decodeOne(v)
	case io.Reader:
		data, err := io.ReadAll(v)
		if err != nil {
			return nil, fmt.Errorf("reading manifest: %w", err)
		}
		return decodeOne(data)
	default:
		return nil, fmt.Errorf("manifest: unsupported input type %T", value)
	}
}

func decodeOne(data []byte) (*unstructured.Unstructured, error) {
	obj := &unstructured.Unstructured{}
	if err := yaml.Unmarshal(data, &obj.Object); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	return obj, nil
}

func validate(obj *unstructured.Unstructured) error {
	var problems []string
	if obj.GetAPIVersion() == "" {
		problems = append(problems, "apiVersion is required")
	}
	if obj.GetKind() == "" {
		problems = append(problems, "kind is required")
	}
	if obj.GetName() == "" {
		problems = append(problems, "metadata.name is required")
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// ParseMany splits data, which may contain several YAML/JSON documents
// separated by "---", into validated objects. Documents failing validation
// are reported individually in errs rather than silently dropped; valid
// documents are still returned alongside them.
func ParseMany(data []byte) (valid []*unstructured.Unstructured, errs []error) {
	stream := utilyaml.NewYAMLOrJSONDecoder(bytes.NewReader(data), 4096)

	for {
		obj := &unstructured.Unstructured{}
		if err := stream.Decode(obj); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			errs = append(errs, err)
			break
		}
		if len(obj.Object) == 0 {
			continue
		}
		if err := validate(obj); err != nil {
			errs = append(errs, err)
			continue
		}
		valid = append(valid, obj)
	}

	return valid, errs
}
