// Environment variables for a stack, accepted either as a serialized document (what
// CI hands us) or as a native map, normalized to Portainer's list of name/value pairs
package stackenv

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/function61/portainer-deploy/pkg/portainerclient"
	"github.com/go-yaml/yaml"
)

type Source struct {
	text   *string
	values map[string]string
}

// FromText takes a JSON object like {"A": "1"}. Key order of the document is kept and
// a repeated key takes its last value. Text that is not JSON is read as a YAML mapping.
func FromText(text string) Source {
	return Source{text: &text}
}

// FromMap takes a native map. Go maps are unordered, so pairs come out sorted by name.
func FromMap(values map[string]string) Source {
	return Source{values: values}
}

func (s Source) Normalize() ([]portainerclient.EnvPair, error) {
	if s.text != nil {
		return parseText(*s.text)
	}

	names := []string{}
	for name := range s.values {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := []portainerclient.EnvPair{}
	for _, name := range names {
		pairs = append(pairs, portainerclient.EnvPair{
			Name:  name,
			Value: s.values[name],
		})
	}

	return pairs, nil
}

func parseText(text string) ([]portainerclient.EnvPair, error) {
	switch strings.TrimSpace(text) {
	case "", "[]", "null", "{}":
		return []portainerclient.EnvPair{}, nil
	}

	if json.Valid([]byte(text)) {
		return parseJson(text)
	}

	return parseYaml(text)
}

// walks the object token by token so that document order survives
func parseJson(text string) ([]portainerclient.EnvPair, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, fmt.Errorf("environment: expecting key-value object")
	}

	pairs := newPairs()

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("environment: %w", err)
		}

		name := keyTok.(string) // object keys are always strings

		valueTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("environment: %s: %w", name, err)
		}

		var value string
		switch v := valueTok.(type) {
		case json.Delim:
			kind := "object"
			if v == '[' {
				kind = "array"
			}
			return nil, fmt.Errorf("environment: %s: unsupported value type %s", name, kind)
		case json.Number:
			value = v.String()
		default:
			value, err = scalarToString(v)
			if err != nil {
				return nil, fmt.Errorf("environment: %s: %w", name, err)
			}
		}

		if err := pairs.set(name, value); err != nil {
			return nil, err
		}
	}

	return pairs.list, nil
}

func parseYaml(text string) ([]portainerclient.EnvPair, error) {
	doc := yaml.MapSlice{}
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("environment: expecting key-value object: %w", err)
	}

	pairs := newPairs()

	for _, item := range doc {
		name, err := scalarToString(item.Key)
		if err != nil {
			return nil, fmt.Errorf("environment: key: %w", err)
		}

		value, err := scalarToString(item.Value)
		if err != nil {
			return nil, fmt.Errorf("environment: %s: %w", name, err)
		}

		if err := pairs.set(name, value); err != nil {
			return nil, err
		}
	}

	return pairs.list, nil
}

// a repeated name keeps its first position but takes the last value
type orderedPairs struct {
	list  []portainerclient.EnvPair
	index map[string]int
}

func newPairs() *orderedPairs {
	return &orderedPairs{
		list:  []portainerclient.EnvPair{},
		index: map[string]int{},
	}
}

func (o *orderedPairs) set(name string, value string) error {
	if name == "" {
		return fmt.Errorf("environment: empty variable name")
	}

	if idx, seen := o.index[name]; seen {
		o.list[idx].Value = value
		return nil
	}

	o.index[name] = len(o.list)
	o.list = append(o.list, portainerclient.EnvPair{
		Name:  name,
		Value: value,
	})

	return nil
}

func scalarToString(val interface{}) (string, error) {
	switch v := val.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", val)
	}
}
