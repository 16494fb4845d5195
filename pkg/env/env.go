// Package env expands env(VAR) references in configuration values.
//
// A reference may carry a default, env(VAR:-fallback), used when VAR is
// unset. References to unset variables without a default are left in place
// so CheckResolved can report them against the field that needs them.
package env

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/goccy/go-yaml/ast"
)

// envVarPattern matches env(VAR_NAME) and env(VAR_NAME:-default) patterns
var envVarPattern = regexp.MustCompile(`env\(([^)]+)\)`)

// disallowedControlChars contains control characters that are not safe to inject
// into configuration values. Newlines and tabs are allowed for multiline secrets.
var disallowedControlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)

// LookupFunc resolves a variable name, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// SubstituteEnvVarsNode replaces env(...) references in YAML value nodes
// using the process environment. Map keys are not modified.
func SubstituteEnvVarsNode(node ast.Node) error {
	_, err := Substitute(node, os.LookupEnv)
	return err
}

// Substitute replaces env(...) references in value nodes using lookup and
// returns the names of the variables it could not resolve.
func Substitute(node ast.Node, lookup LookupFunc) ([]string, error) {
	if node == nil {
		return nil, nil
	}
	s := &substituter{lookup: lookup, seen: map[string]bool{}}
	if err := s.walk(node, true); err != nil {
		return nil, err
	}
	return s.unresolved, nil
}

type substituter struct {
	lookup     LookupFunc
	unresolved []string
	seen       map[string]bool
}

func (s *substituter) walk(node ast.Node, inValue bool) error {
	switch n := node.(type) {
	case *ast.DocumentNode:
		if n.Body == nil {
			return nil
		}
		return s.walk(n.Body, true)
	case *ast.MappingNode:
		for _, value := range n.Values {
			if err := s.walk(value, inValue); err != nil {
				return err
			}
		}
	case *ast.MappingValueNode:
		if n.Value != nil {
			return s.walk(n.Value, true)
		}
	case *ast.SequenceNode:
		for _, value := range n.Values {
			if err := s.walk(value, true); err != nil {
				return err
			}
		}
	case *ast.TagNode:
		if n.Value != nil {
			return s.walk(n.Value, inValue)
		}
	case *ast.AnchorNode:
		if n.Value != nil {
			return s.walk(n.Value, inValue)
		}
	case *ast.LiteralNode:
		if inValue && n.Value != nil {
			replaced, err := s.expand(n.Value.Value)
			if err != nil {
				return err
			}
			n.Value.Value = replaced
		}
	case *ast.StringNode:
		if inValue {
			replaced, err := s.expand(n.Value)
			if err != nil {
				return err
			}
			n.Value = replaced
		}
	}
	return nil
}

func (s *substituter) expand(input string) (string, error) {
	var err error
	result := envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		if err != nil {
			return match
		}
		ref := strings.TrimSuffix(strings.TrimPrefix(match, "env("), ")")
		key, def, hasDefault := strings.Cut(ref, ":-")

		value, ok := s.lookup(key)
		if !ok {
			if hasDefault {
				return def
			}
			if !s.seen[key] {
				s.seen[key] = true
				s.unresolved = append(s.unresolved, key)
			}
			return match
		}
		if disallowedControlChars.MatchString(value) {
			err = fmt.Errorf("environment variable %s contains disallowed control characters", key)
			return match
		}
		return value
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

// CheckResolved verifies that a config value contains no unresolved env(...)
// references, producing errors like:
// "notarize.issuer_id: environment variable ASC_ISSUER_ID is not set".
func CheckResolved(value, field string) error {
	if m := envVarPattern.FindStringSubmatch(value); m != nil {
		key, _, _ := strings.Cut(m[1], ":-")
		return fmt.Errorf("%s: environment variable %s is not set", field, key)
	}
	return nil
}
