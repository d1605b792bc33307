package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var interpPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// interpolate walks src and writes an equivalent tree into dst, substituting
// "${...}" references in string scalars. References are resolved first
// against the fully-parsed root tree (by dotted key path), then against
// the process environment. Vault references ("??key") are left untouched:
// they are resolved lazily on read, never during this pass, so secrets
// never pass through string interpolation.
func interpolate(root, src, dst *Node) error {
	for _, key := range src.keys {
		val := src.values[key]

		resolvedVal, err := interpolateValue(root, val)
		if err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}

		dst.set(key, resolvedVal)
	}

	return nil
}

func interpolateValue(root *Node, val any) (any, error) {
	switch v := val.(type) {
	case string:
		return interpolateString(root, v)

	case vaultRef:
		return v, nil

	case *Node:
		resolved := newNode(root.vault)
		if err := interpolate(root, v, resolved); err != nil {
			return nil, err
		}
		return resolved, nil

	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			resolvedItem, err := interpolateValue(root, item)
			if err != nil {
				return nil, err
			}
			out[i] = resolvedItem
		}
		return out, nil

	default:
		return val, nil
	}
}

func interpolateString(root *Node, s string) (string, error) {
	var resolveErr error

	out := interpPattern.ReplaceAllStringFunc(s, func(match string) string {
		ref := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")

		resolved, err := resolveReference(root, ref)
		if err != nil {
			resolveErr = err
			return match
		}

		return resolved
	})

	if resolveErr != nil {
		return "", resolveErr
	}

	return out, nil
}

// resolveReference resolves a single "${...}" body against the
// already-parsed configuration tree by dotted path, falling back to an
// environment variable of the same name.
func resolveReference(root *Node, ref string) (string, error) {
	if val, err := resolveDottedPath(root, ref); err == nil {
		return val, nil
	}

	if val, ok := os.LookupEnv(ref); ok {
		return val, nil
	}

	return "", fmt.Errorf("could not resolve substitution ${%s}: "+
		"no such configuration key or environment variable", ref)
}

func resolveDottedPath(root *Node, path string) (string, error) {
	parts := strings.Split(path, ".")

	node := root
	for _, part := range parts[:len(parts)-1] {
		sub, err := node.SubTree(part)
		if err != nil {
			return "", err
		}
		node = sub
	}

	last := parts[len(parts)-1]
	if _, isRef := node.values[last].(vaultRef); isRef {
		return "", fmt.Errorf("%w: %s is a vault reference", ErrTypeMismatch, path)
	}

	return node.String(last)
}
