package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Load parses the configuration file at path (and any files it includes,
// resolved relative to path's directory) into a Configuration bound to
// vault. Property overrides (from -D flags) are applied after parsing and
// take precedence over the file's own values at the root level.
func Load(path string, vault *Vault, overrides map[string]string) (*Node, error) {
	text, err := readFile(path)
	if err != nil {
		return nil, err
	}

	root, err := parseText(text, filepath.Dir(path), vault)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	for key, val := range overrides {
		applyOverride(root, key, val)
	}

	return root, nil
}

// Parse parses configuration text with no backing file. Include directives
// resolve relative to the current working directory.
func Parse(text string, vault *Vault) (*Node, error) {
	return parseText(text, ".", vault)
}

func parseText(text, baseDir string, vault *Vault) (*Node, error) {
	p := &parser{
		vault:   vault,
		baseDir: baseDir,
	}

	root := newNode(vault)
	if err := p.parseInto(root, newScanner(text)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	resolved := newNode(vault)
	if err := interpolate(root, root, resolved); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	return resolved, nil
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrParse, err)
	}
	return string(data), nil
}

// applyOverride sets a dotted key path (e.g. "time-scale" or
// "tuning.batch") on a parsed tree, used for -Dkey=value Driver flags.
// Only root-level and nested-node keys are supported; list indexes are
// not: a path segment naming a non-tree value (such as the "actors" list)
// is replaced by a new sub-tree.
func applyOverride(root *Node, dottedKey, value string) {
	parts := strings.Split(dottedKey, ".")

	node := root
	for _, part := range parts[:len(parts)-1] {
		sub, err := node.SubTree(part)
		if err != nil {
			sub = newNode(root.vault)
			node.set(part, sub)
		}
		node = sub
	}

	node.set(parts[len(parts)-1], value)
}

// parser turns a token stream into a Node tree, handling include
// directives by recursively parsing the referenced file into the same
// Node.
type parser struct {
	vault   *Vault
	baseDir string
}

func (p *parser) parseInto(dst *Node, s *scanner) error {
	for {
		s.skipSpaceAndComments()

		if s.atEOF() {
			return nil
		}

		if s.peekRune() == '}' {
			return nil
		}

		// Commas between key-value pairs are optional separators.
		if s.peekRune() == ',' {
			s.mustConsume(',')
			continue
		}

		if s.consumeKeyword("include") {
			if err := p.handleInclude(dst, s); err != nil {
				return err
			}
			continue
		}

		key, err := s.readKey()
		if err != nil {
			return err
		}

		s.skipSpaceAndComments()

		if s.peekRune() == '{' {
			s.mustConsume('{')
			child := newNode(p.vault)
			if err := p.parseInto(child, s); err != nil {
				return err
			}
			s.skipSpaceAndComments()
			if err := s.expect('}'); err != nil {
				return err
			}
			dst.set(key, child)
			continue
		}

		if err := s.expect('='); err != nil {
			return err
		}

		s.skipSpaceAndComments()

		value, err := p.readValue(s)
		if err != nil {
			return err
		}

		dst.set(key, value)
	}
}

func (p *parser) handleInclude(dst *Node, s *scanner) error {
	s.skipSpaceAndComments()

	relPath, err := s.readQuotedString()
	if err != nil {
		return fmt.Errorf("include: %w", err)
	}

	fullPath := relPath
	if !filepath.IsAbs(fullPath) {
		fullPath = filepath.Join(p.baseDir, relPath)
	}

	text, err := readFile(fullPath)
	if err != nil {
		return fmt.Errorf("include %q: %w", relPath, err)
	}

	child := &parser{vault: p.vault, baseDir: filepath.Dir(fullPath)}

	return child.parseInto(dst, newScanner(text))
}

// readValue reads a scalar, quoted string, bracketed list, or braced
// sub-tree (the element form of the root "actors" list).
func (p *parser) readValue(s *scanner) (any, error) {
	if s.peekRune() == '[' {
		return p.readList(s)
	}

	if s.peekRune() == '{' {
		s.mustConsume('{')

		child := newNode(p.vault)
		if err := p.parseInto(child, s); err != nil {
			return nil, err
		}

		s.skipSpaceAndComments()
		if err := s.expect('}'); err != nil {
			return nil, err
		}

		return child, nil
	}

	if s.peekRune() == '"' {
		str, err := s.readQuotedString()
		if err != nil {
			return nil, err
		}
		return wrapScalar(str), nil
	}

	raw, err := s.readBareValue()
	if err != nil {
		return nil, err
	}

	return wrapScalar(raw), nil
}

func (p *parser) readList(s *scanner) ([]any, error) {
	s.mustConsume('[')

	var items []any
	for {
		s.skipSpaceAndComments()

		if s.peekRune() == ']' {
			s.mustConsume(']')
			return items, nil
		}

		val, err := p.readValue(s)
		if err != nil {
			return nil, err
		}
		items = append(items, val)

		s.skipSpaceAndComments()
		if s.peekRune() == ',' {
			s.mustConsume(',')
		}
	}
}

// wrapScalar tags a "??key"-prefixed literal as a vault reference; all
// other scalars pass through as plain strings, resolved to their concrete
// type on typed access (Node.Int, Node.Bool, ...).
func wrapScalar(raw string) any {
	if strings.HasPrefix(raw, "??") {
		return vaultRef(strings.TrimPrefix(raw, "??"))
	}
	return raw
}
