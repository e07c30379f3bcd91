// Package menu holds the static menu graph and the per-viewer projection of
// it. Numbering of choices depends on who is looking: gated choices are left
// out before numbers are assigned, so the same digit can lead to different
// places for a guest and an admin.
package menu

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"menubot/internal/errorx"
	"menubot/internal/roles"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// FlagSet reports whether a feature flag is effectively enabled.
type FlagSet interface {
	Enabled(name string) bool
}

// Viewer is whoever the menu is being projected for.
type Viewer struct {
	Role  roles.Role
	Flags FlagSet
}

// Choice is one entry of a node. Exactly one of Target and Action is set.
type Choice struct {
	Keyword string `yaml:"keyword"`
	Label   string `yaml:"label"`
	Emoji   string `yaml:"emoji"`
	Target  string `yaml:"target"`
	Action  string `yaml:"action"`
	Text    string `yaml:"text"`
	Flag    string `yaml:"flag"`
	Role    string `yaml:"role"`

	role roles.Role
}

// IsNavigation reports whether the choice opens another node.
func (c Choice) IsNavigation() bool { return c.Target != "" }

// Node is one menu screen.
type Node struct {
	Key     string   `yaml:"key"`
	Title   string   `yaml:"title"`
	Emoji   string   `yaml:"emoji"`
	Flag    string   `yaml:"flag"`
	Role    string   `yaml:"role"`
	Choices []Choice `yaml:"choices"`

	role roles.Role
}

// RequiredRole is the minimum role needed to open the node.
func (n *Node) RequiredRole() roles.Role { return n.role }

// Catalog is the immutable menu graph.
type Catalog struct {
	root  string
	order []string
	nodes map[string]*Node
}

type document struct {
	Root  string `yaml:"root"`
	Nodes []Node `yaml:"nodes"`
}

// Parse builds a catalog from YAML and checks that it is a closed graph.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{root: doc.Root, nodes: make(map[string]*Node, len(doc.Nodes))}
	for i := range doc.Nodes {
		n := &doc.Nodes[i]
		if n.Key == "" {
			return nil, fmt.Errorf("node #%d has no key", i+1)
		}
		if _, dup := c.nodes[n.Key]; dup {
			return nil, fmt.Errorf("duplicate node %q", n.Key)
		}
		role, ok := roles.Parse(n.Role)
		if !ok {
			return nil, fmt.Errorf("node %q: unknown role %q", n.Key, n.Role)
		}
		n.role = role
		c.nodes[n.Key] = n
		c.order = append(c.order, n.Key)
	}

	if _, ok := c.nodes[c.root]; !ok {
		return nil, fmt.Errorf("root node %q not defined", c.root)
	}
	if c.nodes[c.root].Flag != "" || c.nodes[c.root].role != roles.Guest {
		return nil, fmt.Errorf("root node %q must not be gated", c.root)
	}

	for _, key := range c.order {
		n := c.nodes[key]
		keywords := make(map[string]bool)
		for j := range n.Choices {
			ch := &n.Choices[j]
			if (ch.Target == "") == (ch.Action == "") {
				return nil, fmt.Errorf("node %q choice #%d: exactly one of target and action is required", key, j+1)
			}
			if ch.Target != "" {
				if _, ok := c.nodes[ch.Target]; !ok {
					return nil, fmt.Errorf("node %q choice #%d: unknown target %q", key, j+1, ch.Target)
				}
			}
			role, ok := roles.Parse(ch.Role)
			if !ok {
				return nil, fmt.Errorf("node %q choice #%d: unknown role %q", key, j+1, ch.Role)
			}
			ch.role = role

			kw := strings.ToLower(ch.Keyword)
			if kw != "" {
				if _, err := strconv.Atoi(kw); err == nil {
					return nil, fmt.Errorf("node %q: keyword %q must not be numeric", key, ch.Keyword)
				}
				if keywords[kw] {
					return nil, fmt.Errorf("node %q: duplicate keyword %q", key, ch.Keyword)
				}
				keywords[kw] = true
			}
		}
	}

	return c, nil
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic("menu: built-in catalog is invalid: " + err.Error())
	}
	return c
}

// Root returns the root node key.
func (c *Catalog) Root() string { return c.root }

// Has reports whether key names a node.
func (c *Catalog) Has(key string) bool {
	_, ok := c.nodes[key]
	return ok
}

// Node returns the node for key.
func (c *Catalog) Node(key string) (*Node, bool) {
	n, ok := c.nodes[key]
	return n, ok
}

// Keys returns all node keys in definition order.
func (c *Catalog) Keys() []string {
	return append([]string(nil), c.order...)
}

// CheckAccess reports whether v may open the node. The error is an
// errorx CapabilityDenied for gates and an Internal error for unknown keys.
func (c *Catalog) CheckAccess(key string, v Viewer) error {
	n, ok := c.nodes[key]
	if !ok {
		return errorx.E(errorx.Internal, "menu.access", fmt.Errorf("unknown node %q", key))
	}
	if !gateOpen(n.Flag, n.role, v) {
		return errorx.E(errorx.CapabilityDenied, "menu.access", fmt.Errorf("node %q", key))
	}
	return nil
}

// Visible projects the node's choices for v, in catalog order. The result is
// computed on every call.
func (c *Catalog) Visible(key string, v Viewer) []Choice {
	n, ok := c.nodes[key]
	if !ok {
		return nil
	}

	var out []Choice
	for _, ch := range n.Choices {
		if !gateOpen(ch.Flag, ch.role, v) {
			continue
		}
		if ch.Target != "" && c.CheckAccess(ch.Target, v) != nil {
			continue
		}
		out = append(out, ch)
	}
	return out
}

// ResolveChoice maps a selector typed by v to a choice of node key. Numeric
// selectors are 1-based positions in Visible; anything else is matched
// against keywords case-insensitively. Only visible choices resolve.
func (c *Catalog) ResolveChoice(key, selector string, v Viewer) (Choice, bool) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return Choice{}, false
	}

	visible := c.Visible(key, v)
	if n, err := strconv.Atoi(selector); err == nil {
		if n < 1 || n > len(visible) {
			return Choice{}, false
		}
		return visible[n-1], true
	}

	for _, ch := range visible {
		if ch.Keyword != "" && strings.EqualFold(ch.Keyword, selector) {
			return ch, true
		}
	}
	return Choice{}, false
}

func gateOpen(flag string, role roles.Role, v Viewer) bool {
	if !v.Role.Meets(role) {
		return false
	}
	if flag != "" && (v.Flags == nil || !v.Flags.Enabled(flag)) {
		return false
	}
	return true
}
