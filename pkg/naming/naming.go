// Package naming provides an in-memory hierarchical naming context.
package naming

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrNotFound means no binding exists at the path.
	ErrNotFound = errors.New("name not found")
	// ErrAlreadyBound means Bind found an existing value or context.
	ErrAlreadyBound = errors.New("name already bound")
	// ErrNotContext means a path segment names a value, not a context.
	ErrNotContext = errors.New("not a context")
	// ErrEmptySegment means the path contains an empty component.
	ErrEmptySegment = errors.New("empty path segment")
)

// NamingError reports a failed naming operation on Path.
type NamingError struct {
	Path  string
	Cause error
}

func (e *NamingError) Error() string {
	return fmt.Sprintf("naming %q: %v", e.Path, e.Cause)
}

func (e *NamingError) Unwrap() error { return e.Cause }

// Link aliases a registered deployment by name.
type Link struct {
	Target string
}

// SubContext is returned by Lookup when the path names a context.
type SubContext struct {
	Path  string
	Names []string
}

// Resolver looks up values by path. Failures wrap ErrNotFound or are *NamingError.
type Resolver interface {
	Lookup(path string) (interface{}, error)
}

type node struct {
	children map[string]*node
	value    interface{}
}

func (n *node) isContext() bool { return n.children != nil }

// Context is a concurrency-safe tree of bindings. The zero value is not usable;
// call New.
type Context struct {
	mu   sync.RWMutex
	root *node
}

func New() *Context {
	return &Context{root: &node{children: make(map[string]*node)}}
}

// Normalize strips a java: scheme and surrounding slashes.
func Normalize(path string) string {
	p := strings.TrimSpace(path)
	if len(p) >= 5 && strings.EqualFold(p[:5], "java:") {
		p = p[5:]
	}
	return strings.Trim(p, "/")
}

func split(path string) ([]string, error) {
	p := Normalize(path)
	if p == "" {
		return nil, nil
	}
	segs := strings.Split(p, "/")
	for _, s := range segs {
		if s == "" {
			return nil, &NamingError{Path: path, Cause: ErrEmptySegment}
		}
	}
	return segs, nil
}

// Bind binds value at path, creating intermediate contexts.
func (c *Context) Bind(path string, value interface{}) error {
	segs, err := split(path)
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		return &NamingError{Path: path, Cause: ErrAlreadyBound}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.root
	for i, s := range segs[:len(segs)-1] {
		child, ok := n.children[s]
		if !ok {
			child = &node{children: make(map[string]*node)}
			n.children[s] = child
		} else if !child.isContext() {
			return &NamingError{Path: strings.Join(segs[:i+1], "/"), Cause: ErrNotContext}
		}
		n = child
	}
	last := segs[len(segs)-1]
	if _, ok := n.children[last]; ok {
		return &NamingError{Path: path, Cause: ErrAlreadyBound}
	}
	n.children[last] = &node{value: value}
	return nil
}

// CreateSubcontext creates an empty context at path if none exists.
func (c *Context) CreateSubcontext(path string) error {
	segs, err := split(path)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.root
	for i, s := range segs {
		child, ok := n.children[s]
		if !ok {
			child = &node{children: make(map[string]*node)}
			n.children[s] = child
		} else if !child.isContext() {
			return &NamingError{Path: strings.Join(segs[:i+1], "/"), Cause: ErrNotContext}
		}
		n = child
	}
	return nil
}

// Unbind removes the binding or context at path.
func (c *Context) Unbind(path string) error {
	segs, err := split(path)
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		return &NamingError{Path: path, Cause: errors.New("cannot unbind the root context")}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	parent, err := c.walk(segs[:len(segs)-1], path)
	if err != nil {
		return err
	}
	last := segs[len(segs)-1]
	if _, ok := parent.children[last]; !ok {
		return fmt.Errorf("naming:naming - %s: %w", path, ErrNotFound)
	}
	delete(parent.children, last)
	return nil
}

// Lookup returns the value bound at path, or a SubContext for a context.
func (c *Context) Lookup(path string) (interface{}, error) {
	segs, err := split(path)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, err := c.walk(segs, path)
	if err != nil {
		return nil, err
	}
	if n.isContext() {
		return SubContext{Path: strings.Join(segs, "/"), Names: names(n)}, nil
	}
	return n.value, nil
}

// walk follows segs from the root. Caller holds the lock.
func (c *Context) walk(segs []string, path string) (*node, error) {
	n := c.root
	for i, s := range segs {
		if !n.isContext() {
			return nil, &NamingError{Path: strings.Join(segs[:i], "/"), Cause: ErrNotContext}
		}
		child, ok := n.children[s]
		if !ok {
			return nil, fmt.Errorf("naming:naming - %s: %w", path, ErrNotFound)
		}
		n = child
	}
	return n, nil
}

func names(n *node) []string {
	out := make([]string, 0, len(n.children))
	for k := range n.children {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
