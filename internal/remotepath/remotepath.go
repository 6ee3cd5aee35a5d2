// Package remotepath is path algebra for POSIX-style remote paths.
//
// Nothing in here touches the network; every function is pure.
package remotepath

import (
	"strings"
)

const Root = "/"

// Resolve turns what the operator typed into an absolute remote path.
//
//	""       -> "/"
//	"~"      -> home
//	"~/rest" -> home/rest
//	"rel"    -> cwd/rel
//	"/abs"   -> unchanged
//
// Duplicate separators are collapsed in the result.
func Resolve(target, cwd, home string) string {
	var p string
	switch {
	case target == "":
		return Root
	case target == "~":
		p = home
	case strings.HasPrefix(target, "~/"):
		p = Join(home, target[2:])
	case !strings.HasPrefix(target, "/"):
		p = Join(cwd, target)
	default:
		p = target
	}
	return collapse(p)
}

// Join appends name to base with exactly one separator between them.
func Join(base, name string) string {
	if base == "" || base == Root {
		return "/" + strings.TrimPrefix(name, "/")
	}
	if name == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimPrefix(name, "/")
}

// Parent returns the directory containing p. The root is its own parent.
func Parent(p string) string {
	p = strings.TrimRight(collapse(p), "/")
	if p == "" {
		return Root
	}
	idx := strings.LastIndex(p, "/")
	if idx <= 0 {
		return Root
	}
	return p[:idx]
}

// Base returns the last element of p, or "/" for the root.
func Base(p string) string {
	p = strings.TrimRight(p, "/")
	if p == "" {
		return Root
	}
	return p[strings.LastIndex(p, "/")+1:]
}

// Ext returns the lower-cased extension of p including the dot.
func Ext(p string) string {
	base := Base(p)
	idx := strings.LastIndex(base, ".")
	if idx <= 0 {
		return ""
	}
	return strings.ToLower(base[idx:])
}

// Crumb is one clickable segment of a breadcrumb trail.
type Crumb struct {
	Label string
	Path  string
}

// Breadcrumbs splits p into the chain of ancestors starting at the root.
func Breadcrumbs(p string) []Crumb {
	crumbs := []Crumb{{Label: Root, Path: Root}}
	current := ""
	for _, part := range strings.Split(p, "/") {
		if part == "" {
			continue
		}
		current += "/" + part
		crumbs = append(crumbs, Crumb{Label: part, Path: current})
	}
	return crumbs
}

func collapse(p string) string {
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	return p
}
