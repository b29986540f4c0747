package linkverify

import (
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
)

// BrokenLink is a local link whose target does not exist.
type BrokenLink struct {
	Page   string // page path relative to the tree root
	Link   string // the link as written
	Target string // resolved target relative to the tree root
}

func (b BrokenLink) String() string {
	return b.Page + ": broken link " + b.Link + " (" + b.Target + " not found)"
}

// TreeReport summarises the verification of a rendered HTML tree.
type TreeReport struct {
	Pages  int
	Links  int
	Broken []BrokenLink
}

// VerifyTree parses every .html file under root and checks that each local
// link resolves to a file in the tree. A link to a directory resolves to its
// index.html. A leading "/" resolves from root.
func VerifyTree(root string) (*TreeReport, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, errors.NotFoundError("output directory does not exist").WithContext("path", root).Build()
	}

	var pages []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(p), ".html") {
			pages = append(pages, p)
		}
		return nil
	})
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to walk output directory").WithContext("path", root).Build()
	}
	sort.Strings(pages)

	report := &TreeReport{Pages: len(pages)}
	for _, p := range pages {
		links, err := ExtractLinks(p)
		if err != nil {
			return nil, err
		}
		rel, _ := filepath.Rel(root, p)
		rel = filepath.ToSlash(rel)
		for _, l := range links {
			if !IsLocal(l.URL) {
				continue
			}
			report.Links++
			target, ok := resolve(rel, l.URL)
			if !ok {
				continue
			}
			if !exists(root, target) {
				report.Broken = append(report.Broken, BrokenLink{Page: rel, Link: l.URL, Target: target})
			}
		}
	}
	return report, nil
}

// resolve turns link, found on page, into a slash path relative to the tree
// root. Links that only carry a query or fragment resolve to nothing.
func resolve(page, link string) (string, bool) {
	if i := strings.IndexAny(link, "?#"); i >= 0 {
		link = link[:i]
	}
	if link == "" {
		return "", false
	}
	if unescaped, err := url.PathUnescape(link); err == nil {
		link = unescaped
	}
	var target string
	if strings.HasPrefix(link, "/") {
		target = path.Clean(link)
	} else {
		target = path.Join("/", path.Dir(page), link)
	}
	target = strings.TrimPrefix(target, "/")
	if target == "" {
		target = "."
	}
	if strings.HasSuffix(link, "/") && target != "." {
		target += "/"
	}
	return target, true
}

func exists(root, target string) bool {
	if strings.HasPrefix(target, "..") {
		return false
	}
	full := filepath.Join(root, filepath.FromSlash(strings.TrimSuffix(target, "/")))
	fi, err := os.Stat(full)
	if err != nil {
		return false
	}
	if fi.IsDir() {
		_, err = os.Stat(filepath.Join(full, "index.html"))
		return err == nil
	}
	return !strings.HasSuffix(target, "/")
}
