package relocator

import (
	"net/url"
	"path"
	"slices"
	"strings"
)

// SourceKind is the form of a legacy asset reference.
type SourceKind int

const (
	// KindLegacyAbsolute is an absolute URL on a legacy host.
	KindLegacyAbsolute SourceKind = iota
	// KindExternal is an absolute URL on a third-party host. Never relocated.
	KindExternal
	// KindRootRelative is a path starting with "/" on the legacy site.
	KindRootRelative
	// KindRelative is a path relative to the uploads tree.
	KindRelative
	// KindInvalid cannot be interpreted.
	KindInvalid
)

func (k SourceKind) String() string {
	switch k {
	case KindLegacyAbsolute:
		return "legacy-absolute"
	case KindExternal:
		return "external"
	case KindRootRelative:
		return "root-relative"
	case KindRelative:
		return "relative"
	default:
		return "invalid"
	}
}

// Source is a classified reference with the places its bytes can be read from.
type Source struct {
	Kind SourceKind
	// LocalPath is relative to the origin root; empty when the asset is not under it.
	LocalPath string
	// RemoteURL is the HTTP location; empty when no base URL is known.
	RemoteURL string
}

// Classify decides where ref lives.
func (r *Relocator) Classify(ref string) Source {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Source{Kind: KindInvalid}
	}
	if strings.HasPrefix(ref, "//") {
		ref = "https:" + ref
	}

	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		u, err := url.Parse(ref)
		if err != nil || u.Host == "" {
			return Source{Kind: KindInvalid}
		}
		if !r.isLegacyHost(u.Hostname()) {
			return Source{Kind: KindExternal, RemoteURL: ref}
		}
		return Source{
			Kind:      KindLegacyAbsolute,
			LocalPath: r.uploadsRelative(unescapedPath(u)),
			RemoteURL: ref,
		}
	}

	if strings.Contains(ref, "://") {
		return Source{Kind: KindInvalid}
	}

	ref = strings.ReplaceAll(ref, "\\", "/")
	if strings.HasPrefix(ref, "/") {
		src := Source{Kind: KindRootRelative, LocalPath: r.uploadsRelative(ref)}
		if src.LocalPath == "" {
			src.LocalPath = cleanRelative(ref)
		}
		if r.baseURL != nil {
			src.RemoteURL = r.baseURL.JoinPath(ref).String()
		}
		return src
	}

	rel := cleanRelative(ref)
	if rel == "" {
		return Source{Kind: KindInvalid}
	}
	src := Source{Kind: KindRelative, LocalPath: rel}
	if r.baseURL != nil {
		src.RemoteURL = r.baseURL.JoinPath(r.cfg.UploadsPrefix, rel).String()
	}
	return src
}

func (r *Relocator) isLegacyHost(host string) bool {
	return slices.Contains(r.legacyHosts, normalizeHost(host))
}

func normalizeHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(host)), "www.")
}

// uploadsRelative strips the uploads prefix, returning "" when p is outside it.
func (r *Relocator) uploadsRelative(p string) string {
	prefix := "/" + strings.Trim(r.cfg.UploadsPrefix, "/") + "/"
	if !strings.HasPrefix(p, prefix) {
		return ""
	}
	return cleanRelative(strings.TrimPrefix(p, prefix))
}

// cleanRelative returns a clean path that stays inside its root, or "".
func cleanRelative(p string) string {
	p = path.Clean("/" + p)
	p = strings.TrimPrefix(p, "/")
	if p == "" || p == "." {
		return ""
	}
	return p
}

func unescapedPath(u *url.URL) string {
	if p, err := url.PathUnescape(u.EscapedPath()); err == nil {
		return p
	}
	return u.Path
}
