// Package resolver decides which legacy attachment is a member's profile image
// and which is their résumé.
package resolver

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/memberbridge/memberbridge/internal/logger"
	"github.com/memberbridge/memberbridge/internal/member"
)

// AttachmentSource dereferences attachment ids. *legacy.Connector implements it.
type AttachmentSource interface {
	FetchAttachment(ctx context.Context, id int64) (*member.Attachment, error)
}

// Keys lists candidate metadata keys in priority order.
type Keys struct {
	ProfileImage []string
	Resume       []string
	// ResumeHints are substrings that mark a key or value as résumé-like
	ResumeHints []string
}

// DefaultKeys returns the legacy form's asset keys.
func DefaultKeys() Keys {
	return Keys{
		ProfileImage: []string{"_thumbnail_id", "foto_perfil", "foto"},
		Resume:       []string{"cv", "curriculum", "cv_pdf", "curriculum_vitae"},
		ResumeHints:  []string{"curriculum", "cv"},
	}
}

var documentExtensions = []string{".pdf", ".doc", ".docx", ".odt", ".rtf"}

// Result holds the resolved slots; nil means nothing usable was found.
type Result struct {
	ProfileImage *member.AssetReference
	Resume       *member.AssetReference
}

// Resolver maps metadata values onto asset references.
type Resolver struct {
	source AttachmentSource
	keys   Keys
	log    logger.Logger
}

// New creates a Resolver with DefaultKeys.
func New(source AttachmentSource, log logger.Logger) *Resolver {
	return &Resolver{source: source, keys: DefaultKeys(), log: log}
}

// Resolve finds the profile image and résumé of a member. Dangling or
// unreadable references yield nil slots, never an error.
func (r *Resolver) Resolve(ctx context.Context, externalID int64, meta map[string]string) Result {
	log := r.log.With(logger.Int64("external_id", externalID))

	var res Result
	if value, key := firstNonEmpty(meta, r.keys.ProfileImage); key != "" {
		res.ProfileImage = r.reference(ctx, log, externalID, member.AssetProfileImage, key, value)
	}

	if value, key := firstNonEmpty(meta, r.keys.Resume); key != "" {
		res.Resume = r.reference(ctx, log, externalID, member.AssetResume, key, value)
	} else if value, key := r.heuristicResume(meta); key != "" {
		log.Debug("resume found by heuristic", logger.String("key", key))
		res.Resume = r.reference(ctx, log, externalID, member.AssetResume, key, value)
	}

	return res
}

// reference turns one metadata value into a reference: numeric values are
// attachment ids, absolute URLs are used directly, anything else is a legacy path.
func (r *Resolver) reference(ctx context.Context, log logger.Logger, externalID int64, assetType member.AssetType, key, value string) *member.AssetReference {
	value = strings.TrimSpace(value)

	if id, err := strconv.ParseInt(value, 10, 64); err == nil {
		att, err := r.source.FetchAttachment(ctx, id)
		if err != nil {
			log.Warn("attachment lookup failed",
				logger.String("key", key),
				logger.Int64("attachment_id", id),
				logger.Error(err))
			return nil
		}
		if att == nil || att.URL == "" {
			log.Debug("dangling attachment reference",
				logger.String("key", key),
				logger.Int64("attachment_id", id))
			return nil
		}
		filename := filenameFromURL(att.URL)
		if filename == "" {
			filename = att.Title
		}
		return &member.AssetReference{
			SourceURL: att.URL,
			Filename:  filename,
			MIMEType:  firstNonBlank(att.MIMEType, mimeFromName(filename)),
		}
	}

	if IsAbsoluteURL(value) {
		filename := filenameFromURL(value)
		if path.Ext(filename) == "" {
			filename = synthesizeFilename(externalID, assetType)
		}
		return &member.AssetReference{
			SourceURL: value,
			Filename:  filename,
			MIMEType:  mimeFromName(filename),
		}
	}

	filename := path.Base(strings.ReplaceAll(value, "\\", "/"))
	if filename == "." || filename == "/" {
		return nil
	}
	return &member.AssetReference{
		SourceURL: value,
		Filename:  filename,
		MIMEType:  mimeFromName(filename),
	}
}

// heuristicResume scans remaining metadata for a résumé-like key or document value.
func (r *Resolver) heuristicResume(meta map[string]string) (value, key string) {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		if slices.Contains(r.keys.ProfileImage, k) {
			continue
		}
		v := strings.TrimSpace(meta[k])
		if v == "" {
			continue
		}
		keyHint := containsAny(strings.ToLower(k), r.keys.ResumeHints)
		valueHint := containsAny(strings.ToLower(filenameFromURL(v)), r.keys.ResumeHints)
		_, numErr := strconv.ParseInt(v, 10, 64)

		switch {
		case keyHint && numErr == nil:
			return v, k
		case (keyHint || valueHint) && isDocument(v):
			return v, k
		}
	}
	return "", ""
}

// IsAbsoluteURL reports whether ref carries an http(s) scheme or is protocol-relative.
func IsAbsoluteURL(ref string) bool {
	lower := strings.ToLower(strings.TrimSpace(ref))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "//")
}

func firstNonEmpty(meta map[string]string, keys []string) (value, key string) {
	for _, k := range keys {
		if v := strings.TrimSpace(meta[k]); v != "" {
			return v, k
		}
	}
	return "", ""
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func filenameFromURL(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}
	base := path.Base(p)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

func synthesizeFilename(externalID int64, assetType member.AssetType) string {
	if assetType == member.AssetProfileImage {
		return fmt.Sprintf("foto-%d.jpg", externalID)
	}
	return fmt.Sprintf("cv-%d.pdf", externalID)
}

func mimeFromName(name string) string {
	return mime.TypeByExtension(strings.ToLower(path.Ext(name)))
}

func isDocument(v string) bool {
	ext := strings.ToLower(path.Ext(filenameFromURL(v)))
	return slices.Contains(documentExtensions, ext)
}

func containsAny(s string, hints []string) bool {
	for _, h := range hints {
		if strings.Contains(s, h) {
			return true
		}
	}
	return false
}
