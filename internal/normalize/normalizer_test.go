package normalize

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memberbridge/memberbridge/internal/logger"
	"github.com/memberbridge/memberbridge/internal/member"
)

func newTestNormalizer() *Normalizer {
	return New(logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC))
}

func TestCleanText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"entities", "M&amp;Ms &amp; Co", "M&Ms & Co"},
		{"already decoded", "M&Ms & Co", "M&Ms & Co"},
		{"numeric entities", "Rock&#8217;n&#8217;roll &#8211; 3D", "Rock’n’roll – 3D"},
		{"accents", "Animaci&oacute;n &amp; Dise&ntilde;o", "Animación & Diseño"},
		{"whitespace", "  Stop \t motion\n\n  artist ", "Stop motion artist"},
		{"nbsp", "Stop&nbsp;motion", "Stop motion"},
		{"tags", "<p>Hola <strong>mundo</strong></p>", "Hola mundo"},
		{"lone less-than", "Precio <50 euros y más", "Precio <50 euros y más"},
		{"less-than between words", "2D<3D animación", "2D<3D animación"},
		{"spaced comparison", "a < b > c", "a < b > c"},
		{"less-than inside markup", "<p>Experiencia <5 años</p>", "Experiencia <5 años"},
		{"empty", "", ""},
		{"nfc", "Go\u0301mez", "G\u00f3mez"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CleanText(tt.in))
		})
	}
}

func TestCleanText_Idempotent(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"M&amp;Ms &amp; Co", "Animaci&oacute;n", "Animaci&oacute;n &amp; Co", "plain", "Precio <50 euros"} {
		once := CleanText(in)
		assert.Equal(t, once, CleanText(once), "input %q", in)
	}
}

func TestParseList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"comma", "2D,3D, Storyboard", []string{"2D", "3D", "Storyboard"}},
		{"drops empties", " Rigging, ,  ,Layout,", []string{"Rigging", "Layout"}},
		{"json keeps elements", `["2D, 3D","Storyboard"]`, []string{"2D, 3D", "Storyboard"}},
		{"json numbers", `["Rigging", 3]`, []string{"Rigging", "3"}},
		{"php serialized", `a:2:{i:0;s:12:"2D Animation";i:1;s:7:"Rigging";}`, []string{"2D Animation", "Rigging"}},
		{"php multibyte", `a:1:{i:0;s:10:"Animación";}`, []string{"Animación"}},
		{"malformed json falls back", `[2D, 3D`, []string{"[2D", "3D"}},
		{"malformed php falls back", `a:2:{i:0;s:99:"x";}`, []string{`a:2:{i:0;s:99:"x";}`}},
		{"php negative count falls back", `a:-1:{}`, []string{`a:-1:{}`}},
		{"php oversized count falls back", `a:99999999999:{`, []string{`a:99999999999:{`}},
		{"entities in elements", "Dise&ntilde;o, VFX &amp; Comp", []string{"Diseño", "VFX & Comp"}},
		{"empty", "  ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseList(tt.in))
		})
	}
}

func TestMergeUnique(t *testing.T) {
	t.Parallel()

	got := MergeUnique([]string{"2D Animation", "Rigging"}, []string{"rigging", "Layout", "2d animation"})
	assert.Equal(t, []string{"2D Animation", "Rigging", "Layout"}, got)
	assert.Nil(t, MergeUnique(nil, nil))
}

func TestNormalize_IsActive(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer()

	for status, want := range map[string]bool{"publish": true, "private": false, "draft": false, "": false} {
		rec := &member.LegacyRecord{ExternalID: 1, Status: status}
		assert.Equal(t, want, n.Normalize(rec, map[string]string{}).IsActive, "status %q", status)
	}
}

func TestNormalize_MariaScenario(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer()

	rec := &member.LegacyRecord{ExternalID: 42, Title: "María Gómez", Status: "publish"}
	meta := map[string]string{
		"nombre":      "María",
		"apellidos":   "Gómez",
		"email":       "",
		"profesiones": "2D Animation,Rigging",
	}

	got := n.Normalize(rec, meta)
	assert.Equal(t, "María", got.FirstName)
	assert.Equal(t, "Gómez", got.LastName)
	assert.Empty(t, got.Email)
	assert.Equal(t, []string{"2D Animation", "Rigging"}, got.ConsolidatedProfessions)
	assert.Nil(t, got.ProfileImage)
	assert.Nil(t, got.Resume)
	assert.Nil(t, got.Social)
}

func TestNormalize_FallbackChains(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer()

	rec := &member.LegacyRecord{
		ExternalID: 7,
		Title:      "Ana Ruiz Soto",
		Body:       "<p>Animadora &amp; directora</p>",
		Status:     "private",
	}
	meta := map[string]string{
		"correo":            " Ana@Example.ORG ",
		"profesion":         `a:1:{i:0;s:6:"Layout";}`,
		"otras_profesiones": "layout, Compositing",
		"experiencia":       "12 años",
		"user_id":           "abc",
		"empresa":           "",
		"company":           "Estudio Norte",
	}

	got := n.Normalize(rec, meta)
	assert.Equal(t, "Ana", got.FirstName, "derived from title when no name keys")
	assert.Equal(t, "Ruiz Soto", got.LastName)
	assert.Equal(t, "ana@example.org", got.Email)
	assert.Equal(t, "Animadora & directora", got.Biography, "body used when biography keys are absent")
	assert.Equal(t, []string{"Layout", "Compositing"}, got.ConsolidatedProfessions)
	assert.Equal(t, 12, got.ExperienceYears)
	assert.Nil(t, got.UserID, "malformed user id degrades to absent")
	assert.Equal(t, "Estudio Norte", got.Company, "blank dedicated key falls through to the secondary key")
}

func TestNormalize_SocialSkipsEmpty(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer()

	meta := map[string]string{
		"instagram": "https://instagram.com/maria",
		"linkedin":  "   ",
		"x":         "https://x.com/maria",
		"vimeo":     "",
	}
	got := n.Normalize(&member.LegacyRecord{ExternalID: 1}, meta)

	assert.Equal(t, map[string]string{
		"instagram": "https://instagram.com/maria",
		"twitter":   "https://x.com/maria",
	}, got.Social)
	for platform, url := range got.Social {
		assert.NotEmpty(t, url, platform)
	}
}

func TestNormalize_Flags(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer()

	tests := []struct {
		name                           string
		meta                           map[string]string
		board, newsletter, jobs, privy bool
	}{
		{"all absent", map[string]string{}, false, true, true, false},
		{"explicit yes", map[string]string{"junta_directiva": "yes", "acepta_privacidad": "1"}, true, true, true, true},
		{"opt-out present but blank", map[string]string{"newsletter": "", "ofertas_empleo": "0"}, false, false, false, false},
		{"checkbox array", map[string]string{"newsletter": `a:1:{i:0;s:3:"yes";}`, "junta_directiva": `a:0:{}`}, false, true, true, false},
		{"malformed checkbox array", map[string]string{"junta_directiva": `a:-1:{}`, "newsletter": `a:99999999999:{`}, false, false, true, false},
		{"other values", map[string]string{"junta_directiva": "no", "acepta_newsletter": "Sí"}, false, true, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := n.Normalize(&member.LegacyRecord{ExternalID: 1}, tt.meta)
			assert.Equal(t, tt.board, got.IsBoardMember, "board")
			assert.Equal(t, tt.newsletter, got.NewsletterConsent, "newsletter")
			assert.Equal(t, tt.jobs, got.JobOffersConsent, "job offers")
			assert.Equal(t, tt.privy, got.PrivacyConsent, "privacy")
		})
	}
}

func TestNormalize_UsesRecordMetadata(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer()

	rec := &member.LegacyRecord{ExternalID: 3, Metadata: map[string]string{"nombre": "Luis", "user_id": "55"}}
	got := n.Normalize(rec, nil)
	assert.Equal(t, "Luis", got.FirstName)
	require.NotNil(t, got.UserID)
	assert.Equal(t, int64(55), *got.UserID)
}

func TestChain_Lookup(t *testing.T) {
	t.Parallel()

	chain := Chain{"a", "b", "c"}
	value, key := chain.Lookup(map[string]string{"a": " ", "b": "second", "c": "third"})
	assert.Equal(t, "second", value)
	assert.Equal(t, "b", key)

	value, key = chain.Lookup(map[string]string{"z": "x"})
	assert.Empty(t, value)
	assert.Empty(t, key)
	assert.True(t, chain.Present(map[string]string{"c": ""}))
	assert.False(t, chain.Present(nil))
}
