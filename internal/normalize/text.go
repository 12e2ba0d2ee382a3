package normalize

import (
	"strings"

	"github.com/k3a/html2text"
	"golang.org/x/text/unicode/norm"
)

// entityReplacer decodes the fixed set of entities WordPress editors emit.
// Replacing "&amp;" with "&" leaves already decoded text unchanged.
var entityReplacer = strings.NewReplacer(
	"&amp;", "&", "&#038;", "&", "&#38;", "&",
	"&lt;", "<", "&#60;", "<",
	"&gt;", ">", "&#62;", ">",
	"&quot;", `"`, "&#034;", `"`, "&#34;", `"`,
	"&apos;", "'", "&#039;", "'", "&#39;", "'",
	"&nbsp;", " ", "&#160;", " ",
	"&ndash;", "–", "&#8211;", "–",
	"&mdash;", "—", "&#8212;", "—",
	"&lsquo;", "‘", "&#8216;", "‘",
	"&rsquo;", "’", "&#8217;", "’",
	"&ldquo;", "“", "&#8220;", "“",
	"&rdquo;", "”", "&#8221;", "”",
	"&hellip;", "…", "&#8230;", "…",
	"&euro;", "€", "&#8364;", "€",
	"&iexcl;", "¡", "&iquest;", "¿",
	"&aacute;", "á", "&eacute;", "é", "&iacute;", "í", "&oacute;", "ó", "&uacute;", "ú",
	"&Aacute;", "Á", "&Eacute;", "É", "&Iacute;", "Í", "&Oacute;", "Ó", "&Uacute;", "Ú",
	"&ntilde;", "ñ", "&Ntilde;", "Ñ", "&uuml;", "ü", "&Uuml;", "Ü", "&ccedil;", "ç",
	"&agrave;", "à", "&egrave;", "è", "&ograve;", "ò",
)

// CleanText strips tags, decodes entities, NFC-normalizes and collapses
// whitespace runs to single spaces.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	s, tagged := protectLoneLT(s)
	if tagged {
		s = html2text.HTML2Text(s)
	}
	s = strings.ReplaceAll(s, ltPlaceholder, "<")
	s = entityReplacer.Replace(s)
	s = norm.NFC.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// ltPlaceholder stands in for a '<' that does not open a tag while the
// markup is stripped.
const ltPlaceholder = "\uE000"

// protectLoneLT replaces every '<' that is not followed by a letter, '/' or
// '!' with ltPlaceholder. tagged reports whether any tag opener remains.
func protectLoneLT(s string) (out string, tagged bool) {
	if !strings.Contains(s, "<") {
		return s, false
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '<' {
			b.WriteByte(s[i])
			continue
		}
		if i+1 < len(s) && isTagStart(s[i+1]) {
			tagged = true
			b.WriteByte('<')
			continue
		}
		b.WriteString(ltPlaceholder)
	}
	return b.String(), tagged
}

func isTagStart(c byte) bool {
	return c == '/' || c == '!' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
