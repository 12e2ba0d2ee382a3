package normalize

import "strings"

// Chain is an ordered list of candidate metadata keys for one field.
// The first key holding a non-blank value wins.
type Chain []string

// Lookup returns the first non-blank value and the key it came from.
func (c Chain) Lookup(meta map[string]string) (value, key string) {
	for _, k := range c {
		if v, ok := meta[k]; ok && strings.TrimSpace(v) != "" {
			return v, k
		}
	}
	return "", ""
}

// Present reports whether any candidate key exists, even with an empty value.
func (c Chain) Present(meta map[string]string) bool {
	for _, k := range c {
		if _, ok := meta[k]; ok {
			return true
		}
	}
	return false
}

// FlagChain is a boolean field together with its value when no key is present.
type FlagChain struct {
	Keys          Chain
	DefaultAbsent bool
}

// Chains lists the candidate keys of every normalized field.
type Chains struct {
	FirstName         Chain
	LastName          Chain
	Email             Chain
	Phone             Chain
	Website           Chain
	Company           Chain
	ExperienceYears   Chain
	Biography         Chain
	Professions       Chain
	OtherProfessions  Chain
	OtherAssociations Chain
	Address           Chain
	PostalCode        Chain
	City              Chain
	Province          Chain
	Country           Chain
	MembershipType    Chain
	UserID            Chain

	// Social maps platform name to its candidate keys.
	Social map[string]Chain

	IsBoardMember     FlagChain
	IsHonorary        FlagChain
	PublicProfile     FlagChain
	NewsletterConsent FlagChain
	JobOffersConsent  FlagChain
	PrivacyConsent    FlagChain
}

// DefaultChains returns the key chains of the association's legacy member form.
// Consent fields were opt-out on the legacy form, so their absence means consent.
func DefaultChains() Chains {
	return Chains{
		FirstName:         Chain{"nombre", "first_name"},
		LastName:          Chain{"apellidos", "last_name"},
		Email:             Chain{"email", "correo", "correo_electronico"},
		Phone:             Chain{"telefono", "movil", "phone"},
		Website:           Chain{"web", "pagina_web", "website"},
		Company:           Chain{"empresa", "estudio", "company"},
		ExperienceYears:   Chain{"anos_experiencia", "experiencia", "years_experience"},
		Biography:         Chain{"biografia", "bio", "descripcion"},
		Professions:       Chain{"profesiones", "profesion", "professions"},
		OtherProfessions:  Chain{"otras_profesiones", "otra_profesion"},
		OtherAssociations: Chain{"otras_asociaciones", "asociaciones"},
		Address:           Chain{"direccion", "address"},
		PostalCode:        Chain{"codigo_postal", "cp"},
		City:              Chain{"ciudad", "localidad", "city"},
		Province:          Chain{"provincia", "province"},
		Country:           Chain{"pais", "country"},
		MembershipType:    Chain{"tipo_socio", "tipo_membresia", "membership_type"},
		UserID:            Chain{"user_id", "usuario_id"},

		Social: map[string]Chain{
			"instagram":  {"instagram"},
			"linkedin":   {"linkedin"},
			"twitter":    {"twitter", "x"},
			"facebook":   {"facebook"},
			"vimeo":      {"vimeo"},
			"youtube":    {"youtube"},
			"artstation": {"artstation"},
			"behance":    {"behance"},
		},

		IsBoardMember:     FlagChain{Keys: Chain{"junta_directiva", "miembro_junta"}},
		IsHonorary:        FlagChain{Keys: Chain{"socio_honorifico", "honorario"}},
		PublicProfile:     FlagChain{Keys: Chain{"perfil_publico", "mostrar_perfil"}},
		NewsletterConsent: FlagChain{Keys: Chain{"newsletter", "acepta_newsletter"}, DefaultAbsent: true},
		JobOffersConsent:  FlagChain{Keys: Chain{"ofertas_empleo", "acepta_ofertas"}, DefaultAbsent: true},
		PrivacyConsent:    FlagChain{Keys: Chain{"acepta_privacidad", "politica_privacidad"}},
	}
}
