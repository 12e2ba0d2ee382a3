// Package normalize converts the loosely typed legacy metadata bag of a member
// into a typed member.Record.
package normalize

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/memberbridge/memberbridge/internal/logger"
	"github.com/memberbridge/memberbridge/internal/member"
)

// PublishedStatus is the legacy status of an active member.
const PublishedStatus = "publish"

// Normalizer maps legacy metadata onto member records using per-field key chains.
type Normalizer struct {
	chains Chains
	log    logger.Logger
}

// New creates a Normalizer with DefaultChains.
func New(log logger.Logger) *Normalizer {
	return NewWithChains(DefaultChains(), log)
}

// NewWithChains creates a Normalizer with custom key chains.
func NewWithChains(chains Chains, log logger.Logger) *Normalizer {
	return &Normalizer{chains: chains, log: log}
}

// Normalize builds the typed record. It never fails: a malformed field
// degrades to its zero value and is logged at debug level.
// When meta is nil the record's own Metadata is used.
func (n *Normalizer) Normalize(rec *member.LegacyRecord, meta map[string]string) *member.Record {
	if meta == nil {
		meta = rec.Metadata
	}
	log := n.log.With(logger.Int64("external_id", rec.ExternalID))

	out := &member.Record{
		ExternalID:  rec.ExternalID,
		DisplayName: CleanText(rec.Title),
		IsActive:    rec.Status == PublishedStatus,
	}

	c := &n.chains
	out.FirstName = n.text(meta, c.FirstName)
	out.LastName = n.text(meta, c.LastName)
	if out.FirstName == "" && out.LastName == "" {
		out.FirstName, out.LastName = splitDisplayName(out.DisplayName)
	}

	out.Email = strings.ToLower(n.text(meta, c.Email))
	out.Phone = n.text(meta, c.Phone)
	out.Website = n.text(meta, c.Website)
	out.Company = n.text(meta, c.Company)
	out.ExperienceYears = n.years(meta, c.ExperienceYears, log)

	out.Biography = n.text(meta, c.Biography)
	if out.Biography == "" {
		out.Biography = CleanText(rec.Body)
	}

	out.Professions = n.list(meta, c.Professions)
	out.OtherProfessions = n.list(meta, c.OtherProfessions)
	out.ConsolidatedProfessions = MergeUnique(out.Professions, out.OtherProfessions)
	out.OtherAssociations = n.list(meta, c.OtherAssociations)

	out.Address = n.text(meta, c.Address)
	out.PostalCode = n.text(meta, c.PostalCode)
	out.City = n.text(meta, c.City)
	out.Province = n.text(meta, c.Province)
	out.Country = n.text(meta, c.Country)
	out.MembershipType = n.text(meta, c.MembershipType)
	out.UserID = n.userID(meta, c.UserID, log)

	for platform, chain := range c.Social {
		if url := n.text(meta, chain); url != "" {
			if out.Social == nil {
				out.Social = make(map[string]string)
			}
			out.Social[platform] = url
		}
	}

	out.IsBoardMember = n.flag(meta, c.IsBoardMember)
	out.IsHonorary = n.flag(meta, c.IsHonorary)
	out.PublicProfile = n.flag(meta, c.PublicProfile)
	out.NewsletterConsent = n.flag(meta, c.NewsletterConsent)
	out.JobOffersConsent = n.flag(meta, c.JobOffersConsent)
	out.PrivacyConsent = n.flag(meta, c.PrivacyConsent)

	return out
}

func (n *Normalizer) text(meta map[string]string, chain Chain) string {
	value, _ := chain.Lookup(meta)
	return CleanText(value)
}

func (n *Normalizer) list(meta map[string]string, chain Chain) []string {
	value, _ := chain.Lookup(meta)
	return ParseList(value)
}

// years reads the leading integer of values like "12" or "5 años".
func (n *Normalizer) years(meta map[string]string, chain Chain, log logger.Logger) int {
	value, key := chain.Lookup(meta)
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	end := strings.IndexFunc(value, func(r rune) bool { return !unicode.IsDigit(r) })
	if end < 0 {
		end = len(value)
	}
	years, err := strconv.Atoi(value[:end])
	if err != nil || years < 0 {
		log.Debug("ignoring malformed experience value", logger.String("key", key), logger.String("value", value))
		return 0
	}
	return years
}

func (n *Normalizer) userID(meta map[string]string, chain Chain, log logger.Logger) *int64 {
	value, key := chain.Lookup(meta)
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		log.Debug("ignoring malformed user id", logger.String("key", key), logger.String("value", value))
		return nil
	}
	return &id
}

// flag maps "yes"/"1" style values to true. Absent keys take the chain's default;
// a present but blank key is false.
func (n *Normalizer) flag(meta map[string]string, fc FlagChain) bool {
	if !fc.Keys.Present(meta) {
		return fc.DefaultAbsent
	}
	value, _ := fc.Keys.Lookup(meta)
	if items, ok := parseStructuredList(strings.TrimSpace(value)); ok {
		for _, item := range items {
			if truthy(item) {
				return true
			}
		}
		return false
	}
	return truthy(value)
}

func truthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "1", "true", "on", "si", "sí":
		return true
	}
	return false
}

// splitDisplayName splits "María Gómez Ruiz" into "María" and "Gómez Ruiz".
func splitDisplayName(name string) (first, last string) {
	first, last, _ = strings.Cut(name, " ")
	return first, last
}
