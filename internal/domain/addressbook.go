package domain

import (
	"strings"
	"time"
	"unicode"
)

// Contact is one address book entry.
type Contact struct {
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Chain     string    `json:"chain"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AddressBook is persisted as a single key-value vault item.
type AddressBook struct {
	Contacts []Contact `json:"contacts"`
}

// Upsert replaces the contact with the same chain and address, or appends it.
func (ab *AddressBook) Upsert(c Contact) {
	for i, existing := range ab.Contacts {
		if existing.Chain == c.Chain && existing.Address == c.Address {
			ab.Contacts[i] = c
			return
		}
	}
	ab.Contacts = append(ab.Contacts, c)
}

// RemoveAddress drops the contact for chain/address and reports whether one was removed.
func (ab *AddressBook) RemoveAddress(chain, address string) bool {
	for i, existing := range ab.Contacts {
		if existing.Chain == chain && existing.Address == address {
			ab.Contacts = append(ab.Contacts[:i], ab.Contacts[i+1:]...)
			return true
		}
	}
	return false
}

// Search returns the contacts matching every token of the raw query.
func (ab *AddressBook) Search(raw string) []Contact {
	tokens := ParseSearchTokens(raw)

	matches := make([]Contact, 0, len(ab.Contacts))
	for _, c := range ab.Contacts {
		if MatchesSearchTokens(c, tokens) {
			matches = append(matches, c)
		}
	}
	return matches
}

// Preferences holds small per-user UI settings.
type Preferences struct {
	Currency       string `json:"currency"`
	HideBalances   bool   `json:"hide_balances"`
	DefaultAccount int    `json:"default_account"`
}

// ParseSearchTokens splits the raw search string into lower-cased tokens.
// Tokens are delimited by '+' or any whitespace character.
func ParseSearchTokens(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return unicode.IsSpace(r) || r == '+'
	})

	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		token := strings.TrimSpace(field)
		if token == "" {
			continue
		}
		tokens = append(tokens, strings.ToLower(token))
	}

	if len(tokens) == 0 {
		return nil
	}

	return tokens
}

// MatchesSearchTokens reports whether the contact satisfies all search tokens.
// Each token must be contained in at least one of name, address, chain, or tags.
func MatchesSearchTokens(c Contact, tokens []string) bool {
	if len(tokens) == 0 {
		return true
	}

	name := strings.ToLower(c.Name)
	address := strings.ToLower(c.Address)
	chain := strings.ToLower(c.Chain)

	tags := make([]string, 0, len(c.Tags))
	for _, tag := range c.Tags {
		tags = append(tags, strings.ToLower(tag))
	}

	for _, token := range tokens {
		if strings.Contains(name, token) ||
			strings.Contains(address, token) ||
			strings.Contains(chain, token) ||
			tagContainsToken(tags, token) {
			continue
		}

		return false
	}

	return true
}

func tagContainsToken(tags []string, token string) bool {
	for _, tag := range tags {
		if strings.Contains(tag, token) {
			return true
		}
	}
	return false
}
